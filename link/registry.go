package link

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrRegistryClosed is returned by Open after Close.
var ErrRegistryClosed = errors.New("link registry closed")

// Registry maps peer keys to running links. Its lock only guards the map;
// no I/O happens while it is held.
type Registry struct {
	mu     sync.Mutex
	links  map[PeerKey]*Link
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{links: make(map[PeerKey]*Link)}
}

// Open starts a link for key over conn and registers it. A link already
// registered under key is replaced and closed. Open takes ownership of conn
// and closes it on error.
func (r *Registry) Open(key PeerKey, conn Conn, opts Options) (*Link, error) {
	l := newLink(key, conn, r, opts)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		conn.Close()
		return nil, ErrRegistryClosed
	}
	old := r.links[key]
	r.links[key] = l
	r.mu.Unlock()

	if old != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Registry.Open",
			"peer":     key.String(),
			"old_link": old.id.String(),
			"new_link": l.id.String(),
		}).Info("Replacing link for peer")
		old.shutdown(ErrLinkClosed)
	}

	if opts.OnOpen != nil {
		opts.OnOpen(l)
	}
	go l.run()
	return l, nil
}

// Get returns the link registered under key.
func (r *Registry) Get(key PeerKey) (*Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[key]
	return l, ok
}

// Remove deletes the entry for key only if it still belongs to the link
// with the given id, so a superseded link cannot evict its replacement.
func (r *Registry) Remove(key PeerKey, id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[key]
	if !ok || l.id != id {
		return false
	}
	delete(r.links, key)
	return true
}

// Drop removes the link for key and shuts it down. It reports whether a
// link was registered.
func (r *Registry) Drop(key PeerKey) bool {
	r.mu.Lock()
	l, ok := r.links[key]
	if ok {
		delete(r.links, key)
	}
	r.mu.Unlock()

	if ok {
		l.Close()
	}
	return ok
}

// Len returns the number of registered links.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// Links returns a snapshot of the registered links.
func (r *Registry) Links() []*Link {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Link, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	return out
}

// Close shuts down every link and refuses new ones.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	links := make([]*Link, 0, len(r.links))
	for _, l := range r.links {
		links = append(links, l)
	}
	r.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
	return nil
}
