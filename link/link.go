package link

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/google/uuid"
	"github.com/opd-ai/unilink/crypto"
	"github.com/sirupsen/logrus"
)

// DefaultChannelBuffer is the inbound queue length of a registered tag.
const DefaultChannelBuffer = 16

// ErrLinkClosed is returned by operations on a link that has shut down.
var ErrLinkClosed = errors.New("link closed")

// Conn is an established record channel. Send must be safe for concurrent
// use; Receive is only called from one goroutine.
type Conn interface {
	Send(record []byte) error
	Receive() ([]byte, error)
	Close() error
}

// PeerKey identifies a peer by address and port.
type PeerKey = netip.AddrPort

// PeerKeyFromAddr derives the key of a connection's remote address.
func PeerKeyFromAddr(addr net.Addr) (PeerKey, error) {
	if addr == nil {
		return PeerKey{}, errors.New("nil peer address")
	}

	var key PeerKey
	if tcp, ok := addr.(*net.TCPAddr); ok {
		key = tcp.AddrPort()
	} else {
		parsed, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return PeerKey{}, fmt.Errorf("peer address %q: %w", addr, err)
		}
		key = parsed
	}
	return netip.AddrPortFrom(key.Addr().Unmap(), key.Port()), nil
}

// Options configures a link.
type Options struct {
	// ChannelBuffer is the inbound queue length per tag. Zero selects
	// DefaultChannelBuffer.
	ChannelBuffer int
	// OnOpen runs before the link starts reading, so tags it registers see
	// every inbound message. It must not call Close.
	OnOpen func(*Link)
}

type channel struct {
	tag uint8
	in  chan Header
	out chan Header
}

// Link multiplexes tagged channels over one connection to a peer.
//
// A single goroutine reads records and routes them by tag. Each registered
// tag has a pump goroutine that forwards the consumer's outbound headers.
// When the connection fails or the link is closed, the reader removes the
// link from its registry, closes every inbound channel and then closes Done.
type Link struct {
	id       uuid.UUID
	key      PeerKey
	conn     Conn
	registry *Registry
	buffer   int

	mu       sync.Mutex
	channels map[uint8]*channel
	closed   bool
	pumps    sync.WaitGroup

	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func newLink(key PeerKey, conn Conn, registry *Registry, opts Options) *Link {
	buffer := opts.ChannelBuffer
	if buffer <= 0 {
		buffer = DefaultChannelBuffer
	}
	return &Link{
		id:       uuid.New(),
		key:      key,
		conn:     conn,
		registry: registry,
		buffer:   buffer,
		channels: make(map[uint8]*channel),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the link's unique identity.
func (l *Link) ID() uuid.UUID { return l.id }

// Key returns the peer key the link is registered under.
func (l *Link) Key() PeerKey { return l.key }

// RemoteStatic returns the peer's static public key if the connection
// exposes one.
func (l *Link) RemoteStatic() []byte {
	if rs, ok := l.conn.(interface{ RemoteStatic() []byte }); ok {
		return rs.RemoteStatic()
	}
	return nil
}

// Register attaches a consumer to tag. Headers sent on the returned send
// channel go to the peer with their Tag set to tag. Inbound headers for tag
// arrive on the returned receive channel, which is closed when the link
// shuts down. Consumers should stop sending once Done is closed, and may
// close the send channel to stop forwarding.
//
// Registering a tag again returns the same pair. Inbound records are
// dispatched in order on one goroutine, so a consumer that stops draining
// its receive channel stalls every tag on the link once the buffer fills.
func (l *Link) Register(tag uint8) (chan<- Header, <-chan Header, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, nil, ErrLinkClosed
	}
	if ch, ok := l.channels[tag]; ok {
		return ch.out, ch.in, nil
	}

	ch := &channel{
		tag: tag,
		in:  make(chan Header, l.buffer),
		out: make(chan Header, l.buffer),
	}
	l.channels[tag] = ch

	l.pumps.Add(1)
	go l.pump(ch)

	logrus.WithFields(logrus.Fields{
		"function": "Link.Register",
		"link":     l.id.String(),
		"tag":      tag,
	}).Debug("Tag registered")
	return ch.out, ch.in, nil
}

// Send writes h to the peer directly, bypassing tag registration.
func (l *Link) Send(h Header) error {
	select {
	case <-l.closing:
		return ErrLinkClosed
	default:
	}
	return l.send(h)
}

func (l *Link) send(h Header) error {
	record, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	return l.conn.Send(record)
}

// Close shuts the link down and waits until teardown has finished. It is
// safe to call more than once.
func (l *Link) Close() error {
	l.shutdown(ErrLinkClosed)
	<-l.done
	return nil
}

// Done is closed once the link has fully shut down.
func (l *Link) Done() <-chan struct{} { return l.done }

// Err returns why the link shut down, or nil while it is running.
func (l *Link) Err() error {
	select {
	case <-l.done:
		return l.err
	default:
		return nil
	}
}

// shutdown records the first cause and closes the connection, which stops
// the reader.
func (l *Link) shutdown(cause error) {
	l.closeOnce.Do(func() {
		l.err = cause
		close(l.closing)
		if err := l.conn.Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Link.shutdown",
				"link":     l.id.String(),
			}).WithError(err).Debug("Closing connection")
		}
	})
}

func (l *Link) pump(ch *channel) {
	defer l.pumps.Done()

	for {
		select {
		case h, ok := <-ch.out:
			if !ok {
				return
			}
			h.Tag = ch.tag
			if err := l.send(h); err != nil {
				l.shutdown(fmt.Errorf("send on tag %d: %w", ch.tag, err))
				return
			}
		case <-l.closing:
			return
		}
	}
}

// run reads and routes records until the connection fails, then tears the
// link down.
func (l *Link) run() {
	fields := logrus.Fields{
		"function": "Link.run",
		"link":     l.id.String(),
		"peer":     l.key.String(),
	}
	logrus.WithFields(fields).
		WithFields(crypto.SecureFieldHash(l.RemoteStatic(), "remote_static")).
		Info("Link up")

	for {
		record, err := l.conn.Receive()
		if err != nil {
			l.shutdown(err)
			break
		}
		if err := l.dispatch(record); err != nil {
			l.shutdown(err)
			break
		}
	}

	l.teardown()
	logrus.WithFields(fields).WithError(l.err).Info("Link down")
}

// dispatch routes one inbound record. Only errors that end the link are
// returned.
func (l *Link) dispatch(record []byte) error {
	h, err := ParseHeader(record)
	if err != nil {
		return fmt.Errorf("decode record: %w", err)
	}

	l.mu.Lock()
	ch := l.channels[h.Tag]
	l.mu.Unlock()

	if ch != nil {
		select {
		case ch.in <- h:
			return nil
		case <-l.closing:
			return ErrLinkClosed
		}
	}

	fields := logrus.Fields{
		"function": "Link.dispatch",
		"link":     l.id.String(),
		"header":   h.String(),
	}
	if !h.IsRequest() {
		// Answering a response could bounce between two peers forever.
		logrus.WithFields(fields).Debug("Dropping response for unregistered tag")
		return nil
	}

	logrus.WithFields(fields).Debug("No consumer for tag, replying empty")
	if err := l.send(h.Reply(0, nil)); err != nil {
		return fmt.Errorf("reply on tag %d: %w", h.Tag, err)
	}
	return nil
}

func (l *Link) teardown() {
	if l.registry != nil {
		l.registry.Remove(l.key, l.id)
	}

	l.mu.Lock()
	l.closed = true
	channels := l.channels
	l.channels = make(map[uint8]*channel)
	l.mu.Unlock()

	l.pumps.Wait()
	for _, ch := range channels {
		close(ch.in)
	}
	close(l.done)
}
