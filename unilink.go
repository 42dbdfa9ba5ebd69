package unilink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/opd-ai/unilink/config"
	"github.com/opd-ai/unilink/crypto"
	"github.com/opd-ai/unilink/link"
	"github.com/opd-ai/unilink/noise"
	"github.com/opd-ai/unilink/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNodeClosed is returned by Serve and Dial after Close.
var ErrNodeClosed = errors.New("unilink: node closed")

// Options configures a Node.
type Options struct {
	// Identity holds the static key pair and the network pre-shared key.
	Identity *crypto.Identity
	// Pattern is the handshake pattern announced when dialing.
	Pattern noise.PatternID
	// HandshakeTimeout bounds the preamble and handshake of each connection.
	HandshakeTimeout time.Duration
	// MaxFrameSize caps inbound frames. A record whose sealed size exceeds
	// the receiver's cap tears the link down, and the sender's Send cannot
	// see that cap, so every node on a network should use the same value.
	MaxFrameSize uint32
	// ChannelBuffer is the inbound queue length of each registered tag.
	ChannelBuffer int
	// OnLink is called for every new link, inbound or outbound, before it
	// starts reading. Register tags here.
	OnLink func(*link.Link)
}

// NewOptions returns options with the configuration defaults. The caller
// must still supply an Identity.
func NewOptions() *Options {
	return &Options{
		Pattern:          noise.PatternXXpsk3,
		HandshakeTimeout: config.DefaultHandshakeTimeout,
		MaxFrameSize:     config.DefaultMaxFrameSize,
		ChannelBuffer:    config.DefaultChannelBuffer,
	}
}

// OptionsFromConfig builds options from a loaded configuration.
func OptionsFromConfig(cfg *config.Config, id *crypto.Identity) *Options {
	return &Options{
		Identity:         id,
		Pattern:          noise.PatternID(cfg.Pattern),
		HandshakeTimeout: cfg.HandshakeTimeout,
		MaxFrameSize:     cfg.MaxFrameSize,
		ChannelBuffer:    cfg.ChannelBuffer,
	}
}

// Node accepts and dials secured connections and keeps one Link per peer.
type Node struct {
	opts     Options
	keys     noise.Keys
	public   [crypto.KeySize]byte
	registry *link.Registry

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	closed    bool
}

// New validates options and creates a node.
func New(options *Options) (*Node, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.Identity == nil || options.Identity.KeyPair == nil {
		return nil, errors.New("unilink: identity is required")
	}
	if _, err := noise.Lookup(options.Pattern); err != nil {
		return nil, err
	}

	opts := *options
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = config.DefaultHandshakeTimeout
	}

	kp := opts.Identity.KeyPair
	n := &Node{
		opts: opts,
		keys: noise.Keys{
			StaticPrivate: append([]byte(nil), kp.Private[:]...),
			PSK:           append([]byte(nil), opts.Identity.PSK[:]...),
		},
		public:    kp.Public,
		registry:  link.NewRegistry(),
		listeners: make(map[net.Listener]struct{}),
	}

	// Catch a bad key here rather than on the first connection.
	if _, err := noise.NewSession(opts.Pattern, n.keys, noise.Initiator); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"pattern":  uint8(opts.Pattern),
	}).WithFields(crypto.SecureFieldHash(n.public[:], "public_key")).Info("Node created")
	return n, nil
}

// PublicKey returns the node's static public key.
func (n *Node) PublicKey() [crypto.KeySize]byte { return n.public }

// Registry returns the node's link registry.
func (n *Node) Registry() *link.Registry { return n.registry }

// Links returns a snapshot of the live links.
func (n *Node) Links() []*link.Link { return n.registry.Links() }

// Link returns the live link to a peer.
func (n *Node) Link(key link.PeerKey) (*link.Link, bool) { return n.registry.Get(key) }

// Drop closes the link to a peer.
func (n *Node) Drop(key link.PeerKey) bool { return n.registry.Drop(key) }

// Listen opens a TCP listener on addr for use with Serve.
func (n *Node) Listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Node.Listen",
		"address":  ln.Addr().String(),
	}).Info("Listening")
	return ln, nil
}

// Serve accepts connections on ln until ctx is done or the node is closed.
// Each connection is handshaken as responder on its own goroutine and, on
// success, becomes a Link. Serve closes ln before returning.
func (n *Node) Serve(ctx context.Context, ln net.Listener) error {
	if !n.track(ln) {
		ln.Close()
		return ErrNodeClosed
	}
	defer n.untrack(ln)

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, func() { ln.Close() })
	defer stop()

	var err error
	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			err = n.acceptError(ctx, acceptErr)
			break
		}
		g.Go(func() error {
			n.serveConn(gctx, conn)
			return nil
		})
	}

	ln.Close()
	g.Wait()
	return err
}

func (n *Node) acceptError(ctx context.Context, err error) error {
	if n.isClosed() {
		return ErrNodeClosed
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("accept: %w", err)
}

func (n *Node) serveConn(ctx context.Context, conn net.Conn) {
	fields := logrus.Fields{
		"function": "Node.serveConn",
		"remote":   conn.RemoteAddr().String(),
	}

	l, err := n.secure(ctx, conn, noise.Responder)
	if err != nil {
		logrus.WithFields(fields).WithError(err).Warn("Inbound connection rejected")
		return
	}
	logrus.WithFields(fields).WithField("link", l.ID().String()).Debug("Inbound link open")
}

// Dial connects to addr, handshakes as initiator and returns the new Link.
func (n *Node) Dial(ctx context.Context, addr string) (*link.Link, error) {
	if n.isClosed() {
		return nil, ErrNodeClosed
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return n.secure(ctx, conn, noise.Initiator)
}

// secure runs the handshake on conn under the handshake timeout and ctx,
// then opens a Link. conn is closed on any error.
func (n *Node) secure(ctx context.Context, conn net.Conn, role noise.Role) (*link.Link, error) {
	key, err := link.PeerKeyFromAddr(conn.RemoteAddr())
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := conn.SetDeadline(time.Now().Add(n.opts.HandshakeTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	// Cancelling ctx interrupts a handshake blocked on I/O.
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Unix(1, 0)) })

	sc, err := transport.Handshake(conn, transport.HandshakeConfig{
		Role:         role,
		Pattern:      n.opts.Pattern,
		Keys:         n.keys,
		MaxFrameSize: n.opts.MaxFrameSize,
	})
	if !stop() {
		err = errors.Join(ctx.Err(), err)
	}
	if err == nil {
		err = conn.SetDeadline(time.Time{})
	}
	if err != nil {
		conn.Close()
		return nil, err
	}

	return n.registry.Open(key, sc, link.Options{
		ChannelBuffer: n.opts.ChannelBuffer,
		OnOpen:        n.opts.OnLink,
	})
}

func (n *Node) track(ln net.Listener) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	n.listeners[ln] = struct{}{}
	return true
}

func (n *Node) untrack(ln net.Listener) {
	n.mu.Lock()
	delete(n.listeners, ln)
	n.mu.Unlock()
}

func (n *Node) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

// Close stops every Serve loop and closes every link. It is safe to call
// more than once.
func (n *Node) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	listeners := make([]net.Listener, 0, len(n.listeners))
	for ln := range n.listeners {
		listeners = append(listeners, ln)
	}
	n.mu.Unlock()

	for _, ln := range listeners {
		ln.Close()
	}
	err := n.registry.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Node.Close",
	}).Info("Node closed")
	return err
}
