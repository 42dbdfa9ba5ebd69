// Package unilink runs a node of an encrypted, multiplexed peer-to-peer
// link network.
//
// Every TCP connection starts with a one-byte pattern identifier followed
// by a Noise_XXpsk3_25519_ChaChaPoly_BLAKE2s handshake. Both peers must hold
// the same 32-byte pre-shared key. Afterwards the connection carries
// length-prefixed records, each decoding to a link.Header whose tag selects
// one of up to 256 logical channels.
//
// # Getting Started
//
//	id, err := crypto.GenerateIdentity()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	options := unilink.NewOptions()
//	options.Identity = id
//	options.OnLink = func(l *link.Link) {
//	    out, in, _ := l.Register(1)
//	    go func() {
//	        for h := range in {
//	            if h.IsRequest() {
//	                out <- h.Reply(h.Kind, h.Data)
//	            }
//	        }
//	    }()
//	}
//
//	node, err := unilink.New(options)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	ln, err := node.Listen(":7000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go node.Serve(ctx, ln)
//
//	l, err := node.Dial(ctx, "peer.example.net:7000")
//
// # Packages
//
//   - noise: sessions, the pattern registry and the handshake engine
//   - transport: framing, the preamble and the encrypted record channel
//   - link: the header codec, per-peer links and the link registry
//   - crypto: key pairs, pre-shared keys and the encrypted key store
//   - config: YAML node configuration
//
// Tags with no consumer answer requests with an empty response of kind 0.
// Responses for such tags are dropped.
package unilink
