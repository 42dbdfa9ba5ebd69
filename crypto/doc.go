// Package crypto holds the key material a unilink node carries between runs.
//
// A node is identified by a static X25519 [KeyPair] and admitted to a
// network by a 32-byte [PreSharedKey]. Both are bundled as an [Identity] and
// persisted in an [EncryptedKeyStore], a directory of AES-256-GCM sealed
// files keyed by a PBKDF2-derived passphrase key.
//
// Example:
//
//	ks, err := crypto.NewEncryptedKeyStore(dir, []byte(passphrase))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ks.Close()
//
//	id, err := ks.LoadIdentity()
//	if err != nil {
//	    id, _ = crypto.GenerateIdentity()
//	    _ = ks.StoreIdentity(id)
//	}
//
// The handshake and record layers never see this package's file formats;
// they receive the private key and pre-shared key as plain byte buffers.
package crypto
