// Command unilinkd runs and exercises unilink nodes.
//
// Usage:
//
//	unilinkd keygen --config node.yaml --listen :7000
//	unilinkd serve --config node.yaml
//	unilinkd ping --config client.yaml 192.0.2.7:7000
//
// The keystore passphrase is read from the UNILINK_PASSPHRASE environment
// variable or from the file named by --passphrase-file.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
