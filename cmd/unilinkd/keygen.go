package main

import (
	"encoding/hex"
	"fmt"

	"github.com/opd-ai/unilink/config"
	"github.com/opd-ai/unilink/crypto"
	"github.com/spf13/cobra"
)

var (
	keygenRole     string
	keygenListen   string
	keygenKeystore string
	keygenPSK      string
	keygenForce    bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create a node identity and write the config file",
	Long: `keygen generates a static X25519 key pair, stores it with the network
pre-shared key in the encrypted keystore and writes the config file.
Every node of a network must share the pre-shared key: pass --psk to join an
existing network, or omit it to start a new one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenRole != "" {
			role, err := config.ParseRole(keygenRole)
			if err != nil {
				return err
			}
			cfg.Role = role
		}
		if keygenListen != "" {
			cfg.Listen = keygenListen
		}
		if keygenKeystore != "" {
			cfg.KeystoreDir = keygenKeystore
		}

		id, err := crypto.GenerateIdentity()
		if err != nil {
			return err
		}
		defer id.Wipe()

		if keygenPSK != "" {
			raw, err := hex.DecodeString(keygenPSK)
			if err != nil {
				return fmt.Errorf("--psk: %w", err)
			}
			id.PSK, err = crypto.PSKFromBytes(raw)
			crypto.ZeroBytes(raw)
			if err != nil {
				return fmt.Errorf("--psk: %w", err)
			}
		}

		ks, err := openKeyStore()
		if err != nil {
			return err
		}
		defer ks.Close()

		if ks.HasIdentity() && !keygenForce {
			return fmt.Errorf("identity already exists in %s (use --force to replace it)", cfg.KeystoreDir)
		}
		if err := ks.StoreIdentity(id); err != nil {
			return err
		}
		if err := cfg.Save(configPath()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config:     %s\n", configPath())
		fmt.Fprintf(out, "keystore:   %s\n", cfg.KeystoreDir)
		fmt.Fprintf(out, "public key: %s\n", hex.EncodeToString(id.KeyPair.Public[:]))
		if keygenPSK == "" {
			fmt.Fprintf(out, "psk:        %s\n", hex.EncodeToString(id.PSK[:]))
		}
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenRole, "role", "", "node role: client, node, bridge or master")
	keygenCmd.Flags().StringVar(&keygenListen, "listen", "", "listen address (host:port)")
	keygenCmd.Flags().StringVar(&keygenKeystore, "keystore", "", "keystore directory")
	keygenCmd.Flags().StringVar(&keygenPSK, "psk", "", "network pre-shared key, 64 hex digits")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "replace an existing identity")
	rootCmd.AddCommand(keygenCmd)
}
