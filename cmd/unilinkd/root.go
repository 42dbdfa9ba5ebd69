package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/opd-ai/unilink/config"
	"github.com/opd-ai/unilink/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const passphraseEnv = "UNILINK_PASSPHRASE"

var (
	// Global flags
	cfgFile        string
	logLevel       string
	passphraseFile string

	// Set during PersistentPreRun
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "unilinkd",
	Short: "Encrypted, multiplexed peer links over Noise XXpsk3",
	Long: `unilinkd runs a unilink node: it accepts and dials TCP connections,
secures each with a Noise_XXpsk3_25519_ChaChaPoly_BLAKE2s handshake keyed by
a network pre-shared key, and multiplexes tagged channels over every link.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)
		logrus.SetOutput(cmd.ErrOrStderr())
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.unilink/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&passphraseFile, "passphrase-file", "", "file holding the keystore passphrase (default $"+passphraseEnv+")")
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func passphrase() ([]byte, error) {
	if passphraseFile != "" {
		data, err := os.ReadFile(passphraseFile)
		if err != nil {
			return nil, err
		}
		return bytes.TrimRight(data, "\r\n"), nil
	}
	if p := os.Getenv(passphraseEnv); p != "" {
		return []byte(p), nil
	}
	return nil, errors.New("no keystore passphrase: set " + passphraseEnv + " or --passphrase-file")
}

func openKeyStore() (*crypto.EncryptedKeyStore, error) {
	pass, err := passphrase()
	if err != nil {
		return nil, err
	}
	return crypto.NewEncryptedKeyStore(cfg.KeystoreDir, pass)
}

func loadIdentity() (*crypto.Identity, error) {
	ks, err := openKeyStore()
	if err != nil {
		return nil, err
	}
	defer ks.Close()

	if !ks.HasIdentity() {
		return nil, fmt.Errorf("no identity in %s: run keygen first", cfg.KeystoreDir)
	}
	return ks.LoadIdentity()
}
