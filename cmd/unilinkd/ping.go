package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/opd-ai/unilink"
	"github.com/opd-ai/unilink/link"
	"github.com/spf13/cobra"
)

var (
	pingTag     uint8
	pingKind    uint16
	pingData    string
	pingTimeout time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping <host:port>",
	Short: "Dial a node, send one request and print the response",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
		defer cancel()

		id, err := loadIdentity()
		if err != nil {
			return err
		}
		defer id.Wipe()

		node, err := unilink.New(unilink.OptionsFromConfig(cfg, id))
		if err != nil {
			return err
		}
		defer node.Close()

		start := time.Now()
		l, err := node.Dial(ctx, args[0])
		if err != nil {
			return err
		}
		handshake := time.Since(start)

		out, in, err := l.Register(pingTag)
		if err != nil {
			return err
		}

		start = time.Now()
		select {
		case out <- link.Header{Way: true, Kind: pingKind, Data: []byte(pingData)}:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case h, ok := <-in:
			if !ok {
				return fmt.Errorf("link closed: %w", l.Err())
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "peer %s (%s)\n", l.Key(), hex.EncodeToString(l.RemoteStatic()))
			fmt.Fprintf(w, "%s data=%q\n", h, h.Data)
			fmt.Fprintf(w, "handshake %s, round trip %s\n", handshake.Round(time.Microsecond), time.Since(start).Round(time.Microsecond))
			if h.Kind == 0 {
				fmt.Fprintf(w, "no consumer on tag %d\n", pingTag)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	},
}

func init() {
	pingCmd.Flags().Uint8Var(&pingTag, "tag", 1, "tag to send on")
	pingCmd.Flags().Uint16Var(&pingKind, "kind", 1, "message kind")
	pingCmd.Flags().StringVar(&pingData, "data", "ping", "request payload")
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "overall timeout")
	rootCmd.AddCommand(pingCmd)
}
