package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/opd-ai/unilink"
	"github.com/opd-ai/unilink/link"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveEchoTag uint8

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a node: accept links and dial configured peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id, err := loadIdentity()
		if err != nil {
			return err
		}
		defer id.Wipe()

		opts := unilink.OptionsFromConfig(cfg, id)
		opts.OnLink = func(l *link.Link) { echo(l, serveEchoTag) }

		node, err := unilink.New(opts)
		if err != nil {
			return err
		}
		defer node.Close()

		ln, err := node.Listen(cfg.Listen)
		if err != nil {
			return err
		}
		if err := rememberPort(ln.Addr()); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "serve",
			}).WithError(err).Warn("Could not record bound port")
		}

		for _, p := range cfg.Peers {
			go dialPeer(ctx, node, p.Address)
		}

		logrus.WithFields(logrus.Fields{
			"function": "serve",
			"role":     cfg.Role.String(),
			"address":  ln.Addr().String(),
			"echo_tag": serveEchoTag,
		}).Info("Serving")

		err = node.Serve(ctx, ln)
		if errors.Is(err, context.Canceled) || errors.Is(err, unilink.ErrNodeClosed) {
			return nil
		}
		return err
	},
}

func init() {
	serveCmd.Flags().Uint8Var(&serveEchoTag, "echo-tag", 1, "tag answered by the built-in echo consumer")
	rootCmd.AddCommand(serveCmd)
}

// rememberPort writes an ephemeral listen port back to the config file so
// the node keeps its address across restarts.
func rememberPort(addr net.Addr) error {
	host, port, err := net.SplitHostPort(cfg.Listen)
	if err != nil || port != "0" {
		return err
	}
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil
	}
	cfg.Listen = net.JoinHostPort(host, strconv.Itoa(tcp.Port))
	return cfg.Save(configPath())
}

func dialPeer(ctx context.Context, node *unilink.Node, addr string) {
	fields := logrus.Fields{
		"function": "dialPeer",
		"peer":     addr,
	}
	l, err := node.Dial(ctx, addr)
	if err != nil {
		logrus.WithFields(fields).WithError(err).Warn("Dial failed")
		return
	}
	logrus.WithFields(fields).WithField("link", l.ID().String()).Info("Peer linked")
}

// echo answers every request on tag with the same kind and data.
func echo(l *link.Link, tag uint8) {
	out, in, err := l.Register(tag)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "echo",
			"tag":      tag,
		}).WithError(err).Warn("Echo consumer not registered")
		return
	}
	go func() {
		for h := range in {
			if !h.IsRequest() {
				continue
			}
			select {
			case out <- h.Reply(h.Kind, h.Data):
			case <-l.Done():
				return
			}
		}
	}()
}
