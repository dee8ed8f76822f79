package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/bci/internal/adapters/speller"
	"github.com/okian/bci/pkg/logger"
)

func newSpellerCmd(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "speller",
		Short: "Listen for speller packets and print completed phrases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := setup(ctx, opts)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Speller.Addr
			}
			l := speller.NewListener(addr, speller.WithLogger(logger.Get().Named("speller")))
			if err := l.Bind(); err != nil {
				return err
			}
			return runSpeller(ctx, l, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "UDP listen address (default from speller.addr)")
	return cmd
}

// runSpeller prints phrases from l until ctx ends or the listener fails.
func runSpeller(ctx context.Context, l *speller.Listener, out io.Writer) error {
	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(ctx) }()
	defer l.Close()

	for {
		select {
		case phrase := <-l.Phrases():
			fmt.Fprintln(out, phrase)
		case err := <-runErr:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
