package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/agentcore/pkg/agent"
	"github.com/nstogner/agentcore/pkg/events"
	"github.com/nstogner/agentcore/pkg/logging"
	"github.com/nstogner/agentcore/pkg/server"
	"github.com/nstogner/agentcore/pkg/tools"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API and agent websocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags, logging.Options{Stderr: cmd.ErrOrStderr()}, true)
			if err != nil {
				return err
			}
			defer a.Close()
			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			// Nobody can answer an approval prompt over the websocket.
			var approver tools.Approver
			if a.cfg.Tools.RequireApproval {
				a.logger.Warn("Tool approval is not available when serving, risky tools will be denied")
				approver = tools.ApproverFunc(func(context.Context, string, map[string]any) (bool, error) {
					return false, nil
				})
			}

			srv := server.New(a.store, func(_ context.Context, sessionID string, sink events.Sink) (*agent.Agent, error) {
				return a.newAgent(sessionID, sink, approver)
			}, a.logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Start(addr)
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
				defer cancel()
				a.logger.Info("Shutting down server")
				return srv.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
