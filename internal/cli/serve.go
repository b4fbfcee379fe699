package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellar-expert/relgraph/internal/server"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// serveOpts holds the command-line flags for the serve command.
type serveOpts struct {
	addr    string
	noCache bool
}

// serveCommand creates the serve command, which exposes exploration
// sessions over HTTP and websockets.
func (c *CLI) serveCommand() *cobra.Command {
	var opts serveOpts

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the relation graph API",
		Long: `Serve the relation graph API.

Every client opens a session seeded with an account, a shareable link or a
saved snapshot, reads the displayed graph as JSON or SVG, sends commands and
follows changes over a websocket. Snapshots go to MongoDB when
storage.mongo_uri is configured and to local JSON files otherwise.`,
		Example: `  relgraph serve
  relgraph serve --addr 127.0.0.1:9000 --network testnet`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.addr == "" {
				opts.addr = c.cfg.Server.Addr
			}
			return c.runServe(cmd.Context(), &opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable the page cache")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, opts *serveOpts) error {
	logger := loggerFromContext(ctx)

	client, closeFn, err := c.newClient(ctx, opts.noCache, false)
	if err != nil {
		return err
	}
	defer closeFn()

	store, err := c.newStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close snapshot store", "err", err)
		}
	}()

	srv := server.New(client, store, logger, server.Config{
		Network:       c.cfg.API.Network,
		PageSize:      c.cfg.API.PageSize,
		FetchInterval: c.cfg.Server.FetchInterval.Duration,
		FetchBurst:    c.cfg.Server.FetchBurst,
		SessionTTL:    c.cfg.Server.SessionTTL.Duration,
	})
	defer srv.Close()
	go srv.ExpireSessions(ctx)

	lis, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(lis)
	}()
	logger.Info("relgraph server listening", "addr", lis.Addr().String(), "network", c.cfg.API.Network)
	printNextStep("Open a session", "curl -X POST http://"+lis.Addr().String()+"/api/sessions -d '{\"address\":\"G...\"}'")

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
	}
	logger.Info("shutdown complete")
	return nil
}
