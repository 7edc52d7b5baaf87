package client

import (
	"context"
	"fmt"
	"net"

	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// Run loads cfg from path, authorizes against the edge, starts the
// worker pool, creates every configured tunnel, then blocks until ctx
// is cancelled, at which point it sends goodbye. This mirrors
// original_source/client/src/main.rs's top-level sequence.
func Run(ctx context.Context, logger rpshare.Logger, path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		return err
	}
	if len(cfg.Tunnels) == 0 {
		return fmt.Errorf("no tunnels defined in %s: %w", path, ErrConfig)
	}
	logger.ILogf("booting with %d tunnels...", len(cfg.Tunnels))

	api := newControlClient(cfg)

	logger.ILogf("contacting edge server at %s...", cfg.Edge)
	ok, err := api.CheckAuthorization()
	if err != nil {
		return fmt.Errorf("client: check_authorization: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}

	workerPort, err := api.Connect()
	if err != nil {
		return fmt.Errorf("client: connect: %w", err)
	}
	logger.ILogf("connecting to edge worker server at port %d...", workerPort)

	edgeWorkerAddr := net.JoinHostPort(cfg.EdgeIP, fmt.Sprintf("%d", workerPort))
	pool := NewWorkerPool(logger, edgeWorkerAddr, cfg.SecretKey, cfg.IdleWorkers)
	pool.Run(ctx)

	for id, tunnel := range cfg.Tunnels {
		status, target, err := api.CreateEdge(id, tunnel)
		if err != nil {
			return fmt.Errorf("client: create_edge %s: %w", id, err)
		}
		if status != "ok" {
			return fmt.Errorf("client: failed to create tunnel %s (proto=%s, mode=%s), status: %s", id, tunnel.Protocol, tunnel.Mode, status)
		}
		logger.ILogf("tunnel %s (proto=%s, mode=%s) created successfully -> %s", id, tunnel.Protocol, tunnel.Mode, target)
	}

	<-ctx.Done()
	logger.ILogf("shutting down...")

	status, err := api.Goodbye()
	if err != nil {
		return fmt.Errorf("client: goodbye: %w", err)
	}
	logger.ILogf("edge server said: %s", status)
	return nil
}
