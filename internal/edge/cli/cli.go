// Package cli implements the edge binary's command surface with
// github.com/alecthomas/kong: `serve`, `add-user`, `delete-user`.
package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/jpillora/requestlog"

	"github.com/halcyonlabs/revtun"
	"github.com/halcyonlabs/revtun/internal/edge"
	"github.com/halcyonlabs/revtun/internal/edge/api"
	"github.com/halcyonlabs/revtun/internal/rpshare"
)

// CLI is the root command set for cmd/edge.
type CLI struct {
	Config  string           `help:"Path to the edge TOML config file." default:"edge.toml" type:"path"`
	Verbose bool             `help:"Enable debug-level logging." short:"v"`
	Version kong.VersionFlag `help:"Print the edge binary's version and exit."`
	Serve   ServeCmd         `cmd:"" help:"Run the control plane, worker server and tunnel listeners."`

	AddUser    AddUserCmd    `cmd:"add-user" help:"Create a new secret and persist it to the config file."`
	DeleteUser DeleteUserCmd `cmd:"delete-user" help:"Remove a secret by name or key."`
}

// Execute parses os.Args and runs the matched subcommand.
func Execute() error {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("edge"),
		kong.Description("Publicly reachable half of the revtun tunnel."),
		kong.UsageOnError(),
		kong.Vars{"version": revtun.Version},
	)
	return ctx.Run(&cli)
}

func (c *CLI) logger() rpshare.Logger {
	level := rpshare.LogLevelInfo
	if c.Verbose {
		level = rpshare.LogLevelDebug
	}
	return rpshare.NewLogger("edge", level)
}

// ServeCmd runs the edge process: worker server, listener manager, and
// control-plane HTTP API, until it receives SIGINT or SIGTERM.
type ServeCmd struct{}

func (s *ServeCmd) Run(c *CLI) error {
	logger := c.logger()

	cfg, err := edge.LoadConfig(c.Config)
	if err != nil {
		return err
	}

	users := cfg.Secrets
	state := edge.NewState(logger, users)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state.Manager.Run(ctx)

	workerServer := edge.NewWorkerServer(logger, state)
	workerPort, err := workerServer.Start()
	if err != nil {
		return err
	}
	logger.ILogf("worker server listening on port %d", workerPort)

	a := api.New(logger, state, workerPort)
	var handler http.Handler = a.Router()
	if c.Verbose {
		handler = requestlog.Wrap(handler)
	}

	httpServer := rpshare.NewHTTPServer(logger)
	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.ILogf("control plane listening on %s", addr)
	return httpServer.ListenAndServe(ctx, addr, handler)
}

// AddUserCmd creates a new secret with a random 32-byte hex key and
// persists it to the config file, matching
// original_source/edge/src/cli/add_user.rs's default and key format.
type AddUserCmd struct {
	Name       string `arg:"" help:"Name of the new user."`
	MaxTunnels uint   `help:"Maximum concurrent tunnels for this user." default:"5"`
}

func (a *AddUserCmd) Run(c *CLI) error {
	cfg, err := edge.LoadConfig(c.Config)
	if err != nil {
		return err
	}
	if _, exists := cfg.Secrets[a.Name]; exists {
		return fmt.Errorf("edge: user %q already exists", a.Name)
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return fmt.Errorf("edge: generate key: %w", err)
	}
	key := hex.EncodeToString(keyBytes)

	cfg.Secrets[a.Name] = edge.PersistedUser{MaxTunnels: a.MaxTunnels, Key: key}
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Printf("created user %q with key %s\n", a.Name, key)
	return nil
}

// DeleteUserCmd removes a secret looked up by name or by key.
type DeleteUserCmd struct {
	NameOrKey string `arg:"" help:"The user's name or key."`
}

func (d *DeleteUserCmd) Run(c *CLI) error {
	cfg, err := edge.LoadConfig(c.Config)
	if err != nil {
		return err
	}

	name := d.NameOrKey
	if _, ok := cfg.Secrets[name]; !ok {
		name = ""
		for n, u := range cfg.Secrets {
			if u.Key == d.NameOrKey {
				name = n
				break
			}
		}
		if name == "" {
			return fmt.Errorf("edge: no user matching %q", d.NameOrKey)
		}
	}

	delete(cfg.Secrets, name)
	return cfg.Save()
}
