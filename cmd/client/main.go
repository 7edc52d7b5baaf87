// Command client runs the behind-NAT half of the revtun tunnel: it
// dials out to an edge process, parks a pool of worker connections, and
// registers the tunnels listed in its config file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/halcyonlabs/revtun"
	"github.com/halcyonlabs/revtun/internal/client"
	"github.com/halcyonlabs/revtun/internal/rpshare"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the client TOML config file")
	verbose := flag.Bool("v", false, "enable debug-level logging")
	version := flag.Bool("version", false, "print the client binary's version and exit")
	flag.Parse()

	if *version {
		fmt.Println(revtun.Version)
		return
	}

	level := rpshare.LogLevelInfo
	if *verbose {
		level = rpshare.LogLevelDebug
	}
	logger := rpshare.NewLogger("client", level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Run(ctx, logger, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
