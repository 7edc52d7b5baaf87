// Command edge runs the publicly reachable half of the revtun tunnel:
// the control-plane API, the worker server, and the tunnel listeners it
// spawns on demand.
package main

import (
	"fmt"
	"os"

	"github.com/halcyonlabs/revtun/internal/edge/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
