// eqiva - command line interface for Eqiva Smart Radiator Thermostats
//
// Usage:
//
//	eqiva -t <mac|alias> [-t ...] <command> [args] [--output print|commands|json|none]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/eqiva-core/internal/cli"
)

// overridden during build
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCmd(cli.Options{Version: version})
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
