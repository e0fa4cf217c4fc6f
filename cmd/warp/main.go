// Command warp runs the warp tunnel core: it scans local interfaces,
// registers them with a warp-map rendezvous server, and accelerates
// application traffic to a single far peer over the resulting paths.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/a7g4/warp/internal/config"
	"github.com/a7g4/warp/internal/core"
	"github.com/a7g4/warp/internal/logging"
)

var opt struct {
	ConfigPath string
	Verbose    bool
	Help       bool
}

func init() {
	pflag.StringVarP(&opt.ConfigPath, "config", "c", "warp.json", "Path to the warp configuration file")
	pflag.BoolVarP(&opt.Verbose, "verbose", "v", false, "Enable verbose logging")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}

	cfg, err := config.Load(opt.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewVerboseStdLogger(opt.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := core.Run(ctx, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
