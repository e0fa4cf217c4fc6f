// Command warp-map runs the warp rendezvous server: it accepts
// RegisterRequest/MappingRequest traffic from warp clients and tells each
// peer how to reach the other.
package main

import (
	"context"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/rendezvous"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// DefaultClientExpiry is how stale a client's last-seen address may be
// before it is dropped from the set get_addresses returns.
const DefaultClientExpiry = 60 * time.Second

var opt struct {
	BindAddr   string
	PrivateKey string
	ExpirySecs uint
	Verbose    bool
	Help       bool
}

func init() {
	pflag.StringVarP(&opt.BindAddr, "bind", "b", "0.0.0.0:13116", "Address to bind the rendezvous UDP socket to")
	pflag.StringVarP(&opt.PrivateKey, "private-key", "k", "", "Base32-Crockford-encoded server private key (required)")
	pflag.UintVarP(&opt.ExpirySecs, "client-expiry", "e", uint(DefaultClientExpiry/time.Second), "How many seconds a client's last-seen address stays valid")
	pflag.BoolVarP(&opt.Verbose, "verbose", "v", false, "Enable verbose logging")
	pflag.BoolVarP(&opt.Help, "help", "h", false, "Show this help text")
}

func main() {
	pflag.Parse()
	if opt.Help {
		fmt.Printf("usage: %s [options]\n\noptions:\n%s", os.Args[0], pflag.CommandLine.FlagUsages())
		os.Exit(0)
	}

	bindAddr, err := netip.ParseAddrPort(opt.BindAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --bind address %q: %v\n", opt.BindAddr, err)
		os.Exit(1)
	}
	if opt.PrivateKey == "" {
		fmt.Fprintln(os.Stderr, "error: --private-key is required")
		os.Exit(1)
	}
	self, err := wirecrypto.ParsePrivateKey(opt.PrivateKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --private-key: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewVerboseStdLogger(opt.Verbose)

	srv, err := rendezvous.NewServer(bindAddr, self, time.Duration(opt.ExpirySecs)*time.Second, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: start rendezvous server: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
