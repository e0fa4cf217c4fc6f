// Package core wires together the interface manager, warp accelerator, RX
// processor, and rendezvous registration tasks into the single process
// described by spec.md §3/§5: the warp core runtime.
package core

import (
	"context"
	"crypto/cipher"
	"fmt"
	"net"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/a7g4/warp/internal/accelerator"
	"github.com/a7g4/warp/internal/config"
	"github.com/a7g4/warp/internal/gate"
	"github.com/a7g4/warp/internal/ifacemgr"
	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/routing"
	"github.com/a7g4/warp/internal/rxdemux"
	"github.com/a7g4/warp/internal/watch"
	"github.com/a7g4/warp/internal/wire"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// DefaultHolepunchKeepAliveInterval is the override_sender_task's period
// when cfg.Interfaces.HolepunchKeepAliveInterval is unset.
const DefaultHolepunchKeepAliveInterval = 15 * time.Second

// shutdownDrainDelay bounds how long Run waits after broadcasting
// DeregisterRequests before tearing down the interfaces that carried them,
// giving the datagrams a chance to actually reach the wire.
const shutdownDrainDelay = 100 * time.Millisecond

// interfaceSource is the subset of *ifacemgr.Scanner the override-sender
// task and graceful shutdown need.
type interfaceSource interface {
	Interfaces() *watch.Watch[[]*ifacemgr.Interface]
}

// Run derives the process's ciphers and routing state from cfg, starts the
// interface scanner, the warp accelerator, the RX processor, and the
// hole-punch keep-alive task, and blocks until ctx is cancelled. On
// cancellation it broadcasts a DeregisterRequest on every alive interface,
// waits briefly for it to reach the wire, then tears everything down and
// returns once every task has exited.
func Run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	rendezvousCipher, err := wirecrypto.DeriveCipher(cfg.PrivateKey, cfg.WarpMap.PublicKey)
	if err != nil {
		return fmt.Errorf("deriving rendezvous cipher: %w", err)
	}
	peerCipher, err := wirecrypto.DeriveCipher(cfg.PrivateKey, cfg.FarGate.PublicKey)
	if err != nil {
		return fmt.Errorf("deriving peer cipher: %w", err)
	}

	include, err := cfg.Interfaces.CompiledInclusionPatterns()
	if err != nil {
		return fmt.Errorf("interfaces.inclusion_patterns: %w", err)
	}
	exclude, err := cfg.Interfaces.CompiledExclusionPatterns()
	if err != nil {
		return fmt.Errorf("interfaces.exclusion_patterns: %w", err)
	}

	rs := routing.New()
	ingress := queue.NewUnbounded[ifacemgr.RecvItem]()

	scanner := ifacemgr.NewScanner(ifacemgr.Config{
		ScanInterval:           cfg.Interfaces.ScanInterval.Duration(),
		MaxConsecutiveFailures: cfg.Interfaces.MaxConsecutiveFailures,
		Include:                include,
		Exclude:                exclude,
		BindToDevice:           cfg.Interfaces.BindToDevice,
		Registration: ifacemgr.RegistrationConfig{
			RendezvousAddr: cfg.WarpMap.Address,
			RendezvousPub:  cfg.WarpMap.PublicKey,
			Self:           cfg.PrivateKey,
			FarPeerPub:     cfg.FarGate.PublicKey,
		},
	}, ingress, logger)

	accelInbound := queue.NewUnbounded[accelerator.Item]()
	accel := accelerator.New(peerCipher, scanner, rs, accelInbound, logger)

	// runCtx is cancelled only after graceful shutdown has broadcast every
	// interface's DeregisterRequest; it must outlive ctx itself.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	gates, err := buildGates(runCtx, cfg.Tunnels, accelInbound, logger)
	if err != nil {
		return err
	}

	rx := rxdemux.New(cfg.WarpMap.Address, rendezvousCipher, peerCipher, rs, scanner, gates, ingress, logger)

	holepunchInterval := cfg.Interfaces.HolepunchKeepAliveInterval.Duration()
	if holepunchInterval <= 0 {
		holepunchInterval = DefaultHolepunchKeepAliveInterval
	}

	eg, egCtx := errgroup.WithContext(runCtx)
	eg.Go(func() error { scanner.Run(egCtx); return nil })
	eg.Go(func() error { accel.Run(egCtx); return nil })
	eg.Go(func() error { rx.Run(egCtx); return nil })
	eg.Go(func() error {
		runOverrideSender(egCtx, holepunchInterval, peerCipher, scanner, rs, logger)
		return nil
	})

	<-ctx.Done()
	logger.Infof("core: shutdown requested, deregistering from rendezvous")

	deregisterAll(scanner, cfg.PrivateKey, cfg.WarpMap.Address, rendezvousCipher, logger)
	time.Sleep(shutdownDrainDelay)

	cancelRun()
	for _, g := range gates {
		g.Close()
	}
	ingress.Close()
	accelInbound.Close()

	return eg.Wait()
}

func buildGates(ctx context.Context, tunnels map[string]config.TunnelConfig, egress *queue.Unbounded[accelerator.Item], logger logging.Logger) (map[protocol.TunnelID]*gate.Gate, error) {
	gates := make(map[protocol.TunnelID]*gate.Gate, len(tunnels))
	for name, t := range tunnels {
		tunnelID := config.WireTunnelID(name, t)
		gcfg := gate.Config{TunnelID: tunnelID, SendDeadline: t.Transport.SendDeadline.Duration(), MTU: int(t.Transport.MTU)}

		switch {
		case t.Gate.Loopback != nil:
			var fixed net.Addr
			if t.Gate.Loopback.GateToApplication != nil {
				fixed = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(*t.Gate.Loopback.GateToApplication)}
			}
			gcfg.Loopback = &gate.LoopbackConfig{Port: int(t.Gate.Loopback.ApplicationToGate), FixedDestination: fixed}
		case t.Gate.Unix != nil:
			gcfg.Unix = &gate.UnixConfig{Path: t.Gate.Unix.Path}
		default:
			return nil, fmt.Errorf("tunnel %q: gate config specifies neither loopback nor unix", name)
		}

		g, err := gate.New(ctx, gcfg, egress, logger)
		if err != nil {
			return nil, fmt.Errorf("tunnel %q: %w", name, err)
		}
		gates[tunnelID] = g
	}
	return gates, nil
}

// runOverrideSender periodically tells the far peer which address to reach
// each of our alive interfaces at, once that interface's external address is
// known. This keeps NAT mappings warm and propagates address changes without
// waiting for the next registration cycle (spec.md §5, hole-punch keep-alive).
func runOverrideSender(ctx context.Context, interval time.Duration, peerCipher cipher.AEAD, ifaces interfaceSource, rs *routing.State, logger logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			broadcastOverrides(peerCipher, ifaces, rs, logger)
		}
	}
}

func broadcastOverrides(peerCipher cipher.AEAD, ifaces interfaceSource, rs *routing.State, logger logging.Logger) {
	for _, iface := range ifaces.Interfaces().Get() {
		if !iface.IsAlive() {
			continue
		}
		external := iface.ExternalAddr().Get()
		if !external.IsValid() {
			continue
		}

		msg := protocol.PeerAddressOverride{Replace: external}
		wm, err := wire.Encrypt(peerCipher, msg)
		if err != nil {
			logger.Warnf("core: encoding peer address override for %s: %v", iface.Name(), err)
			continue
		}
		data := wire.Append(nil, wm)

		for _, addr := range rs.ResolvePeerAddresses(iface.Name()) {
			iface.Outbound().Push(ifacemgr.SendItem{To: addr, Data: data})
		}
	}
}

// deregisterAll broadcasts a DeregisterRequest to the rendezvous on every
// alive interface (spec.md §5: "each interface issues a DeregisterRequest...
// before termination").
func deregisterAll(ifaces interfaceSource, self wirecrypto.PrivateKey, rendezvousAddr netip.AddrPort, rendezvousCipher cipher.AEAD, logger logging.Logger) {
	req := protocol.DeregisterRequest{PubKey: self.PublicKey(), Timestamp: protocol.Now()}
	wm, err := wire.Encrypt(rendezvousCipher, req)
	if err != nil {
		logger.Warnf("core: encoding deregister request: %v", err)
		return
	}
	data := wire.Append(nil, wm)

	for _, iface := range ifaces.Interfaces().Get() {
		if !iface.IsAlive() {
			continue
		}
		iface.Outbound().Push(ifacemgr.SendItem{To: rendezvousAddr, Data: data})
	}
}
