// Package ifacemgr implements the interface manager of spec.md §4.3: it
// scans the host's local IPv4 interfaces, binds a UDP socket per interface,
// and drives that interface's registration/receiver/sender tasks for as
// long as the interface stays live.
package ifacemgr

import (
	"context"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/watch"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// defaultSendTimeout is the fallback upper bound on a single send_to call
// when the caller supplies no deadline (spec.md §5, "Timeouts").
const defaultSendTimeout = 100 * time.Millisecond

// RecvItem is what the receiver task pushes into the global ingress queue
// for every datagram read off an interface's socket.
type RecvItem struct {
	From         netip.AddrPort
	ReceiverAddr netip.AddrPort
	ReceiverName string
	Data         []byte
}

// SendItem is what the sender task consumes from an interface's outbound
// queue.
type SendItem struct {
	To          netip.AddrPort
	Deadline    time.Time
	HasDeadline bool
	Data        []byte
}

// Interface is a single NetworkInterface: one bound UDP socket plus the
// receiver/sender tasks that drive it, and the liveness bookkeeping the
// scanner consults on every reconciliation pass.
type Interface struct {
	name         string
	conn         *net.UDPConn
	localAddr    netip.AddrPort
	externalAddr *watch.Watch[netip.AddrPort]

	outbound *queue.Unbounded[SendItem]
	ingress  *queue.Unbounded[RecvItem]

	failures    atomic.Int32
	maxFailures int32
	state       stateBox

	logger logging.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// RegistrationConfig carries everything an interface's registration task
// needs to announce itself to the rendezvous and ask for the far peer's
// addresses.
type RegistrationConfig struct {
	RendezvousAddr netip.AddrPort
	RendezvousPub  wirecrypto.PublicKey
	Self           wirecrypto.PrivateKey
	FarPeerPub     wirecrypto.PublicKey
}

// NewInterface binds addr and constructs an Interface in state Discovered,
// transitioning immediately to Live and spawning its receiver, sender, and
// registration tasks (spec.md §4.8: "Discovered -> Live on construction").
// bindDevice, if non-empty, is applied best-effort.
func NewInterface(ctx context.Context, name string, addr netip.Addr, bindDevice string, maxFailures int32, reg RegistrationConfig, ingress *queue.Unbounded[RecvItem], logger logging.Logger) (*Interface, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: addr.AsSlice(), Port: 0})
	if err != nil {
		return nil, err
	}

	if bindDevice != "" {
		if rawConn, rcErr := conn.SyscallConn(); rcErr == nil {
			if bErr := bindToDevice(rawConn, bindDevice); bErr != nil {
				logger.Warnf("bind-to-device %s on %s: %v", bindDevice, name, bErr)
			}
		}
	}

	ifaceCtx, cancel := context.WithCancel(ctx)
	iface := &Interface{
		name:         name,
		conn:         conn,
		localAddr:    conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		externalAddr: watch.New(netip.AddrPort{}),
		outbound:     queue.NewUnbounded[SendItem](),
		ingress:      ingress,
		maxFailures:  maxFailures,
		logger:       logger,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	iface.state.store(StateLive)

	go iface.runReceiver(ifaceCtx)
	go func() {
		defer close(iface.done)
		iface.runSender(ifaceCtx)
	}()
	go iface.startRegistration(ifaceCtx, reg.RendezvousAddr, reg.Self, reg.RendezvousPub, reg.FarPeerPub)
	go func() {
		<-ifaceCtx.Done()
		iface.outbound.Close()
		_ = conn.Close()
	}()

	return iface, nil
}

// Name returns the interface's name.
func (i *Interface) Name() string { return i.name }

// LocalAddr returns the address the interface's socket is bound to.
func (i *Interface) LocalAddr() netip.AddrPort { return i.localAddr }

// Outbound returns the interface's send queue; the accelerator enqueues
// into it directly.
func (i *Interface) Outbound() *queue.Unbounded[SendItem] { return i.outbound }

// ExternalAddr is the watchable address the RX processor updates whenever a
// RegisterResponse attributable to this interface arrives (spec.md §4.3).
func (i *Interface) ExternalAddr() *watch.Watch[netip.AddrPort] { return i.externalAddr }

// State returns the interface's current lifecycle state.
func (i *Interface) State() State { return i.state.load() }

// IsAlive reports whether the interface's consecutive-failure count is
// below the configured maximum (spec.md §4.3).
func (i *Interface) IsAlive() bool {
	return i.failures.Load() < i.maxFailures && i.state.load() != StateDead
}

// Kill transitions the interface to Dead and cancels its tasks. Called by
// the scanner when the interface is gone from the host or no longer alive.
func (i *Interface) Kill() {
	i.state.markDead()
	i.cancel()
}

// Wait blocks until the interface's sender task has exited, i.e. until its
// tasks have fully unwound after Kill.
func (i *Interface) Wait() {
	<-i.done
}

func (i *Interface) runReceiver(ctx context.Context) {
	buf := make([]byte, 65_547)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, from, err := i.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			i.logger.Warnf("interface %s: recv: %v", i.name, err)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		i.ingress.Push(RecvItem{From: from, ReceiverAddr: i.localAddr, ReceiverName: i.name, Data: data})
	}
}

func (i *Interface) runSender(ctx context.Context) {
	for {
		item, ok := i.outbound.Pop()
		if !ok {
			return
		}

		now := time.Now()
		if item.HasDeadline && now.After(item.Deadline) {
			i.logger.Warnf("interface %s: dropping send to %s, deadline already passed", i.name, item.To)
			continue
		}

		timeout := defaultSendTimeout
		if item.HasDeadline {
			if remaining := item.Deadline.Sub(now); remaining < timeout {
				timeout = remaining
			}
		}
		_ = i.conn.SetWriteDeadline(time.Now().Add(timeout))

		n, err := i.conn.WriteToUDPAddrPort(item.Data, item.To)
		if err != nil || n != len(item.Data) {
			i.onSendFailure(item.To, err)
			continue
		}
		i.onSendSuccess()
	}
}

func (i *Interface) onSendSuccess() {
	i.failures.Store(0)
	i.state.recoverToLive()
}

func (i *Interface) onSendFailure(to netip.AddrPort, err error) {
	i.failures.Add(1)
	i.state.degradeToFailing()
	if err != nil {
		i.logger.Warnf("interface %s: send to %s: %v", i.name, to, err)
	} else {
		i.logger.Warnf("interface %s: partial send to %s", i.name, to)
	}
	if i.failures.Load() >= i.maxFailures {
		i.state.markDead()
	}
}
