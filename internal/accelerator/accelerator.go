// Package accelerator implements the warp accelerator of spec.md §4.6: the
// single place egress tunnel payloads are encrypted once and fanned out
// across the cross product of alive interfaces and resolved peer addresses.
package accelerator

import (
	"context"
	"crypto/cipher"
	"time"

	"github.com/a7g4/warp/internal/ifacemgr"
	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/routing"
	"github.com/a7g4/warp/internal/watch"
	"github.com/a7g4/warp/internal/wire"
)

// Item is what a gate enqueues for every outbound datagram an application
// sends: the payload to encrypt and fan out, plus the deadline by which it
// must leave the wire.
type Item struct {
	Payload  protocol.TunnelPayload
	Deadline time.Time
}

// InterfaceSource is the subset of *ifacemgr.Scanner the accelerator needs:
// the live, watchable interface list.
type InterfaceSource interface {
	Interfaces() *watch.Watch[[]*ifacemgr.Interface]
}

// Accelerator drains a shared egress queue fed by every gate and fans each
// item out across every alive interface's resolved peer addresses.
type Accelerator struct {
	cipher  cipher.AEAD
	ifaces  InterfaceSource
	routing *routing.State
	inbound *queue.Unbounded[Item]
	logger  logging.Logger
}

// New constructs an Accelerator. peerCipher is the AEAD derived once at
// startup between this process and the far peer (spec.md §3, "Peer
// identity").
func New(peerCipher cipher.AEAD, ifaces InterfaceSource, routingState *routing.State, inbound *queue.Unbounded[Item], logger logging.Logger) *Accelerator {
	return &Accelerator{cipher: peerCipher, ifaces: ifaces, routing: routingState, inbound: inbound, logger: logger}
}

// Run drains the inbound queue until it is closed. There is no ctx-driven
// early exit: the queue is the lifecycle boundary, closed by whoever owns
// it on shutdown.
func (a *Accelerator) Run(_ context.Context) {
	for {
		item, ok := a.inbound.Pop()
		if !ok {
			return
		}
		a.fanOut(item)
	}
}

// fanOut implements spec.md §4.6 steps 1-2: encrypt once, then enqueue the
// same ciphertext to every alive interface's send queue toward every
// address resolve_peer_addresses returns for that interface.
func (a *Accelerator) fanOut(item Item) {
	wm, err := wire.Encrypt(a.cipher, item.Payload)
	if err != nil {
		a.logger.Errorf("accelerator: encrypting tunnel payload for %s: %v", item.Payload.TunnelID, err)
		return
	}
	data := wire.Append(nil, wm)

	for _, iface := range a.ifaces.Interfaces().Get() {
		if !iface.IsAlive() {
			continue
		}
		addrs := a.routing.ResolvePeerAddresses(iface.Name())
		for _, addr := range addrs {
			iface.Outbound().Push(ifacemgr.SendItem{
				To:          addr,
				Deadline:    item.Deadline,
				HasDeadline: true,
				Data:        data,
			})
		}
	}
}
