// Package rxdemux implements the global RX processor of spec.md §4.7: it
// drains the shared ingress queue every interface's receiver task feeds and
// demultiplexes each stacked message by source and message id.
package rxdemux

import (
	"context"
	"crypto/cipher"
	"net/netip"

	"github.com/a7g4/warp/internal/gate"
	"github.com/a7g4/warp/internal/ifacemgr"
	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/routing"
	"github.com/a7g4/warp/internal/watch"
	"github.com/a7g4/warp/internal/wire"
)

// InterfaceSource is the subset of *ifacemgr.Scanner the processor needs to
// resolve a RegisterResponse back to the interface that requested it.
type InterfaceSource interface {
	Interfaces() *watch.Watch[[]*ifacemgr.Interface]
}

// Processor is the global ingress demux described by spec.md §4.7.
type Processor struct {
	rendezvousAddr   netip.AddrPort
	rendezvousCipher cipher.AEAD
	peerCipher       cipher.AEAD

	routing *routing.State
	ifaces  InterfaceSource
	gates   map[protocol.TunnelID]*gate.Gate

	ingress *queue.Unbounded[ifacemgr.RecvItem]
	logger  logging.Logger
}

// New constructs a Processor. gates is consulted by tunnel id for every
// decrypted TunnelPayload arriving from the peer.
func New(
	rendezvousAddr netip.AddrPort,
	rendezvousCipher, peerCipher cipher.AEAD,
	routingState *routing.State,
	ifaces InterfaceSource,
	gates map[protocol.TunnelID]*gate.Gate,
	ingress *queue.Unbounded[ifacemgr.RecvItem],
	logger logging.Logger,
) *Processor {
	return &Processor{
		rendezvousAddr:   rendezvousAddr,
		rendezvousCipher: rendezvousCipher,
		peerCipher:       peerCipher,
		routing:          routingState,
		ifaces:           ifaces,
		gates:            gates,
		ingress:          ingress,
		logger:           logger,
	}
}

// Run drains the ingress queue until it is closed.
func (p *Processor) Run(_ context.Context) {
	for {
		item, ok := p.ingress.Pop()
		if !ok {
			return
		}
		p.handleDatagram(item)
	}
}

func (p *Processor) handleDatagram(item ifacemgr.RecvItem) {
	msgs, err := wire.ParseAll(item.Data)
	if err != nil {
		p.logger.Warnf("rx: malformed datagram from %s on %s: %v", item.From, item.ReceiverName, err)
		return
	}
	for _, wm := range msgs {
		if item.From == p.rendezvousAddr {
			p.handleRendezvousMessage(item, wm)
		} else {
			p.handlePeerMessage(item, wm)
		}
	}
}

func (p *Processor) handleRendezvousMessage(item ifacemgr.RecvItem, wm wire.WireMessage) {
	dec, err := wire.Decrypt(p.rendezvousCipher, wm)
	if err != nil {
		p.logger.Warnf("rx: decrypting rendezvous message on %s: %v", item.ReceiverName, err)
		return
	}

	switch dec.ID {
	case protocol.IDRegisterResponse:
		resp, err := protocol.DecodeRegisterResponse(dec.Secret)
		if err != nil {
			p.logger.Warnf("rx: decoding register response: %v", err)
			return
		}
		p.applyRegisterResponse(item.ReceiverName, resp)
	case protocol.IDMappingResponse:
		resp, err := protocol.DecodeMappingResponse(dec.Secret)
		if err != nil {
			p.logger.Warnf("rx: decoding mapping response: %v", err)
			return
		}
		p.routing.HandleMappingResponse(resp)
	default:
		p.logger.Warnf("rx: unexpected message id %#x from rendezvous", dec.ID)
	}
}

// handlePeerMessage tolerates decrypt failure silently at info level: it is
// expected during handshake races, when a datagram from an address not yet
// recognized as the far peer arrives (spec.md §4.7).
func (p *Processor) handlePeerMessage(item ifacemgr.RecvItem, wm wire.WireMessage) {
	dec, err := wire.Decrypt(p.peerCipher, wm)
	if err != nil {
		p.logger.Infof("rx: decrypt failure from %s on %s: %v", item.From, item.ReceiverName, err)
		return
	}

	switch dec.ID {
	case protocol.IDTunnelPayload:
		payload, err := protocol.DecodeTunnelPayload(dec.Nonce, dec.Secret)
		if err != nil {
			p.logger.Warnf("rx: decoding tunnel payload from %s: %v", item.From, err)
			return
		}
		g, ok := p.gates[payload.TunnelID]
		if !ok {
			p.logger.Warnf("rx: tunnel payload for unknown tunnel %s from %s", payload.TunnelID, item.From)
			return
		}
		g.SendToApplication(payload.Data)
	case protocol.IDPeerAddressOverride:
		msg, err := protocol.DecodePeerAddressOverride(dec.Secret)
		if err != nil {
			p.logger.Warnf("rx: decoding peer address override from %s: %v", item.From, err)
			return
		}
		p.routing.HandlePeerAddressOverride(msg, item.From, item.ReceiverName)
	default:
		p.logger.Warnf("rx: unexpected message id %#x from peer %s", dec.ID, item.From)
	}
}

func (p *Processor) applyRegisterResponse(receiverName string, resp protocol.RegisterResponse) {
	for _, iface := range p.ifaces.Interfaces().Get() {
		if iface.Name() == receiverName {
			iface.ApplyRegisterResponse(resp)
			return
		}
	}
	p.logger.Warnf("rx: register response for unknown interface %s", receiverName)
}
