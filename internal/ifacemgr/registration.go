package ifacemgr

import (
	"context"
	"net/netip"
	"time"

	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/wire"
	"github.com/a7g4/warp/internal/wirecrypto"
)

// RegistrationInterval is how often an interface re-announces itself to the
// rendezvous and re-asks for the far peer's current addresses.
const RegistrationInterval = 10 * time.Second

// startRegistration runs the registration task spec.md §4.3 assigns to
// every interface: on a fixed interval, send a stacked RegisterRequest and
// MappingRequest datagram to the rendezvous, encrypted under the pairwise
// cipher with the rendezvous's own public key.
func (i *Interface) startRegistration(ctx context.Context, rendezvousAddr netip.AddrPort, self wirecrypto.PrivateKey, rendezvousPub, farPeerPub wirecrypto.PublicKey) {
	aead, err := wirecrypto.DeriveCipher(self, rendezvousPub)
	if err != nil {
		i.logger.Errorf("interface %s: deriving rendezvous cipher: %v", i.name, err)
		return
	}

	ticker := time.NewTicker(RegistrationInterval)
	defer ticker.Stop()

	send := func() {
		now := time.Now()
		ts := protocol.TimestampFromTime(now)

		regReq := protocol.RegisterRequest{PubKey: self.PublicKey(), Timestamp: ts}
		regWM, err := wire.Encrypt(aead, regReq)
		if err != nil {
			i.logger.Errorf("interface %s: encrypting register request: %v", i.name, err)
			return
		}

		mapReq := protocol.MappingRequest{PeerPubKey: farPeerPub, Timestamp: ts}
		mapWM, err := wire.Encrypt(aead, mapReq)
		if err != nil {
			i.logger.Errorf("interface %s: encrypting mapping request: %v", i.name, err)
			return
		}

		dst := wire.Append(nil, regWM)
		dst = wire.Append(dst, mapWM)
		i.outbound.Push(SendItem{To: rendezvousAddr, Data: dst})
	}

	send()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// ApplyRegisterResponse updates the interface's observed external address.
// The RX processor calls this once it has demultiplexed a RegisterResponse
// back to the interface that sent the request it answers.
func (i *Interface) ApplyRegisterResponse(resp protocol.RegisterResponse) {
	i.externalAddr.Set(resp.Address)
}
