package accelerator

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/a7g4/warp/internal/ifacemgr"
	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/routing"
	"github.com/a7g4/warp/internal/watch"
	"github.com/a7g4/warp/internal/wire"
	"github.com/a7g4/warp/internal/wirecrypto"
)

type fakeInterfaceSource struct {
	w *watch.Watch[[]*ifacemgr.Interface]
}

func (f fakeInterfaceSource) Interfaces() *watch.Watch[[]*ifacemgr.Interface] { return f.w }

func newAliveTestInterface(t *testing.T, name string) *ifacemgr.Interface {
	t.Helper()
	self, _ := wirecrypto.GeneratePrivateKey()
	rendezvous, _ := wirecrypto.GeneratePrivateKey()
	peer, _ := wirecrypto.GeneratePrivateKey()

	reg := ifacemgr.RegistrationConfig{
		RendezvousAddr: netip.MustParseAddrPort("127.0.0.1:1"),
		RendezvousPub:  rendezvous.PublicKey(),
		Self:           self,
		FarPeerPub:     peer.PublicKey(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	iface, err := ifacemgr.NewInterface(ctx, name, netip.MustParseAddr("127.0.0.1"), "", ifacemgr.DefaultMaxConsecutiveFailures, reg, queue.NewUnbounded[ifacemgr.RecvItem](), logging.NewStdLogger())
	if err != nil {
		t.Fatalf("NewInterface: %v", err)
	}
	t.Cleanup(func() {
		iface.Kill()
		iface.Wait()
	})
	return iface
}

func TestFanOutEncryptsOnceAndEnqueuesToEveryAliveInterface(t *testing.T) {
	self, _ := wirecrypto.GeneratePrivateKey()
	peer, _ := wirecrypto.GeneratePrivateKey()
	peerCipher, err := wirecrypto.DeriveCipher(self, peer.PublicKey())
	if err != nil {
		t.Fatalf("DeriveCipher: %v", err)
	}

	rs := routing.New()
	addrA := netip.MustParseAddrPort("198.51.100.1:1")
	addrB := netip.MustParseAddrPort("198.51.100.2:2")
	rs.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{addrA, addrB}})

	ifaceEth0 := newAliveTestInterface(t, "eth0")
	ifaceWlan0 := newAliveTestInterface(t, "wlan0")

	ifaces := watch.New([]*ifacemgr.Interface{ifaceEth0, ifaceWlan0})
	inbound := queue.NewUnbounded[Item]()

	acc := New(peerCipher, fakeInterfaceSource{w: ifaces}, rs, inbound, logging.NewStdLogger())

	payload := protocol.TunnelPayload{TunnelID: protocol.TunnelName("t0"), Tracer: 7, ReconstructionTag: protocol.Plain(), Data: []byte("hi")}
	deadline := time.Now().Add(time.Second)
	inbound.Push(Item{Payload: payload, Deadline: deadline})
	inbound.Close()

	acc.Run(context.Background())

	for _, iface := range []*ifacemgr.Interface{ifaceEth0, ifaceWlan0} {
		for range []netip.AddrPort{addrA, addrB} {
			item, ok := iface.Outbound().Pop()
			if !ok {
				t.Fatalf("%s: expected an enqueued send item", iface.Name())
			}
			if !item.HasDeadline || !item.Deadline.Equal(deadline) {
				t.Fatalf("%s: deadline not propagated", iface.Name())
			}

			msgs, err := wire.ParseAll(item.Data)
			if err != nil {
				t.Fatalf("ParseAll: %v", err)
			}
			if len(msgs) != 1 {
				t.Fatalf("expected 1 wire message, got %d", len(msgs))
			}
			dec, err := wire.Decrypt(peerCipher, msgs[0])
			if err != nil {
				t.Fatalf("decrypt: %v", err)
			}
			got, err := protocol.DecodeTunnelPayload(dec.Nonce, dec.Secret)
			if err != nil {
				t.Fatalf("DecodeTunnelPayload: %v", err)
			}
			if string(got.Data) != "hi" || got.Tracer != 7 {
				t.Fatalf("got %+v", got)
			}
		}
	}
}

func TestFanOutSkipsDeadInterfaces(t *testing.T) {
	self, _ := wirecrypto.GeneratePrivateKey()
	peer, _ := wirecrypto.GeneratePrivateKey()
	peerCipher, _ := wirecrypto.DeriveCipher(self, peer.PublicKey())

	rs := routing.New()
	rs.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{netip.MustParseAddrPort("198.51.100.1:1")}})

	dead := newAliveTestInterface(t, "eth0")
	dead.Kill()
	dead.Wait()

	ifaces := watch.New([]*ifacemgr.Interface{dead})
	inbound := queue.NewUnbounded[Item]()
	acc := New(peerCipher, fakeInterfaceSource{w: ifaces}, rs, inbound, logging.NewStdLogger())

	inbound.Push(Item{Payload: protocol.TunnelPayload{TunnelID: protocol.TunnelByID(1), Data: []byte("x")}, Deadline: time.Now()})
	inbound.Close()
	acc.Run(context.Background())

	if dead.Outbound().Len() != 0 {
		t.Fatal("expected no sends enqueued on a dead interface")
	}
}
