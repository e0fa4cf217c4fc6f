package rxdemux

import (
	"context"
	"crypto/cipher"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/a7g4/warp/internal/accelerator"
	"github.com/a7g4/warp/internal/gate"
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

func newTestInterface(t *testing.T, name string) *ifacemgr.Interface {
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

// fixture wires a Processor against ciphers a test can encrypt inbound
// datagrams with directly. DeriveCipher is symmetric (spec.md §4.1), so the
// cipher a peer would derive on their end is interoperable with the one the
// Processor derives here; tests reuse the same cipher for both directions.
type fixture struct {
	proc             *Processor
	ingress          *queue.Unbounded[ifacemgr.RecvItem]
	routingState     *routing.State
	rendezvousAddr   netip.AddrPort
	rendezvousCipher cipher.AEAD
	peerCipher       cipher.AEAD
}

func newFixture(t *testing.T, ifaces []*ifacemgr.Interface, gates map[protocol.TunnelID]*gate.Gate) *fixture {
	t.Helper()
	self, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	rendezvousKey, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	peerKey, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}

	rendezvousCipher, err := wirecrypto.DeriveCipher(self, rendezvousKey.PublicKey())
	if err != nil {
		t.Fatalf("DeriveCipher rendezvous: %v", err)
	}
	peerCipher, err := wirecrypto.DeriveCipher(self, peerKey.PublicKey())
	if err != nil {
		t.Fatalf("DeriveCipher peer: %v", err)
	}

	rendezvousAddr := netip.MustParseAddrPort("198.51.100.9:5000")
	rs := routing.New()
	ingress := queue.NewUnbounded[ifacemgr.RecvItem]()
	if gates == nil {
		gates = map[protocol.TunnelID]*gate.Gate{}
	}
	ifaceList := watch.New(ifaces)

	proc := New(rendezvousAddr, rendezvousCipher, peerCipher, rs, fakeInterfaceSource{w: ifaceList}, gates, ingress, logging.NewStdLogger())

	return &fixture{
		proc:             proc,
		ingress:          ingress,
		routingState:     rs,
		rendezvousAddr:   rendezvousAddr,
		rendezvousCipher: rendezvousCipher,
		peerCipher:       peerCipher,
	}
}

func encryptAndPush(t *testing.T, f *fixture, from netip.AddrPort, receiverName string, c cipher.AEAD, m wire.Message) {
	t.Helper()
	wm, err := wire.Encrypt(c, m)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	data := wire.Append(nil, wm)
	f.ingress.Push(ifacemgr.RecvItem{From: from, ReceiverName: receiverName, Data: data})
}

func runUntilDrained(f *fixture) {
	f.ingress.Close()
	f.proc.Run(context.Background())
}

func TestHandleRendezvousRegisterResponseUpdatesInterface(t *testing.T) {
	iface := newTestInterface(t, "eth0")
	f := newFixture(t, []*ifacemgr.Interface{iface}, nil)

	addr := netip.MustParseAddrPort("203.0.113.7:9000")
	resp := protocol.RegisterResponse{Address: addr, Timestamp: protocol.Now(), RequestTimestamp: protocol.Now()}
	encryptAndPush(t, f, f.rendezvousAddr, "eth0", f.rendezvousCipher, resp)
	runUntilDrained(f)

	if got := iface.ExternalAddr().Get(); got != addr {
		t.Fatalf("external addr: got %s, want %s", got, addr)
	}
}

func TestHandleRendezvousMappingResponseUpdatesRoutingState(t *testing.T) {
	f := newFixture(t, nil, nil)

	addrA := netip.MustParseAddrPort("198.51.100.1:1")
	addrB := netip.MustParseAddrPort("198.51.100.2:2")
	resp := protocol.MappingResponse{Endpoints: []netip.AddrPort{addrA, addrB}, Timestamp: protocol.Now()}
	encryptAndPush(t, f, f.rendezvousAddr, "eth0", f.rendezvousCipher, resp)
	runUntilDrained(f)

	got := f.routingState.PeerAddresses()
	if len(got) != 2 || got[0] != addrA || got[1] != addrB {
		t.Fatalf("peer addresses: got %v", got)
	}
}

func TestHandlePeerTunnelPayloadDispatchesToGate(t *testing.T) {
	egress := queue.NewUnbounded[accelerator.Item]()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tunnelID := protocol.TunnelName("t0")
	g, err := gate.New(ctx, gate.Config{TunnelID: tunnelID, Loopback: &gate.LoopbackConfig{}, SendDeadline: time.Second}, egress, logging.NewStdLogger())
	if err != nil {
		t.Fatalf("gate.New: %v", err)
	}
	t.Cleanup(g.Close)

	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer client.Close()
	if _, err := client.WriteTo([]byte("learn me"), g.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if _, ok := egress.Pop(); !ok {
		t.Fatal("expected the gate to enqueue the learning datagram")
	}

	f := newFixture(t, nil, map[protocol.TunnelID]*gate.Gate{tunnelID: g})

	payload := protocol.TunnelPayload{TunnelID: tunnelID, Tracer: 1, ReconstructionTag: protocol.Plain(), Data: []byte("hello")}
	encryptAndPush(t, f, netip.MustParseAddrPort("203.0.113.50:4000"), "eth0", f.peerCipher, payload)
	runUntilDrained(f)

	buf := make([]byte, 64)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q, want %q", buf[:n], "hello")
	}
}

func TestHandlePeerTunnelPayloadUnknownTunnelIsDroppedWithoutPanic(t *testing.T) {
	f := newFixture(t, nil, nil)
	payload := protocol.TunnelPayload{TunnelID: protocol.TunnelName("missing"), Tracer: 1, ReconstructionTag: protocol.Plain(), Data: []byte("x")}
	encryptAndPush(t, f, netip.MustParseAddrPort("203.0.113.50:4000"), "eth0", f.peerCipher, payload)
	runUntilDrained(f)
}

func TestHandlePeerAddressOverrideUpdatesRoutingState(t *testing.T) {
	f := newFixture(t, nil, nil)

	replace := netip.MustParseAddrPort("198.51.100.3:3")
	observedFrom := netip.MustParseAddrPort("203.0.113.99:9999")
	f.routingState.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{replace}})

	override := protocol.PeerAddressOverride{Replace: replace}
	encryptAndPush(t, f, observedFrom, "eth0", f.peerCipher, override)
	runUntilDrained(f)

	resolved := f.routingState.ResolvePeerAddresses("eth0")
	if len(resolved) != 1 || resolved[0] != observedFrom {
		t.Fatalf("resolved addresses: got %v, want [%s]", resolved, observedFrom)
	}
}

func TestDecryptFailureFromPeerIsToleratedSilently(t *testing.T) {
	f := newFixture(t, nil, nil)
	other, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	foreignPub, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	foreignCipher, err := wirecrypto.DeriveCipher(other, foreignPub.PublicKey())
	if err != nil {
		t.Fatalf("DeriveCipher: %v", err)
	}

	payload := protocol.TunnelPayload{TunnelID: protocol.TunnelName("t0"), Data: []byte("noise")}
	encryptAndPush(t, f, netip.MustParseAddrPort("203.0.113.50:4000"), "eth0", foreignCipher, payload)
	runUntilDrained(f)
}
