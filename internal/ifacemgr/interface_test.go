package ifacemgr

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/queue"
	"github.com/a7g4/warp/internal/wirecrypto"
)

func testRegistrationConfig(t *testing.T) RegistrationConfig {
	t.Helper()
	self, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	rendezvous, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	peer, err := wirecrypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey: %v", err)
	}
	return RegistrationConfig{
		RendezvousAddr: netip.MustParseAddrPort("127.0.0.1:1"),
		RendezvousPub:  rendezvous.PublicKey(),
		Self:           self,
		FarPeerPub:     peer.PublicKey(),
	}
}

func newTestInterface(t *testing.T, ingress *queue.Unbounded[RecvItem]) *Interface {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	iface, err := NewInterface(ctx, "test0", netip.MustParseAddr("127.0.0.1"), "", DefaultMaxConsecutiveFailures, testRegistrationConfig(t), ingress, logging.NewStdLogger())
	if err != nil {
		t.Fatalf("newInterface: %v", err)
	}
	t.Cleanup(func() {
		iface.Kill()
		iface.Wait()
	})
	return iface
}

func TestInterfaceDeliversDatagramToPeer(t *testing.T) {
	ingressA := queue.NewUnbounded[RecvItem]()
	ingressB := queue.NewUnbounded[RecvItem]()

	a := newTestInterface(t, ingressA)
	b := newTestInterface(t, ingressB)

	a.Outbound().Push(SendItem{To: b.LocalAddr(), Data: []byte("hello")})

	item, ok := ingressB.Pop()
	if !ok {
		t.Fatal("ingress closed before delivering datagram")
	}
	if string(item.Data) != "hello" {
		t.Fatalf("got data %q, want %q", item.Data, "hello")
	}
	if item.From != a.LocalAddr() {
		t.Fatalf("got from %s, want %s", item.From, a.LocalAddr())
	}
	if item.ReceiverName != "test0" {
		t.Fatalf("got receiver name %q, want %q", item.ReceiverName, "test0")
	}
}

func TestOnSendSuccessResetsFailuresAndRecovers(t *testing.T) {
	iface := newTestInterface(t, queue.NewUnbounded[RecvItem]())

	iface.onSendFailure(netip.AddrPort{}, nil)
	if iface.State() != StateFailing {
		t.Fatalf("state after failure: got %s, want %s", iface.State(), StateFailing)
	}

	iface.onSendSuccess()
	if iface.State() != StateLive {
		t.Fatalf("state after success: got %s, want %s", iface.State(), StateLive)
	}
	if iface.failures.Load() != 0 {
		t.Fatalf("failures after success: got %d, want 0", iface.failures.Load())
	}
}

func TestOnSendFailureMarksDeadAtThreshold(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	iface, err := NewInterface(ctx, "test0", netip.MustParseAddr("127.0.0.1"), "", 3, testRegistrationConfig(t), queue.NewUnbounded[RecvItem](), logging.NewStdLogger())
	if err != nil {
		t.Fatalf("newInterface: %v", err)
	}
	defer func() {
		iface.Kill()
		iface.Wait()
	}()

	for i := 0; i < 3; i++ {
		iface.onSendFailure(netip.AddrPort{}, nil)
	}

	if iface.State() != StateDead {
		t.Fatalf("state: got %s, want %s", iface.State(), StateDead)
	}
	if iface.IsAlive() {
		t.Fatal("IsAlive: got true, want false after hitting max failures")
	}
}

func TestKillCancelsTasks(t *testing.T) {
	iface := newTestInterface(t, queue.NewUnbounded[RecvItem]())
	iface.Kill()

	select {
	case <-doneOrTimeout(iface):
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Kill")
	}
	if iface.State() != StateDead {
		t.Fatalf("state after Kill: got %s, want %s", iface.State(), StateDead)
	}
}

func doneOrTimeout(iface *Interface) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		iface.Wait()
		close(ch)
	}()
	return ch
}
