package gate

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/a7g4/warp/internal/accelerator"
	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/protocol"
	"github.com/a7g4/warp/internal/queue"
)

func newTestGate(t *testing.T, cfg Config) (*Gate, *queue.Unbounded[accelerator.Item]) {
	t.Helper()
	egress := queue.NewUnbounded[accelerator.Item]()
	cfg.TunnelID = protocol.TunnelName("t0")
	if cfg.SendDeadline == 0 {
		cfg.SendDeadline = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	g, err := New(ctx, cfg, egress, logging.NewStdLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(g.Close)
	return g, egress
}

func TestApplicationDatagramProducesTunnelPayload(t *testing.T) {
	g, egress := newTestGate(t, Config{Loopback: &LoopbackConfig{}})

	client, err := net.Dial("udp4", g.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	item, ok := egress.Pop()
	if !ok {
		t.Fatal("egress closed before receiving an item")
	}
	if string(item.Payload.Data) != "payload" {
		t.Fatalf("got %q, want %q", item.Payload.Data, "payload")
	}
	if item.Payload.TunnelID != protocol.TunnelName("t0") {
		t.Fatalf("got tunnel id %s", item.Payload.TunnelID)
	}
	if item.Payload.Tracer == 0 {
		t.Fatal("expected a nonzero tracer")
	}
}

func TestApplicationDatagramExceedingMTUIsDropped(t *testing.T) {
	g, egress := newTestGate(t, Config{Loopback: &LoopbackConfig{}, MTU: 4})

	client, err := net.Dial("udp4", g.conn.LocalAddr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("too long")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := client.Write([]byte("ok")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	item, ok := egress.Pop()
	if !ok {
		t.Fatal("egress closed before receiving an item")
	}
	if string(item.Payload.Data) != "ok" {
		t.Fatalf("got %q, want the oversized datagram dropped and only %q delivered", item.Payload.Data, "ok")
	}
}

func TestSendToApplicationUsesDynamicDestination(t *testing.T) {
	g, _ := newTestGate(t, Config{Loopback: &LoopbackConfig{}})

	client, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer client.Close()

	if _, err := client.WriteTo([]byte("hi"), g.conn.LocalAddr()); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for g.dynamicDest.Get() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if g.dynamicDest.Get() == nil {
		t.Fatal("expected dynamic destination to be learned from the inbound datagram")
	}

	g.SendToApplication([]byte("reply"))

	buf := make([]byte, 64)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != "reply" {
		t.Fatalf("got %q, want %q", buf[:n], "reply")
	}
}

func TestSendToApplicationDropsWithoutKnownDestination(t *testing.T) {
	g, _ := newTestGate(t, Config{Loopback: &LoopbackConfig{}})

	g.SendToApplication([]byte("nobody is listening yet"))

	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		if g.ingress.Len() == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if g.ingress.Len() != 0 {
		t.Fatal("expected the sender task to have drained the item even though it dropped it")
	}
}
