package ifacemgr

import (
	"context"
	"net/netip"
	"regexp"
	"testing"
	"time"

	"github.com/a7g4/warp/internal/logging"
	"github.com/a7g4/warp/internal/queue"
)

func testScanner(t *testing.T, cfg Config) *Scanner {
	t.Helper()
	cfg.Registration = testRegistrationConfig(t)
	s := NewScanner(cfg, queue.NewUnbounded[RecvItem](), logging.NewStdLogger())
	return s
}

func TestPassesFilterIncludeThenExclude(t *testing.T) {
	s := testScanner(t, Config{
		Include: []*regexp.Regexp{regexp.MustCompile(`^eth`), regexp.MustCompile(`^wlan`)},
		Exclude: []*regexp.Regexp{regexp.MustCompile(`docker`)},
	})

	cases := map[string]bool{
		"eth0":       true,
		"wlan0":      true,
		"eth-docker": false,
		"lo":         false,
	}
	for name, want := range cases {
		if got := s.passesFilter(name); got != want {
			t.Fatalf("passesFilter(%q): got %v, want %v", name, got, want)
		}
	}
}

func TestPassesFilterWithNoIncludeAcceptsAnythingNotExcluded(t *testing.T) {
	s := testScanner(t, Config{Exclude: []*regexp.Regexp{regexp.MustCompile(`^lo$`)}})
	if !s.passesFilter("eth0") {
		t.Fatal("expected eth0 to pass with no include list")
	}
	if s.passesFilter("lo") {
		t.Fatal("expected lo to be excluded")
	}
}

func TestScanConstructsAndReconcilesInterfaces(t *testing.T) {
	s := testScanner(t, Config{MaxConsecutiveFailures: 5})

	addrs := map[string][]netip.Addr{
		"a": {netip.MustParseAddr("127.0.0.1")},
	}
	s.enum = func() (map[string][]netip.Addr, error) { return addrs, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.scan(ctx)
	if _, ok := s.live["a"]; !ok {
		t.Fatal("expected interface 'a' to be constructed")
	}
	list := s.list.Get()
	if len(list) != 1 {
		t.Fatalf("published list length: got %d, want 1", len(list))
	}

	delete(addrs, "a")
	s.scan(ctx)
	if _, ok := s.live["a"]; ok {
		t.Fatal("expected interface 'a' to be dropped once gone from enumeration")
	}
	if got := len(s.list.Get()); got != 0 {
		t.Fatalf("published list length after drop: got %d, want 0", got)
	}

	s.shutdown()
}

func TestScanDropsNonAliveInterfaces(t *testing.T) {
	s := testScanner(t, Config{MaxConsecutiveFailures: 1})

	addrs := map[string][]netip.Addr{
		"a": {netip.MustParseAddr("127.0.0.1")},
	}
	s.enum = func() (map[string][]netip.Addr, error) { return addrs, nil }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.scan(ctx)
	iface := s.live["a"]
	if iface == nil {
		t.Fatal("expected interface 'a' to be constructed")
	}
	iface.onSendFailure(netip.AddrPort{}, nil)
	if iface.IsAlive() {
		t.Fatal("expected interface to become non-alive after hitting max failures")
	}

	s.scan(ctx)
	if _, ok := s.live["a"]; ok {
		t.Fatal("expected non-alive interface to be dropped on next scan")
	}

	s.shutdown()
}

func TestRunShutdownOnCancel(t *testing.T) {
	s := testScanner(t, Config{ScanInterval: 10 * time.Millisecond, MaxConsecutiveFailures: 5})

	addrs := map[string][]netip.Addr{
		"a": {netip.MustParseAddr("127.0.0.1")},
	}
	s.enum = func() (map[string][]netip.Addr, error) { return addrs, nil }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	if len(s.live) != 0 {
		t.Fatalf("expected no live interfaces after shutdown, got %d", len(s.live))
	}
}
