package routing

import (
	"net/netip"
	"testing"

	"github.com/a7g4/warp/internal/protocol"
)

func addr(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}

func TestResolvePeerAddressesWithoutOverride(t *testing.T) {
	s := New()
	a1, a2 := addr("10.0.0.1:1"), addr("10.0.0.2:2")
	s.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{a1, a2}})

	got := s.ResolvePeerAddresses("eth0")
	if len(got) != 2 || got[0] != a1 || got[1] != a2 {
		t.Fatalf("got %v, want [%v %v]", got, a1, a2)
	}
}

func TestHandlePeerAddressOverrideIsScopedPerInterface(t *testing.T) {
	s := New()
	target := addr("10.0.0.1:1")
	s.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{target}})

	observed := addr("203.0.113.5:9999")
	s.HandlePeerAddressOverride(protocol.PeerAddressOverride{Replace: target}, observed, "eth0")

	if got := s.ResolvePeerAddresses("eth0"); len(got) != 1 || got[0] != observed {
		t.Fatalf("eth0: got %v, want [%v]", got, observed)
	}
	if got := s.ResolvePeerAddresses("wlan0"); len(got) != 1 || got[0] != target {
		t.Fatalf("wlan0: got %v, want [%v] (override must not leak across interfaces)", got, target)
	}
	if s.ActiveOverridesCount() != 1 {
		t.Fatalf("ActiveOverridesCount: got %d, want 1", s.ActiveOverridesCount())
	}
}

func TestHandleMappingResponsePrunesStaleOverrides(t *testing.T) {
	s := New()
	stale, fresh := addr("10.0.0.1:1"), addr("10.0.0.2:2")
	s.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{stale, fresh}})
	s.HandlePeerAddressOverride(protocol.PeerAddressOverride{Replace: stale}, addr("203.0.113.5:1"), "eth0")
	s.HandlePeerAddressOverride(protocol.PeerAddressOverride{Replace: fresh}, addr("203.0.113.5:2"), "eth0")

	// stale drops out of the new mapping; its override must be pruned too.
	s.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{fresh}})

	if s.ActiveOverridesCount() != 1 {
		t.Fatalf("ActiveOverridesCount after prune: got %d, want 1", s.ActiveOverridesCount())
	}
	got := s.ResolvePeerAddresses("eth0")
	if len(got) != 1 || got[0] != addr("203.0.113.5:2") {
		t.Fatalf("got %v, want override for fresh only", got)
	}
}

func TestPeerAddressesReturnsSnapshotCopy(t *testing.T) {
	s := New()
	a1 := addr("10.0.0.1:1")
	s.HandleMappingResponse(protocol.MappingResponse{Endpoints: []netip.AddrPort{a1}})

	got := s.PeerAddresses()
	got[0] = addr("10.0.0.9:9")

	if again := s.PeerAddresses(); again[0] != a1 {
		t.Fatalf("mutating the returned slice leaked into state: got %v, want %v", again[0], a1)
	}
}
