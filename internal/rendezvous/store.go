// Package rendezvous implements warp-map: the UDP server that lets peers
// discover each other's currently reachable addresses without either side
// needing to be dialable first.
package rendezvous

import (
	"net/netip"
	"sync"
	"time"

	"github.com/a7g4/warp/internal/wirecrypto"
)

type addressRecord struct {
	lastSeen time.Time
}

// ClientStore is the bidirectional pubkey<->address index the rendezvous
// server consults on every request. It mirrors the session repository the
// teacher keeps for its own connected clients, generalized from a single
// internal/external address pair per session to an unbounded set of
// addresses per pubkey (a peer may be reachable from several interfaces at
// once).
type ClientStore struct {
	mu sync.RWMutex

	addressesByPubKey map[string]map[netip.AddrPort]addressRecord
	pubKeyByAddress   map[netip.AddrPort]wirecrypto.PublicKey
}

// NewClientStore constructs an empty store.
func NewClientStore() *ClientStore {
	return &ClientStore{
		addressesByPubKey: make(map[string]map[netip.AddrPort]addressRecord),
		pubKeyByAddress:   make(map[netip.AddrPort]wirecrypto.PublicKey),
	}
}

// Register records that pubkey is reachable at address as of now. If address
// was previously attributed to a different pubkey, it is first removed from
// that pubkey's set. Re-registering the same (pubkey, address) pair just
// advances its last-seen timestamp.
func (s *ClientStore) Register(pubkey wirecrypto.PublicKey, address netip.AddrPort, now time.Time) {
	key := pubkey.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.pubKeyByAddress[address]; ok && !prev.Equal(pubkey) {
		s.removeAddressLocked(prev, address)
	}

	addrs, ok := s.addressesByPubKey[key]
	if !ok {
		addrs = make(map[netip.AddrPort]addressRecord)
		s.addressesByPubKey[key] = addrs
	}
	addrs[address] = addressRecord{lastSeen: now}
	s.pubKeyByAddress[address] = pubkey
}

// Deregister removes address from pubkey's set, but only if it is currently
// attributed there. Reports whether a removal occurred.
func (s *ClientStore) Deregister(pubkey wirecrypto.PublicKey, address netip.AddrPort) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	owner, ok := s.pubKeyByAddress[address]
	if !ok || !owner.Equal(pubkey) {
		return false
	}
	s.removeAddressLocked(pubkey, address)
	return true
}

// removeAddressLocked purges address from pubkey's set and from the reverse
// map. Callers must hold s.mu for writing.
func (s *ClientStore) removeAddressLocked(pubkey wirecrypto.PublicKey, address netip.AddrPort) {
	key := pubkey.String()
	if addrs, ok := s.addressesByPubKey[key]; ok {
		delete(addrs, address)
		if len(addrs) == 0 {
			delete(s.addressesByPubKey, key)
		}
	}
	delete(s.pubKeyByAddress, address)
}

// GetAddresses returns pubkey's addresses whose last-seen timestamp is still
// within expiry of now.
func (s *ClientStore) GetAddresses(pubkey wirecrypto.PublicKey, now time.Time, expiry time.Duration) []netip.AddrPort {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs, ok := s.addressesByPubKey[pubkey.String()]
	if !ok {
		return nil
	}
	out := make([]netip.AddrPort, 0, len(addrs))
	for addr, rec := range addrs {
		if now.Sub(rec.lastSeen) < expiry {
			out = append(out, addr)
		}
	}
	return out
}

// GetPubKey looks up the pubkey currently attributed to address, if any.
func (s *ClientStore) GetPubKey(address netip.AddrPort) (wirecrypto.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, ok := s.pubKeyByAddress[address]
	return pub, ok
}

// Counts reports the number of distinct pubkeys and addresses currently held,
// for metrics gauges.
func (s *ClientStore) Counts() (pubkeys, addresses int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.addressesByPubKey), len(s.pubKeyByAddress)
}

// GarbageCollect evicts every address whose last-seen timestamp is at least
// expiry old, cascading through the per-pubkey set and dropping pubkeys left
// with no addresses. Returns the number of addresses evicted.
func (s *ClientStore) GarbageCollect(now time.Time, expiry time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, addrs := range s.addressesByPubKey {
		for addr, rec := range addrs {
			if now.Sub(rec.lastSeen) >= expiry {
				delete(addrs, addr)
				delete(s.pubKeyByAddress, addr)
				evicted++
			}
		}
		if len(addrs) == 0 {
			delete(s.addressesByPubKey, key)
		}
	}
	return evicted
}
