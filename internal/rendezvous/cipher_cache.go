package rendezvous

import (
	"crypto/cipher"
	"net/netip"
	"sync"

	"github.com/a7g4/warp/internal/wirecrypto"
)

type peerCipher struct {
	pubkey wirecrypto.PublicKey
	aead   cipher.AEAD
}

// cipherCache remembers the per-address AEAD derived from a RegisterRequest's
// associated-data pubkey, so subsequent datagrams from the same address skip
// the associated-data peek and go straight to decryption.
type cipherCache struct {
	mu    sync.RWMutex
	byAddr map[netip.AddrPort]peerCipher
}

func newCipherCache() *cipherCache {
	return &cipherCache{byAddr: make(map[netip.AddrPort]peerCipher)}
}

func (c *cipherCache) get(addr netip.AddrPort) (peerCipher, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pc, ok := c.byAddr[addr]
	return pc, ok
}

func (c *cipherCache) put(addr netip.AddrPort, pc peerCipher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAddr[addr] = pc
}
