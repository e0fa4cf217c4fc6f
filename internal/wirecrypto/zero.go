package wirecrypto

import "runtime"

// zeroBytes overwrites a decoded private-key buffer with zeros once its bytes
// have been copied into a PrivateKey, so the plaintext scalar doesn't linger
// in memory for longer than the parse call needs it.
func zeroBytes(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
