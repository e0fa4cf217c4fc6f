package wirecrypto

import "encoding/base32"

// crockfordAlphabet is the Crockford Base32 alphabet: upper-case, no padding,
// and excludes the visually ambiguous letters I, L, O, U (spec §6, "key encoding").
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

var crockfordEncoding = base32.NewEncoding(crockfordAlphabet).WithPadding(base32.NoPadding)

// encodeCrockford encodes b as upper-case, unpadded Crockford Base32.
//
// Crockford Base32 needs nothing beyond a custom alphabet and no padding, both
// of which encoding/base32 supports directly; no third-party library in the
// pack specializes in this narrow encoding, so the standard library is the
// correct tool (see DESIGN.md).
func encodeCrockford(b []byte) string {
	return crockfordEncoding.EncodeToString(b)
}

func decodeCrockford(s string) ([]byte, error) {
	return crockfordEncoding.DecodeString(s)
}
