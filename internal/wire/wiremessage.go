package wire

// WireMessage is the length-self-delimiting record defined in spec §3:
// a nonce of fixed size N, an encrypted blob, and a clear associated-data blob.
// Multiple WireMessages may be concatenated in a single UDP datagram; Parse
// consumes exactly one and returns the remaining tail for continued parsing.
type WireMessage struct {
	Nonce          []byte
	Ciphertext     []byte
	AssociatedData []byte
}

// Append serializes wm onto dst as:
//
//	[4B length][AssociatedData] [4B length][Nonce] [4B length][Ciphertext]
//
// The format is self-describing so stacked messages in one datagram can be
// parsed in a loop without any outer framing.
func Append(dst []byte, wm WireMessage) []byte {
	dst = PutBytes(dst, wm.AssociatedData)
	dst = PutBytes(dst, wm.Nonce)
	dst = PutBytes(dst, wm.Ciphertext)
	return dst
}

// Parse reads one WireMessage prefix from buf and returns the remaining slice.
func Parse(buf []byte) (WireMessage, []byte, error) {
	aad, rest, err := TakeBytes(buf)
	if err != nil {
		return WireMessage{}, nil, &InvalidFormatError{Reason: "associated data: " + err.Error()}
	}
	nonce, rest, err := TakeBytes(rest)
	if err != nil {
		return WireMessage{}, nil, &InvalidFormatError{Reason: "nonce: " + err.Error()}
	}
	ciphertext, rest, err := TakeBytes(rest)
	if err != nil {
		return WireMessage{}, nil, &InvalidFormatError{Reason: "ciphertext: " + err.Error()}
	}
	return WireMessage{Nonce: nonce, Ciphertext: ciphertext, AssociatedData: aad}, rest, nil
}

// ParseAll parses every stacked WireMessage in buf, stopping only once the
// remainder is empty. A non-empty, unparsable remainder is an error.
func ParseAll(buf []byte) ([]WireMessage, error) {
	var out []WireMessage
	for len(buf) > 0 {
		wm, rest, err := Parse(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, wm)
		buf = rest
	}
	return out, nil
}
