package wire

// MessageID is the one-byte wire identifier packed at the end of a message's
// ciphertext (spec §3, "plaintext message layout").
type MessageID byte

// Message is implemented by every typed message exchanged over the wire. It is
// the hand-written Go equivalent of the compile-time field classification
// described in spec §9: a struct declares which of its fields are associated
// data (public, authenticated-but-clear), which are encrypted, and — optionally
// — which single field seeds the AEAD nonce.
//
// PublicBytes and SecretBytes serialize the associated-data and encrypted field
// groups respectively, using the length-prefixed layout in binenc.go. At least
// one of the two MUST be non-empty for any real message type.
type Message interface {
	MessageID() MessageID
	PublicBytes() ([]byte, error)
	SecretBytes() ([]byte, error)
}

// NonceSourced is implemented by message types that designate one field as the
// nonce source (spec §3, "nonce policy"). NonceBytes returns that field's
// little-endian encoding; the field itself is never present in SecretBytes or
// PublicBytes because it is recovered from the on-the-wire nonce on receive.
type NonceSourced interface {
	Message
	NonceBytes() []byte
}

// HasNonceSource reports whether m designates a nonce-source field and, if so,
// returns its little-endian bytes.
func HasNonceSource(m Message) ([]byte, bool) {
	ns, ok := m.(NonceSourced)
	if !ok {
		return nil, false
	}
	return ns.NonceBytes(), true
}
