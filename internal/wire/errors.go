package wire

import "fmt"

// InvalidFormatError is returned when a buffer cannot be parsed as a WireMessage.
type InvalidFormatError struct {
	Reason string
}

func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid wire format: %s", e.Reason)
}

// DecryptionError is returned when AEAD authentication fails.
type DecryptionError struct {
	Cause error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Cause)
}

func (e *DecryptionError) Unwrap() error { return e.Cause }

// UnexpectedMessageIDError is returned when a decoded message's ID doesn't match
// what the caller expected.
type UnexpectedMessageIDError struct {
	Got, Want MessageID
}

func (e *UnexpectedMessageIDError) Error() string {
	return fmt.Sprintf("unexpected message id: got 0x%02x, want 0x%02x", byte(e.Got), byte(e.Want))
}

// Base32DecodeError is returned when a Crockford Base32 string fails to decode.
type Base32DecodeError struct {
	Input string
}

func (e *Base32DecodeError) Error() string {
	return fmt.Sprintf("unable to decode base32 string: %q", e.Input)
}

// KeyError wraps a failure to parse or derive a cryptographic key.
type KeyError struct {
	Cause error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("key error: %v", e.Cause)
}

func (e *KeyError) Unwrap() error { return e.Cause }
