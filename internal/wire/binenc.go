package wire

import "encoding/binary"

// Field-level helpers for the length-prefixed binary format that backs every
// message's public (associated-data) and secret (encrypted) byte blobs. Every
// variable-length field is written as a 4-byte big-endian length prefix followed
// by its bytes; fixed-width integers are written directly.

func putUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func takeUint64(src []byte) (uint64, []byte, error) {
	if len(src) < 8 {
		return 0, nil, &InvalidFormatError{Reason: "truncated uint64"}
	}
	return binary.BigEndian.Uint64(src[:8]), src[8:], nil
}

func putUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func takeUint32(src []byte) (uint32, []byte, error) {
	if len(src) < 4 {
		return 0, nil, &InvalidFormatError{Reason: "truncated uint32"}
	}
	return binary.BigEndian.Uint32(src[:4]), src[4:], nil
}

func putUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func takeUint16(src []byte) (uint16, []byte, error) {
	if len(src) < 2 {
		return 0, nil, &InvalidFormatError{Reason: "truncated uint16"}
	}
	return binary.BigEndian.Uint16(src[:2]), src[2:], nil
}

func putUint8(dst []byte, v uint8) []byte {
	return append(dst, v)
}

func takeUint8(src []byte) (uint8, []byte, error) {
	if len(src) < 1 {
		return 0, nil, &InvalidFormatError{Reason: "truncated uint8"}
	}
	return src[0], src[1:], nil
}

// PutBytes appends a 4-byte big-endian length prefix followed by b.
func PutBytes(dst []byte, b []byte) []byte {
	dst = putUint32(dst, uint32(len(b)))
	return append(dst, b...)
}

// TakeBytes reads a length-prefixed byte slice, returning the remaining tail.
// The returned slice aliases src.
func TakeBytes(src []byte) ([]byte, []byte, error) {
	n, rest, err := takeUint32(src)
	if err != nil {
		return nil, nil, err
	}
	if uint32(len(rest)) < n {
		return nil, nil, &InvalidFormatError{Reason: "truncated length-prefixed bytes"}
	}
	return rest[:n], rest[n:], nil
}

// PutString appends a length-prefixed UTF-8 string.
func PutString(dst []byte, s string) []byte {
	return PutBytes(dst, []byte(s))
}

// TakeString reads a length-prefixed UTF-8 string.
func TakeString(src []byte) (string, []byte, error) {
	b, rest, err := TakeBytes(src)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}

// PutUint64 appends a fixed-width 8-byte big-endian uint64.
func PutUint64(dst []byte, v uint64) []byte { return putUint64(dst, v) }

// TakeUint64 reads a fixed-width 8-byte big-endian uint64.
func TakeUint64(src []byte) (uint64, []byte, error) { return takeUint64(src) }

// PutUint16 appends a fixed-width 2-byte big-endian uint16.
func PutUint16(dst []byte, v uint16) []byte { return putUint16(dst, v) }

// TakeUint16 reads a fixed-width 2-byte big-endian uint16.
func TakeUint16(src []byte) (uint16, []byte, error) { return takeUint16(src) }

// PutUint8 appends a single byte.
func PutUint8(dst []byte, v uint8) []byte { return putUint8(dst, v) }

// TakeUint8 reads a single byte.
func TakeUint8(src []byte) (uint8, []byte, error) { return takeUint8(src) }
