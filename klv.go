package mxf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// DefaultLLen is the BER length size used for sets unless WithLLen says otherwise.
	DefaultLLen = 4

	maxBERBytes = 8
)

// ReadBER reads a BER encoded length from r and returns it together with the
// number of bytes consumed.
func ReadBER(r io.Reader) (uint64, int, error) {
	var b [1 + maxBERBytes]byte
	if _, err := io.ReadFull(r, b[:1]); err != nil {
		return 0, 0, err
	}
	if b[0] < 0x80 {
		return uint64(b[0]), 1, nil
	}
	n := int(b[0] & 0x7f)
	if n == 0 || n > maxBERBytes {
		return 0, 1, fmt.Errorf("%w: first byte 0x%02x", ErrInvalidBER, b[0])
	}
	if _, err := io.ReadFull(r, b[1:1+n]); err != nil {
		return 0, 1, unexpectedEOF(err)
	}
	var v uint64
	for _, c := range b[1 : 1+n] {
		v = v<<8 | uint64(c)
	}
	return v, 1 + n, nil
}

// EncodeBER encodes length using exactly llen bytes, or the shortest form
// when llen is 0.
func EncodeBER(length uint64, llen int) ([]byte, error) {
	if llen == 0 {
		llen = minBERLen(length)
	}
	if llen < 1 || llen > 1+maxBERBytes {
		return nil, fmt.Errorf("%w: llen %d out of range", ErrInvalidBER, llen)
	}
	if llen == 1 {
		if length >= 0x80 {
			return nil, fmt.Errorf("%w: %d does not fit a short form length", ErrInvalidBER, length)
		}
		return []byte{byte(length)}, nil
	}
	n := llen - 1
	if n < maxBERBytes && length>>(8*uint(n)) != 0 {
		return nil, fmt.Errorf("%w: %d does not fit in %d bytes", ErrInvalidBER, length, n)
	}
	out := make([]byte, llen)
	out[0] = 0x80 | byte(n)
	for i := llen - 1; i >= 1; i-- {
		out[i] = byte(length)
		length >>= 8
	}
	return out, nil
}

func minBERLen(length uint64) int {
	if length < 0x80 {
		return 1
	}
	n := 1
	for v := length >> 8; v != 0; v >>= 8 {
		n++
	}
	return 1 + n
}

// WriteBER writes length to w using llen bytes (0 for the shortest form).
func WriteBER(w io.Writer, length uint64, llen int) (int, error) {
	b, err := EncodeBER(length, llen)
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

// ReadKL reads a key and its BER length.
func ReadKL(r io.Reader) (Key, uint64, int, error) {
	var k Key
	if _, err := io.ReadFull(r, k[:]); err != nil {
		return k, 0, 0, err
	}
	length, n, err := ReadBER(r)
	if err != nil {
		return k, 0, len(k) + n, unexpectedEOF(err)
	}
	return k, length, len(k) + n, nil
}

// WriteKL writes a key followed by length encoded in llen bytes.
func WriteKL(w io.Writer, k Key, length uint64, llen int) (int, error) {
	b, err := EncodeBER(length, llen)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, 0, len(k)+len(b))
	buf = append(buf, k[:]...)
	buf = append(buf, b...)
	return w.Write(buf)
}

// SkipKLVFill consumes any KLV fill items at the head of r and returns the
// number of bytes skipped. r is left at the first key that is not fill, or
// at EOF.
func SkipKLVFill(r *bufio.Reader) (int64, error) {
	var skipped int64
	for {
		peek, err := r.Peek(len(Key{}))
		if len(peek) < len(Key{}) {
			if err == io.EOF {
				return skipped, nil
			}
			return skipped, err
		}
		if !IsKLVFill(Key(peek)) {
			return skipped, nil
		}
		_, length, n, err := ReadKL(r)
		if err != nil {
			return skipped, err
		}
		m, err := r.Discard(int(length))
		skipped += int64(n) + int64(m)
		if err != nil {
			return skipped, unexpectedEOF(err)
		}
	}
}

const (
	partitionHeaderByteCountOffset = 32
	partitionFixedLen              = 88
)

// HeaderByteCount extracts the HeaderByteCount field from the value of a
// partition pack.
func HeaderByteCount(partitionValue []byte) (uint64, error) {
	if len(partitionValue) < partitionFixedLen {
		return 0, fmt.Errorf("%w: partition pack value is %d bytes, want at least %d",
			ErrInvalidKLV, len(partitionValue), partitionFixedLen)
	}
	return binary.BigEndian.Uint64(partitionValue[partitionHeaderByteCountOffset:]), nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
