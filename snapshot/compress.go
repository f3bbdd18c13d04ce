package snapshot

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// zipEntryName is the single entry a ZIP-compressed section may hold.
const zipEntryName = "bundle.gob"

// Swapped out by tests.
var (
	newZstdWriter = func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) }
	newZstdReader = func() (*zstd.Decoder, error) { return zstd.NewReader(nil) }
	zipCreate     = func(zw *zip.Writer, name string) (io.Writer, error) { return zw.Create(name) }
	zipClose      = func(zw *zip.Writer) error { return zw.Close() }
	zipOpen       = func(zf *zip.File) (io.ReadCloser, error) { return zf.Open() }
	readAll       = io.ReadAll
	lz4Close      = func(w *lz4.Writer) error { return w.Close() }
	brotliClose   = func(w *brotli.Writer) error { return w.Close() }
	brotliWrite   = func(w *brotli.Writer, p []byte) (int, error) { return w.Write(p) }
)

type codec struct {
	compress   func(in []byte) ([]byte, error)
	decompress func(in []byte, expected uint64) ([]byte, error)
}

func codecFor(comp Compression) (codec, bool) {
	switch comp {
	case CompZIP:
		return codec{zipCompress, zipDecompress}, true
	case CompZSTD:
		return codec{zstdCompress, zstdDecompress}, true
	case CompLZ4:
		return codec{lz4Compress, lz4Decompress}, true
	case CompBR:
		return codec{brotliCompress, brotliDecompress}, true
	}
	return codec{}, false
}

// compressPayload returns the section flags and the stored payload for raw.
// Compressed payloads are prefixed with the little-endian uncompressed length.
func compressPayload(comp Compression, raw []byte) (uint16, []byte, error) {
	if comp == CompNone {
		return uint16(CompNone), raw, nil
	}
	c, ok := codecFor(comp)
	if !ok {
		return 0, nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidPayload, comp)
	}
	packed, err := c.compress(raw)
	if err != nil {
		return 0, nil, fmt.Errorf("%s compress: %w", comp, err)
	}
	payload := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(packed)), uint64(len(raw)))
	payload = append(payload, packed...)
	return uint16(comp) | sectionFlagHasUncompressedLen, payload, nil
}

// decompressPayload reverses compressPayload, refusing to produce more than
// maxUncompressed bytes.
func decompressPayload(comp Compression, sectionFlags uint16, payload []byte, maxUncompressed uint64) ([]byte, error) {
	hasLen := sectionFlags&sectionFlagHasUncompressedLen != 0
	if comp == CompNone {
		if hasLen {
			return nil, fmt.Errorf("%w: COMP_NONE with HAS_UNCOMPRESSED_LEN", ErrInvalidPayload)
		}
		if uint64(len(payload)) > maxUncompressed {
			return nil, fmt.Errorf("%w: payload length %d exceeds limit", ErrLimitExceeded, len(payload))
		}
		return payload, nil
	}
	if !hasLen {
		return nil, fmt.Errorf("%w: missing HAS_UNCOMPRESSED_LEN", ErrInvalidPayload)
	}
	if len(payload) < 8 {
		return nil, fmt.Errorf("%w: payload too short for uncompressed length", ErrInvalidPayload)
	}
	want := binary.LittleEndian.Uint64(payload[:8])
	if want > maxUncompressed {
		return nil, fmt.Errorf("%w: uncompressed length %d exceeds limit", ErrLimitExceeded, want)
	}
	c, ok := codecFor(comp)
	if !ok {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrInvalidPayload, comp)
	}
	out, err := c.decompress(payload[8:], want)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) != want {
		return nil, fmt.Errorf("%w: decompressed length %d != expected %d", ErrInvalidPayload, len(out), want)
	}
	return out, nil
}

// readBounded reads at most expected bytes from r and fails if more follow.
func readBounded(r io.Reader, expected uint64, name string) ([]byte, error) {
	b, err := readAll(io.LimitReader(r, int64(expected)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(b)) > expected {
		return nil, fmt.Errorf("%w: %s expanded beyond expected size", ErrInvalidPayload, name)
	}
	return b, nil
}

func zipCompress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := zipCompressNamed(&buf, zipEntryName, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func zipCompressNamed(w io.Writer, name string, in []byte) error {
	zw := zip.NewWriter(w)
	entry, err := zipCreate(zw, name)
	if err == nil {
		_, err = entry.Write(in)
	}
	if err != nil {
		_ = zipClose(zw)
		return err
	}
	return zipClose(zw)
}

// zipDecompress extracts the single bundle entry, checking its declared size
// against expected before reading.
func zipDecompress(in []byte, expected uint64) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(in), int64(len(in)))
	if err != nil {
		return nil, err
	}
	if len(zr.File) != 1 {
		return nil, fmt.Errorf("%w: zip must contain exactly one entry, found %d", ErrInvalidPayload, len(zr.File))
	}
	zf := zr.File[0]
	switch {
	case zf.Name != zipEntryName:
		return nil, fmt.Errorf("%w: zip entry %q, want %q", ErrInvalidPayload, zf.Name, zipEntryName)
	case zf.FileInfo().IsDir():
		return nil, fmt.Errorf("%w: zip entry must be a file", ErrInvalidPayload)
	case zf.UncompressedSize64 != expected:
		return nil, fmt.Errorf("%w: zip uncompressed size %d != expected %d", ErrInvalidPayload, zf.UncompressedSize64, expected)
	}
	rc, err := zipOpen(zf)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return readBounded(rc, expected, "zip")
}

func zstdCompress(in []byte) ([]byte, error) {
	enc, err := newZstdWriter()
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(in, nil), nil
}

func zstdDecompress(in []byte, expected uint64) ([]byte, error) {
	dec, err := newZstdReader()
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(in, nil)
	if err != nil {
		return nil, err
	}
	if uint64(len(out)) > expected {
		return nil, fmt.Errorf("%w: zstd expanded beyond expected size", ErrInvalidPayload)
	}
	return out, nil
}

func lz4Compress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := lz4CompressTo(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4CompressTo(w io.Writer, in []byte) error {
	zw := lz4.NewWriter(w)
	if _, err := zw.Write(in); err != nil {
		_ = lz4Close(zw)
		return err
	}
	return lz4Close(zw)
}

func lz4Decompress(in []byte, expected uint64) ([]byte, error) {
	return readBounded(lz4.NewReader(bytes.NewReader(in)), expected, "lz4")
}

func brotliCompress(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := brotliCompressTo(&buf, in); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliCompressTo(w io.Writer, in []byte) error {
	bw := brotli.NewWriter(w)
	if _, err := brotliWrite(bw, in); err != nil {
		_ = brotliClose(bw)
		return err
	}
	return brotliClose(bw)
}

func brotliDecompress(in []byte, expected uint64) ([]byte, error) {
	return readBounded(brotli.NewReader(bytes.NewReader(in)), expected, "brotli")
}
