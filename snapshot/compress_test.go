package snapshot

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

type errWriter struct{}

func (errWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func zipWith(t *testing.T, build func(*zip.Writer)) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	build(zw)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestZIPDecompressErrors(t *testing.T) {
	cases := []struct {
		name     string
		archive  []byte
		expected uint64
	}{
		{"two entries", zipWith(t, func(zw *zip.Writer) {
			_, _ = zw.Create(zipEntryName)
			_, _ = zw.Create("extra")
		}), 0},
		{"wrong name", zipWith(t, func(zw *zip.Writer) {
			w, _ := zw.Create("payload.gob")
			_, _ = w.Write([]byte("abc"))
		}), 3},
		{"size mismatch", zipWith(t, func(zw *zip.Writer) {
			w, _ := zw.Create(zipEntryName)
			_, _ = w.Write([]byte("abcd"))
		}), 3},
		{"directory", zipWith(t, func(zw *zip.Writer) {
			h := &zip.FileHeader{Name: zipEntryName}
			h.SetMode(fs.ModeDir | 0o755)
			_, _ = zw.CreateHeader(h)
		}), 0},
		{"not a zip", []byte("PK nope"), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := zipDecompress(tc.archive, tc.expected); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestZIPOpenError(t *testing.T) {
	archive := zipWith(t, func(zw *zip.Writer) {
		w, _ := zw.Create(zipEntryName)
		_, _ = w.Write([]byte("abc"))
	})
	orig := zipOpen
	zipOpen = func(*zip.File) (io.ReadCloser, error) { return nil, io.ErrClosedPipe }
	defer func() { zipOpen = orig }()
	if _, err := zipDecompress(archive, 3); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected open error, got %v", err)
	}
}

func TestDecompressionExpansionGuards(t *testing.T) {
	in := []byte("hello world")
	cases := []struct {
		name       string
		compress   func([]byte) ([]byte, error)
		decompress func([]byte, uint64) ([]byte, error)
	}{
		{"zstd", zstdCompress, zstdDecompress},
		{"lz4", lz4Compress, lz4Decompress},
		{"brotli", brotliCompress, brotliDecompress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			packed, err := tc.compress(in)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := tc.decompress(packed, 1); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
			out, err := tc.decompress(packed, uint64(len(in)))
			if err != nil || !bytes.Equal(out, in) {
				t.Fatalf("round trip: %q, %v", out, err)
			}
		})
	}
}

func TestDecompressionCorruptStreams(t *testing.T) {
	if _, err := zstdDecompress([]byte("notzstd"), 100); err == nil {
		t.Fatal("zstd: expected error")
	}
	if _, err := lz4Decompress([]byte("notlz4"), 100); err == nil {
		t.Fatal("lz4: expected error")
	}
	if _, err := brotliDecompress([]byte("notbr"), 100); err == nil {
		t.Fatal("brotli: expected error")
	}
}

func TestDecompressPayloadBadEnvelope(t *testing.T) {
	withLen := uint16(CompZSTD) | sectionFlagHasUncompressedLen
	cases := []struct {
		name    string
		comp    Compression
		flags   uint16
		payload []byte
		max     uint64
		want    error
	}{
		{"none with length", CompNone, sectionFlagHasUncompressedLen, []byte("x"), 10, ErrInvalidPayload},
		{"none over limit", CompNone, 0, []byte("xyz"), 2, ErrLimitExceeded},
		{"missing length", CompZSTD, uint16(CompZSTD), []byte("x"), 10, ErrInvalidPayload},
		{"short prefix", CompZSTD, withLen, []byte{1, 2, 3}, 10, ErrInvalidPayload},
		{"declared over limit", CompZSTD, withLen, binary.LittleEndian.AppendUint64(nil, 11), 10, ErrLimitExceeded},
		{"unknown codec", Compression(7), uint16(7) | sectionFlagHasUncompressedLen, binary.LittleEndian.AppendUint64(nil, 1), 10, ErrInvalidPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := decompressPayload(tc.comp, tc.flags, tc.payload, tc.max); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCompressHelpers_ErrorPaths(t *testing.T) {
	restore := func(f func()) { t.Cleanup(f) }

	origCreate := zipCreate
	restore(func() { zipCreate = origCreate })
	zipCreate = func(*zip.Writer, string) (io.Writer, error) { return nil, io.ErrClosedPipe }
	if err := zipCompressNamed(io.Discard, zipEntryName, []byte("x")); err == nil {
		t.Fatal("zip create: expected error")
	}
	zipCreate = func(*zip.Writer, string) (io.Writer, error) { return errWriter{}, nil }
	if err := zipCompressNamed(io.Discard, zipEntryName, []byte("x")); err == nil {
		t.Fatal("zip entry write: expected error")
	}
	zipCreate = origCreate

	origClose := zipClose
	restore(func() { zipClose = origClose })
	zipClose = func(*zip.Writer) error { return io.ErrClosedPipe }
	if _, err := zipCompress([]byte("x")); err == nil {
		t.Fatal("zip close: expected error")
	}
	zipClose = origClose

	if err := zipCompressNamed(errWriter{}, zipEntryName, []byte("x")); err == nil {
		t.Fatal("zip sink: expected error")
	}
	if err := lz4CompressTo(errWriter{}, []byte("x")); err == nil {
		t.Fatal("lz4 sink: expected error")
	}

	origLZ4Close := lz4Close
	restore(func() { lz4Close = origLZ4Close })
	lz4Close = func(*lz4.Writer) error { return io.ErrClosedPipe }
	if _, err := lz4Compress([]byte("x")); err == nil {
		t.Fatal("lz4 close: expected error")
	}
	lz4Close = origLZ4Close

	origBrotliWrite := brotliWrite
	restore(func() { brotliWrite = origBrotliWrite })
	brotliWrite = func(*brotli.Writer, []byte) (int, error) { return 0, io.ErrClosedPipe }
	if _, err := brotliCompress([]byte("x")); err == nil {
		t.Fatal("brotli write: expected error")
	}
	brotliWrite = origBrotliWrite

	origBrotliClose := brotliClose
	restore(func() { brotliClose = origBrotliClose })
	brotliClose = func(*brotli.Writer) error { return io.ErrClosedPipe }
	if err := brotliCompressTo(io.Discard, []byte("x")); err == nil {
		t.Fatal("brotli close: expected error")
	}
	brotliClose = origBrotliClose
}

func TestReadBoundedError(t *testing.T) {
	orig := readAll
	readAll = func(io.Reader) ([]byte, error) { return nil, io.ErrClosedPipe }
	defer func() { readAll = orig }()
	if _, err := brotliDecompress([]byte("anything"), 10); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestZstdConstructorInjection(t *testing.T) {
	origW, origR := newZstdWriter, newZstdReader
	defer func() { newZstdWriter, newZstdReader = origW, origR }()

	newZstdWriter = func() (*zstd.Encoder, error) { return nil, io.ErrClosedPipe }
	if _, err := zstdCompress([]byte("x")); err == nil {
		t.Fatal("expected error")
	}
	if _, _, err := compressPayload(CompZSTD, []byte("x")); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("compressPayload: %v", err)
	}
	newZstdWriter = origW

	newZstdReader = func() (*zstd.Decoder, error) { return nil, io.ErrClosedPipe }
	if _, err := zstdDecompress([]byte("x"), 1); err == nil {
		t.Fatal("expected error")
	}
}
