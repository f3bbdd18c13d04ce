package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

// rawFile assembles a snapshot byte stream without any validation.
func rawFile(h fixedHeaderV1, metadata []byte, sh sectionHeaderV1, payload []byte) []byte {
	b := h.append(nil)
	b = append(b, metadata...)
	b = sh.append(b)
	return append(b, payload...)
}

func goodHeader(metaLen int) fixedHeaderV1 {
	h := fixedHeaderV1{Magic: Magic, Version: VersionV1, FixedHdrSize: fixedHeaderSizeV1, MetadataLength: uint32(metaLen)}
	if metaLen > 0 {
		h.HeaderFlags = HeaderFlagMetadataJSON
	}
	return h
}

func rawSection(t *testing.T, b HeaderBundle) (sectionHeaderV1, []byte) {
	t.Helper()
	raw, err := gobEncode(b)
	if err != nil {
		t.Fatal(err)
	}
	return sectionHeaderV1{SectionType: uint16(SectionHeaderMetadata), PayloadLen: uint64(len(raw))}, raw
}

func TestDecodeRejectsFixedHeader(t *testing.T) {
	bundle := sampleSnapshot(t).Header
	sh, payload := rawSection(t, bundle)
	cases := []struct {
		name string
		edit func(*fixedHeaderV1)
		want error
	}{
		{"magic", func(h *fixedHeaderV1) { h.Magic[0] = 'X' }, ErrInvalidMagic},
		{"size", func(h *fixedHeaderV1) { h.FixedHdrSize = 40 }, ErrInvalidHeader},
		{"version", func(h *fixedHeaderV1) { h.Version = 2 }, ErrUnsupportedVersion},
		{"reserved0", func(h *fixedHeaderV1) { h.Reserved0 = 1 }, ErrInvalidHeader},
		{"reserved1", func(h *fixedHeaderV1) { h.Reserved1 = 1 }, ErrInvalidHeader},
		{"flags", func(h *fixedHeaderV1) { h.HeaderFlags = 0x8000 }, ErrInvalidHeader},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := goodHeader(0)
			tc.edit(&h)
			_, err := Decode(bytes.NewReader(rawFile(h, nil, sh, payload)))
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeMetadataBlock(t *testing.T) {
	sh, payload := rawSection(t, sampleSnapshot(t).Header)

	noFlag := goodHeader(2)
	noFlag.HeaderFlags = 0
	if _, err := Decode(bytes.NewReader(rawFile(noFlag, []byte("{}"), sh, payload))); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("missing flag: %v", err)
	}
	if _, err := Decode(bytes.NewReader(rawFile(goodHeader(4), []byte("null"), sh, payload))); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("null metadata: %v", err)
	}
	if _, err := Decode(bytes.NewReader(rawFile(goodHeader(2), []byte("[]"), sh, payload))); !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("array metadata: %v", err)
	}
	big := goodHeader(1 << 10)
	if _, err := Decode(bytes.NewReader(rawFile(big, nil, sh, payload)), WithReadLimits(Limits{MaxMetadataLen: 16})); !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("metadata limit: %v", err)
	}
	if _, err := Decode(bytes.NewReader(goodHeader(10).append(nil))); !errors.Is(err, io.EOF) {
		t.Fatalf("truncated metadata: %v", err)
	}
}

func TestDecodeRejectsSectionHeader(t *testing.T) {
	_, payload := rawSection(t, sampleSnapshot(t).Header)
	base := sectionHeaderV1{SectionType: uint16(SectionHeaderMetadata), PayloadLen: uint64(len(payload))}
	cases := []struct {
		name string
		edit func(*sectionHeaderV1)
		opts []ReadOption
		want error
	}{
		{"type", func(sh *sectionHeaderV1) { sh.SectionType = 2 }, nil, ErrInvalidSection},
		{"reserved", func(sh *sectionHeaderV1) { sh.Reserved = 1 }, nil, ErrInvalidSection},
		{"unknown flag", func(sh *sectionHeaderV1) { sh.SectionFlags = 0x0100 }, nil, ErrInvalidSection},
		{"unknown compression", func(sh *sectionHeaderV1) { sh.SectionFlags = 0x7 | sectionFlagHasUncompressedLen }, nil, ErrInvalidSection},
		{"none with length", func(sh *sectionHeaderV1) { sh.SectionFlags = sectionFlagHasUncompressedLen }, nil, ErrInvalidSection},
		{"zstd without length", func(sh *sectionHeaderV1) { sh.SectionFlags = uint16(CompZSTD) }, nil, ErrInvalidSection},
		{"section limit", func(*sectionHeaderV1) {}, []ReadOption{WithReadLimits(Limits{MaxSectionLen: 8})}, ErrLimitExceeded},
		{"uncompressed limit", func(*sectionHeaderV1) {}, []ReadOption{WithReadLimits(Limits{MaxUncompressed: 8})}, ErrLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sh := base
			tc.edit(&sh)
			_, err := Decode(bytes.NewReader(rawFile(goodHeader(0), nil, sh, payload)), tc.opts...)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestDecodeRejectsPayload(t *testing.T) {
	good := sampleSnapshot(t).Header

	sh, payload := rawSection(t, good)
	if _, err := Decode(bytes.NewReader(rawFile(goodHeader(0), nil, sh, payload[:len(payload)-1]))); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("truncated payload: %v", err)
	}

	garbage := []byte("not a gob stream")
	sh.PayloadLen = uint64(len(garbage))
	if _, err := Decode(bytes.NewReader(rawFile(goodHeader(0), nil, sh, garbage))); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("bad gob: %v", err)
	}

	noPrimer := good
	noPrimer.Data = bytes.Repeat([]byte{0xaa}, 40)
	noPrimer.SHA256 = [32]byte{}
	sh, payload = rawSection(t, noPrimer)
	if _, err := Decode(bytes.NewReader(rawFile(goodHeader(0), nil, sh, payload))); !errors.Is(err, ErrValidation) {
		t.Fatalf("no primer: %v", err)
	}

	if _, err := Decode(bytes.NewReader(goodHeader(0).append(nil))); !errors.Is(err, io.EOF) {
		t.Fatalf("missing section: %v", err)
	}
	if _, err := Decode(bytes.NewReader(Magic[:])); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("short fixed header: %v", err)
	}
}

func TestDecodeCompressedLengthMismatch(t *testing.T) {
	raw, err := gobEncode(sampleSnapshot(t).Header)
	if err != nil {
		t.Fatal(err)
	}
	packed, err := zstdCompress(raw)
	if err != nil {
		t.Fatal(err)
	}
	payload := binary.LittleEndian.AppendUint64(nil, uint64(len(raw)+5))
	payload = append(payload, packed...)
	sh := sectionHeaderV1{
		SectionType:  uint16(SectionHeaderMetadata),
		SectionFlags: uint16(CompZSTD) | sectionFlagHasUncompressedLen,
		PayloadLen:   uint64(len(payload)),
	}
	if _, err := Decode(bytes.NewReader(rawFile(goodHeader(0), nil, sh, payload))); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestIsSnapshot(t *testing.T) {
	if IsSnapshot(Magic[:7]) {
		t.Fatal("short input")
	}
	if !IsSnapshot(append(Magic[:], 1, 2, 3)) {
		t.Fatal("magic not recognised")
	}
	if IsSnapshot([]byte("MXFSNAPX")) {
		t.Fatal("wrong final byte accepted")
	}
}
