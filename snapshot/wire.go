package snapshot

import (
	"encoding/binary"
	"fmt"
	"io"
)

const sectionHeaderSizeV1 = 16

type fixedHeaderV1 struct {
	Magic          [8]byte
	Version        uint16
	HeaderFlags    uint16
	FixedHdrSize   uint32
	MetadataLength uint32
	Reserved0      uint32
	Reserved1      uint64
}

type sectionHeaderV1 struct {
	SectionType  uint16
	SectionFlags uint16
	PayloadLen   uint64
	Reserved     uint32
}

var le = binary.LittleEndian

func (h fixedHeaderV1) append(b []byte) []byte {
	b = append(b, h.Magic[:]...)
	b = le.AppendUint16(b, h.Version)
	b = le.AppendUint16(b, h.HeaderFlags)
	b = le.AppendUint32(b, h.FixedHdrSize)
	b = le.AppendUint32(b, h.MetadataLength)
	b = le.AppendUint32(b, h.Reserved0)
	return le.AppendUint64(b, h.Reserved1)
}

func readFixedHeader(r io.Reader) (fixedHeaderV1, error) {
	var buf [fixedHeaderSizeV1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return fixedHeaderV1{}, err
	}
	var h fixedHeaderV1
	copy(h.Magic[:], buf[:8])
	h.Version = le.Uint16(buf[8:])
	h.HeaderFlags = le.Uint16(buf[10:])
	h.FixedHdrSize = le.Uint32(buf[12:])
	h.MetadataLength = le.Uint32(buf[16:])
	h.Reserved0 = le.Uint32(buf[20:])
	h.Reserved1 = le.Uint64(buf[24:])
	return h, nil
}

func writeFixedHeader(w io.Writer, h fixedHeaderV1) error {
	_, err := w.Write(h.append(make([]byte, 0, fixedHeaderSizeV1)))
	return err
}

func (h fixedHeaderV1) validate() error {
	if h.Magic != Magic {
		return ErrInvalidMagic
	}
	if h.FixedHdrSize != fixedHeaderSizeV1 {
		return fmt.Errorf("%w: fixed header size %d", ErrInvalidHeader, h.FixedHdrSize)
	}
	if h.Version != VersionV1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Reserved0 != 0 || h.Reserved1 != 0 {
		return fmt.Errorf("%w: reserved must be zero", ErrInvalidHeader)
	}
	if h.HeaderFlags&^HeaderFlagMetadataJSON != 0 {
		return fmt.Errorf("%w: unknown flags 0x%04x", ErrInvalidHeader, h.HeaderFlags)
	}
	return nil
}

func (sh sectionHeaderV1) append(b []byte) []byte {
	b = le.AppendUint16(b, sh.SectionType)
	b = le.AppendUint16(b, sh.SectionFlags)
	b = le.AppendUint64(b, sh.PayloadLen)
	return le.AppendUint32(b, sh.Reserved)
}

func readSectionHeader(r io.Reader) (sectionHeaderV1, error) {
	var buf [sectionHeaderSizeV1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return sectionHeaderV1{}, err
	}
	return sectionHeaderV1{
		SectionType:  le.Uint16(buf[0:]),
		SectionFlags: le.Uint16(buf[2:]),
		PayloadLen:   le.Uint64(buf[4:]),
		Reserved:     le.Uint32(buf[12:]),
	}, nil
}

func writeSectionHeader(w io.Writer, sh sectionHeaderV1) error {
	_, err := w.Write(sh.append(make([]byte, 0, sectionHeaderSizeV1)))
	return err
}

func (sh sectionHeaderV1) compression() Compression {
	return Compression(sh.SectionFlags & sectionFlagCompressionMask)
}

func (sh sectionHeaderV1) hasUncompressedLen() bool {
	return sh.SectionFlags&sectionFlagHasUncompressedLen != 0
}

func (sh sectionHeaderV1) validate(expected SectionType) error {
	if sh.Reserved != 0 {
		return fmt.Errorf("%w: reserved must be 0", ErrInvalidSection)
	}
	if SectionType(sh.SectionType) != expected {
		return fmt.Errorf("%w: expected section type %d got %d", ErrInvalidSection, expected, sh.SectionType)
	}
	if sh.SectionFlags&^(sectionFlagCompressionMask|sectionFlagHasUncompressedLen) != 0 {
		return fmt.Errorf("%w: unknown flags 0x%04x", ErrInvalidSection, sh.SectionFlags)
	}
	comp := sh.compression()
	switch comp {
	case CompNone, CompZIP, CompZSTD, CompLZ4, CompBR:
	default:
		return fmt.Errorf("%w: unknown compression %d", ErrInvalidSection, comp)
	}
	if (comp == CompNone) == sh.hasUncompressedLen() {
		return fmt.Errorf("%w: %s payload with HAS_UNCOMPRESSED_LEN=%t", ErrInvalidSection, comp, sh.hasUncompressedLen())
	}
	return nil
}
