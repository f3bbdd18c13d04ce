package snapshot

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

const (
	VersionV1 uint16 = 1

	fixedHeaderSizeV1 uint32 = 32
)

// Magic is the 8-byte snapshot file signature.
var Magic = [8]byte{'M', 'X', 'F', 'S', 'N', 'A', 'P', 0x1A}

const (
	HeaderFlagMetadataJSON uint16 = 0x0001
)

type SectionType uint16

const (
	SectionHeaderMetadata SectionType = 1
)

type Compression uint16

const (
	CompNone Compression = 0x0
	CompZIP  Compression = 0x1
	CompZSTD Compression = 0x2
	CompLZ4  Compression = 0x3
	CompBR   Compression = 0x4
)

const (
	sectionFlagCompressionMask    uint16 = 0x000F
	sectionFlagHasUncompressedLen uint16 = 0x0010
)

func (c Compression) String() string {
	switch c {
	case CompNone:
		return "none"
	case CompZIP:
		return "zip"
	case CompZSTD:
		return "zstd"
	case CompLZ4:
		return "lz4"
	case CompBR:
		return "brotli"
	default:
		return "unknown"
	}
}

// ParseCompression maps a name as printed by Compression.String back to its
// value. "br" is accepted for brotli.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompNone, nil
	case "zip":
		return CompZIP, nil
	case "zstd":
		return CompZSTD, nil
	case "lz4":
		return CompLZ4, nil
	case "brotli", "br":
		return CompBR, nil
	}
	return CompNone, fmt.Errorf("%w: unknown compression %q", ErrValidation, name)
}

// HeaderBundle is the payload of the header section.
type HeaderBundle struct {
	BundleVersion uint16
	// Schemas names the vocabularies a reader must load to interpret Data,
	// in load order.
	Schemas []string
	// Data is a header metadata byte stream, primer pack first.
	Data   []byte
	SHA256 [32]byte
}

func (b HeaderBundle) computedSHA256() [32]byte {
	return sha256.Sum256(b.Data)
}

// Snapshot is a logical representation of a snapshot file.
//
// Metadata is optional and, if present, is encoded as a JSON object.
type Snapshot struct {
	Metadata map[string]any
	Header   HeaderBundle
}
