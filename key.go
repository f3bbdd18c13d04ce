package mxf

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Key is a 16-byte SMPTE Universal Label used as a KLV key and to identify
// classes and properties.
type Key [16]byte

// UL is a Universal Label. Keys and labels share a representation.
type UL = Key

// UUID identifies a Set instance within a document.
type UUID [16]byte

// UMID is a 32-byte basic SMPTE Unique Material Identifier.
type UMID [32]byte

// LocalTag is the 16-bit per-document alias of an item key.
type LocalTag uint16

// NullKey marks the absence of a key, e.g. the parent of the schema root.
var NullKey Key

var (
	// InstanceUIDKey identifies InterchangeObject/InstanceUID, which every set carries.
	InstanceUIDKey = Key{0x06, 0x0e, 0x2b, 0x34, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, 0x15, 0x02, 0x00, 0x00, 0x00, 0x00}

	PrimerPackKey = Key{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0d, 0x01, 0x02, 0x01, 0x01, 0x05, 0x01, 0x00}

	// KLVFillKey is written with registry version 0x01 for compatibility with
	// existing applications; IsKLVFill accepts either version.
	KLVFillKey = Key{0x06, 0x0e, 0x2b, 0x34, 0x01, 0x01, 0x01, 0x01, 0x03, 0x01, 0x02, 0x10, 0x01, 0x00, 0x00, 0x00}

	partitionPackPrefix = [13]byte{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x05, 0x01, 0x01, 0x0d, 0x01, 0x02, 0x01, 0x01}
)

// InstanceUIDTag is the static local tag of InstanceUIDKey.
const InstanceUIDTag LocalTag = 0x3c0a

func (k Key) IsNull() bool { return k == NullKey }

// String formats k as dotted lowercase hex, e.g. "06.0e.2b.34...".
func (k Key) String() string {
	var sb strings.Builder
	sb.Grow(47)
	for i, b := range k {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(hex.EncodeToString([]byte{b}))
	}
	return sb.String()
}

// ParseKey parses 32 hex digits, optionally separated by '.', ' ', '-' or ':'
// and optionally prefixed by "urn:smpte:ul:" or "0x".
func ParseKey(s string) (Key, error) {
	var k Key
	clean := strings.ToLower(strings.TrimSpace(s))
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "urn:smpte:ul:"), "0x")
	clean = strings.Map(func(r rune) rune {
		switch r {
		case '.', ' ', '-', ':':
			return -1
		}
		return r
	}, clean)
	if len(clean) != 32 {
		return k, fmt.Errorf("mxf: key %q: want 32 hex digits, got %d", s, len(clean))
	}
	if _, err := hex.Decode(k[:], []byte(clean)); err != nil {
		return k, fmt.Errorf("mxf: key %q: %w", s, err)
	}
	return k, nil
}

// IsPrimerPack reports whether k is the Primer Pack key.
func IsPrimerPack(k Key) bool { return k == PrimerPackKey }

// IsKLVFill reports whether k is a KLV fill key, ignoring the registry version byte.
func IsKLVFill(k Key) bool {
	k[7] = KLVFillKey[7]
	return k == KLVFillKey
}

// IsPartitionPack reports whether k is a header, body or footer partition pack key.
func IsPartitionPack(k Key) bool {
	if [13]byte(k[:13]) != partitionPackPrefix {
		return false
	}
	return k[13] >= 0x02 && k[13] <= 0x04 && k[14] >= 0x01 && k[14] <= 0x04
}

// IsHeaderPartitionPack reports whether k is a header partition pack key.
func IsHeaderPartitionPack(k Key) bool {
	return IsPartitionPack(k) && k[13] == 0x02
}

func (u UUID) String() string { return uuid.UUID(u).String() }

func (u UUID) IsNull() bool { return u == UUID{} }

// NewUUID returns a random (version 4) UUID.
func NewUUID() UUID { return UUID(uuid.New()) }

// ParseUUID parses the canonical textual form of a UUID.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("mxf: uuid %q: %w", s, err)
	}
	return UUID(u), nil
}

func (u UMID) String() string {
	return hex.EncodeToString(u[:12]) + "." + hex.EncodeToString(u[12:16]) + "." + hex.EncodeToString(u[16:])
}

func (u UMID) IsNull() bool { return u == UMID{} }

// GenerateUMID returns a basic UMID with a UUID material number and no
// instance number.
func GenerateUMID() UMID {
	u := UMID{
		0x06, 0x0a, 0x2b, 0x34, 0x01, 0x01, 0x01, 0x05,
		0x01, 0x01,
		0x0f, // material type not identified
		0x20, // UUID/UL material generation, no instance method
		0x13, 0x00, 0x00, 0x00,
	}
	id := NewUUID()
	copy(u[16:], id[:])
	return u
}

// GenerateKey returns a fresh key made from a half-swapped UUID, so the
// result can never collide with a registered SMPTE label.
func GenerateKey() Key {
	id := NewUUID()
	var k Key
	copy(k[:8], id[8:])
	copy(k[8:], id[:8])
	return k
}

// Timestamp is the MXF Timestamp compound. QMSec counts units of 1/250 second.
type Timestamp struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	QMSec  uint8
}

// TimestampOf converts t to UTC and truncates it to 1/250 second.
func TimestampOf(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{
		Year:   uint16(t.Year()),
		Month:  uint8(t.Month()),
		Day:    uint8(t.Day()),
		Hour:   uint8(t.Hour()),
		Minute: uint8(t.Minute()),
		Second: uint8(t.Second()),
		QMSec:  uint8(t.Nanosecond() / 4_000_000),
	}
}

// Now returns the current UTC time as a Timestamp.
func Now() Timestamp { return TimestampOf(time.Now()) }

// Time converts ts back to a UTC time.Time.
func (ts Timestamp) Time() time.Time {
	return time.Date(int(ts.Year), time.Month(ts.Month), int(ts.Day),
		int(ts.Hour), int(ts.Minute), int(ts.Second), int(ts.QMSec)*4_000_000, time.UTC)
}

// Rational is the MXF Rational compound.
type Rational struct {
	Numerator   int32
	Denominator int32
}

// ProductVersion is the MXF ProductVersion compound.
type ProductVersion struct {
	Major   uint16
	Minor   uint16
	Patch   uint16
	Build   uint16
	Release uint16
}
