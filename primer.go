package mxf

import (
	"encoding/binary"
	"fmt"
)

const (
	// PrimerEntrySize is the on-wire size of one primer entry: a local tag
	// followed by an item key.
	PrimerEntrySize = 18

	dynamicTagMin LocalTag = 0x8000
	dynamicTagMax LocalTag = 0xffff
)

// PrimerEntry maps one local tag to one item key.
type PrimerEntry struct {
	Tag LocalTag
	Key Key
}

// PrimerPack is the per-document bijection between local tags and item keys.
// Static tags are kept when free; everything else gets a dynamic tag counting
// down from 0xffff. Once the owning document has been serialized the pack is
// frozen and only lookups of already registered keys succeed.
type PrimerPack struct {
	byTag   map[LocalTag]Key
	byKey   map[Key]LocalTag
	entries []PrimerEntry
	next    LocalTag
	frozen  bool
}

func NewPrimerPack() *PrimerPack {
	return &PrimerPack{
		byTag: make(map[LocalTag]Key),
		byKey: make(map[Key]LocalTag),
		next:  dynamicTagMax,
	}
}

// Register returns the tag for key, assigning one if key is new. requested
// is honoured when non-zero and not owned by another key. A key that is
// already registered keeps its tag whatever is requested.
func (p *PrimerPack) Register(key Key, requested LocalTag) (LocalTag, error) {
	if tag, ok := p.byKey[key]; ok {
		return tag, nil
	}
	if p.frozen {
		return 0, fmt.Errorf("%w: cannot register %s", ErrPrimerFrozen, key)
	}
	tag := requested
	if _, taken := p.byTag[tag]; tag == 0 || taken {
		var ok bool
		if tag, ok = p.allocate(); !ok {
			return 0, fmt.Errorf("%w: cannot register %s", ErrPrimerFull, key)
		}
	}
	p.add(tag, key)
	return tag, nil
}

func (p *PrimerPack) add(tag LocalTag, key Key) {
	p.byTag[tag] = key
	p.byKey[key] = tag
	p.entries = append(p.entries, PrimerEntry{Tag: tag, Key: key})
}

// allocate scans down from the last dynamic tag, wrapping once to the top
// of the pool.
func (p *PrimerPack) allocate() (LocalTag, bool) {
	pool := int(dynamicTagMax-dynamicTagMin) + 1
	tag := p.next
	for i := 0; i < pool; i++ {
		if _, taken := p.byTag[tag]; !taken {
			p.next = tag - 1
			if tag == dynamicTagMin {
				p.next = dynamicTagMax
			}
			return tag, true
		}
		if tag == dynamicTagMin {
			tag = dynamicTagMax
		} else {
			tag--
		}
	}
	return 0, false
}

// Key resolves a tag seen on the wire.
func (p *PrimerPack) Key(tag LocalTag) (Key, bool) {
	k, ok := p.byTag[tag]
	return k, ok
}

// Tag resolves the tag to emit for key.
func (p *PrimerPack) Tag(key Key) (LocalTag, bool) {
	t, ok := p.byKey[key]
	return t, ok
}

func (p *PrimerPack) Len() int { return len(p.entries) }

// Entries returns the mappings in registration order, which is also the
// order they are written in.
func (p *PrimerPack) Entries() []PrimerEntry {
	return append([]PrimerEntry(nil), p.entries...)
}

// Freeze stops further registrations.
func (p *PrimerPack) Freeze() { p.frozen = true }

func (p *PrimerPack) Frozen() bool { return p.frozen }

func (p *PrimerPack) payloadLen() uint64 {
	return 8 + uint64(len(p.entries))*PrimerEntrySize
}

func (p *PrimerPack) appendPayload(buf []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(p.entries)))
	buf = binary.BigEndian.AppendUint32(buf, PrimerEntrySize)
	for _, e := range p.entries {
		buf = binary.BigEndian.AppendUint16(buf, uint16(e.Tag))
		buf = append(buf, e.Key[:]...)
	}
	return buf
}

// parsePrimerPayload decodes the value of a primer pack KLV.
func parsePrimerPayload(value []byte, limits Limits) (*PrimerPack, error) {
	if len(value) < 8 {
		return nil, fmt.Errorf("%w: primer pack value is %d bytes", ErrInvalidKLV, len(value))
	}
	count := binary.BigEndian.Uint32(value[0:4])
	size := binary.BigEndian.Uint32(value[4:8])
	if size != PrimerEntrySize {
		return nil, fmt.Errorf("%w: primer entry size %d, want %d", ErrInvalidKLV, size, PrimerEntrySize)
	}
	if count > limits.MaxPrimerEntries {
		return nil, fmt.Errorf("%w: %d primer entries (max %d)", ErrLimitExceeded, count, limits.MaxPrimerEntries)
	}
	if uint64(len(value)-8) < uint64(count)*PrimerEntrySize {
		return nil, fmt.Errorf("%w: primer pack declares %d entries in %d bytes", ErrInvalidKLV, count, len(value))
	}
	p := NewPrimerPack()
	off := 8
	for i := uint32(0); i < count; i++ {
		tag := LocalTag(binary.BigEndian.Uint16(value[off:]))
		var key Key
		copy(key[:], value[off+2:off+PrimerEntrySize])
		off += PrimerEntrySize

		if prev, ok := p.byTag[tag]; ok {
			if prev == key {
				continue
			}
			return nil, fmt.Errorf("%w: primer tag 0x%04x maps to both %s and %s", ErrInvalidKLV, uint16(tag), prev, key)
		}
		if prev, ok := p.byKey[key]; ok {
			return nil, fmt.Errorf("%w: primer key %s maps to both 0x%04x and 0x%04x", ErrInvalidKLV, key, uint16(prev), uint16(tag))
		}
		p.add(tag, key)
	}
	return p, nil
}
