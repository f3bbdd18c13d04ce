package mxf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ReadHeaderMetadata parses header metadata from r: optional KLV fill, the
// primer pack, then local sets. headerByteCount is the size of the header
// metadata as recorded in the partition pack; 0 reads until EOF.
//
// Sets of unknown classes and items not legal for their set's class are
// skipped. A set without an InstanceUID is an error.
func ReadHeaderMetadata(r io.Reader, dm *DataModel, headerByteCount uint64, opts ...ReadOption) (*HeaderMetadata, error) {
	if !dm.Finalized() {
		return nil, ErrNotFinalized
	}
	cfg := readConfig{logger: dm.logger}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	limit := headerByteCount
	if limit == 0 {
		limit = cfg.limits.MaxHeaderByteCount
	} else if limit > cfg.limits.MaxHeaderByteCount {
		return nil, fmt.Errorf("%w: header byte count %d (max %d)", ErrLimitExceeded, headerByteCount, cfg.limits.MaxHeaderByteCount)
	}

	rd := &headerReader{
		r:      &countingReader{r: r},
		limit:  limit,
		untilE: headerByteCount == 0,
		cfg:    cfg,
	}
	hm := newDocument(dm, nil, StateEmpty)
	hm.logger = cfg.logger
	if err := rd.readPrimer(hm); err != nil {
		return nil, err
	}
	if err := rd.readSets(hm); err != nil {
		return nil, err
	}
	hm.state = StateSetsLoaded

	dangling := hm.DanglingRefs()
	for _, d := range dangling {
		if d.Kind != RefStrong {
			continue
		}
		cfg.logger.Warn("dangling strong reference",
			zap.Stringer("set", d.Set.uid),
			zap.Stringer("item", d.Item),
			zap.Stringer("target", d.Target))
		if cfg.strictRefs {
			return nil, fmt.Errorf("%w: set %s item %s references %s", ErrDanglingReference, d.Set.uid, d.Item, d.Target)
		}
	}
	// Ready needs every referenced set, weak targets included.
	if len(dangling) == 0 {
		hm.state = StateReady
	}
	return hm, nil
}

type headerReader struct {
	r      *countingReader
	limit  uint64
	untilE bool
	cfg    readConfig
}

// next reads the key and length of the next KLV that is not fill. It
// reports io.EOF only at a clean boundary between KLVs.
func (hr *headerReader) next() (Key, uint64, int64, error) {
	for {
		start := hr.r.n
		if !hr.untilE && uint64(start) >= hr.limit {
			return Key{}, 0, start, io.EOF
		}
		k, length, _, err := ReadKL(hr.r)
		if err != nil {
			if errors.Is(err, io.EOF) && hr.r.n == start && hr.untilE {
				return Key{}, 0, start, io.EOF
			}
			return Key{}, 0, start, unexpectedEOF(err)
		}
		if uint64(hr.r.n) > hr.limit || length > hr.limit-uint64(hr.r.n) {
			if hr.untilE {
				return Key{}, 0, start, fmt.Errorf("%w: header metadata exceeds %d bytes", ErrLimitExceeded, hr.limit)
			}
			return Key{}, 0, start, fmt.Errorf("%w: KLV at offset %d overruns header metadata", ErrInvalidKLV, start)
		}
		if IsKLVFill(k) {
			if err := hr.skip(length); err != nil {
				return Key{}, 0, start, err
			}
			continue
		}
		return k, length, start, nil
	}
}

func (hr *headerReader) skip(n uint64) error {
	_, err := io.CopyN(io.Discard, hr.r, int64(n))
	return unexpectedEOF(err)
}

func (hr *headerReader) value(n uint64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(hr.r, buf); err != nil {
		return nil, unexpectedEOF(err)
	}
	return buf, nil
}

func (hr *headerReader) readPrimer(hm *HeaderMetadata) error {
	k, length, _, err := hr.next()
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%w: no primer pack", ErrInvalidKLV)
		}
		return err
	}
	if !IsPrimerPack(k) {
		return fmt.Errorf("%w: expected primer pack, found %s", ErrInvalidKLV, k)
	}
	maxLen := 8 + uint64(hr.cfg.limits.MaxPrimerEntries)*PrimerEntrySize
	if length > maxLen {
		return fmt.Errorf("%w: primer pack of %d bytes (max %d)", ErrLimitExceeded, length, maxLen)
	}
	v, err := hr.value(length)
	if err != nil {
		return err
	}
	p, err := parsePrimerPayload(v, hr.cfg.limits)
	if err != nil {
		return err
	}
	hm.primer = p
	hm.state = StatePrimerLoaded
	return nil
}

func (hr *headerReader) readSets(hm *HeaderMetadata) error {
	log := hr.cfg.logger
	for {
		k, length, offset, err := hr.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if IsPrimerPack(k) {
			return fmt.Errorf("%w: second primer pack at offset %d", ErrInvalidKLV, offset)
		}
		if length > hr.cfg.limits.MaxSetLen {
			return fmt.Errorf("%w: set %s at offset %d is %d bytes (max %d)",
				ErrLimitExceeded, k, offset, length, hr.cfg.limits.MaxSetLen)
		}
		def, ok := hm.dm.FindSetDef(k)
		if !ok {
			log.Debug("skipping dark set", zap.Stringer("key", k), zap.Int64("offset", offset), zap.Uint64("len", length))
			if err := hr.skip(length); err != nil {
				return err
			}
			continue
		}
		if len(hm.sets) >= hr.cfg.limits.MaxSets {
			return fmt.Errorf("%w: more than %d sets", ErrLimitExceeded, hr.cfg.limits.MaxSets)
		}
		v, err := hr.value(length)
		if err != nil {
			return err
		}
		s, err := hr.decodeSet(hm, def, v)
		if err != nil {
			return fmt.Errorf("set %q at offset %d: %w", def.Name, offset, err)
		}
		hm.offsets[s.uid] = offset
	}
	// Later writes must be able to emit InstanceUID even if the stream's
	// primer did not map it.
	if _, err := hm.primer.Register(InstanceUIDKey, InstanceUIDTag); err != nil {
		return err
	}
	return nil
}

func (hr *headerReader) decodeSet(hm *HeaderMetadata, def *SetDef, v []byte) (*Set, error) {
	log := hr.cfg.logger
	s := &Set{doc: hm, def: def, index: make(map[Key]*Item)}
	haveUID := false
	for off := 0; off < len(v); {
		if len(v)-off < 4 {
			return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidKLV, len(v)-off)
		}
		tag := LocalTag(binary.BigEndian.Uint16(v[off:]))
		n := int(binary.BigEndian.Uint16(v[off+2:]))
		off += 4
		if n > len(v)-off {
			return nil, fmt.Errorf("%w: item 0x%04x of %d bytes overruns set", ErrInvalidKLV, uint16(tag), n)
		}
		value := v[off : off+n]
		off += n

		key, ok := hm.primer.Key(tag)
		if !ok {
			log.Debug("skipping item with unmapped local tag", zap.Stringer("set", def.Key), zap.Uint16("tag", uint16(tag)))
			continue
		}
		if key == InstanceUIDKey {
			if len(value) != len(UUID{}) {
				return nil, fmt.Errorf("%w: InstanceUID is %d bytes", ErrInvalidKLV, len(value))
			}
			s.uid = UUID(value)
			haveUID = true
			continue
		}
		idef, ok := hm.dm.FindItemDefInSet(key, def)
		if !ok {
			log.Debug("skipping item not allowed in set", zap.Stringer("set", def.Key), zap.Stringer("item", key))
			continue
		}
		if it, dup := s.index[key]; dup {
			it.Value = append([]byte(nil), value...)
			continue
		}
		if len(s.items) >= hr.cfg.limits.MaxItemsPerSet {
			return nil, fmt.Errorf("%w: more than %d items", ErrLimitExceeded, hr.cfg.limits.MaxItemsPerSet)
		}
		it := &Item{Key: key, Value: append([]byte(nil), value...), def: idef, ref: hm.dm.refKind(idef.TypeID)}
		s.items = append(s.items, it)
		s.index[key] = it
	}
	if !haveUID {
		return nil, fmt.Errorf("%w: set has no InstanceUID", ErrInvalidKLV)
	}
	if _, taken := hm.byUID[s.uid]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, s.uid)
	}
	hm.sets = append(hm.sets, s)
	hm.byUID[s.uid] = s
	return s, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
