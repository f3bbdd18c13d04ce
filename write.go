package mxf

import (
	"encoding/binary"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// WriteTo serializes the document with default options. It implements
// io.WriterTo.
func (hm *HeaderMetadata) WriteTo(w io.Writer) (int64, error) {
	return hm.Write(w)
}

// Write serializes the primer pack followed by every set as local sets.
// The first call freezes the primer pack: later writes may change values of
// items it already maps but cannot introduce new item keys. Offsets of the
// written sets are available afterwards through Offset.
func (hm *HeaderMetadata) Write(w io.Writer, opts ...WriteOption) (int64, error) {
	cfg := writeConfig{llen: DefaultLLen, logger: hm.logger}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.llen < 2 || cfg.llen > 1+maxBERBytes {
		return 0, fmt.Errorf("%w: llen %d out of range", ErrInvalidBER, cfg.llen)
	}
	switch hm.state {
	case StateBuilding, StateSerialized, StateReady, StateSetsLoaded:
	default:
		return 0, fmt.Errorf("%w: cannot write a document in state %s", ErrInvalidState, hm.state)
	}

	// A failed write leaves the document as it was, primer included.
	prev, wasFrozen := hm.state, hm.primer.Frozen()
	hm.state = StateSerializing
	hm.primer.Freeze()
	rollback := func() {
		hm.state = prev
		hm.primer.frozen = wasFrozen
	}

	// Encode every set before touching w so a bad item leaves nothing
	// half written.
	bodies := make([][]byte, len(hm.sets))
	for i, s := range hm.sets {
		body, err := hm.encodeSet(s)
		if err != nil {
			rollback()
			return 0, err
		}
		bodies[i] = body
	}

	cw := &countingWriter{w: w}
	primer := hm.primer.appendPayload(make([]byte, 0, hm.primer.payloadLen()))
	if _, err := WriteKL(cw, PrimerPackKey, uint64(len(primer)), cfg.llen); err != nil {
		rollback()
		return cw.n, err
	}
	if _, err := cw.Write(primer); err != nil {
		rollback()
		return cw.n, err
	}

	offsets := make(map[UUID]int64, len(hm.sets))
	for i, s := range hm.sets {
		offsets[s.uid] = cw.n
		if _, err := WriteKL(cw, s.def.Key, uint64(len(bodies[i])), cfg.llen); err != nil {
			rollback()
			return cw.n, err
		}
		if _, err := cw.Write(bodies[i]); err != nil {
			rollback()
			return cw.n, err
		}
	}
	hm.offsets = offsets
	hm.state = StateSerialized
	cfg.logger.Debug("wrote header metadata",
		zap.Int("sets", len(hm.sets)),
		zap.Int("primerEntries", hm.primer.Len()),
		zap.Int64("bytes", cw.n))
	return cw.n, nil
}

// encodeSet renders the local set value of s: InstanceUID first, then the
// items in insertion order.
func (hm *HeaderMetadata) encodeSet(s *Set) ([]byte, error) {
	size := 4 + len(s.uid)
	for _, it := range s.items {
		size += 4 + len(it.Value)
	}
	buf := make([]byte, 0, size)

	tag, ok := hm.primer.Tag(InstanceUIDKey)
	if !ok {
		return nil, fmt.Errorf("%w: InstanceUID has no local tag", ErrInvalidState)
	}
	buf = appendLocalItem(buf, tag, s.uid[:])
	for _, it := range s.items {
		tag, ok := hm.primer.Tag(it.Key)
		if !ok {
			return nil, fmt.Errorf("%w: item %s of %q has no local tag", ErrPrimerFrozen, it.Key, s.def.Name)
		}
		if len(it.Value) > maxLocalItemLen {
			return nil, fmt.Errorf("%w: item %s of %q is %d bytes", ErrInvalidKLV, it.Key, s.def.Name, len(it.Value))
		}
		buf = appendLocalItem(buf, tag, it.Value)
	}
	return buf, nil
}

func appendLocalItem(buf []byte, tag LocalTag, value []byte) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(tag))
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(value)))
	return append(buf, value...)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
