package snapshot

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a snapshot from r.
//
// Decode returns ErrInvalidMagic if r does not hold a snapshot,
// ErrUnsupportedVersion for a version other than 1, ErrLimitExceeded if a
// stored or decompressed length is over its limit, and ErrValidation if the
// bundle fails validation. Hashes are verified unless WithVerifyHash(false).
func Decode(r io.Reader, opts ...ReadOption) (*Snapshot, error) {
	cfg := readConfig{limits: defaultLimits(), verifyHash: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()

	h, err := readFixedHeader(r)
	if err != nil {
		return nil, err
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	if h.MetadataLength > cfg.limits.MaxMetadataLen {
		return nil, fmt.Errorf("%w: metadata length %d", ErrLimitExceeded, h.MetadataLength)
	}

	var metadata map[string]any
	if h.MetadataLength > 0 {
		if h.HeaderFlags&HeaderFlagMetadataJSON == 0 {
			return nil, fmt.Errorf("%w: metadata present but METADATA_JSON flag not set", ErrInvalidHeader)
		}
		mb := make([]byte, h.MetadataLength)
		if _, err := io.ReadFull(r, mb); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(mb, &metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %w", ErrInvalidHeader, err)
		}
		if metadata == nil {
			return nil, fmt.Errorf("%w: metadata must be a JSON object", ErrInvalidHeader)
		}
	}

	sh, err := readSectionHeader(r)
	if err != nil {
		return nil, err
	}
	if err := sh.validate(SectionHeaderMetadata); err != nil {
		return nil, err
	}
	if sh.PayloadLen > cfg.limits.MaxSectionLen {
		return nil, fmt.Errorf("%w: header section too large", ErrLimitExceeded)
	}
	payload := make([]byte, sh.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	raw, err := decompressPayload(sh.compression(), sh.SectionFlags, payload, cfg.limits.MaxUncompressed)
	if err != nil {
		return nil, err
	}
	var bundle HeaderBundle
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	s := &Snapshot{Metadata: metadata, Header: bundle}
	if err := validateSnapshot(s, cfg.limits, cfg.verifyHash); err != nil {
		return nil, err
	}
	return s, nil
}

// IsSnapshot reports whether b starts with the snapshot magic.
func IsSnapshot(b []byte) bool {
	return len(b) >= len(Magic) && [8]byte(b[:len(Magic)]) == Magic
}
