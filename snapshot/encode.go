package snapshot

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
)

// Swapped out by tests.
var gobEncodeBundle = func(v HeaderBundle) ([]byte, error) { return gobEncode(v) }

// Encode writes s to w.
//
// By default Encode compresses the header section with Zstandard, fills in a
// zero Header.SHA256 (modifying s) and verifies a non-zero one. The snapshot
// is validated before anything is written.
func Encode(w io.Writer, s *Snapshot, opts ...WriteOption) error {
	cfg := writeConfig{
		limits:       defaultLimits(),
		verifyHash:   true,
		autoPopulate: true,
		compression:  CompZSTD,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.limits = cfg.limits.withDefaults()
	if s == nil {
		return fmt.Errorf("%w: snapshot is nil", ErrValidation)
	}
	if cfg.autoPopulate && s.Header.SHA256 == ([32]byte{}) {
		s.Header.SHA256 = s.Header.computedSHA256()
	}
	if err := validateSnapshot(s, cfg.limits, cfg.verifyHash); err != nil {
		return err
	}

	var metadata []byte
	var flags uint16
	if s.Metadata != nil {
		b, err := json.Marshal(s.Metadata)
		if err != nil {
			return err
		}
		if len(b) > int(cfg.limits.MaxMetadataLen) {
			return fmt.Errorf("%w: metadata too large", ErrLimitExceeded)
		}
		metadata = b
		flags |= HeaderFlagMetadataJSON
	}

	raw, err := gobEncodeBundle(s.Header)
	if err != nil {
		return err
	}
	sectionFlags, payload, err := compressPayload(cfg.compression, raw)
	if err != nil {
		return err
	}

	out := fixedHeaderV1{
		Magic:          Magic,
		Version:        VersionV1,
		HeaderFlags:    flags,
		FixedHdrSize:   fixedHeaderSizeV1,
		MetadataLength: uint32(len(metadata)),
	}.append(nil)
	out = append(out, metadata...)
	out = sectionHeaderV1{
		SectionType:  uint16(SectionHeaderMetadata),
		SectionFlags: sectionFlags,
		PayloadLen:   uint64(len(payload)),
	}.append(out)

	if _, err := w.Write(out); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func gobEncode[T any](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
