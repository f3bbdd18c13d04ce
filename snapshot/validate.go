package snapshot

import (
	"crypto/subtle"
	"fmt"
	"strings"

	mxf "github.com/logicossoftware/go-mxf"
)

func validateSnapshot(s *Snapshot, limits Limits, verifyHash bool) error {
	if s == nil {
		return fmt.Errorf("%w: snapshot is nil", ErrValidation)
	}
	b := s.Header
	if b.BundleVersion != VersionV1 {
		return fmt.Errorf("%w: Header.BundleVersion must be %d", ErrValidation, VersionV1)
	}
	if len(b.Schemas) > limits.MaxSchemas {
		return fmt.Errorf("%w: too many schemas", ErrLimitExceeded)
	}
	seen := make(map[string]struct{}, len(b.Schemas))
	for i, name := range b.Schemas {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: schema %d has an empty name", ErrValidation, i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: duplicate schema %q", ErrValidation, name)
		}
		seen[name] = struct{}{}
	}
	if uint64(len(b.Data)) > limits.MaxHeaderDataLen {
		return fmt.Errorf("%w: header data too large", ErrLimitExceeded)
	}
	if err := validateHeaderData(b.Data); err != nil {
		return err
	}
	if verifyHash && b.SHA256 != ([32]byte{}) {
		computed := b.computedSHA256()
		if subtle.ConstantTimeCompare(computed[:], b.SHA256[:]) != 1 {
			return fmt.Errorf("%w: header data SHA256 mismatch", ErrValidation)
		}
	}
	return nil
}

// validateHeaderData checks that data opens with a primer pack KL. The
// remaining structure is checked by mxf.ReadHeaderMetadata on Restore.
func validateHeaderData(data []byte) error {
	if len(data) < len(mxf.Key{}) {
		return fmt.Errorf("%w: header data too short", ErrValidation)
	}
	if !mxf.IsPrimerPack(mxf.Key(data[:len(mxf.Key{})])) {
		return fmt.Errorf("%w: header data must start with a primer pack", ErrValidation)
	}
	return nil
}
