package snapshot

import (
	"bytes"
	"time"

	mxf "github.com/logicossoftware/go-mxf"
)

// Capture serializes hm into a new snapshot. schemas names the vocabularies
// hm's data model was built from. The snapshot's metadata records when it
// was taken and how many sets and primer entries it holds.
//
// Capture writes hm, so hm's primer is frozen afterwards.
func Capture(hm *mxf.HeaderMetadata, schemas []string, opts ...mxf.WriteOption) (*Snapshot, error) {
	var buf bytes.Buffer
	if _, err := hm.Write(&buf, opts...); err != nil {
		return nil, err
	}
	b := HeaderBundle{
		BundleVersion: VersionV1,
		Schemas:       append([]string(nil), schemas...),
		Data:          buf.Bytes(),
	}
	b.SHA256 = b.computedSHA256()
	return &Snapshot{
		Metadata: map[string]any{
			"capturedAt":    time.Now().UTC().Format(time.RFC3339),
			"sets":          hm.Len(),
			"primerEntries": hm.Primer().Len(),
		},
		Header: b,
	}, nil
}

// Restore reads the snapshot's header metadata against dm. dm must hold
// every schema listed in s.Header.Schemas and be finalized.
func Restore(s *Snapshot, dm *mxf.DataModel, opts ...mxf.ReadOption) (*mxf.HeaderMetadata, error) {
	data := s.Header.Data
	return mxf.ReadHeaderMetadata(bytes.NewReader(data), dm, uint64(len(data)), opts...)
}
