// Package snapshot stores serialized MXF header metadata in a small
// compressed container, so a file's metadata can be kept, diffed or moved
// without the essence that follows it.
//
// # File Format Overview
//
// A snapshot file consists of:
//   - A 32-byte fixed header with magic bytes, version, and flags
//   - An optional UTF-8 JSON metadata block
//   - One header section holding a gob-encoded [HeaderBundle]
//
// The bundle carries the header metadata byte stream exactly as
// [mxf.HeaderMetadata.Write] produced it (primer pack first), a SHA-256 of
// that stream, and the names of the schemas needed to interpret it. The
// section payload is optionally compressed with ZIP, Zstandard, LZ4, or
// Brotli.
//
// # Basic Usage
//
//	snap, err := snapshot.Capture(hm, []string{"baseline", "archive"})
//	f, _ := os.Create("tape.mxfsnap")
//	defer f.Close()
//	err = snapshot.Encode(f, snap)
//
// and back:
//
//	snap, err := snapshot.Decode(f)
//	hm, err := snapshot.Restore(snap, dm)
//
// # Security Considerations
//
// Decoding enforces configurable [Limits] on every stored and decompressed
// length before allocating, and rejects payloads that expand beyond their
// declared size.
package snapshot
