package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	mxf "github.com/logicossoftware/go-mxf"
	"github.com/logicossoftware/go-mxf/snapshot"
)

type inputKind int

const (
	inputMXF inputKind = iota
	inputHeaderStream
	inputSnapshot
)

func (k inputKind) String() string {
	switch k {
	case inputMXF:
		return "mxf"
	case inputHeaderStream:
		return "header metadata"
	case inputSnapshot:
		return "snapshot"
	}
	return "unknown"
}

var errUnrecognisedInput = errors.New("input is not an MXF file, header metadata stream or snapshot")

// loaded is a header metadata document and where it came from.
type loaded struct {
	kind inputKind
	hm   *mxf.HeaderMetadata
	snap *snapshot.Snapshot
}

func (a *app) load(path string) (*loaded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	l, err := a.loadFrom(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// loadFrom sniffs r. A snapshot starts with its magic; an MXF file with a
// header partition pack (possibly after run-in fill); a bare header
// metadata stream with the primer pack.
func (a *app) loadFrom(r *bufio.Reader) (*loaded, error) {
	if head, _ := r.Peek(len(snapshot.Magic)); snapshot.IsSnapshot(head) {
		snap, err := snapshot.Decode(r)
		if err != nil {
			return nil, err
		}
		hm, err := snapshot.Restore(snap, a.dm, a.readOptions()...)
		if err != nil {
			return nil, err
		}
		return &loaded{kind: inputSnapshot, hm: hm, snap: snap}, nil
	}

	if _, err := mxf.SkipKLVFill(r); err != nil {
		return nil, err
	}
	head, err := r.Peek(len(mxf.Key{}))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errUnrecognisedInput
		}
		return nil, err
	}
	switch k := mxf.Key(head); {
	case mxf.IsPrimerPack(k):
		hm, err := mxf.ReadHeaderMetadata(r, a.dm, 0, a.readOptions()...)
		if err != nil {
			return nil, err
		}
		return &loaded{kind: inputHeaderStream, hm: hm}, nil
	case mxf.IsHeaderPartitionPack(k):
		hbc, err := readPartitionPack(r)
		if err != nil {
			return nil, err
		}
		if hbc == 0 {
			return nil, fmt.Errorf("%w: header partition has no header metadata", mxf.ErrInvalidKLV)
		}
		if _, err := mxf.SkipKLVFill(r); err != nil {
			return nil, err
		}
		hm, err := mxf.ReadHeaderMetadata(r, a.dm, hbc, a.readOptions()...)
		if err != nil {
			return nil, err
		}
		return &loaded{kind: inputMXF, hm: hm}, nil
	}
	return nil, errUnrecognisedInput
}

// readPartitionPack consumes the header partition pack KLV and returns its
// HeaderByteCount.
func readPartitionPack(r io.Reader) (uint64, error) {
	_, length, _, err := mxf.ReadKL(r)
	if err != nil {
		return 0, err
	}
	if length > 1<<16 {
		return 0, fmt.Errorf("%w: partition pack length %d", mxf.ErrInvalidKLV, length)
	}
	value := make([]byte, length)
	if _, err := io.ReadFull(r, value); err != nil {
		return 0, err
	}
	return mxf.HeaderByteCount(value)
}
