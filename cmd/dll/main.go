// Package main provides C-compatible exports for the header metadata and
// snapshot packages.
// Build with: go build -buildmode=c-shared -o mxf.dll
package main

/*
#include <stdlib.h>
#include <stdint.h>

// Result structure for operations that return data
typedef struct {
    char* data;
    int   data_len;
    char* error;
} MxfResult;
*/
import "C"

import (
	"bytes"
	"encoding/json"
	"sync"
	"unsafe"

	mxf "github.com/logicossoftware/go-mxf"
	"github.com/logicossoftware/go-mxf/schemafile"
	"github.com/logicossoftware/go-mxf/snapshot"
)

func main() {}

var (
	baselineModel = sync.OnceValues(func() (*mxf.DataModel, error) {
		return schemafile.NewModel(schemafile.Options{})
	})
	archiveModel = sync.OnceValues(func() (*mxf.DataModel, error) {
		return schemafile.NewModel(schemafile.Options{Archive: true})
	})
)

func model(archive C.int) (*mxf.DataModel, error) {
	if archive != 0 {
		return archiveModel()
	}
	return baselineModel()
}

func schemaNames(archive C.int) []string {
	if archive != 0 {
		return []string{"baseline", "archive"}
	}
	return []string{"baseline"}
}

// MxfSnapshotVersion returns the snapshot format version written by this library.
//
//export MxfSnapshotVersion
func MxfSnapshotVersion() C.uint16_t {
	return C.uint16_t(snapshot.VersionV1)
}

// MxfFreeResult frees memory allocated by other Mxf functions.
// Must be called to avoid memory leaks.
//
//export MxfFreeResult
func MxfFreeResult(result C.MxfResult) {
	if result.data != nil {
		C.free(unsafe.Pointer(result.data))
	}
	if result.error != nil {
		C.free(unsafe.Pointer(result.error))
	}
}

// MxfFreeString frees a C string allocated by Go.
//
//export MxfFreeString
func MxfFreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func makeResult(data []byte) C.MxfResult {
	var result C.MxfResult
	if len(data) > 0 {
		result.data = (*C.char)(C.CBytes(data))
		result.data_len = C.int(len(data))
	}
	return result
}

func makeError(err error) C.MxfResult {
	var result C.MxfResult
	result.error = C.CString(err.Error())
	return result
}

func readHeader(data *C.char, dataLen C.int, archive C.int, opts ...mxf.ReadOption) (*mxf.HeaderMetadata, error) {
	dm, err := model(archive)
	if err != nil {
		return nil, err
	}
	goData := C.GoBytes(unsafe.Pointer(data), dataLen)
	return mxf.ReadHeaderMetadata(bytes.NewReader(goData), dm, uint64(len(goData)), opts...)
}

// MxfDescribe reads a header metadata stream (primer pack first) and returns
// a JSON summary of its sets.
// Parameters:
//   - data: pointer to the header metadata bytes
//   - dataLen: length of the data
//   - archive: non-zero to interpret the archive extension classes
//
// Returns MxfResult with a JSON string or error. Call MxfFreeResult when done.
//
//export MxfDescribe
func MxfDescribe(data *C.char, dataLen C.int, archive C.int) C.MxfResult {
	hm, err := readHeader(data, dataLen, archive)
	if err != nil {
		return makeError(err)
	}

	sets := make([]map[string]any, 0, hm.Len())
	for _, s := range hm.Sets() {
		off, _ := hm.Offset(s.InstanceUID())
		sets = append(sets, map[string]any{
			"instanceUID": s.InstanceUID().String(),
			"class":       s.Def().Name,
			"offset":      off,
			"items":       len(s.Items()),
		})
	}
	result := map[string]any{
		"state":         hm.State().String(),
		"primerEntries": hm.Primer().Len(),
		"danglingRefs":  len(hm.DanglingRefs()),
		"sets":          sets,
	}

	jsonBytes, err := json.Marshal(result)
	if err != nil {
		return makeError(err)
	}
	return makeResult(jsonBytes)
}

// MxfValidate reads a header metadata stream with strict references.
// Returns NULL on success, or an error message string on failure.
// Call MxfFreeString on the result if non-NULL.
//
//export MxfValidate
func MxfValidate(data *C.char, dataLen C.int, archive C.int) *C.char {
	if _, err := readHeader(data, dataLen, archive, mxf.WithStrictReferences(true)); err != nil {
		return C.CString(err.Error())
	}
	return nil
}

// MxfGetSetCount returns the number of interpreted sets in a header metadata
// stream. Returns -1 on error.
//
//export MxfGetSetCount
func MxfGetSetCount(data *C.char, dataLen C.int, archive C.int) C.int {
	hm, err := readHeader(data, dataLen, archive)
	if err != nil {
		return -1
	}
	return C.int(hm.Len())
}

// MxfSnapshotEncode captures a header metadata stream as a snapshot.
// Parameters:
//   - data: pointer to the header metadata bytes
//   - dataLen: length of the data
//   - archive: non-zero to interpret the archive extension classes
//   - compression: compression algorithm (0=None, 1=ZIP, 2=ZSTD, 3=LZ4, 4=Brotli)
//
// Returns MxfResult with snapshot bytes or error. Call MxfFreeResult when done.
//
//export MxfSnapshotEncode
func MxfSnapshotEncode(data *C.char, dataLen C.int, archive C.int, compression C.uint16_t) C.MxfResult {
	hm, err := readHeader(data, dataLen, archive)
	if err != nil {
		return makeError(err)
	}
	snap, err := snapshot.Capture(hm, schemaNames(archive))
	if err != nil {
		return makeError(err)
	}
	var buf bytes.Buffer
	if err := snapshot.Encode(&buf, snap, snapshot.WithCompression(snapshot.Compression(compression))); err != nil {
		return makeError(err)
	}
	return makeResult(buf.Bytes())
}

// MxfSnapshotDecode extracts the header metadata stream from a snapshot.
// Returns MxfResult with the stream bytes or error. Call MxfFreeResult when done.
//
//export MxfSnapshotDecode
func MxfSnapshotDecode(data *C.char, dataLen C.int) C.MxfResult {
	goData := C.GoBytes(unsafe.Pointer(data), dataLen)
	snap, err := snapshot.Decode(bytes.NewReader(goData))
	if err != nil {
		return makeError(err)
	}
	return makeResult(snap.Header.Data)
}
