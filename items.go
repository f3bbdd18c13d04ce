package mxf

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"
)

const (
	arrayHeaderLen  = 8
	maxLocalItemLen = 0xffff
)

func parseArrayHeader(v []byte) (count, stride uint32, err error) {
	if len(v) == 0 {
		return 0, 0, nil
	}
	if len(v) < arrayHeaderLen {
		return 0, 0, fmt.Errorf("%w: array value is %d bytes, shorter than its header", ErrTypeMismatch, len(v))
	}
	count = binary.BigEndian.Uint32(v[0:4])
	stride = binary.BigEndian.Uint32(v[4:8])
	if uint64(len(v)-arrayHeaderLen) < uint64(count)*uint64(stride) {
		return 0, 0, fmt.Errorf("%w: array declares %d x %d bytes in %d", ErrTypeMismatch, count, stride, len(v)-arrayHeaderLen)
	}
	return count, stride, nil
}

func putArrayHeader(v []byte, count, stride uint32) {
	binary.BigEndian.PutUint32(v[0:4], count)
	binary.BigEndian.PutUint32(v[4:8], stride)
}

func encodeArray(count, stride uint32, elem func(i int, dst []byte)) []byte {
	v := make([]byte, arrayHeaderLen+int(count)*int(stride))
	putArrayHeader(v, count, stride)
	for i := 0; i < int(count); i++ {
		off := arrayHeaderLen + i*int(stride)
		elem(i, v[off:off+int(stride)])
	}
	return v
}

// typed looks up the item definition for key and checks that its type
// satisfies want.
func (s *Set) typed(key Key, what string, want func(*TypeRegistry, TypeID) bool) (*ItemDef, error) {
	def, err := s.itemDef(key)
	if err != nil {
		return nil, err
	}
	if !want(&s.doc.dm.TypeRegistry, def.TypeID) {
		t, _ := s.doc.dm.Type(def.TypeID)
		name := "unknown"
		if t != nil {
			name = t.Name
		}
		return nil, fmt.Errorf("%w: %q is %s, not %s", ErrTypeMismatch, def.Name, name, what)
	}
	return def, nil
}

func (s *Set) typedValue(key Key, what string, want func(*TypeRegistry, TypeID) bool, size int) ([]byte, error) {
	def, err := s.typed(key, what, want)
	if err != nil {
		return nil, err
	}
	v, ok := s.Value(key)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotPresent, def.Name)
	}
	if size >= 0 && len(v) != size {
		return nil, fmt.Errorf("%w: %q holds %d bytes, %s needs %d", ErrTypeMismatch, def.Name, len(v), what, size)
	}
	return v, nil
}

func (s *Set) setTyped(key Key, what string, want func(*TypeRegistry, TypeID) bool, v []byte) error {
	def, err := s.typed(key, what, want)
	if err != nil {
		return err
	}
	return s.store(def, v, s.doc.dm.refKind(def.TypeID))
}

func derives(target TypeID) func(*TypeRegistry, TypeID) bool {
	return func(r *TypeRegistry, id TypeID) bool { return r.derivesFrom(id, target) }
}

func arrayOf(target TypeID) func(*TypeRegistry, TypeID) bool {
	return func(r *TypeRegistry, id TypeID) bool {
		if !r.isArray(id) {
			return false
		}
		elem, ok := r.arrayElement(id)
		return ok && r.derivesFrom(elem, target)
	}
}

func stringOf(char TypeID) func(*TypeRegistry, TypeID) bool {
	return func(r *TypeRegistry, id TypeID) bool {
		if !r.isString(id) {
			return false
		}
		elem, ok := r.arrayElement(id)
		return ok && r.derivesFrom(elem, char)
	}
}

func (s *Set) UInt8(key Key) (uint8, error) {
	v, err := s.typedValue(key, "UInt8", derives(TypeUInt8), 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}

func (s *Set) SetUInt8(key Key, x uint8) error {
	return s.setTyped(key, "UInt8", derives(TypeUInt8), []byte{x})
}

func (s *Set) UInt16(key Key) (uint16, error) {
	v, err := s.typedValue(key, "UInt16", derives(TypeUInt16), 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(v), nil
}

func (s *Set) SetUInt16(key Key, x uint16) error {
	return s.setTyped(key, "UInt16", derives(TypeUInt16), binary.BigEndian.AppendUint16(nil, x))
}

func (s *Set) UInt32(key Key) (uint32, error) {
	v, err := s.typedValue(key, "UInt32", derives(TypeUInt32), 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(v), nil
}

func (s *Set) SetUInt32(key Key, x uint32) error {
	return s.setTyped(key, "UInt32", derives(TypeUInt32), binary.BigEndian.AppendUint32(nil, x))
}

func (s *Set) UInt64(key Key) (uint64, error) {
	v, err := s.typedValue(key, "UInt64", derives(TypeUInt64), 8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(v), nil
}

func (s *Set) SetUInt64(key Key, x uint64) error {
	return s.setTyped(key, "UInt64", derives(TypeUInt64), binary.BigEndian.AppendUint64(nil, x))
}

func (s *Set) Int8(key Key) (int8, error) {
	v, err := s.typedValue(key, "Int8", derives(TypeInt8), 1)
	if err != nil {
		return 0, err
	}
	return int8(v[0]), nil
}

func (s *Set) SetInt8(key Key, x int8) error {
	return s.setTyped(key, "Int8", derives(TypeInt8), []byte{byte(x)})
}

func (s *Set) Int16(key Key) (int16, error) {
	v, err := s.typedValue(key, "Int16", derives(TypeInt16), 2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(v)), nil
}

func (s *Set) SetInt16(key Key, x int16) error {
	return s.setTyped(key, "Int16", derives(TypeInt16), binary.BigEndian.AppendUint16(nil, uint16(x)))
}

func (s *Set) Int32(key Key) (int32, error) {
	v, err := s.typedValue(key, "Int32", derives(TypeInt32), 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(v)), nil
}

func (s *Set) SetInt32(key Key, x int32) error {
	return s.setTyped(key, "Int32", derives(TypeInt32), binary.BigEndian.AppendUint32(nil, uint32(x)))
}

// Int64 also reads Length and Position items.
func (s *Set) Int64(key Key) (int64, error) {
	v, err := s.typedValue(key, "Int64", derives(TypeInt64), 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (s *Set) SetInt64(key Key, x int64) error {
	return s.setTyped(key, "Int64", derives(TypeInt64), binary.BigEndian.AppendUint64(nil, uint64(x)))
}

func (s *Set) Boolean(key Key) (bool, error) {
	v, err := s.typedValue(key, "Boolean", derives(TypeBoolean), 1)
	if err != nil {
		return false, err
	}
	return v[0] != 0, nil
}

func (s *Set) SetBoolean(key Key, x bool) error {
	var b byte
	if x {
		b = 1
	}
	return s.setTyped(key, "Boolean", derives(TypeBoolean), []byte{b})
}

func (s *Set) Length(key Key) (int64, error) {
	v, err := s.typedValue(key, "Length", derives(TypeLength), 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (s *Set) SetLength(key Key, x int64) error {
	return s.setTyped(key, "Length", derives(TypeLength), binary.BigEndian.AppendUint64(nil, uint64(x)))
}

func (s *Set) Position(key Key) (int64, error) {
	v, err := s.typedValue(key, "Position", derives(TypePosition), 8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(v)), nil
}

func (s *Set) SetPosition(key Key, x int64) error {
	return s.setTyped(key, "Position", derives(TypePosition), binary.BigEndian.AppendUint64(nil, uint64(x)))
}

// UUID reads a UUID item. Strong and weak references are UUIDs too.
func (s *Set) UUID(key Key) (UUID, error) {
	v, err := s.typedValue(key, "UUID", derives(TypeUUID), 16)
	if err != nil {
		return UUID{}, err
	}
	return UUID(v), nil
}

func (s *Set) SetUUID(key Key, x UUID) error {
	return s.setTyped(key, "UUID", derives(TypeUUID), x[:])
}

func (s *Set) UL(key Key) (UL, error) {
	v, err := s.typedValue(key, "UL", derives(TypeUL), 16)
	if err != nil {
		return UL{}, err
	}
	return UL(v), nil
}

func (s *Set) SetUL(key Key, x UL) error {
	return s.setTyped(key, "UL", derives(TypeUL), x[:])
}

func (s *Set) UMID(key Key) (UMID, error) {
	v, err := s.typedValue(key, "UMID", derives(TypeUMID), 32)
	if err != nil {
		return UMID{}, err
	}
	return UMID(v), nil
}

func (s *Set) SetUMID(key Key, x UMID) error {
	return s.setTyped(key, "UMID", derives(TypeUMID), x[:])
}

func (s *Set) Rational(key Key) (Rational, error) {
	v, err := s.typedValue(key, "Rational", derives(TypeRational), 8)
	if err != nil {
		return Rational{}, err
	}
	return decodeRational(v), nil
}

func (s *Set) SetRational(key Key, x Rational) error {
	return s.setTyped(key, "Rational", derives(TypeRational), appendRational(nil, x))
}

func decodeRational(v []byte) Rational {
	return Rational{
		Numerator:   int32(binary.BigEndian.Uint32(v[0:4])),
		Denominator: int32(binary.BigEndian.Uint32(v[4:8])),
	}
}

func appendRational(b []byte, x Rational) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(x.Numerator))
	return binary.BigEndian.AppendUint32(b, uint32(x.Denominator))
}

func (s *Set) Timestamp(key Key) (Timestamp, error) {
	v, err := s.typedValue(key, "Timestamp", derives(TypeTimestamp), 8)
	if err != nil {
		return Timestamp{}, err
	}
	return Timestamp{
		Year:   binary.BigEndian.Uint16(v[0:2]),
		Month:  v[2],
		Day:    v[3],
		Hour:   v[4],
		Minute: v[5],
		Second: v[6],
		QMSec:  v[7],
	}, nil
}

func (s *Set) SetTimestamp(key Key, x Timestamp) error {
	v := binary.BigEndian.AppendUint16(nil, x.Year)
	v = append(v, x.Month, x.Day, x.Hour, x.Minute, x.Second, x.QMSec)
	return s.setTyped(key, "Timestamp", derives(TypeTimestamp), v)
}

func (s *Set) ProductVersion(key Key) (ProductVersion, error) {
	v, err := s.typedValue(key, "ProductVersion", derives(TypeProductVersion), 10)
	if err != nil {
		return ProductVersion{}, err
	}
	return ProductVersion{
		Major:   binary.BigEndian.Uint16(v[0:2]),
		Minor:   binary.BigEndian.Uint16(v[2:4]),
		Patch:   binary.BigEndian.Uint16(v[4:6]),
		Build:   binary.BigEndian.Uint16(v[6:8]),
		Release: binary.BigEndian.Uint16(v[8:10]),
	}, nil
}

func (s *Set) SetProductVersion(key Key, x ProductVersion) error {
	var v []byte
	for _, f := range []uint16{x.Major, x.Minor, x.Patch, x.Build, x.Release} {
		v = binary.BigEndian.AppendUint16(v, f)
	}
	return s.setTyped(key, "ProductVersion", derives(TypeProductVersion), v)
}

// UTF16String decodes a big-endian UTF-16 string item, dropping any
// trailing null characters.
func (s *Set) UTF16String(key Key) (string, error) {
	v, err := s.typedValue(key, "UTF16String", stringOf(TypeUTF16), -1)
	if err != nil {
		return "", err
	}
	if len(v)%2 != 0 {
		return "", fmt.Errorf("%w: UTF-16 string of odd length %d", ErrTypeMismatch, len(v))
	}
	units := make([]uint16, len(v)/2)
	for i := range units {
		units[i] = binary.BigEndian.Uint16(v[2*i:])
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units)), nil
}

// SetUTF16String stores x as big-endian UTF-16 without a terminator.
func (s *Set) SetUTF16String(key Key, x string) error {
	units := utf16.Encode([]rune(x))
	v := make([]byte, 0, 2*len(units))
	for _, u := range units {
		v = binary.BigEndian.AppendUint16(v, u)
	}
	return s.setTyped(key, "UTF16String", stringOf(TypeUTF16), v)
}

func (s *Set) ISO7String(key Key) (string, error) {
	v, err := s.typedValue(key, "ISO7String", stringOf(TypeISO7), -1)
	if err != nil {
		return "", err
	}
	for len(v) > 0 && v[len(v)-1] == 0 {
		v = v[:len(v)-1]
	}
	return string(v), nil
}

// SetISO7String stores x, which must be 7-bit ASCII.
func (s *Set) SetISO7String(key Key, x string) error {
	for i := 0; i < len(x); i++ {
		if x[i] >= 0x80 {
			return fmt.Errorf("%w: %q is not 7-bit ASCII", ErrTypeMismatch, x)
		}
	}
	return s.setTyped(key, "ISO7String", stringOf(TypeISO7), []byte(x))
}

// ArrayInfo returns the element count and stride of an array item.
func (s *Set) ArrayInfo(key Key) (count, stride uint32, err error) {
	v, err := s.typedValue(key, "array", func(r *TypeRegistry, id TypeID) bool { return r.isArray(id) }, -1)
	if err != nil {
		return 0, 0, err
	}
	return parseArrayHeader(v)
}

// ArrayElement returns the bytes of element i of an array item.
func (s *Set) ArrayElement(key Key, i uint32) ([]byte, error) {
	v, err := s.typedValue(key, "array", func(r *TypeRegistry, id TypeID) bool { return r.isArray(id) }, -1)
	if err != nil {
		return nil, err
	}
	count, stride, err := parseArrayHeader(v)
	if err != nil {
		return nil, err
	}
	if i >= count {
		return nil, fmt.Errorf("%w: element %d of %d", ErrItemNotPresent, i, count)
	}
	off := arrayHeaderLen + int(i)*int(stride)
	return v[off : off+int(stride)], nil
}

// ULArray reads arrays and batches of ULs or AUIDs.
func (s *Set) ULArray(key Key) ([]UL, error) {
	v, err := s.typedValue(key, "UL array", arrayOf(TypeUL), -1)
	if err != nil {
		return nil, err
	}
	count, stride, err := parseArrayHeader(v)
	if err != nil {
		return nil, err
	}
	if count > 0 && stride != 16 {
		return nil, fmt.Errorf("%w: UL array stride %d", ErrTypeMismatch, stride)
	}
	out := make([]UL, count)
	for i := range out {
		out[i] = UL(v[arrayHeaderLen+16*i : arrayHeaderLen+16*(i+1)])
	}
	return out, nil
}

func (s *Set) SetULArray(key Key, x []UL) error {
	v := encodeArray(uint32(len(x)), 16, func(i int, dst []byte) { copy(dst, x[i][:]) })
	return s.setTyped(key, "UL array", arrayOf(TypeUL), v)
}

func (s *Set) UInt32Array(key Key) ([]uint32, error) {
	v, err := s.typedValue(key, "UInt32 array", arrayOf(TypeUInt32), -1)
	if err != nil {
		return nil, err
	}
	count, stride, err := parseArrayHeader(v)
	if err != nil {
		return nil, err
	}
	if count > 0 && stride != 4 {
		return nil, fmt.Errorf("%w: UInt32 array stride %d", ErrTypeMismatch, stride)
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.BigEndian.Uint32(v[arrayHeaderLen+4*i:])
	}
	return out, nil
}

func (s *Set) SetUInt32Array(key Key, x []uint32) error {
	v := encodeArray(uint32(len(x)), 4, func(i int, dst []byte) { binary.BigEndian.PutUint32(dst, x[i]) })
	return s.setTyped(key, "UInt32 array", arrayOf(TypeUInt32), v)
}

func (s *Set) Int32Array(key Key) ([]int32, error) {
	v, err := s.typedValue(key, "Int32 array", arrayOf(TypeInt32), -1)
	if err != nil {
		return nil, err
	}
	count, stride, err := parseArrayHeader(v)
	if err != nil {
		return nil, err
	}
	if count > 0 && stride != 4 {
		return nil, fmt.Errorf("%w: Int32 array stride %d", ErrTypeMismatch, stride)
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(binary.BigEndian.Uint32(v[arrayHeaderLen+4*i:]))
	}
	return out, nil
}

func (s *Set) SetInt32Array(key Key, x []int32) error {
	v := encodeArray(uint32(len(x)), 4, func(i int, dst []byte) { binary.BigEndian.PutUint32(dst, uint32(x[i])) })
	return s.setTyped(key, "Int32 array", arrayOf(TypeInt32), v)
}

func (s *Set) RationalArray(key Key) ([]Rational, error) {
	v, err := s.typedValue(key, "Rational array", arrayOf(TypeRational), -1)
	if err != nil {
		return nil, err
	}
	count, stride, err := parseArrayHeader(v)
	if err != nil {
		return nil, err
	}
	if count > 0 && stride != 8 {
		return nil, fmt.Errorf("%w: Rational array stride %d", ErrTypeMismatch, stride)
	}
	out := make([]Rational, count)
	for i := range out {
		out[i] = decodeRational(v[arrayHeaderLen+8*i:])
	}
	return out, nil
}

func (s *Set) SetRationalArray(key Key, x []Rational) error {
	v := encodeArray(uint32(len(x)), 8, func(i int, dst []byte) { appendRational(dst[:0], x[i]) })
	return s.setTyped(key, "Rational array", arrayOf(TypeRational), v)
}
