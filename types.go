package mxf

import "fmt"

// TypeID indexes a value type in a DataModel's type table. Zero is reserved.
type TypeID uint16

const (
	TypeUnknown TypeID = iota

	// basic
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUInt8
	TypeUInt16
	TypeUInt32
	TypeUInt64
	TypeRaw

	// array
	TypeUTF16String
	TypeInt32Array
	TypeUInt32Array
	TypeInt64Array
	TypeUInt8Array
	TypeISO7String
	TypeInt32Batch
	TypeUInt32Batch
	TypeAUIDArray
	TypeULBatch
	TypeStrongRefArray
	TypeStrongRefBatch
	TypeWeakRefArray
	TypeWeakRefBatch
	TypeRationalArray
	TypeRGBALayout

	// compound
	TypeRational
	TypeTimestamp
	TypeProductVersion
	TypeIndirect
	TypeRGBALayoutComponent

	// interpreted
	TypeVersion
	TypeUTF16
	TypeBoolean
	TypeISO7
	TypeLength
	TypePosition
	TypeRGBACode
	TypeStream
	TypeDataValue
	TypeIdentifier
	TypeOpaque
	TypeUMID
	TypeUID
	TypeUL
	TypeUUID
	TypeAUID
	TypePackageID
	TypeStrongRef
	TypeWeakRef
	TypeOrientation
)

const (
	// ExtensionTypeBoundary is the first type id handed out to dynamically
	// registered types; ids below it belong to built-ins.
	ExtensionTypeBoundary TypeID = 64

	// MaxTypes is the size of the type table.
	MaxTypes = 256

	// MaxCompoundMembers bounds the member list of a compound type.
	MaxCompoundMembers = 10
)

// TypeCategory distinguishes the four kinds of value type.
type TypeCategory uint8

const (
	CategoryBasic TypeCategory = iota + 1
	CategoryArray
	CategoryCompound
	CategoryInterpreted
)

func (c TypeCategory) String() string {
	switch c {
	case CategoryBasic:
		return "basic"
	case CategoryArray:
		return "array"
	case CategoryCompound:
		return "compound"
	case CategoryInterpreted:
		return "interpreted"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// CompoundMember is one field of a compound type, in wire order.
type CompoundMember struct {
	Name   string
	TypeID TypeID
}

// Type describes a value type. Which fields are meaningful depends on Category:
// Size for basic types, ElementType and FixedSize for arrays, Members for
// compounds, Underlying and FixedSize for interpreted types.
type Type struct {
	ID       TypeID
	Name     string
	Category TypeCategory

	Size        uint32
	ElementType TypeID
	Members     []CompoundMember
	Underlying  TypeID

	// FixedSize is the fixed element count of an array, or the fixed array
	// size imposed by an interpreted type. Zero means variable.
	FixedSize uint32
}

// builtinTypes mirrors the SMPTE 377M type vocabulary the header metadata
// codec needs to interpret item values.
var builtinTypes = []Type{
	{ID: TypeInt8, Name: "Int8", Category: CategoryBasic, Size: 1},
	{ID: TypeInt16, Name: "Int16", Category: CategoryBasic, Size: 2},
	{ID: TypeInt32, Name: "Int32", Category: CategoryBasic, Size: 4},
	{ID: TypeInt64, Name: "Int64", Category: CategoryBasic, Size: 8},
	{ID: TypeUInt8, Name: "UInt8", Category: CategoryBasic, Size: 1},
	{ID: TypeUInt16, Name: "UInt16", Category: CategoryBasic, Size: 2},
	{ID: TypeUInt32, Name: "UInt32", Category: CategoryBasic, Size: 4},
	{ID: TypeUInt64, Name: "UInt64", Category: CategoryBasic, Size: 8},
	{ID: TypeRaw, Name: "Raw", Category: CategoryBasic, Size: 0},

	{ID: TypeUTF16String, Name: "UTF16String", Category: CategoryArray, ElementType: TypeUTF16},
	{ID: TypeInt32Array, Name: "Int32Array", Category: CategoryArray, ElementType: TypeInt32},
	{ID: TypeUInt32Array, Name: "UInt32Array", Category: CategoryArray, ElementType: TypeUInt32},
	{ID: TypeInt64Array, Name: "Int64Array", Category: CategoryArray, ElementType: TypeInt64},
	{ID: TypeUInt8Array, Name: "UInt8Array", Category: CategoryArray, ElementType: TypeUInt8},
	{ID: TypeISO7String, Name: "ISO7String", Category: CategoryArray, ElementType: TypeISO7},
	{ID: TypeInt32Batch, Name: "Int32Batch", Category: CategoryArray, ElementType: TypeInt32},
	{ID: TypeUInt32Batch, Name: "UInt32Batch", Category: CategoryArray, ElementType: TypeUInt32},
	{ID: TypeAUIDArray, Name: "AUIDArray", Category: CategoryArray, ElementType: TypeAUID},
	{ID: TypeULBatch, Name: "ULBatch", Category: CategoryArray, ElementType: TypeUL},
	{ID: TypeStrongRefArray, Name: "StrongRefArray", Category: CategoryArray, ElementType: TypeStrongRef},
	{ID: TypeStrongRefBatch, Name: "StrongRefBatch", Category: CategoryArray, ElementType: TypeStrongRef},
	{ID: TypeWeakRefArray, Name: "WeakRefArray", Category: CategoryArray, ElementType: TypeWeakRef},
	{ID: TypeWeakRefBatch, Name: "WeakRefBatch", Category: CategoryArray, ElementType: TypeWeakRef},
	{ID: TypeRationalArray, Name: "RationalArray", Category: CategoryArray, ElementType: TypeRational},
	{ID: TypeRGBALayout, Name: "RGBALayout", Category: CategoryArray, ElementType: TypeRGBALayoutComponent},

	{ID: TypeRational, Name: "Rational", Category: CategoryCompound, Members: []CompoundMember{
		{"Numerator", TypeInt32}, {"Denominator", TypeInt32},
	}},
	{ID: TypeTimestamp, Name: "Timestamp", Category: CategoryCompound, Members: []CompoundMember{
		{"Year", TypeUInt16}, {"Month", TypeUInt8}, {"Day", TypeUInt8}, {"Hours", TypeUInt8},
		{"Minutes", TypeUInt8}, {"Seconds", TypeUInt8}, {"QMSec", TypeUInt8},
	}},
	{ID: TypeProductVersion, Name: "ProductVersion", Category: CategoryCompound, Members: []CompoundMember{
		{"Major", TypeUInt16}, {"Minor", TypeUInt16}, {"Patch", TypeUInt16}, {"Build", TypeUInt16}, {"Release", TypeUInt16},
	}},
	{ID: TypeIndirect, Name: "Indirect", Category: CategoryCompound, Members: []CompoundMember{
		{"Type", TypeUL}, {"Value", TypeUInt8Array},
	}},
	{ID: TypeRGBALayoutComponent, Name: "RGBALayoutComponent", Category: CategoryCompound, Members: []CompoundMember{
		{"Code", TypeRGBACode}, {"Depth", TypeUInt8},
	}},

	{ID: TypeVersion, Name: "VersionType", Category: CategoryInterpreted, Underlying: TypeUInt16},
	{ID: TypeUTF16, Name: "UTF16", Category: CategoryInterpreted, Underlying: TypeUInt16},
	{ID: TypeBoolean, Name: "Boolean", Category: CategoryInterpreted, Underlying: TypeUInt8},
	{ID: TypeISO7, Name: "ISO7", Category: CategoryInterpreted, Underlying: TypeUInt8},
	{ID: TypeLength, Name: "Length", Category: CategoryInterpreted, Underlying: TypeInt64},
	{ID: TypePosition, Name: "Position", Category: CategoryInterpreted, Underlying: TypeInt64},
	{ID: TypeRGBACode, Name: "RGBACode", Category: CategoryInterpreted, Underlying: TypeUInt8},
	{ID: TypeStream, Name: "Stream", Category: CategoryInterpreted, Underlying: TypeRaw},
	{ID: TypeDataValue, Name: "DataValue", Category: CategoryInterpreted, Underlying: TypeUInt8Array},
	{ID: TypeIdentifier, Name: "Identifier", Category: CategoryInterpreted, Underlying: TypeUInt8Array},
	{ID: TypeOpaque, Name: "Opaque", Category: CategoryInterpreted, Underlying: TypeUInt8Array},
	{ID: TypeUMID, Name: "UMID", Category: CategoryInterpreted, Underlying: TypeIdentifier, FixedSize: 32},
	{ID: TypeUID, Name: "UID", Category: CategoryInterpreted, Underlying: TypeIdentifier, FixedSize: 16},
	{ID: TypeUL, Name: "UL", Category: CategoryInterpreted, Underlying: TypeIdentifier, FixedSize: 16},
	{ID: TypeUUID, Name: "UUID", Category: CategoryInterpreted, Underlying: TypeIdentifier, FixedSize: 16},
	{ID: TypeAUID, Name: "AUID", Category: CategoryInterpreted, Underlying: TypeUL, FixedSize: 16},
	{ID: TypePackageID, Name: "PackageID", Category: CategoryInterpreted, Underlying: TypeUMID, FixedSize: 32},
	{ID: TypeStrongRef, Name: "StrongRef", Category: CategoryInterpreted, Underlying: TypeUUID},
	{ID: TypeWeakRef, Name: "WeakRef", Category: CategoryInterpreted, Underlying: TypeUUID},
	{ID: TypeOrientation, Name: "Orientation", Category: CategoryInterpreted, Underlying: TypeUInt8},
}
