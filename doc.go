// Package mxf implements the header metadata object model of MXF (Material
// Exchange Format, SMPTE 377M) together with the KLV codec it is stored in.
//
// MXF header metadata is self-describing: every Set is an instance of a class
// (a [SetDef]) whose properties ([ItemDef]) and value types are held in a
// [DataModel] that can be extended at run time with vendor classes. Nothing
// about a particular class is compiled into this package.
//
// # Data Model Lifecycle
//
// A DataModel is created with the built-in value types, loaded with class and
// property definitions (see the schemafile package for the baseline and
// archive vocabularies), optionally extended, and then finalized:
//
//	dm, _ := mxf.NewDataModel()
//	_ = schemafile.LoadBaseline(dm)
//	_ = schemafile.LoadArchiveExtensions(dm)
//	if err := dm.Finalize(); err != nil {
//		return err
//	}
//
// Finalize links each SetDef to its parent and each ItemDef to its owner and
// may be called again after further registrations. Once finalized, a DataModel
// is read-only and may be shared by any number of documents.
//
// # Header Metadata
//
// A [HeaderMetadata] is an arena of [Set] values identified by instance UUID,
// plus the [PrimerPack] that maps 16-bit local tags to item keys. Strong and
// weak references are both stored as the target's instance UUID and resolved
// through the arena, so sets may be serialized in any order.
//
//	hm, _ := mxf.NewHeaderMetadata(dm)
//	preface, _ := hm.CreateSet(prefaceKey)
//	storage, _ := hm.CreateSet(contentStorageKey)
//	_ = preface.SetStrongRef(contentStorageItemKey, storage)
//	_, err := hm.WriteTo(w)
//
// The Primer Pack is written once, ahead of the sets. Items that will only be
// given values in a later editing pass must be declared with
// [HeaderMetadata.DeclareItems] before the first serialization.
//
// # Concurrency
//
// Nothing in this package locks. A finalized DataModel may be read
// concurrently; a HeaderMetadata belongs to a single goroutine.
package mxf
