package mxf

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDoc(t *testing.T) (*DataModel, *HeaderMetadata) {
	t.Helper()
	dm := newTestModel(t)
	hm, err := NewHeaderMetadata(dm)
	require.NoError(t, err)
	return dm, hm
}

func TestNewHeaderMetadataNeedsFinalize(t *testing.T) {
	dm, err := NewDataModel()
	require.NoError(t, err)
	dm.RegisterSetDef("Root", NullKey, rootKey)

	_, err = NewHeaderMetadata(dm)
	require.ErrorIs(t, err, ErrNotFinalized)
	_, err = ReadHeaderMetadata(bytes.NewReader(nil), dm, 0)
	require.ErrorIs(t, err, ErrNotFinalized)
}

func TestNewHeaderMetadataRegistersInstanceUID(t *testing.T) {
	_, hm := newTestDoc(t)
	tag, ok := hm.Primer().Tag(InstanceUIDKey)
	require.True(t, ok)
	require.Equal(t, InstanceUIDTag, tag)
	require.Equal(t, StateBuilding, hm.State())
}

func TestStrongRefRoundTrip(t *testing.T) {
	dm, hm := newTestDoc(t)

	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)
	track, err := hm.CreateSet(trackKey)
	require.NoError(t, err)
	seq, err := hm.CreateSet(sequenceKey)
	require.NoError(t, err)

	require.NoError(t, pkg.SetUMID(packageUIDKey, GenerateUMID()))
	require.NoError(t, pkg.SetUTF16String(nameKey, "clip"))
	require.NoError(t, pkg.AppendStrongRef(tracksKey, track))
	require.NoError(t, track.SetUInt32(trackIDKey, 1))
	require.NoError(t, track.SetRational(editRateKey, Rational{25, 1}))
	require.NoError(t, track.SetStrongRef(sequenceRef, seq))
	require.NoError(t, track.SetWeakRef(packageRefKey, pkg))
	require.NoError(t, seq.SetLength(lengthKey, 100))

	var buf bytes.Buffer
	n, err := hm.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), n)
	require.Equal(t, StateSerialized, hm.State())

	back, err := ReadHeaderMetadata(bytes.NewReader(buf.Bytes()), dm, 0)
	require.NoError(t, err)
	require.Equal(t, StateReady, back.State())
	require.Equal(t, hm.Len(), back.Len())

	raw, ok := track.Value(sequenceRef)
	require.True(t, ok)
	got, ok := back.ResolveRefBytes(raw)
	require.True(t, ok)
	require.Equal(t, seq.Key(), got.Key())
	require.Equal(t, seq.InstanceUID(), got.InstanceUID())
	require.Len(t, got.Items(), len(seq.Items()))
	for _, it := range seq.Items() {
		v, ok := got.Value(it.Key)
		require.True(t, ok)
		require.Equal(t, it.Value, v)
	}

	backPkg, ok := back.ResolveRef(pkg.InstanceUID())
	require.True(t, ok)
	tracks, err := backPkg.ResolveRefs(tracksKey)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	require.Equal(t, track.InstanceUID(), tracks[0].InstanceUID())

	weak, ok := tracks[0].ResolveRef(packageRefKey)
	require.True(t, ok)
	require.Same(t, backPkg, weak)
	name, err := backPkg.UTF16String(nameKey)
	require.NoError(t, err)
	require.Equal(t, "clip", name)
}

func TestResolveIsOrderIndependent(t *testing.T) {
	dm, hm := newTestDoc(t)
	// Child created before its parent, so it is written first.
	seq, err := hm.CreateSet(sequenceKey)
	require.NoError(t, err)
	track, err := hm.CreateSet(trackKey)
	require.NoError(t, err)
	require.NoError(t, track.SetStrongRef(sequenceRef, seq))

	var buf bytes.Buffer
	_, err = hm.WriteTo(&buf)
	require.NoError(t, err)
	back, err := ReadHeaderMetadata(&buf, dm, 0)
	require.NoError(t, err)

	bt, ok := back.ResolveRef(track.InstanceUID())
	require.True(t, ok)
	child, ok := bt.ResolveRef(sequenceRef)
	require.True(t, ok)
	require.Equal(t, seq.InstanceUID(), child.InstanceUID())
}

func TestCreateSetUnknownClass(t *testing.T) {
	_, hm := newTestDoc(t)
	_, err := hm.CreateSet(setKey(0x7e))
	require.ErrorIs(t, err, ErrUnknownSetDef)
}

func TestAddSetDuplicateUID(t *testing.T) {
	_, hm := newTestDoc(t)
	uid := NewUUID()
	_, err := hm.AddSet(trackKey, uid)
	require.NoError(t, err)
	_, err = hm.AddSet(sequenceKey, uid)
	require.ErrorIs(t, err, ErrDuplicateInstance)
}

func TestSetItemLegality(t *testing.T) {
	_, hm := newTestDoc(t)
	track, err := hm.CreateSet(trackKey)
	require.NoError(t, err)

	err = track.SetItem(nameKey, []byte{0, 'x'})
	require.ErrorIs(t, err, ErrItemNotAllowed)
	err = track.SetItem(itemKey(0x7f), []byte{1})
	require.ErrorIs(t, err, ErrItemNotAllowed)

	require.NoError(t, track.SetItem(trackIDKey, []byte{0, 0, 0, 7}))
	id, err := track.UInt32(trackIDKey)
	require.NoError(t, err)
	require.Equal(t, uint32(7), id)

	require.NoError(t, track.SetItem(trackIDKey, []byte{0, 0, 0, 8}))
	require.Len(t, track.Items(), 1, "overwrite keeps one item")
	require.True(t, track.HaveItem(trackIDKey))
	require.True(t, track.RemoveItem(trackIDKey))
	require.False(t, track.HaveItem(trackIDKey))
	require.False(t, track.RemoveItem(trackIDKey))
}

func TestInstanceUIDItem(t *testing.T) {
	_, hm := newTestDoc(t)
	a, err := hm.CreateSet(trackKey)
	require.NoError(t, err)
	b, err := hm.CreateSet(trackKey)
	require.NoError(t, err)

	require.True(t, a.HaveItem(InstanceUIDKey))
	uid, err := a.UUID(InstanceUIDKey)
	require.NoError(t, err)
	require.Equal(t, a.InstanceUID(), uid)

	fresh := NewUUID()
	require.NoError(t, a.SetItem(InstanceUIDKey, fresh[:]))
	require.Equal(t, fresh, a.InstanceUID())
	got, ok := hm.ResolveRef(fresh)
	require.True(t, ok)
	require.Same(t, a, got)
	_, ok = hm.ResolveRef(uid)
	require.False(t, ok)

	bid := b.InstanceUID()
	err = a.SetItem(InstanceUIDKey, bid[:])
	require.ErrorIs(t, err, ErrDuplicateInstance)
	err = a.SetItem(InstanceUIDKey, []byte{1, 2})
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.False(t, a.RemoveItem(InstanceUIDKey))
}

func TestTypedAccessors(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)
	track, err := hm.CreateSet(trackKey)
	require.NoError(t, err)
	seq, err := hm.CreateSet(sequenceKey)
	require.NoError(t, err)

	umid := GenerateUMID()
	require.NoError(t, pkg.SetUMID(packageUIDKey, umid))
	gotUMID, err := pkg.UMID(packageUIDKey)
	require.NoError(t, err)
	require.Equal(t, umid, gotUMID)

	ts := Timestamp{Year: 2024, Month: 2, Day: 29, Hour: 23, Minute: 59, Second: 58, QMSec: 249}
	require.NoError(t, pkg.SetTimestamp(createdKey, ts))
	gotTS, err := pkg.Timestamp(createdKey)
	require.NoError(t, err)
	require.Equal(t, ts, gotTS)

	pv := ProductVersion{1, 2, 3, 4, 5}
	require.NoError(t, pkg.SetProductVersion(versionKey, pv))
	gotPV, err := pkg.ProductVersion(versionKey)
	require.NoError(t, err)
	require.Equal(t, pv, gotPV)

	require.NoError(t, pkg.SetUTF16String(nameKey, "Ünïcode ✓ 𝄞"))
	name, err := pkg.UTF16String(nameKey)
	require.NoError(t, err)
	require.Equal(t, "Ünïcode ✓ 𝄞", name)

	require.NoError(t, pkg.SetISO7String(commentKey, "plain"))
	comment, err := pkg.ISO7String(commentKey)
	require.NoError(t, err)
	require.Equal(t, "plain", comment)
	require.ErrorIs(t, pkg.SetISO7String(commentKey, "naïve"), ErrTypeMismatch)

	labels := []UL{GenerateKey(), GenerateKey()}
	require.NoError(t, pkg.SetULArray(labelsKey, labels))
	gotLabels, err := pkg.ULArray(labelsKey)
	require.NoError(t, err)
	require.Equal(t, labels, gotLabels)
	count, stride, err := pkg.ArrayInfo(labelsKey)
	require.NoError(t, err)
	require.Equal(t, uint32(2), count)
	require.Equal(t, uint32(16), stride)
	elem, err := pkg.ArrayElement(labelsKey, 1)
	require.NoError(t, err)
	require.Equal(t, labels[1][:], elem)
	_, err = pkg.ArrayElement(labelsKey, 2)
	require.ErrorIs(t, err, ErrItemNotPresent)

	require.NoError(t, track.SetRational(editRateKey, Rational{30000, 1001}))
	rate, err := track.Rational(editRateKey)
	require.NoError(t, err)
	require.Equal(t, Rational{30000, 1001}, rate)

	require.NoError(t, track.SetPosition(originKey, -5))
	origin, err := track.Position(originKey)
	require.NoError(t, err)
	require.Equal(t, int64(-5), origin)
	asInt, err := track.Int64(originKey)
	require.NoError(t, err)
	require.Equal(t, int64(-5), asInt)

	require.NoError(t, seq.SetBoolean(flagKey, true))
	enabled, err := seq.Boolean(flagKey)
	require.NoError(t, err)
	require.True(t, enabled)
	raw, err := seq.UInt8(flagKey)
	require.NoError(t, err)
	require.Equal(t, uint8(1), raw)

	require.NoError(t, seq.SetLength(lengthKey, 1<<40))
	dur, err := seq.Length(lengthKey)
	require.NoError(t, err)
	require.Equal(t, int64(1<<40), dur)
}

func TestStringsStoredWithoutTerminator(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)

	require.NoError(t, pkg.SetUTF16String(nameKey, "ab"))
	v, _ := pkg.Value(nameKey)
	require.Equal(t, []byte{0, 'a', 0, 'b'}, v)

	require.NoError(t, pkg.SetItem(nameKey, []byte{0, 'a', 0, 'b', 0, 0}))
	name, err := pkg.UTF16String(nameKey)
	require.NoError(t, err)
	require.Equal(t, "ab", name)
}

func TestTypeMismatch(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)
	require.NoError(t, pkg.SetUTF16String(nameKey, "x"))

	_, err = pkg.Rational(nameKey)
	require.ErrorIs(t, err, ErrTypeMismatch)
	require.ErrorIs(t, pkg.SetUInt32(nameKey, 1), ErrTypeMismatch)
	_, err = pkg.Timestamp(createdKey)
	require.ErrorIs(t, err, ErrItemNotPresent)

	require.NoError(t, pkg.SetItem(createdKey, []byte{1, 2, 3}))
	_, err = pkg.Timestamp(createdKey)
	require.ErrorIs(t, err, ErrTypeMismatch)

	track, err := hm.CreateSet(trackKey)
	require.NoError(t, err)
	require.ErrorIs(t, track.SetStrongRef(trackIDKey, pkg), ErrTypeMismatch)
	require.ErrorIs(t, pkg.SetStrongRef(tracksKey, track), ErrTypeMismatch)
	require.ErrorIs(t, track.AppendStrongRef(sequenceRef, pkg), ErrTypeMismatch)
}

func TestGrowArrayItem(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)

	slots, err := pkg.GrowArrayItem(labelsKey, 16, 2)
	require.NoError(t, err)
	require.Len(t, slots, 32)
	first := GenerateKey()
	copy(slots, first[:])

	slots, err = pkg.GrowArrayItem(labelsKey, 16, 1)
	require.NoError(t, err)
	require.Len(t, slots, 16)

	count, stride, err := pkg.ArrayInfo(labelsKey)
	require.NoError(t, err)
	require.Equal(t, uint32(3), count)
	require.Equal(t, uint32(16), stride)
	labels, err := pkg.ULArray(labelsKey)
	require.NoError(t, err)
	require.Equal(t, first, labels[0])

	_, err = pkg.GrowArrayItem(labelsKey, 8, 1)
	require.ErrorIs(t, err, ErrTypeMismatch)
	_, err = pkg.GrowArrayItem(nameKey, 2, 1)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestGrowArrayItemBounds(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)
	_, err = pkg.GrowArrayItem(labelsKey, 16, 1)
	require.NoError(t, err)

	for _, count := range []uint32{0xffffffff, 0x10000000, 4096} {
		_, err = pkg.GrowArrayItem(labelsKey, 16, count)
		require.ErrorIs(t, err, ErrLimitExceeded, "count %d", count)
	}
	count, _, err := pkg.ArrayInfo(labelsKey)
	require.NoError(t, err)
	require.Equal(t, uint32(1), count)

	// The largest array that still fits a local item.
	_, err = pkg.GrowArrayItem(labelsKey, 16, (maxLocalItemLen-arrayHeaderLen)/16-1)
	require.NoError(t, err)
	_, err = pkg.GrowArrayItem(labelsKey, 16, 1)
	require.ErrorIs(t, err, ErrLimitExceeded)
}

func TestReferenceTargetChecks(t *testing.T) {
	dm, hm := newTestDoc(t)
	pkg, _ := hm.CreateSet(packageKey)
	track, _ := hm.CreateSet(trackKey)

	require.ErrorIs(t, track.SetStrongRef(sequenceRef, nil), ErrInvalidState)
	require.ErrorIs(t, track.SetWeakRef(packageRefKey, nil), ErrInvalidState)
	require.ErrorIs(t, pkg.AppendStrongRef(tracksKey, nil), ErrInvalidState)

	other, err := NewHeaderMetadata(dm)
	require.NoError(t, err)
	foreign, err := other.CreateSet(sequenceKey)
	require.NoError(t, err)
	require.ErrorIs(t, track.SetStrongRef(sequenceRef, foreign), ErrInvalidState)

	removed, _ := hm.CreateSet(trackKey)
	require.True(t, hm.RemoveSet(removed))
	require.ErrorIs(t, pkg.AppendWeakRef(tracksKey, removed), ErrInvalidState)

	require.False(t, track.HaveItem(sequenceRef))
	require.False(t, pkg.HaveItem(tracksKey))
}

func TestRemoveItemFromRemovedSet(t *testing.T) {
	_, hm := newTestDoc(t)
	track, err := hm.CreateSet(trackKey)
	require.NoError(t, err)
	require.NoError(t, track.SetUInt32(trackIDKey, 7))
	require.True(t, hm.RemoveSet(track))

	require.False(t, track.RemoveItem(trackIDKey))
	require.Len(t, track.Items(), 1)
}

func TestReferenceArrays(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)
	var tracks []*Set
	for i := 0; i < 3; i++ {
		tr, err := hm.CreateSet(trackKey)
		require.NoError(t, err)
		require.NoError(t, pkg.AppendStrongRef(tracksKey, tr))
		tracks = append(tracks, tr)
	}
	uids, err := pkg.Refs(tracksKey)
	require.NoError(t, err)
	require.Len(t, uids, 3)
	for i, tr := range tracks {
		require.Equal(t, tr.InstanceUID(), uids[i])
	}
	it, ok := pkg.Item(tracksKey)
	require.True(t, ok)
	require.Equal(t, RefStrong, it.Ref())

	_, err = pkg.Refs(nameKey)
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUnreachableAndDangling(t *testing.T) {
	_, hm := newTestDoc(t)
	pkg, _ := hm.CreateSet(packageKey)
	track, _ := hm.CreateSet(trackKey)
	seq, _ := hm.CreateSet(sequenceKey)
	orphan, _ := hm.CreateSet(sequenceKey)

	require.NoError(t, pkg.AppendStrongRef(tracksKey, track))
	require.NoError(t, track.SetStrongRef(sequenceRef, seq))
	require.NoError(t, track.SetWeakRef(packageRefKey, pkg))

	var edges int
	hm.WalkStrongRefs(pkg, func(parent *Set, item *Item, child *Set) bool {
		require.NotNil(t, child)
		edges++
		return true
	})
	require.Equal(t, 2, edges)

	un := hm.Unreachable(pkg)
	require.Len(t, un, 1)
	require.Same(t, orphan, un[0])
	require.Empty(t, hm.DanglingRefs())

	require.True(t, hm.RemoveSet(seq))
	require.False(t, hm.RemoveSet(seq))
	dangling := hm.DanglingRefs()
	require.Len(t, dangling, 1)
	require.Equal(t, RefStrong, dangling[0].Kind)
	require.Equal(t, seq.InstanceUID(), dangling[0].Target)

	require.True(t, hm.RemoveSet(pkg))
	dangling = hm.DanglingRefs()
	require.Len(t, dangling, 2)

	_, ok := track.ResolveRef(packageRefKey)
	require.False(t, ok)
	require.ErrorIs(t, seq.SetLength(lengthKey, 1), ErrInvalidState)
}

func TestFindSets(t *testing.T) {
	_, hm := newTestDoc(t)
	_, _ = hm.CreateSet(trackKey)
	_, _ = hm.CreateSet(trackKey)
	pkg, _ := hm.CreateSet(packageKey)

	require.Len(t, hm.FindSets(trackKey), 2)
	require.Len(t, hm.FindSets(interchangeKey), 0)
	require.Len(t, hm.FindSetsOfClass(interchangeKey), 3)

	got, ok := hm.FindSingularSet(packageKey)
	require.True(t, ok)
	require.Same(t, pkg, got)
	_, ok = hm.FindSingularSet(trackKey)
	require.False(t, ok)
	_, ok = hm.FindSingularSet(sequenceKey)
	require.False(t, ok)
}

func TestMissingRequired(t *testing.T) {
	_, hm := newTestDoc(t)
	track, _ := hm.CreateSet(trackKey)
	missing := track.MissingRequired()
	require.Len(t, missing, 1)
	require.Equal(t, editRateKey, missing[0].Key)

	require.NoError(t, track.SetRational(editRateKey, Rational{25, 1}))
	require.Empty(t, track.MissingRequired())
}

func TestPrimerFrozenAfterWrite(t *testing.T) {
	dm, hm := newTestDoc(t)
	pkg, err := hm.CreateSet(packageKey)
	require.NoError(t, err)
	require.NoError(t, pkg.SetUTF16String(nameKey, "first"))
	// Declared now, given a value only after the first write.
	require.NoError(t, hm.DeclareItems(commentKey))
	require.ErrorIs(t, hm.DeclareItems(itemKey(0x7d)), ErrUnknownItemDef)

	var first bytes.Buffer
	_, err = hm.WriteTo(&first)
	require.NoError(t, err)
	require.True(t, hm.Primer().Frozen())

	require.NoError(t, pkg.SetUTF16String(nameKey, "second"))
	require.NoError(t, pkg.SetISO7String(commentKey, "late"))
	require.ErrorIs(t, pkg.SetTimestamp(createdKey, Now()), ErrPrimerFrozen)

	var second bytes.Buffer
	_, err = hm.WriteTo(&second)
	require.NoError(t, err)
	// The primer pack occupies the same bytes in both passes.
	primerLen := 16 + 4 + int(hm.Primer().payloadLen())
	require.Equal(t, first.Bytes()[:primerLen], second.Bytes()[:primerLen])

	back, err := ReadHeaderMetadata(&second, dm, 0)
	require.NoError(t, err)
	bp, ok := back.ResolveRef(pkg.InstanceUID())
	require.True(t, ok)
	comment, err := bp.ISO7String(commentKey)
	require.NoError(t, err)
	require.Equal(t, "late", comment)
}

func TestDeclareSetItems(t *testing.T) {
	_, hm := newTestDoc(t)
	require.NoError(t, hm.DeclareSetItems(trackKey))
	for _, k := range []Key{trackIDKey, editRateKey, originKey, sequenceRef, packageRefKey} {
		_, ok := hm.Primer().Tag(k)
		require.True(t, ok)
	}
	tag, _ := hm.Primer().Tag(trackIDKey)
	require.Equal(t, LocalTag(0x4801), tag)
	require.ErrorIs(t, hm.DeclareSetItems(setKey(0x7c)), ErrUnknownSetDef)
}
