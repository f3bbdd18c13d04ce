package mxf

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// RefKind is the reference intent recorded alongside an item. Strong and
// weak references share a wire encoding: the target's instance UID.
type RefKind uint8

const (
	RefNone RefKind = iota
	RefStrong
	RefWeak
)

func (k RefKind) String() string {
	switch k {
	case RefStrong:
		return "strong"
	case RefWeak:
		return "weak"
	default:
		return "none"
	}
}

// State is the lifecycle position of a HeaderMetadata document.
type State uint8

const (
	StateBuilding State = iota
	StateSerializing
	StateSerialized

	StateEmpty
	StatePrimerLoaded
	StateSetsLoaded
	StateReady
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSerializing:
		return "serializing"
	case StateSerialized:
		return "serialized"
	case StateEmpty:
		return "empty"
	case StatePrimerLoaded:
		return "primer loaded"
	case StateSetsLoaded:
		return "sets loaded"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Item is a property value held by a Set. Value holds the encoded bytes.
type Item struct {
	Key   Key
	Value []byte

	def *ItemDef
	ref RefKind
}

// Def returns the property definition the item was validated against.
func (it *Item) Def() *ItemDef { return it.def }

// Ref returns the reference intent recorded for the item.
func (it *Item) Ref() RefKind { return it.ref }

// Set is an instance of a SetDef. It belongs to exactly one HeaderMetadata
// and is addressed by its instance UID.
type Set struct {
	doc   *HeaderMetadata
	uid   UUID
	def   *SetDef
	items []*Item
	index map[Key]*Item
}

// InstanceUID returns the set's identity within its document.
func (s *Set) InstanceUID() UUID { return s.uid }

// Key returns the class key of the set.
func (s *Set) Key() Key { return s.def.Key }

func (s *Set) Def() *SetDef { return s.def }

func (s *Set) Document() *HeaderMetadata { return s.doc }

// HeaderMetadata is one document: an arena of sets indexed by instance UID
// plus the primer pack that maps item keys to local tags. It is not safe for
// concurrent use.
type HeaderMetadata struct {
	dm      *DataModel
	primer  *PrimerPack
	sets    []*Set
	byUID   map[UUID]*Set
	offsets map[UUID]int64
	state   State
	logger  *zap.Logger
}

// NewHeaderMetadata starts an empty document in the Building state. The
// model must have been finalized.
func NewHeaderMetadata(dm *DataModel) (*HeaderMetadata, error) {
	if !dm.Finalized() {
		return nil, ErrNotFinalized
	}
	hm := newDocument(dm, NewPrimerPack(), StateBuilding)
	if _, err := hm.primer.Register(InstanceUIDKey, InstanceUIDTag); err != nil {
		return nil, err
	}
	return hm, nil
}

func newDocument(dm *DataModel, primer *PrimerPack, state State) *HeaderMetadata {
	return &HeaderMetadata{
		dm:      dm,
		primer:  primer,
		byUID:   make(map[UUID]*Set),
		offsets: make(map[UUID]int64),
		state:   state,
		logger:  dm.logger,
	}
}

func (hm *HeaderMetadata) DataModel() *DataModel { return hm.dm }

func (hm *HeaderMetadata) Primer() *PrimerPack { return hm.primer }

func (hm *HeaderMetadata) State() State { return hm.state }

// Len returns the number of sets in the document.
func (hm *HeaderMetadata) Len() int { return len(hm.sets) }

// Sets returns the sets in creation (or read) order.
func (hm *HeaderMetadata) Sets() []*Set { return append([]*Set(nil), hm.sets...) }

func (hm *HeaderMetadata) checkMutable() error {
	switch hm.state {
	case StateBuilding, StateSerialized, StateSetsLoaded, StateReady:
		return nil
	}
	return fmt.Errorf("%w: cannot modify a document in state %s", ErrInvalidState, hm.state)
}

// CreateSet adds a new set of class setKey with a fresh instance UID.
func (hm *HeaderMetadata) CreateSet(setKey Key) (*Set, error) {
	uid := NewUUID()
	for _, taken := hm.byUID[uid]; taken; _, taken = hm.byUID[uid] {
		uid = NewUUID()
	}
	return hm.AddSet(setKey, uid)
}

// AddSet adds a new set of class setKey with the given instance UID.
func (hm *HeaderMetadata) AddSet(setKey Key, uid UUID) (*Set, error) {
	if err := hm.checkMutable(); err != nil {
		return nil, err
	}
	return hm.addSet(setKey, uid)
}

func (hm *HeaderMetadata) addSet(setKey Key, uid UUID) (*Set, error) {
	def, ok := hm.dm.FindSetDef(setKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSetDef, setKey)
	}
	if _, taken := hm.byUID[uid]; taken {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, uid)
	}
	s := &Set{doc: hm, uid: uid, def: def, index: make(map[Key]*Item)}
	hm.sets = append(hm.sets, s)
	hm.byUID[uid] = s
	return s, nil
}

// RemoveSet drops s from the arena. References to it become dangling.
func (hm *HeaderMetadata) RemoveSet(s *Set) bool {
	if s == nil || s.doc != hm || hm.checkMutable() != nil {
		return false
	}
	for i, cur := range hm.sets {
		if cur == s {
			hm.sets = append(hm.sets[:i], hm.sets[i+1:]...)
			delete(hm.byUID, s.uid)
			delete(hm.offsets, s.uid)
			s.doc = nil
			return true
		}
	}
	return false
}

// ResolveRef finds the set with instance UID uid. It serves strong and weak
// references alike and does not depend on the order sets were read in.
func (hm *HeaderMetadata) ResolveRef(uid UUID) (*Set, bool) {
	s, ok := hm.byUID[uid]
	return s, ok
}

// ResolveRefBytes is ResolveRef for a raw 16-byte item value.
func (hm *HeaderMetadata) ResolveRefBytes(b []byte) (*Set, bool) {
	if len(b) != len(UUID{}) {
		return nil, false
	}
	return hm.ResolveRef(UUID(b))
}

// FindSets returns the sets whose class is exactly setKey.
func (hm *HeaderMetadata) FindSets(setKey Key) []*Set {
	var out []*Set
	for _, s := range hm.sets {
		if s.def.Key == setKey {
			out = append(out, s)
		}
	}
	return out
}

// FindSetsOfClass returns the sets whose class is setKey or a subclass of it.
func (hm *HeaderMetadata) FindSetsOfClass(setKey Key) []*Set {
	var out []*Set
	for _, s := range hm.sets {
		if hm.dm.IsSubclassOf(s.def.Key, setKey) {
			out = append(out, s)
		}
	}
	return out
}

// FindSingularSet returns the only set of class setKey (or a subclass). It
// reports false when there are none or more than one.
func (hm *HeaderMetadata) FindSingularSet(setKey Key) (*Set, bool) {
	found := hm.FindSetsOfClass(setKey)
	if len(found) != 1 {
		return nil, false
	}
	return found[0], true
}

// DeclareItems reserves primer tags for items that will only be given values
// later. Declaring must happen before the first serialization, since the
// primer pack is written once and frozen afterwards.
func (hm *HeaderMetadata) DeclareItems(keys ...Key) error {
	for _, k := range keys {
		def, ok := hm.dm.FindItemDef(k)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownItemDef, k)
		}
		if _, err := hm.primer.Register(k, def.LocalTag); err != nil {
			return err
		}
	}
	return nil
}

// DeclareSetItems declares every property a set of class setKey may carry,
// including inherited ones.
func (hm *HeaderMetadata) DeclareSetItems(setKey Key) error {
	def, ok := hm.dm.FindSetDef(setKey)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSetDef, setKey)
	}
	for _, id := range def.AllItemDefs() {
		if _, err := hm.primer.Register(id.Key, id.LocalTag); err != nil {
			return err
		}
	}
	return nil
}

// Offset returns the byte offset of a set's KLV from the start of the
// header metadata (the primer pack key), as recorded by the last read or write.
func (hm *HeaderMetadata) Offset(uid UUID) (int64, bool) {
	off, ok := hm.offsets[uid]
	return off, ok
}

// SetOffsets returns a copy of every recorded set offset.
func (hm *HeaderMetadata) SetOffsets() map[UUID]int64 {
	out := make(map[UUID]int64, len(hm.offsets))
	for k, v := range hm.offsets {
		out[k] = v
	}
	return out
}

// itemDef resolves the definition key must have in s.
func (s *Set) itemDef(key Key) (*ItemDef, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("%w: set has been removed", ErrInvalidState)
	}
	if key == InstanceUIDKey {
		if def, ok := s.doc.dm.FindItemDefInSet(key, s.def); ok {
			return def, nil
		}
		return instanceUIDDef, nil
	}
	def, ok := s.doc.dm.FindItemDefInSet(key, s.def)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %q", ErrItemNotAllowed, key, s.def.Name)
	}
	return def, nil
}

// instanceUIDDef stands in for models that do not declare InstanceUID
// themselves; every set carries it regardless.
var instanceUIDDef = &ItemDef{
	Name:     "InstanceUID",
	Key:      InstanceUIDKey,
	LocalTag: InstanceUIDTag,
	TypeID:   TypeUUID,
	Required: true,
}

// SetItem stores value for key, which must be a property of the set's class
// or one of its ancestors. Setting InstanceUIDKey changes the set's identity.
func (s *Set) SetItem(key Key, value []byte) error {
	def, err := s.itemDef(key)
	if err != nil {
		return err
	}
	return s.store(def, value, s.doc.dm.refKind(def.TypeID))
}

func (s *Set) store(def *ItemDef, value []byte, ref RefKind) error {
	hm := s.doc
	if err := hm.checkMutable(); err != nil {
		return err
	}
	if def.Key == InstanceUIDKey {
		return s.setInstanceUID(value)
	}
	if len(value) > maxLocalItemLen {
		return fmt.Errorf("%w: %d byte value for %q exceeds local item maximum", ErrInvalidKLV, len(value), def.Name)
	}
	if _, err := hm.primer.Register(def.Key, def.LocalTag); err != nil {
		return err
	}
	v := append([]byte(nil), value...)
	if it, ok := s.index[def.Key]; ok {
		it.Value, it.def, it.ref = v, def, ref
		return nil
	}
	it := &Item{Key: def.Key, Value: v, def: def, ref: ref}
	s.items = append(s.items, it)
	s.index[def.Key] = it
	return nil
}

func (s *Set) setInstanceUID(value []byte) error {
	if len(value) != len(UUID{}) {
		return fmt.Errorf("%w: InstanceUID is %d bytes, want 16", ErrTypeMismatch, len(value))
	}
	uid := UUID(value)
	if uid == s.uid {
		return nil
	}
	hm := s.doc
	if _, taken := hm.byUID[uid]; taken {
		return fmt.Errorf("%w: %s", ErrDuplicateInstance, uid)
	}
	delete(hm.byUID, s.uid)
	delete(hm.offsets, s.uid)
	s.uid = uid
	hm.byUID[uid] = s
	return nil
}

// Item returns the stored item for key. InstanceUID is reported as an item
// even though it is held as the set's identity.
func (s *Set) Item(key Key) (*Item, bool) {
	if key == InstanceUIDKey {
		def, err := s.itemDef(key)
		if err != nil {
			def = instanceUIDDef
		}
		return &Item{Key: key, Value: append([]byte(nil), s.uid[:]...), def: def}, true
	}
	it, ok := s.index[key]
	return it, ok
}

// Value returns the encoded bytes stored for key.
func (s *Set) Value(key Key) ([]byte, bool) {
	it, ok := s.Item(key)
	if !ok {
		return nil, false
	}
	return it.Value, true
}

func (s *Set) HaveItem(key Key) bool {
	_, ok := s.Item(key)
	return ok
}

// RemoveItem deletes the item for key. InstanceUID cannot be removed.
func (s *Set) RemoveItem(key Key) bool {
	it, ok := s.index[key]
	if !ok || s.doc == nil || s.doc.checkMutable() != nil {
		return false
	}
	delete(s.index, key)
	for i, cur := range s.items {
		if cur == it {
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	return true
}

// Items returns the stored items, excluding InstanceUID, in insertion order.
func (s *Set) Items() []*Item { return append([]*Item(nil), s.items...) }

// MissingRequired lists required properties of the set's class hierarchy
// that have no value.
func (s *Set) MissingRequired() []*ItemDef {
	var out []*ItemDef
	for _, id := range s.def.AllItemDefs() {
		if id.Required && !s.HaveItem(id.Key) {
			out = append(out, id)
		}
	}
	return out
}

func (s *Set) refItemDef(key Key) (*ItemDef, error) {
	def, err := s.itemDef(key)
	if err != nil {
		return nil, err
	}
	if s.doc.dm.refKind(def.TypeID) == RefNone {
		return nil, fmt.Errorf("%w: %q is not a reference", ErrTypeMismatch, def.Name)
	}
	return def, nil
}

// SetStrongRef stores target's instance UID under key and records ownership
// intent.
func (s *Set) SetStrongRef(key Key, target *Set) error {
	return s.setRef(key, target, RefStrong)
}

// SetWeakRef stores target's instance UID under key without ownership intent.
func (s *Set) SetWeakRef(key Key, target *Set) error {
	return s.setRef(key, target, RefWeak)
}

func (s *Set) setRef(key Key, target *Set, kind RefKind) error {
	def, err := s.refItemDef(key)
	if err != nil {
		return err
	}
	if s.doc.dm.isArray(def.TypeID) {
		return fmt.Errorf("%w: %q is a reference array, use Append", ErrTypeMismatch, def.Name)
	}
	if err := s.checkTarget(target); err != nil {
		return err
	}
	return s.store(def, target.uid[:], kind)
}

// checkTarget rejects references that cannot resolve within s's document.
func (s *Set) checkTarget(target *Set) error {
	if target == nil {
		return fmt.Errorf("%w: nil reference target", ErrInvalidState)
	}
	if target.doc != s.doc {
		return fmt.Errorf("%w: reference target %s is not in this document", ErrInvalidState, target.uid)
	}
	return nil
}

// GrowArrayItem appends count zeroed elements of stride bytes to the array
// item key, creating it if absent, and returns the new elements' bytes. The
// returned slice aliases the item's storage until the next change to it.
func (s *Set) GrowArrayItem(key Key, stride, count uint32) ([]byte, error) {
	def, err := s.itemDef(key)
	if err != nil {
		return nil, err
	}
	if !s.doc.dm.isArray(def.TypeID) {
		return nil, fmt.Errorf("%w: %q is not an array", ErrTypeMismatch, def.Name)
	}
	return s.growArray(def, stride, count, s.doc.dm.refKind(def.TypeID))
}

func (s *Set) growArray(def *ItemDef, stride, count uint32, ref RefKind) ([]byte, error) {
	var cur []byte
	if it, ok := s.index[def.Key]; ok {
		cur = it.Value
		if it.ref != RefNone && ref == RefNone {
			ref = it.ref
		}
	}
	have, haveStride, err := parseArrayHeader(cur)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", def.Name, err)
	}
	if have > 0 && haveStride != stride {
		return nil, fmt.Errorf("%w: %q has stride %d, grow requested %d", ErrTypeMismatch, def.Name, haveStride, stride)
	}
	total := uint64(have) + uint64(count)
	size := arrayHeaderLen + total*uint64(stride)
	if total > math.MaxUint32 || size > maxLocalItemLen {
		return nil, fmt.Errorf("%w: %q grown to %d x %d bytes exceeds local item maximum", ErrLimitExceeded, def.Name, total, stride)
	}
	grown := make([]byte, size)
	if len(cur) > 0 {
		copy(grown, cur)
	}
	putArrayHeader(grown, uint32(total), stride)
	if err := s.store(def, grown, ref); err != nil {
		return nil, err
	}
	v := s.index[def.Key].Value
	return v[arrayHeaderLen+int(have)*int(stride):], nil
}

// AppendStrongRef adds target to the strong reference array key.
func (s *Set) AppendStrongRef(key Key, target *Set) error {
	return s.appendRef(key, target, RefStrong)
}

// AppendWeakRef adds target to the weak reference array key.
func (s *Set) AppendWeakRef(key Key, target *Set) error {
	return s.appendRef(key, target, RefWeak)
}

func (s *Set) appendRef(key Key, target *Set, kind RefKind) error {
	def, err := s.refItemDef(key)
	if err != nil {
		return err
	}
	if !s.doc.dm.isArray(def.TypeID) {
		return fmt.Errorf("%w: %q is not a reference array", ErrTypeMismatch, def.Name)
	}
	if err := s.checkTarget(target); err != nil {
		return err
	}
	slot, err := s.growArray(def, uint32(len(UUID{})), 1, kind)
	if err != nil {
		return err
	}
	copy(slot, target.uid[:])
	return nil
}

// Refs returns the instance UIDs held by key, which may be a single
// reference or a reference array.
func (s *Set) Refs(key Key) ([]UUID, error) {
	def, err := s.refItemDef(key)
	if err != nil {
		return nil, err
	}
	it, ok := s.index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrItemNotPresent, def.Name)
	}
	return decodeRefs(it.Value, s.doc.dm.isArray(def.TypeID))
}

// ResolveRefs resolves every reference held by key. Targets absent from the
// document are returned as nil entries.
func (s *Set) ResolveRefs(key Key) ([]*Set, error) {
	uids, err := s.Refs(key)
	if err != nil {
		return nil, err
	}
	out := make([]*Set, len(uids))
	for i, uid := range uids {
		out[i], _ = s.doc.ResolveRef(uid)
	}
	return out, nil
}

// ResolveRef resolves the single reference held by key.
func (s *Set) ResolveRef(key Key) (*Set, bool) {
	sets, err := s.ResolveRefs(key)
	if err != nil || len(sets) != 1 || sets[0] == nil {
		return nil, false
	}
	return sets[0], true
}

func decodeRefs(v []byte, array bool) ([]UUID, error) {
	if !array {
		if len(v) != len(UUID{}) {
			return nil, fmt.Errorf("%w: reference is %d bytes, want 16", ErrTypeMismatch, len(v))
		}
		return []UUID{UUID(v)}, nil
	}
	count, stride, err := parseArrayHeader(v)
	if err != nil {
		return nil, err
	}
	if count > 0 && stride != uint32(len(UUID{})) {
		return nil, fmt.Errorf("%w: reference array stride %d, want 16", ErrTypeMismatch, stride)
	}
	out := make([]UUID, count)
	for i := range out {
		off := arrayHeaderLen + i*len(UUID{})
		out[i] = UUID(v[off : off+len(UUID{})])
	}
	return out, nil
}

// references lists every (item, target) pair of the given kind held by s.
// Items whose stored intent is RefNone fall back to the kind implied by
// their type.
func (s *Set) references(kind RefKind) []reference {
	var out []reference
	dm := s.doc.dm
	for _, it := range s.items {
		k := it.ref
		if k == RefNone {
			k = dm.refKind(it.def.TypeID)
		}
		if k != kind {
			continue
		}
		uids, err := decodeRefs(it.Value, dm.isArray(it.def.TypeID))
		if err != nil {
			continue
		}
		for _, uid := range uids {
			out = append(out, reference{item: it, target: uid})
		}
	}
	return out
}

type reference struct {
	item   *Item
	target UUID
}

// WalkStrongRefs visits every set reachable from root through strong
// references, depth first, calling fn with each edge. child is nil when the
// target is not in the document. Returning false from fn stops descent below
// that edge. Each set is entered at most once.
func (hm *HeaderMetadata) WalkStrongRefs(root *Set, fn func(parent *Set, item *Item, child *Set) bool) {
	seen := map[*Set]struct{}{root: {}}
	stack := []*Set{root}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		refs := cur.references(RefStrong)
		for i := len(refs) - 1; i >= 0; i-- {
			child, _ := hm.ResolveRef(refs[i].target)
			if !fn(cur, refs[i].item, child) || child == nil {
				continue
			}
			if _, ok := seen[child]; ok {
				continue
			}
			seen[child] = struct{}{}
			stack = append(stack, child)
		}
	}
}

// Unreachable returns the sets that cannot be reached from root through
// strong references, in document order.
func (hm *HeaderMetadata) Unreachable(root *Set) []*Set {
	reached := map[*Set]struct{}{root: {}}
	hm.WalkStrongRefs(root, func(_ *Set, _ *Item, child *Set) bool {
		if child != nil {
			reached[child] = struct{}{}
		}
		return true
	})
	var out []*Set
	for _, s := range hm.sets {
		if _, ok := reached[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}

// DanglingRef is a reference whose target is not in the document.
type DanglingRef struct {
	Set    *Set
	Item   Key
	Kind   RefKind
	Target UUID
}

// DanglingRefs lists every strong and weak reference that does not resolve.
func (hm *HeaderMetadata) DanglingRefs() []DanglingRef {
	var out []DanglingRef
	for _, s := range hm.sets {
		for _, kind := range []RefKind{RefStrong, RefWeak} {
			for _, r := range s.references(kind) {
				if _, ok := hm.byUID[r.target]; !ok {
					out = append(out, DanglingRef{Set: s, Item: r.item.Key, Kind: kind, Target: r.target})
				}
			}
		}
	}
	return out
}
