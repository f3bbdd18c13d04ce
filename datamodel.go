package mxf

import (
	"fmt"

	"go.uber.org/zap"
)

// DataModel holds the value types, classes and properties that give meaning
// to header metadata. Registration and Finalize must not run concurrently
// with anything else; after Finalize the model may be shared read-only.
type DataModel struct {
	TypeRegistry

	setDefs  []*SetDef
	itemDefs []*ItemDef

	setIndex  map[Key]*SetDef
	itemIndex map[Key]*ItemDef
	setNames  map[string]*SetDef

	finalized bool
	logger    *zap.Logger
}

// NewDataModel returns a DataModel holding the built-in value types and no
// classes.
func NewDataModel(opts ...ModelOption) (*DataModel, error) {
	cfg := modelConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	dm := &DataModel{
		setIndex:  make(map[Key]*SetDef),
		itemIndex: make(map[Key]*ItemDef),
		setNames:  make(map[string]*SetDef),
		logger:    cfg.logger,
	}
	if err := dm.registerBuiltins(); err != nil {
		return nil, err
	}
	return dm, nil
}

// Logger returns the logger the model was created with.
func (dm *DataModel) Logger() *zap.Logger { return dm.logger }

// RegisterSetDef adds a class. Use NullKey as parentKey for the schema root.
// Duplicates are not rejected here; Check reports them.
func (dm *DataModel) RegisterSetDef(name string, parentKey, key Key) *SetDef {
	sd := &SetDef{Name: name, Key: key, ParentKey: parentKey}
	dm.setDefs = append(dm.setDefs, sd)
	if _, ok := dm.setIndex[key]; !ok {
		dm.setIndex[key] = sd
	}
	if _, ok := dm.setNames[name]; !ok && name != "" {
		dm.setNames[name] = sd
	}
	dm.finalized = false
	return sd
}

// RegisterItemDef adds a property owned by the class setKey. A zero tag
// requests a per-document dynamic tag.
func (dm *DataModel) RegisterItemDef(name string, setKey, key Key, tag LocalTag, typeID TypeID, required bool) *ItemDef {
	id := &ItemDef{Name: name, Key: key, SetDefKey: setKey, LocalTag: tag, TypeID: typeID, Required: required}
	dm.itemDefs = append(dm.itemDefs, id)
	if _, ok := dm.itemIndex[key]; !ok {
		dm.itemIndex[key] = id
	}
	dm.finalized = false
	return id
}

// Finalize resolves every SetDef's parent and attaches every ItemDef to its
// owner. It may be called again after further registrations.
func (dm *DataModel) Finalize() error {
	dm.finalized = false
	for _, sd := range dm.setDefs {
		sd.ItemDefs = nil
		sd.Parent = nil
		if sd.ParentKey.IsNull() {
			continue
		}
		parent, ok := dm.setIndex[sd.ParentKey]
		if !ok {
			return &LinkError{Kind: LinkParent, Name: sd.Name, Key: sd.Key, Missing: sd.ParentKey}
		}
		sd.Parent = parent
	}
	if err := dm.checkParentCycles(); err != nil {
		return err
	}
	for _, id := range dm.itemDefs {
		owner, ok := dm.setIndex[id.SetDefKey]
		if !ok {
			return &LinkError{Kind: LinkOwner, Name: id.Name, Key: id.Key, Missing: id.SetDefKey}
		}
		owner.ItemDefs = append(owner.ItemDefs, id)
	}
	dm.finalized = true
	dm.logger.Debug("data model finalized",
		zap.Int("setDefs", len(dm.setDefs)), zap.Int("itemDefs", len(dm.itemDefs)))
	return nil
}

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// checkParentCycles walks each parent chain once, marking finished chains so
// the whole pass is linear in the number of set defs.
func (dm *DataModel) checkParentCycles() error {
	states := make(map[*SetDef]visitState, len(dm.setDefs))
	for _, start := range dm.setDefs {
		var path []*SetDef
		for sd := start; sd != nil; sd = sd.Parent {
			if st := states[sd]; st == stateDone {
				break
			} else if st == stateVisiting {
				return &LinkError{Kind: LinkCycle, Name: sd.Name, Key: sd.Key}
			}
			states[sd] = stateVisiting
			path = append(path, sd)
		}
		for _, sd := range path {
			states[sd] = stateDone
		}
	}
	return nil
}

// Finalized reports whether the model has been finalized since its last
// registration.
func (dm *DataModel) Finalized() bool { return dm.finalized }

// SetDefs returns the registered classes in registration order.
func (dm *DataModel) SetDefs() []*SetDef { return dm.setDefs }

// ItemDefs returns the registered properties in registration order.
func (dm *DataModel) ItemDefs() []*ItemDef { return dm.itemDefs }

// FindSetDef looks a class up by key.
func (dm *DataModel) FindSetDef(key Key) (*SetDef, bool) {
	sd, ok := dm.setIndex[key]
	return sd, ok
}

// FindSetDefByName looks a class up by name.
func (dm *DataModel) FindSetDefByName(name string) (*SetDef, bool) {
	sd, ok := dm.setNames[name]
	return sd, ok
}

// FindItemDef looks a property up by key regardless of owner.
func (dm *DataModel) FindItemDef(key Key) (*ItemDef, bool) {
	id, ok := dm.itemIndex[key]
	return id, ok
}

// FindItemDefInSet finds a property declared on setDef or one of its
// ancestors. It relies on the links made by Finalize.
func (dm *DataModel) FindItemDefInSet(key Key, setDef *SetDef) (*ItemDef, bool) {
	for sd, hops := setDef, 0; sd != nil && hops <= maxSetDepth; sd, hops = sd.Parent, hops+1 {
		for _, id := range sd.ItemDefs {
			if id.Key == key {
				return id, true
			}
		}
	}
	return nil, false
}

// IsSubclassOf reports whether class a equals b or derives from it.
func (dm *DataModel) IsSubclassOf(a, b Key) bool {
	seen := make(map[Key]struct{})
	for cur := a; ; {
		if cur == b {
			return true
		}
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
		sd, ok := dm.setIndex[cur]
		if !ok {
			return false
		}
		cur = sd.ParentKey
	}
}

// ViolationKind classifies a problem found by Check.
type ViolationKind uint8

const (
	DuplicateSetDef ViolationKind = iota + 1
	DuplicateItemDef
	DuplicateLocalTag
	UnknownItemType
	UnownedItemDef
	RootCount
)

func (k ViolationKind) String() string {
	switch k {
	case DuplicateSetDef:
		return "duplicate set def"
	case DuplicateItemDef:
		return "duplicate item def"
	case DuplicateLocalTag:
		return "duplicate local tag"
	case UnknownItemType:
		return "unknown item type"
	case UnownedItemDef:
		return "item def without owner"
	case RootCount:
		return "root set def count"
	default:
		return fmt.Sprintf("violation(%d)", uint8(k))
	}
}

// Violation is one problem found by Check.
type Violation struct {
	Kind     ViolationKind
	Name     string
	Key      Key
	LocalTag LocalTag
	TypeID   TypeID
	Detail   string
}

func (v Violation) String() string {
	s := fmt.Sprintf("%s: %q (%s)", v.Kind, v.Name, v.Key)
	if v.Detail != "" {
		s += ": " + v.Detail
	}
	return s
}

// Check validates the registered vocabulary and reports every problem it
// finds rather than stopping at the first. It returns false if any were found.
func (dm *DataModel) Check() (bool, []Violation) {
	var out []Violation
	report := func(v Violation) {
		out = append(out, v)
		dm.logger.Warn("data model check",
			zap.Stringer("kind", v.Kind),
			zap.String("name", v.Name),
			zap.Stringer("key", v.Key),
			zap.Uint16("localTag", uint16(v.LocalTag)),
			zap.Uint16("typeId", uint16(v.TypeID)),
			zap.String("detail", v.Detail))
	}

	seenSets := make(map[Key]*SetDef, len(dm.setDefs))
	roots := 0
	for _, sd := range dm.setDefs {
		if first, ok := seenSets[sd.Key]; ok {
			report(Violation{Kind: DuplicateSetDef, Name: sd.Name, Key: sd.Key,
				Detail: fmt.Sprintf("also registered as %q", first.Name)})
			continue
		}
		seenSets[sd.Key] = sd
		if sd.IsRoot() {
			roots++
		}
	}
	if len(dm.setDefs) > 0 && roots != 1 {
		report(Violation{Kind: RootCount, Detail: fmt.Sprintf("found %d set defs without a parent, want 1", roots)})
	}

	seenItems := make(map[Key]*ItemDef, len(dm.itemDefs))
	seenTags := make(map[LocalTag]*ItemDef)
	for _, id := range dm.itemDefs {
		if id.SetDefKey.IsNull() {
			report(Violation{Kind: UnownedItemDef, Name: id.Name, Key: id.Key, LocalTag: id.LocalTag})
		}
		if first, ok := seenItems[id.Key]; ok {
			report(Violation{Kind: DuplicateItemDef, Name: id.Name, Key: id.Key, LocalTag: id.LocalTag,
				Detail: fmt.Sprintf("also registered as %q", first.Name)})
		} else {
			seenItems[id.Key] = id
		}
		if id.LocalTag != 0 {
			if first, ok := seenTags[id.LocalTag]; ok {
				report(Violation{Kind: DuplicateLocalTag, Name: id.Name, Key: id.Key, LocalTag: id.LocalTag,
					Detail: fmt.Sprintf("tag 0x%04x already used by %q", uint16(id.LocalTag), first.Name)})
			} else {
				seenTags[id.LocalTag] = id
			}
		}
		if _, ok := dm.Type(id.TypeID); !ok {
			report(Violation{Kind: UnknownItemType, Name: id.Name, Key: id.Key, LocalTag: id.LocalTag, TypeID: id.TypeID})
		}
	}
	return len(out) == 0, out
}
