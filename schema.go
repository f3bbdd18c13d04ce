package mxf

// SetDef is a header metadata class. Parent and ItemDefs are populated by
// DataModel.Finalize.
type SetDef struct {
	Name      string
	Key       Key
	ParentKey Key

	Parent   *SetDef
	ItemDefs []*ItemDef
}

// IsRoot reports whether d has no parent class.
func (d *SetDef) IsRoot() bool { return d.ParentKey.IsNull() }

// ItemDefByName finds a property by name on d or one of its ancestors.
func (d *SetDef) ItemDefByName(name string) (*ItemDef, bool) {
	for sd, hops := d, 0; sd != nil && hops <= maxSetDepth; sd, hops = sd.Parent, hops+1 {
		for _, id := range sd.ItemDefs {
			if id.Name == name {
				return id, true
			}
		}
	}
	return nil, false
}

// AllItemDefs returns the properties of d's ancestors followed by its own,
// root first.
func (d *SetDef) AllItemDefs() []*ItemDef {
	var chain []*SetDef
	for sd, hops := d, 0; sd != nil && hops <= maxSetDepth; sd, hops = sd.Parent, hops+1 {
		chain = append(chain, sd)
	}
	var out []*ItemDef
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].ItemDefs...)
	}
	return out
}

// ItemDef is a header metadata property. A LocalTag of zero means the tag is
// assigned per document.
type ItemDef struct {
	Name      string
	Key       Key
	SetDefKey Key
	LocalTag  LocalTag
	TypeID    TypeID
	Required  bool
}

// maxSetDepth bounds parent-chain walks. Finalize rejects cycles, so the
// bound is only reached by a model that was never finalized.
const maxSetDepth = 1 << 12
