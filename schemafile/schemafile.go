// Package schemafile loads declarative header metadata vocabularies into a
// mxf.DataModel. A schema file is TOML:
//
//	[[types]]
//	name = "ChannelCount"
//	category = "interpreted"
//	underlying = "UInt32"
//
//	[[sets]]
//	name = "APP_InfaxFramework"
//	key = "06.0e.2b.34.02.53.01.01.0d.04.01.01.01.01.01.00"
//	parent = "DMFramework"
//
//	[[sets.items]]
//	name = "APP_Format"
//	key = "06.0e.2b.34.01.01.01.01.0d.04.01.01.01.01.01.00"
//	type = "UTF16String"
//
// A set's parent is a set name or key, either defined earlier in the same
// file or already registered in the model. An item without a tag is given a
// per-document dynamic tag.
package schemafile

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	mxf "github.com/logicossoftware/go-mxf"
)

//go:embed schemas/*.toml
var embedded embed.FS

var (
	ErrInvalidSchema = errors.New("schemafile: invalid schema")
	ErrUnknownType   = errors.New("schemafile: unknown type")
	ErrUnknownParent = errors.New("schemafile: unknown parent set")
)

// File is a parsed schema file.
type File struct {
	Name  string     `toml:"name"`
	Types []TypeSpec `toml:"types"`
	Sets  []SetSpec  `toml:"sets"`
}

// TypeSpec declares a value type. Which fields apply depends on Category.
type TypeSpec struct {
	Name       string       `toml:"name"`
	ID         uint16       `toml:"id"`
	Category   string       `toml:"category"`
	Size       uint32       `toml:"size"`
	Element    string       `toml:"element"`
	FixedSize  uint32       `toml:"fixed_size"`
	Underlying string       `toml:"underlying"`
	Members    []MemberSpec `toml:"members"`
}

type MemberSpec struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

type SetSpec struct {
	Name   string     `toml:"name"`
	Key    string     `toml:"key"`
	Parent string     `toml:"parent"`
	Items  []ItemSpec `toml:"items"`
}

type ItemSpec struct {
	Name     string `toml:"name"`
	Key      string `toml:"key"`
	Tag      uint16 `toml:"tag"`
	Type     string `toml:"type"`
	Required bool   `toml:"required"`
}

// Parse decodes a schema file. Unknown fields are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	return &f, nil
}

// ParseFile reads and parses the schema file at path.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema at %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = path
	}
	return f, nil
}

// Load registers the file's types, sets and items with dm. It does not
// finalize dm.
func (f *File) Load(dm *mxf.DataModel) error {
	for _, ts := range f.Types {
		if err := loadType(dm, ts); err != nil {
			return fmt.Errorf("%s: type %q: %w", f.Name, ts.Name, err)
		}
	}

	keys := make(map[string]mxf.Key, len(f.Sets))
	for _, ss := range f.Sets {
		key, err := mxf.ParseKey(ss.Key)
		if err != nil {
			return fmt.Errorf("%s: set %q: %w: %w", f.Name, ss.Name, ErrInvalidSchema, err)
		}
		parent, err := resolveParent(dm, keys, ss.Parent)
		if err != nil {
			return fmt.Errorf("%s: set %q: %w", f.Name, ss.Name, err)
		}
		dm.RegisterSetDef(ss.Name, parent, key)
		keys[ss.Name] = key

		for _, is := range ss.Items {
			ik, err := mxf.ParseKey(is.Key)
			if err != nil {
				return fmt.Errorf("%s: item %s.%s: %w: %w", f.Name, ss.Name, is.Name, ErrInvalidSchema, err)
			}
			t, ok := dm.TypeByName(is.Type)
			if !ok {
				return fmt.Errorf("%s: item %s.%s: %w %q", f.Name, ss.Name, is.Name, ErrUnknownType, is.Type)
			}
			dm.RegisterItemDef(is.Name, key, ik, mxf.LocalTag(is.Tag), t.ID, is.Required)
		}
	}
	return nil
}

func resolveParent(dm *mxf.DataModel, local map[string]mxf.Key, parent string) (mxf.Key, error) {
	parent = strings.TrimSpace(parent)
	if parent == "" {
		return mxf.NullKey, nil
	}
	if k, ok := local[parent]; ok {
		return k, nil
	}
	if sd, ok := dm.FindSetDefByName(parent); ok {
		return sd.Key, nil
	}
	if k, err := mxf.ParseKey(parent); err == nil {
		return k, nil
	}
	return mxf.NullKey, fmt.Errorf("%w %q", ErrUnknownParent, parent)
}

func loadType(dm *mxf.DataModel, ts TypeSpec) error {
	id := mxf.TypeID(ts.ID)
	lookup := func(name string) (mxf.TypeID, error) {
		t, ok := dm.TypeByName(name)
		if !ok {
			return mxf.TypeUnknown, fmt.Errorf("%w %q", ErrUnknownType, name)
		}
		return t.ID, nil
	}
	var err error
	switch strings.ToLower(ts.Category) {
	case "basic":
		_, err = dm.RegisterBasicType(ts.Name, id, ts.Size)
	case "array":
		var elem mxf.TypeID
		if elem, err = lookup(ts.Element); err == nil {
			_, err = dm.RegisterArrayType(ts.Name, id, elem, ts.FixedSize)
		}
	case "compound":
		members := make([]mxf.CompoundMember, len(ts.Members))
		for i, m := range ts.Members {
			if members[i].TypeID, err = lookup(m.Type); err != nil {
				return err
			}
			members[i].Name = m.Name
		}
		_, err = dm.RegisterCompoundType(ts.Name, id, members)
	case "interpreted":
		var under mxf.TypeID
		if under, err = lookup(ts.Underlying); err == nil {
			_, err = dm.RegisterInterpretedType(ts.Name, id, under, ts.FixedSize)
		}
	default:
		err = fmt.Errorf("%w: category %q", ErrInvalidSchema, ts.Category)
	}
	return err
}

// LoadFile parses the schema file at path and loads it into dm.
func LoadFile(path string, dm *mxf.DataModel) error {
	f, err := ParseFile(path)
	if err != nil {
		return err
	}
	return f.Load(dm)
}

func loadEmbedded(name string, dm *mxf.DataModel) error {
	data, err := embedded.ReadFile("schemas/" + name)
	if err != nil {
		return err
	}
	f, err := Parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if f.Name == "" {
		f.Name = name
	}
	return f.Load(dm)
}

// LoadBaseline loads the built-in SMPTE 377M header metadata classes.
func LoadBaseline(dm *mxf.DataModel) error { return loadEmbedded("baseline.toml", dm) }

// LoadArchiveExtensions loads the BBC archive preservation classes. The
// baseline must be loaded first.
func LoadArchiveExtensions(dm *mxf.DataModel) error { return loadEmbedded("archive.toml", dm) }

// Options selects the vocabulary NewModel loads on top of the baseline.
type Options struct {
	Archive    bool
	Extensions []string
}

// NewModel builds and finalizes a data model with the baseline classes and
// the requested extensions.
func NewModel(o Options, opts ...mxf.ModelOption) (*mxf.DataModel, error) {
	dm, err := mxf.NewDataModel(opts...)
	if err != nil {
		return nil, err
	}
	if err := LoadBaseline(dm); err != nil {
		return nil, err
	}
	if o.Archive {
		if err := LoadArchiveExtensions(dm); err != nil {
			return nil, err
		}
	}
	for _, path := range o.Extensions {
		if err := LoadFile(path, dm); err != nil {
			return nil, err
		}
	}
	if err := dm.Finalize(); err != nil {
		return nil, err
	}
	return dm, nil
}
