package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	mxf "github.com/logicossoftware/go-mxf"
)

var errCheckFailed = errors.New("check failed")

// checkDocument lists the problems found in hm. Unreachable sets are only
// reported when the document has exactly one Preface to walk from.
func checkDocument(dm *mxf.DataModel, hm *mxf.HeaderMetadata, required bool) []string {
	var problems []string
	for _, d := range hm.DanglingRefs() {
		if d.Kind != mxf.RefStrong {
			continue
		}
		problems = append(problems, fmt.Sprintf("%s %s: strong reference %s to missing set %s",
			d.Set.Def().Name, d.Set.InstanceUID(), itemName(dm, d.Item), d.Target))
	}
	if required {
		for _, s := range hm.Sets() {
			missing := s.MissingRequired()
			if len(missing) == 0 {
				continue
			}
			names := make([]string, len(missing))
			for i, id := range missing {
				names[i] = id.Name
			}
			problems = append(problems, fmt.Sprintf("%s %s: missing required %s",
				s.Def().Name, s.InstanceUID(), strings.Join(names, ", ")))
		}
	}
	if def, ok := dm.FindSetDefByName("Preface"); ok {
		if preface, ok := hm.FindSingularSet(def.Key); ok {
			for _, s := range hm.Unreachable(preface) {
				problems = append(problems, fmt.Sprintf("%s %s: not reachable from the Preface",
					s.Def().Name, s.InstanceUID()))
			}
		}
	}
	return problems
}

func itemName(dm *mxf.DataModel, key mxf.Key) string {
	if id, ok := dm.FindItemDef(key); ok {
		return id.Name
	}
	return key.String()
}

func newCheckCommand(a *app) *cobra.Command {
	var required bool
	cmd := &cobra.Command{
		Use:   "check [FILE...]",
		Short: "Check the data model and, optionally, documents against it",
		Long: `check validates the configured data model (duplicate keys and tags, unknown
types, a single root class) and then each FILE: dangling strong references,
missing required items and sets not reachable from the Preface.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.check(cmd.OutOrStdout(), args, required)
		},
	}
	cmd.Flags().BoolVar(&required, "required", true, "report sets missing required items")
	return cmd
}

func (a *app) check(w io.Writer, paths []string, required bool) error {
	failed := false
	ok, violations := a.dm.Check()
	if ok {
		fmt.Fprintf(w, "data model: ok (%d classes, %d properties)\n", len(a.dm.SetDefs()), len(a.dm.ItemDefs()))
	} else {
		failed = true
		fmt.Fprintf(w, "data model: %d problems\n", len(violations))
		for _, v := range violations {
			fmt.Fprintf(w, "  %s\n", v)
		}
	}

	for _, path := range paths {
		l, err := a.load(path)
		if err != nil {
			failed = true
			fmt.Fprintf(w, "%s: %v\n", path, err)
			continue
		}
		problems := checkDocument(a.dm, l.hm, required)
		if len(problems) == 0 {
			fmt.Fprintf(w, "%s: ok (%d sets)\n", path, l.hm.Len())
			continue
		}
		failed = true
		fmt.Fprintf(w, "%s: %d problems\n", path, len(problems))
		for _, p := range problems {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if failed {
		return errCheckFailed
	}
	return nil
}
