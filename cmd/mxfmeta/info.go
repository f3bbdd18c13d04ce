package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	mxf "github.com/logicossoftware/go-mxf"
)

type setSummary struct {
	UID    string `json:"uid"`
	Class  string `json:"class"`
	Offset int64  `json:"offset"`
	Items  int    `json:"items"`
}

type summary struct {
	Source         string         `json:"source"`
	State          string         `json:"state"`
	Sets           int            `json:"sets"`
	PrimerEntries  int            `json:"primerEntries"`
	Classes        map[string]int `json:"classes"`
	DanglingStrong int            `json:"danglingStrong"`
	DanglingWeak   int            `json:"danglingWeak"`
	Schemas        []string       `json:"schemas,omitempty"`
	SetList        []setSummary   `json:"setList,omitempty"`
}

func describe(l *loaded, withSets bool) summary {
	hm := l.hm
	s := summary{
		Source:        l.kind.String(),
		State:         hm.State().String(),
		Sets:          hm.Len(),
		PrimerEntries: hm.Primer().Len(),
		Classes:       make(map[string]int),
	}
	if l.snap != nil {
		s.Schemas = l.snap.Header.Schemas
	}
	for _, d := range hm.DanglingRefs() {
		if d.Kind == mxf.RefStrong {
			s.DanglingStrong++
		} else {
			s.DanglingWeak++
		}
	}
	for _, set := range hm.Sets() {
		s.Classes[set.Def().Name]++
		if withSets {
			off, _ := hm.Offset(set.InstanceUID())
			s.SetList = append(s.SetList, setSummary{
				UID:    set.InstanceUID().String(),
				Class:  set.Def().Name,
				Offset: off,
				Items:  len(set.Items()),
			})
		}
	}
	return s
}

func (s summary) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Source:\t%s\n", s.Source)
	fmt.Fprintf(tw, "State:\t%s\n", s.State)
	fmt.Fprintf(tw, "Sets:\t%d\n", s.Sets)
	fmt.Fprintf(tw, "Primer entries:\t%d\n", s.PrimerEntries)
	fmt.Fprintf(tw, "Dangling references:\t%d strong, %d weak\n", s.DanglingStrong, s.DanglingWeak)
	for _, name := range s.Schemas {
		fmt.Fprintf(tw, "Schema:\t%s\n", name)
	}

	classes := make([]string, 0, len(s.Classes))
	for name := range s.Classes {
		classes = append(classes, name)
	}
	sort.Strings(classes)
	fmt.Fprintln(tw, "\nClass\tCount")
	for _, name := range classes {
		fmt.Fprintf(tw, "%s\t%d\n", name, s.Classes[name])
	}

	if len(s.SetList) > 0 {
		fmt.Fprintln(tw, "\nOffset\tInstanceUID\tClass\tItems")
		for _, set := range s.SetList {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", set.Offset, set.UID, set.Class, set.Items)
		}
	}
	return tw.Flush()
}

func newInfoCommand(a *app) *cobra.Command {
	var asJSON, withSets bool
	cmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Summarise the header metadata in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := a.load(args[0])
			if err != nil {
				return err
			}
			s := describe(l, withSets)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(s)
			}
			return s.writeText(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&withSets, "sets", false, "list every set with its offset")
	return cmd
}
