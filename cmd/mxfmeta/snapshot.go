package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/logicossoftware/go-mxf/snapshot"
)

const snapshotExt = ".mxfsnap"

var errNotSnapshot = errors.New("input is not a snapshot")

func newSnapshotCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "snapshot FILE",
		Short: "Capture the header metadata of a file as a compressed snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = args[0] + snapshotExt
			}
			n, err := a.snapshot(args[0], out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d sets)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (default FILE"+snapshotExt+")")
	cmd.Flags().String("compression", "", "none, zip, zstd, lz4 or brotli")
	_ = a.v.BindPFlag("snapshot.compression", cmd.Flags().Lookup("compression"))
	return cmd
}

func (a *app) snapshot(in, out string) (int, error) {
	comp, err := snapshot.ParseCompression(a.cfg.Snapshot.Compression)
	if err != nil {
		return 0, err
	}
	l, err := a.load(in)
	if err != nil {
		return 0, err
	}
	snap, err := snapshot.Capture(l.hm, a.cfg.Schema.schemaNames())
	if err != nil {
		return 0, err
	}
	snap.Metadata["source"] = filepath.Base(in)
	snap.Metadata["sourceKind"] = l.kind.String()

	if err := writeFile(out, func(f *os.File) error {
		return snapshot.Encode(f, snap, snapshot.WithCompression(comp))
	}); err != nil {
		return 0, err
	}
	a.logger.Info("wrote snapshot",
		zap.String("path", out),
		zap.Stringer("compression", comp),
		zap.Int("bytes", len(snap.Header.Data)))
	return l.hm.Len(), nil
}

func newRestoreCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "restore SNAPSHOT",
		Short: "Write a snapshot's header metadata back out as a raw KLV stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				out = strings.TrimSuffix(args[0], snapshotExt) + ".klv"
			}
			n, err := a.restore(args[0], out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d sets)\n", out, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path (default SNAPSHOT with a .klv extension)")
	return cmd
}

// restore checks the snapshot against the configured model before writing
// its stream verbatim.
func (a *app) restore(in, out string) (int, error) {
	l, err := a.load(in)
	if err != nil {
		return 0, err
	}
	if l.kind != inputSnapshot {
		return 0, fmt.Errorf("%s: %w", in, errNotSnapshot)
	}
	if err := writeFile(out, func(f *os.File) error {
		_, err := f.Write(l.snap.Header.Data)
		return err
	}); err != nil {
		return 0, err
	}
	return l.hm.Len(), nil
}

// writeFile creates path and removes it again if fill or Close fails.
func writeFile(path string, fill func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	return nil
}
