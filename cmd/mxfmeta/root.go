package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	mxf "github.com/logicossoftware/go-mxf"
)

// app carries what PersistentPreRunE resolves for the subcommands.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *Config
	logger     *zap.Logger
	dm         *mxf.DataModel
}

func newRootCommand() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "mxfmeta",
		Short: "Inspect, check and snapshot MXF header metadata",
		Long: `mxfmeta reads the header metadata of an MXF file, a raw header metadata
stream (primer pack first) or an .mxfsnap snapshot, interprets it with the
SMPTE 377M baseline vocabulary plus any configured extensions, and reports
on or converts it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ./mxfmeta.yaml or ~/.config/mxfmeta/mxfmeta.yaml)")
	flags.StringSlice("schema", nil, "extra TOML schema files")
	flags.Bool("archive", true, "load the BBC archive extension classes")
	flags.Bool("strict", false, "fail on dangling strong references")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	for key, flag := range map[string]string{
		"schema.extensions": "schema",
		"schema.archive":    "archive",
		"read.strict_refs":  "strict",
		"log.level":         "log-level",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(newVersionCommand())
	root.AddCommand(newInfoCommand(a))
	root.AddCommand(newCheckCommand(a))
	root.AddCommand(newSnapshotCommand(a))
	root.AddCommand(newRestoreCommand(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.v, a.configFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	if a.logger, err = newLogger(cfg.Log); err != nil {
		return err
	}
	if cmd.Name() == "version" {
		return nil
	}
	a.dm, err = buildModel(cfg.Schema, a.logger)
	return err
}

func (a *app) readOptions() []mxf.ReadOption {
	return []mxf.ReadOption{
		mxf.WithReadLogger(a.logger),
		mxf.WithStrictReferences(a.cfg.Read.StrictRefs),
	}
}
