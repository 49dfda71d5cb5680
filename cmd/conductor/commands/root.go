// Package commands implements the conductor command line.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/config"
	"github.com/xraph/conductor/internal/manifest"
	"github.com/xraph/conductor/logger"
)

// Version is injected at build time.
var Version = "dev"

type globalFlags struct {
	configFile   string
	manifestFile string
	noColor      bool
}

// Execute runs the root command against os.Args.
func Execute() error {
	root := NewRootCommand()

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, BoldRed("Error:"), err)

		return err
	}

	return nil
}

// NewRootCommand builds the command tree. Each call returns fresh flag state.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "conductor",
		Short: "Conductor - service dependency and lifecycle orchestration",
		Long: `Conductor loads a manifest of services, computes their dependency graph
and drives staged initialization, health checks, restarts and shutdown.

Use "conductor [command] --help" for more information about a command.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ConfigureColors(cmd.OutOrStdout(), flags.noColor)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "configuration file (YAML)")
	root.PersistentFlags().StringVarP(&flags.manifestFile, "manifest", "m", "conductor.yaml", "service manifest file (YAML)")
	root.PersistentFlags().BoolVar(&flags.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newOrderCommand(flags),
		newGraphCommand(flags),
		newReportCommand(flags),
		newStatsCommand(flags),
		newValidateCommand(flags),
		newSimulateCommand(flags),
		newServeCommand(flags),
	)

	return root
}

// session is a Conductor populated from the manifest.
type session struct {
	conductor *conductor.Conductor
	config    config.Config
	manifest  *manifest.Manifest
}

func (f *globalFlags) load() (*session, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return nil, err
	}

	m, err := manifest.LoadFile(f.manifestFile)
	if err != nil {
		return nil, err
	}

	c, err := conductor.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	descriptors, err := m.Descriptors()
	if err != nil {
		return nil, err
	}

	for _, d := range descriptors {
		if err := c.Register(d); err != nil {
			return nil, err
		}
	}

	c.Logger().Debug("manifest loaded",
		logger.String("manifest", f.manifestFile),
		logger.Int("services", len(descriptors)),
	)

	return &session{conductor: c, config: cfg, manifest: m}, nil
}
