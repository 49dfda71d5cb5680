package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xraph/conductor"
	"github.com/xraph/conductor/errors"
)

func newOrderCommand(flags *globalFlags) *cobra.Command {
	var stages bool

	cmd := &cobra.Command{
		Use:   "order",
		Short: "Print the initialization order",
		Long: `Print the dependency-respecting initialization order of the manifest.
With --stages, services are grouped by depth; services in the same stage are
initialized concurrently.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			g, err := s.conductor.BuildDependencyGraph()
			if err != nil {
				return err
			}

			if stages {
				st, err := g.Stages()
				if err != nil {
					return err
				}

				for i, stage := range st {
					fmt.Fprintf(out, "%s %s\n", Bold("stage "+strconv.Itoa(i)+":"), joinIDs(stage, ", "))
				}

				return nil
			}

			order, err := g.InitializationOrder()
			if err != nil {
				return err
			}

			for i, id := range order {
				fmt.Fprintf(out, "%3d. %s\n", i+1, id)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&stages, "stages", false, "group services by initialization stage")

	return cmd
}

func newGraphCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load()
			if err != nil {
				return err
			}

			tree, err := s.conductor.GenerateVisualization()
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), tree)

			return nil
		},
	}
}

func newReportCommand(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the full graph report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load()
			if err != nil {
				return err
			}

			report, err := s.conductor.GenerateReport()
			if err != nil {
				return err
			}

			return encode(cmd.OutOrStdout(), format, report)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", "json", "output format: json or yaml")

	return cmd
}

func newStatsCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print graph statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load()
			if err != nil {
				return err
			}

			st, err := s.conductor.Statistics()
			if err != nil {
				return err
			}

			rows := [][]string{
				{"Services", strconv.Itoa(st.TotalServices)},
				{"Singletons", strconv.Itoa(st.Singletons)},
				{"Transients", strconv.Itoa(st.Transients)},
				{"Scoped", strconv.Itoa(st.Scoped)},
				{"Edges", strconv.Itoa(st.Edges)},
				{"Average dependencies", strconv.FormatFloat(st.AverageDependencies, 'f', 2, 64)},
				{"Max depth", strconv.Itoa(st.MaxDepth)},
				{"Roots", strconv.Itoa(st.RootServices)},
				{"Leaves", strconv.Itoa(st.LeafServices)},
				{"Cycles", strconv.Itoa(st.Cycles)},
				{"Missing dependencies", strconv.Itoa(st.MissingDependencies)},
			}

			table(cmd.OutOrStdout(), []string{"Metric", "Value"}, rows)

			return nil
		},
	}
}

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the manifest for cycles and missing dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := flags.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			g, err := s.conductor.BuildDependencyGraph()
			if err != nil {
				return err
			}

			for _, cycle := range g.CircularDependencies {
				fmt.Fprintf(out, "%s %s -> %s\n", Red("cycle:"), joinIDs(cycle, " -> "), cycle[0])
			}

			for _, id := range g.Order() {
				if missing := g.MissingDependencies[id]; len(missing) > 0 {
					fmt.Fprintf(out, "%s %s requires %s\n", Red("missing:"), id, joinIDs(missing, ", "))
				}
			}

			if err := s.conductor.Validate(); err != nil {
				if errors.IsCircularDependency(err) || errors.IsMissingDependency(err) {
					return fmt.Errorf("manifest %s is invalid", flags.manifestFile)
				}

				return err
			}

			fmt.Fprintf(out, "%s %d services\n", BoldGreen("valid:"), g.Len())

			return nil
		},
	}
}

func joinIDs(ids []conductor.Identity, sep string) string {
	return strings.Join(identities(ids), sep)
}

func identities(ids []conductor.Identity) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}

	return out
}
