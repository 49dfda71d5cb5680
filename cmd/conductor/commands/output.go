package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	json "github.com/json-iterator/go"

	"github.com/xraph/conductor"
)

var (
	Green     = color.New(color.FgGreen).SprintFunc()
	Red       = color.New(color.FgRed).SprintFunc()
	Yellow    = color.New(color.FgYellow).SprintFunc()
	Gray      = color.New(color.FgHiBlack).SprintFunc()
	Bold      = color.New(color.Bold).SprintFunc()
	BoldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	BoldRed   = color.New(color.FgRed, color.Bold).SprintFunc()
)

// ConfigureColors enables color only for terminals and honors NO_COLOR and
// FORCE_COLOR.
func ConfigureColors(w io.Writer, disabled bool) {
	switch {
	case disabled || os.Getenv("NO_COLOR") != "":
		color.NoColor = true
	case os.Getenv("FORCE_COLOR") != "":
		color.NoColor = false
	default:
		color.NoColor = !isTerminal(w)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && term.IsTerminal(int(f.Fd()))
}

// table prints rows in the borderless layout used by every command.
func table(w io.Writer, headers []string, rows [][]string) {
	t := tablewriter.NewWriter(w)
	t.SetHeader(headers)

	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetColumnSeparator("")
	t.SetRowSeparator("")
	t.SetHeaderLine(false)
	t.SetBorder(false)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)

	t.AppendBulk(rows)
	t.Render()
}

// encode writes v as json or yaml.
func encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(w, string(data))

		return err
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(v); err != nil {
			return err
		}

		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json or yaml)", format)
	}
}

func colorStatus(s conductor.Status) string {
	switch s {
	case conductor.StatusInitialized, conductor.StatusShutDown:
		return Green(s.String())
	case conductor.StatusFailed:
		return Red(s.String())
	default:
		return Yellow(s.String())
	}
}

func colorHealth(healthy bool) string {
	if healthy {
		return Green("healthy")
	}

	return Red("unhealthy")
}

// outcomeRows lists outcomes in the given order, skipping ids without one.
func outcomeRows(order []conductor.Identity, outcomes conductor.Outcomes) [][]string {
	rows := make([][]string, 0, len(outcomes))

	for _, id := range order {
		o, ok := outcomes[id]
		if !ok {
			continue
		}

		reason := o.Reason
		if o.Err != nil {
			reason = o.Err.Error()
		}

		rows = append(rows, []string{string(id), colorStatus(o.Status), o.Duration.Round(10 * time.Microsecond).String(), reason})
	}

	return rows
}
