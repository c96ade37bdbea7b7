package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
	"github.com/nerrad567/divoom-bridge/internal/divoom"
)

// Set via ldflags at build time
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printAck writes a short human-readable summary of an acknowledgement.
func printAck(w io.Writer, ack bridge.AckMessage) {
	if ack.Error != nil {
		fmt.Fprintf(w, "✗ %s %s: %s\n", ack.Command, ack.Status, ack.Error.Code)
		return
	}

	fmt.Fprintf(w, "✓ %s\n", ack.Command)
	if ack.State != nil {
		printState(w, *ack.State)
	}
}

func printState(w io.Writer, s divoom.State) {
	power := "off"
	if s.Power {
		power = "on"
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  device:\t%s (%s)\n", s.Address, s.Connection)
	fmt.Fprintf(tw, "  power:\t%s\n", power)
	fmt.Fprintf(tw, "  brightness:\t%d\n", s.Brightness)
	fmt.Fprintf(tw, "  color:\t#%02x%02x%02x\n", s.Color.R, s.Color.G, s.Color.B)
	fmt.Fprintf(tw, "  mode:\t%s\n", s.Mode)
	if s.Mode == divoom.ModeScore.String() {
		fmt.Fprintf(tw, "  score:\t%d : %d\n", s.Score1, s.Score2)
	}
	tw.Flush() //nolint:errcheck // Writes to an in-memory buffer or stdout
}

func modesCmd(jsonOut *bool) *cobra.Command {
	return &cobra.Command{
		Use:         "modes",
		Short:       "List display modes",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			modes := divoom.Modes()
			if *jsonOut {
				return printJSON(cmd.OutOrStdout(), map[string]any{"modes": modes})
			}
			for _, m := range modes {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return nil
		},
	}
}

func versionCmd(jsonOut, verbose *bool) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version information",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationNoConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if *jsonOut {
				return printJSON(out, map[string]string{
					"version":    Version,
					"commit":     Commit,
					"build_date": BuildDate,
					"go_version": runtime.Version(),
					"os":         runtime.GOOS,
					"arch":       runtime.GOARCH,
				})
			}

			fmt.Fprintf(out, "divoomctl %s\n", Version)
			if *verbose {
				fmt.Fprintf(out, "  commit:     %s\n", Commit)
				fmt.Fprintf(out, "  built:      %s\n", BuildDate)
				fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
				fmt.Fprintf(out, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			}
			return nil
		},
	}
}
