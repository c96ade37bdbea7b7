package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nerrad567/divoom-bridge/internal/bridge"
	"github.com/nerrad567/divoom-bridge/internal/history"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/logging"
)

func (o *options) connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Check that the display is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, bridge.CommandConnect, nil)
		},
	}
}

func (o *options) onCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "on",
		Short: "Turn the display on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, bridge.CommandOn, nil)
		},
	}
}

func (o *options) offCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Turn the display off",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, bridge.CommandOff, nil)
		},
	}
}

func (o *options) brightnessCmd() *cobra.Command {
	var scale int
	cmd := &cobra.Command{
		Use:   "brightness <level>",
		Short: "Set brightness",
		Long: `Set the display brightness. Levels outside the scale are clamped.

Examples:
  divoomctl brightness 40
  divoomctl brightness 128 --scale 255`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid level %q", args[0])
			}
			return o.run(cmd, bridge.CommandBrightness, map[string]any{"level": level, "scale": scale})
		},
	}
	cmd.Flags().IntVar(&scale, "scale", 100, "input scale: 100 or 255")
	return cmd
}

func (o *options) colorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "color <r> <g> <b> | <#rrggbb>",
		Short: "Set the light colour",
		Long: `Set the colour of the Light mode. Components are clamped to 0-255.

Examples:
  divoomctl color 255 128 0
  divoomctl color '#ff8000'`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 && len(args) != 3 {
				return fmt.Errorf("expected <r> <g> <b> or <#rrggbb>, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rgb, err := parseColor(args)
			if err != nil {
				return err
			}
			return o.run(cmd, bridge.CommandColor, map[string]any{"r": rgb[0], "g": rgb[1], "b": rgb[2]})
		},
	}
}

func (o *options) modeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mode <label>",
		Short: "Switch display mode",
		Long: `Switch the display mode. Run "divoomctl modes" for the labels.
Labels are matched ignoring case, spaces, dashes and underscores.

Examples:
  divoomctl mode clock
  divoomctl mode Effect 2`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, bridge.CommandMode, map[string]any{"mode": strings.Join(args, " ")})
		},
	}
}

func (o *options) scoreboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scoreboard <score1> <score2>",
		Short: "Show a two-player scoreboard",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s1, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid score %q", args[0])
			}
			s2, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid score %q", args[1])
			}
			return o.run(cmd, bridge.CommandScoreboard, map[string]any{"score1": s1, "score2": s2})
		},
	}
}

// run opens a session, executes one command, prints the acknowledgement
// and disconnects.
func (o *options) run(cmd *cobra.Command, name string, params map[string]any) error {
	var logger *logging.Logger
	if o.verbose {
		logger = logging.NewWithWriter(config.LoggingConfig{Level: "debug", Format: "text"}, Version, cmd.ErrOrStderr())
	}

	sess, err := o.open(o.cfg, logger)
	if err != nil {
		return err
	}
	defer sess.Disconnect() //nolint:errcheck // Process exits next

	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	defer cancel()

	msg := bridge.CommandMessage{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DeviceID:   o.cfg.Device.ID,
		Command:    name,
		Parameters: params,
		Source:     history.SourceCLI,
	}

	execErr := bridge.Execute(ctx, sess, msg)
	ack := bridge.NewAckMessage(msg, sess.State(), execErr)

	out := cmd.OutOrStdout()
	if o.jsonOut {
		if err := printJSON(out, ack); err != nil {
			return err
		}
	} else {
		printAck(out, ack)
	}

	if execErr != nil {
		return fmt.Errorf("%s failed: %w", name, execErr)
	}
	return nil
}

// parseColor accepts three decimal components or one #rrggbb value.
func parseColor(args []string) ([3]int, error) {
	var rgb [3]int
	if len(args) == 1 {
		hex := strings.TrimPrefix(args[0], "#")
		if len(hex) != 6 {
			return rgb, fmt.Errorf("invalid colour %q: want #rrggbb", args[0])
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return rgb, fmt.Errorf("invalid colour %q: want #rrggbb", args[0])
		}
		return [3]int{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}, nil
	}

	for i, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return rgb, fmt.Errorf("invalid colour component %q", a)
		}
		rgb[i] = n
	}
	return rgb, nil
}
