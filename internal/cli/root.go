// Package cli implements divoomctl, a one-shot command line client that
// drives a display directly over Bluetooth without the bridge service.
package cli

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/divoom-bridge/internal/device"
	"github.com/nerrad567/divoom-bridge/internal/divoom"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/config"
	"github.com/nerrad567/divoom-bridge/internal/infrastructure/logging"
)

const (
	defaultConfigPath = "configs/config.yaml"
	defaultTimeout    = 15 * time.Second

	// annotationNoConfig marks commands that run without loading config.yaml.
	annotationNoConfig = "divoomctl/no-config"
)

// SessionOpener builds the device session for a loaded configuration.
// logger is nil unless --verbose is set.
type SessionOpener func(cfg *config.Config, logger *logging.Logger) (*divoom.Session, error)

func openSession(cfg *config.Config, logger *logging.Logger) (*divoom.Session, error) {
	hooks := device.Hooks{}
	if logger != nil {
		hooks.Logger = logger
	}
	return device.Open(cfg.Device, hooks)
}

type options struct {
	cfgFile string
	jsonOut bool
	verbose bool
	timeout time.Duration

	cfg  *config.Config
	open SessionOpener
}

// NewRootCmd returns the divoomctl command tree. A nil open uses the
// Bluetooth transport from the device section of the configuration.
func NewRootCmd(open SessionOpener) *cobra.Command {
	if open == nil {
		open = openSession
	}
	o := &options{open: open}

	root := &cobra.Command{
		Use:   "divoomctl",
		Short: "Control a Divoom Bluetooth display",
		Long: `divoomctl connects to the display named in config.yaml, sends one
command and disconnects. Do not run it while divoombridge holds the link.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[annotationNoConfig] == "true" {
				return nil
			}
			return o.loadConfig()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&o.cfgFile, "config", "c", "", "config file (default: $DIVOOM_CONFIG or configs/config.yaml)")
	root.PersistentFlags().BoolVarP(&o.jsonOut, "json", "j", false, "output as JSON")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "log session activity to stderr")
	root.PersistentFlags().DurationVarP(&o.timeout, "timeout", "t", defaultTimeout, "timeout for connect plus command")

	root.AddCommand(
		o.connectCmd(),
		o.onCmd(),
		o.offCmd(),
		o.brightnessCmd(),
		o.colorCmd(),
		o.modeCmd(),
		o.scoreboardCmd(),
		modesCmd(&o.jsonOut),
		versionCmd(&o.jsonOut, &o.verbose),
	)
	return root
}

// Execute runs divoomctl with ctx. Cobra has already printed the error.
func Execute(ctx context.Context) error {
	return NewRootCmd(nil).ExecuteContext(ctx)
}

func (o *options) loadConfig() error {
	path := o.cfgFile
	if path == "" {
		path = os.Getenv("DIVOOM_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}
