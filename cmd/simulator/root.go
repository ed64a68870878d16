package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/linkstate-simulator/core"
	"github.com/signalsfoundry/linkstate-simulator/internal/logging"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	logLevel  string
	logFormat string
	format    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "simulator",
		Short: "Link-state routing simulator",
		Long: `simulator loads a router topology, floods Hello and link-state
advertisements across it tick by tick and prints the resulting routing tables.`,
		SilenceUsage: true,
	}

	root.AddGroup(&cobra.Group{ID: "sim", Title: "Simulation Commands"})
	root.AddGroup(&cobra.Group{ID: "scenario", Title: "Scenario Commands"})

	env := logging.ConfigFromEnv()
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", env.Level, "log level (debug, info, warn, error); defaults to LOG_LEVEL")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", env.Format, "log format (text, json, pretty); defaults to LOG_FORMAT")
	root.PersistentFlags().StringVarP(&opts.format, "format", "f", "", "scenario format (json, yaml); inferred from the file extension when empty")

	root.AddCommand(newRunCmd(opts), newRoutesCmd(opts), newExportCmd(opts))
	return root
}

// logger builds the logger for a command. Logs go to stderr so that stdout
// carries only command output.
func (o *globalOptions) logger(events *logging.EventLog) logging.Logger {
	cfg := logging.ConfigFromEnv()
	cfg.Level = o.logLevel
	cfg.Format = o.logFormat
	cfg.Output = os.Stderr
	cfg.Events = events
	return logging.New(cfg)
}

// scenarioFormat resolves the --format flag, falling back to the file
// extension of path.
func (o *globalOptions) scenarioFormat(path string) (core.Format, error) {
	return resolveFormat(o.format, path)
}

func resolveFormat(explicit, path string) (core.Format, error) {
	if explicit != "" {
		return core.ParseFormat(explicit)
	}
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer format of %q; pass --format", path)
	}
	return core.ParseFormat(ext)
}
