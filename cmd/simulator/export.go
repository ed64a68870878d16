package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/linkstate-simulator/core"
)

func newExportCmd(global *globalOptions) *cobra.Command {
	var (
		to     string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <scenario>",
		Short: "Validate a scenario and re-encode it in canonical form",
		Long: `Loads a scenario into a fresh network and exports it again. The output
lists every directed adjacency and flags those whose reverse carries the same
weight as bidirectional. Use --to to convert between JSON and YAML.`,
		Args:    cobra.ExactArgs(1),
		GroupID: "scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			in, err := global.scenarioFormat(path)
			if err != nil {
				return err
			}
			outFormat := in
			if to != "" {
				if outFormat, err = core.ParseFormat(to); err != nil {
					return err
				}
			}

			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open scenario: %w", err)
			}
			defer f.Close()

			net := core.NewNetwork(core.WithLogger(global.logger(nil)))
			if err := core.LoadScenario(net, f, in); err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer file.Close()
				w = file
			}
			return core.ExportScenario(net, w, outFormat)
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "output format (json, yaml); defaults to the input format")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output path, - for stdout")
	return cmd
}
