package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/linkstate-simulator/core"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

func newRoutesCmd(global *globalOptions) *cobra.Command {
	var (
		source  int
		reachOf int
	)
	cmd := &cobra.Command{
		Use:   "routes <scenario>",
		Short: "Print shortest-path routing tables computed on the full topology",
		Long: `Computes every router's routing table directly from the scenario's
topology, without simulating Hello or LSA exchange. Useful as the reference
that a converged simulation run should reproduce.`,
		Args:    cobra.ExactArgs(1),
		GroupID: "scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			format, err := global.scenarioFormat(path)
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open scenario: %w", err)
			}
			defer f.Close()

			st, err := core.DecodeState(f, format)
			if err != nil {
				return err
			}
			net := core.NewNetwork(core.WithLogger(global.logger(nil)))
			if err := core.ImportState(net, st); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if reachOf != 0 {
				return writeReachable(out, model.NodeID(reachOf), net.GetReachableNodes(model.NodeID(reachOf)))
			}

			tables := make(map[model.NodeID]model.RoutingTable)
			for _, id := range st.SortedNodeIDs() {
				if source != 0 && id != source {
					continue
				}
				tables[model.NodeID(id)] = net.CalculateShortestPaths(model.NodeID(id))
			}
			if source != 0 && len(tables) == 0 {
				return fmt.Errorf("router %d not in scenario", source)
			}
			return writeRoutingTables(out, tables)
		},
	}
	cmd.Flags().IntVar(&source, "source", 0, "print only this router's table")
	cmd.Flags().IntVar(&reachOf, "reachable", 0, "print the routers reachable from this router instead of routes")
	return cmd
}
