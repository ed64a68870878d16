package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/signalsfoundry/linkstate-simulator/core"
	"github.com/signalsfoundry/linkstate-simulator/model"
)

// writeRoutingTables prints one block per router in ascending id order,
// each listing destinations in ascending order.
func writeRoutingTables(w io.Writer, tables map[model.NodeID]model.RoutingTable) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, id := range slices.Sorted(maps.Keys(tables)) {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "Router %d\n", id)
		fmt.Fprintln(tw, "  DEST\tNEXT HOP\tCOST\tPATH")
		table := tables[id]
		for _, dst := range slices.Sorted(maps.Keys(table)) {
			r := table[dst]
			fmt.Fprintf(tw, "  %d\t%d\t%g\t%s\n", dst, r.NextHop, r.Cost, formatPath(r.Path))
		}
	}
	return tw.Flush()
}

func writeReachable(w io.Writer, start model.NodeID, ids []model.NodeID) error {
	_, err := fmt.Fprintf(w, "Reachable from %d: %s\n", start, joinIDs(ids, ", "))
	return err
}

func writeStats(w io.Writer, st core.Stats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Ticks\t%d\n", st.Ticks)
	fmt.Fprintf(tw, "Hello sent/delivered\t%d/%d\n", st.HelloSent, st.HelloDelivered)
	fmt.Fprintf(tw, "LSA sent/delivered\t%d/%d\n", st.LSASent, st.LSADelivered)
	fmt.Fprintf(tw, "LSA accepted/duplicate/dropped\t%d/%d/%d\n", st.LSAAccepted, st.LSADuplicates, st.LSADropped)
	return tw.Flush()
}

func formatPath(path []model.NodeID) string {
	return joinIDs(path, " -> ")
}

func joinIDs(ids []model.NodeID, sep string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, sep)
}
