package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/samber/lo"

	"github.com/maloquacious/telesync/internal/fields"
	"github.com/maloquacious/telesync/internal/reconcile"
)

func names(ns []fields.Name) string {
	if len(ns) == 0 {
		return "-"
	}
	return strings.Join(lo.Map(ns, func(n fields.Name, _ int) string { return string(n) }), ",")
}

func printOutcomes(w io.Writer, rep reconcile.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	verb := "CHANGED"
	if rep.DryRun {
		verb = "WOULD CHANGE"
	}
	fmt.Fprintf(tw, "GROUP\tSTORE\tSTATUS\t%s\tPURGED\tBACKUP\n", verb)
	for _, o := range rep.Outcomes {
		status := string(o.Status)
		if o.Reference {
			status += " (reference)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.Group, o.Path, status, names(o.Changed), o.Purged, lo.Ternary(o.BackupPath == "", "-", o.BackupPath))
	}
	tw.Flush()

	printSummary(w, rep)
}

func printSummary(w io.Writer, rep reconcile.Report) {
	failures := rep.Failures()
	fmt.Fprintf(w, "\n%d store(s), %d field(s) %s, %d key(s) purged, %d failure(s)\n",
		len(rep.Outcomes), rep.Changed(), lo.Ternary(rep.DryRun, "would change", "changed"), rep.Purged(), len(failures))
	for _, o := range failures {
		fmt.Fprintf(w, "  %s: %s: %v\n", o.Path, o.Status, o.Err)
	}
}

func printComparisons(w io.Writer, rep reconcile.Report) {
	for _, c := range rep.Comparisons {
		fmt.Fprintf(w, "%s: %s vs %s\n", c.Group, c.First, c.Second)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, e := range c.Result.Entries {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", e.Name, c.Labels.Describe(e), e.First.String(), e.Second.String())
		}
		tw.Flush()
	}
	if len(rep.Comparisons) == 0 {
		fmt.Fprintln(w, "nothing to compare")
	} else if rep.Consistent() {
		fmt.Fprintln(w, "all stores consistent")
	}
	printSummary(w, rep)
}

func printSnapshots(w io.Writer, rep reconcile.Report) {
	for _, s := range rep.Snapshots {
		fmt.Fprintf(w, "%s: %s (%s)\n", s.Group, s.Path, s.Kind)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, n := range s.Set.Names() {
			v, _ := s.Set.Get(n)
			fmt.Fprintf(tw, "  %s\t%s\n", n.Key(), v.String())
		}
		tw.Flush()
	}
	printSummary(w, rep)
}
