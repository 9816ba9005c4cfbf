package commands

import (
	"context"
	"fmt"
	"slices"
	"text/tabwriter"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/observability"
	"git.home.luguber.info/inful/taxosync/internal/syncer"
)

// SyncCmd implements the 'sync' command.
type SyncCmd struct {
	Only  []string `short:"o" help:"Taxonomies to refresh (default: all)" placeholder:"NAME"`
	Force bool     `short:"f" help:"Refresh disabled taxonomies too"`
}

func (s *SyncCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	results := a.Syncer.Refresh(observability.WithTrigger(ctx, "cli"), s.Only, s.Force)
	return printResults(g, results)
}

// printResults writes one line per taxonomy and returns the first failure
// (in name order) wrapped with the failure count.
func printResults(g *Global, results map[string]syncer.Result) error {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	slices.Sort(names)

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAXONOMY\tRESULT\tITEMS\tERROR")

	var first error
	failed := 0
	for _, name := range names {
		r := results[name]
		if r.OK() {
			fmt.Fprintf(tw, "%s\tok\t%d\t\n", name, r.Count)
			continue
		}
		failed++
		if first == nil {
			first = r.Err
		}
		fmt.Fprintf(tw, "%s\t%s\t-\t%v\n", name, terrors.GetCategory(r.Err), r.Err)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Fprintln(g.Out, "nothing to refresh (all selected taxonomies are disabled)")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d taxonomies failed: %w", failed, len(results), first)
	}
	return nil
}
