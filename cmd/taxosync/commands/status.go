package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"
)

// StatusCmd implements the 'status' command.
type StatusCmd struct {
	JSON bool `help:"Print JSON instead of a table"`
}

func (s *StatusCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	statuses, err := a.Syncer.Status(ctx)
	if err != nil {
		return err
	}

	if s.JSON {
		enc := json.NewEncoder(g.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(statuses)
	}

	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TAXONOMY\tENABLED\tITEMS\tLAST DOWNLOAD")
	for _, st := range statuses {
		last := "never"
		if st.LastDownloadMS > 0 {
			last = time.UnixMilli(st.LastDownloadMS).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", st.Name, st.Enabled, st.Items, last)
	}
	return tw.Flush()
}
