package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	terrors "git.home.luguber.info/inful/taxosync/internal/errors"
	"git.home.luguber.info/inful/taxosync/internal/history"
)

// HistoryCmd groups the scan history subcommands.
type HistoryCmd struct {
	List    HistoryListCmd    `cmd:"" default:"withargs" help:"List scanned products"`
	Add     HistoryAddCmd     `cmd:"" help:"Record a scanned product"`
	Remove  HistoryRemoveCmd  `cmd:"" help:"Remove one product"`
	Clear   HistoryClearCmd   `cmd:"" help:"Remove every product"`
	Refresh HistoryRefreshCmd `cmd:"" help:"Fetch current product details for every entry"`
}

// HistoryListCmd implements 'history list'.
type HistoryListCmd struct {
	Sort string `short:"s" help:"Sort by title, brand, barcode, grade, time or none" default:"time"`
}

func (h *HistoryListCmd) Run(g *Global, root *CLI) error {
	by, err := parseSort(h.Sort)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	products, err := a.History.List(ctx, by)
	if err != nil {
		return terrors.StorageError("list history", err)
	}
	return printProducts(g, products)
}

// HistoryAddCmd implements 'history add'.
type HistoryAddCmd struct {
	Barcode string `arg:"" help:"Product barcode"`
	Title   string `help:"Product name"`
	Brands  string `help:"Comma separated brands"`
}

func (h *HistoryAddCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.History.Add(ctx, history.Product{Barcode: h.Barcode, Title: h.Title, Brands: h.Brands}); err != nil {
		return terrors.StorageError("add history entry", err)
	}
	fmt.Fprintf(g.Out, "recorded %s\n", h.Barcode)
	return nil
}

// HistoryRemoveCmd implements 'history remove'.
type HistoryRemoveCmd struct {
	Barcode string `arg:"" help:"Product barcode"`
}

func (h *HistoryRemoveCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.History.Remove(ctx, h.Barcode); err != nil {
		return terrors.StorageError("remove history entry", err)
	}
	fmt.Fprintf(g.Out, "removed %s\n", h.Barcode)
	return nil
}

// HistoryClearCmd implements 'history clear'.
type HistoryClearCmd struct{}

func (h *HistoryClearCmd) Run(g *Global, root *CLI) error {
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	if err := a.History.Clear(ctx); err != nil {
		return terrors.StorageError("clear history", err)
	}
	fmt.Fprintln(g.Out, "history cleared")
	return nil
}

// HistoryRefreshCmd implements 'history refresh'.
type HistoryRefreshCmd struct {
	Sort string `short:"s" help:"Sort by title, brand, barcode, grade, time or none" default:"time"`
}

func (h *HistoryRefreshCmd) Run(g *Global, root *CLI) error {
	by, err := parseSort(h.Sort)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := root.openApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	products, err := a.History.Refresh(ctx, a.Products, by)
	if err != nil {
		return err
	}
	return printProducts(g, products)
}

func parseSort(raw string) (history.SortType, error) {
	by, err := history.ParseSortType(raw)
	if err != nil {
		return "", terrors.ValidationFailed("sort", err.Error())
	}
	return by, nil
}

func printProducts(g *Global, products []history.Product) error {
	if len(products) == 0 {
		fmt.Fprintln(g.Out, "history is empty")
		return nil
	}
	tw := tabwriter.NewWriter(g.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BARCODE\tTITLE\tBRANDS\tGRADE\tLAST SEEN")
	for _, p := range products {
		grade := p.NutritionGrade
		if grade == "" {
			grade = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			p.Barcode, p.DisplayTitle(), p.DisplayBrands(), grade, p.LastSeen.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
