package history

import (
	"context"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/taxosync/internal/logfields"
)

// RemoteProduct is the products API view of one product. Nil fields were
// absent from the response and never overwrite stored values.
type RemoteProduct struct {
	Code           string  `json:"code"`
	ProductName    *string `json:"product_name,omitempty"`
	Brands         *string `json:"brands,omitempty"`
	ImageSmallURL  *string `json:"image_small_url,omitempty"`
	Quantity       *string `json:"quantity,omitempty"`
	NutritionGrade *string `json:"nutrition_grade_fr,omitempty"`
	Ecoscore       *string `json:"ecoscore_grade,omitempty"`
	NovaGroups     *string `json:"nova_groups,omitempty"`
}

// ProductSource fetches current product data by barcode.
type ProductSource interface {
	ProductsByBarcode(ctx context.Context, barcodes []string) ([]RemoteProduct, error)
}

func (r RemoteProduct) mergeInto(p *Product) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.Title, r.ProductName)
	set(&p.Brands, r.Brands)
	set(&p.ImageURL, r.ImageSmallURL)
	set(&p.Quantity, r.Quantity)
	set(&p.NutritionGrade, r.NutritionGrade)
	set(&p.Ecoscore, r.Ecoscore)
	set(&p.NovaGroup, r.NovaGroups)
}

// Refresh updates every stored product from src and returns the refreshed
// history ordered by by. If the fetch fails the stored history is left
// untouched and the error is returned.
func (s *Store) Refresh(ctx context.Context, src ProductSource, by SortType) ([]Product, error) {
	s.mu.RLock()
	current, err := listRows(ctx, s.db)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if len(current) == 0 {
		return current, nil
	}

	barcodes := make([]string, len(current))
	for i, p := range current {
		barcodes[i] = p.Barcode
	}
	remote, err := src.ProductsByBarcode(ctx, barcodes)
	if err != nil {
		return nil, err
	}

	byCode := make(map[string]RemoteProduct, len(remote))
	for _, r := range remote {
		byCode[r.Code] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Rows may have been added, touched or removed while fetching. Merge into
	// what is stored now rather than into the snapshot.
	current, err = listRows(ctx, tx)
	if err != nil {
		return nil, err
	}

	updated := 0
	for i := range current {
		r, ok := byCode[current[i].Barcode]
		if !ok {
			continue
		}
		r.mergeInto(&current[i])
		if err := s.update(ctx, tx, current[i]); err != nil {
			return nil, fmt.Errorf("update %s: %w", current[i].Barcode, err)
		}
		updated++
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("Scan history refreshed", slog.Int("products", len(current)), slog.Int("updated", updated))
	for _, code := range barcodes {
		if _, ok := byCode[code]; !ok {
			slog.Debug("Product not returned by source", logfields.Barcode(code))
		}
	}

	Sort(current, by)
	return current, nil
}
