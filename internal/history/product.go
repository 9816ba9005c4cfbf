// Package history keeps the list of scanned products and refreshes it from
// the products API.
package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

const (
	noTitle = "No title"
	noBrand = "No brand"
)

// Product is one entry of the scan history.
type Product struct {
	Barcode        string    `json:"barcode"`
	Title          string    `json:"title,omitempty"`
	Brands         string    `json:"brands,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	Quantity       string    `json:"quantity,omitempty"`
	NutritionGrade string    `json:"nutrition_grade,omitempty"`
	Ecoscore       string    `json:"ecoscore,omitempty"`
	NovaGroup      string    `json:"nova_group,omitempty"`
	LastSeen       time.Time `json:"last_seen"`
}

// DisplayTitle returns the title or a placeholder.
func (p Product) DisplayTitle() string {
	if p.Title == "" {
		return noTitle
	}
	return p.Title
}

// DisplayBrands returns the brands or a placeholder.
func (p Product) DisplayBrands() string {
	if p.Brands == "" {
		return noBrand
	}
	return p.Brands
}

// SortType selects the ordering of List.
type SortType string

const (
	SortTitle   SortType = "title"
	SortBrand   SortType = "brand"
	SortBarcode SortType = "barcode"
	SortGrade   SortType = "grade"
	SortTime    SortType = "time"
	SortNone    SortType = "none"
)

// ParseSortType accepts any casing; empty selects SortTime.
func ParseSortType(raw string) (SortType, error) {
	st := SortType(strings.ToLower(strings.TrimSpace(raw)))
	switch st {
	case "":
		return SortTime, nil
	case SortTitle, SortBrand, SortBarcode, SortGrade, SortTime, SortNone:
		return st, nil
	}
	return "", fmt.Errorf("invalid sort type: %q", raw)
}

// Sort orders products in place. The sort is stable so equal keys keep
// insertion order; SortNone leaves the slice untouched.
func Sort(products []Product, by SortType) {
	switch by {
	case SortTitle:
		fold := cases.Fold()
		sort.SliceStable(products, func(i, j int) bool {
			return fold.String(products[i].DisplayTitle()) < fold.String(products[j].DisplayTitle())
		})
	case SortBrand:
		fold := cases.Fold()
		sort.SliceStable(products, func(i, j int) bool {
			return fold.String(products[i].DisplayBrands()) < fold.String(products[j].DisplayBrands())
		})
	case SortBarcode:
		sort.SliceStable(products, func(i, j int) bool { return products[i].Barcode < products[j].Barcode })
	case SortGrade:
		sort.SliceStable(products, func(i, j int) bool { return products[i].NutritionGrade < products[j].NutritionGrade })
	case SortTime:
		sort.SliceStable(products, func(i, j int) bool { return products[i].LastSeen.After(products[j].LastSeen) })
	}
}
