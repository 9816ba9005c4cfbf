package taxonomy

import (
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
)

// Taxonomy names. They double as the suffix of every derived preference key.
const (
	Labels             = "labels"
	Countries          = "countries"
	Categories         = "categories"
	Additives          = "additives"
	Ingredients        = "ingredients"
	Allergens          = "allergens"
	AnalysisTags       = "analysis_tags"
	AnalysisTagConfigs = "analysis_tag_configs"
	Tags               = "tags"
	InvalidBarcodes    = "invalid_barcodes"
	ProductStates      = "product_states"
	Stores             = "stores"
	Brands             = "brands"
)

const (
	staleKeyPrefix  = "taxonomy:lastDownload:"
	enableKeyPrefix = "taxonomy:enabled:"
)

// StaleKey returns the preference key holding the last successful download time.
func StaleKey(name string) string { return staleKeyPrefix + name }

// EnableKey returns the preference key holding the download enablement flag.
func EnableKey(name string) string { return enableKeyPrefix + name }

type entry struct {
	name   string
	path   string
	decode func(io.Reader) ([]Item, error)
}

// entries is the exhaustive, ordered catalog.
var entries = []entry{
	{Labels, "labels.json", decodeArray[Label]},
	{Countries, "countries.json", decodeArray[Country]},
	{Categories, "categories.json", decodeArray[Category]},
	{Additives, "additives.json", decodeArray[Additive]},
	{Ingredients, "ingredients.json", decodeArray[Ingredient]},
	{Allergens, "allergens.json", decodeArray[Allergen]},
	{AnalysisTags, "ingredients_analysis.json", decodeArray[AnalysisTag]},
	{AnalysisTagConfigs, "ingredients_analysis_config.json", decodeArray[AnalysisTagConfig]},
	{Tags, "tags.json", decodeArray[Tag]},
	{InvalidBarcodes, "invalid_barcodes.json", decodeArray[InvalidBarcode]},
	{ProductStates, "states.json", decodeArray[ProductState]},
	{Stores, "stores.json", decodeArray[Store]},
	{Brands, "brands.json", decodeArray[Brand]},
}

// Descriptor identifies one remote dataset. It is immutable once built.
type Descriptor struct {
	Name          string
	RemoteLocator *url.URL
	StaleKeyID    string
	EnableKeyID   string

	decode func(io.Reader) ([]Item, error)
}

// Decode parses a complete JSON array payload into the descriptor's item type.
// Either every item is returned or an error is; partial batches never escape.
func (d Descriptor) Decode(r io.Reader) ([]Item, error) {
	if d.decode == nil {
		return nil, fmt.Errorf("descriptor %q has no decoder", d.Name)
	}
	return d.decode(r)
}

// Locator returns the remote URL as a string.
func (d Descriptor) Locator() string {
	if d.RemoteLocator == nil {
		return ""
	}
	return d.RemoteLocator.String()
}

// Catalog is the resolved set of descriptors for one remote base URL.
type Catalog struct {
	descriptors []Descriptor
	byName      map[string]int
}

// NewCatalog resolves every dataset path against baseURL.
func NewCatalog(baseURL string) (*Catalog, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", base.Scheme)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Catalog{
		descriptors: make([]Descriptor, 0, len(entries)),
		byName:      make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		ref, err := url.Parse(e.path)
		if err != nil {
			return nil, fmt.Errorf("parse path for %s: %w", e.name, err)
		}
		c.descriptors = append(c.descriptors, Descriptor{
			Name:          e.name,
			RemoteLocator: base.ResolveReference(ref),
			StaleKeyID:    StaleKey(e.name),
			EnableKeyID:   EnableKey(e.name),
			decode:        e.decode,
		})
		c.byName[e.name] = i
	}
	return c, nil
}

// All returns every descriptor in catalog order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.descriptors))
	copy(out, c.descriptors)
	return out
}

// Lookup resolves a descriptor by name, case-insensitively. Hyphens are
// accepted in place of underscores ("analysis-tags").
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	i, ok := c.byName[CanonicalName(name)]
	if !ok {
		return Descriptor{}, false
	}
	return c.descriptors[i], true
}

// Names returns every taxonomy name in catalog order.
func Names() []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// Known reports whether name (in any case) is part of the catalog.
func Known(name string) bool {
	canonical := CanonicalName(name)
	for _, e := range entries {
		if e.name == canonical {
			return true
		}
	}
	return false
}

// CanonicalName folds case and separators so user input matches catalog names.
// A Caser is stateful, so one is built per call.
func CanonicalName(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	return strings.ReplaceAll(folded, "-", "_")
}
