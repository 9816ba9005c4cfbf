package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Item is a single decoded taxonomy record. Key is the stable identity used
// for upsert-by-key in the downstream store.
type Item interface {
	Key() string
}

// Entry is the shape shared by most taxonomies: a language-prefixed tag
// ("en:organic") with localized names and hierarchy links.
type Entry struct {
	Tag      string            `json:"tag"`
	Names    map[string]string `json:"names,omitempty"`
	Parents  []string          `json:"parents,omitempty"`
	Children []string          `json:"children,omitempty"`
	Wikidata string            `json:"wikidata,omitempty"`
}

func (e Entry) Key() string { return e.Tag }

// Name returns the name for lang, falling back to English and then the tag.
func (e Entry) Name(lang string) string {
	if n, ok := e.Names[lang]; ok && n != "" {
		return n
	}
	if n, ok := e.Names["en"]; ok && n != "" {
		return n
	}
	return e.Tag
}

type Label struct{ Entry }

type Country struct {
	Entry
	CountryCode2 string `json:"country_code_2,omitempty"`
	CountryCode3 string `json:"country_code_3,omitempty"`
}

type Category struct{ Entry }

type Additive struct {
	Entry
	OverexposureRisk string `json:"efsa_evaluation_overexposure_risk,omitempty"`
	ExposureEval     string `json:"efsa_evaluation_exposure,omitempty"`
}

type Ingredient struct {
	Entry
	Vegan       string `json:"vegan,omitempty"`
	Vegetarian  string `json:"vegetarian,omitempty"`
	FromPalmOil string `json:"from_palm_oil,omitempty"`
}

type Allergen struct{ Entry }

type AnalysisTag struct {
	Entry
	ShowIngredients bool `json:"show_ingredients,omitempty"`
}

// AnalysisTagConfig describes how an analysis tag is rendered.
type AnalysisTagConfig struct {
	AnalysisTag string            `json:"analysis_tag"`
	Type        string            `json:"type"`
	IconURL     string            `json:"icon_url,omitempty"`
	Color       string            `json:"color,omitempty"`
	Names       map[string]string `json:"names,omitempty"`
}

func (c AnalysisTagConfig) Key() string { return c.AnalysisTag }

type Tag struct{ Entry }

// InvalidBarcode is a barcode known to be wrong; scanning it should be rejected.
type InvalidBarcode struct {
	Barcode string `json:"barcode"`
}

func (b InvalidBarcode) Key() string { return b.Barcode }

type ProductState struct{ Entry }

type Store struct{ Entry }

type Brand struct{ Entry }

// decodeArray decodes a single JSON array of T. Every element must carry a
// key, and nothing but whitespace may follow the array.
func decodeArray[T Item](r io.Reader) ([]Item, error) {
	dec := json.NewDecoder(r)
	var raw []T
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode json array: %w", err)
	}
	if raw == nil {
		return nil, errors.New("decode json array: payload is null")
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, errors.New("decode json array: unexpected data after array")
		}
		return nil, fmt.Errorf("decode json array: trailing data: %w", err)
	}
	out := make([]Item, len(raw))
	for i := range raw {
		if raw[i].Key() == "" {
			return nil, fmt.Errorf("item %d has an empty key", i)
		}
		out[i] = raw[i]
	}
	return out, nil
}
