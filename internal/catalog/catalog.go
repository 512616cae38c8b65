// Package catalog merges listings bundled with the binary and products
// stored in the database into one shopper-facing catalog.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

//go:embed static_products.json
var staticProductsJSON []byte

const staticPrefix = "static-"

// Listing is one catalog entry. Source says where it came from; ID is
// "static-<n>" for bundled listings and the database id otherwise.
type Listing struct {
	Source      models.ListingSource `json:"source"`
	ID          string               `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Price       decimal.Decimal      `json:"price"`
	Category    models.Category      `json:"category"`
	Sizes       []string             `json:"sizes"`
	Colors      []string             `json:"colors"`
	Image       string               `json:"image"`
	Stock       int                  `json:"stock"`
	Featured    bool                 `json:"featured"`
}

// Ref identifies a listing by source and source-local id.
type Ref struct {
	Source models.ListingSource
	Static int
	DBID   int64
}

// ParseRef decodes a listing id.
func ParseRef(id string) (Ref, error) {
	if strings.HasPrefix(id, staticPrefix) {
		n, err := strconv.Atoi(strings.TrimPrefix(id, staticPrefix))
		if err != nil || n <= 0 {
			return Ref{}, fmt.Errorf("invalid static listing id %q", id)
		}
		return Ref{Source: models.SourceStatic, Static: n}, nil
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return Ref{}, fmt.Errorf("invalid listing id %q", id)
	}
	return Ref{Source: models.SourcePersisted, DBID: n}, nil
}

type staticProduct struct {
	ID          int             `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Category    models.Category `json:"category"`
	Sizes       []string        `json:"sizes"`
	Colors      []string        `json:"colors"`
	Image       string          `json:"image"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
}

// Static holds the bundled listings.
type Static struct {
	listings []Listing
	byID     map[int]Listing
}

// LoadStatic decodes the bundled listing file.
func LoadStatic() (*Static, error) {
	return parseStatic(staticProductsJSON)
}

func parseStatic(data []byte) (*Static, error) {
	var raw []staticProduct
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode static catalog: %w", err)
	}

	s := &Static{byID: make(map[int]Listing, len(raw))}
	for _, p := range raw {
		l := Listing{
			Source:      models.SourceStatic,
			ID:          staticPrefix + strconv.Itoa(p.ID),
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Category:    p.Category,
			Sizes:       p.Sizes,
			Colors:      p.Colors,
			Image:       p.Image,
			Stock:       p.Stock,
			Featured:    p.Featured,
		}
		s.listings = append(s.listings, l)
		s.byID[p.ID] = l
	}
	return s, nil
}

func (s *Static) Get(id int) (Listing, bool) {
	l, ok := s.byID[id]
	return l, ok
}

// FromProduct converts a stored product into a listing.
func FromProduct(p models.Product) Listing {
	return Listing{
		Source:      models.SourcePersisted,
		ID:          strconv.FormatInt(p.ID, 10),
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Sizes:       nonNil(p.Sizes),
		Colors:      nonNil(p.Colors),
		Image:       p.Image,
		Stock:       p.Stock,
		Featured:    p.Featured,
	}
}

// Merge returns static listings followed by persisted ones, filtered by
// category when one is given.
func (s *Static) Merge(products []models.Product, category models.Category) []Listing {
	out := make([]Listing, 0, len(s.listings)+len(products))
	for _, l := range s.listings {
		if category == "" || l.Category == category {
			out = append(out, l)
		}
	}
	for _, p := range products {
		if category == "" || p.Category == category {
			out = append(out, FromProduct(p))
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
