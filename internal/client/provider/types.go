package provider

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxGenres is how many provider genres are kept per record.
const MaxGenres = 3

// ExternalRecord is the metadata provider's view of a game.
type ExternalRecord struct {
	ExternalID        string
	Name              string
	Slug              string
	Platforms         []string
	Genres            []string
	Developer         string
	Publisher         string
	Released          *time.Time
	Rating            float64
	ImageURL          string
	Description       string
	PricingProviderID string
	Pricing           *PricingRecord
}

// PricingRecord is the pricing provider's view of a game, in major units.
type PricingRecord struct {
	Final           decimal.Decimal
	Initial         decimal.Decimal
	Currency        string
	DiscountPercent int
	IsFree          bool
}

// SearchFilter narrows a free-text provider search.
type SearchFilter struct {
	Genre    string
	Platform string
	Limit    int
}

// DiscoverParams is the tag/platform listing used by admin imports.
type DiscoverParams struct {
	Tags      string
	Genres    string
	Platforms string
	PageSize  int
}
