package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentPartial  EnrichmentStatus = "partial"
	EnrichmentComplete EnrichmentStatus = "complete"
)

// CatalogEntry is the canonical local record for one game. NormalizedKey is
// unique across the store; Platforms and Genres are never nil once saved.
//
// LegacyPlatform and LegacyGenre only exist to read documents written before
// the array fields were introduced. NormalizeSchema folds them into the arrays
// and clears them.
type CatalogEntry struct {
	ID                string                      `json:"id" gorm:"primaryKey;type:text;comment:stable internal id"`
	Title             string                      `json:"title" gorm:"type:text;not null;comment:display title"`
	NormalizedKey     string                      `json:"normalizedKey" gorm:"type:text;not null;uniqueIndex;comment:dedupe key"`
	ExternalID        ProviderID                  `json:"externalId,omitempty" gorm:"type:text;index;comment:metadata provider id"`
	PricingProviderID ProviderID                  `json:"pricingProviderId,omitempty" gorm:"type:text;index;comment:pricing provider id"`
	Platforms         datatypes.JSONSlice[string] `json:"platforms" gorm:"not null;comment:platform names"`
	Genres            datatypes.JSONSlice[string] `json:"genres" gorm:"not null;comment:genre names"`
	LegacyPlatform    *string                     `json:"platform,omitempty" gorm:"column:platform;type:text;comment:legacy singular platform"`
	LegacyGenre       *string                     `json:"genre,omitempty" gorm:"column:genre;type:text;comment:legacy singular genre"`
	Developer         string                      `json:"developer,omitempty" gorm:"type:text;comment:developer"`
	Publisher         string                      `json:"publisher,omitempty" gorm:"type:text;comment:publisher"`
	Description       string                      `json:"description,omitempty" gorm:"type:text;comment:description"`
	ImageURL          string                      `json:"imageUrl,omitempty" gorm:"type:text;comment:cover image"`
	Rating            float64                     `json:"rating" gorm:"not null;default:0;comment:provider rating"`
	Price             decimal.Decimal             `json:"price" gorm:"type:numeric(12,2);not null;default:0;comment:current price"`
	OriginalPrice     decimal.Decimal             `json:"originalPrice" gorm:"type:numeric(12,2);not null;default:0;comment:price before discount"`
	Currency          string                      `json:"currency" gorm:"type:text;not null;default:'USD';comment:ISO currency"`
	OnSale            bool                        `json:"onSale" gorm:"not null;default:false;comment:discount active"`
	DiscountPercent   int                         `json:"discountPercent" gorm:"not null;default:0;comment:discount percent"`
	ReleaseDate       *time.Time                  `json:"releaseDate,omitempty" gorm:"comment:release date"`
	IsExternal        bool                        `json:"isExternal" gorm:"not null;default:false;index;comment:discovered by eager search"`
	EnrichmentStatus  EnrichmentStatus            `json:"enrichmentStatus" gorm:"type:text;not null;default:'pending';index;comment:pending|partial|complete"`
	LastSyncedAt      *time.Time                  `json:"lastSyncedAt,omitempty" gorm:"comment:last successful reconciliation"`
	CreatedAt         time.Time                   `json:"createdAt"`
	UpdatedAt         time.Time                   `json:"updatedAt"`
}

func (CatalogEntry) TableName() string {
	return "catalog_entries"
}

func (e *CatalogEntry) BeforeSave(tx *gorm.DB) error {
	e.EnsureDefaults()
	return nil
}

// EnsureDefaults fills the fields every persisted entry must carry. It does not
// migrate legacy fields; see reconcile.NormalizeSchema for that.
func (e *CatalogEntry) EnsureDefaults() {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.NormalizedKey == "" {
		e.NormalizedKey = NormalizedKey(e.Title)
	}
	if e.Platforms == nil {
		e.Platforms = datatypes.JSONSlice[string]{}
	}
	if e.Genres == nil {
		e.Genres = datatypes.JSONSlice[string]{}
	}
	if e.Currency == "" {
		e.Currency = "USD"
	}
	if e.EnrichmentStatus == "" {
		e.EnrichmentStatus = EnrichmentPending
	}
	if e.Price.IsNegative() {
		e.Price = decimal.Zero
	}
	if e.OriginalPrice.IsNegative() {
		e.OriginalPrice = decimal.Zero
	}
	if e.OnSale && !e.OriginalPrice.GreaterThan(e.Price) {
		e.OnSale = false
		e.DiscountPercent = 0
	}
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (e CatalogEntry) Clone() CatalogEntry {
	out := e
	if e.Platforms != nil {
		out.Platforms = append(datatypes.JSONSlice[string]{}, e.Platforms...)
	}
	if e.Genres != nil {
		out.Genres = append(datatypes.JSONSlice[string]{}, e.Genres...)
	}
	if e.LegacyPlatform != nil {
		v := *e.LegacyPlatform
		out.LegacyPlatform = &v
	}
	if e.LegacyGenre != nil {
		v := *e.LegacyGenre
		out.LegacyGenre = &v
	}
	if e.ReleaseDate != nil {
		v := *e.ReleaseDate
		out.ReleaseDate = &v
	}
	if e.LastSyncedAt != nil {
		v := *e.LastSyncedAt
		out.LastSyncedAt = &v
	}
	return out
}
