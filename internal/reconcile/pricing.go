package reconcile

import (
	"math/rand/v2"
	"strings"

	"github.com/shopspring/decimal"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
)

const (
	curatedBaseMin   = 30
	curatedBaseRange = 30 // bases 30..59
	defaultCurrency  = "USD"
)

var curatedCents = decimal.RequireFromString("0.99")

// PriceRand picks the synthetic base price for curated titles.
// *rand.Rand from math/rand/v2 satisfies it.
type PriceRand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// DefaultRand draws from the process-wide math/rand/v2 source.
var DefaultRand PriceRand = globalRand{}

// SyntheticPrice returns a curated price in [30.99, 59.99].
func SyntheticPrice(rng PriceRand) decimal.Decimal {
	if rng == nil {
		rng = DefaultRand
	}
	base := curatedBaseMin + rng.IntN(curatedBaseRange)
	return decimal.NewFromInt(int64(base)).Add(curatedCents)
}

// ApplyPricingPolicy applies the pricing rules and reports whether local
// changed.
//
// Curated titles with no price get a synthetic price with originalPrice equal
// to it; once priced they are left alone and pricing is ignored. Every other
// title follows the provider: free-to-play reverts to 0/0 USD, and a final
// price that differs from the stored one replaces price, originalPrice,
// currency and the sale fields.
func ApplyPricingPolicy(local *models.CatalogEntry, pricing *provider.PricingRecord, isCurated bool, rng PriceRand) bool {
	if local == nil {
		return false
	}
	if isCurated {
		if local.Price.IsPositive() {
			return false
		}
		price := SyntheticPrice(rng)
		local.Price = price
		local.OriginalPrice = price
		local.OnSale = false
		local.DiscountPercent = 0
		if local.Currency == "" {
			local.Currency = defaultCurrency
		}
		return true
	}
	if pricing == nil {
		return false
	}
	if pricing.IsFree {
		if local.Price.IsZero() && local.OriginalPrice.IsZero() && local.Currency == defaultCurrency && !local.OnSale && local.DiscountPercent == 0 {
			return false
		}
		local.Price = decimal.Zero
		local.OriginalPrice = decimal.Zero
		local.Currency = defaultCurrency
		local.OnSale = false
		local.DiscountPercent = 0
		return true
	}

	final := clampNonNegative(pricing.Final)
	if final.Equal(local.Price) {
		return false
	}
	initial := clampNonNegative(pricing.Initial)
	if initial.LessThan(final) {
		initial = final
	}
	local.Price = final
	local.OriginalPrice = initial
	if currency := strings.ToUpper(strings.TrimSpace(pricing.Currency)); currency != "" {
		local.Currency = currency
	} else if local.Currency == "" {
		local.Currency = defaultCurrency
	}
	local.OnSale = pricing.DiscountPercent > 0 && initial.GreaterThan(final)
	if local.OnSale {
		local.DiscountPercent = pricing.DiscountPercent
	} else {
		local.DiscountPercent = 0
	}
	return true
}

func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
