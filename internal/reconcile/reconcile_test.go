package reconcile

import (
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"gamecatalog/internal/client/provider"
	"gamecatalog/internal/models"
)

type fixedRand int

func (f fixedRand) IntN(n int) int {
	if int(f) >= n {
		return n - 1
	}
	return int(f)
}

func strPtr(s string) *string { return &s }

func TestNormalizeSchemaLegacyFields(t *testing.T) {
	cases := []struct {
		name          string
		entry         models.CatalogEntry
		wantPlatforms []string
		wantGenres    []string
	}{
		{
			name:          "legacy singular fields",
			entry:         models.CatalogEntry{Title: "Doom", LegacyPlatform: strPtr("PC"), LegacyGenre: strPtr("Shooter")},
			wantPlatforms: []string{"PC"},
			wantGenres:    []string{"Shooter"},
		},
		{
			name:          "no source data",
			entry:         models.CatalogEntry{Title: "Doom"},
			wantPlatforms: []string{},
			wantGenres:    []string{},
		},
		{
			name: "arrays win over legacy",
			entry: models.CatalogEntry{
				Title:          "Doom",
				Platforms:      datatypes.JSONSlice[string]{"PC", "Xbox"},
				LegacyPlatform: strPtr("PS4"),
				LegacyGenre:    strPtr("  "),
			},
			wantPlatforms: []string{"PC", "Xbox"},
			wantGenres:    []string{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			entry := tc.entry
			if !NormalizeSchema(&entry) {
				t.Fatalf("expected change")
			}
			if entry.Platforms == nil || entry.Genres == nil {
				t.Fatalf("arrays must be non-nil: %#v %#v", entry.Platforms, entry.Genres)
			}
			if len(entry.Platforms) != len(tc.wantPlatforms) || len(entry.Genres) != len(tc.wantGenres) {
				t.Fatalf("got platforms=%v genres=%v", entry.Platforms, entry.Genres)
			}
			for i := range tc.wantPlatforms {
				if entry.Platforms[i] != tc.wantPlatforms[i] {
					t.Fatalf("platforms=%v want %v", entry.Platforms, tc.wantPlatforms)
				}
			}
			if entry.LegacyPlatform != nil || entry.LegacyGenre != nil {
				t.Fatalf("legacy fields should be cleared")
			}
			if entry.NormalizedKey != "doom" {
				t.Fatalf("key=%q", entry.NormalizedKey)
			}
			if NormalizeSchema(&entry) {
				t.Fatalf("second normalize should be a no-op")
			}
		})
	}
}

func TestMergeMetadataNeverDowngrades(t *testing.T) {
	local := models.CatalogEntry{
		Title:     "Celeste",
		Platforms: datatypes.JSONSlice[string]{"PC"},
		Genres:    datatypes.JSONSlice[string]{"Platformer"},
		Developer: "Maddy Makes Games",
	}
	if MergeMetadata(&local, &provider.ExternalRecord{Name: "Celeste"}) {
		t.Fatalf("empty provider record should not change entry")
	}
	if len(local.Platforms) != 1 || len(local.Genres) != 1 {
		t.Fatalf("local data downgraded: %+v", local)
	}

	changed := MergeMetadata(&local, &provider.ExternalRecord{
		ExternalID: "9",
		Platforms:  []string{"PC", "Switch", "pc"},
		Genres:     []string{"Platformer", "Indie", "Action", "Adventure"},
		Developer:  "Someone Else",
		Rating:     4.5,
	})
	if !changed {
		t.Fatalf("expected change")
	}
	if got := []string(local.Platforms); len(got) != 2 || got[1] != "Switch" {
		t.Fatalf("platforms=%v", got)
	}
	if len(local.Genres) != provider.MaxGenres {
		t.Fatalf("genres=%v", local.Genres)
	}
	if local.Developer != "Maddy Makes Games" {
		t.Fatalf("developer overwritten: %q", local.Developer)
	}
	if local.ExternalID != "9" || local.Rating != 4.5 {
		t.Fatalf("unexpected merge result: %+v", local)
	}
}

func TestApplyPricingPolicyFreeToPlay(t *testing.T) {
	// Generic Shooter was 19.99 and the provider now reports it free.
	local := models.CatalogEntry{
		Title:             "Generic Shooter",
		Price:             decimal.RequireFromString("19.99"),
		OriginalPrice:     decimal.RequireFromString("29.99"),
		Currency:          "EUR",
		OnSale:            true,
		DiscountPercent:   33,
		PricingProviderID: "123",
	}
	if !ApplyPricingPolicy(&local, &provider.PricingRecord{IsFree: true}, false, nil) {
		t.Fatalf("expected change")
	}
	if !local.Price.IsZero() || !local.OriginalPrice.IsZero() || local.Currency != "USD" || local.OnSale || local.DiscountPercent != 0 {
		t.Fatalf("unexpected free-to-play result: %+v", local)
	}
	if ApplyPricingPolicy(&local, &provider.PricingRecord{IsFree: true}, false, nil) {
		t.Fatalf("second application should be a no-op")
	}
}

func TestApplyPricingPolicyCuratedBound(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	low := decimal.RequireFromString("30.99")
	high := decimal.RequireFromString("60.99")
	for i := 0; i < 500; i++ {
		local := models.CatalogEntry{Title: "Hollow Knight"}
		if !ApplyPricingPolicy(&local, nil, true, rng) {
			t.Fatalf("expected curated price")
		}
		if local.Price.LessThan(low) || local.Price.GreaterThan(high) {
			t.Fatalf("price %s out of bounds", local.Price)
		}
		if !local.OriginalPrice.Equal(local.Price) || local.OnSale {
			t.Fatalf("originalPrice=%s price=%s onSale=%v", local.OriginalPrice, local.Price, local.OnSale)
		}
	}

	for _, pick := range []int{0, 29} {
		got := SyntheticPrice(fixedRand(pick))
		want := decimal.NewFromInt(int64(30 + pick)).Add(decimal.RequireFromString("0.99"))
		if !got.Equal(want) {
			t.Fatalf("pick %d: got %s want %s", pick, got, want)
		}
	}
}

func TestApplyPricingPolicyCuratedIgnoresProvider(t *testing.T) {
	local := models.CatalogEntry{Title: "Hades", Price: decimal.RequireFromString("44.99"), OriginalPrice: decimal.RequireFromString("44.99")}
	if ApplyPricingPolicy(&local, &provider.PricingRecord{IsFree: true}, true, fixedRand(0)) {
		t.Fatalf("priced curated title must not change")
	}
	if !local.Price.Equal(decimal.RequireFromString("44.99")) {
		t.Fatalf("price=%s", local.Price)
	}
}

func TestApplyPricingPolicySale(t *testing.T) {
	local := models.CatalogEntry{Title: "Some Game", Price: decimal.RequireFromString("29.99"), OriginalPrice: decimal.RequireFromString("29.99"), Currency: "USD"}
	pricing := &provider.PricingRecord{
		Final:           decimal.RequireFromString("14.99"),
		Initial:         decimal.RequireFromString("29.99"),
		Currency:        "usd",
		DiscountPercent: 50,
	}
	if !ApplyPricingPolicy(&local, pricing, false, nil) {
		t.Fatalf("expected change")
	}
	if !local.OnSale || local.DiscountPercent != 50 || !local.Price.Equal(pricing.Final) || local.Currency != "USD" {
		t.Fatalf("unexpected sale result: %+v", local)
	}
	if ApplyPricingPolicy(&local, pricing, false, nil) {
		t.Fatalf("same final price should be a no-op")
	}
	if ApplyPricingPolicy(&local, nil, false, nil) {
		t.Fatalf("missing pricing should leave entry unchanged")
	}
}

func TestDedupeByNormalizedKey(t *testing.T) {
	got := DedupeByNormalizedKey([]provider.ExternalRecord{
		{ExternalID: "1", Name: "Doom (2016)"},
		{ExternalID: "2", Name: "DOOM"},
		{ExternalID: "3", Name: "  "},
		{ExternalID: "4", Name: "Doom Eternal"},
	})
	if len(got) != 2 || got[0].ExternalID != "1" || got[1].ExternalID != "4" {
		t.Fatalf("unexpected dedupe result: %+v", got)
	}
}

func TestNewEntryFromExternal(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := NewEntryFromExternal(provider.ExternalRecord{
		ExternalID: "42",
		Name:       " Cyberpunk 2077 ",
		Genres:     []string{"RPG", "Action", "Shooter", "Open World"},
	}, now)
	if !entry.IsExternal || entry.EnrichmentStatus != models.EnrichmentPending {
		t.Fatalf("unexpected lifecycle fields: %+v", entry)
	}
	if entry.Title != "Cyberpunk 2077" || entry.NormalizedKey != "cyberpunk 2077" || entry.ID == "" {
		t.Fatalf("unexpected identity: %+v", entry)
	}
	if entry.Platforms == nil || len(entry.Genres) != 3 {
		t.Fatalf("platforms=%v genres=%v", entry.Platforms, entry.Genres)
	}
}

func TestSortByRelevance(t *testing.T) {
	entries := []models.CatalogEntry{
		{Title: "Ghostrunner Cyber Edition", NormalizedKey: "ghostrunner cyber edition", Rating: 4.9},
		{Title: "Cyber Shadow", NormalizedKey: "cyber shadow", Rating: 3.0},
		{Title: "Cyber", NormalizedKey: "cyber", Rating: 1.0},
		{Title: "Cyberpunk 2077", NormalizedKey: "cyberpunk 2077", Rating: 4.2},
		{Title: "Unrelated", NormalizedKey: "unrelated", Rating: 5},
	}
	SortByRelevance("cyber", entries)
	want := []string{"Cyber", "Cyberpunk 2077", "Cyber Shadow", "Ghostrunner Cyber Edition", "Unrelated"}
	for i, title := range want {
		if entries[i].Title != title {
			t.Fatalf("position %d: got %q want %q", i, entries[i].Title, title)
		}
	}
}

func TestEngineScenarios(t *testing.T) {
	engine := NewEngine(NewCuratedList([]string{"Hollow Knight"}))
	engine.Rand = fixedRand(5)
	engine.Now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }

	t.Run("free to play reversion", func(t *testing.T) {
		entry := models.CatalogEntry{Title: "Generic Shooter", Price: decimal.RequireFromString("19.99"), PricingProviderID: "123"}
		if !engine.NeedsEnrichment(entry, ScopeAll) || !engine.NeedsPricingLookup(entry) {
			t.Fatalf("entry should be selected")
		}
		out := engine.Reconcile(&entry, nil, &provider.PricingRecord{IsFree: true}, ScopePricing, false)
		if !out.Changed || out.Status != models.EnrichmentComplete {
			t.Fatalf("outcome=%+v", out)
		}
		if !entry.Price.IsZero() || !entry.OriginalPrice.IsZero() || entry.OnSale {
			t.Fatalf("entry=%+v", entry)
		}
		if entry.LastSyncedAt == nil {
			t.Fatalf("lastSyncedAt not set")
		}
	})

	t.Run("curated synthetic price", func(t *testing.T) {
		entry := models.CatalogEntry{Title: "Hollow Knight"}
		if engine.NeedsPricingLookup(entry) {
			t.Fatalf("curated title must not hit the pricing provider")
		}
		engine.Reconcile(&entry, nil, nil, ScopePricing, false)
		if !entry.Price.Equal(decimal.RequireFromString("35.99")) || !entry.OriginalPrice.Equal(entry.Price) {
			t.Fatalf("price=%s original=%s", entry.Price, entry.OriginalPrice)
		}
	})

	t.Run("reconcile is idempotent", func(t *testing.T) {
		entry := models.CatalogEntry{Title: "Celeste", PricingProviderID: "504230"}
		meta := &provider.ExternalRecord{Platforms: []string{"PC"}, Genres: []string{"Platformer"}}
		pricing := &provider.PricingRecord{Final: decimal.RequireFromString("19.99"), Initial: decimal.RequireFromString("19.99"), Currency: "USD"}
		if !engine.Reconcile(&entry, meta, pricing, ScopeAll, false).Changed {
			t.Fatalf("first pass should change")
		}
		if engine.NeedsEnrichment(entry, ScopeAll) {
			t.Fatalf("complete entry should not be selected again")
		}
		if engine.Reconcile(&entry, meta, pricing, ScopeAll, false).Changed {
			t.Fatalf("second pass should be a no-op")
		}
	})

	t.Run("partial keeps metadata", func(t *testing.T) {
		entry := models.CatalogEntry{Title: "Stray", PricingProviderID: "1332010"}
		out := engine.Reconcile(&entry, &provider.ExternalRecord{Genres: []string{"Adventure"}}, nil, ScopeAll, true)
		if out.Status != models.EnrichmentPartial || len(entry.Genres) != 1 {
			t.Fatalf("outcome=%+v entry=%+v", out, entry)
		}
		if !engine.NeedsEnrichment(entry, ScopePricing) {
			t.Fatalf("partial entry should be retried")
		}
	})
}

func TestLoadCuratedFile(t *testing.T) {
	dir := t.TempDir()
	keyed := filepath.Join(dir, "keyed.yaml")
	if err := os.WriteFile(keyed, []byte("titles:\n  - Hollow Knight\n  - Celeste\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bare := filepath.Join(dir, "bare.yaml")
	if err := os.WriteFile(bare, []byte("- Hades\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	titles, err := LoadCuratedFile(keyed)
	if err != nil || len(titles) != 2 {
		t.Fatalf("keyed: titles=%v err=%v", titles, err)
	}
	titles, err = LoadCuratedFile(bare)
	if err != nil || len(titles) != 1 || titles[0] != "Hades" {
		t.Fatalf("bare: titles=%v err=%v", titles, err)
	}
	titles, err = LoadCuratedFile(filepath.Join(dir, "missing.yaml"))
	if err != nil || titles != nil {
		t.Fatalf("missing: titles=%v err=%v", titles, err)
	}

	list := NewCuratedList([]string{"Hollow Knight"}, []string{"hollow knight (2017)", "Celeste"})
	if list.Len() != 2 || !list.Contains("HOLLOW KNIGHT") || list.Contains("Hollow Knight Silksong") {
		t.Fatalf("unexpected curated list: %v", list.Titles())
	}
}

func TestNormalizedKey(t *testing.T) {
	cases := map[string]string{
		"  Doom (2016) ":            "doom",
		"The Witcher 3 [GOTY] (PC)": "the witcher 3",
		"Half-Life   2":             "half-life 2",
		"(Untitled)":                "(untitled)",
		"":                          "",
	}
	for in, want := range cases {
		if got := models.NormalizedKey(in); got != want {
			t.Fatalf("NormalizedKey(%q)=%q want %q", in, got, want)
		}
	}
}
