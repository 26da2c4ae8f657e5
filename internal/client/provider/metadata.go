package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MetadataClient talks to the RAWG-style metadata provider.
type MetadataClient struct {
	host     string
	apiKey   string
	pageSize int
	t        *transport
}

func NewMetadataClient(host, apiKey string, pageSize int, opts Options) *MetadataClient {
	if host == "" {
		host = "https://api.rawg.io/api"
	}
	if pageSize <= 0 {
		pageSize = 10
	}
	return &MetadataClient{
		host:     strings.TrimRight(host, "/"),
		apiKey:   apiKey,
		pageSize: pageSize,
		t:        newTransport("metadata", opts),
	}
}

type rawgNamed struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type rawgPlatform struct {
	Platform rawgNamed `json:"platform"`
}

type rawgStore struct {
	URL   string    `json:"url"`
	Store rawgNamed `json:"store"`
}

type rawgGame struct {
	ID              json.Number    `json:"id"`
	Name            string         `json:"name"`
	Slug            string         `json:"slug"`
	Released        string         `json:"released"`
	Rating          float64        `json:"rating"`
	BackgroundImage string         `json:"background_image"`
	DescriptionRaw  string         `json:"description_raw"`
	Genres          []rawgNamed    `json:"genres"`
	Platforms       []rawgPlatform `json:"platforms"`
	Developers      []rawgNamed    `json:"developers"`
	Publishers      []rawgNamed    `json:"publishers"`
	Stores          []rawgStore    `json:"stores"`
}

type rawgList struct {
	Count   int        `json:"count"`
	Results []rawgGame `json:"results"`
}

// FetchMetadata loads one game. Genres are truncated to the first MaxGenres.
func (c *MetadataClient) FetchMetadata(ctx context.Context, externalID string) (*ExternalRecord, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("external id is required")
	}
	body, err := c.t.get(ctx, c.url("/games/"+url.PathEscape(externalID), nil))
	if err != nil {
		return nil, err
	}
	var game rawgGame
	if err := json.Unmarshal(body, &game); err != nil {
		return nil, validationError("decode game %s: %v", externalID, err)
	}
	if game.ID.String() == "" || strings.TrimSpace(game.Name) == "" {
		return nil, validationError("game %s missing id or name", externalID)
	}
	rec := game.toRecord()
	return &rec, nil
}

// SearchByQuery is best-effort free-text search.
func (c *MetadataClient) SearchByQuery(ctx context.Context, query string, filter SearchFilter) ([]ExternalRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("search", query)
	params.Set("page_size", strconv.Itoa(pageSizeOr(filter.Limit, c.pageSize)))
	if filter.Genre != "" {
		params.Set("genres", strings.ToLower(filter.Genre))
	}
	if filter.Platform != "" {
		params.Set("platforms", filter.Platform)
	}
	return c.list(ctx, params)
}

// Discover lists games by tags, genres or platforms.
func (c *MetadataClient) Discover(ctx context.Context, p DiscoverParams) ([]ExternalRecord, error) {
	params := url.Values{}
	params.Set("page_size", strconv.Itoa(pageSizeOr(p.PageSize, c.pageSize)))
	if p.Tags != "" {
		params.Set("tags", p.Tags)
	}
	if p.Genres != "" {
		params.Set("genres", p.Genres)
	}
	if p.Platforms != "" {
		params.Set("platforms", p.Platforms)
	}
	return c.list(ctx, params)
}

func (c *MetadataClient) list(ctx context.Context, params url.Values) ([]ExternalRecord, error) {
	body, err := c.t.get(ctx, c.url("/games", params))
	if err != nil {
		return nil, err
	}
	var payload rawgList
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, validationError("decode game list: %v", err)
	}
	out := make([]ExternalRecord, 0, len(payload.Results))
	for _, game := range payload.Results {
		if strings.TrimSpace(game.Name) == "" || game.ID.String() == "" {
			continue
		}
		out = append(out, game.toRecord())
	}
	return out, nil
}

func (c *MetadataClient) url(path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("key", c.apiKey)
	}
	full := c.host + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}
	return full
}

func (g rawgGame) toRecord() ExternalRecord {
	rec := ExternalRecord{
		ExternalID:  g.ID.String(),
		Name:        strings.TrimSpace(g.Name),
		Slug:        g.Slug,
		Platforms:   make([]string, 0, len(g.Platforms)),
		Genres:      make([]string, 0, MaxGenres),
		Rating:      g.Rating,
		ImageURL:    g.BackgroundImage,
		Description: g.DescriptionRaw,
	}
	for _, p := range g.Platforms {
		if name := strings.TrimSpace(p.Platform.Name); name != "" {
			rec.Platforms = append(rec.Platforms, name)
		}
	}
	for _, genre := range g.Genres {
		if len(rec.Genres) >= MaxGenres {
			break
		}
		if name := strings.TrimSpace(genre.Name); name != "" {
			rec.Genres = append(rec.Genres, name)
		}
	}
	if len(g.Developers) > 0 {
		rec.Developer = g.Developers[0].Name
	}
	if len(g.Publishers) > 0 {
		rec.Publisher = g.Publishers[0].Name
	}
	if g.Released != "" {
		if t, err := time.Parse("2006-01-02", g.Released); err == nil {
			rec.Released = &t
		}
	}
	rec.PricingProviderID = steamAppID(g.Stores)
	return rec
}

var steamAppPath = regexp.MustCompile(`store\.steampowered\.com/app/(\d+)`)

func steamAppID(stores []rawgStore) string {
	for _, s := range stores {
		if s.Store.Slug != "steam" {
			continue
		}
		if m := steamAppPath.FindStringSubmatch(s.URL); len(m) == 2 {
			return m[1]
		}
	}
	return ""
}

func pageSizeOr(v, def int) int {
	if v <= 0 {
		return def
	}
	if v > 40 {
		return 40
	}
	return v
}
