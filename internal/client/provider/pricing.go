package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// PricingClient talks to the Steam-style appdetails endpoint.
type PricingClient struct {
	host    string
	country string
	t       *transport
}

func NewPricingClient(host, country string, opts Options) *PricingClient {
	if host == "" {
		host = "https://store.steampowered.com/api"
	}
	return &PricingClient{
		host:    strings.TrimRight(host, "/"),
		country: strings.TrimSpace(country),
		t:       newTransport("pricing", opts),
	}
}

type appDetailsEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type appDetailsData struct {
	IsFree        bool           `json:"is_free"`
	PriceOverview *priceOverview `json:"price_overview"`
}

type priceOverview struct {
	Currency        string `json:"currency"`
	Initial         int64  `json:"initial"`
	Final           int64  `json:"final"`
	DiscountPercent int    `json:"discount_percent"`
}

// FetchPricing returns the current price for a pricing-provider app id.
// A response without price_overview for a paid app is ErrValidation.
func (c *PricingClient) FetchPricing(ctx context.Context, pricingID string) (*PricingRecord, error) {
	pricingID = strings.TrimSpace(pricingID)
	if pricingID == "" {
		return nil, fmt.Errorf("pricing id is required")
	}
	params := url.Values{}
	params.Set("appids", pricingID)
	if c.country != "" {
		params.Set("cc", c.country)
	}
	body, err := c.t.get(ctx, c.host+"/appdetails?"+params.Encode())
	if err != nil {
		return nil, err
	}
	return parseAppDetails(pricingID, body)
}

func parseAppDetails(pricingID string, body []byte) (*PricingRecord, error) {
	var envelope map[string]appDetailsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, validationError("decode appdetails %s: %v", pricingID, err)
	}
	entry, ok := envelope[pricingID]
	if !ok || !entry.Success {
		return nil, ErrNotFound
	}
	var data appDetailsData
	if len(entry.Data) == 0 {
		return nil, validationError("appdetails %s has no data", pricingID)
	}
	if err := json.Unmarshal(entry.Data, &data); err != nil {
		return nil, validationError("decode appdetails data %s: %v", pricingID, err)
	}
	if data.IsFree {
		return &PricingRecord{
			Final:    decimal.Zero,
			Initial:  decimal.Zero,
			Currency: "USD",
			IsFree:   true,
		}, nil
	}
	po := data.PriceOverview
	if po == nil {
		return nil, validationError("appdetails %s missing price_overview", pricingID)
	}
	if po.Final < 0 || po.Initial < 0 {
		return nil, validationError("appdetails %s has negative price", pricingID)
	}
	initial := po.Initial
	if initial < po.Final {
		initial = po.Final
	}
	currency := strings.ToUpper(strings.TrimSpace(po.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &PricingRecord{
		Final:           decimal.New(po.Final, -2),
		Initial:         decimal.New(initial, -2),
		Currency:        currency,
		DiscountPercent: po.DiscountPercent,
	}, nil
}
