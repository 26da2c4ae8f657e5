package provider

import "context"

// Client is the single accessor for both providers. It holds no state beyond
// what the shared limiter keeps, and every method is a pure read.
type Client struct {
	Metadata *MetadataClient
	Pricing  *PricingClient
}

func NewClient(metadata *MetadataClient, pricing *PricingClient) *Client {
	return &Client{Metadata: metadata, Pricing: pricing}
}

func (c *Client) FetchMetadata(ctx context.Context, externalID string) (*ExternalRecord, error) {
	if c == nil || c.Metadata == nil {
		return nil, ErrNotFound
	}
	return c.Metadata.FetchMetadata(ctx, externalID)
}

func (c *Client) FetchPricing(ctx context.Context, pricingID string) (*PricingRecord, error) {
	if c == nil || c.Pricing == nil {
		return nil, ErrNotFound
	}
	return c.Pricing.FetchPricing(ctx, pricingID)
}

func (c *Client) SearchByQuery(ctx context.Context, query string, filter SearchFilter) ([]ExternalRecord, error) {
	if c == nil || c.Metadata == nil {
		return nil, nil
	}
	return c.Metadata.SearchByQuery(ctx, query, filter)
}

func (c *Client) Discover(ctx context.Context, params DiscoverParams) ([]ExternalRecord, error) {
	if c == nil || c.Metadata == nil {
		return nil, nil
	}
	return c.Metadata.Discover(ctx, params)
}
