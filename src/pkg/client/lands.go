package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type landEnvelope struct {
	Land *Land `json:"land"`
}

type landsEnvelope struct {
	Lands []Land `json:"lands"`
}

type transferEnvelope struct {
	Transfer *Transfer `json:"transfer"`
}

type transfersEnvelope struct {
	Transfers []Transfer `json:"transfers"`
}

func (q LandQuery) values() url.Values {
	v := url.Values{}
	setString(v, "search", q.Search)
	setString(v, "status", q.Status)
	setString(v, "property_type", q.PropertyType)
	setInt(v, "page", q.Page)
	setInt(v, "per_page", q.PerPage)
	return v
}

func setString(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setInt(v url.Values, key string, value int) {
	if value > 0 {
		v.Set(key, strconv.Itoa(value))
	}
}

func landPath(landID string, parts ...string) string {
	p := "/lands/" + url.PathEscape(landID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Lands lists lands matching q
func (c *Client) Lands(ctx context.Context, q LandQuery) (*LandPage, error) {
	var page LandPage
	if err := c.Do(ctx, http.MethodGet, "/lands", q.values(), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Land fetches one land
func (c *Client) Land(ctx context.Context, landID string) (*Land, error) {
	var resp landEnvelope
	if err := c.Do(ctx, http.MethodGet, landPath(landID), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Land, nil
}

// CreateLand registers a land owned by the caller; it starts pending review
func (c *Client) CreateLand(ctx context.Context, req LandRequest) (*Land, error) {
	var resp landEnvelope
	if err := c.Do(ctx, http.MethodPost, "/lands", nil, req, &resp); err != nil {
		return nil, err
	}
	return resp.Land, nil
}

// MyLands lists the caller's lands
func (c *Client) MyLands(ctx context.Context) ([]Land, error) {
	var resp landsEnvelope
	if err := c.Do(ctx, http.MethodGet, "/lands/my-lands", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lands, nil
}

// MapData lists lands with coordinates, inside bounds when given
func (c *Client) MapData(ctx context.Context, bounds *Bounds) ([]Land, error) {
	var q url.Values
	if bounds != nil {
		q = url.Values{}
		q.Set("bounds", fmt.Sprintf("%g,%g,%g,%g", bounds.South, bounds.West, bounds.North, bounds.East))
	}
	var resp landsEnvelope
	if err := c.Do(ctx, http.MethodGet, "/lands/map-data", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Lands, nil
}

// Statistics returns registry-wide aggregates
func (c *Client) Statistics(ctx context.Context) (*LandStatistics, error) {
	var stats LandStatistics
	if err := c.Do(ctx, http.MethodGet, "/lands/statistics", nil, nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Transfers lists the caller's transfers; kind is sent, received or all
func (c *Client) Transfers(ctx context.Context, kind string) ([]Transfer, error) {
	q := url.Values{}
	setString(q, "type", kind)
	var resp transfersEnvelope
	if err := c.Do(ctx, http.MethodGet, "/lands/transfers", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Transfers, nil
}

// InitiateTransfer proposes handing a land over
func (c *Client) InitiateTransfer(ctx context.Context, landID string, req InitiateRequest) (*Transfer, error) {
	return c.transferCall(ctx, landPath(landID, "transfer", "initiate"), req)
}

// ExecuteTransfer writes a pending transfer to the ledger and completes it
func (c *Client) ExecuteTransfer(ctx context.Context, landID, transferID string) (*Transfer, error) {
	return c.transferCall(ctx, landPath(landID, "transfer", url.PathEscape(transferID), "execute"), nil)
}

// CancelTransfer withdraws a pending transfer
func (c *Client) CancelTransfer(ctx context.Context, landID, transferID string) (*Transfer, error) {
	return c.transferCall(ctx, landPath(landID, "transfer", url.PathEscape(transferID), "cancel"), nil)
}

func (c *Client) transferCall(ctx context.Context, path string, body interface{}) (*Transfer, error) {
	var resp transferEnvelope
	if err := c.Do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, err
	}
	return resp.Transfer, nil
}

// TransferHistory returns the stored and on-chain history of a land
func (c *Client) TransferHistory(ctx context.Context, landID string) (*TransferHistory, error) {
	var history TransferHistory
	if err := c.Do(ctx, http.MethodGet, landPath(landID, "transfer-history"), nil, nil, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Health reports server health. The endpoint sits beside the API root, so
// a trailing /api is stripped from the base URL.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	hc := New(strings.TrimSuffix(c.baseURL, "/api"), WithHTTPClient(c.httpClient), WithUserAgent(c.userAgent))
	var health Health
	if err := hc.Do(ctx, http.MethodGet, "/health", nil, nil, &health); err != nil {
		return nil, err
	}
	return &health, nil
}
