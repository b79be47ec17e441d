// Package vast is a client for a Vast.ai-style GPU rental marketplace:
// offer search, instance creation with an onstart command, instance
// listing, and teardown.
package vast

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/comfycloud/lazymodels/pkg/logging"
)

// DefaultBaseURL is the marketplace API endpoint.
const DefaultBaseURL = "https://console.vast.ai/api/v0"

// ClientConfig configures a Client.
type ClientConfig struct {
	// APIKey authenticates all requests. Required.
	APIKey string
	// BaseURL overrides the API endpoint. Used in tests.
	BaseURL string
	// HTTPClient is the HTTP client to use. Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Logger is the associated logger.
	Logger logging.Logger
}

// Client talks to the marketplace API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        logging.Logger
}

// NewClient creates a marketplace client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("marketplace API key is required")
	}
	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		log:        cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c, nil
}

// OfferQuery filters the offer search.
type OfferQuery struct {
	// GPUName matches the marketplace GPU model name, e.g. "RTX_3090".
	GPUName string
	// MaxPrice is the highest acceptable $/hr. Zero means no cap.
	MaxPrice float64
	// MinReliability filters out flaky hosts. Defaults to 0.95.
	MinReliability float64
	// MinDLPerf filters out slow machines. Defaults to 10.
	MinDLPerf float64
}

// SearchOffers returns unrented, verified offers matching the query,
// cheapest first.
func (c *Client) SearchOffers(ctx context.Context, q OfferQuery) ([]Offer, error) {
	if q.MinReliability == 0 {
		q.MinReliability = 0.95
	}
	if q.MinDLPerf == 0 {
		q.MinDLPerf = 10
	}

	body := map[string]interface{}{
		"gpu_name":     map[string]interface{}{"eq": q.GPUName},
		"rented":       map[string]interface{}{"eq": false},
		"verified":     map[string]interface{}{"eq": true},
		"reliability2": map[string]interface{}{"gt": q.MinReliability},
		"dlperf":       map[string]interface{}{"gt": q.MinDLPerf},
		"order":        [][]string{{"dph_total", "asc"}},
		"type":         "ask",
	}

	var out struct {
		Offers []Offer `json:"offers"`
	}
	if err := c.do(ctx, http.MethodPut, "/bundles/", body, &out); err != nil {
		return nil, errors.Wrap(err, "searching offers")
	}

	offers := out.Offers
	if q.MaxPrice > 0 {
		filtered := offers[:0]
		for _, o := range offers {
			if o.DPHTotal <= q.MaxPrice {
				filtered = append(filtered, o)
			}
		}
		offers = filtered
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].DPHTotal < offers[j].DPHTotal })
	return offers, nil
}

// CreateRequest describes the instance to start on an offer.
type CreateRequest struct {
	// Image is the container image to boot.
	Image string
	// DiskGB is the disk allocation in gigabytes.
	DiskGB int
	// OnStart is the shell command run when the container starts.
	OnStart string
}

// CreateInstance rents the machine behind an offer and returns the new
// instance ID.
func (c *Client) CreateInstance(ctx context.Context, offerID int64, req CreateRequest) (int64, error) {
	body := map[string]interface{}{
		"client_id": "me",
		"image":     req.Image,
		"disk":      req.DiskGB,
		"onstart":   req.OnStart,
	}
	var out struct {
		Success     bool  `json:"success"`
		NewContract int64 `json:"new_contract"`
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/asks/%d/", offerID), body, &out); err != nil {
		return 0, errors.Wrapf(err, "renting offer %d", offerID)
	}
	if !out.Success || out.NewContract == 0 {
		return 0, errors.Errorf("marketplace rejected offer %d", offerID)
	}
	return out.NewContract, nil
}

// Instances lists the caller's rented machines.
func (c *Client) Instances(ctx context.Context) ([]Instance, error) {
	var out struct {
		Instances []Instance `json:"instances"`
	}
	if err := c.do(ctx, http.MethodGet, "/instances/", nil, &out); err != nil {
		return nil, errors.Wrap(err, "listing instances")
	}
	return out.Instances, nil
}

// Instance returns one rented machine by ID.
func (c *Client) Instance(ctx context.Context, id int64) (*Instance, error) {
	instances, err := c.Instances(ctx)
	if err != nil {
		return nil, err
	}
	for i := range instances {
		if instances[i].ID == id {
			return &instances[i], nil
		}
	}
	return nil, errors.Errorf("instance %d not found", id)
}

// DestroyInstance tears down a rented machine, stopping billing.
func (c *Client) DestroyInstance(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/instances/%d/", id), nil, nil); err != nil {
		return errors.Wrapf(err, "destroying instance %d", id)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s: %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
