// Package keepa is a small client for the Keepa product and tracking API.
package keepa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://api.keepa.com"
	DefaultTimeout = 30 * time.Second

	// Queries longer than this are sent as a form POST.
	maxQueryLength = 2048
	maxErrorBody   = 512
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
}

// Client talks to the Keepa HTTP API. Every request waits on a shared
// limiter before it is sent.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a Keepa client.
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, opts.Burst),
	}
}

// ProductResult is a decoded product response. Raw holds each product's
// original JSON, index-aligned with Products.
type ProductResult struct {
	Products       []Product
	Raw            []json.RawMessage
	TokensLeft     int
	TokensConsumed int
}

type productEnvelope struct {
	TokensLeft     int               `json:"tokensLeft"`
	TokensConsumed int               `json:"tokensConsumed"`
	Products       []json.RawMessage `json:"products"`
	Error          *APIError         `json:"error"`
}

// QueryProduct fetches one product with buy box data and 90 day stats.
func (c *Client) QueryProduct(ctx context.Context, apiKey, asin string, domain Domain) (*ProductResult, error) {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("domain", strconv.Itoa(int(domain)))
	params.Set("asin", asin)
	params.Set("buybox", "1")
	params.Set("stats", "90")

	body, err := c.call(ctx, c.baseURL+"/product", params)
	if err != nil {
		return nil, err
	}

	var env productEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("keepa: decode product response: %w", err)
	}
	if env.Error != nil {
		return nil, env.Error
	}

	result := &ProductResult{
		Products:       make([]Product, 0, len(env.Products)),
		Raw:            make([]json.RawMessage, 0, len(env.Products)),
		TokensLeft:     env.TokensLeft,
		TokensConsumed: env.TokensConsumed,
	}
	for _, raw := range env.Products {
		var p Product
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("keepa: decode product: %w", err)
		}
		result.Products = append(result.Products, p)
		result.Raw = append(result.Raw, raw)
	}
	return result, nil
}

// call sends params as a query string, or as a form body when the query
// would be too long for a URL.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	encoded := params.Encode()
	if len(encoded) <= maxQueryLength {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+encoded, nil)
		if err != nil {
			return nil, err
		}
		return c.do(req)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("keepa: rate limiter: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keepa: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("keepa: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &env) == nil && env.Error != nil {
			return nil, env.Error
		}
		snippet := string(body)
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

// apiNotificationIndex is the position of the API (webhook) channel in a
// tracking notificationType array.
const apiNotificationIndex = 5

// TrackingRequest registers one identifier for push notifications.
type TrackingRequest struct {
	ASIN                           string `json:"asin"`
	MainDomainID                   Domain `json:"mainDomainId"`
	TTL                            int    `json:"ttl"`
	ExpireNotify                   bool   `json:"expireNotify"`
	DesiredPricesInMainCurrency    bool   `json:"desiredPricesInMainCurrency"`
	NotificationType               []bool `json:"notificationType"`
	IndividualNotificationInterval int    `json:"individualNotificationInterval"`
	UpdateInterval                 int    `json:"updateInterval"`
	TrackingListName               string `json:"trackingListName,omitempty"`
}

// NewTrackingRequest builds a tracking that notifies through the API channel.
// updateIntervalHours is clamped to Keepa's 0..25 range.
func NewTrackingRequest(asin string, domain Domain, updateIntervalHours int, listName string) TrackingRequest {
	notify := make([]bool, 7)
	notify[apiNotificationIndex] = true
	if updateIntervalHours < 0 {
		updateIntervalHours = 0
	}
	if updateIntervalHours > 25 {
		updateIntervalHours = 25
	}
	return TrackingRequest{
		ASIN:                           asin,
		MainDomainID:                   domain,
		ExpireNotify:                   true,
		DesiredPricesInMainCurrency:    true,
		NotificationType:               notify,
		IndividualNotificationInterval: -1,
		UpdateInterval:                 updateIntervalHours,
		TrackingListName:               listName,
	}
}

// TrackingResult is the decoded answer of a tracking add call.
type TrackingResult struct {
	TokensLeft int             `json:"tokensLeft"`
	Trackings  json.RawMessage `json:"trackings"`
}

// RegisterTracking adds trackings. Keepa rejects some JSON bodies with 400;
// those are retried once as a GET with the payload in the tracking parameter.
func (c *Client) RegisterTracking(ctx context.Context, apiKey string, trackings []TrackingRequest, listName string) (*TrackingResult, error) {
	payload, err := json.Marshal(trackings)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("type", "add")
	if listName != "" {
		params.Set("list", listName)
	}
	endpoint := c.baseURL + "/tracking"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
		params.Set("tracking", string(payload))
		body, err = c.call(ctx, endpoint, params)
	}
	if err != nil {
		return nil, err
	}

	var result TrackingResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("keepa: decode tracking response: %w", err)
	}
	return &result, nil
}
