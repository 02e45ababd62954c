package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.github.com"
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "copilot-metric-saver"
	seatsPageSize    = 100
)

// Config controls the shared upstream client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration // per-request deadline
	RPS        float64       // requests per second across all tenants, 0 disables limiting
	UserAgent  string
	HTTPClient *http.Client
}

// Client talks to the GitHub Copilot usage, seats and metrics endpoints. One
// instance is shared by the sync job and all request handlers; tokens are
// supplied per call, never stored.
type Client struct {
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	timeout   time.Duration
	userAgent string
}

// NewClient builds a Client from Config, filling defaults.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}

	return &Client{
		baseURL:   base,
		client:    httpClient,
		limiter:   limiter,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// scopePath builds the URL prefix for an organization, enterprise or
// team-narrowed scope.
func scopePath(scopeType, scopeName, teamSlug string) string {
	root := "orgs"
	if scopeType == "enterprise" {
		root = "enterprises"
	}
	p := root + "/" + url.PathEscape(scopeName)
	if teamSlug != "" {
		p += "/team/" + url.PathEscape(teamSlug)
	}
	return p
}

// CheckScope performs a read-only liveness probe for the given scope and
// token. Any failure (auth, not-found, network) is reported as a plain error;
// callers treat all of them as an invalid credential.
func (c *Client) CheckScope(ctx context.Context, scopeType, scopeName, teamSlug, token string) error {
	endpoint := fmt.Sprintf("%s/%s/copilot/usage", c.baseURL, scopePath(scopeType, scopeName, teamSlug))
	var probe []UsageDay
	return c.getJSON(ctx, endpoint, token, &probe)
}

// FetchUsage returns the daily usage series for the scope.
func (c *Client) FetchUsage(ctx context.Context, scopeType, scopeName, teamSlug, token string) ([]UsageDay, error) {
	endpoint := fmt.Sprintf("%s/%s/copilot/usage", c.baseURL, scopePath(scopeType, scopeName, teamSlug))
	var days []UsageDay
	if err := c.getJSON(ctx, endpoint, token, &days); err != nil {
		return nil, err
	}
	return days, nil
}

// FetchSeats pages through the full seat roster for the scope. Seat
// assignment lives at the organization/enterprise level, so any team
// narrowing is ignored here.
func (c *Client) FetchSeats(ctx context.Context, scopeType, scopeName, token string) ([]Seat, error) {
	var all []Seat
	for page := 1; ; page++ {
		endpoint := fmt.Sprintf("%s/%s/copilot/billing/seats?per_page=%d&page=%d",
			c.baseURL, scopePath(scopeType, scopeName, ""), seatsPageSize, page)

		var body seatsPage
		if err := c.getJSON(ctx, endpoint, token, &body); err != nil {
			return nil, err
		}
		all = append(all, body.Seats...)
		if len(body.Seats) < seatsPageSize || int64(len(all)) >= body.TotalSeats {
			break
		}
	}
	return all, nil
}

// FetchMetrics returns the daily metrics series, optionally restricted to
// [since, until). Each element keeps the raw upstream object alongside the
// decoded summary fields.
func (c *Client) FetchMetrics(ctx context.Context, scopeType, scopeName, teamSlug, token, since, until string) ([]MetricsDay, error) {
	endpoint := fmt.Sprintf("%s/%s/copilot/metrics", c.baseURL, scopePath(scopeType, scopeName, teamSlug))

	params := url.Values{}
	if since != "" {
		params.Set("since", since)
	}
	if until != "" {
		params.Set("until", until)
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var raw []json.RawMessage
	if err := c.getJSON(ctx, endpoint, token, &raw); err != nil {
		return nil, err
	}

	days := make([]MetricsDay, 0, len(raw))
	for _, item := range raw {
		var day MetricsDay
		if err := json.Unmarshal(item, &day); err != nil {
			return nil, fmt.Errorf("decode metrics day: %w", err)
		}
		day.Payload = item
		days = append(days, day)
	}
	return days, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint, token string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", c.userAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("github api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("github api error: %s %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github api response: %w", err)
	}
	return nil
}
