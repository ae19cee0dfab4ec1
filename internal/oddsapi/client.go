package oddsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vdogroup/arbwatch/internal/config"
	"github.com/vdogroup/arbwatch/internal/metrics"
	"github.com/vdogroup/arbwatch/internal/ratelimit"
)

// Client handles communication with the odds provider (The Odds API v4
// shape). The API key is not held by the client: the orchestrator passes the
// currently acquired credential's secret on every call so the client stays
// oblivious to rotation.
type Client struct {
	baseURL    string
	regions    string
	bookmakers []string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a provider client from configuration.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    cfg.OddsAPIBaseURL,
		regions:    cfg.Regions,
		bookmakers: cfg.Bookmakers,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		limiter:    ratelimit.New(cfg.OddsAPIRPS, cfg.OddsAPIBurst),
	}
}

// FetchOdds fetches decimal odds for one sport across the configured regions,
// bookmakers, and the given markets. Quota metadata from the response headers
// is returned alongside the events. Non-200 statuses are classified into the
// quota/auth sentinel errors where possible.
func (c *Client) FetchOdds(ctx context.Context, apiKey, sportKey string, marketKeys []string) (*OddsResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(fmt.Sprintf("%s/sports/%s/odds", c.baseURL, sportKey))
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	q := u.Query()
	q.Set("apiKey", apiKey)
	q.Set("regions", c.regions)
	q.Set("markets", strings.Join(marketKeys, ","))
	q.Set("oddsFormat", "decimal")
	if len(c.bookmakers) > 0 {
		q.Set("bookmakers", strings.Join(c.bookmakers, ","))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.RecordProviderRequest(sportKey, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	used := headerInt(resp.Header, "x-requests-used")
	remaining := headerInt(resp.Header, "x-requests-remaining")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, classify(resp.StatusCode, string(body), resp.Header)
	}

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &OddsResponse{
		Events:            events,
		RequestsUsed:      used,
		RequestsRemaining: remaining,
	}, nil
}

// classify maps a non-200 response to the error taxonomy. 401/403 disable
// the credential permanently; 402/429 and quota-flavored bodies rotate it.
func classify(status int, body string, header http.Header) error {
	apiErr := &APIError{StatusCode: status, Body: truncate(body, 200)}

	lower := strings.ToLower(body)
	quotaBody := strings.Contains(body, "OUT_OF_USAGE_CREDITS") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "usage")

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if quotaBody {
			apiErr.class = ErrQuotaExceeded
			apiErr.ResetAt = retryAfter(header)
		} else {
			apiErr.class = ErrAuthRejected
		}
	case status == http.StatusPaymentRequired || status == http.StatusTooManyRequests || quotaBody:
		apiErr.class = ErrQuotaExceeded
		apiErr.ResetAt = retryAfter(header)
	}

	return apiErr
}

func retryAfter(header http.Header) time.Time {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Now().Add(time.Duration(secs) * time.Second)
		}
	}
	return time.Time{}
}

func headerInt(header http.Header, key string) int {
	v := header.Get(key)
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(v, ".0")))
	if err != nil {
		return -1
	}
	return n
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
