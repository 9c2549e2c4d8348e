package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lazypower/amplifier/internal/engine"
	"github.com/lazypower/amplifier/internal/store"
)

const (
	defaultServerURL = "http://127.0.0.1:37780"
	defaultTimeout   = 2 * time.Minute
)

// Client talks to a running amplifier server.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to
// AMPLIFIER_URL and then to the default local address. Runs are synchronous
// on the server, so timeout should cover a full analysis; zero uses a
// two minute default.
func New(serverURL string, timeout time.Duration) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("AMPLIFIER_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// Run triggers an analysis. A lookback of zero uses the server default.
func (c *Client) Run(ctx context.Context, lookbackDays int) (*engine.Summary, error) {
	body := []byte("{}")
	if lookbackDays > 0 {
		body = []byte(fmt.Sprintf(`{"lookback_days":%d}`, lookbackDays))
	}
	data, err := c.do(ctx, http.MethodPost, "/api/analysis/run", body)
	// A failed run still answers with a summary carrying the error.
	var sum engine.Summary
	if len(data) > 0 && json.Unmarshal(data, &sum) == nil && sum.RunID != "" {
		return &sum, err
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("decode run summary: unexpected body %q", data)
}

// Amplified lists cross-tenant aggregates scoring at least minScore.
func (c *Client) Amplified(ctx context.Context, minScore, limit int) ([]store.EntityAmplification, error) {
	q := url.Values{}
	q.Set("min_score", strconv.Itoa(minScore))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	data, err := c.do(ctx, http.MethodGet, "/api/amplification?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Entities []store.EntityAmplification `json:"entities"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode amplification: %w", err)
	}
	return resp.Entities, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	_, err := c.do(ctx, http.MethodGet, "/api/health", nil)
	return err == nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	return data, nil
}
