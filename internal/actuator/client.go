// Package actuator is the client for the external device state API: it
// reads device state and history and sends actuator commands.
package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

var ErrNotConfigured = errors.New("state API not configured")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// StateDetails is the current state document of a device.
type StateDetails struct {
	Status string         `json:"status"`
	Data   map[string]any `json:"data"`
}

// Ack acknowledges an actuator command.
type Ack struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Range bounds a history query. Zero times are omitted.
type Range struct {
	From time.Time
	To   time.Time
}

// Sample is one historical value of a topic.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     any       `json:"value"`
}

// Client calls the state API. Requests share one rate limiter.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New returns a client for baseURL limited to rps requests per second.
func New(baseURL, token string, rps int) *Client {
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
	}
}

// Enabled reports whether a base URL was configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// GetStateDetails fetches the state document of a device.
func (c *Client) GetStateDetails(ctx context.Context, deviceID string) (StateDetails, error) {
	var out StateDetails
	err := c.do(ctx, http.MethodGet, "/devices/"+url.PathEscape(deviceID)+"/state", nil, nil, &out)
	return out, err
}

// UpdateStateDetails sends payload to an actuator topic of a device.
func (c *Client) UpdateStateDetails(ctx context.Context, deviceID, topic string, payload any) (Ack, error) {
	var out Ack
	path := "/devices/" + url.PathEscape(deviceID) + "/state/" + url.PathEscape(topic)
	err := c.do(ctx, http.MethodPost, path, nil, payload, &out)
	return out, err
}

// GetTopicStreamData returns time-series samples of a topic.
func (c *Client) GetTopicStreamData(ctx context.Context, deviceID, topic string, r Range) ([]Sample, error) {
	return c.samples(ctx, deviceID, topic, "stream", r)
}

// GetTopicStateDetails returns recorded state changes of a topic.
func (c *Client) GetTopicStateDetails(ctx context.Context, deviceID, topic string, r Range) ([]Sample, error) {
	return c.samples(ctx, deviceID, topic, "state", r)
}

func (c *Client) samples(ctx context.Context, deviceID, topic, kind string, r Range) ([]Sample, error) {
	q := url.Values{}
	if !r.From.IsZero() {
		q.Set("from", r.From.UTC().Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		q.Set("to", r.To.UTC().Format(time.RFC3339))
	}
	var out struct {
		Data []Sample `json:"data"`
	}
	path := "/devices/" + url.PathEscape(deviceID) + "/topics/" + url.PathEscape(topic) + "/" + kind
	if err := c.do(ctx, http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("state API rate limit: %w", err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
