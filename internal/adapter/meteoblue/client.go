// Package meteoblue provides the HTTP client for the upstream forecast API.
package meteoblue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/weathervane/weathervane/internal/domain"
	"github.com/weathervane/weathervane/internal/domain/weather"
	"github.com/weathervane/weathervane/internal/resilience"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://my.meteoblue.com"

// fetchTimeout bounds how long a caller can block on the upstream.
const fetchTimeout = 30 * time.Second

// NetError wraps a transport-level failure (DNS, TCP, timeout).
type NetError struct{ Err error }

func (e *NetError) Error() string { return fmt.Sprintf("upstream network error: %v", e.Err) }

func (e *NetError) Unwrap() []error { return []error{domain.ErrUnavailable, e.Err} }

// StatusError reports a non-2xx upstream response.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("upstream http %d", e.Code) }

func (e *StatusError) Unwrap() error { return domain.ErrUnavailable }

// DecodeError reports a response body that could not be parsed.
type DecodeError struct{ Err error }

func (e *DecodeError) Error() string { return fmt.Sprintf("upstream malformed response: %v", e.Err) }

func (e *DecodeError) Unwrap() []error { return []error{domain.ErrUnavailable, e.Err} }

// Client talks to the forecast API's day-package endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates an upstream client. baseURL falls back to the production
// endpoint when empty.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Fetch requests the day forecast for the given coordinates. On success it
// returns the decoded payload and the raw body bytes; on failure one of
// *NetError, *StatusError, or *DecodeError, all matching
// domain.ErrUnavailable.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (*weather.Payload, []byte, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("apikey", c.apiKey)
	q.Set("format", "json")

	endpoint := c.baseURL + "/packages/basic-day?" + q.Encode()

	var payload *weather.Payload
	var raw []byte

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return &NetError{Err: err}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &NetError{Err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{Code: resp.StatusCode}
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &NetError{Err: err}
		}

		var p weather.Payload
		if err := json.Unmarshal(body, &p); err != nil {
			return &DecodeError{Err: err}
		}

		payload = &p
		raw = body
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			err = &NetError{Err: err}
		}
	} else {
		err = call()
	}
	if err != nil {
		return nil, nil, err
	}
	return payload, raw, nil
}
