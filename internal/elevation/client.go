// Package elevation attaches elevation data to run and lift geometries.
package elevation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mohammed-shakir/skidata-processor/internal/core/observability"
)

var (
	// ErrThrottled reports HTTP 429 from the elevation service.
	ErrThrottled           = errors.New("elevation service throttled the request")
	ErrUnsupportedGeometry = errors.New("unsupported geometry")
)

// Coordinate is in the service's (lat, lng) order.
type Coordinate struct {
	Lat float64
	Lng float64
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lng})
}

type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("elevation service returned %d: %s", e.Code, e.Body)
}

type Protocol string

const (
	// ProtocolPoint issues one GET per coordinate.
	ProtocolPoint Protocol = "point"
	// ProtocolBatch posts all coordinates of a request at once.
	ProtocolBatch Protocol = "batch"
)

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: baseURL, http: hc}
}

// Point looks up one coordinate with GET ?lat=..&lng=.. and expects a bare number.
func (c *Client) Point(ctx context.Context, coord Coordinate) (float64, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return 0, fmt.Errorf("parse elevation url: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(coord.Lng, 'f', -1, 64))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return 0, err
	}
	var v *float64
	if err := json.Unmarshal(body, &v); err != nil || v == nil {
		return 0, fmt.Errorf("non-numeric elevation response %q", truncate(body))
	}
	return *v, nil
}

// Batch posts [[lat,lng],...] and expects an array of the same length. Null
// entries come back as NaN.
func (c *Client) Batch(ctx context.Context, coords []Coordinate) ([]float64, error) {
	payload, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("encode coordinates: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var raw []*float64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode batch response: %w", err)
	}
	if len(raw) != len(coords) {
		return nil, fmt.Errorf("batch response has %d elevations for %d coordinates", len(raw), len(coords))
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		if v == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *v
	}
	return out, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	observability.ObserveUpstreamLatency("elevation", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("elevation request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read elevation response: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrThrottled
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(body)}
	}
	return body, nil
}

func truncate(b []byte) string {
	const max = 128
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
