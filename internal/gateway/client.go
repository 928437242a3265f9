package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/daveremy/clubexpress-sdk/config"
	"github.com/daveremy/clubexpress-sdk/internal/availability"
	"github.com/daveremy/clubexpress-sdk/internal/rules"
)

// ErrRejected matches every *RejectedError.
var ErrRejected = errors.New("rejected by reservation platform")

// RejectedError carries the platform's message when it refuses a booking or cancellation.
type RejectedError struct {
	Op      string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Message)
}

func (e *RejectedError) Unwrap() error {
	return ErrRejected
}

// StatusError is returned for a non-200 response.
type StatusError struct {
	Op   string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: received non-200 status code: %d", e.Op, e.Code)
}

// Site is the set of platform operations the rest of the daemon depends on.
type Site interface {
	FetchGrid(ctx context.Context, category string, dayOffset int) (availability.Grid, error)
	FetchBookings(ctx context.Context, from, to time.Time) ([]rules.Booking, error)
	SubmitBooking(ctx context.Context, req rules.Request) (rules.Booking, error)
	SubmitCancellation(ctx context.Context, bookingID, reason string) error
}

// Client talks to the reservation platform over HTTP.
type Client struct {
	baseURL  *url.URL
	paths    config.GatewayPaths
	headers  map[string]string
	memberID string
	loc      *time.Location
	client   *http.Client
	limiter  *rate.Limiter
	now      func() time.Time
}

// NewClient builds a client from the gateway configuration. Requests are paced to
// cfg.RequestsPerSec.
func NewClient(cfg config.GatewayConfig, loc *time.Location) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if loc == nil {
		loc = time.Local
	}

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Printf("Warning: Invalid proxy URL %q: %v. Gateway will not use a proxy.", cfg.HTTPProxy, err)
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSec > 0 {
		limit = rate.Limit(cfg.RequestsPerSec)
	}

	return &Client{
		baseURL:  base,
		paths:    cfg.Paths,
		headers:  cfg.Headers,
		memberID: cfg.MemberID,
		loc:      loc,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	ref, err := url.Parse(path)
	if err != nil {
		ref = &url.URL{Path: path}
	}
	u := c.baseURL.ResolveReference(ref)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do sends req after waiting for the limiter and returns the body of a 200 response.
func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: http request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Op: op, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read response body: %w", op, err)
	}
	return body, nil
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op)
}

// FetchGrid downloads one day of the scheduling grid, dayOffset days after today in the club's
// time zone.
func (c *Client) FetchGrid(ctx context.Context, category string, dayOffset int) (availability.Grid, error) {
	payload := gridRequest{
		Category:  category,
		DayOffset: dayOffset,
		MemberID:  c.memberID,
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return availability.Grid{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.paths.Grid, nil), bytes.NewBuffer(jsonBody))
	if err != nil {
		return availability.Grid{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "fetch grid")
	if err != nil {
		return availability.Grid{}, err
	}

	var resp gridResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return availability.Grid{}, fmt.Errorf("failed to unmarshal grid response: %w", err)
	}
	if resp.Code != 0 {
		return availability.Grid{}, fmt.Errorf("grid API returned non-zero application code: %d", resp.Code)
	}

	date := c.today().AddDate(0, 0, dayOffset)
	if resp.Data.Date != "" {
		date, err = time.ParseInLocation("2006-01-02", resp.Data.Date, c.loc)
		if err != nil {
			return availability.Grid{}, fmt.Errorf("failed to parse grid date %q: %w", resp.Data.Date, err)
		}
	}
	return resp.Data.toGrid(date, category), nil
}

func (c *Client) today() time.Time {
	y, m, d := c.now().In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}
