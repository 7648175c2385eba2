// Package ballchasing is the HTTP client for the ballchasing.com replay
// catalog. Every request, including pagination continuations, passes
// through the rate limiter first.
package ballchasing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"impulse-go/internal/collection"
	"impulse-go/internal/ratelimit"
)

const (
	// DefaultBaseURL is the public catalog API.
	DefaultBaseURL = "https://ballchasing.com/api"
	// DefaultPageSize is the largest page the catalog serves.
	DefaultPageSize = 200
	// PagePause separates consecutive page requests.
	PagePause = 500 * time.Millisecond

	userAgent = "impulse-go/1.0"

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 512
)

// Client talks to the remote catalog.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	limiter  *ratelimit.Limiter
	pageSize int
	pause    func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPageSize sets the page size requested from list endpoints.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithPagePause replaces the delay between pages. Tests pass a no-op.
func WithPagePause(pause func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.pause = pause }
}

// NewClient creates a client authenticated with token. limiter is required.
func NewClient(token string, limiter *ratelimit.Limiter, opts ...Option) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		token:    token,
		http:     &http.Client{Timeout: 60 * time.Second},
		limiter:  limiter,
		pageSize: DefaultPageSize,
		pause:    ratelimit.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// page is the envelope of the catalog's list endpoints.
type page[T any] struct {
	List []T   `json:"list"`
	Next string `json:"next,omitempty"`
}

// GetGroup fetches a single group's metadata.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*collection.Group, error) {
	var g collection.Group
	if err := c.getJSON(ctx, "/groups/"+url.PathEscape(groupID), nil, &g); err != nil {
		return nil, err
	}
	if g.ID == "" {
		g.ID = groupID
	}
	return &g, nil
}

// ListChildGroups returns all direct children of parentID. The cursor for
// the next page is the id of the last child received.
func (c *Client) ListChildGroups(ctx context.Context, parentID string) ([]collection.Group, error) {
	var all []collection.Group
	after := ""
	for {
		q := c.listQuery(parentID, after)
		var p page[collection.Group]
		if err := c.getJSON(ctx, "/groups", q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.List...)

		if p.Next == "" || len(p.List) < c.pageSize {
			return all, nil
		}
		after = p.List[len(p.List)-1].ID
		if err := c.pause(ctx, PagePause); err != nil {
			return nil, err
		}
	}
}

// ListReplays returns all replays directly in groupID. The cursor for the
// next page is the server-supplied next token.
func (c *Client) ListReplays(ctx context.Context, groupID string) ([]collection.Replay, error) {
	var all []collection.Replay
	after := ""
	for {
		q := c.listQuery(groupID, after)
		var p page[collection.Replay]
		if err := c.getJSON(ctx, "/replays", q, &p); err != nil {
			return nil, err
		}
		all = append(all, p.List...)

		if p.Next == "" || len(p.List) < c.pageSize {
			return all, nil
		}
		after = cursorFromNext(p.Next)
		if err := c.pause(ctx, PagePause); err != nil {
			return nil, err
		}
	}
}

// DownloadReplay fetches the raw replay file.
func (c *Client) DownloadReplay(ctx context.Context, replayID string) ([]byte, error) {
	resp, reqURL, err := c.do(ctx, "/replays/"+url.PathEscape(replayID)+"/file", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Method: http.MethodGet, URL: reqURL, Err: fmt.Errorf("reading body: %w", err)}
	}
	return data, nil
}

func (c *Client) listQuery(groupID, after string) url.Values {
	q := url.Values{}
	q.Set("group", groupID)
	q.Set("count", strconv.Itoa(c.pageSize))
	if after != "" {
		q.Set("after", after)
	}
	return q
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	resp, reqURL, err := c.do(ctx, path, q)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RemoteError{Method: http.MethodGet, URL: reqURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// do waits for the limiter, sends a GET and returns a 2xx response whose
// body the caller must close.
func (c *Client) do(ctx context.Context, path string, q url.Values) (*http.Response, string, error) {
	reqURL := c.baseURL + path
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, reqURL, &RemoteError{Method: http.MethodGet, URL: reqURL, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, reqURL, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, reqURL, &RemoteError{Method: http.MethodGet, URL: reqURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, reqURL, &RemoteError{
			Method:     http.MethodGet,
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return resp, reqURL, nil
}

// cursorFromNext extracts the after parameter when the server returns the
// next page as a full URL; any other value is used as the cursor verbatim.
func cursorFromNext(next string) string {
	u, err := url.Parse(next)
	if err != nil || u.RawQuery == "" {
		return next
	}
	if after := u.Query().Get("after"); after != "" {
		return after
	}
	return next
}

var _ collection.CatalogClient = (*Client)(nil)
