// Package remote fetches the building/energy entity graph from the remote
// GraphQL API.
package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/darshan-rambhia/voltline/internal/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// Config holds the remote API connection settings.
type Config struct {
	URL               string
	Token             string
	Timeout           time.Duration
	PageSize          int
	MaxPages          int
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 100
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Client issues paginated graph fetches against the remote API.
type Client struct {
	cfg     Config
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	limiter *rate.Limiter
}

// NewClient creates a remote client. Resty's own retries are disabled; the
// client retries network errors itself.
func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.Token != "" {
		httpClient.SetHeader("Authorization", "token "+cfg.Token)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: newBreaker(),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func newBreaker() *gobreaker.CircuitBreaker[[]byte] {
	return gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "remote-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only transport failures say anything about remote availability.
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("remote circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RemoteBreakerState.Set(stateToFloat(to))
		},
	})
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Fetch returns the graph matching q, following pagination until the remote
// reports no further pages or the page ceiling is reached. In the latter case
// the partial graph is returned with Truncated set.
func (c *Client) Fetch(ctx context.Context, q Query) (*Graph, error) {
	pageSize := c.cfg.PageSize
	if q.PageSize > 0 {
		pageSize = q.PageSize
	}
	maxPages := c.cfg.MaxPages
	if q.MaxPages > 0 {
		maxPages = q.MaxPages
	}

	graph := &Graph{}
	cursor := ""
	for {
		conn, err := c.fetchPage(ctx, q.variables(pageSize, cursor))
		if err != nil {
			return nil, fmt.Errorf("fetching page %d: %w", graph.Pages+1, err)
		}
		graph.Pages++
		graph.Sites = append(graph.Sites, conn.Nodes...)

		if !conn.PageInfo.HasNextPage {
			break
		}
		if conn.PageInfo.EndCursor == "" || conn.PageInfo.EndCursor == cursor {
			return nil, &MalformedResponseError{Reason: fmt.Sprintf("page %d reports more pages without a new cursor", graph.Pages)}
		}
		if graph.Pages >= maxPages {
			graph.Truncated = true
			slog.Warn("remote fetch truncated at page ceiling", "pages", graph.Pages, "max_pages", maxPages)
			break
		}
		cursor = conn.PageInfo.EndCursor
	}

	slog.Debug("remote fetch complete", "pages", graph.Pages, "sites", len(graph.Sites),
		"buildings", graph.BuildingCount(), "truncated", graph.Truncated)
	return graph, nil
}

// fetchPage performs one page request with bounded exponential backoff on
// network errors.
func (c *Client) fetchPage(ctx context.Context, vars map[string]any) (*siteConnection, error) {
	delay := c.cfg.RetryDelay
	var body []byte
	var err error

	for attempt := 1; ; attempt++ {
		if err = c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		body, err = c.breaker.Execute(func() ([]byte, error) {
			return c.post(ctx, vars)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &NetworkError{Op: "circuit breaker", Err: err}
		}
		metrics.RemoteRequests.WithLabelValues(Kind(err)).Inc()

		if err == nil {
			break
		}
		if !IsRetryable(err) || attempt >= c.cfg.MaxAttempts {
			return nil, err
		}

		slog.Warn("remote request failed, retrying", "attempt", attempt, "max_attempts", c.cfg.MaxAttempts, "delay", delay, "error", err)
		metrics.RemoteRetries.Inc()
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}

	return decodePage(body)
}

func (c *Client) post(ctx context.Context, vars map[string]any) ([]byte, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(gqlRequest{Query: fetchGraphQuery, Variables: vars}).
		Post(c.cfg.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{Op: "POST " + c.cfg.URL, Err: err}
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return nil, &AuthError{StatusCode: code, Message: snippet(resp.Body())}
	case !resp.IsSuccess():
		return nil, &RemoteError{StatusCode: code, Message: snippet(resp.Body())}
	}
	return resp.Body(), nil
}

// decodePage unpacks the GraphQL envelope of one page.
func decodePage(body []byte) (*siteConnection, error) {
	var resp gqlResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &MalformedResponseError{Reason: "decoding body", Err: err}
	}

	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		auth := false
		for _, e := range resp.Errors {
			msgs = append(msgs, e.Message)
			switch e.Extensions.Code {
			case "UNAUTHENTICATED", "FORBIDDEN":
				auth = true
			}
		}
		msg := strings.Join(msgs, "; ")
		if auth {
			return nil, &AuthError{StatusCode: http.StatusOK, Message: msg}
		}
		return nil, &RemoteError{StatusCode: http.StatusOK, Message: msg}
	}

	if resp.Data == nil || resp.Data.Sites == nil {
		return nil, &MalformedResponseError{Reason: "missing data.sites"}
	}
	return resp.Data.Sites, nil
}

// snippet trims a response body for error messages.
func snippet(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
