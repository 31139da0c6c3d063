// Package platformrest holds the shared HTTP plumbing the five live-query
// REST adapters (google, microsoft, jira, chatgpt, gemini) build on: no
// pack repo ships an Admin SDK or Graph SDK client, so each adapter is a
// thin net/http + golang.org/x/oauth2 client, and this package is where
// their shared retry/rate-limit/pagination behavior lives rather than
// being copy-pasted five times. Modeled on internal/circuitbreaker's
// trip/half-open/closed state machine, reused directly through
// connector.Guard.
package platformrest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/shadowatlas/discovery-core/internal/connector"
)

// Client wraps an OAuth2-authenticated *http.Client with the Connector
// Framework's rate-limit guard and retry-after honoring.
type Client struct {
	HTTP     *http.Client
	Guard    *connector.Guard
	Platform connector.Platform
}

// NewClient builds a Client from a decrypted credential; its token is used
// as-is via a static source (refresh happens elsewhere).
func NewClient(ctx context.Context, platform connector.Platform, cred interface{ ToOAuth2Token() *oauth2.Token }, guard *connector.Guard) *Client {
	token := cred.ToOAuth2Token()
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	return &Client{HTTP: httpClient, Guard: guard, Platform: platform}
}

// Do executes req through the rate-limit guard, honoring a 429 response's
// Retry-After header by surfacing connector.RateLimited instead of
// retrying internally -- the orchestrator owns rescheduling decisions.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.Guard.Do(ctx, func(ctx context.Context) error {
		var doErr error
		resp, doErr = c.HTTP.Do(req.WithContext(ctx))
		return doErr
	})
	if err != nil {
		return nil, &connector.TransientPlatformError{Platform: c.Platform, Detail: err.Error()}
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		resetAt := time.Now().Add(connector.Backoff(1, 2*time.Second, 2*time.Minute))
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				resetAt = time.Now().Add(time.Duration(secs) * time.Second)
			}
		}
		resp.Body.Close()
		return nil, &connector.RateLimited{Platform: c.Platform, ResetAt: resetAt}
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, &connector.ExpiredCredentials{Platform: c.Platform}
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, &connector.TransientPlatformError{Platform: c.Platform, Detail: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return resp, nil
}

// PageFetcher fetches one page given a cursor, returning the next cursor
// ("" when exhausted).
type PageFetcher[T any] func(ctx context.Context, cursor string) (items []T, nextCursor string, err error)

// PagedSequence is a generic AutomationSequence/AuditLogSequence backing
// store: it buffers one page at a time and re-fetches the next page lazily
// on exhaustion, restarting from the last persisted cursor on retry (spec
// §4.1 pagination edge policy: a partial page is re-fetched, dedup by
// externalId is the caller's responsibility since dedup key differs by
// item type).
type PagedSequence[T any] struct {
	fetch   PageFetcher[T]
	buf     []T
	pos     int
	cursor  string
	pageCursor string
	done    bool
	lastErr error
}

// NewPagedSequence starts iteration from startCursor.
func NewPagedSequence[T any](startCursor string, fetch PageFetcher[T]) *PagedSequence[T] {
	return &PagedSequence[T]{cursor: startCursor, fetch: fetch}
}

// Next returns the next item, fetching a new page transparently when the
// current one is exhausted.
func (s *PagedSequence[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if s.lastErr != nil {
		return zero, false, s.lastErr
	}
	for s.pos >= len(s.buf) {
		if s.done {
			return zero, false, nil
		}
		items, next, err := s.fetch(ctx, s.cursor)
		if err != nil {
			s.lastErr = err
			return zero, false, err
		}
		s.buf = items
		s.pos = 0
		s.pageCursor = s.cursor
		s.cursor = next
		if next == "" {
			s.done = true
		}
		if len(items) == 0 && s.done {
			return zero, false, nil
		}
	}
	item := s.buf[s.pos]
	s.pos++
	return item, true, nil
}

// Cursor returns a restart point safe to persist: while the current page
// still has unconsumed items it is that page's own cursor, so a restart
// re-fetches the partial page; once the page is consumed it is the next
// page's cursor.
func (s *PagedSequence[T]) Cursor() string {
	if s.pos < len(s.buf) {
		return s.pageCursor
	}
	return s.cursor
}
