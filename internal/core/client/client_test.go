package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pagewire/pagewire/internal/core"
	"github.com/pagewire/pagewire/internal/core/ratelimit"
	apperrors "github.com/pagewire/pagewire/internal/errors"
)

type sleepLog struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepLog) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *sleepLog) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testRateConfig() ratelimit.Config {
	cfg := ratelimit.BalancedConfig()
	cfg.MaxRetries = 2
	cfg.BaseDelay = 100 * time.Millisecond
	cfg.JitterFactor = 0
	return cfg
}

func newTestClient(t *testing.T, handler http.Handler, opts ...Option) (*Client, *sleepLog) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sleeps := &sleepLog{}
	opts = append([]Option{WithHTTPClient(server.Client()), WithSleeper(sleeps.Sleep)}, opts...)
	c, err := New(Config{
		BaseURL:   server.URL,
		Token:     "secret-token",
		RateLimit: testRateConfig(),
		PageSize:  2,
	}, opts...)
	require.NoError(t, err)
	return c, sleeps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"object": "error", "status": status, "code": code, "message": message})
}

func TestRetrieveSendsHeaders(t *testing.T) {
	var got http.Header
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		require.Equal(t, "/v1/pages/abc", r.URL.Path)
		writeJSON(w, http.StatusOK, core.Page{Object: core.ObjectPage, ID: "abc"})
	}))

	page, err := c.Pages.Retrieve(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, "abc", page.ID)
	require.Equal(t, "Bearer secret-token", got.Get("Authorization"))
	require.Equal(t, DefaultVersion, got.Get(HeaderAPIVersion))
	require.NotEmpty(t, got.Get(HeaderRequestID))
}

func TestRetrieveRequiresID(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler())
	_, err := c.Pages.Retrieve(context.Background(), "  ")
	require.Error(t, err)
}

func TestThrottledTwiceThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	requestIDs := map[string]int{}
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requestIDs[r.Header.Get(HeaderRequestID)]++
		mu.Unlock()
		if calls.Add(1) <= 2 {
			writeAPIError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
			return
		}
		writeJSON(w, http.StatusOK, core.Page{Object: core.ObjectPage, ID: "p1"})
	}))

	page, err := c.Pages.Retrieve(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", page.ID)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps.Delays())
	require.Len(t, requestIDs, 1, "retries reuse the request id")
}

func TestAlwaysThrottledExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
	}))

	_, err := c.Users.Me(context.Background())
	var exhausted *apperrors.RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, "maximum retries exceeded", exhausted.Reason)
	require.Equal(t, int32(3), calls.Load())
	require.Len(t, sleeps.Delays(), 2)

	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	require.Equal(t, "rate_limited", apiErr.Code)
}

func TestRejectedRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusBadRequest, "validation_error", "body failed validation")
	}))

	_, err := c.Pages.Create(context.Background(), CreatePageRequest{Parent: core.Parent{Type: "page_id", PageID: "root"}})
	var apiErr *apperrors.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apperrors.KindRequestRejected, apiErr.Kind)
	require.Equal(t, "validation_error", apiErr.Code)
	require.Equal(t, "body failed validation", apiErr.Message)
	require.Equal(t, int32(1), calls.Load())
	require.Empty(t, sleeps.Delays())
}

func TestServerFaultRetriedWhenEnabled(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeAPIError(w, http.StatusBadGateway, "bad_gateway", "upstream hiccup")
			return
		}
		writeJSON(w, http.StatusOK, core.Database{Object: core.ObjectDatabase, ID: "db"})
	})

	c, _ := newTestClient(t, handler)
	_, err := c.Databases.Retrieve(context.Background(), "db")
	require.Equal(t, apperrors.KindServerFault, apperrors.KindOf(err))

	server := httptest.NewServer(handler)
	defer server.Close()
	cfg := testRateConfig()
	cfg.RetryServerErrors = true
	sleeps := &sleepLog{}
	retrying, err := New(Config{BaseURL: server.URL, RateLimit: cfg}, WithHTTPClient(server.Client()), WithSleeper(sleeps.Sleep))
	require.NoError(t, err)

	calls.Store(0)
	db, err := retrying.Databases.Retrieve(context.Background(), "db")
	require.NoError(t, err)
	require.Equal(t, "db", db.ID)
	require.Equal(t, int32(2), calls.Load())
}

func TestRetryAfterHeaderHonored(t *testing.T) {
	var calls atomic.Int32
	c, sleeps := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("X-Ratelimit-Limit", "3")
			w.Header().Set("X-Ratelimit-Remaining", "0")
			w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
			w.Header().Set("Retry-After", "2")
			writeAPIError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
			return
		}
		writeJSON(w, http.StatusOK, core.Block{Object: core.ObjectBlock, ID: "b1", Type: "paragraph"})
	}))

	block, err := c.Blocks.Retrieve(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "paragraph", block.Type)
	require.Equal(t, []time.Duration{2 * time.Second}, sleeps.Delays())
}

// pagedUsers serves users u0..u4 two at a time and throttles the first
// request for the second page.
func pagedUsers(t *testing.T, requests *atomic.Int32) http.Handler {
	var throttled atomic.Bool
	users := []core.User{{ID: "u0"}, {ID: "u1"}, {ID: "u2"}, {ID: "u3"}, {ID: "u4"}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		require.Equal(t, "/v1/users", r.URL.Path)
		require.Equal(t, "2", r.URL.Query().Get("page_size"))

		start := 0
		if cursor := r.URL.Query().Get("start_cursor"); cursor != "" {
			if throttled.CompareAndSwap(false, true) {
				writeAPIError(w, http.StatusTooManyRequests, "rate_limited", "slow down")
				return
			}
			n, err := strconv.Atoi(cursor)
			require.NoError(t, err)
			start = n
		}
		end := min(start+2, len(users))
		body := map[string]any{"object": "list", "results": users[start:end], "has_more": end < len(users)}
		if end < len(users) {
			body["next_cursor"] = strconv.Itoa(end)
		} else {
			body["next_cursor"] = nil
		}
		writeJSON(w, http.StatusOK, body)
	})
}

func TestListCollectRetriesEachPage(t *testing.T) {
	var requests atomic.Int32
	c, sleeps := newTestClient(t, pagedUsers(t, &requests))

	users, err := c.Users.List().Collect(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	require.Equal(t, []string{"u0", "u1", "u2", "u3", "u4"}, ids)
	require.Equal(t, int32(4), requests.Load(), "three pages plus one throttled retry")
	require.Len(t, sleeps.Delays(), 1)
}

func TestListIterateStopsEarly(t *testing.T) {
	var requests atomic.Int32
	c, _ := newTestClient(t, pagedUsers(t, &requests))

	var first []string
	for user, err := range c.Users.List().Iterate(context.Background()) {
		require.NoError(t, err)
		first = append(first, user.ID)
		if len(first) == 2 {
			break
		}
	}
	require.Equal(t, []string{"u0", "u1"}, first)
	require.Equal(t, int32(1), requests.Load())
}

func TestSearchSendsCursorInBody(t *testing.T) {
	var bodies []map[string]any
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		bodies = append(bodies, body)

		if _, ok := body["start_cursor"]; !ok {
			writeJSON(w, http.StatusOK, map[string]any{
				"object":      "list",
				"results":     []any{map[string]any{"object": "page", "id": "p1"}},
				"next_cursor": "next",
				"has_more":    true,
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"object":   "list",
			"results":  []any{map[string]any{"object": "data_source", "id": "ds1"}},
			"has_more": false,
		})
	}))

	results, err := c.Search(SearchRequest{Query: "roadmap"}).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, core.ObjectPage, results[0].Object())
	require.Equal(t, "ds1", results[1].ID())
	require.Equal(t, core.ObjectDataSource, results[1].Object())

	require.Len(t, bodies, 2)
	require.Equal(t, "roadmap", bodies[0]["query"])
	require.Equal(t, "next", bodies[1]["start_cursor"])
}

func TestDatabaseQueryPassesFilter(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/databases/db1/query", r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.JSONEq(t, `{"property":"Done","checkbox":{"equals":true}}`, string(body["filter"]))
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": []core.Page{{ID: "row"}}, "has_more": false})
	}))

	list, err := c.Databases.Query("db1", QueryRequest{Filter: json.RawMessage(`{"property":"Done","checkbox":{"equals":true}}`)})
	require.NoError(t, err)
	rows, err := list.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestCanceledContext(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, core.User{ID: "me"})
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Users.Me(ctx)
	require.Equal(t, apperrors.KindCanceled, apperrors.KindOf(err))
	require.ErrorIs(t, err, context.Canceled)
}

func TestTrackerObservesHeaders(t *testing.T) {
	tracker := ratelimit.NewTracker(nil)
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Ratelimit-Limit", "10")
		w.Header().Set("X-Ratelimit-Remaining", "7")
		w.Header().Set("X-Ratelimit-Reset", strconv.FormatInt(time.Now().Add(time.Minute).Unix(), 10))
		writeJSON(w, http.StatusOK, core.User{ID: "me"})
	}), WithTracker(tracker))

	_, err := c.Users.Me(context.Background())
	require.NoError(t, err)

	state, err := tracker.Store.GetRateLimit(context.Background(), c.Endpoint())
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, 7, state.Remaining)
	require.Equal(t, 1, state.RequestCount)
}

func TestRetrieveMany(t *testing.T) {
	var inFlight, peak atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)

		id := r.URL.Path[len("/v1/pages/"):]
		if id == "missing" {
			writeAPIError(w, http.StatusNotFound, "object_not_found", "no such page")
			return
		}
		writeJSON(w, http.StatusOK, core.Page{ID: id})
	}))

	ids := []string{"a", "b", "missing", "c", "d"}
	results := c.RetrieveMany(context.Background(), ids, 2)
	require.Len(t, results, len(ids))
	for i, result := range results {
		require.Equal(t, ids[i], result.ID)
		if result.ID == "missing" {
			require.Error(t, result.Err)
			continue
		}
		require.NoError(t, result.Err)
		require.Equal(t, ids[i], result.Page.ID)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"})
	require.Error(t, err)

	cfg := ratelimit.BalancedConfig()
	cfg.JitterFactor = 2
	_, err = New(Config{BaseURL: "https://api.example.com", RateLimit: cfg})
	require.Error(t, err)
	require.Contains(t, err.Error(), fmt.Sprintf("%q", "lte"))
}
