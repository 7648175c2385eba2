package ballchasing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"impulse-go/internal/collection"
	"impulse-go/internal/ratelimit"
)

func noPause(context.Context, time.Duration) error { return nil }

// recordingServer is a fake catalog that records request paths and queries.
type recordingServer struct {
	mu       sync.Mutex
	requests []*http.Request
	handler  http.HandlerFunc
}

func (s *recordingServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(context.Background()))
	s.mu.Unlock()
	s.handler(w, r)
}

func newTestClient(t *testing.T, pageSize int, handler http.HandlerFunc) (*Client, *recordingServer, *ratelimit.Limiter) {
	t.Helper()
	rs := &recordingServer{handler: handler}
	srv := httptest.NewServer(rs)
	t.Cleanup(srv.Close)

	limiter := ratelimit.New(0, 0)
	c := NewClient("test-token", limiter,
		WithBaseURL(srv.URL),
		WithPageSize(pageSize),
		WithPagePause(noPause),
	)
	return c, rs, limiter
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_GetGroup(t *testing.T) {
	c, rs, _ := newTestClient(t, 200, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "rlcs-2024", "name": "RLCS 2024", "status": "public"})
	})

	g, err := c.GetGroup(context.Background(), "rlcs-2024")
	require.NoError(t, err)
	assert.Equal(t, &collection.Group{ID: "rlcs-2024", Name: "RLCS 2024"}, g)

	require.Len(t, rs.requests, 1)
	assert.Equal(t, "/groups/rlcs-2024", rs.requests[0].URL.Path)
	assert.Equal(t, "test-token", rs.requests[0].Header.Get("Authorization"))
	assert.NotEmpty(t, rs.requests[0].Header.Get("User-Agent"))
}

func TestClient_ListChildGroups_PaginatesByLastID(t *testing.T) {
	c, rs, limiter := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			writeJSON(t, w, map[string]any{
				"list": []map[string]string{{"id": "a", "name": "A"}, {"id": "b", "name": "B"}},
				"next": "https://example.invalid/api/groups?after=b",
			})
		case "b":
			writeJSON(t, w, map[string]any{
				"list": []map[string]string{{"id": "c", "name": "C"}},
			})
		default:
			http.Error(w, "unexpected cursor", http.StatusBadRequest)
		}
	})

	groups, err := c.ListChildGroups(context.Background(), "root")
	require.NoError(t, err)
	assert.Equal(t, []collection.Group{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {ID: "c", Name: "C"}}, groups)

	require.Len(t, rs.requests, 2)
	q := rs.requests[0].URL.Query()
	assert.Equal(t, "root", q.Get("group"))
	assert.Equal(t, "2", q.Get("count"))
	assert.Equal(t, "b", rs.requests[1].URL.Query().Get("after"))

	assert.Equal(t, 2, limiter.Status().RequestsThisHour, "every page goes through the limiter")
}

func TestClient_ListChildGroups_StopsOnShortPage(t *testing.T) {
	c, rs, _ := newTestClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{
			"list": []map[string]string{{"id": "a", "name": "A"}},
			"next": "ignored",
		})
	})

	groups, err := c.ListChildGroups(context.Background(), "root")
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Len(t, rs.requests, 1)
}

func TestClient_ListReplays_PaginatesByNextToken(t *testing.T) {
	c, rs, _ := newTestClient(t, 2, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("after") {
		case "":
			writeJSON(t, w, map[string]any{
				"list": []map[string]any{
					{"id": "r1", "replay_title": "Game 1", "blue": map[string]string{"name": "Vitality"}, "orange": map[string]string{"name": "BDS"}},
					{"id": "r2", "replay_title": "Game 2"},
				},
				"next": "opaque-token",
			})
		case "opaque-token":
			writeJSON(t, w, map[string]any{
				"list": []map[string]any{{"id": "r3"}},
			})
		default:
			http.Error(w, "unexpected cursor", http.StatusBadRequest)
		}
	})

	replays, err := c.ListReplays(context.Background(), "leaf")
	require.NoError(t, err)
	require.Len(t, replays, 3)
	assert.Equal(t, "Game 1", replays[0].ReplayTitle)
	assert.Equal(t, "Vitality", replays[0].BlueName())
	assert.Equal(t, "BDS", replays[0].OrangeName())
	assert.Equal(t, collection.UnknownTeam, replays[1].BlueName())
	assert.Equal(t, "r3", replays[2].ID)

	require.Len(t, rs.requests, 2)
	assert.Equal(t, "/replays", rs.requests[0].URL.Path)
	assert.Equal(t, "opaque-token", rs.requests[1].URL.Query().Get("after"))
}

func TestClient_ListReplays_EmptyGroup(t *testing.T) {
	c, _, _ := newTestClient(t, 200, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"list": []any{}})
	})

	replays, err := c.ListReplays(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, replays)
}

func TestClient_DownloadReplay(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff, 'r', 'l'}
	c, rs, _ := newTestClient(t, 200, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	})

	data, err := c.DownloadReplay(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	assert.Equal(t, "/replays/abc-123/file", rs.requests[0].URL.Path)
}

func TestClient_RemoteErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRetryable bool
		wantNotFound  bool
	}{
		{name: "not found", status: http.StatusNotFound, wantNotFound: true},
		{name: "unauthorized", status: http.StatusUnauthorized},
		{name: "rate limited", status: http.StatusTooManyRequests, wantRetryable: true},
		{name: "server error", status: http.StatusBadGateway, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, _ := newTestClient(t, 200, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope "+strconv.Itoa(tt.status), tt.status)
			})

			_, err := c.DownloadReplay(context.Background(), "r1")
			require.Error(t, err)

			var re *RemoteError
			require.True(t, errors.As(err, &re), "error should be a RemoteError: %v", err)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Contains(t, re.Body, "nope")
			assert.Contains(t, err.Error(), fmt.Sprintf("HTTP %d", tt.status))
			assert.Equal(t, tt.wantRetryable, IsRetryable(err))
			assert.Equal(t, tt.wantNotFound, IsNotFound(err))
		})
	}
}

func TestClient_MalformedJSON(t *testing.T) {
	c, _, _ := newTestClient(t, 200, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	})

	_, err := c.GetGroup(context.Background(), "g")
	var re *RemoteError
	assert.True(t, errors.As(err, &re))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := NewClient("t", ratelimit.New(0, 0), WithBaseURL(srv.URL))
	_, err := c.GetGroup(context.Background(), "g")

	var re *RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, 0, re.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestClient_CancelledContext(t *testing.T) {
	c, rs, _ := newTestClient(t, 200, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]any{"id": "g", "name": "G"})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetGroup(ctx, "g")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rs.requests)
}

func TestCursorFromNext(t *testing.T) {
	assert.Equal(t, "abc", cursorFromNext("https://ballchasing.com/api/replays?group=x&after=abc"))
	assert.Equal(t, "opaque", cursorFromNext("opaque"))
}
