package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	email  string
	body   map[string]any
}

type fakeServer struct {
	mu       sync.Mutex
	requests []recorded
	listHits atomic.Int32
	// listFailAfter makes the event list answer 401 once it has been served
	// this many times. Zero never fails.
	listFailAfter int32
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recorded{method: r.Method, path: r.URL.Path, email: r.URL.Query().Get("email")}
	if r.Body != nil && r.Header.Get("Content-Type") == "application/json" {
		_ = json.NewDecoder(r.Body).Decode(&rec.body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/auth/google":
		_, _ = w.Write([]byte(`{"url":"https://accounts.example.com/auth?state=s"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/auth/check":
		_, _ = w.Write([]byte(`{"authenticated":true}`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout":
		_, _ = w.Write([]byte(`{"success":true,"message":"Logged out successfully"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/api/events":
		n := f.listHits.Add(1)
		if f.listFailAfter > 0 && n > f.listFailAfter {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Token expired"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":"evt-1","summary":"Standup","start":{"dateTime":"2026-10-20T10:00:00Z"}}]`))
	case r.Method == http.MethodPost && r.URL.Path == "/api/events":
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"evt-2","summary":"Review"}`))
	case r.Method == http.MethodPut && r.URL.Path == "/api/events/evt 1":
		_, _ = w.Write([]byte(`{"id":"evt 1","summary":"Renamed"}`))
	case r.Method == http.MethodDelete && r.URL.Path == "/api/events/gone":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Event not found"}`))
	case r.Method == http.MethodDelete:
		_, _ = w.Write([]byte(`{"success":true}`))
	default:
		w.WriteHeader(http.StatusBadGateway)
	}
}

func (f *fakeServer) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "ada@example.com", srv.Client())
}

func TestAuthCalls(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f)
	ctx := context.Background()

	u, err := c.AuthURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://accounts.example.com/auth?state=s", u)

	ok, err := c.Check(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ada@example.com", f.last().email)

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, "ada@example.com", f.last().body["email"])
}

func TestEventCalls(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f)
	ctx := context.Background()

	events, err := c.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Summary)
	assert.Equal(t, "2026-10-20T10:00:00Z", events[0].Start.DateTime)

	in := EventInput{
		Summary:       "Review",
		StartDateTime: "2026-10-20T10:00:00Z",
		EndDateTime:   "2026-10-20T11:00:00Z",
		Attendees:     []string{"bob@example.com"},
	}
	ev, err := c.CreateEvent(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "evt-2", ev.ID)
	body := f.last().body
	assert.Equal(t, "ada@example.com", body["email"])
	assert.Equal(t, "Review", body["summary"])
	assert.Equal(t, []any{"bob@example.com"}, body["attendees"])

	ev, err = c.UpdateEvent(ctx, "evt 1", in)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", ev.Summary)

	require.NoError(t, c.DeleteEvent(ctx, "evt-1"))
	assert.Equal(t, http.MethodDelete, f.last().method)
	assert.Equal(t, "ada@example.com", f.last().body["email"])
}

func TestErrorsAreTyped(t *testing.T) {
	f := &fakeServer{listFailAfter: 1}
	c := newTestClient(t, f)
	ctx := context.Background()

	err := c.DeleteEvent(ctx, "gone")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Event not found", apiErr.Message)

	_, err = c.ListEvents(ctx)
	require.NoError(t, err)
	_, err = c.ListEvents(ctx)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestWatchStopsWhenSessionEnds(t *testing.T) {
	f := &fakeServer{listFailAfter: 3}
	c := newTestClient(t, f)

	var calls int
	err := c.Watch(context.Background(), 10*time.Millisecond, func(events []Event, err error) {
		calls++
		assert.NoError(t, err)
		assert.Len(t, events, 1)
	})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 3, calls)
}

func TestWatchStopsOnCancel(t *testing.T) {
	f := &fakeServer{}
	c := newTestClient(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := c.Watch(ctx, time.Hour, func([]Event, error) {
		calls++
		cancel()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestWithEmail(t *testing.T) {
	raw, err := withEmail(EventInput{Summary: "x"}, "ada@example.com")
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "ada@example.com", out["email"])
	assert.Equal(t, "x", out["summary"])

	raw, err = withEmail(map[string]any{"email": "other@example.com"}, "ada@example.com")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "ada@example.com", out["email"])
}
