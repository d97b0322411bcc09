package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	gcal "google.golang.org/api/calendar/v3"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/calendar"
	"github.com/sharmaanmol256/new-calendar/pkg/config"
	"github.com/sharmaanmol256/new-calendar/pkg/database"
	"github.com/sharmaanmol256/new-calendar/pkg/handlers"
	"github.com/sharmaanmol256/new-calendar/pkg/identity"
	"github.com/sharmaanmol256/new-calendar/pkg/oauth"
	"github.com/sharmaanmol256/new-calendar/pkg/repository"
	"github.com/sharmaanmol256/new-calendar/pkg/tokens"
)

const frontend = "http://localhost:5173"

type stubProxy struct{}

func (stubProxy) List(context.Context, string) ([]*gcal.Event, error) {
	return []*gcal.Event{{Id: "evt-1", Summary: "Standup"}}, nil
}

func (stubProxy) Create(_ context.Context, _ string, in calendar.EventInput) (*gcal.Event, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &gcal.Event{Id: "evt-2", Summary: in.Summary}, nil
}

func (stubProxy) Update(context.Context, string, string, calendar.EventInput) (*gcal.Event, error) {
	return nil, apperr.ErrNotFound
}

func (stubProxy) Delete(context.Context, string, string) error {
	return nil
}

type fixture struct {
	app   *fiber.App
	users *repository.UserRepository
}

func newFixture(t *testing.T, ping handlers.Pinger, ui fstest.MapFS) fixture {
	t.Helper()
	log := zaptest.NewLogger(t)

	db, err := database.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	users := repository.NewUserRepository(db)
	provider := oauth.NewGoogle("client-id", "client-secret", "http://localhost:5000/api/auth/callback")
	policy := tokens.NewPolicy(users, provider, log)
	sessions := session.New()

	deps := Deps{
		Config:   config.Config{FrontendURL: frontend + "/app"},
		Log:      log,
		Resolver: NewResolver(config.IdentityModeEmail, sessions),
		Policy:   policy,
		Auth:     handlers.NewAuthHandler(provider, users, policy, sessions, frontend, log),
		Events:   handlers.NewEventsHandler(stubProxy{}, repository.NewEventRepository(db), log),
		Health:   handlers.NewHealthHandler(ping, log),
	}
	if ui != nil {
		deps.UI = ui
	}
	return fixture{app: New(deps), users: users}
}

func healthy(context.Context) error { return nil }

func get(t *testing.T, app *fiber.App, target string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	return resp, readJSON(t, resp)
}

func readJSON(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(body) > 0 && body[0] == '{' {
		require.NoError(t, json.Unmarshal(body, &out), string(body))
	}
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, healthy, nil)
	resp, body := get(t, f.app, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "connected", body["database"])
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	down := newFixture(t, func(context.Context) error { return errors.New("connection refused") }, nil)
	resp, body = get(t, down.app, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "disconnected", body["database"])
}

func TestEventsRequireAUsableSession(t *testing.T) {
	f := newFixture(t, healthy, nil)
	ctx := context.Background()

	_, err := f.users.UpsertLogin(ctx, repository.Login{
		Email:       "norefresh@example.com",
		AccessToken: "access",
		Expiry:      time.Now().Add(time.Hour),
		At:          time.Now(),
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		msg    string
	}{
		{"no email", "/api/events", "Email is required"},
		{"unknown user", "/api/events?email=ghost@example.com", "User not authenticated"},
		{"no refresh token", "/api/events?email=norefresh@example.com", "User not authenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, f.app, tt.target)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestEventsWithFreshToken(t *testing.T) {
	f := newFixture(t, healthy, nil)
	_, err := f.users.UpsertLogin(context.Background(), repository.Login{
		Email:        "ada@example.com",
		AccessToken:  "access",
		RefreshToken: "refresh",
		Expiry:       time.Now().Add(time.Hour),
		At:           time.Now(),
	})
	require.NoError(t, err)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/api/events?email=ada@example.com", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var events []gcal.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Summary)

	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(`{"email":"ada@example.com","summary":""}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPut, "/api/events/missing", strings.NewReader(
		`{"email":"ada@example.com","summary":"x","startDateTime":"2026-10-20T10:00:00Z","endDateTime":"2026-10-20T11:00:00Z"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Event not found", readJSON(t, resp)["error"])
}

func TestLoginAndCheck(t *testing.T) {
	f := newFixture(t, healthy, nil)

	resp, body := get(t, f.app, "/api/auth/google")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["url"], "access_type=offline")

	resp, body = get(t, f.app, "/api/auth/check?email=ghost@example.com")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["authenticated"])
}

func TestUnknownRouteIsJSON(t *testing.T) {
	f := newFixture(t, healthy, nil)
	resp, body := get(t, f.app, "/api/nothing-here")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestCORSAllowsFrontendOrigin(t *testing.T) {
	f := newFixture(t, healthy, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(fiber.HeaderOrigin, frontend)
	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, frontend, resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", resp.Header.Get(fiber.HeaderAccessControlAllowCredentials))
}

func TestServesUI(t *testing.T) {
	ui := fstest.MapFS{"index.html": {Data: []byte("<html><title>Calendar</title></html>")}}
	f := newFixture(t, healthy, ui)

	resp, err := f.app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Calendar")
}

func TestOriginOf(t *testing.T) {
	assert.Equal(t, "http://localhost:5173", originOf("http://localhost:5173/app?x=1"))
	assert.Equal(t, "https://cal.example.com", originOf("https://cal.example.com"))
	assert.Equal(t, "*", originOf("*"))
}

func TestNewResolver(t *testing.T) {
	sessions := session.New()
	assert.IsType(t, identity.SessionResolver{}, NewResolver(config.IdentityModeSession, sessions))
	assert.IsType(t, identity.EmailResolver{}, NewResolver(config.IdentityModeEmail, sessions))
	assert.IsType(t, identity.EmailResolver{}, NewResolver("", sessions))
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler(zaptest.NewLogger(t))})
	app.Get("/forbidden", func(*fiber.Ctx) error { return apperr.Wrap(apperr.ErrForbidden, errors.New("403 from provider")) })
	app.Get("/teapot", func(*fiber.Ctx) error { return fiber.NewError(fiber.StatusTeapot, "short and stout") })
	app.Get("/boom", func(*fiber.Ctx) error { return errors.New("pq: connection reset") })

	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{"/forbidden", http.StatusForbidden, "Permission denied"},
		{"/teapot", http.StatusTeapot, "short and stout"},
		{"/boom", http.StatusInternalServerError, "Something went wrong!"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, body := get(t, app, tt.path)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}
