package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/database"
	"github.com/sharmaanmol256/new-calendar/pkg/oauth"
)

type fakeProvider struct {
	token       *oauth2.Token
	exchangeErr error
	identity    oauth.Identity
	refreshed   *oauth2.Token
	refreshErr  error
	revokeErr   error

	exchanged []string
	refreshes int
	revoked   []string
}

func (f *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	f.exchanged = append(f.exchanged, code)
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.token, nil
}

func (f *fakeProvider) Refresh(context.Context, string) (*oauth2.Token, error) {
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshed == nil {
		return nil, errors.New("no refresh configured")
	}
	return f.refreshed, nil
}

func (f *fakeProvider) Identity(context.Context, *oauth2.Token) (oauth.Identity, error) {
	if f.identity.Email == "" {
		return oauth.Identity{}, errors.New("userinfo failed")
	}
	return f.identity, nil
}

func (f *fakeProvider) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return f.revokeErr
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

// newTestApp renders returned errors the same way the server does.
func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
			}
			return c.Status(apperr.Status(err)).JSON(fiber.Map{"error": apperr.Message(err)})
		},
	})
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out), string(body))
}

func jsonBody(v any) io.Reader {
	b, _ := json.Marshal(v)
	return strings.NewReader(string(b))
}
