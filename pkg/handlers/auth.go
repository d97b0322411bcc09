package handlers

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/identity"
	"github.com/sharmaanmol256/new-calendar/pkg/models"
	"github.com/sharmaanmol256/new-calendar/pkg/oauth"
	"github.com/sharmaanmol256/new-calendar/pkg/repository"
)

const sessionStateKey = "oauth_state"

// UserStore is the user persistence the auth endpoints need.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertLogin(ctx context.Context, login repository.Login) (*models.User, error)
	ClearTokens(ctx context.Context, email string, logoutAt *time.Time) error
}

// TokenPolicy is the refresh policy as used by the auth endpoints.
type TokenPolicy interface {
	Ensure(ctx context.Context, email string) (*models.User, error)
	Refresh(ctx context.Context, email string) (*models.User, error)
}

type AuthHandler struct {
	provider    oauth.Provider
	users       UserStore
	policy      TokenPolicy
	sessions    *session.Store
	frontendURL string
	log         *zap.Logger
	now         func() time.Time
}

func NewAuthHandler(provider oauth.Provider, users UserStore, policy TokenPolicy, sessions *session.Store, frontendURL string, log *zap.Logger) *AuthHandler {
	return &AuthHandler{
		provider:    provider,
		users:       users,
		policy:      policy,
		sessions:    sessions,
		frontendURL: frontendURL,
		log:         log,
		now:         time.Now,
	}
}

// Login returns the provider consent URL for client-side redirection.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	state := uuid.NewString()

	sess, err := h.sessions.Get(c)
	if err != nil {
		h.log.Error("failed to get session", zap.Error(err))
		return apperr.Wrap(apperr.ErrInternal, err)
	}
	sess.Set(sessionStateKey, state)
	if err := sess.Save(); err != nil {
		h.log.Error("failed to save session", zap.Error(err))
		return apperr.Wrap(apperr.ErrInternal, err)
	}

	return c.JSON(fiber.Map{"url": h.provider.AuthCodeURL(state)})
}

// Callback completes the authorization-code flow and redirects the browser
// back to the frontend with either auth-success or auth-error.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	if providerErr := c.Query("error"); providerErr != "" {
		h.log.Warn("provider returned an error", zap.String("error", providerErr))
		return h.redirectError(c, providerErr)
	}

	code := c.Query("code")
	if code == "" {
		h.log.Warn("no code in query parameters")
		return h.redirectError(c, "No authorization code received")
	}

	sess, err := h.sessions.Get(c)
	if err != nil {
		h.log.Error("failed to get session", zap.Error(err))
		return h.redirectError(c, "Authentication failed")
	}
	// only checked when this browser still carries the session that started the flow
	if expected, ok := sess.Get(sessionStateKey).(string); ok && expected != c.Query("state") {
		h.log.Warn("oauth state mismatch")
		return h.redirectError(c, "Invalid OAuth state")
	}
	sess.Delete(sessionStateKey)

	ctx := c.UserContext()
	token, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.log.Error("failed to exchange token", zap.Error(err))
		return h.redirectError(c, "Failed to exchange authorization code")
	}

	who, err := h.provider.Identity(ctx, token)
	if err != nil {
		h.log.Error("unable to retrieve user info", zap.Error(err))
		return h.redirectError(c, "Unable to retrieve user info")
	}

	now := h.now()
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = now.Add(time.Hour)
	}
	if _, err := h.users.UpsertLogin(ctx, repository.Login{
		Email:        who.Email,
		Name:         who.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       expiry,
		At:           now,
	}); err != nil {
		h.log.Error("failed to store user", zap.String("email", who.Email), zap.Error(err))
		return h.redirectError(c, "Failed to store user")
	}

	sess.Set(identity.SessionEmailKey, who.Email)
	if err := sess.Save(); err != nil {
		// the email query parameter still identifies the user
		h.log.Warn("failed to save session", zap.Error(err))
	}

	h.log.Info("user authenticated", zap.String("email", who.Email), zap.Bool("new_refresh_token", token.RefreshToken != ""))
	return c.Redirect(h.frontendRedirect(url.Values{
		"auth-success": {"true"},
		"email":        {who.Email},
	}))
}

// Check reports whether the email has a usable session, refreshing a stale
// token on the way.
func (h *AuthHandler) Check(c *fiber.Ctx) error {
	email := c.Query("email")
	if email == "" {
		return c.JSON(fiber.Map{"authenticated": false})
	}

	if _, err := h.policy.Ensure(c.UserContext(), email); err != nil {
		if apperr.Status(err) == fiber.StatusUnauthorized {
			h.log.Info("auth check negative", zap.String("email", email), zap.String("reason", apperr.Message(err)))
			return c.JSON(fiber.Map{"authenticated": false})
		}
		h.log.Error("auth check failed", zap.String("email", email), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"authenticated": false,
			"error":         "Internal server error during auth check",
		})
	}
	return c.JSON(fiber.Map{"authenticated": true})
}

// Logout revokes the access token on a best-effort basis and clears the
// stored credentials. It reports success even when revocation fails.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	email := identity.BodyEmail(c)
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email is required for logout"})
	}

	ctx := c.UserContext()
	user, err := h.users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		h.log.Info("logout for unknown user", zap.String("email", email))
	case err != nil:
		h.log.Error("logout lookup failed", zap.String("email", email), zap.Error(err))
		return apperr.Wrap(apperr.ErrInternal, err)
	default:
		if user.AccessToken != "" {
			if err := h.provider.Revoke(ctx, user.AccessToken); err != nil {
				h.log.Warn("token revocation failed", zap.String("email", email), zap.Error(err))
			}
		}
		now := h.now()
		if err := h.users.ClearTokens(ctx, email, &now); err != nil {
			h.log.Error("failed to clear tokens", zap.String("email", email), zap.Error(err))
			return apperr.Wrap(apperr.ErrInternal, err)
		}
		h.log.Info("user tokens cleared", zap.String("email", email))
	}

	if sess, err := h.sessions.Get(c); err == nil {
		if err := sess.Destroy(); err != nil {
			h.log.Warn("failed to destroy session", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{"success": true, "message": "Logged out successfully"})
}

// Refresh forces a refresh-token grant for the email.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	email := identity.BodyEmail(c)
	if email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email is required"})
	}
	if _, err := h.policy.Refresh(c.UserContext(), email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (h *AuthHandler) redirectError(c *fiber.Ctx, message string) error {
	return c.Redirect(h.frontendRedirect(url.Values{
		"auth-error": {"true"},
		"error":      {message},
	}))
}

func (h *AuthHandler) frontendRedirect(params url.Values) string {
	u, err := url.Parse(h.frontendURL)
	if err != nil {
		return h.frontendURL + "?" + params.Encode()
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}
