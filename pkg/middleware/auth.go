package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/identity"
	"github.com/sharmaanmol256/new-calendar/pkg/models"
)

// UserContextKey is the fiber Locals key holding the authenticated user.
const UserContextKey = "user"

// TokenPolicy yields a user whose access token is usable.
type TokenPolicy interface {
	Ensure(ctx context.Context, email string) (*models.User, error)
}

// AuthGate resolves the caller, applies the token policy and attaches the
// user to the request. Auth failures answer 401, anything else 500.
func AuthGate(resolver identity.Resolver, policy TokenPolicy, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		email, err := resolver.Resolve(c)
		if err != nil {
			log.Error("identity resolution failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Authentication failed"})
		}
		if email == "" {
			log.Debug("no identity supplied", zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": apperr.ErrAuthRequired.Message})
		}

		user, err := policy.Ensure(c.UserContext(), email)
		if err != nil {
			var appErr *apperr.Error
			if errors.As(err, &appErr) && appErr.Status == fiber.StatusUnauthorized {
				log.Info("request rejected", zap.String("email", email), zap.String("reason", appErr.Message))
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": appErr.Message})
			}
			log.Error("auth gate failed", zap.String("email", email), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Authentication failed"})
		}

		c.Locals(UserContextKey, user)
		return c.Next()
	}
}

// CurrentUser returns the user attached by AuthGate, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(UserContextKey).(*models.User)
	return user
}
