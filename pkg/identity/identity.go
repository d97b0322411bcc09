// Package identity decides who a request claims to be.
//
// EmailResolver trusts a plaintext email supplied by the client, which is
// how the browser client has always identified itself. Nothing proves the
// caller owns that address. SessionResolver reads the email the OAuth
// callback stored in the server-side session instead and is the one to use
// when the client can carry the session cookie.
package identity

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

// SessionEmailKey is the session key the OAuth callback writes.
const SessionEmailKey = "email"

// Resolver extracts the caller's email. An empty email with a nil error
// means the request carried no identity.
type Resolver interface {
	Resolve(c *fiber.Ctx) (string, error)
}

// EmailResolver reads the email query parameter, then the email or
// userEmail field of a JSON body.
type EmailResolver struct{}

func (EmailResolver) Resolve(c *fiber.Ctx) (string, error) {
	if email := c.Query("email"); email != "" {
		return email, nil
	}
	return BodyEmail(c), nil
}

// BodyEmail returns the email or userEmail field of a JSON body, or "".
func BodyEmail(c *fiber.Ctx) string {
	body := c.Body()
	if len(body) == 0 {
		return ""
	}
	var payload struct {
		Email     string `json:"email"`
		UserEmail string `json:"userEmail"`
	}
	if err := c.App().Config().JSONDecoder(body, &payload); err != nil {
		return ""
	}
	if payload.Email != "" {
		return payload.Email
	}
	return payload.UserEmail
}

// SessionResolver reads the email stored in the fiber session.
type SessionResolver struct {
	Store *session.Store
}

func (r SessionResolver) Resolve(c *fiber.Ctx) (string, error) {
	sess, err := r.Store.Get(c)
	if err != nil {
		return "", err
	}
	email, _ := sess.Get(SessionEmailKey).(string)
	return email, nil
}
