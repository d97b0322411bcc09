// Package oauth wraps the Google OAuth2 endpoints the service talks to.
package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

const defaultRevokeURL = "https://oauth2.googleapis.com/revoke"

// DefaultHTTPTimeout bounds every call to the token, userinfo and revoke
// endpoints unless WithHTTPClient supplies another client.
const DefaultHTTPTimeout = 30 * time.Second

// Scopes requested at sign-in.
var Scopes = []string{
	calendar.CalendarScope,
	calendar.CalendarEventsScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
}

// Identity is the subset of the userinfo response the service stores.
type Identity struct {
	Email string
	Name  string
}

// Provider is the identity provider as seen by the rest of the service.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	Identity(ctx context.Context, token *oauth2.Token) (Identity, error)
	Revoke(ctx context.Context, token string) error
}

// Google implements Provider against Google's OAuth2 endpoints.
type Google struct {
	config     *oauth2.Config
	revokeURL  string
	apiOptions []option.ClientOption
	httpClient *http.Client
}

type GoogleOption func(*Google)

// WithEndpoint overrides the token and auth endpoints.
func WithEndpoint(endpoint oauth2.Endpoint) GoogleOption {
	return func(g *Google) { g.config.Endpoint = endpoint }
}

// WithRevokeURL overrides the revocation endpoint.
func WithRevokeURL(u string) GoogleOption {
	return func(g *Google) { g.revokeURL = u }
}

// WithAPIOptions adds client options for the userinfo API client.
func WithAPIOptions(opts ...option.ClientOption) GoogleOption {
	return func(g *Google) { g.apiOptions = append(g.apiOptions, opts...) }
}

// WithHTTPClient sets the client used for token and revocation calls.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *Google) { g.httpClient = c }
}

func NewGoogle(clientID, clientSecret, redirectURL string, opts ...GoogleOption) *Google {
	g := &Google{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint:     google.Endpoint,
		},
		revokeURL:  defaultRevokeURL,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthCodeURL asks for offline access and forces the consent screen so a
// refresh token is issued on every sign-in.
func (g *Google) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.config.Exchange(g.clientContext(ctx), code)
}

// Refresh runs the refresh-token grant. The returned token may carry a
// rotated refresh token.
func (g *Google) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := g.config.TokenSource(g.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	return src.Token()
}

func (g *Google) Identity(ctx context.Context, token *oauth2.Token) (Identity, error) {
	opts := append([]option.ClientOption{
		option.WithTokenSource(g.config.TokenSource(g.clientContext(ctx), token)),
	}, g.apiOptions...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("create userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	if info.Email == "" {
		return Identity{}, fmt.Errorf("userinfo response has no email")
	}
	return Identity{Email: info.Email, Name: info.Name}, nil
}

// Revoke invalidates token at the provider.
func (g *Google) Revoke(ctx context.Context, token string) error {
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("revoke failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (g *Google) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
}
