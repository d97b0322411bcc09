// Package tokens decides whether a stored access token is usable and
// refreshes it through the identity provider when it is not.
package tokens

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/sharmaanmol256/new-calendar/pkg/apperr"
	"github.com/sharmaanmol256/new-calendar/pkg/models"
	"github.com/sharmaanmol256/new-calendar/pkg/repository"
)

const (
	// RefreshBuffer is how long before expiry a token counts as stale.
	RefreshBuffer = 5 * time.Minute
	// DefaultLifetime is assumed when the provider omits an expiry.
	DefaultLifetime = time.Hour
	// DefaultRefreshTimeout bounds one refresh grant including persistence.
	DefaultRefreshTimeout = 15 * time.Second
)

// Refresher runs the refresh-token grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Store is the persistence the policy needs.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateTokens(ctx context.Context, email string, tokens repository.TokenSet) error
	ClearTokens(ctx context.Context, email string, logoutAt *time.Time) error
}

type Policy struct {
	store     Store
	refresher Refresher
	log       *zap.Logger
	now       func() time.Time
	timeout   time.Duration
	group     singleflight.Group
}

type Option func(*Policy)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) { p.now = now }
}

// WithRefreshTimeout replaces DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(p *Policy) { p.timeout = d }
}

func NewPolicy(store Store, refresher Refresher, log *zap.Logger, opts ...Option) *Policy {
	p := &Policy{
		store:     store,
		refresher: refresher,
		log:       log,
		now:       time.Now,
		timeout:   DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stale reports whether user's access token must be refreshed before use.
func Stale(user *models.User, now time.Time) bool {
	if user.AccessToken == "" || user.TokenExpiry == nil {
		return true
	}
	return !user.TokenExpiry.After(now.Add(RefreshBuffer))
}

// Ensure returns the user for email with an access token valid for at least
// RefreshBuffer, refreshing it when needed.
func (p *Policy) Ensure(ctx context.Context, email string) (*models.User, error) {
	user, err := p.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if !Stale(user, p.now()) {
		return user, nil
	}
	p.log.Info("access token stale, refreshing", zap.String("email", email))
	return p.refresh(ctx, user)
}

// Refresh renews the access token regardless of its expiry.
func (p *Policy) Refresh(ctx context.Context, email string) (*models.User, error) {
	user, err := p.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	return p.refresh(ctx, user)
}

func (p *Policy) lookup(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, apperr.ErrAuthRequired
	}
	user, err := p.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperr.ErrNotAuthenticated
		}
		return nil, err
	}
	if !user.HasSession() {
		return nil, apperr.ErrNotAuthenticated
	}
	return user, nil
}

// refresh coalesces concurrent refreshes for the same email into a single
// provider call. The call outlives the caller that started it but not the
// refresh timeout; each caller stops waiting when its own context ends.
// Every caller gets its own copy of the refreshed record.
func (p *Policy) refresh(ctx context.Context, user *models.User) (*models.User, error) {
	ch := p.group.DoChan(user.Email, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
		defer cancel()
		return p.doRefresh(rctx, user)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		p.log.Warn("stopped waiting for token refresh", zap.String("email", user.Email), zap.Error(ctx.Err()))
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	if res.Shared {
		p.log.Debug("joined in-flight refresh", zap.String("email", user.Email))
	}

	tokens := res.Val.(repository.TokenSet)
	refreshed := *user
	refreshed.AccessToken = tokens.AccessToken
	refreshed.TokenExpiry = &tokens.Expiry
	if tokens.RefreshToken != "" {
		refreshed.RefreshToken = tokens.RefreshToken
	}
	return &refreshed, nil
}

func (p *Policy) doRefresh(ctx context.Context, user *models.User) (repository.TokenSet, error) {
	token, err := p.refresher.Refresh(ctx, user.RefreshToken)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			// the grant itself was rejected, the stored credentials are dead
			p.log.Warn("refresh token rejected, clearing credentials",
				zap.String("email", user.Email), zap.Error(err))
			if clearErr := p.store.ClearTokens(ctx, user.Email, nil); clearErr != nil {
				p.log.Error("failed to clear tokens", zap.String("email", user.Email), zap.Error(clearErr))
			}
		} else {
			p.log.Error("token refresh failed", zap.String("email", user.Email), zap.Error(err))
		}
		return repository.TokenSet{}, apperr.Wrap(apperr.ErrSessionExpired, err)
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = p.now().Add(DefaultLifetime)
	}
	tokens := repository.TokenSet{
		AccessToken: token.AccessToken,
		Expiry:      expiry,
	}
	if token.RefreshToken != "" && token.RefreshToken != user.RefreshToken {
		tokens.RefreshToken = token.RefreshToken
	}

	if err := p.store.UpdateTokens(ctx, user.Email, tokens); err != nil {
		return repository.TokenSet{}, err
	}
	p.log.Info("token refreshed", zap.String("email", user.Email), zap.Time("expiry", expiry))
	return tokens, nil
}
