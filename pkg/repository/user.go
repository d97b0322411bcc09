package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sharmaanmol256/new-calendar/pkg/models"
)

var ErrUserNotFound = errors.New("user not found")

// Login is what a successful OAuth callback knows about the user.
type Login struct {
	Email        string
	Name         string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	At           time.Time
}

// TokenSet is the result of a refresh grant.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// UserRepository persists users with GORM.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpsertLogin inserts or updates the user keyed by email. Zero fields of the
// assigned struct are skipped by GORM, so an empty RefreshToken keeps the
// stored one: providers do not reissue it on every consent.
func (r *UserRepository) UpsertLogin(ctx context.Context, login Login) (*models.User, error) {
	expiry := login.Expiry
	assign := models.User{
		Email:        login.Email,
		Name:         login.Name,
		AccessToken:  login.AccessToken,
		RefreshToken: login.RefreshToken,
		TokenExpiry:  &expiry,
		LastLogin:    login.At,
	}

	var user models.User
	err := r.db.WithContext(ctx).
		Where(models.User{Email: login.Email}).
		Assign(assign).
		FirstOrCreate(&user).Error
	if err != nil {
		return nil, err
	}
	return r.FindByEmail(ctx, login.Email)
}

// UpdateTokens stores a refreshed token set. The refresh token is only
// replaced when the provider rotated it.
func (r *UserRepository) UpdateTokens(ctx context.Context, email string, tokens TokenSet) error {
	updates := map[string]interface{}{
		"access_token": tokens.AccessToken,
		"token_expiry": tokens.Expiry,
	}
	if tokens.RefreshToken != "" {
		updates["refresh_token"] = tokens.RefreshToken
	}
	return r.update(ctx, email, updates)
}

// ClearTokens drops every stored credential but keeps the record. A non-nil
// logoutAt is recorded as the last logout.
func (r *UserRepository) ClearTokens(ctx context.Context, email string, logoutAt *time.Time) error {
	updates := map[string]interface{}{
		"access_token":  "",
		"refresh_token": "",
		"token_expiry":  nil,
	}
	if logoutAt != nil {
		updates["last_logout"] = *logoutAt
	}
	return r.update(ctx, email, updates)
}

func (r *UserRepository) update(ctx context.Context, email string, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
