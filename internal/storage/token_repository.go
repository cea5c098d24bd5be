package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/room-display/backend/internal/storage/models"
)

// TokenRepository stores OAuth credentials for external providers.
type TokenRepository struct {
	BaseRepository
}

// NewTokenRepository creates a new token repository.
func NewTokenRepository(db *DB) *TokenRepository {
	return &TokenRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get returns the stored token for provider, or nil when none has been saved.
func (r *TokenRepository) Get(ctx context.Context, provider string) (*models.ProviderToken, error) {
	var tok models.ProviderToken
	var expiresAt sql.NullString
	var updatedAt string

	err := r.DB().QueryRowContext(ctx, `
		SELECT provider, access_token, refresh_token, token_type, expires_at, scope, updated_at
		FROM provider_tokens WHERE provider = ?
	`, provider).Scan(
		&tok.Provider, &tok.AccessToken, &tok.RefreshToken, &tok.TokenType,
		&expiresAt, &tok.Scope, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying token: %w", err)
	}

	if tok.ExpiresAt, err = parseNullTime(expiresAt); err != nil {
		return nil, err
	}
	if tok.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &tok, nil
}

// Save inserts or replaces the token for tok.Provider.
func (r *TokenRepository) Save(ctx context.Context, tok *models.ProviderToken) error {
	tok.UpdatedAt = r.Now()
	if tok.TokenType == "" {
		tok.TokenType = "Bearer"
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO provider_tokens (provider, access_token, refresh_token, token_type, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`,
		tok.Provider, tok.AccessToken, tok.RefreshToken, tok.TokenType,
		formatNullTime(tok.ExpiresAt), tok.Scope, formatTime(tok.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	return nil
}
