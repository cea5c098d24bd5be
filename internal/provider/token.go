package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/logging"
	"github.com/room-display/backend/internal/storage/models"
)

// TokenHook supplies a usable access token before each external call.
// Implementations refresh expired tokens; the adapters never do.
type TokenHook interface {
	Token(ctx context.Context, provider string) (*oauth2.Token, error)
}

// TokenStore persists provider credentials.
type TokenStore interface {
	Get(ctx context.Context, provider string) (*models.ProviderToken, error)
	Save(ctx context.Context, tok *models.ProviderToken) error
}

var (
	errNotConnected = errors.New("calendar account not connected")
	errExpired      = errors.New("access token expired and no OAuth client is configured to refresh it")
)

// StoredTokens is a TokenHook over a TokenStore. Tokens are refreshed with
// the provider's OAuth client config and written back when they change.
type StoredTokens struct {
	store   TokenStore
	configs map[string]*oauth2.Config
	client  *http.Client
	logger  *zap.Logger

	mu sync.Mutex
}

// NewStoredTokens creates a hook reading from store.
func NewStoredTokens(store TokenStore, logger *zap.Logger) *StoredTokens {
	return &StoredTokens{
		store:   store,
		configs: make(map[string]*oauth2.Config),
		logger:  logging.OrNop(logger),
	}
}

// WithOAuthClient registers the refresh config for provider.
func (s *StoredTokens) WithOAuthClient(provider string, cfg *oauth2.Config) *StoredTokens {
	s.configs[provider] = cfg
	return s
}

// WithHTTPClient sets the client used for refresh requests.
func (s *StoredTokens) WithHTTPClient(c *http.Client) *StoredTokens {
	s.client = c
	return s
}

// GoogleOAuth returns the refresh config for Google Calendar.
func GoogleOAuth(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
	}
}

// MicrosoftOAuth returns the refresh config for Microsoft Graph.
func MicrosoftOAuth(clientID, clientSecret, tenant string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		Scopes:       []string{"offline_access", "Calendars.ReadWrite"},
	}
}

// Token returns a valid token for provider, refreshing it when needed.
func (s *StoredTokens) Token(ctx context.Context, provider string) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.Get(ctx, provider)
	if err != nil {
		return nil, apperror.Provider(provider, "load token", err)
	}
	if stored == nil {
		return nil, unauthorized(provider, errNotConnected)
	}

	tok := &oauth2.Token{
		AccessToken:  stored.AccessToken,
		RefreshToken: stored.RefreshToken,
		TokenType:    stored.TokenType,
	}
	if stored.ExpiresAt != nil {
		tok.Expiry = *stored.ExpiresAt
	}

	cfg, ok := s.configs[provider]
	if !ok {
		if !tok.Valid() {
			return nil, unauthorized(provider, errExpired)
		}
		return tok, nil
	}

	if s.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	}
	fresh, err := cfg.TokenSource(ctx, tok).Token()
	if err != nil {
		return nil, unauthorized(provider, fmt.Errorf("refreshing token: %w", err))
	}

	if fresh.AccessToken != tok.AccessToken {
		s.logger.Info("provider token refreshed", zap.String("provider", provider), zap.Time("expiry", fresh.Expiry))
		if err := s.store.Save(ctx, toModel(provider, fresh, stored)); err != nil {
			s.logger.Warn("saving refreshed token", zap.String("provider", provider), zap.Error(err))
		}
	}

	return fresh, nil
}

func toModel(provider string, tok *oauth2.Token, prev *models.ProviderToken) *models.ProviderToken {
	out := &models.ProviderToken{
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Scope:        prev.Scope,
	}
	if out.RefreshToken == "" {
		out.RefreshToken = prev.RefreshToken
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC().Truncate(time.Second)
		out.ExpiresAt = &expiry
	}
	return out
}

func unauthorized(provider string, err error) error {
	return &apperror.ProviderError{Provider: provider, Op: "authorize", Unauthorized: true, Err: err}
}

// authorizedClient runs the pre-call hook and returns an HTTP client carrying the token.
func authorizedClient(ctx context.Context, hook TokenHook, provider string, base *http.Client) (*http.Client, error) {
	if hook == nil {
		return nil, unauthorized(provider, errNotConnected)
	}
	tok, err := hook.Token(ctx, provider)
	if err != nil {
		return nil, err
	}
	if base != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	}
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)), nil
}
