package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

// TokenSaver stores provider credentials.
type TokenSaver interface {
	Save(ctx context.Context, tok *models.ProviderToken) error
}

// TokenRequest carries credentials obtained from an external OAuth flow.
type TokenRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresAt    *time.Time `json:"expires_at"`
	Scope        string     `json:"scope"`
}

// SaveProviderToken stores the token used for a provider's remote calls.
func SaveProviderToken(tokens TokenSaver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := strings.ToLower(mux.Vars(r)["kind"])
		if kind != models.ProviderGoogle && kind != models.ProviderMicrosoft {
			middleware.WriteAppError(w, apperror.Invalid("provider", "must be google or microsoft"))
			return
		}

		var req TokenRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.AccessToken) == "" {
			middleware.WriteAppError(w, apperror.Invalid("access_token", "is required"))
			return
		}

		tok := &models.ProviderToken{
			Provider:     kind,
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			TokenType:    req.TokenType,
			ExpiresAt:    req.ExpiresAt,
			Scope:        req.Scope,
		}
		if err := tokens.Save(r.Context(), tok); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, tok)
	}
}
