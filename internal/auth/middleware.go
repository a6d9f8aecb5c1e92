package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// ContextKey is the type for context keys
type ContextKey string

// AuthenticatedKey marks a context whose request presented a valid token.
const AuthenticatedKey ContextKey = "authenticated"

// ErrUnauthorized is returned for a missing, malformed or wrong token.
var ErrUnauthorized = errors.New("unauthorized")

// Service checks a shared bearer token against a bcrypt hash. A nil Service or an
// empty hash disables authentication.
type Service struct {
	tokenHash []byte
}

// NewService creates a new auth service. tokenHash is a bcrypt hash; empty disables auth.
func NewService(tokenHash string) (*Service, error) {
	if tokenHash == "" {
		return &Service{}, nil
	}
	if _, err := bcrypt.Cost([]byte(tokenHash)); err != nil {
		return nil, fmt.Errorf("API_TOKEN_HASH is not a bcrypt hash: %w", err)
	}
	return &Service{tokenHash: []byte(tokenHash)}, nil
}

// Enabled reports whether requests must carry a token.
func (s *Service) Enabled() bool {
	return s != nil && len(s.tokenHash) > 0
}

// ValidateToken compares a presented token with the configured hash.
func (s *Service) ValidateToken(token string) error {
	if !s.Enabled() {
		return nil
	}
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword(s.tokenHash, []byte(token)); err != nil {
		return fmt.Errorf("%w: invalid token", ErrUnauthorized)
	}
	return nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: missing authorization header", ErrUnauthorized)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", fmt.Errorf("%w: invalid authorization header format", ErrUnauthorized)
	}
	return strings.TrimSpace(parts[1]), nil
}

// Middleware creates an authentication middleware
func (s *Service) Middleware(next http.Handler) http.Handler {
	return s.guard(next, false)
}

// SocketMiddleware guards WebSocket handshakes. Browsers cannot set headers on
// them, so the token may also arrive as the "token" query parameter.
func (s *Service) SocketMiddleware(next http.Handler) http.Handler {
	return s.guard(next, true)
}

func (s *Service) guard(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		var token string
		var err error
		if q := r.URL.Query().Get("token"); allowQuery && header == "" && q != "" {
			token = q
		} else {
			token, err = BearerToken(header)
		}
		if err == nil {
			err = s.ValidateToken(token)
		}
		if err != nil {
			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected request")
			writeJSONError(w, http.StatusUnauthorized, strings.TrimPrefix(err.Error(), ErrUnauthorized.Error()+": "))
			return
		}

		ctx := context.WithValue(r.Context(), AuthenticatedKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IsAuthenticated reports whether the middleware accepted a token for this context.
func IsAuthenticated(ctx context.Context) bool {
	ok, _ := ctx.Value(AuthenticatedKey).(bool)
	return ok
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
