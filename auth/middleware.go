package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/warp/commerce-engine/commerce"
	"github.com/warp/commerce-engine/logging"
)

type contextKey string

const administratorKey contextKey = "administrator"

// Middleware requires "Authorization: Bearer <token>" naming an active
// administrator. Anything else gets a 401.
func Middleware(s *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "Token not provided")
				return
			}

			admin, err := s.Authenticate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrExpiredToken) {
					logging.Error(r.Context()).Err(err).Msg("failed to authenticate request")
				}
				unauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithAdministrator(r.Context(), admin)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error":   "Unauthorized",
		"message": message,
	})
}

func WithAdministrator(ctx context.Context, admin *commerce.Administrator) context.Context {
	return context.WithValue(ctx, administratorKey, admin)
}

// Administrator returns the authenticated administrator, if any.
func Administrator(ctx context.Context) (*commerce.Administrator, bool) {
	admin, ok := ctx.Value(administratorKey).(*commerce.Administrator)
	return admin, ok
}
