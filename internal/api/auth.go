package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rechtstreeks/internal/domain"
)

type ctxKey int

const (
	userKey ctxKey = iota
	caseKey
)

// RequireBearer resolves the bearer token to a user id; unknown tokens get 401.
func RequireBearer(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			user, known := tokens[strings.TrimSpace(token)]
			if !ok || !known || strings.TrimSpace(token) == "" {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "missing or invalid bearer token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
		})
	}
}

func userFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}

// loadCase resolves {caseId} for the current user. Cases of other users are reported as missing.
func (h *Handler) loadCase(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caseID := chi.URLParam(r, "caseId")
		c, err := h.store.GetCase(r.Context(), caseID)
		if err == nil && c.OwnerID != userFrom(r.Context()) {
			err = domain.NotFoundf("case %s", caseID)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), caseKey, c)))
	})
}

func caseFrom(ctx context.Context) domain.Case {
	c, _ := ctx.Value(caseKey).(domain.Case)
	return c
}
