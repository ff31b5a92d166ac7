package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/bothub/pkg/composables"
	"github.com/iota-uz/bothub/pkg/httpapi"
)

// WithUser binds the uid found in header to the request context. The header
// is set by the authenticating gateway; requests without it pass through
// anonymous and handlers decide whether that is acceptable.
func WithUser(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(header)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			uid, err := uuid.Parse(raw)
			if err != nil {
				_ = httpapi.WriteError(w, http.StatusUnauthorized, "INVALID_USER", "malformed user header", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(composables.WithUserID(r.Context(), uid)))
		})
	}
}
