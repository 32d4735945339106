package middlewarex

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"fuelpay/internal/config"
)

// StationAuth guards the POS-facing API with the shared station token. The
// X-Station-ID header, when present, is threaded through the request context
// so payment records carry the station that initiated them.
func StationAuth(cfg config.Cfg) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Sec.StationToken == "" {
				http.Error(w, "station token not configured", http.StatusServiceUnavailable)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(auth, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Sec.StationToken)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := r.Context()
			if station := strings.TrimSpace(r.Header.Get("X-Station-ID")); station != "" {
				ctx = WithStationID(ctx, station)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
