package api

import (
	"fmt"
	"net/http"

	"github.com/npezzotti/go-commhub/internal/database"
)

func (s *CommHubApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error().Err(panicError).Msg("panic")
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *CommHubApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, err := tokenFromRequest(r)
		if err != nil {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		identity, err := s.extractIdentityFromToken(tokenString)
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to extract identity from token")
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		// Mirror the provider-owned identity record so recipient lookups
		// see every identity that has authenticated at least once.
		if _, err := s.db.EnsureIdentity(database.EnsureIdentityParams{
			Id:       identity.Id,
			Username: identity.Username,
		}); err != nil {
			s.log.Error().Err(err).Str("identity", identity.Id).Msg("ensure identity")
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithIdentity(r.Context(), identity)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}
