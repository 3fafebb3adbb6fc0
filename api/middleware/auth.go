package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcart-backend/api/responses"
	pkgAuth "github.com/angelmondragon/shopcart-backend/pkg/auth"
	"github.com/angelmondragon/shopcart-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/shopcart-backend/pkg/errors"
	"github.com/angelmondragon/shopcart-backend/pkg/logger"
)

const GuestIDHeader = "X-Guest-Id"

// Auth validates a bearer token and seeds the request context with its owner.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			ctx, err := authenticate(r.Context(), cfg, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CartOwner resolves who owns the cart. With requireAuth it behaves like
// Auth; otherwise a bearer token is optional and anonymous callers get a
// guest owner keyed by the X-Guest-Id header, which is issued when absent.
func CartOwner(cfg config.JWTConfig, requireAuth bool, logg *logger.Logger) func(http.Handler) http.Handler {
	if requireAuth {
		return Auth(cfg, logg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := bearerToken(r); token != "" {
				ctx, err := authenticate(r.Context(), cfg, logg, token)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			guestID := strings.TrimSpace(r.Header.Get(GuestIDHeader))
			if guestID == "" {
				guestID = uuid.NewString()
			} else if _, err := uuid.Parse(guestID); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-Guest-Id must be a valid UUID"))
				return
			}
			w.Header().Set(GuestIDHeader, guestID)

			ctx := WithGuestOwner(r.Context(), guestID)
			if logg != nil {
				ctx = logg.WithOwner(ctx, OwnerFromContext(ctx))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	token := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(token) >= 7 && strings.EqualFold(token[:7], "bearer ") {
		token = strings.TrimSpace(token[7:])
	}
	return token
}

func authenticate(ctx context.Context, cfg config.JWTConfig, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	owner := claims.Owner()
	ctx = WithUserID(ctx, owner)
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"user_id":  owner,
			"owner_id": owner,
		})
	}
	return ctx, nil
}
