package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/models"
	"fitpass/internal/repositories"
	"fitpass/internal/utils"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
)

// UserIDFromContext returns the authenticated user's id set by AuthMiddleware.
func UserIDFromContext(ctx context.Context) (primitive.ObjectID, bool) {
	id, ok := ctx.Value(userIDKey).(primitive.ObjectID)
	return id, ok
}

// RoleFromContext returns the authenticated user's role set by AuthMiddleware.
func RoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(roleKey).(models.Role)
	return role, ok
}

// WithUser stores an authenticated identity in ctx.
func WithUser(ctx context.Context, userID primitive.ObjectID, role models.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, userID)
	return context.WithValue(ctx, roleKey, role)
}

type Authenticator struct {
	secret []byte
	users  repositories.UserRepository
}

func NewAuthenticator(secret []byte, users repositories.UserRepository) *Authenticator {
	return &Authenticator{secret: secret, users: users}
}

// AuthMiddleware accepts a Bearer JWT only if it was issued for the user's
// current session version, so a password change logs out older tokens.
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(a.secret) == 0 {
			log.Error().Msg("JWT secret is not configured, authentication will fail")
			utils.RespondWithError(w, http.StatusInternalServerError, "Server configuration error")
			return
		}

		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			utils.RespondWithError(w, http.StatusUnauthorized, "Missing token")
			return
		}
		if !strings.HasPrefix(tokenString, "Bearer ") {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token format")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := utils.ParseJWT(a.secret, tokenString)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		userID, err := primitive.ObjectIDFromHex(claims.ID)
		if err != nil {
			utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := a.users.FindByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, repositories.ErrUserNotFound) {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}
			log.Error().Err(err).Str("user_id", userID.Hex()).Msg("Failed to load user for token")
			utils.RespondWithError(w, http.StatusInternalServerError, "Something went wrong, try again later")
			return
		}
		if user.SessionVersion != claims.SessionVersion || !user.Active {
			log.Info().Str("user_id", userID.Hex()).Msg("Rejected token from an earlier session")
			utils.RespondWithError(w, http.StatusUnauthorized, "Session expired, please log in again")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user.ID, user.Role)))
	})
}

// RequirePermission lets a request through only when the authenticated
// role satisfies allowed, e.g. models.Role.CanManageAccounts.
func RequirePermission(allowed func(models.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := RoleFromContext(r.Context())
			if !ok {
				utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			if !allowed(role) {
				utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
