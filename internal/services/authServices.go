package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/facebook"
	"github.com/markbates/goth/providers/google"
	"github.com/rs/zerolog/log"

	"fitpass/internal/config"
	"fitpass/internal/models"
	"fitpass/internal/repositories"
	"fitpass/internal/utils"
)

const MaxAge = 86400 * 30

type AuthService interface {
	HandleLogin(ctx context.Context, u goth.User) (string, error)
}

type authService struct {
	userRepo repositories.UserRepository
	tokens   TokenConfig
}

func NewAuthService(userRepo repositories.UserRepository, tokens TokenConfig) AuthService {
	return &authService{userRepo: userRepo, tokens: tokens}
}

// NewCookieStore builds the signed cookie store shared by OAuth state and
// the password reset form hint.
func NewCookieStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionKey))
	store.MaxAge(MaxAge)

	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = cfg.SessionSecure || cfg.IsProduction()
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// InitializeGoth registers the OAuth providers that have credentials configured.
func InitializeGoth(cfg *config.Config, store sessions.Store) {
	gothic.Store = store

	base := strings.TrimRight(cfg.OAuthCallbackBaseURL, "/")
	var providers []goth.Provider
	if cfg.GoogleClientID != "" {
		providers = append(providers, google.New(cfg.GoogleClientID, cfg.GoogleClientSecret, base+"/api/auth/google/callback", "email", "profile"))
	}
	if cfg.FacebookClientID != "" {
		providers = append(providers, facebook.New(cfg.FacebookClientID, cfg.FacebookClientSecret, base+"/api/auth/facebook/callback", "email"))
	}
	goth.UseProviders(providers...)
	log.Info().Int("providers", len(providers)).Msg("Goth providers initialized")
}

func (a *authService) HandleLogin(ctx context.Context, u goth.User) (string, error) {
	if u.Email == "" {
		log.Error().Str("provider", u.Provider).Msg("Missing email in Goth user data")
		return "", errors.New("missing email")
	}
	email, err := utils.NormalizeEmail(u.Email)
	if err != nil {
		return "", err
	}
	masked := utils.MaskIdentifier(email)

	user, err := a.userRepo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		log.Info().Str("email", masked).Msg("User not found, creating new user")
		username := u.NickName
		if username == "" {
			username = u.Name
		}
		user, err = a.userRepo.Create(ctx, &models.User{
			Email:    email,
			Username: username,
			Role:     models.RoleClient,
			Active:   true,
		})
		if err != nil {
			log.Error().Err(err).Str("email", masked).Msg("Error creating new user")
			return "", fmt.Errorf("error creating user: %w", err)
		}
		log.Info().Str("user_id", user.ID.Hex()).Msg("New user created successfully")
	case err != nil:
		log.Error().Err(err).Str("email", masked).Msg("Error finding user by email")
		return "", fmt.Errorf("error finding user by email: %w", err)
	}

	if !user.Active {
		return "", ErrAccountDisabled
	}

	token, err := utils.GenerateJWT(a.tokens.Secret, user, a.tokens.TTL)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.Hex()).Msg("Error generating JWT for user")
		return "", fmt.Errorf("error generating JWT: %w", err)
	}
	log.Info().Str("user_id", user.ID.Hex()).Str("provider", u.Provider).Msg("OAuth login succeeded")
	return token, nil
}
