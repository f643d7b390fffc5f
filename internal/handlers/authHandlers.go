package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/markbates/goth/gothic"
	"github.com/rs/zerolog/log"

	"fitpass/internal/services"
	"fitpass/internal/utils"
)

type AuthHandler struct {
	authService   services.AuthService
	secureCookies bool
}

func NewAuthHandler(authService services.AuthService, secureCookies bool) *AuthHandler {
	return &AuthHandler{authService: authService, secureCookies: secureCookies}
}

func (a *AuthHandler) ProviderAuth(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if provider == "" {
		log.Error().Msg("Provider not specified in URL")
		utils.RespondWithError(w, http.StatusBadRequest, "Provider not specified")
		return
	}

	log.Info().Str("provider", provider).Msg("Initiating authentication with provider")
	gothic.BeginAuthHandler(w, gothic.GetContextWithProvider(r, provider))
}

func (a *AuthHandler) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	r = gothic.GetContextWithProvider(r, mux.Vars(r)["provider"])
	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		log.Error().Err(err).Msg("Error completing user authentication")
		http.Redirect(w, r, "/api/auth/error", http.StatusTemporaryRedirect)
		return
	}

	token, err := a.authService.HandleLogin(r.Context(), gothUser)
	if err != nil {
		log.Error().Err(err).Str("provider", gothUser.Provider).Msg("Error handling login after provider authentication")
		http.Redirect(w, r, "/api/auth/error", http.StatusTemporaryRedirect)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "jwt",
		Value:    token,
		HttpOnly: true,
		Secure:   a.secureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
	})
	http.Redirect(w, r, "/api/auth/success", http.StatusTemporaryRedirect)
}

func (a *AuthHandler) AuthSuccess(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Authentication successful"})
}

func (a *AuthHandler) AuthError(w http.ResponseWriter, r *http.Request) {
	utils.RespondWithError(w, http.StatusBadRequest, "Authentication failed. Please try again.")
}
