package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"fitpass/internal/middlewares"
	"fitpass/internal/models"
	"fitpass/internal/services"
	"fitpass/internal/utils"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (u *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	registeredUser, err := u.userService.RegisterUser(r.Context(), &req)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusCreated, registeredUser)
}

func (u *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var creds models.Login
	if !decodeAndValidate(w, r, &creds) {
		return
	}

	token, err := u.userService.LoginUser(r.Context(), &creds)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (u *UserHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		log.Error().Msg("User ID not found in context for GetMyProfile")
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := u.userService.GetUserProfile(r.Context(), userID)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, user)
}

func (u *UserHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		log.Error().Msg("User ID not found in context for UpdateMyProfile")
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var updatePayload models.UserProfileUpdate
	if !decodeAndValidate(w, r, &updatePayload) {
		return
	}

	updatedUser, err := u.userService.UpdateUserProfile(r.Context(), userID, &updatePayload)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	utils.RespondWithJSON(w, http.StatusOK, updatedUser)
}
