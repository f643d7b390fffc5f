package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"fitpass/internal/models"
	"fitpass/internal/repositories"
	"fitpass/internal/services"
	"fitpass/internal/utils"
)

const genericFailure = "Something went wrong, try again later"

// respondWithServiceError maps service and repository errors onto HTTP
// responses. Anything unrecognised is logged and reported as a 500.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs models.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		utils.RespondWithValidationErrors(w, verrs)
	case errors.Is(err, services.ErrInvalidOTP), errors.Is(err, services.ErrExpiredOTP):
		utils.RespondWithValidationErrors(w, models.ValidationErrors{{Field: "otp", Message: err.Error(), Err: err}})
	case errors.Is(err, services.ErrRateLimited), errors.Is(err, services.ErrTooManyAttempts):
		utils.RespondWithError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, services.ErrUnauthorizedReset), errors.Is(err, services.ErrInvalidCredentials):
		utils.RespondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, services.ErrAccountDisabled):
		utils.RespondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrAccountExists):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrNoProfileChanges):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrUserNotFound), errors.Is(err, services.ErrNoPendingReset):
		utils.RespondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrPasswordNotSaved):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("Password reset left incomplete")
		utils.RespondWithError(w, http.StatusInternalServerError, services.ErrPasswordNotSaved.Error())
	case errors.Is(err, services.ErrDeliveryUnavailable):
		utils.RespondWithError(w, http.StatusServiceUnavailable, services.ErrDeliveryUnavailable.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Unhandled error")
		utils.RespondWithError(w, http.StatusInternalServerError, genericFailure)
	}
}

// decodeAndValidate reads a JSON body into dst and checks its validator tags.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := utils.DecodeJSON(w, r, dst); err != nil {
		log.Warn().Err(err).Str("path", r.URL.Path).Msg("Invalid request body")
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if verrs := utils.ValidateStruct(dst); len(verrs) > 0 {
		utils.RespondWithValidationErrors(w, verrs)
		return false
	}
	return true
}
