package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/rs/zerolog/log"

	"fitpass/internal/models"
	"fitpass/internal/services"
	"fitpass/internal/utils"
)

const (
	resetSessionName   = "fitpass_reset"
	resetSessionKey    = "identifier"
	forgotPasswordPath = "/password/forgot"
	loginPath          = "/login"
)

// PasswordResetHandler serves the reset-by-code endpoints. The session
// cookie only remembers which identifier the form is for; every state change
// is authorised by the code or the reset token.
type PasswordResetHandler struct {
	resets services.PasswordResetService
	store  sessions.Store
}

func NewPasswordResetHandler(resets services.PasswordResetService, store sessions.Store) *PasswordResetHandler {
	return &PasswordResetHandler{resets: resets, store: store}
}

func (h *PasswordResetHandler) sessionIdentifier(r *http.Request) string {
	session, err := h.store.Get(r, resetSessionName)
	if err != nil {
		return ""
	}
	identifier, _ := session.Values[resetSessionKey].(string)
	return identifier
}

func (h *PasswordResetHandler) rememberIdentifier(w http.ResponseWriter, r *http.Request, identifier string) {
	session, _ := h.store.Get(r, resetSessionName)
	if identifier == "" {
		delete(session.Values, resetSessionKey)
	} else {
		session.Values[resetSessionKey] = identifier
	}
	if err := session.Save(r, w); err != nil {
		log.Warn().Err(err).Msg("Could not save reset session")
	}
}

// resolveIdentifier falls back to the session when the body omits the identifier.
func (h *PasswordResetHandler) resolveIdentifier(w http.ResponseWriter, r *http.Request, fromBody string) (string, bool) {
	if fromBody != "" {
		return fromBody, true
	}
	if identifier := h.sessionIdentifier(r); identifier != "" {
		return identifier, true
	}
	utils.RespondWithValidationErrors(w, models.ValidationErrors{{Field: "identifier", Message: "is required"}})
	return "", false
}

func (h *PasswordResetHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req models.SendOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	receipt, err := h.resets.RequestCode(r.Context(), req.Identifier, models.Channel(req.Channel))
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	h.rememberIdentifier(w, r, receipt.Identifier)
	utils.RespondWithJSON(w, http.StatusOK, models.SendOTPResponse{
		Message:   "If the account can receive it, a reset code is on its way.",
		MessageID: receipt.MessageID,
	})
}

func (h *PasswordResetHandler) OTPForm(w http.ResponseWriter, r *http.Request) {
	identifier := h.sessionIdentifier(r)
	if identifier == "" {
		http.Redirect(w, r, forgotPasswordPath, http.StatusSeeOther)
		return
	}

	pending, err := h.resets.Pending(r.Context(), identifier)
	if err != nil {
		if errors.Is(err, services.ErrNoPendingReset) {
			http.Redirect(w, r, forgotPasswordPath, http.StatusSeeOther)
			return
		}
		respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, pending)
}

func (h *PasswordResetHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyOTPRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	identifier, ok := h.resolveIdentifier(w, r, req.Identifier)
	if !ok {
		return
	}

	res, err := h.resets.VerifyCode(r.Context(), identifier, req.OTP)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, res)
}

func (h *PasswordResetHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req models.ResetPasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	identifier, ok := h.resolveIdentifier(w, r, req.Identifier)
	if !ok {
		return
	}

	if err := h.resets.CommitPassword(r.Context(), identifier, req.ResetToken, req.Password, req.PasswordConfirmation); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	h.rememberIdentifier(w, r, "")
	utils.RespondWithJSON(w, http.StatusOK, models.ResetPasswordResponse{
		Message:  "Your password has been reset. Please log in.",
		Redirect: loginPath,
	})
}
