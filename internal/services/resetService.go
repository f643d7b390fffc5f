package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"fitpass/internal/metrics"
	"fitpass/internal/models"
	"fitpass/internal/repositories"
	"fitpass/internal/utils"
)

// bcrypt ignores input past 72 bytes.
const maxPasswordLength = 72

// PasswordResetService runs the reset-by-code flow: issue a code, exchange
// it for a reset token, then spend the token on a new password.
type PasswordResetService interface {
	RequestCode(ctx context.Context, identifier string, channel models.Channel) (*CodeReceipt, error)
	VerifyCode(ctx context.Context, identifier, code string) (*models.VerifyOTPResponse, error)
	CommitPassword(ctx context.Context, identifier, resetToken, password, confirmation string) error
	Pending(ctx context.Context, identifier string) (*models.PendingReset, error)
	Cleanup(ctx context.Context) (int64, error)
}

// CodeReceipt describes an accepted code request. MessageID is empty when
// no notification was queued.
type CodeReceipt struct {
	Identifier string
	Channel    models.Channel
	MessageID  string
}

// Cooldown gates how often a code may be issued per identifier.
type Cooldown interface {
	AllowAt(key string, now time.Time) bool
	NextAllowedAt(key string, now time.Time) time.Time
}

type ResetConfig struct {
	CodeTTL           time.Duration
	TokenTTL          time.Duration
	MaxAttempts       int
	MinPasswordLength int
	Retention         time.Duration
	// ConcealUnknown answers unknown identifiers with the generic success
	// response instead of a field error.
	ConcealUnknown bool
}

func DefaultResetConfig() ResetConfig {
	return ResetConfig{
		CodeTTL:           15 * time.Minute,
		TokenTTL:          10 * time.Minute,
		MaxAttempts:       5,
		MinPasswordLength: 8,
		Retention:         24 * time.Hour,
	}
}

type ResetOption func(*passwordResetService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ResetOption {
	return func(s *passwordResetService) { s.now = now }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) ResetOption {
	return func(s *passwordResetService) { s.newCode = gen }
}

// WithTokenGenerator replaces the random reset token source.
func WithTokenGenerator(gen func() (string, error)) ResetOption {
	return func(s *passwordResetService) { s.newToken = gen }
}

type passwordResetService struct {
	users      repositories.UserRepository
	resets     repositories.ResetRequestRepository
	dispatcher Dispatcher
	hasher     *utils.Hasher
	cooldown   Cooldown
	cfg        ResetConfig

	now      func() time.Time
	newCode  func() (string, error)
	newToken func() (string, error)
}

func NewPasswordResetService(
	users repositories.UserRepository,
	resets repositories.ResetRequestRepository,
	dispatcher Dispatcher,
	hasher *utils.Hasher,
	cooldown Cooldown,
	cfg ResetConfig,
	opts ...ResetOption,
) PasswordResetService {
	s := &passwordResetService{
		users:      users,
		resets:     resets,
		dispatcher: dispatcher,
		hasher:     hasher,
		cooldown:   cooldown,
		cfg:        cfg,
		now:        time.Now,
		newCode:    func() (string, error) { return utils.GenerateSecureOTP(utils.OTPLength) },
		newToken:   utils.GenerateResetToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// clock returns the current time at the millisecond precision Mongo stores.
func (s *passwordResetService) clock() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func identifierError(err error) models.ValidationErrors {
	return models.ValidationErrors{{Field: "identifier", Message: err.Error(), Err: err}}
}

func (s *passwordResetService) findUser(ctx context.Context, identifier string, channel models.Channel) (*models.User, error) {
	if channel == models.ChannelPhone {
		return s.users.FindByPhone(ctx, identifier)
	}
	return s.users.FindByEmail(ctx, identifier)
}

func (s *passwordResetService) RequestCode(ctx context.Context, rawIdentifier string, channel models.Channel) (*CodeReceipt, error) {
	identifier, channel, err := utils.NormalizeIdentifier(rawIdentifier, channel)
	if err != nil {
		return nil, identifierError(err)
	}
	masked := utils.MaskIdentifier(identifier)
	now := s.clock()

	if !s.cooldown.AllowAt(identifier, now) {
		metrics.ResetCodeRequestsRejectedTotal.WithLabelValues("rate_limited").Inc()
		log.Warn().Str("identifier", masked).Msg("Reset code requested during cooldown")
		return nil, ErrRateLimited
	}

	receipt := &CodeReceipt{Identifier: identifier, Channel: channel}

	user, err := s.findUser(ctx, identifier, channel)
	if err != nil && !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to resolve identifier: %w", err)
	}
	if user == nil || !user.Active {
		metrics.ResetCodeRequestsRejectedTotal.WithLabelValues("unknown_identifier").Inc()
		log.Info().Str("identifier", masked).Bool("concealed", s.cfg.ConcealUnknown).Msg("Reset code requested for unknown identifier")
		if s.cfg.ConcealUnknown {
			return receipt, nil
		}
		return nil, models.ValidationErrors{{Field: "identifier", Message: ErrUnknownIdentifier.Error(), Err: ErrUnknownIdentifier}}
	}

	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reset code: %w", err)
	}

	req := &models.ResetRequest{
		Identifier: identifier,
		RequestID:  uuid.NewString(),
		UserID:     user.ID,
		Channel:    channel,
		CodeHash:   utils.HashSecret(code),
		IssuedAt:   now,
		ExpiresAt:  now.Add(s.cfg.CodeTTL),
	}
	if err := s.resets.Replace(ctx, req); err != nil {
		return nil, err
	}

	messageID, err := s.dispatcher.Dispatch(ctx, Notification{
		ID:        uuid.NewString(),
		Channel:   channel,
		To:        identifier,
		Code:      code,
		ExpiresIn: s.cfg.CodeTTL,
	})
	if err != nil {
		metrics.ResetCodeRequestsRejectedTotal.WithLabelValues("queue_unavailable").Inc()
		log.Error().Err(err).Str("identifier", masked).Str("request_id", req.RequestID).Msg("Could not queue reset code")
		if errors.Is(err, ErrDeliveryUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrDeliveryUnavailable, err)
	}

	metrics.ResetCodesIssuedTotal.WithLabelValues(string(channel)).Inc()
	log.Info().
		Str("identifier", masked).
		Str("request_id", req.RequestID).
		Str("message_id", messageID).
		Str("channel", string(channel)).
		Time("expires_at", req.ExpiresAt).
		Msg("Reset code issued")

	receipt.MessageID = messageID
	return receipt, nil
}

func (s *passwordResetService) VerifyCode(ctx context.Context, rawIdentifier, code string) (*models.VerifyOTPResponse, error) {
	identifier, _, err := utils.NormalizeIdentifier(rawIdentifier, "")
	if err != nil {
		return nil, identifierError(err)
	}
	masked := utils.MaskIdentifier(identifier)
	now := s.clock()

	req, err := s.resets.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if req == nil || req.ConsumedAt != nil || req.VerifiedAt != nil {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		log.Warn().Str("identifier", masked).Msg("Code submitted with no pending reset")
		return nil, ErrInvalidOTP
	}
	if now.After(req.ExpiresAt) {
		metrics.OTPVerificationsTotal.WithLabelValues("expired").Inc()
		log.Info().Str("identifier", masked).Str("request_id", req.RequestID).Msg("Expired code submitted")
		return nil, ErrExpiredOTP
	}

	attempts, reserved, err := s.resets.ReserveAttempt(ctx, identifier, req.RequestID, s.cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}
	if !reserved {
		return nil, s.unreservedAttempt(ctx, identifier, req.RequestID)
	}

	if !utils.SecretEqual(code, req.CodeHash) {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		log.Warn().
			Str("identifier", masked).
			Str("request_id", req.RequestID).
			Int("attempts", attempts).
			Msg("Incorrect reset code")
		return nil, ErrInvalidOTP
	}

	token, err := s.newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate reset token: %w", err)
	}
	tokenExpiresAt := now.Add(s.cfg.TokenTTL)
	ok, err := s.resets.MarkVerified(ctx, identifier, req.RequestID, s.cfg.MaxAttempts, now, utils.HashSecret(token), tokenExpiresAt)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		log.Warn().Str("identifier", masked).Str("request_id", req.RequestID).Msg("Code was verified or replaced concurrently")
		return nil, ErrInvalidOTP
	}

	metrics.OTPVerificationsTotal.WithLabelValues("success").Inc()
	log.Info().Str("identifier", masked).Str("request_id", req.RequestID).Msg("Reset code verified")
	return &models.VerifyOTPResponse{ResetToken: token, ExpiresAt: tokenExpiresAt}, nil
}

// unreservedAttempt explains why no attempt could be counted: either the
// issuance is out of attempts or it was verified or replaced in between.
func (s *passwordResetService) unreservedAttempt(ctx context.Context, identifier, requestID string) error {
	masked := utils.MaskIdentifier(identifier)
	current, err := s.resets.FindByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if current == nil || current.RequestID != requestID || current.VerifiedAt != nil || current.ConsumedAt != nil {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		log.Warn().Str("identifier", masked).Str("request_id", requestID).Msg("Code was verified or replaced concurrently")
		return ErrInvalidOTP
	}
	metrics.OTPVerificationsTotal.WithLabelValues("locked").Inc()
	log.Warn().Str("identifier", masked).Str("request_id", requestID).Msg("Code submitted after attempt limit")
	return ErrTooManyAttempts
}

// passwordPolicy reports length failures against the bcrypt-safe window.
func passwordPolicy(password string, minLength int) models.ValidationErrors {
	switch {
	case len(password) < minLength:
		return models.ValidationErrors{{
			Field:   "password",
			Message: fmt.Sprintf("must be at least %d characters", minLength),
			Err:     ErrWeakPassword,
		}}
	case len(password) > maxPasswordLength:
		return models.ValidationErrors{{
			Field:   "password",
			Message: fmt.Sprintf("may not be greater than %d characters", maxPasswordLength),
			Err:     ErrWeakPassword,
		}}
	}
	return nil
}

func (s *passwordResetService) checkPassword(password, confirmation string) error {
	verrs := passwordPolicy(password, s.cfg.MinPasswordLength)
	if password != confirmation {
		verrs = append(verrs, models.FieldError{
			Field:   "password_confirmation",
			Message: "does not match password",
			Err:     ErrPasswordMismatch,
		})
	}
	if len(verrs) > 0 {
		return verrs
	}
	return nil
}

func (s *passwordResetService) CommitPassword(ctx context.Context, rawIdentifier, resetToken, password, confirmation string) error {
	if err := s.checkPassword(password, confirmation); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	identifier, _, err := utils.NormalizeIdentifier(rawIdentifier, "")
	if err != nil || resetToken == "" {
		metrics.PasswordResetsTotal.WithLabelValues("unauthorized").Inc()
		return ErrUnauthorizedReset
	}
	masked := utils.MaskIdentifier(identifier)

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	req, err := s.resets.Consume(ctx, identifier, utils.HashSecret(resetToken), s.clock())
	if err != nil {
		return err
	}
	if req == nil {
		metrics.PasswordResetsTotal.WithLabelValues("unauthorized").Inc()
		log.Warn().Str("identifier", masked).Msg("Password reset with invalid token")
		return ErrUnauthorizedReset
	}

	if err := s.users.UpdatePassword(ctx, req.UserID, hash); err != nil {
		metrics.PasswordResetsTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("identifier", masked).Str("user_id", req.UserID.Hex()).Msg("Reset token spent but password update failed")
		return fmt.Errorf("%w: %w", ErrPasswordNotSaved, err)
	}

	metrics.PasswordResetsTotal.WithLabelValues("success").Inc()
	log.Info().Str("identifier", masked).Str("user_id", req.UserID.Hex()).Str("request_id", req.RequestID).Msg("Password reset completed")
	return nil
}

func (s *passwordResetService) Pending(ctx context.Context, rawIdentifier string) (*models.PendingReset, error) {
	identifier, _, err := utils.NormalizeIdentifier(rawIdentifier, "")
	if err != nil {
		return nil, ErrNoPendingReset
	}
	now := s.clock()

	req, err := s.resets.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if req.State(now) != models.ResetIssued {
		return nil, ErrNoPendingReset
	}

	left := s.cfg.MaxAttempts - req.Attempts
	if left < 0 {
		left = 0
	}
	return &models.PendingReset{
		Identifier:        utils.MaskIdentifier(identifier),
		Channel:           req.Channel,
		State:             models.ResetIssued,
		ExpiresAt:         req.ExpiresAt,
		ResendAvailableAt: s.cooldown.NextAllowedAt(identifier, now),
		AttemptsLeft:      left,
	}, nil
}

// Cleanup deletes reset requests that have been dead for longer than the
// retention window.
func (s *passwordResetService) Cleanup(ctx context.Context) (int64, error) {
	cutoff := s.clock().Add(-s.cfg.Retention)
	deleted, err := s.resets.DeleteDead(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge dead reset requests")
		return 0, err
	}
	metrics.ResetRequestsPurgedTotal.Add(float64(deleted))
	log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Purged dead reset requests")
	return deleted, nil
}
