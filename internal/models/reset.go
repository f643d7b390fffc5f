package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Channel is the delivery path of a reset code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelPhone:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// ResetState is the lifecycle position of an identifier's reset request.
type ResetState string

const (
	ResetNone     ResetState = "none"
	ResetIssued   ResetState = "issued"
	ResetVerified ResetState = "verified"
	ResetConsumed ResetState = "consumed"
	ResetExpired  ResetState = "expired"
)

// ResetRequest is the single reset attempt stored per identifier. Issuing a new
// code replaces the document, which invalidates any earlier code or token.
type ResetRequest struct {
	Identifier     string             `bson:"_id"`
	RequestID      string             `bson:"request_id"`
	UserID         primitive.ObjectID `bson:"user_id"`
	Channel        Channel            `bson:"channel"`
	CodeHash       string             `bson:"code_hash"`
	Attempts       int                `bson:"attempts"`
	IssuedAt       time.Time          `bson:"issued_at"`
	ExpiresAt      time.Time          `bson:"expires_at"`
	VerifiedAt     *time.Time         `bson:"verified_at,omitempty"`
	TokenHash      string             `bson:"token_hash,omitempty"`
	TokenExpiresAt *time.Time         `bson:"token_expires_at,omitempty"`
	ConsumedAt     *time.Time         `bson:"consumed_at,omitempty"`
}

// State derives the lifecycle state at now. TTLs are evaluated lazily here
// rather than by a timer.
func (r *ResetRequest) State(now time.Time) ResetState {
	switch {
	case r == nil:
		return ResetNone
	case r.ConsumedAt != nil:
		return ResetConsumed
	case r.VerifiedAt != nil:
		if r.TokenExpiresAt == nil || now.After(*r.TokenExpiresAt) {
			return ResetExpired
		}
		return ResetVerified
	case now.After(r.ExpiresAt):
		return ResetExpired
	default:
		return ResetIssued
	}
}

// DeadSince returns the moment after which the row can no longer change state
// other than by being replaced. Consumed rows are dead from consumption.
func (r *ResetRequest) DeadSince() time.Time {
	if r.ConsumedAt != nil {
		return *r.ConsumedAt
	}
	if r.TokenExpiresAt != nil && r.TokenExpiresAt.After(r.ExpiresAt) {
		return *r.TokenExpiresAt
	}
	return r.ExpiresAt
}

// PendingReset is the public view of an issued, unverified request.
type PendingReset struct {
	Identifier        string     `json:"identifier"`
	Channel           Channel    `json:"channel"`
	State             ResetState `json:"state"`
	ExpiresAt         time.Time  `json:"expires_at"`
	ResendAvailableAt time.Time  `json:"resend_available_at"`
	AttemptsLeft      int        `json:"attempts_left"`
}

type SendOTPRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Channel    string `json:"channel" validate:"omitempty,oneof=email phone"`
}

// VerifyOTPRequest and ResetPasswordRequest may omit the identifier when the
// reset form session still carries it.
type VerifyOTPRequest struct {
	Identifier string `json:"identifier" validate:"omitempty,max=254"`
	OTP        string `json:"otp" validate:"required,len=6,number"`
}

type ResetPasswordRequest struct {
	Identifier           string `json:"identifier" validate:"omitempty,max=254"`
	ResetToken           string `json:"reset_token" validate:"required"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required"`
}

type SendOTPResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

type ResetPasswordResponse struct {
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
}

type VerifyOTPResponse struct {
	ResetToken string    `json:"reset_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}
