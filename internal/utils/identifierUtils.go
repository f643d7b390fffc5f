package utils

import (
	"errors"
	"net/mail"
	"strings"

	"fitpass/internal/models"
)

var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrInvalidPhone = errors.New("invalid phone number")
)

// NormalizeEmail trims and lower-cases an address and checks its syntax.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// NormalizePhone keeps ASCII digits and a leading '+', dropping spaces, dashes,
// dots and parentheses. The result must hold 8 to 15 digits (E.164 bound).
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidPhone
	}

	var b strings.Builder
	b.Grow(len(raw))
	digits := 0
	for i, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	if digits < 8 || digits > 15 {
		return "", ErrInvalidPhone
	}
	return b.String(), nil
}

// NormalizeIdentifier resolves an email or phone identifier and its channel.
// An empty channel is inferred from the identifier's shape; an explicit one
// must agree with it.
func NormalizeIdentifier(raw string, channel models.Channel) (string, models.Channel, error) {
	inferred := models.ChannelPhone
	if strings.Contains(raw, "@") {
		inferred = models.ChannelEmail
	}
	if channel != "" && channel != inferred {
		if channel == models.ChannelEmail {
			return "", "", ErrInvalidEmail
		}
		return "", "", ErrInvalidPhone
	}

	if inferred == models.ChannelEmail {
		email, err := NormalizeEmail(raw)
		return email, models.ChannelEmail, err
	}
	phone, err := NormalizePhone(raw)
	return phone, models.ChannelPhone, err
}

// MaskIdentifier hides most of an email local part or phone number for logs
// and API responses.
func MaskIdentifier(identifier string) string {
	if at := strings.LastIndex(identifier, "@"); at >= 0 {
		local, domain := identifier[:at], identifier[at:]
		if len(local) <= 1 {
			return "*" + domain
		}
		return local[:1] + strings.Repeat("*", len(local)-1) + domain
	}
	if len(identifier) <= 4 {
		return strings.Repeat("*", len(identifier))
	}
	return strings.Repeat("*", len(identifier)-4) + identifier[len(identifier)-4:]
}
