package utils

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"fitpass/internal/models"
)

func TestGenerateSecureOTP_ReturnsDigits(t *testing.T) {
	otp, err := GenerateSecureOTP(OTPLength)
	require.NoError(t, err)
	assert.Len(t, otp, 6)
	for _, c := range otp {
		assert.True(t, c >= '0' && c <= '9', "non-digit %q in %q", c, otp)
	}
}

func TestGenerateSecureOTP_Randomness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		otp, err := GenerateSecureOTP(OTPLength)
		require.NoError(t, err)
		seen[otp] = true
	}
	// 50 draws from 10^6 values; a handful of collisions would already be suspicious.
	assert.Greater(t, len(seen), 45)
}

func TestSecretEqual(t *testing.T) {
	stored := HashSecret("123456")
	assert.Len(t, stored, 64)
	assert.True(t, SecretEqual("123456", stored))
	assert.False(t, SecretEqual("654321", stored))
	assert.False(t, SecretEqual("", stored))
	assert.False(t, SecretEqual("123456", ""))
	assert.False(t, SecretEqual("123456", "a"+stored))
}

func TestGenerateResetToken(t *testing.T) {
	a, err := GenerateResetToken()
	require.NoError(t, err)
	b, err := GenerateResetToken()
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
	assert.NotContains(t, a, "=")
}

func TestJWTRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	user := &models.User{ID: primitive.NewObjectID(), Role: models.RoleTrainer, SessionVersion: 3}

	token, err := GenerateJWT(secret, user, time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(secret, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.ID)
	assert.Equal(t, "trainer", claims.Role)
	assert.Equal(t, 3, claims.SessionVersion)

	_, err = ParseJWT([]byte("other-secret"), token)
	assert.Error(t, err)
}

func TestJWTExpired(t *testing.T) {
	secret := []byte("test-secret")
	user := &models.User{ID: primitive.NewObjectID()}

	token, err := GenerateJWT(secret, user, -time.Minute)
	require.NoError(t, err)

	_, err = ParseJWT(secret, token)
	assert.Error(t, err)
}

func TestHasher(t *testing.T) {
	h := NewHasher(4)
	hash, err := h.Hash("NewPass123!")
	require.NoError(t, err)

	assert.NoError(t, h.Compare(hash, "NewPass123!"))
	assert.Error(t, h.Compare(hash, "OldPass123!"))
	assert.Equal(t, 4, NewHasher(1).Cost)
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		channel models.Channel
		want    string
		wantCh  models.Channel
		wantErr bool
	}{
		{"email lower-cased", "  User@Example.COM ", "", "user@example.com", models.ChannelEmail, false},
		{"email explicit channel", "user@example.com", models.ChannelEmail, "user@example.com", models.ChannelEmail, false},
		{"phone formatting stripped", "+1 (555) 010-9999", "", "+15550109999", models.ChannelPhone, false},
		{"phone without plus", "0612345678", models.ChannelPhone, "0612345678", models.ChannelPhone, false},
		{"phone too short", "12345", "", "", "", true},
		{"phone with letters", "555-CALL-NOW", "", "", "", true},
		{"phone with arabic-indic digits", "٠١٢٣٤٥٦٧٨", "", "", "", true},
		{"phone with fullwidth digits", "+１５５５５５５０１２３", "", "", "", true},
		{"channel mismatch", "user@example.com", models.ChannelPhone, "", "", true},
		{"bad email", "user@", "", "", "", true},
		{"display name rejected", "Bob <bob@example.com>", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ch, err := NormalizeIdentifier(tt.raw, tt.channel)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCh, ch)
		})
	}
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "u***@example.com", MaskIdentifier("user@example.com"))
	assert.Equal(t, "*@example.com", MaskIdentifier("a@example.com"))
	assert.Equal(t, "********9999", MaskIdentifier("+15550109999"))
	assert.Equal(t, "***", MaskIdentifier("123"))
}

func TestValidateStruct(t *testing.T) {
	verrs := ValidateStruct(models.VerifyOTPRequest{Identifier: "", OTP: "12ab"})
	require.Len(t, verrs, 2)
	fields := verrs.Fields()
	assert.Equal(t, []string{"is required"}, fields["identifier"])
	assert.Contains(t, fields, "otp")

	assert.Nil(t, ValidateStruct(models.VerifyOTPRequest{Identifier: "user@example.com", OTP: "123456"}))

	for _, otp := range []string{"-12345", "+12345", "1.2345", "12345.", "١٢٣٤٥٦"} {
		verrs = ValidateStruct(models.VerifyOTPRequest{Identifier: "user@example.com", OTP: otp})
		require.Len(t, verrs, 1, otp)
		assert.Equal(t, []string{"must contain only digits"}, verrs.Fields()["otp"], otp)
	}
}

func TestDecodeJSON(t *testing.T) {
	var req models.SendOTPRequest

	r := httptest.NewRequest("POST", "/", strings.NewReader(`{"identifier":"user@example.com"}`))
	require.NoError(t, DecodeJSON(httptest.NewRecorder(), r, &req))
	assert.Equal(t, "user@example.com", req.Identifier)

	r = httptest.NewRequest("POST", "/", strings.NewReader(`{"identifier":"x","extra":1}`))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), r, &req))

	r = httptest.NewRequest("POST", "/", strings.NewReader(``))
	assert.Error(t, DecodeJSON(httptest.NewRecorder(), r, &req))
}
