package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"
)

const OTPLength = 6

// GenerateSecureOTP returns a numeric code of the given length drawn uniformly
// from crypto/rand.
func GenerateSecureOTP(length int) (string, error) {
	const otpChars = "0123456789"
	buffer := make([]byte, length)
	max := big.NewInt(int64(len(otpChars)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buffer[i] = otpChars[n.Int64()]
	}
	return string(buffer), nil
}

// HashSecret returns the hex SHA-256 of a code or token for storage.
func HashSecret(secret string) string {
	h := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(h[:])
}

// SecretEqual compares a submitted secret against its stored hash in constant time.
func SecretEqual(provided, storedHash string) bool {
	if provided == "" || storedHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashSecret(provided)), []byte(storedHash)) == 1
}
