package utils

import (
	"crypto/rand"
	"encoding/base64"
	"io"
)

// GenerateResetToken returns an opaque, URL-safe token backed by 32 random bytes.
func GenerateResetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
