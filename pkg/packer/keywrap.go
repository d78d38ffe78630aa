package packer

import (
	"crypto/md5" //nolint:gosec // protocol mandated
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultPublicKey is the base64 DER encoded RSA key of the attestation backend.
const DefaultPublicKey = "MIGfMA0GCSqGSIb3DQEBAQUAA4GNADCBiQKBgQCmxMNr7n8ZeT0tE1R9j/mPixoinPkeM+k4VGIn/s0k7N5rJAfnZ0eMER+QhwFvshzo0LNmeUkpR8uIlU/GEVr8mN28sKmwd2gpygqj0ePnBmOW4v0ZVwbSYK+izkhVFk2V/doLoMbWy6b+UnA8mkjvg0iYWRByfRsK2gdl7llqCwIDAQAB"

// SessionKey is the AES-128 key of a single attestation attempt.
type SessionKey [16]byte

// Session is the random material of one attestation attempt. It must not be reused.
type Session struct {
	// Identifier is the raw random identifier; it only leaves the process wrapped.
	Identifier []byte
	// Key is derived from Identifier.
	Key SessionKey
}

// NewSession generates a random identifier and derives its session key.
func NewSession() (*Session, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session identifier: %w", err)
	}
	return SessionFromIdentifier([]byte(id.String())), nil
}

// SessionFromIdentifier derives the session key: the first 16 hex characters of MD5(identifier).
func SessionFromIdentifier(identifier []byte) *Session {
	sum := md5.Sum(identifier) //nolint:gosec // protocol mandated
	var key SessionKey
	copy(key[:], hex.EncodeToString(sum[:])[:len(key)])
	return &Session{Identifier: identifier, Key: key}
}

// ParsePublicKey decodes a base64 DER SubjectPublicKeyInfo holding an RSA key.
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not an RSA key")
	}
	return rsaKey, nil
}

// Wrap encrypts the session identifier under pub with PKCS#1 v1.5 padding and base64 encodes it.
func (s *Session) Wrap(pub *rsa.PublicKey) (string, error) {
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, pub, s.Identifier)
	if err != nil {
		return "", fmt.Errorf("failed to wrap session identifier: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}
