// Package auth issues and verifies signed principal tokens. The token is a
// base64url JSON payload plus an HMAC-SHA256 signature; callers outside the
// core authenticate users and mint tokens, the API verifies them and extracts
// the principal.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/clipbid/marketplace/internal/models"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token expired")
)

// payload structure for encoding/decoding
type payload struct {
	UserID string `json:"u"`
	Role   string `json:"r"`
	Admin  bool   `json:"a,omitempty"`
	TS     int64  `json:"t"`
}

// Generate creates a signed token carrying the principal.
func Generate(p models.Principal, secret []byte) (string, error) {
	pl := payload{
		UserID: p.UserID,
		Role:   p.Role,
		Admin:  p.Admin,
		TS:     time.Now().Unix(),
	}
	data, err := json.Marshal(pl)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	sig := mac.Sum(nil)

	enc := base64.RawURLEncoding
	return enc.EncodeToString(data) + "." + enc.EncodeToString(sig), nil
}

// Verify checks the token integrity and expiry and returns the principal.
func Verify(token string, secret []byte, ttl time.Duration) (models.Principal, error) {
	var p models.Principal

	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return p, ErrInvalid
	}
	enc := base64.RawURLEncoding
	data, err := enc.DecodeString(parts[0])
	if err != nil {
		return p, ErrInvalid
	}
	sig, err := enc.DecodeString(parts[1])
	if err != nil {
		return p, ErrInvalid
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return p, ErrInvalid
	}

	var pl payload
	if err := json.Unmarshal(data, &pl); err != nil {
		return p, ErrInvalid
	}
	if ttl > 0 && time.Since(time.Unix(pl.TS, 0)) > ttl {
		return p, ErrExpired
	}

	p.UserID = pl.UserID
	p.Role = pl.Role
	p.Admin = pl.Admin || pl.Role == models.RoleAdmin
	return p, nil
}
