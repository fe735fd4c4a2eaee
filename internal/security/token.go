package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer       = "fitcoach"
	defaultRefreshLen = 64
)

var (
	ErrInvalidToken = errors.New("invalid token")

	accessMethod = jwt.SigningMethodHS512
)

// AccessClaims is the body of a short lived bearer token. SessionID doubles
// as the JWT id so a token dies with its session row.
type AccessClaims struct {
	UserID    string   `json:"uid"`
	SessionID string   `json:"sid"`
	DeviceID  string   `json:"did"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

func GenerateAccessToken(secret string, userID string, sessionID string, deviceID string, roles []string, ttl time.Duration) (string, error) {
	issued := time.Now()
	signed, err := jwt.NewWithClaims(accessMethod, AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		DeviceID:  deviceID,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    tokenIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken wraps every failure in ErrInvalidToken.
func ParseAccessToken(tokenStr string, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithIssuer(tokenIssuer),
		jwt.WithValidMethods([]string{accessMethod.Alg()}),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case claims.UserID == "" || claims.SessionID == "":
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// GenerateRefreshToken returns the opaque token for the client and the hash
// stored server side.
func GenerateRefreshToken(size int) (token string, hash []byte, err error) {
	if size <= 0 {
		size = defaultRefreshLen
	}
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("read random: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, HashRefreshToken(token), nil
}

func HashRefreshToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}
