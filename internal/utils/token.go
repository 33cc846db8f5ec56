package utils // package utils provides helpers for session tokens and password hashing

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims carried by a session token.  SID names the
// server-side session; the token is only honoured while that session is
// active.
type SessionClaims struct {
	SID  string `json:"sid"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SessionToken is a signed token with its expiry.  Exp is the zero time
// when the token does not expire.
type SessionToken struct {
	Token string
	Exp   time.Time
}

// NewSessionID returns 32 bytes of secure random data, hex encoded.
func NewSessionID() (string, error) {
	return randomHex(32)
}

// NewSessionToken builds and signs an HS256 token for session sid.  A ttl of
// zero leaves out the exp claim.
func NewSessionToken(secret []byte, sid string, userID int64, role string, ttl time.Duration, now time.Time) (SessionToken, error) {
	claims := SessionClaims{
		SID:  sid,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  strconv.FormatInt(userID, 10),
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	var exp time.Time
	if ttl > 0 {
		exp = now.Add(ttl).Truncate(time.Second)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(secret)
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ErrInvalidToken is returned for tokens that are malformed, carry a bad
// signature or lack a session id.
var ErrInvalidToken = errors.New("invalid session token")

// ParseSessionToken verifies the signature of raw and returns its claims.
// When checkExpiry is false an expired token is still accepted, which lets
// logout clean up sessions whose token has lapsed.
func ParseSessionToken(secret []byte, raw string, checkExpiry bool, now time.Time) (SessionClaims, error) {
	var claims SessionClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return secret, nil }, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return claims, err
		}
		return claims, ErrInvalidToken
	}
	if claims.SID == "" {
		return claims, ErrInvalidToken
	}
	return claims, nil
}

// RandomHex returns n bytes of secure random data, hex encoded.  It is used
// for generated signing secrets.
func RandomHex(n int) (string, error) {
	return randomHex(n)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
