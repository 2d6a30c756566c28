package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair is the stored credential material for a session. ExpiresAt is
// advisory only: the client never refuses to send a token because of it,
// the server remains the authority on validity.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Session is a freshly issued token pair together with the user the
// server bound it to.
type Session struct {
	Tokens TokenPair
	User   User
}

// AdvisoryExpiry decodes the access token without verifying its signature
// and returns the exp claim. Verification is the backend's job; this is
// only used for logging and keepalive scheduling. Returns the zero time
// when the token is not a JWT or carries no exp.
func AdvisoryExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
