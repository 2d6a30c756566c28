package domain

import "time"

// Provider identifies how an account authenticates.
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
	ProviderKakao  Provider = "KAKAO"
)

// Status is the account standing as reported by the server.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusBanned    Status = "BANNED"
	StatusWithdrawn Status = "WITHDRAWN"
	StatusDormant   Status = "DORMANT"
)

type User struct {
	ID              int64
	LoginID         string
	Nickname        string
	Provider        Provider
	Status          Status
	ProfileImageURL string
	StatusMessage   string
	FavoriteTeamID  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Credentials is the loginId/password pair exchanged for a session.
type Credentials struct {
	LoginID  string `validate:"required,min=4,max=20"`
	Password string `validate:"required,min=8"`
}

// Registration is the payload for creating a new local account.
// Registration alone does not establish a session; callers follow it
// with a login using the same credentials.
type Registration struct {
	LoginID        string `validate:"required,min=4,max=20,alphanum"`
	Password       string `validate:"required,min=8"`
	Nickname       string `validate:"required,min=2,max=20"`
	FavoriteTeamID string `validate:"omitempty,max=30"`
}

// ProfileUpdate carries the mutable profile fields. Nil means "leave as is".
type ProfileUpdate struct {
	Nickname        *string
	ProfileImageURL *string
	StatusMessage   *string
	FavoriteTeamID  *string
}
