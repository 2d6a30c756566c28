package api

import (
	"strings"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
)

// Wire shapes are private to this package. The backend has renamed
// token and user fields more than once; internal consumers only ever
// see the domain types, so churn stays contained here.

type loginRequest struct {
	LoginID  string `json:"loginId"`
	Password string `json:"password"`
}

type registerRequest struct {
	LoginID        string `json:"loginId"`
	Password       string `json:"password"`
	Nickname       string `json:"nickname"`
	FavoriteTeamID string `json:"favoriteTeamId,omitempty"`
}

type socialCallbackRequest struct {
	Code string `json:"code"`
}

type profileUpdateRequest struct {
	Nickname        *string `json:"nickname,omitempty"`
	ProfileImageURL *string `json:"profileImageUrl,omitempty"`
	StatusMessage   *string `json:"statusMessage,omitempty"`
	FavoriteTeamID  *string `json:"favoriteTeamId,omitempty"`
}

type wireUser struct {
	ID              int64  `json:"id"`
	LoginID         string `json:"loginId"`
	Nickname        string `json:"nickname"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
	ProfileImageURL string `json:"profileImageUrl"`
	StatusMessage   string `json:"statusMessage"`
	FavoriteTeamID  string `json:"favoriteTeamId"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

// sessionResponse covers both /auth/login and /auth/oauth2/callback.
// Older backend revisions sent "token"/"expirationMs" instead of
// "accessToken"; both are accepted.
type sessionResponse struct {
	AccessToken  string   `json:"accessToken"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	ExpirationMs int64    `json:"expirationMs"`
	User         wireUser `json:"user"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

func (u wireUser) toDomain() domain.User {
	user := domain.User{
		ID:              u.ID,
		LoginID:         u.LoginID,
		Nickname:        u.Nickname,
		Provider:        domain.Provider(strings.ToUpper(u.Provider)),
		Status:          domain.Status(strings.ToUpper(u.Status)),
		ProfileImageURL: u.ProfileImageURL,
		StatusMessage:   u.StatusMessage,
		FavoriteTeamID:  u.FavoriteTeamID,
	}
	if u.Provider == "" {
		user.Provider = domain.ProviderLocal
	}
	if u.Status == "" {
		user.Status = domain.StatusActive
	}
	if t, err := time.Parse(time.RFC3339, u.CreatedAt); err == nil {
		user.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, u.UpdatedAt); err == nil {
		user.UpdatedAt = t
	}
	return user
}

func (r sessionResponse) toDomain() *domain.Session {
	access := r.AccessToken
	if access == "" {
		access = r.Token
	}

	var expires time.Time
	if r.ExpirationMs > 0 {
		expires = time.Now().Add(time.Duration(r.ExpirationMs) * time.Millisecond)
	} else {
		expires = domain.AdvisoryExpiry(access)
	}

	return &domain.Session{
		Tokens: domain.TokenPair{
			AccessToken:  access,
			RefreshToken: r.RefreshToken,
			ExpiresAt:    expires,
		},
		User: r.User.toDomain(),
	}
}
