package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/dugout-kr/dugout/internal/domain"
	"golang.org/x/time/rate"
)

// gatewayClient is the subset of gateway.Client the repository needs.
// Defined here (point of use) so tests can inject a fake.
type gatewayClient interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Patch(ctx context.Context, path string, body, out any) error
}

// UserRepository implements repository.UserRepository against the
// platform HTTP API.
type UserRepository struct {
	gw     gatewayClient
	logger *slog.Logger

	// probeLimiter keeps loginId availability checks polite: the CLI's
	// registration flow probes on every keystroke-equivalent.
	probeLimiter *rate.Limiter
}

func NewUserRepository(gw gatewayClient, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		gw:           gw,
		logger:       logger.With("component", "user_repo"),
		probeLimiter: rate.NewLimiter(rate.Limit(4), 2),
	}
}

func (r *UserRepository) Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error) {
	var resp sessionResponse
	if err := r.gw.Post(ctx, "/auth/login", loginRequest{
		LoginID:  creds.LoginID,
		Password: creds.Password,
	}, &resp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return resp.toDomain(), nil
}

func (r *UserRepository) Register(ctx context.Context, reg domain.Registration) (*domain.Session, error) {
	if err := r.gw.Post(ctx, "/user", registerRequest{
		LoginID:        reg.LoginID,
		Password:       reg.Password,
		Nickname:       reg.Nickname,
		FavoriteTeamID: reg.FavoriteTeamID,
	}, nil); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	// Registration does not establish a session server-side, so log in
	// with the same credentials. A failure here still propagates: the
	// account exists but the caller is not authenticated.
	return r.Login(ctx, domain.Credentials{LoginID: reg.LoginID, Password: reg.Password})
}

func (r *UserRepository) Logout(ctx context.Context) {
	if err := r.gw.Post(ctx, "/auth/logout", nil, nil); err != nil {
		// Best effort. The server-side blacklist misses this token but
		// local teardown proceeds regardless.
		r.logger.WarnContext(ctx, "server logout failed", "error", err)
	}
}

func (r *UserRepository) CurrentUser(ctx context.Context) (*domain.User, bool) {
	var resp wireUser
	if err := r.gw.Get(ctx, "/user/me", &resp); err != nil {
		return nil, false
	}
	user := resp.toDomain()
	return &user, true
}

func (r *UserRepository) ExchangeSocialCode(ctx context.Context, code string) (*domain.Session, error) {
	var resp sessionResponse
	if err := r.gw.Post(ctx, "/auth/oauth2/callback", socialCallbackRequest{Code: code}, &resp); err != nil {
		return nil, fmt.Errorf("exchange social code: %w", err)
	}
	return resp.toDomain(), nil
}

func (r *UserRepository) LoginIDExists(ctx context.Context, loginID string) (bool, error) {
	if err := r.probeLimiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("probe limiter: %w", err)
	}

	var resp existsResponse
	if err := r.gw.Get(ctx, "/user/exists?loginId="+url.QueryEscape(loginID), &resp); err != nil {
		return false, fmt.Errorf("check loginId: %w", err)
	}
	return resp.Exists, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error) {
	var resp wireUser
	if err := r.gw.Patch(ctx, "/user/me", profileUpdateRequest{
		Nickname:        update.Nickname,
		ProfileImageURL: update.ProfileImageURL,
		StatusMessage:   update.StatusMessage,
		FavoriteTeamID:  update.FavoriteTeamID,
	}, &resp); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	user := resp.toDomain()
	return &user, nil
}
