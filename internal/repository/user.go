package repository

import (
	"context"

	"github.com/dugout-kr/dugout/internal/domain"
)

// UserRepository is the protocol adapter for the platform's identity
// endpoints. It never touches the token store: persisting a returned
// session is the caller's job, which keeps the repository a pure
// adapter over the wire.
//
// Error policy: Login, Register, ExchangeSocialCode and UpdateProfile
// propagate failures (including validation errors). Logout and
// CurrentUser are used during boot and teardown where failure must not
// block anything, so they degrade to a safe default instead of failing.
type UserRepository interface {
	// Login exchanges credentials for a token pair and user summary.
	Login(ctx context.Context, creds domain.Credentials) (*domain.Session, error)

	// Register creates the account and then logs in with the same
	// credentials, since registration alone does not establish a
	// session server-side.
	Register(ctx context.Context, reg domain.Registration) (*domain.Session, error)

	// Logout notifies the server best-effort. It never returns an
	// error; callers proceed with local teardown regardless.
	Logout(ctx context.Context)

	// CurrentUser resolves the identity bound to the stored token.
	// Returns (nil, false) on any failure — a safe probe.
	CurrentUser(ctx context.Context) (*domain.User, bool)

	// ExchangeSocialCode trades a provider authorization code for a
	// session.
	ExchangeSocialCode(ctx context.Context, code string) (*domain.Session, error)

	// LoginIDExists is a non-authenticating availability probe.
	LoginIDExists(ctx context.Context, loginID string) (bool, error)

	// UpdateProfile patches the current user's profile and returns the
	// updated record.
	UpdateProfile(ctx context.Context, update domain.ProfileUpdate) (*domain.User, error)
}
