// Package session holds the single source of truth for the client's
// authenticated identity: who is logged in, whether an identity
// operation is in flight, and the last operation's display error.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/dugout-kr/dugout/internal/metrics"
	"github.com/dugout-kr/dugout/internal/repository"
	"github.com/dugout-kr/dugout/internal/requestid"
	"github.com/dugout-kr/dugout/internal/tokenstore"
)

// Display fallbacks, matching the platform's web client wording.
const (
	msgLoginFailed    = "로그인에 실패했습니다."
	msgRegisterFailed = "회원가입에 실패했습니다."
	msgUpdateFailed   = "프로필 수정에 실패했습니다."
	msgGenericFailed  = "요청 처리 중 오류가 발생했습니다."
)

// State is the session tuple consumers observe. Err is a display
// message, empty when absent.
type State struct {
	User    *domain.User
	Loading bool
	Err     string
}

// Authenticated reports whether a user is present.
func (s State) Authenticated() bool { return s.User != nil }

// Manager is the session state machine. Exactly one instance is
// constructed at process start and injected into every consumer.
//
// All session-mutating operations serialize through a single slot:
// only one of CheckAuth/Login/Register/Logout/SetAuth/UpdateProfile is
// in flight at a time, and each operation's result commits only if no
// newer operation has started since (a superseded CheckAuth resolving
// after a fast Logout must not resurrect the old user).
type Manager struct {
	repo   repository.UserRepository
	store  tokenstore.Store
	logger *slog.Logger

	opMu sync.Mutex // the single operation slot

	mu       sync.Mutex // guards state, gen, watchers
	gen      uint64
	state    State
	watchers map[int]chan State
	nextID   int
}

func NewManager(repo repository.UserRepository, store tokenstore.Store, logger *slog.Logger) *Manager {
	return &Manager{
		repo:     repo,
		store:    store,
		logger:   logger.With("component", "session"),
		watchers: make(map[int]chan State),
	}
}

// Snapshot returns the current session state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Watch registers a watcher notified on every committed state change.
// Slow watchers miss intermediate states, never block the manager.
// The returned cancel func must be called when done.
func (m *Manager) Watch() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	ch := make(chan State, 1)
	m.watchers[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
	return ch, cancel
}

// CheckAuth re-derives the authenticated user from the server. With no
// stored token it settles in the unauthenticated state without a
// network call. It never returns an error: an invalid token simply
// ends unauthenticated with the store cleared.
func (m *Manager) CheckAuth(ctx context.Context) {
	ctx = requestid.WithOperation(ctx, "check_auth")
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if _, ok := m.store.Get(); !ok {
		m.commit(m.begin(), State{})
		return
	}

	gen := m.beginLoading()

	user, ok := m.repo.CurrentUser(ctx)
	if !ok {
		if err := m.store.Clear(); err != nil {
			m.logger.ErrorContext(ctx, "clear token store", "error", err)
		}
		metrics.SessionOperationsTotal.WithLabelValues("check_auth", "unauthenticated").Inc()
		m.commit(gen, State{})
		return
	}

	metrics.SessionOperationsTotal.WithLabelValues("check_auth", "ok").Inc()
	m.commit(gen, State{User: user})
}

// Login exchanges credentials for a session, persists the token pair,
// then re-derives the committed identity from the server rather than
// trusting the login response body. Failures record a display message
// and propagate so the calling form can react too.
func (m *Manager) Login(ctx context.Context, creds domain.Credentials) error {
	ctx = requestid.WithOperation(ctx, "login")
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.establish(ctx, "login", msgLoginFailed, func() (*domain.Session, error) {
		return m.repo.Login(ctx, creds)
	})
}

// Register creates the account and propagates the implicit login's
// outcome: a created account with a failed login still ends
// unauthenticated with an error, never a silent success.
func (m *Manager) Register(ctx context.Context, reg domain.Registration) error {
	ctx = requestid.WithOperation(ctx, "register")
	m.opMu.Lock()
	defer m.opMu.Unlock()

	return m.establish(ctx, "register", msgRegisterFailed, func() (*domain.Session, error) {
		return m.repo.Register(ctx, reg)
	})
}

// establish runs a session-creating repository call and the follow-up
// identity fetch. Callers hold opMu.
func (m *Manager) establish(ctx context.Context, op, fallback string, fetch func() (*domain.Session, error)) error {
	gen := m.beginLoading()

	sess, err := fetch()
	if err != nil {
		metrics.SessionOperationsTotal.WithLabelValues(op, "error").Inc()
		m.commit(gen, State{Err: m.displayMessage(err, fallback)})
		return err
	}

	if err := m.store.Set(sess.Tokens); err != nil {
		metrics.SessionOperationsTotal.WithLabelValues(op, "error").Inc()
		m.commit(gen, State{Err: fallback})
		return fmt.Errorf("persist tokens: %w", err)
	}

	// The authoritative user record is the one the server holds now,
	// not the login response body.
	user, ok := m.repo.CurrentUser(ctx)
	if !ok {
		if clearErr := m.store.Clear(); clearErr != nil {
			m.logger.ErrorContext(ctx, "clear token store", "error", clearErr)
		}
		metrics.SessionOperationsTotal.WithLabelValues(op, "error").Inc()
		m.commit(gen, State{Err: fallback})
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}

	metrics.SessionOperationsTotal.WithLabelValues(op, "ok").Inc()
	m.commit(gen, State{User: user})
	m.logger.InfoContext(ctx, "session established", "user_id", user.ID, "login_id", user.LoginID)
	return nil
}

// Logout tears the session down locally no matter what the server
// says. Calling it while already unauthenticated is a no-op.
func (m *Manager) Logout(ctx context.Context) {
	ctx = requestid.WithOperation(ctx, "logout")
	m.opMu.Lock()
	defer m.opMu.Unlock()

	gen := m.beginLoading()

	m.repo.Logout(ctx)

	if err := m.store.Clear(); err != nil {
		m.logger.ErrorContext(ctx, "clear token store", "error", err)
	}
	metrics.SessionOperationsTotal.WithLabelValues("logout", "ok").Inc()
	m.commit(gen, State{})
	m.logger.InfoContext(ctx, "logged out")
}

// SetAuth seeds the session from an already-completed exchange (the
// social-login handshake), bypassing Login.
func (m *Manager) SetAuth(sess *domain.Session) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	gen := m.begin()

	if err := m.store.Set(sess.Tokens); err != nil {
		m.commit(gen, State{Err: msgGenericFailed})
		return fmt.Errorf("persist tokens: %w", err)
	}

	user := sess.User
	metrics.SessionOperationsTotal.WithLabelValues("set_auth", "ok").Inc()
	m.commit(gen, State{User: &user})
	return nil
}

// UpdateProfile patches the profile and refreshes the cached user.
// Requires an authenticated session.
func (m *Manager) UpdateProfile(ctx context.Context, update domain.ProfileUpdate) error {
	ctx = requestid.WithOperation(ctx, "update_profile")
	m.opMu.Lock()
	defer m.opMu.Unlock()

	prev := m.Snapshot().User
	if prev == nil {
		return domain.ErrUnauthenticated
	}

	gen := m.beginLoading()

	user, err := m.repo.UpdateProfile(ctx, update)
	if err != nil {
		metrics.SessionOperationsTotal.WithLabelValues("update_profile", "error").Inc()
		m.commit(gen, State{User: prev, Err: m.displayMessage(err, msgUpdateFailed)})
		return err
	}

	metrics.SessionOperationsTotal.WithLabelValues("update_profile", "ok").Inc()
	m.commit(gen, State{User: user})
	return nil
}

// InvalidateLocal drops the in-memory user without a server round-trip.
// Wired as the gateway's auth-failure hook: by the time it runs the
// gateway has already cleared the token store.
func (m *Manager) InvalidateLocal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.setStateLocked(State{})
}

// begin claims a new generation without touching Loading.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	return m.gen
}

// beginLoading claims a new generation and enters the loading state,
// clearing any previous error while keeping the current user visible.
func (m *Manager) beginLoading() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	m.setStateLocked(State{User: m.state.User, Loading: true})
	return m.gen
}

// commit applies the operation's final state unless a newer operation
// (or InvalidateLocal) has claimed the generation since.
func (m *Manager) commit(gen uint64, next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		m.logger.Debug("stale operation result dropped", "gen", gen, "current", m.gen)
		return
	}
	m.setStateLocked(next)
}

func (m *Manager) setStateLocked(next State) {
	m.state = next
	if next.User != nil {
		metrics.SessionAuthenticated.Set(1)
	} else {
		metrics.SessionAuthenticated.Set(0)
	}
	for _, ch := range m.watchers {
		// Single producer, cap-1 channel: drop the stale value so the
		// watcher always sees the latest committed state.
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// displayMessage reduces a failure to one human-readable line: a
// validation error surfaces its first field message, a server-supplied
// message is preferred, and anything else gets the fallback.
func (m *Manager) displayMessage(err error, fallback string) string {
	apiErr := domain.AsAPIError(err)
	if apiErr == nil {
		return fallback
	}
	switch apiErr.Kind {
	case domain.KindValidation:
		if msg := apiErr.FirstMessage(); msg != "" {
			return msg
		}
	case domain.KindBusiness:
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return fallback
}
