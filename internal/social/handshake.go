// Package social implements the login handshake against an external
// identity provider. Two transports exist because popup-based and
// redirect-based OAuth flows complete differently: the popup signals by
// closing, the redirect delivers tokens or a one-time code in the
// query string. The session core does not care which one is active.
package social

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	sloggin "github.com/samber/slog-gin"
)

const (
	// popupPollInterval matches the web client's closed-window poll.
	popupPollInterval = 100 * time.Millisecond

	callbackPath = "/auth/social/callback"
)

var (
	ErrMissingParams = errors.New("callback carried no token and no code")
	ErrStateMismatch = errors.New("callback state mismatch")
)

// sessionManager is the slice of session.Manager the handshake uses.
type sessionManager interface {
	SetAuth(sess *domain.Session) error
	CheckAuth(ctx context.Context)
}

// codeExchanger is the slice of the user repository the handshake uses.
type codeExchanger interface {
	ExchangeSocialCode(ctx context.Context, code string) (*domain.Session, error)
}

// BrowserOpener points the user's browser at the provider authorize
// endpoint. Injected so tests never spawn a real browser.
type BrowserOpener func(url string) error

// PopupWatcher reports whether the popup window has closed.
type PopupWatcher func() bool

type Handshake struct {
	mgr     sessionManager
	repo    codeExchanger
	logger  *slog.Logger
	baseURL string
	addr    string
	open    BrowserOpener
}

func NewHandshake(mgr sessionManager, repo codeExchanger, logger *slog.Logger, apiBaseURL, callbackAddr string, open BrowserOpener) *Handshake {
	return &Handshake{
		mgr:     mgr,
		repo:    repo,
		logger:  logger.With("component", "social"),
		baseURL: strings.TrimRight(apiBaseURL, "/"),
		addr:    callbackAddr,
		open:    open,
	}
}

// AuthorizeURL is the provider redirect entry point. The backend owns
// the actual provider integration; the client only navigates there.
func (h *Handshake) AuthorizeURL(provider domain.Provider, state string) string {
	u := h.baseURL + "/oauth2/authorization/" + strings.ToLower(string(provider))
	q := url.Values{}
	q.Set("redirect_uri", "http://"+h.addr+callbackPath)
	if state != "" {
		q.Set("state", state)
	}
	return u + "?" + q.Encode()
}

// Popup opens the authorize endpoint and polls for the popup's closed
// signal; upon closure it invokes CheckAuth exactly once to pick up
// whatever session the redirect flow established server-side. The
// closed signal is a completion hint only, never the authorization
// boundary — that stays with the server-issued token.
func (h *Handshake) Popup(ctx context.Context, provider domain.Provider, closed PopupWatcher) error {
	if err := h.open(h.AuthorizeURL(provider, "")); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	ticker := time.NewTicker(popupPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !closed() {
				continue
			}
			h.logger.InfoContext(ctx, "popup closed, re-checking session", "provider", provider)
			h.mgr.CheckAuth(ctx)
			return nil
		}
	}
}

// Redirect runs the redirect-with-query transport: a loopback listener
// receives the provider callback carrying either token and user fields
// directly or a one-time authorization code. Both paths end in SetAuth.
// The handshake resolves when the callback arrives or ctx expires.
func (h *Handshake) Redirect(ctx context.Context, provider domain.Provider) error {
	state := uuid.NewString()
	result := make(chan error, 1)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("callback listener: %w", err)
	}

	srv := &http.Server{Handler: h.callbackRouter(state, result)}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			h.logger.Error("callback server", "error", serveErr)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := h.open(h.AuthorizeURL(provider, state)); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

func (h *Handshake) callbackRouter(state string, result chan<- error) http.Handler {
	router := gin.New()
	router.Use(sloggin.New(h.logger), gin.Recovery())

	var once sync.Once
	router.GET(callbackPath, func(c *gin.Context) {
		err := h.handleCallback(c, state)
		if err != nil {
			c.String(http.StatusBadRequest, "로그인에 실패했습니다. 터미널로 돌아가 다시 시도해 주세요.")
		} else {
			c.String(http.StatusOK, "로그인이 완료되었습니다. 이 창을 닫아도 됩니다.")
		}
		once.Do(func() { result <- err })
	})
	return router
}

// handleCallback is the Go counterpart of the web client's social
// callback route. Query case (a): token and user fields arrive
// directly. Case (b): a one-time code is exchanged via the repository.
func (h *Handshake) handleCallback(c *gin.Context, wantState string) error {
	ctx := c.Request.Context()

	if got := c.Query("state"); wantState != "" && got != wantState {
		h.logger.WarnContext(ctx, "state mismatch on social callback")
		return ErrStateMismatch
	}

	if sess, ok := sessionFromQuery(c); ok {
		if err := h.mgr.SetAuth(sess); err != nil {
			return fmt.Errorf("seed session: %w", err)
		}
		return nil
	}

	code := c.Query("code")
	if code == "" {
		return ErrMissingParams
	}

	sess, err := h.repo.ExchangeSocialCode(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := h.mgr.SetAuth(sess); err != nil {
		return fmt.Errorf("seed session: %w", err)
	}
	return nil
}

// sessionFromQuery parses the direct-delivery variant. accessToken (or
// the older token name) plus the minimal user fields must all be
// present, otherwise the code path is tried.
func sessionFromQuery(c *gin.Context) (*domain.Session, bool) {
	access := c.Query("accessToken")
	if access == "" {
		access = c.Query("token")
	}
	id, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if access == "" || err != nil || c.Query("loginId") == "" {
		return nil, false
	}

	provider := domain.Provider(strings.ToUpper(c.Query("provider")))
	if provider == "" {
		provider = domain.ProviderLocal
	}

	return &domain.Session{
		Tokens: domain.TokenPair{
			AccessToken:  access,
			RefreshToken: c.Query("refreshToken"),
			ExpiresAt:    domain.AdvisoryExpiry(access),
		},
		User: domain.User{
			ID:       id,
			LoginID:  c.Query("loginId"),
			Nickname: c.Query("nickname"),
			Provider: provider,
			Status:   domain.StatusActive,
		},
	}, true
}
