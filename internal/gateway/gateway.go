// Package gateway is the single request/response pipeline every platform
// API call goes through. It attaches the stored bearer token on the way
// out and enforces the global auth-failure policy on the way in, so no
// caller ever special-cases a 401/403 itself.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/dugout-kr/dugout/internal/metrics"
	"github.com/dugout-kr/dugout/internal/requestid"
)

const defaultTimeout = 15 * time.Second

// AuthFailureHandler is invoked after the gateway tears the stored token
// down on a 401/403. The web client navigates to the login page here;
// the CLI prints a re-login hint and the session manager drops its user.
type AuthFailureHandler func()

type Client struct {
	baseURL string
	http    *http.Client
	store   TokenReader
	logger  *slog.Logger

	onAuthFailure AuthFailureHandler
}

// TokenReader is the slice of the token store the gateway needs: it
// reads the pair for outgoing calls and clears it on auth failure, but
// never writes one.
type TokenReader interface {
	Get() (domain.TokenPair, bool)
	Clear() error
}

type Option func(*Client)

// WithHTTPClient replaces the underlying transport (tests).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithAuthFailureHandler sets the hook fired after a 401/403 teardown.
func WithAuthFailureHandler(fn AuthFailureHandler) Option {
	return func(c *Client) { c.onAuthFailure = fn }
}

func New(baseURL string, store TokenReader, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
		store:   store,
		logger:  logger.With("component", "gateway"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, body, out)
}

// Do performs one JSON round-trip against the platform API. path may
// carry a query string; the metrics label uses only the path part.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	id := requestid.FromContext(ctx)
	if id == "" {
		id = requestid.New()
		ctx = requestid.WithRequestID(ctx, id)
	}
	req.Header.Set("X-Request-ID", id)

	if pair, ok := c.store.Get(); ok {
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(method, path, 0, start)
		c.logger.WarnContext(ctx, "request failed", "method", method, "path", path, "error", err)
		return domain.NewTransportError(0, err)
	}
	defer resp.Body.Close()

	c.observe(method, path, resp.StatusCode, start)

	if resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	return c.handleFailure(ctx, method, path, resp)
}

// Ping reports whether the API origin answers at all. Any HTTP response,
// regardless of status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/user/exists?loginId=ping", nil)
	if err != nil {
		return fmt.Errorf("build ping: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping api: %w", err)
	}
	resp.Body.Close()
	return nil
}

type wireFieldError struct {
	Field        string `json:"field"`
	ErrorMessage string `json:"errorMessage"`
}

type wireErrorBody struct {
	Message string           `json:"message"`
	Error   string           `json:"error"`
	Errors  []wireFieldError `json:"errors"`
}

func (c *Client) handleFailure(ctx context.Context, method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var body wireErrorBody
	_ = json.Unmarshal(raw, &body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.tearDown(ctx)
		return domain.NewTransportError(resp.StatusCode, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))

	case resp.StatusCode == http.StatusBadRequest && len(body.Errors) > 0:
		metrics.ValidationFailuresTotal.Inc()
		fields := make([]string, 0, len(body.Errors))
		messages := make(map[string]string, len(body.Errors))
		for _, fe := range body.Errors {
			if _, seen := messages[fe.Field]; !seen {
				fields = append(fields, fe.Field)
			}
			messages[fe.Field] = fe.ErrorMessage
		}
		return domain.NewValidationError(resp.StatusCode, fields, messages,
			fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))

	default:
		msg := body.Message
		if msg == "" {
			msg = body.Error
		}
		if msg != "" {
			return domain.NewBusinessError(resp.StatusCode, msg)
		}
		return domain.NewTransportError(resp.StatusCode,
			fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode))
	}
}

// tearDown clears the stored token and fires the auth-failure hook.
// When the store is already empty the session is already torn down, so
// the hook is skipped — the web client's guard against redirecting to
// the login page it is already on.
func (c *Client) tearDown(ctx context.Context) {
	_, hadToken := c.store.Get()
	if err := c.store.Clear(); err != nil {
		c.logger.ErrorContext(ctx, "clear token store", "error", err)
	}
	if !hadToken {
		return
	}

	metrics.AuthFailuresTotal.Inc()
	c.logger.InfoContext(ctx, "auth rejected by server, session torn down")
	if c.onAuthFailure != nil {
		c.onAuthFailure()
	}
}

func (c *Client) observe(method, path string, status int, start time.Time) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	label := strconv.Itoa(status)
	metrics.APIRequestsTotal.WithLabelValues(method, path, label).Inc()
	metrics.APIRequestDuration.WithLabelValues(method, path, label).Observe(time.Since(start).Seconds())
}
