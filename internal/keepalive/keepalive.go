// Package keepalive periodically re-validates the stored session in
// watch mode, so a token the server has stopped honoring is noticed
// and torn down without waiting for the next user-driven call.
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/dugout-kr/dugout/internal/metrics"
	"github.com/dugout-kr/dugout/internal/session"
	"github.com/robfig/cron/v3"
)

// checker is the slice of session.Manager the runner drives.
type checker interface {
	CheckAuth(ctx context.Context)
	Snapshot() session.State
}

// tokenReader is the slice of the token store used for expiry logging.
type tokenReader interface {
	Get() (domain.TokenPair, bool)
}

type Runner struct {
	mgr    checker
	store  tokenReader
	logger *slog.Logger
	cron   *cron.Cron
	every  time.Duration
}

func NewRunner(mgr checker, store tokenReader, logger *slog.Logger, every time.Duration) *Runner {
	return &Runner{
		mgr:    mgr,
		store:  store,
		logger: logger.With("component", "keepalive"),
		cron:   cron.New(),
		every:  every,
	}
}

// Start schedules the periodic check and blocks until ctx is done.
func (r *Runner) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", r.every)
	if _, err := r.cron.AddFunc(spec, func() { r.check(ctx) }); err != nil {
		return fmt.Errorf("schedule keepalive: %w", err)
	}

	r.cron.Start()
	r.logger.Info("keepalive started", "interval", r.every)

	<-ctx.Done()
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.logger.Info("keepalive stopped")
	return nil
}

func (r *Runner) check(ctx context.Context) {
	pair, ok := r.store.Get()
	if !ok {
		metrics.KeepaliveChecksTotal.WithLabelValues("no_token").Inc()
		return
	}

	if !pair.ExpiresAt.IsZero() {
		r.logger.Debug("advisory token expiry", "expires_at", pair.ExpiresAt, "remaining", time.Until(pair.ExpiresAt).Round(time.Second))
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	r.mgr.CheckAuth(checkCtx)

	if r.mgr.Snapshot().Authenticated() {
		metrics.KeepaliveChecksTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.KeepaliveChecksTotal.WithLabelValues("unauthenticated").Inc()
		r.logger.Warn("stored session no longer honored by server")
	}
}
