package keepalive

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/dugout-kr/dugout/internal/session"
)

type fakeChecker struct {
	calls int
	state session.State
}

func (c *fakeChecker) CheckAuth(_ context.Context) { c.calls++ }
func (c *fakeChecker) Snapshot() session.State     { return c.state }

type fakeTokens struct {
	pair domain.TokenPair
	set  bool
}

func (f *fakeTokens) Get() (domain.TokenPair, bool) { return f.pair, f.set }

func TestCheck_SkipsWithoutToken(t *testing.T) {
	mgr := &fakeChecker{}
	r := NewRunner(mgr, &fakeTokens{}, slog.Default(), time.Minute)

	r.check(context.Background())

	if mgr.calls != 0 {
		t.Errorf("CheckAuth calls = %d, want 0 with no stored token", mgr.calls)
	}
}

func TestCheck_RevalidatesStoredToken(t *testing.T) {
	user := domain.User{ID: 1, LoginID: "alice1"}
	mgr := &fakeChecker{state: session.State{User: &user}}
	tokens := &fakeTokens{pair: domain.TokenPair{AccessToken: "AT1"}, set: true}
	r := NewRunner(mgr, tokens, slog.Default(), time.Minute)

	r.check(context.Background())

	if mgr.calls != 1 {
		t.Errorf("CheckAuth calls = %d, want 1", mgr.calls)
	}
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	mgr := &fakeChecker{}
	r := NewRunner(mgr, &fakeTokens{}, slog.Default(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
