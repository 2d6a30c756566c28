package gateway_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/dugout-kr/dugout/internal/gateway"
	"github.com/dugout-kr/dugout/internal/tokenstore"
)

func newClient(t *testing.T, handler http.HandlerFunc, opts ...gateway.Option) (*gateway.Client, *tokenstore.MemStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := tokenstore.NewMemStore()
	return gateway.New(srv.URL, store, slog.Default(), opts...), store
}

func TestDo_AttachesBearerWhenTokenStored(t *testing.T) {
	var gotAuth string
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})

	_ = store.Set(domain.TokenPair{AccessToken: "AT1", RefreshToken: "RT1"})

	if err := client.Get(context.Background(), "/user/me", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer AT1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer AT1")
	}
}

func TestDo_NoHeaderWhenUnauthenticated(t *testing.T) {
	var gotAuth string
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	})

	if err := client.Get(context.Background(), "/user/exists?loginId=x", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestDo_SetsRequestID(t *testing.T) {
	var gotID string
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get("X-Request-ID")
		w.Write([]byte(`{}`))
	})

	if err := client.Get(context.Background(), "/user/me", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID == "" {
		t.Error("expected X-Request-ID header")
	}
}

func TestDo_AuthFailureClearsStoreAndFiresHook(t *testing.T) {
	hookCalls := 0
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}, gateway.WithAuthFailureHandler(func() { hookCalls++ }))

	_ = store.Set(domain.TokenPair{AccessToken: "stale"})

	err := client.Get(context.Background(), "/user/me", nil)
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if _, ok := store.Get(); ok {
		t.Error("expected store cleared after 401")
	}
	if hookCalls != 1 {
		t.Errorf("hook calls = %d, want 1", hookCalls)
	}

	// A second 401 with the store already empty must not fire the hook
	// again — the session is already torn down.
	if err := client.Get(context.Background(), "/user/me", nil); err == nil {
		t.Fatal("expected error on second 401")
	}
	if hookCalls != 1 {
		t.Errorf("hook calls after second 401 = %d, want 1", hookCalls)
	}
}

func TestDo_ForbiddenAlsoTearsDown(t *testing.T) {
	client, store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_ = store.Set(domain.TokenPair{AccessToken: "stale"})

	if err := client.Post(context.Background(), "/auth/logout", nil, nil); err == nil {
		t.Fatal("expected error on 403")
	}
	if _, ok := store.Get(); ok {
		t.Error("expected store cleared after 403")
	}
}

func TestDo_StructuredValidationError(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors":[{"field":"loginId","errorMessage":"duplicate"},{"field":"nickname","errorMessage":"too short"}]}`))
	})

	err := client.Post(context.Background(), "/user", map[string]string{}, nil)
	apiErr := domain.AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Kind != domain.KindValidation {
		t.Fatalf("kind = %s, want validation", apiErr.Kind)
	}
	if apiErr.FirstMessage() != "duplicate" {
		t.Errorf("first message = %q, want %q", apiErr.FirstMessage(), "duplicate")
	}
	if apiErr.FieldErrors["nickname"] != "too short" {
		t.Errorf("nickname message = %q, want %q", apiErr.FieldErrors["nickname"], "too short")
	}
}

func TestDo_BadRequestWithoutErrorsArrayIsBusiness(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"비밀번호가 일치하지 않습니다."}`))
	})

	err := client.Post(context.Background(), "/auth/login", map[string]string{}, nil)
	apiErr := domain.AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Kind != domain.KindBusiness {
		t.Fatalf("kind = %s, want business", apiErr.Kind)
	}
	if apiErr.Message != "비밀번호가 일치하지 않습니다." {
		t.Errorf("message = %q", apiErr.Message)
	}
}

func TestDo_ServerErrorIsTransport(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Get(context.Background(), "/user/me", nil)
	apiErr := domain.AsAPIError(err)
	if apiErr == nil {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Kind != domain.KindTransport {
		t.Fatalf("kind = %s, want transport", apiErr.Kind)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", apiErr.StatusCode)
	}
}

func TestDo_DecodesResponseBody(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"exists":true}`))
	})

	var out struct {
		Exists bool `json:"exists"`
	}
	if err := client.Get(context.Background(), "/user/exists?loginId=alice1", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Exists {
		t.Error("expected exists=true")
	}
}

func TestPing(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Even an error status counts as reachable.
		w.WriteHeader(http.StatusBadRequest)
	})

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	unreachable := gateway.New("http://127.0.0.1:1", tokenstore.NewMemStore(), slog.Default())
	if err := unreachable.Ping(context.Background()); err == nil {
		t.Fatal("expected error for unreachable origin")
	}
}
