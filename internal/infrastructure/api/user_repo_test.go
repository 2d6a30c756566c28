package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dugout-kr/dugout/internal/domain"
)

// ---- fakes ----

type fakeGateway struct {
	get   func(ctx context.Context, path string, out any) error
	post  func(ctx context.Context, path string, body, out any) error
	patch func(ctx context.Context, path string, body, out any) error
}

func (g *fakeGateway) Get(ctx context.Context, path string, out any) error {
	return g.get(ctx, path, out)
}

func (g *fakeGateway) Post(ctx context.Context, path string, body, out any) error {
	return g.post(ctx, path, body, out)
}

func (g *fakeGateway) Patch(ctx context.Context, path string, body, out any) error {
	return g.patch(ctx, path, body, out)
}

// fill decodes a JSON literal into the out parameter, standing in for
// the gateway's response decoding.
func fill(t *testing.T, out any, literal string) {
	t.Helper()
	if err := json.Unmarshal([]byte(literal), out); err != nil {
		t.Fatalf("fill: %v", err)
	}
}

func newRepo(gw *fakeGateway) *UserRepository {
	return NewUserRepository(gw, slog.Default())
}

// ---- Login ----

func TestLogin_MapsSessionResponse(t *testing.T) {
	var gotPath string
	var gotBody any
	gw := &fakeGateway{
		post: func(_ context.Context, path string, body, out any) error {
			gotPath, gotBody = path, body
			fill(t, out, `{"accessToken":"AT1","refreshToken":"RT1","user":{"id":1,"loginId":"alice1","nickname":"Alice"}}`)
			return nil
		},
	}

	sess, err := newRepo(gw).Login(context.Background(), domain.Credentials{LoginID: "alice1", Password: "hunter22"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/auth/login" {
		t.Errorf("path = %q, want /auth/login", gotPath)
	}
	req, ok := gotBody.(loginRequest)
	if !ok || req.LoginID != "alice1" || req.Password != "hunter22" {
		t.Errorf("request body = %+v", gotBody)
	}
	if sess.Tokens.AccessToken != "AT1" || sess.Tokens.RefreshToken != "RT1" {
		t.Errorf("tokens = %+v, want AT1/RT1", sess.Tokens)
	}
	if sess.User.ID != 1 || sess.User.LoginID != "alice1" || sess.User.Nickname != "Alice" {
		t.Errorf("user = %+v", sess.User)
	}
	if sess.User.Provider != domain.ProviderLocal {
		t.Errorf("provider = %s, want LOCAL default", sess.User.Provider)
	}
}

func TestLogin_AcceptsLegacyTokenField(t *testing.T) {
	gw := &fakeGateway{
		post: func(_ context.Context, _ string, _, out any) error {
			fill(t, out, `{"token":"LEGACY","refreshToken":"RT1","expirationMs":60000,"user":{"id":2,"loginId":"bob9","nickname":"Bob"}}`)
			return nil
		},
	}

	sess, err := newRepo(gw).Login(context.Background(), domain.Credentials{LoginID: "bob9", Password: "p@ssword"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.Tokens.AccessToken != "LEGACY" {
		t.Errorf("access token = %q, want LEGACY", sess.Tokens.AccessToken)
	}
	if remaining := time.Until(sess.Tokens.ExpiresAt); remaining <= 0 || remaining > time.Minute {
		t.Errorf("expiry %v not within expirationMs window", sess.Tokens.ExpiresAt)
	}
}

func TestLogin_PropagatesError(t *testing.T) {
	wantErr := domain.NewBusinessError(401, "wrong credentials")
	gw := &fakeGateway{
		post: func(_ context.Context, _ string, _, _ any) error { return wantErr },
	}

	_, err := newRepo(gw).Login(context.Background(), domain.Credentials{LoginID: "alice1", Password: "nope"})
	if !errors.Is(err, wantErr) {
		t.Errorf("want wrapped business error, got %v", err)
	}
}

// ---- Register ----

func TestRegister_CreatesAccountThenLogsIn(t *testing.T) {
	var paths []string
	gw := &fakeGateway{
		post: func(_ context.Context, path string, body, out any) error {
			paths = append(paths, path)
			if path == "/auth/login" {
				req := body.(loginRequest)
				if req.LoginID != "bob9" || req.Password != "p@ssword" {
					t.Errorf("implicit login used %+v", req)
				}
				fill(t, out, `{"accessToken":"AT2","refreshToken":"RT2","user":{"id":2,"loginId":"bob9","nickname":"Bob"}}`)
			}
			return nil
		},
	}

	sess, err := newRepo(gw).Register(context.Background(), domain.Registration{
		LoginID:        "bob9",
		Password:       "p@ssword",
		Nickname:       "Bob",
		FavoriteTeamID: "giants",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/user" || paths[1] != "/auth/login" {
		t.Errorf("paths = %v, want [/user /auth/login]", paths)
	}
	if sess.User.Nickname != "Bob" {
		t.Errorf("user = %+v", sess.User)
	}
}

func TestRegister_ImplicitLoginFailurePropagates(t *testing.T) {
	loginErr := domain.NewTransportError(500, errors.New("boom"))
	gw := &fakeGateway{
		post: func(_ context.Context, path string, _, _ any) error {
			if path == "/auth/login" {
				return loginErr
			}
			return nil
		},
	}

	_, err := newRepo(gw).Register(context.Background(), domain.Registration{
		LoginID: "bob9", Password: "p@ssword", Nickname: "Bob",
	})
	if !errors.Is(err, loginErr) {
		t.Errorf("want login failure propagated, got %v", err)
	}
}

// ---- Logout / CurrentUser ----

func TestLogout_SwallowsServerError(t *testing.T) {
	gw := &fakeGateway{
		post: func(_ context.Context, path string, _, _ any) error {
			if path != "/auth/logout" {
				t.Errorf("path = %q", path)
			}
			return errors.New("blacklist unavailable")
		},
	}

	// Must not panic or propagate anything.
	newRepo(gw).Logout(context.Background())
}

func TestCurrentUser_SafeProbe(t *testing.T) {
	gw := &fakeGateway{
		get: func(_ context.Context, path string, out any) error {
			if path != "/user/me" {
				t.Errorf("path = %q, want /user/me", path)
			}
			fill(t, out, `{"id":1,"loginId":"alice1","nickname":"Alice","provider":"google","status":"ACTIVE"}`)
			return nil
		},
	}

	user, ok := newRepo(gw).CurrentUser(context.Background())
	if !ok {
		t.Fatal("expected user")
	}
	if user.Provider != domain.ProviderGoogle {
		t.Errorf("provider = %s, want GOOGLE", user.Provider)
	}

	failing := &fakeGateway{
		get: func(_ context.Context, _ string, _ any) error {
			return domain.NewTransportError(0, errors.New("network down"))
		},
	}
	if _, ok := newRepo(failing).CurrentUser(context.Background()); ok {
		t.Error("expected absent user on failure, not an error")
	}
}

// ---- Social / exists / profile ----

func TestExchangeSocialCode(t *testing.T) {
	gw := &fakeGateway{
		post: func(_ context.Context, path string, body, out any) error {
			if path != "/auth/oauth2/callback" {
				t.Errorf("path = %q", path)
			}
			if req := body.(socialCallbackRequest); req.Code != "one-time" {
				t.Errorf("code = %q", req.Code)
			}
			fill(t, out, `{"accessToken":"AT3","refreshToken":"RT3","user":{"id":3,"loginId":"carol","nickname":"Carol","provider":"kakao"}}`)
			return nil
		},
	}

	sess, err := newRepo(gw).ExchangeSocialCode(context.Background(), "one-time")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.User.Provider != domain.ProviderKakao {
		t.Errorf("provider = %s, want KAKAO", sess.User.Provider)
	}
}

func TestLoginIDExists_EscapesQuery(t *testing.T) {
	var gotPath string
	gw := &fakeGateway{
		get: func(_ context.Context, path string, out any) error {
			gotPath = path
			fill(t, out, `{"exists":true}`)
			return nil
		},
	}

	taken, err := newRepo(gw).LoginIDExists(context.Background(), "a b&c")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !taken {
		t.Error("expected taken=true")
	}
	if gotPath != "/user/exists?loginId=a+b%26c" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestUpdateProfile_SendsOnlyChangedFields(t *testing.T) {
	nickname := "NewNick"
	gw := &fakeGateway{
		patch: func(_ context.Context, path string, body, out any) error {
			if path != "/user/me" {
				t.Errorf("path = %q, want /user/me", path)
			}
			data, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != `{"nickname":"NewNick"}` {
				t.Errorf("body = %s", data)
			}
			fill(t, out, `{"id":1,"loginId":"alice1","nickname":"NewNick"}`)
			return nil
		},
	}

	user, err := newRepo(gw).UpdateProfile(context.Background(), domain.ProfileUpdate{Nickname: &nickname})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Nickname != "NewNick" {
		t.Errorf("nickname = %q", user.Nickname)
	}
}
