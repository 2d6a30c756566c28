package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dugout-kr/dugout/config"
	"github.com/dugout-kr/dugout/internal/domain"
	"github.com/dugout-kr/dugout/internal/gateway"
	"github.com/dugout-kr/dugout/internal/health"
	"github.com/dugout-kr/dugout/internal/infrastructure/api"
	"github.com/dugout-kr/dugout/internal/keepalive"
	ctxlog "github.com/dugout-kr/dugout/internal/log"
	"github.com/dugout-kr/dugout/internal/metrics"
	"github.com/dugout-kr/dugout/internal/session"
	"github.com/dugout-kr/dugout/internal/social"
	"github.com/dugout-kr/dugout/internal/tokenstore"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

const usage = `usage: dugout <command> [flags]

commands:
  login     sign in with loginId/password
  register  create an account and sign in
  logout    sign out and clear stored credentials
  whoami    show the currently authenticated user
  exists    check loginId availability
  profile   update the current user's profile
  social    sign in via google or kakao
  watch     keep the session validated, serve metrics
`

// app bundles the single session manager instance with everything it
// was wired from. Constructed exactly once per process.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  tokenstore.Store
	gw     *gateway.Client
	repo   *api.UserRepository
	mgr    *session.Manager
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, logger)

	// The manager checks the stored session exactly once at startup;
	// with no token stored this settles locally without a round-trip.
	a.mgr.CheckAuth(ctx)

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		if state := a.mgr.Snapshot(); state.Err != "" {
			fmt.Fprintln(os.Stderr, state.Err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	store := tokenstore.NewFileStore(cfg.CredentialsFile)

	// The gateway tears the token down on 401/403 before the failing
	// call even returns; the hook drops the in-memory user to match.
	var mgr *session.Manager
	gw := gateway.New(cfg.APIBaseURL, store, logger,
		gateway.WithAuthFailureHandler(func() {
			if mgr != nil {
				mgr.InvalidateLocal()
			}
			fmt.Fprintln(os.Stderr, "세션이 만료되었습니다. 다시 로그인해 주세요.")
		}),
	)

	repo := api.NewUserRepository(gw, logger)
	mgr = session.NewManager(repo, store, logger)

	return &app{cfg: cfg, logger: logger, store: store, gw: gw, repo: repo, mgr: mgr}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.cmdLogin(ctx, args)
	case "register":
		return a.cmdRegister(ctx, args)
	case "logout":
		a.mgr.Logout(ctx)
		fmt.Println("logged out")
		return nil
	case "whoami":
		return a.cmdWhoami()
	case "exists":
		return a.cmdExists(ctx, args)
	case "profile":
		return a.cmdProfile(ctx, args)
	case "social":
		return a.cmdSocial(ctx, args)
	case "watch":
		return a.cmdWatch(ctx)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	loginID := fs.String("id", "", "loginId")
	password := fs.String("password", "", "password")
	_ = fs.Parse(args)

	creds := domain.Credentials{LoginID: *loginID, Password: *password}
	if err := validator.New().Struct(creds); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	if err := a.mgr.Login(ctx, creds); err != nil {
		return err
	}

	state := a.mgr.Snapshot()
	fmt.Printf("%s님, 환영합니다!\n", state.User.Nickname)
	return nil
}

func (a *app) cmdRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	loginID := fs.String("id", "", "loginId")
	password := fs.String("password", "", "password")
	nickname := fs.String("nickname", "", "display nickname")
	team := fs.String("team", "", "favorite team id")
	_ = fs.Parse(args)

	reg := domain.Registration{
		LoginID:        *loginID,
		Password:       *password,
		Nickname:       *nickname,
		FavoriteTeamID: *team,
	}
	if err := validator.New().Struct(reg); err != nil {
		return fmt.Errorf("invalid input: %w", err)
	}

	if taken, err := a.repo.LoginIDExists(ctx, reg.LoginID); err == nil && taken {
		return fmt.Errorf("loginId %q is already taken", reg.LoginID)
	}

	if err := a.mgr.Register(ctx, reg); err != nil {
		return err
	}

	state := a.mgr.Snapshot()
	fmt.Printf("%s님, 가입을 환영합니다!\n", state.User.Nickname)
	return nil
}

func (a *app) cmdWhoami() error {
	state := a.mgr.Snapshot()
	if !state.Authenticated() {
		return domain.ErrUnauthenticated
	}

	u := state.User
	fmt.Printf("id:        %d\n", u.ID)
	fmt.Printf("loginId:   %s\n", u.LoginID)
	fmt.Printf("nickname:  %s\n", u.Nickname)
	fmt.Printf("provider:  %s\n", u.Provider)
	fmt.Printf("status:    %s\n", u.Status)
	if u.FavoriteTeamID != "" {
		fmt.Printf("team:      %s\n", u.FavoriteTeamID)
	}
	if u.StatusMessage != "" {
		fmt.Printf("message:   %s\n", u.StatusMessage)
	}
	return nil
}

func (a *app) cmdExists(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("exists", flag.ExitOnError)
	loginID := fs.String("id", "", "loginId to probe")
	_ = fs.Parse(args)

	taken, err := a.repo.LoginIDExists(ctx, *loginID)
	if err != nil {
		return err
	}
	if taken {
		fmt.Printf("%s: taken\n", *loginID)
	} else {
		fmt.Printf("%s: available\n", *loginID)
	}
	return nil
}

func (a *app) cmdProfile(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	nickname := fs.String("nickname", "", "new nickname")
	image := fs.String("image", "", "profile image URL")
	message := fs.String("message", "", "status message")
	team := fs.String("team", "", "favorite team id")
	_ = fs.Parse(args)

	update := domain.ProfileUpdate{}
	if *nickname != "" {
		update.Nickname = nickname
	}
	if *image != "" {
		update.ProfileImageURL = image
	}
	if *message != "" {
		update.StatusMessage = message
	}
	if *team != "" {
		update.FavoriteTeamID = team
	}

	if err := a.mgr.UpdateProfile(ctx, update); err != nil {
		return err
	}
	fmt.Println("profile updated")
	return nil
}

func (a *app) cmdSocial(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("social", flag.ExitOnError)
	providerName := fs.String("provider", "google", "google or kakao")
	transport := fs.String("transport", "redirect", "redirect or popup")
	_ = fs.Parse(args)

	var provider domain.Provider
	switch *providerName {
	case "google":
		provider = domain.ProviderGoogle
	case "kakao":
		provider = domain.ProviderKakao
	default:
		return fmt.Errorf("unknown provider %q", *providerName)
	}

	hs := social.NewHandshake(a.mgr, a.repo, a.logger, a.cfg.APIBaseURL, a.cfg.CallbackAddr, openBrowser)

	flowCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	switch *transport {
	case "redirect":
		if err := hs.Redirect(flowCtx, provider); err != nil {
			return err
		}
	case "popup":
		// No window handle to watch here; the user signals completion
		// by pressing enter after closing the browser window.
		var closed atomic.Bool
		fmt.Println("브라우저에서 로그인한 뒤 Enter를 눌러 주세요.")
		go func() {
			_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
			closed.Store(true)
		}()
		if err := hs.Popup(flowCtx, provider, closed.Load); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}

	state := a.mgr.Snapshot()
	if !state.Authenticated() {
		return domain.ErrUnauthenticated
	}
	fmt.Printf("%s님, 환영합니다!\n", state.User.Nickname)
	return nil
}

func (a *app) cmdWatch(ctx context.Context) error {
	metrics.Register()
	checker := health.NewChecker(a.gw, a.logger, prometheus.DefaultRegisterer)
	metricsSrv := metrics.NewServer(":"+a.cfg.MetricsPort, checker)

	go func() {
		a.logger.Info("metrics server started", "port", a.cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", "error", err)
		}
	}()

	runner := keepalive.NewRunner(a.mgr, a.store, a.logger, a.cfg.KeepaliveInterval())
	err := runner.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := metricsSrv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.logger.Error("metrics server shutdown", "error", shutdownErr)
	}
	return err
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
