package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"clinicore.org/internal/auth"
	"clinicore.org/internal/httpapi"
	"clinicore.org/internal/migrate"
	"clinicore.org/internal/obs"
	"clinicore.org/internal/session"
	"clinicore.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	secret := os.Getenv("CLINICORE_AUTH_SECRET")
	if secret == "" {
		log.Fatal().Msg("CLINICORE_AUTH_SECRET is required")
	}
	dsn := os.Getenv("CLINICORE_PG_DSN")
	if dsn == "" {
		log.Fatal().Msg("CLINICORE_PG_DSN is required")
	}

	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	defer store.Close()

	if envBool("CLINICORE_AUTO_MIGRATE", true) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		mgr := migrate.NewManager(store.DB())
		if err := mgr.Up(ctx); err != nil {
			cancel()
			log.Fatal().Err(err).Msg("apply migrations")
		}
		cancel()
	}

	// Session registry is optional; without Redis the service still issues
	// and rotates tokens, it just cannot enumerate devices or blacklist jtis.
	var (
		reg *session.Registry
		rdb *redis.Client
	)
	if addr := os.Getenv("CLINICORE_REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("CLINICORE_REDIS_PASSWORD"),
		})
		defer rdb.Close()
		reg = session.NewRegistry(rdb, envDuration("CLINICORE_SESSION_WINDOW", session.DefaultWindow))
	} else {
		log.Warn().Msg("CLINICORE_REDIS_ADDR not set, session registry disabled")
	}

	opts := []auth.ServiceOption{
		auth.WithIssuer(envString("CLINICORE_TOKEN_ISSUER", "clinicore")),
		auth.WithAccessTTL(auth.ParseExpiry(os.Getenv("CLINICORE_ACCESS_TTL"))),
		auth.WithRefreshTTL(envDuration("CLINICORE_REFRESH_TTL", 7*24*time.Hour)),
	}
	if reg != nil {
		opts = append(opts, auth.WithSessions(reg))
	}
	svc, err := auth.NewService(store.Identities(), store.Roles(), store.RefreshTokens(), secret, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("build auth service")
	}

	if err := seedRoles(context.Background(), svc); err != nil {
		log.Fatal().Err(err).Msg("seed roles")
	}
	if err := bootstrapAdmin(context.Background(), svc, store); err != nil {
		log.Fatal().Err(err).Msg("bootstrap admin")
	}

	janitorStop := startTokenJanitor(store.RefreshTokens(), envDuration("CLINICORE_JANITOR_INTERVAL", time.Hour))
	defer janitorStop()

	probe := httpapi.ReadyProbe{DB: store.DB()}
	if rdb != nil {
		probe.Ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	api := httpapi.New(svc, reg, probe, version)

	srv := &http.Server{
		Addr:              envString("CLINICORE_ADDR", ":8080"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting clinicore-auth")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info().Msg("stopped")
}

// seedRoles installs the built-in role catalog on first boot. Existing roles
// are left untouched so operator edits survive restarts.
func seedRoles(ctx context.Context, svc *auth.Service) error {
	for _, seed := range auth.SeedRoles() {
		_, err := svc.Directory().FindByName(ctx, seed.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, auth.ErrNotFound) {
			return err
		}
		if _, err := svc.Directory().Create(ctx, seed.Name, seed.Description, seed.Permissions); err != nil {
			return err
		}
		obs.Logger().Info().Str("role", seed.Name).Msg("seeded role")
	}
	return nil
}

// bootstrapAdmin creates the first SUPER_ADMIN identity from environment
// configuration so a fresh deployment is operable without manual SQL. Without
// CLINICORE_BOOTSTRAP_ADMIN_EMAIL and _PASSWORD the step is skipped; rerunning
// against an existing account is a no-op.
func bootstrapAdmin(ctx context.Context, svc *auth.Service, store *pg.Store) error {
	email := strings.TrimSpace(os.Getenv("CLINICORE_BOOTSTRAP_ADMIN_EMAIL"))
	password := os.Getenv("CLINICORE_BOOTSTRAP_ADMIN_PASSWORD")
	if email == "" || password == "" {
		obs.Logger().Warn().Msg("CLINICORE_BOOTSTRAP_ADMIN_EMAIL/_PASSWORD not set, skipping admin bootstrap")
		return nil
	}
	orgID := envString("CLINICORE_BOOTSTRAP_ADMIN_ORG", "org-root")
	if err := store.Organizations().Ensure(ctx, orgID, envString("CLINICORE_BOOTSTRAP_ADMIN_ORG_NAME", "Root")); err != nil {
		return err
	}
	admin, err := svc.EnsureAdmin(ctx, email, password, orgID)
	if err != nil {
		return err
	}
	obs.Logger().Info().Str("identity_id", admin.ID).Str("email", admin.Email).Msg("admin identity ensured")
	return nil
}

// startTokenJanitor periodically deletes refresh tokens whose expiry has
// passed. Revoked-but-unexpired rows stay for replay detection.
func startTokenJanitor(tokens auth.RefreshTokenStore, interval time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				n, err := tokens.DeleteExpiredBefore(ctx, time.Now().UTC())
				cancel()
				if err != nil {
					obs.Logger().Error().Err(err).Msg("token janitor sweep")
					continue
				}
				if n > 0 {
					obs.Logger().Info().Int64("deleted", n).Msg("token janitor sweep")
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
