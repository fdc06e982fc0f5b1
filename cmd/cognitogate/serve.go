package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ggoodman/cognito-auth-go/auth"
	"github.com/ggoodman/cognito-auth-go/config"
	"github.com/ggoodman/cognito-auth-go/internal/metrics"
	"github.com/ggoodman/cognito-auth-go/internal/wellknown"
	"github.com/ggoodman/cognito-auth-go/middleware"
	"github.com/ggoodman/cognito-auth-go/revocation"
	"github.com/ggoodman/cognito-auth-go/revocation/memory"
	revredis "github.com/ggoodman/cognito-auth-go/revocation/redis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gated demo service",
		Long: "Serve /healthz, /metrics and the protected resource metadata publicly and answer every other path, behind the gate, " +
			"with the authenticated principal as JSON.",
		Example: "  cognitogate serve --user-pool-id us-east-2_AbCdEf123 --client-id 1example23456789",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := newLogger(cfg.Log.Level, cmd.ErrOrStderr())
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	authority, err := cfg.Authority()
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "authority.resolved",
		slog.String("authority", authority.String()),
		slog.String("region", authority.Region().SystemName),
		slog.String("region_source", string(authority.RegionSource())),
	)
	if authority.PoolRegionMismatch() {
		log.WarnContext(ctx, "authority.region.mismatch", slog.String("user_pool_id", authority.UserPoolID()))
	}

	store, err := openStore(ctx, cfg.Revocation)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	if err := seedStore(ctx, store, cfg.Revocation, log); err != nil {
		return err
	}

	authn, err := newAuthenticator(ctx, cfg, authority, store)
	if err != nil {
		return fmt.Errorf("authenticator: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler, err := newHandler(cfg, authn, reg, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "http.listen", slog.String("addr", cfg.Server.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("http.shutdown.fail", slog.String("err", err.Error()))
		}
		log.Info("http.shutdown")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}
}

// openStore returns nil when revocation is disabled.
func openStore(ctx context.Context, rc config.Revocation) (revocation.Store, error) {
	switch rc.Backend {
	case "memory":
		s, err := memory.New(rc.MaxEntries)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: rc.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		s, err := revredis.New(revredis.Config{Client: client, KeyPrefix: rc.KeyPrefix})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

// seedStore revokes the configured deny_ids for deny_ttl. The memory backend
// has no other writer, so an empty list there is worth a warning.
func seedStore(ctx context.Context, store revocation.Store, rc config.Revocation, log *slog.Logger) error {
	if store == nil {
		return nil
	}
	until := time.Now().Add(rc.DenyTTL)
	for _, id := range rc.DenyIDs {
		if err := store.Revoke(ctx, id, until); err != nil {
			return fmt.Errorf("seed revocation %s: %w", id, err)
		}
	}
	if len(rc.DenyIDs) > 0 {
		log.InfoContext(ctx, "revocation.seeded", slog.Int("count", len(rc.DenyIDs)), slog.Time("until", until))
	} else if rc.Backend == "memory" {
		log.WarnContext(ctx, "revocation.memory.empty", slog.String("hint", "set revocation.deny_ids; the revoke command only reaches redis"))
	}
	return nil
}

func newAuthenticator(ctx context.Context, cfg config.Config, authority auth.Authority, store revocation.Store) (auth.SecurityProvider, error) {
	opts := cfg.AuthOptions()
	if store != nil {
		opts = append(opts, auth.WithDenylist(store))
	}
	if cfg.Auth.Discovery {
		return auth.NewFromAuthority(ctx, authority, opts...)
	}
	return auth.SecurityConfigFor(authority).NewStaticAuthenticator(ctx, opts...)
}

func newHandler(cfg config.Config, authn auth.Authenticator, reg *prometheus.Registry, log *slog.Logger) (http.Handler, error) {
	gate, err := middleware.New(authn,
		middleware.WithLogger(log),
		middleware.WithRealm(cfg.Auth.Realm),
		middleware.WithMetrics(metrics.New(reg)),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if d, ok := authn.(auth.SecurityDescriptor); ok {
		sc := d.SecurityConfig()
		mux.Handle("GET "+wellknown.Path, wellknown.Handler(wellknown.Source{
			Issuer:         sc.Issuer,
			JWKSURL:        sc.JWKSURL,
			Scopes:         append(append([]string(nil), cfg.Auth.RequiredScopes...), cfg.Auth.AnyScopes...),
			Name:           cfg.Auth.Realm,
			TrustForwarded: cfg.Server.TrustProxyHeaders,
		}))
	}
	mux.Handle("/", gate.Handler(http.HandlerFunc(whoami)))

	if len(cfg.Server.CORSOrigins) == 0 {
		return mux, nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"WWW-Authenticate", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           int(2 * time.Hour / time.Second),
	})
	return c.Handler(mux), nil
}

type principalView struct {
	Subject  string   `json:"sub"`
	ClientID string   `json:"client_id,omitempty"`
	Username string   `json:"username,omitempty"`
	Scopes   []string `json:"scopes,omitempty"`
	Groups   []string `json:"groups,omitempty"`
}

func whoami(w http.ResponseWriter, r *http.Request) {
	ui, ok := middleware.UserInfoFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusInternalServerError)
		return
	}
	p := ui.Principal()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(principalView{
		Subject:  p.Subject(),
		ClientID: p.ClientID(),
		Username: p.Username(),
		Scopes:   p.Scopes(),
		Groups:   p.Groups(),
	})
}
