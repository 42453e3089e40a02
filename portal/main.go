package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/idp-labs/portal/internal/engine"
	"github.com/idp-labs/portal/internal/platform/auth"
	"github.com/idp-labs/portal/internal/platform/env"
	"github.com/idp-labs/portal/internal/platform/httpserver"
	"github.com/idp-labs/portal/internal/platform/postgres"
	repopg "github.com/idp-labs/portal/internal/repo/postgres"
	"github.com/idp-labs/portal/internal/service/actions"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PORTAL_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("PORTAL_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := repopg.Migrate(db); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	engCfg, err := engine.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid workflow engine config", "error", err)
		os.Exit(2)
	}
	var eng engine.Engine
	if engCfg.Enabled() {
		sfnEngine, err := engine.NewStepFunctions(ctx, engCfg)
		if err != nil {
			logger.Error("workflow engine client init failed", "error", err)
			os.Exit(2)
		}
		eng = sfnEngine
		logger.Info("workflow engine configured", "state_machine_arn", engCfg.StateMachineARN)
	} else {
		logger.Info("workflow engine not configured; actions resolve locally")
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	users, err := auth.LoadUsers(authCfg.UsersFile)
	if err != nil {
		logger.Error("loading users failed", "error", err)
		os.Exit(2)
	}
	userStore, err := auth.NewUserStore(users)
	if err != nil {
		logger.Error("invalid user set", "error", err)
		os.Exit(2)
	}

	callbackToken := env.String("PROVISIONING_CALLBACK_TOKEN", "dev-callback-token")
	bucketPrefix := env.String("TENANT_BUCKET_PREFIX", "idp-tenant")
	allowedRuntimes := env.CSV("PORTAL_ALLOWED_RUNTIMES", []string{"go", "python"})

	grafanaOrgID, err := env.Int("OBSERVABILITY_GRAFANA_ORG_ID", 1)
	if err != nil {
		logger.Error("invalid grafana org id", "error", err)
		os.Exit(2)
	}
	grafana := grafanaConfig{
		BaseURL:      env.String("OBSERVABILITY_GRAFANA_URL", ""),
		DashboardUID: env.String("OBSERVABILITY_GRAFANA_DASHBOARD_UID", "idp-service"),
		OrgID:        grafanaOrgID,
	}

	stores := repopg.New(db)
	core := actions.New(logger, stores, eng, actions.Config{BucketPrefix: bucketPrefix})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("portal"))
	mux.HandleFunc(
		"/readyz",
		httpserver.Readyz(
			"portal",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
		),
	)

	api := newPortalAPI(logger, stores, core, userStore, authCfg, callbackToken, grafana, allowedRuntimes)
	api.register(mux, auth.Middleware{Logger: logger, JWTSecret: authCfg.JWTSecret})

	handler := httpserver.Wrap(logger, "portal", mux)
	if err := httpserver.Run(ctx, logger, httpserver.Config{
		Service:         "portal",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}, handler); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
