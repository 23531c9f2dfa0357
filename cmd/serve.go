// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/canonical/tenant-auth-service/internal/captcha"
	"github.com/canonical/tenant-auth-service/internal/config"
	"github.com/canonical/tenant-auth-service/internal/db"
	"github.com/canonical/tenant-auth-service/internal/events"
	"github.com/canonical/tenant-auth-service/internal/logging"
	"github.com/canonical/tenant-auth-service/internal/monitoring/prometheus"
	"github.com/canonical/tenant-auth-service/internal/storage"
	"github.com/canonical/tenant-auth-service/internal/tracing"
	"github.com/canonical/tenant-auth-service/pkg/authentication"
	"github.com/canonical/tenant-auth-service/pkg/authn"
	"github.com/canonical/tenant-auth-service/pkg/contract"
	"github.com/canonical/tenant-auth-service/pkg/directory"
	"github.com/canonical/tenant-auth-service/pkg/tenant"
	"github.com/canonical/tenant-auth-service/pkg/token"
	"github.com/canonical/tenant-auth-service/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve starts the web server",
	Long:  `Launch the web application, list of environment variables is available in the readme`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(); err != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	specs := new(config.EnvSpec)
	if err := envconfig.Process("", specs); err != nil {
		panic(fmt.Errorf("issues with environment sourcing: %s", err))
	}

	logger := logging.NewLogger(specs.LogLevel)
	defer logger.Sync()

	monitor := prometheus.NewMonitor("tenant-auth-service", logger)
	tracer := tracing.NewTracer(tracing.NewConfig(specs.TracingEnabled, specs.OtelGRPCEndpoint, specs.OtelHTTPEndpoint, logger))

	dbConfig := db.Config{
		DSN:             specs.DSN,
		MaxConns:        specs.DBMaxConns,
		MinConns:        specs.DBMinConns,
		MaxConnLifetime: specs.DBMaxConnLifetime,
		MaxConnIdleTime: specs.DBMaxConnIdleTime,
		TracingEnabled:  specs.TracingEnabled,
	}
	dbClient, err := db.NewDBClient(dbConfig, tracer, monitor, logger)
	if err != nil {
		return fmt.Errorf("failed to create database client: %v", err)
	}
	defer dbClient.Close()

	directoryStorage := storage.NewDirectory(dbClient, tracer, monitor, logger)
	accountStorage := storage.NewAccounts(dbClient, tracer, monitor, logger)

	emitter := events.NewEmitter(logger, events.AuditObserver(logger))

	var verifier captcha.VerifierInterface = captcha.NewNoopVerifier()
	if specs.CaptchaEnabled {
		verifier = captcha.NewVerifier(captcha.Config{
			URL:      specs.CaptchaURL,
			Secret:   specs.CaptchaSecret,
			Timeout:  specs.CaptchaTimeout,
			MinScore: specs.CaptchaMinScore,
		}, tracer, logger)
		logger.Info("Captcha verification is enabled")
	}

	directoryService := directory.NewService(
		directoryStorage,
		specs.WebsiteDomain,
		specs.AccountSubdomain,
		tracer,
		monitor,
		logger,
	)

	gate := contract.NewGate(directoryStorage, tracer, monitor, logger)

	tokenService := token.NewService(
		token.Config{
			SecretKey:          []byte(specs.JWTSecretKey),
			AccessLifetime:     time.Duration(specs.JWTExpirationMinutes) * time.Minute,
			RefreshLifetime:    time.Duration(specs.JWTRefreshExpirationDays) * 24 * time.Hour,
			ReuseRefreshTokens: specs.JWTReuseRefreshTokens,
		},
		accountStorage,
		emitter,
		tracer,
		monitor,
		logger,
	)

	authenticator := authn.NewAuthenticator(accountStorage, emitter, tracer, monitor, logger)

	tenantService := tenant.NewService(
		directoryStorage,
		accountStorage,
		dbClient,
		tokenService,
		specs.WebsiteDomain,
		specs.AccountSubdomain,
		specs.HQDomain,
		tracer,
		monitor,
		logger,
	)

	var resolver authentication.ResolverInterface = authentication.NewResolver(tokenService, accountStorage, tracer, monitor, logger)
	if specs.Playground {
		resolver = authentication.NewNoopResolver()
	}
	authMiddleware := authentication.NewMiddleware(resolver, !specs.Playground, tracer, monitor, logger)
	directoryMiddleware := directory.NewMiddleware(directoryService, tracer, logger)

	authnAPI := authn.NewAPI(authenticator, tokenService, directoryService, gate, verifier, tracer, monitor, logger)
	tokenAPI := token.NewAPI(tokenService, tracer, monitor, logger)
	tenantAPI := tenant.NewAPI(tenantService, verifier, tracer, monitor, logger)

	router := web.NewRouter(
		directoryMiddleware,
		authMiddleware,
		authnAPI,
		tokenAPI,
		tenantAPI,
		dbClient,
		specs.CORSAllowedOrigins,
		tracer,
		monitor,
		logger,
	)
	logger.Infof("Starting HTTP server on port %v", specs.Port)

	srv := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%v", specs.Port),
		WriteTimeout: time.Second * 60,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	var serverError error
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError = fmt.Errorf("server error: %w", err)
			c <- os.Interrupt
		}
	}()

	<-c

	// Create a deadline to wait for.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		serverError = fmt.Errorf("server shutdown error: %w", err)
	}

	return serverError
}
