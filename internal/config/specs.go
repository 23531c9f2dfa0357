// Copyright 2026 Canonical Ltd.
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"time"
)

// EnvSpec is the basic environment configuration setup needed for the app to start
type EnvSpec struct {
	OtelGRPCEndpoint string `envconfig:"otel_grpc_endpoint"`
	OtelHTTPEndpoint string `envconfig:"otel_http_endpoint"`
	TracingEnabled   bool   `envconfig:"tracing_enabled" default:"true"`

	LogLevel string `envconfig:"log_level" default:"error"`
	Debug    bool   `envconfig:"debug" default:"false"`

	Port int `envconfig:"port" default:"8080"`

	DSN string `envconfig:"DSN" required:"true"`

	DBMaxConns        int32         `envconfig:"db_max_conns" default:"25"`
	DBMinConns        int32         `envconfig:"db_min_conns" default:"2"`
	DBMaxConnLifetime time.Duration `envconfig:"db_max_conn_lifetime" default:"1h"`
	DBMaxConnIdleTime time.Duration `envconfig:"db_max_conn_idle_time" default:"30m"`

	// Playground relaxes the audience allow-lists and error redaction for
	// local development. Never enable it in a deployed environment.
	Playground bool `envconfig:"playground" default:"false"`

	JWTSecretKey             string `envconfig:"jwt_secret_key" required:"true"`
	JWTExpirationMinutes     int    `envconfig:"jwt_expiration_minutes" default:"60"`
	JWTRefreshExpirationDays int    `envconfig:"jwt_refresh_expiration_days" default:"7"`
	JWTReuseRefreshTokens    bool   `envconfig:"jwt_reuse_refresh_tokens" default:"true"`

	// WebsiteDomain is the apex under which builtin tenant domains are
	// provisioned, e.g. subdomain "acme" becomes "acme.<WebsiteDomain>".
	WebsiteDomain string `envconfig:"domain_website" required:"true"`
	HQDomain      string `envconfig:"domain_hq"`
	// AccountSubdomain is the reserved public-scope selector host label.
	AccountSubdomain string `envconfig:"account_subdomain" default:"account"`

	CaptchaEnabled  bool          `envconfig:"captcha_enabled" default:"false"`
	CaptchaURL      string        `envconfig:"captcha_url" default:"https://www.google.com/recaptcha/api/siteverify"`
	CaptchaSecret   string        `envconfig:"captcha_secret"`
	CaptchaTimeout  time.Duration `envconfig:"captcha_timeout" default:"5s"`
	CaptchaMinScore float64       `envconfig:"captcha_min_score" default:"0.5"`

	CORSAllowedOrigins []string `envconfig:"cors_allowed_origins" default:"*"`
}
