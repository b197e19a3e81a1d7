// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Env holds the configuration values for the application.
type Env struct {
	Region        string        `envconfig:"AWS_REGION" default:"us-east-1"`
	EndpointURL   string        `envconfig:"AWS_ENDPOINT_URL"` // e.g. http://localstack:4566
	Bucket        string        `envconfig:"S3_BUCKET" required:"true"`
	Table         string        `envconfig:"DDB_TABLE" required:"true"`
	DisasterIndex string        `envconfig:"DDB_DISASTER_INDEX" default:"disaster-index"`
	PresignTTL    time.Duration `envconfig:"PRESIGN_TTL" default:"5m"`
	DevBypassAuth bool          `envconfig:"DEV_BYPASS_AUTH" default:"false"`
	LogLevel      string        `envconfig:"LOG_LEVEL" default:"info"`
	IDAttempts    int           `envconfig:"CLAIM_ID_ATTEMPTS" default:"5"`
}

// Load reads the environment into an Env.
func Load() (Env, error) {
	var e Env
	if err := envconfig.Process("", &e); err != nil {
		return Env{}, fmt.Errorf("error loading env vars: %w", err)
	}
	// envconfig accepts a set-but-empty variable as present.
	if e.Bucket == "" || e.Table == "" {
		return Env{}, fmt.Errorf("S3_BUCKET and DDB_TABLE must not be empty")
	}
	if e.PresignTTL <= 0 {
		return Env{}, fmt.Errorf("PRESIGN_TTL must be positive, got %s", e.PresignTTL)
	}
	if e.IDAttempts < 1 {
		return Env{}, fmt.Errorf("CLAIM_ID_ATTEMPTS must be at least 1, got %d", e.IDAttempts)
	}
	return e, nil
}

// MustLoad is Load for main packages; it panics on a bad environment.
func MustLoad() Env {
	e, err := Load()
	if err != nil {
		panic(err)
	}
	return e
}
