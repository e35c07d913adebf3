package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"scorio"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"scorio"`

	// AppBaseURL is the externally reachable address of this service, used to
	// build the callback URL handed to the AI service. If it is empty, dispatch
	// fails at dispatch time (the job is marked failed); it is not a boot error.
	AppBaseURL string `envconfig:"APP_BASE_URL"`

	// AIBaseURL is the base address of the external conversion service.
	AIBaseURL string `envconfig:"AI_BASE_URL"`

	NSQDHost string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	DispatchWorkers        int `envconfig:"DISPATCH_WORKERS" default:"4"`
	DispatchTimeoutSeconds int `envconfig:"DISPATCH_TIMEOUT_SECONDS" default:"10"`

	// Server
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	StorageRoot     string `envconfig:"STORAGE_ROOT" default:"./storage"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"200"`
	MigrationPath   string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.StorageRoot == "" {
		return fmt.Errorf("%w: STORAGE_ROOT", ErrMissingRequired)
	}
	return nil
}

// InputDir is the directory under the storage root where uploaded media lands.
func (c *Config) InputDir() string {
	return filepath.Join(c.StorageRoot, "input")
}
