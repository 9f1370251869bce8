package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"Ironyard"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"ironyard"`
	}

	Server struct {
		Timeout         time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	}

	Auth struct {
		Secret string `envconfig:"AUTH_JWT_SECRET" required:"true"`
		Issuer string `envconfig:"AUTH_JWT_ISSUER" default:"ironyard"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	}

	Reservation struct {
		MaxDuration time.Duration `envconfig:"RESERVATION_MAX_DURATION" default:"168h"`
	}

	Sweeper struct {
		// Interval of the in-process scheduler. Zero leaves sweeping to an
		// external trigger.
		Interval  time.Duration `envconfig:"SWEEPER_INTERVAL" default:"0"`
		BatchSize int           `envconfig:"SWEEPER_BATCH_SIZE" default:"500"`
		Timeout   time.Duration `envconfig:"SWEEPER_TIMEOUT" default:"2m"`
	}

	RabbitMQ struct {
		URL      string `envconfig:"RABBITMQ_URL"`
		Exchange string `envconfig:"RABBITMQ_EXCHANGE" default:"ironyard.listings"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// MigrationURL is the connection string in the form golang-migrate's pgx/v5
// driver expects.
func (c *Config) MigrationURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("failed to process config: AUTH_JWT_SECRET must not be empty")
	}

	if cfg.Sweeper.BatchSize <= 0 {
		return nil, fmt.Errorf("failed to process config: SWEEPER_BATCH_SIZE must be positive")
	}

	return &cfg, nil
}
