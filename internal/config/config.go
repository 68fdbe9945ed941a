// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

type Config struct {
	DatabaseURL      string        `validate:"required"`
	RedisURL         string        `validate:"omitempty,url"`
	AMQPURL          string        `validate:"omitempty,url"`
	HTTPAddr         string        `validate:"required"`
	LogLevel         string        `validate:"oneof=debug info warn error"`
	MaxWorkflowSteps int           `validate:"gte=1"`
	DelayResumeCron  string        `validate:"required"`
	SlotTickCron     string        `validate:"required"`
	ProviderTimeout  time.Duration `validate:"gt=0"`
	LeadConcurrency  int           `validate:"gte=1"`
	MockSuccessRate  float64       `validate:"gte=0,lte=1"`

	// DefinitionCacheTTL bounds how long a process runs a definition edited
	// through another process.
	DefinitionCacheTTL time.Duration `validate:"gt=0"`
}

// LoadEnv reads a local .env file when present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on OS environment variables")
	}
}

// Flags are shared by every binary; each reads them from the environment as well.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Postgres connection URL",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for distributed locks (in-process locks when empty)",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "amqp-url",
			Usage:   "RabbitMQ URL for workflow jobs (in-memory queue when empty)",
			Sources: cli.EnvVars("AMQP_URL"),
		},
		&cli.StringFlag{
			Name:    "http-addr",
			Value:   ":8080",
			Sources: cli.EnvVars("HTTP_ADDR"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.IntFlag{
			Name:    "max-workflow-steps",
			Usage:   "Iteration ceiling of a single workflow pass",
			Value:   100,
			Sources: cli.EnvVars("MAX_WORKFLOW_STEPS"),
		},
		&cli.StringFlag{
			Name:    "delay-resume-cron",
			Value:   "*/1 * * * *",
			Sources: cli.EnvVars("DELAY_RESUME_CRON"),
		},
		&cli.StringFlag{
			Name:    "slot-tick-cron",
			Value:   "*/5 * * * *",
			Sources: cli.EnvVars("SLOT_TICK_CRON"),
		},
		&cli.DurationFlag{
			Name:    "provider-timeout",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("PROVIDER_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "lead-concurrency",
			Value:   8,
			Sources: cli.EnvVars("LEAD_CONCURRENCY"),
		},
		&cli.FloatFlag{
			Name:    "mock-success-rate",
			Value:   0.9,
			Sources: cli.EnvVars("MOCK_SUCCESS_RATE"),
		},
		&cli.DurationFlag{
			Name:    "definition-cache-ttl",
			Usage:   "How long a cached campaign definition is reused",
			Value:   30 * time.Second,
			Sources: cli.EnvVars("DEFINITION_CACHE_TTL"),
		},
	}
}

// FromCommand builds and validates a Config from parsed flags.
func FromCommand(cmd *cli.Command) (*Config, error) {
	cfg := &Config{
		DatabaseURL:      cmd.String("database-url"),
		RedisURL:         cmd.String("redis-url"),
		AMQPURL:          cmd.String("amqp-url"),
		HTTPAddr:         cmd.String("http-addr"),
		LogLevel:         cmd.String("log-level"),
		MaxWorkflowSteps: cmd.Int("max-workflow-steps"),
		DelayResumeCron:  cmd.String("delay-resume-cron"),
		SlotTickCron:     cmd.String("slot-tick-cron"),
		ProviderTimeout:  cmd.Duration("provider-timeout"),
		LeadConcurrency:  cmd.Int("lead-concurrency"),
		MockSuccessRate:  cmd.Float("mock-success-rate"),

		DefinitionCacheTTL: cmd.Duration("definition-cache-ttl"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
