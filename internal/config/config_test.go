package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"
)

func parse(t *testing.T, args ...string) *Config {
	t.Helper()
	var cfg *Config
	cmd := &cli.Command{
		Name:  "leadflow-test",
		Flags: Flags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var err error
			cfg, err = FromCommand(cmd)
			return err
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"leadflow-test"}, args...)))
	return cfg
}

func TestFromCommand_Defaults(t *testing.T) {
	cfg := parse(t, "--database-url", "postgres://localhost/leadflow")

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 100, cfg.MaxWorkflowSteps)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 30*time.Second, cfg.DefinitionCacheTTL)
}

func TestFromCommand_DefinitionCacheTTLFromEnv(t *testing.T) {
	t.Setenv("DEFINITION_CACHE_TTL", "5s")

	cfg := parse(t, "--database-url", "postgres://localhost/leadflow")
	assert.Equal(t, 5*time.Second, cfg.DefinitionCacheTTL)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := &Config{
		DatabaseURL:        "postgres://localhost/leadflow",
		HTTPAddr:           ":8080",
		LogLevel:           "verbose",
		MaxWorkflowSteps:   100,
		DelayResumeCron:    "*/1 * * * *",
		SlotTickCron:       "*/5 * * * *",
		ProviderTimeout:    time.Second,
		LeadConcurrency:    1,
		DefinitionCacheTTL: time.Second,
	}
	assert.Error(t, cfg.Validate())

	cfg.LogLevel = "info"
	assert.NoError(t, cfg.Validate())
}
