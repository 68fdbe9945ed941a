package db

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

type migration struct {
	version int
	sql     string
}

var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS campaigns (
    id            UUID PRIMARY KEY,
    tenant_id     TEXT NOT NULL,
    account_id    TEXT NOT NULL DEFAULT '',
    name          TEXT NOT NULL,
    status        TEXT NOT NULL DEFAULT 'draft',
    definition    JSONB NOT NULL DEFAULT '{}'::jsonb,
    scheduled_at  TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_campaigns_tenant ON campaigns (tenant_id, status);

CREATE TABLE IF NOT EXISTS leads (
    id                UUID PRIMARY KEY,
    tenant_id         TEXT NOT NULL,
    campaign_id       UUID NOT NULL REFERENCES campaigns (id),
    profile_id        TEXT NOT NULL DEFAULT '',
    email             TEXT NOT NULL DEFAULT '',
    phone             TEXT NOT NULL DEFAULT '',
    first_name        TEXT NOT NULL DEFAULT '',
    last_name         TEXT NOT NULL DEFAULT '',
    company           TEXT NOT NULL DEFAULT '',
    title             TEXT NOT NULL DEFAULT '',
    headline          TEXT NOT NULL DEFAULT '',
    seniority         TEXT NOT NULL DEFAULT '',
    industry          TEXT NOT NULL DEFAULT '',
    engagement_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
    custom_fields     JSONB NOT NULL DEFAULT '{}'::jsonb,
    current_step_id   TEXT,
    status            TEXT NOT NULL DEFAULT 'pending',
    last_activity_at  TIMESTAMPTZ,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_leads_campaign ON leads (campaign_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS uq_leads_campaign_profile ON leads (campaign_id, profile_id) WHERE profile_id <> '';
CREATE UNIQUE INDEX IF NOT EXISTS uq_leads_campaign_email ON leads (campaign_id, email) WHERE email <> '';

CREATE TABLE IF NOT EXISTS activities (
    id             UUID PRIMARY KEY,
    campaign_id    UUID NOT NULL REFERENCES campaigns (id),
    lead_id        UUID NOT NULL REFERENCES leads (id),
    step_id        TEXT NOT NULL,
    step_type      TEXT NOT NULL,
    status         TEXT NOT NULL,
    scheduled_at   TIMESTAMPTZ,
    error_message  TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
-- at most one pending activity per lead and step
CREATE UNIQUE INDEX IF NOT EXISTS uq_activities_pending ON activities (lead_id, step_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_activities_due_delay ON activities (scheduled_at) WHERE status = 'pending' AND step_type = 'delay';

CREATE TABLE IF NOT EXISTS outreach_sequences (
    id               UUID PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    campaign_id      UUID NOT NULL REFERENCES campaigns (id),
    account_id       TEXT NOT NULL,
    total_profiles   INT NOT NULL,
    daily_limit      INT NOT NULL,
    estimated_days   INT NOT NULL,
    estimated_weeks  INT NOT NULL,
    start_date       TIMESTAMPTZ NOT NULL,
    message          TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL DEFAULT 'active',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sequences_account ON outreach_sequences (account_id, tenant_id, status);

CREATE TABLE IF NOT EXISTS sending_slots (
    id              UUID PRIMARY KEY,
    sequence_id     UUID NOT NULL REFERENCES outreach_sequences (id),
    profile_id      TEXT NOT NULL,
    scheduled_time  TIMESTAMPTZ NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    metadata        JSONB NOT NULL DEFAULT '{}'::jsonb,
    sent_at         TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_slots_due ON sending_slots (sequence_id, scheduled_time) WHERE status = 'pending';
`,
	},
}

// Migrate applies every migration newer than the recorded schema version.
func Migrate(ctx context.Context, database *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := database.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
        version INT PRIMARY KEY,
        applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    )`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := database.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := database.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Info("applied migration", zap.Int("version", m.version))
	}
	return nil
}
