package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					chain TEXT NOT NULL,
					dao_name TEXT NOT NULL,
					from_address TEXT NOT NULL,
					to_address TEXT NOT NULL,
					token_symbol TEXT NOT NULL,
					token_amount TEXT NOT NULL,
					usd_value TEXT,
					event_kind TEXT NOT NULL,
					block_number INTEGER NOT NULL,
					block_time DATETIME NOT NULL,
					observed_at DATETIME NOT NULL,
					raw_payload TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_events_chain_block ON events(chain, block_number);
				CREATE INDEX IF NOT EXISTS idx_events_dao_time ON events(dao_name, block_time);
				CREATE INDEX IF NOT EXISTS idx_events_token ON events(token_symbol);
				CREATE INDEX IF NOT EXISTS idx_events_observed_at ON events(observed_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create alerts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alerts (
					alert_id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL UNIQUE,
					severity TEXT NOT NULL,
					delivery_status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER NOT NULL DEFAULT 0,
					claimed_at DATETIME NOT NULL,
					dispatched_at DATETIME,
					last_error TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (event_id) REFERENCES events (id)
				);

				CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(delivery_status);
				CREATE INDEX IF NOT EXISTS idx_alerts_claimed_at ON alerts(claimed_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create poll_cursors table",
			SQL: `
				CREATE TABLE IF NOT EXISTS poll_cursors (
					chain TEXT NOT NULL,
					address TEXT NOT NULL,
					last_seen_block INTEGER NOT NULL DEFAULT 0,
					last_poll_at DATETIME NOT NULL,
					last_success_at DATETIME,
					consecutive_failures INTEGER NOT NULL DEFAULT 0,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (chain, address)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create token_prices table",
			SQL: `
				CREATE TABLE IF NOT EXISTS token_prices (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					token_symbol TEXT NOT NULL,
					chain TEXT NOT NULL,
					price_usd TEXT NOT NULL,
					fetched_at DATETIME NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_token_prices_symbol_time ON token_prices(chain, token_symbol, fetched_at);
			`,
		},
	}
}

// GetPostgreSQLMigrations returns PostgreSQL migration scripts
func GetPostgreSQLMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS events (
					id TEXT PRIMARY KEY,
					chain TEXT NOT NULL,
					dao_name TEXT NOT NULL,
					from_address TEXT NOT NULL,
					to_address TEXT NOT NULL,
					token_symbol TEXT NOT NULL,
					token_amount NUMERIC NOT NULL,
					usd_value NUMERIC,
					event_kind TEXT NOT NULL,
					block_number BIGINT NOT NULL,
					block_time TIMESTAMPTZ NOT NULL,
					observed_at TIMESTAMPTZ NOT NULL,
					raw_payload JSONB,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_events_chain_block ON events(chain, block_number);
				CREATE INDEX IF NOT EXISTS idx_events_dao_time ON events(dao_name, block_time);
				CREATE INDEX IF NOT EXISTS idx_events_token ON events(token_symbol);
				CREATE INDEX IF NOT EXISTS idx_events_observed_at ON events(observed_at);
			`,
		},
		{
			Version:     "002",
			Description: "Create alerts table",
			SQL: `
				CREATE TABLE IF NOT EXISTS alerts (
					alert_id TEXT PRIMARY KEY,
					event_id TEXT NOT NULL UNIQUE REFERENCES events (id),
					severity TEXT NOT NULL,
					delivery_status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER NOT NULL DEFAULT 0,
					claimed_at TIMESTAMPTZ NOT NULL,
					dispatched_at TIMESTAMPTZ,
					last_error TEXT,
					created_at TIMESTAMPTZ DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(delivery_status);
				CREATE INDEX IF NOT EXISTS idx_alerts_claimed_at ON alerts(claimed_at);
			`,
		},
		{
			Version:     "003",
			Description: "Create poll_cursors table",
			SQL: `
				CREATE TABLE IF NOT EXISTS poll_cursors (
					chain TEXT NOT NULL,
					address TEXT NOT NULL,
					last_seen_block BIGINT NOT NULL DEFAULT 0,
					last_poll_at TIMESTAMPTZ NOT NULL,
					last_success_at TIMESTAMPTZ,
					consecutive_failures INTEGER NOT NULL DEFAULT 0,
					updated_at TIMESTAMPTZ DEFAULT NOW(),
					PRIMARY KEY (chain, address)
				);
			`,
		},
		{
			Version:     "004",
			Description: "Create token_prices table",
			SQL: `
				CREATE TABLE IF NOT EXISTS token_prices (
					id BIGSERIAL PRIMARY KEY,
					token_symbol TEXT NOT NULL,
					chain TEXT NOT NULL,
					price_usd NUMERIC NOT NULL,
					fetched_at TIMESTAMPTZ NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_token_prices_symbol_time ON token_prices(chain, token_symbol, fetched_at);
			`,
		},
	}
}
