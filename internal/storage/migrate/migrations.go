package migrate

import "database/sql"

// Registered schema history. Versions are dense; new migrations append
// with the next integer. Both dialects carry the same logical schema.

// ForDialect returns the full registered migration set for a dialect.
func ForDialect(dialect string) []Migration {
	if dialect == "postgres" {
		return postgresMigrations()
	}
	return sqliteMigrations()
}

func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "initial_schema",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS contexts (
					conversation_id TEXT PRIMARY KEY,
					project_id TEXT,
					snapshot TEXT NOT NULL,
					updated_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_contexts_project ON contexts(project_id)`,
				`CREATE INDEX IF NOT EXISTS idx_contexts_updated ON contexts(updated_at)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS contexts`,
			},
		},
		{
			Version: 2,
			Name:    "add_messages",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS messages (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					conversation_id TEXT NOT NULL,
					role TEXT NOT NULL,
					content TEXT NOT NULL,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS messages`,
			},
		},
		{
			Version: 3,
			Name:    "add_cost_tracking",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS cost_records (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tool TEXT NOT NULL,
					model TEXT,
					input_tokens INTEGER NOT NULL DEFAULT 0,
					output_tokens INTEGER NOT NULL DEFAULT 0,
					cost_usd_micros INTEGER NOT NULL DEFAULT 0,
					conversation_id TEXT,
					project_id TEXT,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_cost_tool_time ON cost_records(tool, created_at)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS cost_records`,
			},
		},
		{
			Version: 4,
			Name:    "add_security",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					username TEXT NOT NULL UNIQUE,
					email TEXT,
					password_hash TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'user',
					api_key_hash TEXT,
					created_at TEXT NOT NULL,
					updated_at TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_users_api_key_hash ON users(api_key_hash)`,
				`CREATE TABLE IF NOT EXISTS api_keys (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					key_hash TEXT NOT NULL UNIQUE,
					key_prefix TEXT NOT NULL,
					name TEXT,
					expires_at TEXT,
					created_at TEXT NOT NULL,
					revoked_at TEXT
				)`,
				`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
				`CREATE TABLE IF NOT EXISTS audit_logs (
					id TEXT PRIMARY KEY,
					event_type TEXT NOT NULL,
					user_id TEXT,
					resource_type TEXT,
					resource_id TEXT,
					ip_address TEXT,
					user_agent TEXT,
					details TEXT,
					created_at TEXT NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_user_time ON audit_logs(user_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_type_time ON audit_logs(event_type, created_at)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS audit_logs`,
				`DROP TABLE IF EXISTS api_keys`,
				`DROP TABLE IF EXISTS users`,
			},
		},
	}
}

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "initial_schema",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS contexts (
					conversation_id TEXT PRIMARY KEY,
					project_id TEXT,
					snapshot JSONB NOT NULL,
					updated_at TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_contexts_project ON contexts(project_id)`,
				`CREATE INDEX IF NOT EXISTS idx_contexts_updated ON contexts(updated_at)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS contexts`,
			},
		},
		{
			Version: 2,
			Name:    "add_messages",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS messages (
					id BIGSERIAL PRIMARY KEY,
					conversation_id TEXT NOT NULL,
					role TEXT NOT NULL,
					content TEXT NOT NULL,
					created_at TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS messages`,
			},
		},
		{
			Version: 3,
			Name:    "add_cost_tracking",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS cost_records (
					id BIGSERIAL PRIMARY KEY,
					tool TEXT NOT NULL,
					model TEXT,
					input_tokens INTEGER NOT NULL DEFAULT 0,
					output_tokens INTEGER NOT NULL DEFAULT 0,
					cost_usd_micros BIGINT NOT NULL DEFAULT 0,
					conversation_id TEXT,
					project_id TEXT,
					created_at TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_cost_tool_time ON cost_records(tool, created_at)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS cost_records`,
			},
		},
		{
			Version: 4,
			Name:    "add_security",
			UpSQL: []string{
				`CREATE TABLE IF NOT EXISTS users (
					id TEXT PRIMARY KEY,
					username TEXT NOT NULL UNIQUE,
					email TEXT,
					password_hash TEXT NOT NULL,
					role TEXT NOT NULL DEFAULT 'user',
					api_key_hash TEXT,
					created_at TIMESTAMPTZ NOT NULL,
					updated_at TIMESTAMPTZ
				)`,
				`CREATE INDEX IF NOT EXISTS idx_users_api_key_hash ON users(api_key_hash)`,
				`CREATE TABLE IF NOT EXISTS api_keys (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL REFERENCES users(id),
					key_hash TEXT NOT NULL UNIQUE,
					key_prefix TEXT NOT NULL,
					name TEXT,
					expires_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL,
					revoked_at TIMESTAMPTZ
				)`,
				`CREATE INDEX IF NOT EXISTS idx_api_keys_user ON api_keys(user_id)`,
				`CREATE TABLE IF NOT EXISTS audit_logs (
					id TEXT PRIMARY KEY,
					event_type TEXT NOT NULL,
					user_id TEXT,
					resource_type TEXT,
					resource_id TEXT,
					ip_address TEXT,
					user_agent TEXT,
					details JSONB,
					created_at TIMESTAMPTZ NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_user_time ON audit_logs(user_id, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_audit_type_time ON audit_logs(event_type, created_at)`,
			},
			DownSQL: []string{
				`DROP TABLE IF EXISTS audit_logs`,
				`DROP TABLE IF EXISTS api_keys`,
				`DROP TABLE IF EXISTS users`,
			},
		},
	}
}

// NewRegisteredRunner builds a Runner with the full migration set loaded.
func NewRegisteredRunner(db *sql.DB, dialect string) (*Runner, error) {
	r := NewRunner(db, dialect)
	for _, m := range ForDialect(dialect) {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}
