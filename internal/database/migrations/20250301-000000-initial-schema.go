package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250301-000000",
		Description: "Initial schema",
		Up: []string{
			// Daily usage ledger. One row per (user, bucket, day); increments
			// are single-statement upserts so concurrent requests never lose
			// counts.
			`CREATE TABLE IF NOT EXISTS usage_records (
				user_email TEXT NOT NULL,
				bucket TEXT NOT NULL,
				date TEXT NOT NULL,
				requests INTEGER NOT NULL DEFAULT 0,
				text_requests INTEGER NOT NULL DEFAULT 0,
				image_generations INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				PRIMARY KEY (user_email, bucket, date)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_usage_records_user_date ON usage_records(user_email, date)`,

			// Legacy per-user totals document, kept as a derived view of the
			// ledger for clients that still read it.
			`CREATE TABLE IF NOT EXISTS user_limits (
				user_email TEXT PRIMARY KEY,
				guides_json TEXT NOT NULL DEFAULT '{}',
				last_export_at TEXT,
				updated_at TEXT NOT NULL
			)`,

			// Guest lifetime counters, keyed by HMAC identity (never raw IP).
			`CREATE TABLE IF NOT EXISTS guest_counters (
				identity TEXT PRIMARY KEY,
				guides INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,

			// Chat sessions and their messages.
			`CREATE TABLE IF NOT EXISTS chat_sessions (
				id TEXT PRIMARY KEY,
				user_email TEXT NOT NULL,
				title TEXT NOT NULL,
				model TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_sessions_user ON chat_sessions(user_email, updated_at)`,

			`CREATE TABLE IF NOT EXISTS chat_messages (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				model TEXT,
				images_json TEXT,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at)`,
		},
	})
}
