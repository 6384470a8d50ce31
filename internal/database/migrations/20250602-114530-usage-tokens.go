package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250602-114530",
		Description: "Track token totals in the usage ledger",
		Up: []string{
			`ALTER TABLE usage_records ADD COLUMN tokens INTEGER NOT NULL DEFAULT 0`,
		},
	})
}
