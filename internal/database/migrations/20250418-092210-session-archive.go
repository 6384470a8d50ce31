package migrations

func init() {
	Register(Migration{
		Timestamp:   "20250418-092210",
		Description: "Add archived flag to chat sessions",
		Up: []string{
			`ALTER TABLE chat_sessions ADD COLUMN archived INTEGER NOT NULL DEFAULT 0`,
		},
	})
}
