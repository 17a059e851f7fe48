package store

import "strings"

// migration represents a single schema migration. Statements are shared by
// both dialects; the only spelling difference is the auto-increment key.
type migration struct {
	Version int
	Name    string
	SQL     []string
}

const serialKey = "{{serial}}"

func (m migration) statements(driver string) []string {
	key := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == DriverPostgres {
		key = "BIGSERIAL PRIMARY KEY"
	}
	out := make([]string, len(m.SQL))
	for i, stmt := range m.SQL {
		out[i] = strings.ReplaceAll(stmt, serialKey, key)
	}
	return out
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: []string{
			`CREATE TABLE conversations (
				id          TEXT PRIMARY KEY,
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			)`,
			`CREATE TABLE messages (
				id               ` + serialKey + `,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role             TEXT NOT NULL,
				content          TEXT NOT NULL,
				created_at       TEXT NOT NULL
			)`,
			`CREATE INDEX idx_messages_conversation ON messages (conversation_id, id)`,
		},
	},
	{
		Version: 2,
		Name:    "create customer tokens and code verifiers",
		SQL: []string{
			`CREATE TABLE customer_tokens (
				conversation_id  TEXT PRIMARY KEY,
				access_token     TEXT NOT NULL,
				refresh_token    TEXT NOT NULL DEFAULT '',
				expires_at       TEXT NOT NULL,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			)`,
			`CREATE TABLE code_verifiers (
				state       TEXT PRIMARY KEY,
				verifier    TEXT NOT NULL,
				expires_at  TEXT NOT NULL,
				created_at  TEXT NOT NULL
			)`,
		},
	},
	{
		Version: 3,
		Name:    "create customer account urls",
		SQL: []string{
			`CREATE TABLE customer_account_urls (
				conversation_id  TEXT PRIMARY KEY,
				url              TEXT NOT NULL,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			)`,
		},
	},
}
