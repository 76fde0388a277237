package database

import (
	"database/sql"
	"fmt"
	"log"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id SERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		balance INTEGER NOT NULL DEFAULT 0,
		total_used INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS token_transactions (
		id SERIAL PRIMARY KEY,
		account_email TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		external_event_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS token_transactions_event_idx
		ON token_transactions (external_event_id) WHERE external_event_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS token_transactions_account_idx
		ON token_transactions (account_email, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS emojis (
		id SERIAL PRIMARY KEY,
		user_email TEXT NOT NULL,
		filename TEXT NOT NULL,
		original_filename TEXT,
		prompt TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS emojis_user_idx
		ON emojis (user_email, created_at DESC)`,
}

// Migrate applies the schema. Statements are idempotent so startup can
// run this unconditionally.
func Migrate(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	log.Println("Database schema up to date")
	return nil
}
