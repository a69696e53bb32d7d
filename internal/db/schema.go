package db

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
        phone TEXT PRIMARY KEY NOT NULL,
        state INTEGER NOT NULL,
        credits TEXT NOT NULL,
        tune_id TEXT,
        chosen_pack TEXT,
        entity_type TEXT,
        language INTEGER NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS msgs (
        id TEXT PRIMARY KEY NOT NULL,
        date DATE NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS payments (
        id TEXT PRIMARY KEY NOT NULL,
        date DATE NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS pictures (
        phone_number TEXT NOT NULL,
        path TEXT NOT NULL,
        FOREIGN KEY (phone_number) REFERENCES users(phone) ON DELETE CASCADE
    )`,
	`CREATE TABLE IF NOT EXISTS ratings (
        phone_number TEXT NOT NULL,
        rating INTEGER NOT NULL,
        date DATE NOT NULL,
        feedback TEXT
    )`,
}

// EnsureSchema creates the tables on first run.
func (db *PostgresDB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
