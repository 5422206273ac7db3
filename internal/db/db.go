package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// AutoMigrate creates the schema. There are no foreign-key cascades: room
// deletion removes dependent rows explicitly so every storage driver behaves
// the same.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
            room_id VARCHAR(64) PRIMARY KEY,
            name VARCHAR(50) NOT NULL,
            owner_id VARCHAR(255) NOT NULL,
            secret TEXT NOT NULL,
            global_invitation_id VARCHAR(64) UNIQUE NOT NULL,
            kind VARCHAR(16) CHECK (kind IN ('ephemeral', 'persistent')) DEFAULT 'ephemeral',
            created_at TIMESTAMPTZ NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS rooms_kind_expires_at_idx ON rooms (kind, expires_at)`,

		`CREATE TABLE IF NOT EXISTS identities (
            user_id VARCHAR(255) PRIMARY KEY,
            is_online BOOLEAN NOT NULL DEFAULT false,
            last_seen_at TIMESTAMPTZ NOT NULL,
            current_room_id VARCHAR(64),
            typing BOOLEAN NOT NULL DEFAULT false,
            typing_target VARCHAR(255),
            created_at TIMESTAMPTZ NOT NULL
        )`,

		`CREATE TABLE IF NOT EXISTS memberships (
            room_id VARCHAR(64) NOT NULL,
            user_id VARCHAR(255) NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (room_id, user_id)
        )`,

		`CREATE TABLE IF NOT EXISTS messages (
            message_id VARCHAR(64) PRIMARY KEY,
            room_id VARCHAR(64) NOT NULL,
            sender_id VARCHAR(255) NOT NULL,
            receiver_id VARCHAR(255) NOT NULL,
            ciphertext TEXT NOT NULL,
            ciphertext_attachment_url TEXT,
            encrypted BOOLEAN NOT NULL DEFAULT true,
            created_at TIMESTAMPTZ NOT NULL,
            read_by_sender BOOLEAN NOT NULL DEFAULT true,
            read_by_receiver BOOLEAN NOT NULL DEFAULT false,
            delivered BOOLEAN NOT NULL DEFAULT false
        )`,
		`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS invitations (
            invite_code VARCHAR(64) PRIMARY KEY,
            room_id VARCHAR(64) NOT NULL,
            used BOOLEAN NOT NULL DEFAULT false,
            created_at TIMESTAMPTZ NOT NULL,
            expires_at TIMESTAMPTZ NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS invitations_room_idx ON invitations (room_id)`,
	}

	for _, query := range queries {
		if _, err := d.Conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
