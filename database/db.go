// Package database is the PostgreSQL persistence gateway.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 5 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Connect opens a pooled connection and verifies it.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS scraper_sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		account_id TEXT,
		prompt TEXT NOT NULL,
		keywords TEXT[] NOT NULL DEFAULT '{}',
		hashtags TEXT[] NOT NULL DEFAULT '{}',
		phase TEXT NOT NULL DEFAULT 'new',
		reels_seen INT NOT NULL DEFAULT 0,
		relevant_reels_seen INT NOT NULL DEFAULT 0,
		active_duration BIGINT NOT NULL DEFAULT 0,
		suspended BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (relevant_reels_seen <= reels_seen)
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		password TEXT NOT NULL,
		auth_blob TEXT NOT NULL DEFAULT '',
		session_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS content_records (
		session_id TEXT NOT NULL REFERENCES scraper_sessions(id) ON DELETE CASCADE,
		code TEXT NOT NULL,
		username TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		like_count BIGINT NOT NULL DEFAULT 0,
		comment_count BIGINT NOT NULL DEFAULT 0,
		view_count BIGINT NOT NULL DEFAULT 0,
		taken_at TIMESTAMPTZ,
		targeted_app_id TEXT NOT NULL DEFAULT '',
		relevant BOOLEAN,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, code)
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		session_id TEXT NOT NULL REFERENCES scraper_sessions(id) ON DELETE CASCADE,
		username TEXT NOT NULL,
		scraped BOOLEAN NOT NULL DEFAULT FALSE,
		reels_crawled BOOLEAN NOT NULL DEFAULT FALSE,
		bio TEXT NOT NULL DEFAULT '',
		links TEXT[] NOT NULL DEFAULT '{}',
		suspicious TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT '',
		targeted_app_id TEXT NOT NULL DEFAULT '',
		saved_on TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, username)
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES scraper_sessions(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		profiles TEXT[] NOT NULL DEFAULT '{}',
		signal TEXT NOT NULL DEFAULT '',
		manual_status TEXT NOT NULL DEFAULT '',
		review_notes TEXT NOT NULL DEFAULT '',
		resolved_url TEXT NOT NULL DEFAULT '',
		screenshot TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS ads (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES scraper_sessions(id) ON DELETE CASCADE,
		dedup_key TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		code TEXT NOT NULL DEFAULT '',
		profile TEXT NOT NULL DEFAULT '',
		caption TEXT NOT NULL DEFAULT '',
		like_count BIGINT NOT NULL DEFAULT 0,
		comment_count BIGINT NOT NULL DEFAULT 0,
		link_text TEXT NOT NULL DEFAULT '',
		filtered_link TEXT NOT NULL DEFAULT '',
		filtered BOOLEAN NOT NULL DEFAULT FALSE,
		suspicious TEXT NOT NULL DEFAULT '',
		screenshot TEXT NOT NULL DEFAULT '',
		post_seen BOOLEAN NOT NULL DEFAULT FALSE,
		manual_status TEXT NOT NULL DEFAULT '',
		review_notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (session_id, dedup_key)
	)`,
	`CREATE TABLE IF NOT EXISTS frequency_stats (
		session_id TEXT PRIMARY KEY REFERENCES scraper_sessions(id) ON DELETE CASCADE,
		freq JSONB NOT NULL DEFAULT '{}',
		priority JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS targeted_apps (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES scraper_sessions(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		keywords TEXT[] NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username VARCHAR(255) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		role VARCHAR(50) NOT NULL DEFAULT 'admin'
	)`,
}

// Migrate creates every table that does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
	}
	return nil
}
