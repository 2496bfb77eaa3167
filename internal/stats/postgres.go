package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS users (
        username    TEXT PRIMARY KEY,
        total_games INTEGER NOT NULL DEFAULT 0,
        total_score INTEGER NOT NULL DEFAULT 0
      )`)
	return err
}

func (p *PostgresStore) GetStats(ctx context.Context, username string) (Stats, error) {
	out := Stats{Username: username}
	err := p.db.QueryRowContext(ctx,
		`SELECT total_games, total_score FROM users WHERE username = $1`, username,
	).Scan(&out.TotalGames, &out.TotalScore)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	return out, err
}

// RecordGame creates the row on first use and increments in one statement.
func (p *PostgresStore) RecordGame(ctx context.Context, username string, won bool) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO users (username, total_games, total_score)
        VALUES ($1, 1, $2)
      ON CONFLICT (username) DO UPDATE SET
        total_games = users.total_games + 1,
        total_score = users.total_score + EXCLUDED.total_score`,
		username, scoreOf(won))
	return err
}

func (p *PostgresStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
