package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/antoniostano/switchboard/internal/call"
)

// PostgresStore persists call state as JSONB in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			phone_number TEXT NOT NULL,
			state JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_phone_updated ON calls (phone_number, updated_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*call.Call, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM calls WHERE id=$1`,
		id,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call: %w", err)
	}
	return decodeState(state)
}

func (s *PostgresStore) SearchOneByPhone(ctx context.Context, phoneNumber string) (*call.Call, error) {
	var state []byte
	err := s.pool.QueryRow(ctx,
		`SELECT state FROM calls WHERE phone_number=$1 ORDER BY updated_at DESC LIMIT 1`,
		phoneNumber,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("search call by phone: %w", err)
	}
	return decodeState(state)
}

func (s *PostgresStore) SearchAllByPhone(ctx context.Context, phoneNumber string, limit int) ([]*call.Call, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT state FROM calls WHERE phone_number=$1 ORDER BY updated_at DESC LIMIT $2`,
		phoneNumber,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search calls by phone: %w", err)
	}
	defer rows.Close()

	calls := make([]*call.Call, 0, limit)
	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return nil, fmt.Errorf("scan call row: %w", err)
		}
		c, err := decodeState(state)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call rows: %w", err)
	}
	return calls, nil
}

func (s *PostgresStore) Save(ctx context.Context, c *call.Call) error {
	c.UpdatedAt = time.Now().UTC()
	state, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode call state: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO calls (id, phone_number, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET state=$3, updated_at=$5`,
		c.ID,
		c.PhoneNumber,
		state,
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save call: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func decodeState(state []byte) (*call.Call, error) {
	var c call.Call
	if err := json.Unmarshal(state, &c); err != nil {
		return nil, fmt.Errorf("decode call state: %w", err)
	}
	return &c, nil
}
