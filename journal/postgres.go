// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luxfi/alm/manager"
)

// Schema creates the table Postgres emits into.
const Schema = `
CREATE TABLE IF NOT EXISTS position_events (
	id         BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores one row per event, payload as JSONB.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ manager.EventSink = (*Postgres)(nil)

// NewPostgres connects to the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Init creates the event table if it does not exist.
func (p *Postgres) Init(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create event table: %w", err)
	}
	return nil
}

// Emit inserts the event.
func (p *Postgres) Emit(ctx context.Context, ev manager.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO position_events (event_type, payload) VALUES ($1, $2)`,
		ev.Type(), payload)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}
