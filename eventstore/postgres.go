package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	// Registers the "postgres" driver with database/sql.
	_ "github.com/lib/pq"

	"github.com/aureus-sentinel/bridge/types"
)

// PostgresStore implements Store over a Postgres table:
//
//	CREATE TABLE events (
//	    seq        BIGSERIAL PRIMARY KEY,
//	    type       TEXT NOT NULL,
//	    timestamp  TIMESTAMPTZ NOT NULL,
//	    body       JSONB NOT NULL
//	);
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgresStore opens a connection pool to dsn (a postgres:// URL or
// libpq keyword string) using the lib/pq driver.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("eventstore: open postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (p *PostgresStore) Close() error { return p.db.Close() }

// Append inserts a new row, letting the BIGSERIAL column assign Seq.
func (p *PostgresStore) Append(ctx context.Context, eventType string, body map[string]any) (types.Event, error) {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return types.Event{}, fmt.Errorf("eventstore: marshal body: %w", err)
	}

	var event types.Event
	err = p.db.QueryRowContext(ctx,
		`INSERT INTO events (type, timestamp, body) VALUES ($1, now(), $2) RETURNING seq, timestamp`,
		eventType, bodyJSON,
	).Scan(&event.Seq, &event.Timestamp)
	if err != nil {
		return types.Event{}, fmt.Errorf("eventstore: insert event: %w", err)
	}
	event.Type = eventType
	event.Body = body
	return event, nil
}

// Query runs a filtered SELECT and decodes each row's JSONB body.
func (p *PostgresStore) Query(ctx context.Context, q Query) ([]types.Event, error) {
	var clauses []string
	var args []any
	clauses = append(clauses, "seq >= $1")
	args = append(args, q.FromSeq)

	if q.Type != "" {
		args = append(args, q.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}
	if q.IntentID != "" {
		args = append(args, q.IntentID)
		clauses = append(clauses, fmt.Sprintf("body->>'intentId' = $%d", len(args)))
	}
	if q.PlanID != "" {
		args = append(args, q.PlanID)
		clauses = append(clauses, fmt.Sprintf("body->>'planId' = $%d", len(args)))
	}

	args = append(args, clampLimit(q.Limit))
	query := fmt.Sprintf(
		"SELECT seq, type, timestamp, body FROM events WHERE %s ORDER BY seq ASC LIMIT $%d",
		strings.Join(clauses, " AND "), len(args),
	)

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventstore: query: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var e types.Event
		var bodyJSON []byte
		if err := rows.Scan(&e.Seq, &e.Type, &e.Timestamp, &bodyJSON); err != nil {
			return nil, fmt.Errorf("eventstore: scan row: %w", err)
		}
		if err := json.Unmarshal(bodyJSON, &e.Body); err != nil {
			return nil, fmt.Errorf("eventstore: unmarshal body: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: rows: %w", err)
	}
	return out, nil
}
