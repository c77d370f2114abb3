package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"delivery-tracking/internal/common/db"
	"delivery-tracking/internal/domain"
)

// PG persists snapshots in the order_snapshots table, surviving restarts.
//
//	CREATE TABLE order_snapshots (
//	    slot       text PRIMARY KEY,
//	    payload    jsonb NOT NULL,
//	    updated_at timestamptz NOT NULL DEFAULT now()
//	);
type PG struct {
	conn *db.Conn
}

func NewPG(conn *db.Conn) *PG { return &PG{conn: conn} }

func (p *PG) Load(ctx context.Context, slot string) (domain.OrderSnapshot, bool, error) {
	var payload []byte
	err := p.conn.QueryRow(ctx,
		`SELECT payload FROM order_snapshots WHERE slot = $1`, slot,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderSnapshot{}, false, nil
	}
	if err != nil {
		return domain.OrderSnapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}
	var snap domain.OrderSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return domain.OrderSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (p *PG) Store(ctx context.Context, slot string, snap domain.OrderSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = p.conn.Exec(ctx, `
		INSERT INTO order_snapshots (slot, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (slot) DO UPDATE SET payload = $2, updated_at = now()`,
		slot, payload,
	)
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}
