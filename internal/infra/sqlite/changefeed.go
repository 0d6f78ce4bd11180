package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/ledger-ingest/internal/changefeed"
	"github.com/dvloznov/ledger-ingest/internal/domain"
)

// appendChange writes a change_feed row inside tx. REMOVE events carry no
// image.
func (d *DB) appendChange(ctx context.Context, tx *sql.Tx, event changefeed.EventName, t *domain.Transaction) error {
	var image sql.NullString
	if event != changefeed.EventRemove {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("appendChange: encode image: %w", err)
		}
		image = sql.NullString{String: string(b), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO change_feed (event_name, tenant_id, transaction_id, new_image, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(event), t.TenantID, t.TransactionID, image, nanos(d.now()),
	)
	if err != nil {
		return fmt.Errorf("appendChange: %w", err)
	}
	return nil
}

// ChangeFeed is a changefeed.Source over the change_feed outbox table.
// Polled records are leased; a lease that is neither acknowledged nor
// released expires and the records are polled again.
type ChangeFeed struct {
	d     *DB
	lease time.Duration
}

// NewChangeFeed creates a Source; lease defaults to five minutes.
func NewChangeFeed(d *DB, lease time.Duration) *ChangeFeed {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &ChangeFeed{d: d, lease: lease}
}

// Poll leases up to max records in sequence order.
func (c *ChangeFeed) Poll(ctx context.Context, max int) ([]changefeed.Record, error) {
	if max <= 0 {
		max = 1
	}
	var out []changefeed.Record
	err := c.d.withTx(ctx, func(tx *sql.Tx) error {
		now := c.d.now()
		rows, err := tx.QueryContext(ctx, `
			SELECT seq, event_name, new_image FROM change_feed
			WHERE leased_until <= ?
			ORDER BY seq LIMIT ?`, nanos(now), max)
		if err != nil {
			return fmt.Errorf("Poll: %w", err)
		}
		defer rows.Close()

		var seqs []any
		for rows.Next() {
			var (
				rec   changefeed.Record
				event string
				image sql.NullString
			)
			if err := rows.Scan(&rec.Seq, &event, &image); err != nil {
				return fmt.Errorf("Poll: scan: %w", err)
			}
			rec.EventName = changefeed.EventName(event)
			if image.Valid {
				var t domain.Transaction
				if err := json.Unmarshal([]byte(image.String), &t); err != nil {
					return fmt.Errorf("Poll: decode image %d: %w", rec.Seq, err)
				}
				rec.NewImage = &t
			}
			out = append(out, rec)
			seqs = append(seqs, rec.Seq)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("Poll: %w", err)
		}
		if len(seqs) == 0 {
			return nil
		}

		args := append([]any{nanos(now.Add(c.lease))}, seqs...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE change_feed SET leased_until = ? WHERE seq IN (`+placeholders(len(seqs))+`)`, args...); err != nil {
			return fmt.Errorf("Poll: lease: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ack removes processed records.
func (c *ChangeFeed) Ack(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	if _, err := c.d.db.ExecContext(ctx,
		`DELETE FROM change_feed WHERE seq IN (`+placeholders(len(seqs))+`)`, int64Args(seqs)...); err != nil {
		return fmt.Errorf("Ack: %w", err)
	}
	return nil
}

// Release makes leased records available to the next poll.
func (c *ChangeFeed) Release(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	if _, err := c.d.db.ExecContext(ctx,
		`UPDATE change_feed SET leased_until = 0 WHERE seq IN (`+placeholders(len(seqs))+`)`, int64Args(seqs)...); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

// Pending counts records not yet acknowledged.
func (c *ChangeFeed) Pending(ctx context.Context) (int, error) {
	var n int
	if err := c.d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM change_feed`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Pending: %w", err)
	}
	return n, nil
}

func int64Args(v []int64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

var _ changefeed.Source = (*ChangeFeed)(nil)
