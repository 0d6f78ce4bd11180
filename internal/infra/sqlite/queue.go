package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/ledger-ingest/internal/domain"
	"github.com/dvloznov/ledger-ingest/internal/jobs"
)

// Queue is a jobs.Queue backed by the job_queue table, so producers and
// workers in separate processes can share it.
type Queue struct {
	d          *DB
	visibility time.Duration
}

// NewQueue creates a queue; visibility defaults to five minutes.
func NewQueue(d *DB, visibility time.Duration) *Queue {
	if visibility <= 0 {
		visibility = 5 * time.Minute
	}
	return &Queue{d: d, visibility: visibility}
}

func (q *Queue) Send(ctx context.Context, job *jobs.StatementJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	now := q.d.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now.UTC()
	}
	if err := job.Validate(); err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	body, err := jobs.Encode(job)
	if err != nil {
		return fmt.Errorf("Send: %w", err)
	}

	if _, err := q.d.db.ExecContext(ctx, `
		INSERT INTO job_queue (id, body, visible_at, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), string(body), nanos(now), nanos(now)); err != nil {
		return fmt.Errorf("Send: %w", err)
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, max int) ([]jobs.Message, error) {
	if max <= 0 {
		max = 1
	}
	var out []jobs.Message
	err := q.d.withTx(ctx, func(tx *sql.Tx) error {
		now := q.d.now()
		rows, err := tx.QueryContext(ctx, `
			SELECT id, body, receive_count FROM job_queue
			WHERE visible_at <= ?
			ORDER BY created_at, id LIMIT ?`, nanos(now), max)
		if err != nil {
			return fmt.Errorf("Receive: %w", err)
		}
		defer rows.Close()

		type pending struct {
			id    string
			body  string
			count int
		}
		var ps []pending
		for rows.Next() {
			var p pending
			if err := rows.Scan(&p.id, &p.body, &p.count); err != nil {
				return fmt.Errorf("Receive: scan: %w", err)
			}
			ps = append(ps, p)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("Receive: %w", err)
		}

		for _, p := range ps {
			receipt := uuid.New().String()
			if _, err := tx.ExecContext(ctx, `
				UPDATE job_queue SET receipt = ?, receive_count = receive_count + 1, visible_at = ?
				WHERE id = ?`, receipt, nanos(now.Add(q.visibility)), p.id); err != nil {
				return fmt.Errorf("Receive: hide %s: %w", p.id, err)
			}

			msg := jobs.Message{ID: p.id, ReceiptHandle: receipt, ReceiveCount: p.count + 1}
			job, err := jobs.Decode([]byte(p.body))
			if err != nil {
				q.d.log.Error().Err(err).Str("message_id", p.id).Msg("undecodable job body")
			} else {
				msg.Job = job
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return fmt.Errorf("Delete: %w: empty receipt handle", domain.ErrNotFound)
	}
	res, err := q.d.db.ExecContext(ctx, `DELETE FROM job_queue WHERE receipt = ?`, receiptHandle)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("Delete: receipt %s: %w", receiptHandle, err)
	}
	return nil
}

// Len returns the number of undeleted messages.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM job_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("Len: %w", err)
	}
	return n, nil
}

// JobStatusStore is a jobs.StatusStore backed by the job_status table.
type JobStatusStore struct {
	d *DB
}

func NewJobStatusStore(d *DB) *JobStatusStore {
	return &JobStatusStore{d: d}
}

func (s *JobStatusStore) SaveRecord(ctx context.Context, rec *jobs.Record) error {
	if rec.JobID == "" {
		return fmt.Errorf("SaveRecord: job ID is required")
	}
	_, err := s.d.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, tenant_id, blob_key, status, attempts, error,
		                        parsed, skipped, inserted, duplicates, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			error = excluded.error,
			parsed = excluded.parsed,
			skipped = excluded.skipped,
			inserted = excluded.inserted,
			duplicates = excluded.duplicates,
			updated_at = excluded.updated_at`,
		rec.JobID, rec.TenantID, rec.BlobKey, string(rec.Status), rec.Attempts, rec.Error,
		rec.Parsed, rec.Skipped, rec.Inserted, rec.Duplicates, nanos(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("SaveRecord: %w", err)
	}
	return nil
}

const jobStatusColumns = `job_id, tenant_id, blob_key, status, attempts, error,
	parsed, skipped, inserted, duplicates, updated_at`

func scanRecord(s rowScanner) (*jobs.Record, error) {
	var (
		rec       jobs.Record
		status    string
		updatedAt int64
	)
	if err := s.Scan(&rec.JobID, &rec.TenantID, &rec.BlobKey, &status, &rec.Attempts, &rec.Error,
		&rec.Parsed, &rec.Skipped, &rec.Inserted, &rec.Duplicates, &updatedAt); err != nil {
		return nil, err
	}
	rec.Status = jobs.JobStatus(status)
	rec.UpdatedAt = fromNanos(updatedAt)
	return &rec, nil
}

func (s *JobStatusStore) GetRecord(ctx context.Context, jobID string) (*jobs.Record, error) {
	row := s.d.db.QueryRowContext(ctx, `SELECT `+jobStatusColumns+` FROM job_status WHERE job_id = ?`, jobID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetRecord: job %s: %w", jobID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetRecord: %w", err)
	}
	return rec, nil
}

func (s *JobStatusStore) ListRecords(ctx context.Context, filter jobs.Filter) ([]*jobs.Record, error) {
	query := `SELECT ` + jobStatusColumns + ` FROM job_status WHERE 1 = 1`
	var args []any
	if filter.TenantID != "" {
		query += ` AND tenant_id = ?`
		args = append(args, filter.TenantID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY updated_at DESC, job_id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	defer rows.Close()

	var out []*jobs.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecords: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var (
	_ jobs.Queue       = (*Queue)(nil)
	_ jobs.StatusStore = (*JobStatusStore)(nil)
)
