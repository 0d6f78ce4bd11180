// Package jobs defines the statement ingestion job, the queue that carries
// it and the store that tracks its status.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the last attempt failed. The message stays
	// on the queue and is redelivered after its visibility timeout.
	JobStatusFailed JobStatus = "failed"
)

// StatementJob asks a file worker to ingest one uploaded statement.
type StatementJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Bank is the statement format (HDFC, ICICI, SBI, OFX). Empty means
	// detect from the file contents.
	Bank string `json:"bank,omitempty"`

	// BlobKey locates the statement file: gs://bucket/object or a bare
	// object name in the configured bucket.
	BlobKey string `json:"blob_key"`

	TenantID    string `json:"tenant_id"`
	UserID      string `json:"user_id"`
	AccountType string `json:"account_type,omitempty"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewStatementJob creates a job with a fresh ID.
func NewStatementJob(bank, blobKey, tenantID, userID, accountType string) *StatementJob {
	return &StatementJob{
		JobID:       uuid.New().String(),
		Bank:        bank,
		BlobKey:     blobKey,
		TenantID:    tenantID,
		UserID:      userID,
		AccountType: accountType,
		CreatedAt:   time.Now().UTC(),
	}
}

// Validate checks the fields every job needs.
func (j *StatementJob) Validate() error {
	switch {
	case strings.TrimSpace(j.JobID) == "":
		return fmt.Errorf("job ID is required")
	case strings.TrimSpace(j.BlobKey) == "":
		return fmt.Errorf("job %s: blob key is required", j.JobID)
	case strings.TrimSpace(j.TenantID) == "":
		return fmt.Errorf("job %s: tenant ID is required", j.JobID)
	case strings.TrimSpace(j.UserID) == "":
		return fmt.Errorf("job %s: user ID is required", j.JobID)
	}
	return nil
}

// Encode serializes a job for a queue body.
func Encode(job *StatementJob) ([]byte, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.JobID, err)
	}
	return b, nil
}

// Decode parses a queue body.
func Decode(body []byte) (*StatementJob, error) {
	var job StatementJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

// Message is one delivery of a job. ReceiptHandle is only valid until the
// message becomes visible again.
type Message struct {
	ID            string
	ReceiptHandle string
	Job           *StatementJob
	ReceiveCount  int
}

// Queue is an at-least-once job queue. A received message stays hidden for
// the queue's visibility timeout; unless it is deleted within that window it
// is delivered again.
type Queue interface {
	// Send enqueues a job.
	Send(ctx context.Context, job *StatementJob) error

	// Receive returns up to max visible messages, or none.
	Receive(ctx context.Context, max int) ([]Message, error)

	// Delete acknowledges a message by its receipt handle.
	Delete(ctx context.Context, receiptHandle string) error
}

// Record is the tracked state of a job across attempts.
type Record struct {
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	BlobKey    string    `json:"blob_key"`
	Status     JobStatus `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	Parsed     int       `json:"parsed"`
	Skipped    int       `json:"skipped"`
	Inserted   int       `json:"inserted"`
	Duplicates int       `json:"duplicates"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StatusStore tracks job execution across worker restarts.
type StatusStore interface {
	// SaveRecord saves or updates a job record.
	SaveRecord(ctx context.Context, rec *Record) error

	// GetRecord retrieves a job record by ID.
	GetRecord(ctx context.Context, jobID string) (*Record, error)

	// ListRecords retrieves records with optional filtering.
	ListRecords(ctx context.Context, filter Filter) ([]*Record, error)
}

// Filter defines filtering criteria for listing job records.
type Filter struct {
	TenantID string
	Status   JobStatus

	// Limit limits the number of results.
	Limit int
}
