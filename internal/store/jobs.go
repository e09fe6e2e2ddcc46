package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"photorevive/internal/domain"
	"photorevive/internal/infra"
	"photorevive/internal/sqlinline"
)

// JobStore is the single source of truth for job records. All state
// transitions go through conditional updates so concurrent reconcilers can
// never move a job backwards.
type JobStore struct {
	sql infra.SQLExecutor
}

func NewJobStore(sql infra.SQLExecutor) *JobStore {
	return &JobStore{sql: sql}
}

// Insert persists a freshly created PENDING job.
func (s *JobStore) Insert(ctx context.Context, job *domain.Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("store: encode params: %w", err)
	}
	var ledgerTx any
	if job.LedgerTxID != "" {
		ledgerTx = job.LedgerTxID
	}
	_, err = s.sql.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.OwnerID,
		string(job.Kind),
		job.SourceRef,
		job.CreditCost,
		ledgerTx,
		params,
		job.OriginCountry,
	)
	if err != nil {
		return fmt.Errorf("store: insert job: %w", err)
	}
	return nil
}

// Get fetches a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanJob(s.sql.QueryRow(ctx, sqlinline.QSelectJob, jobID))
}

// GetForOwner fetches a job scoped to its owner.
func (s *JobStore) GetForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	return scanJob(s.sql.QueryRow(ctx, sqlinline.QSelectJobForOwner, jobID, ownerID))
}

// GetByExternalID resolves a vendor-assigned id back to the job record.
// Used by webhook delivery.
func (s *JobStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	return scanJob(s.sql.QueryRow(ctx, sqlinline.QSelectJobByExternalID, externalID))
}

// ListForOwner returns the owner's most recent jobs.
func (s *JobStore) ListForOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListJobsForOwner, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkRunning transitions PENDING -> RUNNING and records the external id.
// Returns false when the job already left PENDING.
func (s *JobStore) MarkRunning(ctx context.Context, jobID, externalID string) (bool, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QMarkJobRunning, jobID, externalID)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: mark running: %w", err)
	}
	return true, nil
}

// MarkTerminal assigns a terminal state. Returns false when another
// reconciler won the race; the caller treats that as a no-op.
func (s *JobStore) MarkTerminal(ctx context.Context, jobID string, state domain.JobState, resultRefs []string, errorDetail string) (bool, error) {
	if !state.Terminal() {
		return false, fmt.Errorf("store: %q is not a terminal state", state)
	}
	var refs any
	if resultRefs != nil {
		encoded, err := json.Marshal(resultRefs)
		if err != nil {
			return false, fmt.Errorf("store: encode result refs: %w", err)
		}
		refs = encoded
	}
	var detail any
	if errorDetail != "" {
		detail = errorDetail
	}
	row := s.sql.QueryRow(ctx, sqlinline.QMarkJobTerminal, jobID, string(state), refs, detail)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: mark terminal: %w", err)
	}
	return true, nil
}

// TouchProgress records a liveness hint on a RUNNING job. Progress metadata
// has last-effective-writer semantics; the terminal state never does.
func (s *JobStore) TouchProgress(ctx context.Context, jobID, hint string) error {
	_, err := s.sql.Exec(ctx, sqlinline.QTouchJobProgress, jobID, hint)
	return err
}

// ListResumable returns non-terminal jobs, oldest first. The worker reclaims
// these at startup.
func (s *JobStore) ListResumable(ctx context.Context) ([]domain.Job, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListRunningJobs)
	if err != nil {
		return nil, fmt.Errorf("store: list resumable: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// ListExpired returns non-terminal jobs older than maxAge.
func (s *JobStore) ListExpired(ctx context.Context, maxAge time.Duration) ([]domain.Job, error) {
	interval := fmt.Sprintf("%d seconds", int(maxAge.Seconds()))
	rows, err := s.sql.Query(ctx, sqlinline.QListExpiredRunningJobs, interval)
	if err != nil {
		return nil, fmt.Errorf("store: list expired: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// DeleteForOwner removes a job on behalf of its owner. The orchestration
// core never calls this; it exists for the gallery surface only.
func (s *JobStore) DeleteForOwner(ctx context.Context, jobID, ownerID string) (bool, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QDeleteJobForOwner, jobID, ownerID)
	var id string
	if err := row.Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("store: delete job: %w", err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var job domain.Job
	var refsRaw, paramsRaw []byte
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Kind,
		&job.State,
		&job.ExternalID,
		&job.SourceRef,
		&refsRaw,
		&job.ErrorDetail,
		&job.CreditCost,
		&job.LedgerTxID,
		&paramsRaw,
		&job.OriginCountry,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan job: %w", err)
	}
	if len(refsRaw) > 0 {
		if err := json.Unmarshal(refsRaw, &job.ResultRefs); err != nil {
			return nil, fmt.Errorf("store: decode result refs: %w", err)
		}
	}
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &job.Params); err != nil {
			return nil, fmt.Errorf("store: decode params: %w", err)
		}
	}
	return &job, nil
}
