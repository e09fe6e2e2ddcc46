// Package orchestrator coordinates the job state machine: record creation,
// credit charging, gateway submission and the reconciliation of poll and
// webhook observations into terminal states.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
	"photorevive/internal/ledger"
	"photorevive/internal/notifier"
)

// JobStore is the slice of job persistence the orchestrator needs. The
// conditional MarkRunning/MarkTerminal writes carry the concurrency
// guarantees; a false return means another writer won and the caller
// treats the call as a no-op.
type JobStore interface {
	Insert(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Job, error)
	MarkRunning(ctx context.Context, jobID, externalID string) (bool, error)
	MarkTerminal(ctx context.Context, jobID string, state domain.JobState, resultRefs []string, errorDetail string) (bool, error)
	TouchProgress(ctx context.Context, jobID, hint string) error
}

// Mirrorer copies a vendor artifact URL into durable storage.
type Mirrorer interface {
	Mirror(ctx context.Context, sourceURL, ownerID, contentKind string) (string, error)
}

// GatewayResolver resolves the vendor adapter for a job kind.
type GatewayResolver interface {
	Lookup(kind domain.JobKind) (gateway.Gateway, error)
}

type Orchestrator struct {
	jobs     JobStore
	ledger   ledger.Ledger
	gateways GatewayResolver
	mirror   Mirrorer
	notify   notifier.Notifier
	logger   zerolog.Logger
}

func New(jobs JobStore, lgr ledger.Ledger, gateways GatewayResolver, mirror Mirrorer, notify notifier.Notifier, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		ledger:   lgr,
		gateways: gateways,
		mirror:   mirror,
		notify:   notify,
		logger:   logger,
	}
}

// SubmitParams carries a validated submission request.
type SubmitParams struct {
	OwnerID       string
	Kind          domain.JobKind
	SourceRef     string
	Params        map[string]any
	OriginCountry string
	CanSpend      bool
}

// Submit charges the owner, persists the job and hands it to the vendor.
// The charge happens before the insert against a pre-generated job id: the
// reference key is stable, so a crash in between is recoverable and can
// never double-charge. A gateway rejection yields a FAILED job with the
// charge refunded, not an error.
func (o *Orchestrator) Submit(ctx context.Context, p SubmitParams) (*domain.Job, error) {
	if p.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", domain.ErrInvalidRequest)
	}
	if !p.Kind.Valid() {
		return nil, fmt.Errorf("%w: unsupported job kind %q", domain.ErrInvalidRequest, p.Kind)
	}
	if !p.CanSpend {
		return nil, fmt.Errorf("%w: account cannot spend credits", domain.ErrUnauthorized)
	}
	if p.SourceRef == "" && p.Kind != domain.JobKindTTS {
		return nil, fmt.Errorf("%w: source_ref is required", domain.ErrInvalidRequest)
	}

	jobID := uuid.NewString()
	cost := p.Kind.CreditCost()
	txID, err := o.ledger.ChargeIfSufficient(ctx, p.OwnerID, cost, jobID, map[string]any{
		"kind":    string(p.Kind),
		"country": p.OriginCountry,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return nil, err
		}
		return nil, fmt.Errorf("charge for job: %w", err)
	}

	job := &domain.Job{
		ID:            jobID,
		OwnerID:       p.OwnerID,
		Kind:          p.Kind,
		State:         domain.JobStatePending,
		SourceRef:     p.SourceRef,
		CreditCost:    cost,
		LedgerTxID:    txID,
		Params:        p.Params,
		OriginCountry: p.OriginCountry,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := o.jobs.Insert(ctx, job); err != nil {
		// The charge landed but the record did not: compensate immediately.
		o.refund(ctx, job, "job record insert failed")
		return nil, fmt.Errorf("insert job: %w", err)
	}
	o.publish(ctx, job, "")

	gw, err := o.gateways.Lookup(p.Kind)
	if err != nil {
		return o.failJob(ctx, job, err.Error())
	}
	externalID, err := gw.Submit(ctx, gateway.SubmitRequest{
		JobID:     job.ID,
		Kind:      job.Kind,
		SourceRef: job.SourceRef,
		Params:    job.Params,
	})
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("gateway submission failed")
		return o.failJob(ctx, job, fmt.Sprintf("submission failed: %v", err))
	}

	applied, err := o.jobs.MarkRunning(ctx, job.ID, externalID)
	if err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}
	if !applied {
		// Another writer already moved the job on (a sweep force-failed
		// it); hand back the record as it actually stands.
		return o.jobs.Get(ctx, job.ID)
	}
	job.State = domain.JobStateRunning
	job.ExternalID = externalID
	o.publish(ctx, job, "")
	return job, nil
}

// Reconcile applies one observed vendor status to a job. Idempotent and
// terminal-sticky: whichever of poll or webhook arrives first assigns the
// terminal state, the other observes it and becomes a no-op.
func (o *Orchestrator) Reconcile(ctx context.Context, jobID string, obs gateway.PollResult) (*domain.Job, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}

	switch obs.Status {
	case gateway.StatusRunning:
		if obs.Progress != "" {
			if err := o.jobs.TouchProgress(ctx, job.ID, obs.Progress); err != nil {
				o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("progress update failed")
			}
		}
		o.publish(ctx, job, obs.Progress)
		return job, nil

	case gateway.StatusSucceeded:
		refs, err := o.mirrorArtifacts(ctx, job, obs.ArtifactURLs)
		if err != nil {
			// Generation succeeded but the artifacts cannot be kept
			// reachable; an unmirrored result is not a usable result.
			return o.failJob(ctx, job, fmt.Sprintf("artifact mirroring failed: %v", err))
		}
		applied, err := o.jobs.MarkTerminal(ctx, job.ID, domain.JobStateSucceeded, refs, "")
		if err != nil {
			return nil, fmt.Errorf("mark succeeded: %w", err)
		}
		if !applied {
			return o.jobs.Get(ctx, job.ID)
		}
		job.State = domain.JobStateSucceeded
		job.ResultRefs = refs
		o.publish(ctx, job, "")
		return job, nil

	case gateway.StatusFailed:
		detail := obs.ErrorDetail
		if detail == "" {
			detail = "vendor reported failure"
		}
		return o.failJob(ctx, job, detail)

	default:
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, obs.Status)
	}
}

// PollOnce fetches the vendor status for a job and reconciles it. Safe to
// run concurrently with webhook delivery for the same job.
func (o *Orchestrator) PollOnce(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}
	if job.ExternalID == "" {
		return job, nil
	}
	gw, err := o.gateways.Lookup(job.Kind)
	if err != nil {
		return o.failJob(ctx, job, err.Error())
	}
	obs, err := gw.Poll(ctx, job.ExternalID)
	if err != nil {
		return nil, err
	}
	return o.Reconcile(ctx, job.ID, obs)
}

// mirrorBudget bounds a background success reconciliation, which may
// download and re-upload several artifacts.
const mirrorBudget = 5 * time.Minute

// ReconcileByExternalID resolves a vendor id to the job record and
// reconciles. Used by webhook delivery. Success observations trigger
// artifact mirroring, which can block for seconds; those are applied in
// the background so the webhook request path only acknowledges, and the
// caller gets the record as it currently stands.
func (o *Orchestrator) ReconcileByExternalID(ctx context.Context, externalID string, obs gateway.PollResult) (*domain.Job, error) {
	job, err := o.jobs.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if obs.Status == gateway.StatusSucceeded && !job.State.Terminal() {
		go func() {
			mctx, cancel := context.WithTimeout(context.Background(), mirrorBudget)
			defer cancel()
			if _, err := o.Reconcile(mctx, job.ID, obs); err != nil {
				o.logger.Error().Err(err).Str("job_id", job.ID).Msg("background reconcile failed")
			}
		}()
		return job, nil
	}
	return o.Reconcile(ctx, job.ID, obs)
}

// ForceFail terminates a job that exhausted its poll budget or wall-clock
// age. The refund rides on the usual failure path.
func (o *Orchestrator) ForceFail(ctx context.Context, jobID, detail string) (*domain.Job, error) {
	job, err := o.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.State.Terminal() {
		return job, nil
	}
	return o.failJob(ctx, job, detail)
}

func (o *Orchestrator) mirrorArtifacts(ctx context.Context, job *domain.Job, urls []string) ([]string, error) {
	if len(urls) == 0 {
		return nil, errors.New("vendor reported success without artifacts")
	}
	kind := contentKindFor(job.Kind)
	refs := make([]string, 0, len(urls))
	for _, u := range urls {
		ref, err := o.mirror.Mirror(ctx, u, job.OwnerID, kind)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

// failJob assigns FAILED and refunds the charge. The conditional terminal
// write decides the winner: only the reconciler that actually flipped the
// state issues the refund, and the refund itself is idempotent on top.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.Job, detail string) (*domain.Job, error) {
	applied, err := o.jobs.MarkTerminal(ctx, job.ID, domain.JobStateFailed, nil, detail)
	if err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}
	if !applied {
		return o.jobs.Get(ctx, job.ID)
	}
	job.State = domain.JobStateFailed
	job.ErrorDetail = detail
	o.refund(ctx, job, detail)
	o.publish(ctx, job, "")
	return job, nil
}

func (o *Orchestrator) refund(ctx context.Context, job *domain.Job, reason string) {
	if job.LedgerTxID == "" {
		return
	}
	_, _, err := o.ledger.Credit(ctx, job.OwnerID, job.CreditCost, domain.TransactionRefund, job.RefundReference(), map[string]any{
		"job_id": job.ID,
		"reason": reason,
	})
	if err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("refund failed")
	}
}

func (o *Orchestrator) publish(ctx context.Context, job *domain.Job, progress string) {
	o.notify.Publish(ctx, notifier.Event{
		JobID:      job.ID,
		OwnerID:    job.OwnerID,
		Kind:       job.Kind,
		State:      job.State,
		Progress:   progress,
		ResultRefs: job.ResultRefs,
		Error:      job.ErrorDetail,
		OccurredAt: time.Now(),
	})
}

func contentKindFor(kind domain.JobKind) string {
	switch kind {
	case domain.JobKindColorize:
		return "image"
	case domain.JobKindTTS:
		return "audio"
	default:
		return "video"
	}
}
