package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
)

// ResumableLister is the extra store surface the poller needs beyond the
// orchestrator's own JobStore slice.
type ResumableLister interface {
	ListResumable(ctx context.Context) ([]domain.Job, error)
	ListExpired(ctx context.Context, maxAge time.Duration) ([]domain.Job, error)
}

// Poller drives in-flight jobs to completion by polling their vendors. One
// goroutine per tracked job; a cron sweep backstops jobs whose poll loop
// was lost (process restart, budget bug) by force-failing anything past
// the wall-clock age limit.
type Poller struct {
	orch        *Orchestrator
	jobs        ResumableLister
	interval    time.Duration
	maxAttempts int
	maxAge      time.Duration
	submitGrace time.Duration
	logger      zerolog.Logger

	mu      sync.Mutex
	tracked map[string]struct{}
	wg      sync.WaitGroup
	cron    *cron.Cron
}

type PollerOptions struct {
	Interval    time.Duration
	MaxAttempts int
	MaxAge      time.Duration
	// SubmitGrace is how long a PENDING record may sit without a vendor id
	// before it is treated as an interrupted submission. Must comfortably
	// exceed the slowest gateway submit timeout, or the sweep reaps jobs
	// whose submission is still in flight in another process.
	SubmitGrace time.Duration
}

func NewPoller(orch *Orchestrator, jobs ResumableLister, opts PollerOptions, logger zerolog.Logger) *Poller {
	interval := opts.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 120
	}
	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	submitGrace := opts.SubmitGrace
	if submitGrace <= 0 {
		// Gateway submit timeouts run up to 60s; twice that before a
		// PENDING record counts as orphaned.
		submitGrace = 2 * time.Minute
	}
	return &Poller{
		orch:        orch,
		jobs:        jobs,
		interval:    interval,
		maxAttempts: maxAttempts,
		maxAge:      maxAge,
		submitGrace: submitGrace,
		logger:      logger,
		tracked:     make(map[string]struct{}),
	}
}

// Start resumes polling for every non-terminal job and schedules the
// expiry sweep. Blocks until ctx is cancelled and all poll loops drain.
func (p *Poller) Start(ctx context.Context) error {
	resumable, err := p.jobs.ListResumable(ctx)
	if err != nil {
		return err
	}
	for i := range resumable {
		p.Track(ctx, &resumable[i])
	}
	p.logger.Info().Int("resumed", len(resumable)).Msg("poller started")

	p.cron = cron.New()
	if _, err := p.cron.AddFunc("* * * * *", func() { p.sweep(ctx) }); err != nil {
		return err
	}
	p.cron.Start()

	<-ctx.Done()
	cronCtx := p.cron.Stop()
	<-cronCtx.Done()
	p.wg.Wait()
	return nil
}

// Track begins polling a job. Tracking the same job twice is a no-op, so
// the submit path and the resume path cannot double-poll.
func (p *Poller) Track(ctx context.Context, job *domain.Job) {
	if job.State.Terminal() {
		return
	}
	p.mu.Lock()
	if _, ok := p.tracked[job.ID]; ok {
		p.mu.Unlock()
		return
	}
	p.tracked[job.ID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.untrack(job.ID)
		p.pollLoop(ctx, job)
	}()
}

func (p *Poller) untrack(jobID string) {
	p.mu.Lock()
	delete(p.tracked, jobID)
	p.mu.Unlock()
}

func (p *Poller) pollLoop(ctx context.Context, job *domain.Job) {
	// A PENDING job with no vendor id past the grace window was interrupted
	// between charge and submission; failing it triggers the compensating
	// refund. Within the window the submission may still be in flight in
	// another process, so the job is only watched, never reaped.
	if p.submissionInterrupted(job) {
		if _, err := p.orch.ForceFail(ctx, job.ID, "submission interrupted"); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("force fail interrupted job")
		}
		return
	}

	deadline := job.CreatedAt.Add(p.maxAge)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			p.forceFail(ctx, job.ID, "job exceeded maximum age")
			return
		}

		current, err := p.orch.PollOnce(ctx, job.ID)
		if err == nil && p.submissionInterrupted(current) {
			p.forceFail(ctx, job.ID, "submission interrupted")
			return
		}
		if err != nil {
			attempts++
			if gateway.IsTransient(err) && attempts < p.maxAttempts {
				p.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempts", attempts).Msg("poll failed, will retry")
				continue
			}
			if attempts < p.maxAttempts {
				p.logger.Warn().Err(err).Str("job_id", job.ID).Int("attempts", attempts).Msg("poll error")
				continue
			}
			p.forceFail(ctx, job.ID, "poll budget exhausted")
			return
		}
		if current.State.Terminal() {
			return
		}
		attempts++
		if attempts >= p.maxAttempts {
			p.forceFail(ctx, job.ID, "poll budget exhausted")
			return
		}
	}
}

func (p *Poller) submissionInterrupted(job *domain.Job) bool {
	return job.State == domain.JobStatePending && job.ExternalID == "" && time.Since(job.CreatedAt) > p.submitGrace
}

func (p *Poller) forceFail(ctx context.Context, jobID, detail string) {
	if _, err := p.orch.ForceFail(ctx, jobID, detail); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Msg("force fail job")
	}
}

// sweep picks up in-flight jobs no poll loop is driving (submitted by
// another process, or orphaned by a restart) and force-fails anything
// past the wall-clock age limit.
func (p *Poller) sweep(ctx context.Context) {
	resumable, err := p.jobs.ListResumable(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("resume sweep failed")
	} else {
		for i := range resumable {
			p.Track(ctx, &resumable[i])
		}
	}

	expired, err := p.jobs.ListExpired(ctx, p.maxAge)
	if err != nil {
		p.logger.Error().Err(err).Msg("expiry sweep failed")
		return
	}
	for i := range expired {
		job := &expired[i]
		p.mu.Lock()
		_, active := p.tracked[job.ID]
		p.mu.Unlock()
		if active {
			continue
		}
		p.logger.Info().Str("job_id", job.ID).Msg("sweeping expired job")
		p.forceFail(ctx, job.ID, "job exceeded maximum age")
	}
}
