// Package gateway abstracts each external AI vendor behind a uniform
// submit/poll surface. Adapters perform remote calls only; they never touch
// local state.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"photorevive/internal/domain"
)

// Status is the vendor-side view of a task.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// SubmitRequest carries everything a vendor needs to start a task.
type SubmitRequest struct {
	JobID     string
	Kind      domain.JobKind
	SourceRef string
	Params    map[string]any
}

// PollResult is the normalized outcome of one status poll.
type PollResult struct {
	Status       Status
	ArtifactURLs []string
	ErrorDetail  string
	Progress     string
}

// Gateway is the capability surface per vendor.
type Gateway interface {
	Submit(ctx context.Context, req SubmitRequest) (externalID string, err error)
	Poll(ctx context.Context, externalID string) (PollResult, error)
}

// ErrSubmissionRejected marks a vendor-side rejection at submit time. The
// orchestrator fails the job and refunds; nothing retries a rejection.
var ErrSubmissionRejected = errors.New("gateway: submission rejected")

// TransientError wraps a temporarily unreachable vendor. The poll loop
// retries within its budget instead of failing the job.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("gateway: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error should be retried by the poller.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Registry maps job kinds onto vendor adapters.
type Registry struct {
	gateways map[domain.JobKind]Gateway
}

func NewRegistry() *Registry {
	return &Registry{gateways: make(map[domain.JobKind]Gateway)}
}

func (r *Registry) Register(kind domain.JobKind, gw Gateway) {
	r.gateways[kind] = gw
}

// Lookup returns the adapter for a kind.
func (r *Registry) Lookup(kind domain.JobKind) (Gateway, error) {
	gw, ok := r.gateways[kind]
	if !ok {
		return nil, fmt.Errorf("gateway: no adapter for kind %q", kind)
	}
	return gw, nil
}
