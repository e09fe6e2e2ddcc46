package domain

import "time"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindColorize       JobKind = "COLORIZE"
	JobKindVideoSynthesis JobKind = "VIDEO_SYNTHESIS"
	JobKindLivePortrait   JobKind = "LIVEPORTRAIT"
	JobKindEmojiVideo     JobKind = "EMOJI_VIDEO"
	JobKindTTS            JobKind = "TTS"
)

// JobState enumerates job lifecycle states. Transitions are monotonic:
// PENDING -> RUNNING -> SUCCEEDED | FAILED. Terminal states are sticky.
type JobState string

const (
	JobStatePending   JobState = "PENDING"
	JobStateRunning   JobState = "RUNNING"
	JobStateSucceeded JobState = "SUCCEEDED"
	JobStateFailed    JobState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobStateSucceeded || s == JobStateFailed
}

// CreditCost returns the fixed credit price for a job kind. Unknown kinds
// cost zero and are rejected during validation before they reach the ledger.
func (k JobKind) CreditCost() int64 {
	switch k {
	case JobKindColorize:
		return 6
	case JobKindVideoSynthesis:
		return 10
	case JobKindLivePortrait:
		return 15
	case JobKindEmojiVideo:
		return 12
	case JobKindTTS:
		return 1
	default:
		return 0
	}
}

// Valid reports whether the kind is one of the supported categories.
func (k JobKind) Valid() bool {
	return k.CreditCost() > 0
}

// Job tracks one generation request from submission through external
// processing to its terminal state.
type Job struct {
	ID            string
	OwnerID       string
	Kind          JobKind
	State         JobState
	ExternalID    string
	SourceRef     string
	ResultRefs    []string
	ErrorDetail   string
	CreditCost    int64
	LedgerTxID    string
	Params        map[string]any
	OriginCountry string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RefundReference derives the idempotency key for this job's compensating
// refund transaction. Charge and refund share the job id prefix so the
// ledger nets to zero for a failed job no matter how often either side is
// retried.
func (j *Job) RefundReference() string {
	return j.ID + ":refund"
}
