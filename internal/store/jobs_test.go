package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"photorevive/internal/domain"
	"photorevive/internal/sqlinline"
)

type simpleRow struct {
	scan func(dest ...any) error
}

func (r simpleRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// testSQL records the statements the store issues and answers them from
// canned rows.
type testSQL struct {
	execs    []string
	queries  []string
	lastArgs []any
	row      simpleRow
	rows     pgx.Rows
	queryErr error
}

func (s *testSQL) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, query)
	s.lastArgs = args
	return pgconn.CommandTag{}, nil
}

func (s *testSQL) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	return s.row
}

func (s *testSQL) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	s.queries = append(s.queries, query)
	s.lastArgs = args
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.rows, nil
}

type rowsBase struct{}

func (rowsBase) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (rowsBase) Conn() *pgx.Conn                              { return nil }
func (rowsBase) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (rowsBase) RawValues() [][]byte                          { return nil }
func (rowsBase) Values() ([]any, error) {
	return nil, fmt.Errorf("values not supported in test rows")
}

type jobRows struct {
	rowsBase
	scans []func(dest ...any) error
	idx   int
}

func (r *jobRows) Next() bool {
	if r.idx >= len(r.scans) {
		return false
	}
	r.idx++
	return true
}

func (r *jobRows) Scan(dest ...any) error {
	if r.idx == 0 || r.idx > len(r.scans) {
		return pgx.ErrNoRows
	}
	return r.scans[r.idx-1](dest...)
}

func (r *jobRows) Err() error { return nil }
func (r *jobRows) Close()     {}

func jobScan(job domain.Job) func(dest ...any) error {
	return func(dest ...any) error {
		if len(dest) != 14 {
			return fmt.Errorf("unexpected dest count: %d", len(dest))
		}
		var refsRaw, paramsRaw []byte
		if job.ResultRefs != nil {
			refsRaw, _ = json.Marshal(job.ResultRefs)
		}
		if job.Params != nil {
			paramsRaw, _ = json.Marshal(job.Params)
		}
		*dest[0].(*string) = job.ID
		*dest[1].(*string) = job.OwnerID
		*dest[2].(*domain.JobKind) = job.Kind
		*dest[3].(*domain.JobState) = job.State
		*dest[4].(*string) = job.ExternalID
		*dest[5].(*string) = job.SourceRef
		*dest[6].(*[]byte) = refsRaw
		*dest[7].(*string) = job.ErrorDetail
		*dest[8].(*int64) = job.CreditCost
		*dest[9].(*string) = job.LedgerTxID
		*dest[10].(*[]byte) = paramsRaw
		*dest[11].(*string) = job.OriginCountry
		*dest[12].(*time.Time) = job.CreatedAt
		*dest[13].(*time.Time) = job.UpdatedAt
		return nil
	}
}

func TestGetDecodesJob(t *testing.T) {
	want := domain.Job{
		ID:         "job-1",
		OwnerID:    "u1",
		Kind:       domain.JobKindVideoSynthesis,
		State:      domain.JobStateSucceeded,
		ExternalID: "task-9",
		ResultRefs: []string{"https://cdn.example.com/a.mp4"},
		CreditCost: 10,
		Params:     map[string]any{"resolution": "720P"},
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	sql := &testSQL{row: simpleRow{scan: jobScan(want)}}
	store := NewJobStore(sql)

	got, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != want.ID || got.State != want.State {
		t.Fatalf("job = %+v", got)
	}
	if len(got.ResultRefs) != 1 || got.ResultRefs[0] != want.ResultRefs[0] {
		t.Fatalf("result refs = %v", got.ResultRefs)
	}
	if got.Params["resolution"] != "720P" {
		t.Fatalf("params = %v", got.Params)
	}
	if len(sql.queries) != 1 || sql.queries[0] != sqlinline.QSelectJob {
		t.Fatalf("unexpected query set: %d", len(sql.queries))
	}
}

func TestGetNotFound(t *testing.T) {
	store := NewJobStore(&testSQL{})
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkRunningLostRace(t *testing.T) {
	store := NewJobStore(&testSQL{})
	applied, err := store.MarkRunning(context.Background(), "job-1", "task-9")
	if err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if applied {
		t.Fatal("no matching row must report applied=false")
	}
}

func TestMarkTerminalRejectsNonTerminalState(t *testing.T) {
	store := NewJobStore(&testSQL{})
	if _, err := store.MarkTerminal(context.Background(), "job-1", domain.JobStateRunning, nil, ""); err == nil {
		t.Fatal("RUNNING must be rejected as a terminal state")
	}
}

func TestMarkTerminalApplied(t *testing.T) {
	sql := &testSQL{row: simpleRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "job-1"
		return nil
	}}}
	store := NewJobStore(sql)

	applied, err := store.MarkTerminal(context.Background(), "job-1", domain.JobStateFailed, nil, "vendor error")
	if err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	if !applied {
		t.Fatal("expected applied=true")
	}
	if len(sql.lastArgs) != 4 {
		t.Fatalf("args = %v", sql.lastArgs)
	}
	if sql.lastArgs[1] != "FAILED" || sql.lastArgs[3] != any("vendor error") {
		t.Fatalf("args = %v", sql.lastArgs)
	}
}

func TestListForOwner(t *testing.T) {
	now := time.Now()
	rows := &jobRows{scans: []func(dest ...any) error{
		jobScan(domain.Job{ID: "job-2", OwnerID: "u1", Kind: domain.JobKindColorize, State: domain.JobStateRunning, CreatedAt: now, UpdatedAt: now}),
		jobScan(domain.Job{ID: "job-1", OwnerID: "u1", Kind: domain.JobKindTTS, State: domain.JobStateSucceeded, CreatedAt: now, UpdatedAt: now}),
	}}
	sql := &testSQL{rows: rows}
	store := NewJobStore(sql)

	jobs, err := store.ListForOwner(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "job-2" {
		t.Fatalf("jobs = %+v", jobs)
	}
	if sql.lastArgs[1] != 10 {
		t.Fatalf("limit arg = %v", sql.lastArgs[1])
	}
}

func TestListExpiredIntervalArg(t *testing.T) {
	sql := &testSQL{rows: &jobRows{}}
	store := NewJobStore(sql)

	if _, err := store.ListExpired(context.Background(), 30*time.Minute); err != nil {
		t.Fatalf("list expired: %v", err)
	}
	if len(sql.lastArgs) != 1 || sql.lastArgs[0] != "1800 seconds" {
		t.Fatalf("interval arg = %v", sql.lastArgs)
	}
}
