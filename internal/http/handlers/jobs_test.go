package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
	"photorevive/internal/ledger"
	"photorevive/internal/middleware"
	"photorevive/internal/orchestrator"
)

type fakeJobService struct {
	submit    func(context.Context, orchestrator.SubmitParams) (*domain.Job, error)
	reconcile func(context.Context, string, gateway.PollResult) (*domain.Job, error)
}

func (f *fakeJobService) Submit(ctx context.Context, p orchestrator.SubmitParams) (*domain.Job, error) {
	return f.submit(ctx, p)
}

func (f *fakeJobService) ReconcileByExternalID(ctx context.Context, externalID string, obs gateway.PollResult) (*domain.Job, error) {
	return f.reconcile(ctx, externalID, obs)
}

type fakeJobReader struct {
	jobs map[string]*domain.Job
}

func (f *fakeJobReader) GetForOwner(_ context.Context, jobID, ownerID string) (*domain.Job, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobReader) ListForOwner(_ context.Context, ownerID string, limit int) ([]domain.Job, error) {
	var out []domain.Job
	for _, job := range f.jobs {
		if job.OwnerID == ownerID && len(out) < limit {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (f *fakeJobReader) DeleteForOwner(_ context.Context, jobID, ownerID string) (bool, error) {
	job, ok := f.jobs[jobID]
	if !ok || job.OwnerID != ownerID {
		return false, nil
	}
	delete(f.jobs, jobID)
	return true, nil
}

func newTestApp(jobs JobService, store JobReader) *App {
	return NewApp(jobs, store, ledger.NewMemory(), zerolog.Nop())
}

func authedRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.ContextWithUserID(req.Context(), "u1")
	ctx = middleware.ContextWithCanSpend(ctx, true)
	return req.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestJobsSubmit(t *testing.T) {
	var got orchestrator.SubmitParams
	app := newTestApp(&fakeJobService{
		submit: func(_ context.Context, p orchestrator.SubmitParams) (*domain.Job, error) {
			got = p
			return &domain.Job{
				ID:         "job-1",
				OwnerID:    p.OwnerID,
				Kind:       p.Kind,
				State:      domain.JobStateRunning,
				SourceRef:  p.SourceRef,
				CreditCost: p.Kind.CreditCost(),
				CreatedAt:  time.Now(),
				UpdatedAt:  time.Now(),
			}, nil
		},
	}, &fakeJobReader{})

	body := `{"kind":"COLORIZE","source_ref":"https://photos.example.com/bw.jpg"}`
	rec := httptest.NewRecorder()
	app.JobsSubmit(rec, authedRequest(http.MethodPost, "/v1/jobs", body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got.OwnerID != "u1" || got.Kind != domain.JobKindColorize || !got.CanSpend {
		t.Fatalf("submit params = %+v", got)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["id"] != "job-1" || resp["state"] != "RUNNING" {
		t.Fatalf("response = %v", resp)
	}
}

func TestJobsSubmitValidation(t *testing.T) {
	app := newTestApp(&fakeJobService{
		submit: func(context.Context, orchestrator.SubmitParams) (*domain.Job, error) {
			t.Fatal("submit must not be reached on validation failure")
			return nil, nil
		},
	}, &fakeJobReader{})

	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `{"kind":"SKETCH","source_ref":"https://x.example.com/a.jpg"}`},
		{"missing source", `{"kind":"COLORIZE"}`},
		{"malformed json", `{"kind":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			app.JobsSubmit(rec, authedRequest(http.MethodPost, "/v1/jobs", tc.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestJobsSubmitTTSWithoutSource(t *testing.T) {
	app := newTestApp(&fakeJobService{
		submit: func(_ context.Context, p orchestrator.SubmitParams) (*domain.Job, error) {
			if p.Params["voice"] == "" {
				t.Error("voice must be defaulted for tts")
			}
			return &domain.Job{ID: "job-1", State: domain.JobStateRunning, Kind: p.Kind}, nil
		},
	}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	app.JobsSubmit(rec, authedRequest(http.MethodPost, "/v1/jobs", `{"kind":"TTS","params":{"text":"hello"}}`))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestJobsSubmitInsufficientCredits(t *testing.T) {
	app := newTestApp(&fakeJobService{
		submit: func(context.Context, orchestrator.SubmitParams) (*domain.Job, error) {
			return nil, domain.ErrInsufficientCredits
		},
	}, &fakeJobReader{})

	rec := httptest.NewRecorder()
	app.JobsSubmit(rec, authedRequest(http.MethodPost, "/v1/jobs", `{"kind":"COLORIZE","source_ref":"https://x.example.com/a.jpg"}`))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
}

func TestJobsSubmitRequiresAuth(t *testing.T) {
	app := newTestApp(&fakeJobService{}, &fakeJobReader{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{}`))
	app.JobsSubmit(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestJobStatusViews(t *testing.T) {
	store := &fakeJobReader{jobs: map[string]*domain.Job{
		"job-ok": {
			ID: "job-ok", OwnerID: "u1", Kind: domain.JobKindColorize,
			State: domain.JobStateSucceeded, ResultRefs: []string{"https://cdn.example.com/a.jpg"},
		},
		"job-bad": {
			ID: "job-bad", OwnerID: "u1", Kind: domain.JobKindColorize,
			State: domain.JobStateFailed, ErrorDetail: "vendor error",
		},
		"job-foreign": {ID: "job-foreign", OwnerID: "u2", State: domain.JobStateRunning},
	}}
	app := newTestApp(&fakeJobService{}, store)

	t.Run("succeeded exposes result refs", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodGet, "/v1/jobs/job-ok/status", ""), "job_id", "job-ok")
		app.JobStatus(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var resp map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["state"] != "SUCCEEDED" {
			t.Fatalf("state = %v", resp["state"])
		}
		if _, ok := resp["result_refs"]; !ok {
			t.Fatal("succeeded status must carry result_refs")
		}
	})

	t.Run("failed exposes error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodGet, "/v1/jobs/job-bad/status", ""), "job_id", "job-bad")
		app.JobStatus(rec, req)
		var resp map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &resp)
		if resp["error"] != "vendor error" {
			t.Fatalf("error = %v", resp["error"])
		}
	})

	t.Run("other owner's job is invisible", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := withURLParam(authedRequest(http.MethodGet, "/v1/jobs/job-foreign/status", ""), "job_id", "job-foreign")
		app.JobStatus(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestJobDelete(t *testing.T) {
	store := &fakeJobReader{jobs: map[string]*domain.Job{
		"job-1": {ID: "job-1", OwnerID: "u1", State: domain.JobStateSucceeded},
	}}
	app := newTestApp(&fakeJobService{}, store)

	rec := httptest.NewRecorder()
	req := withURLParam(authedRequest(http.MethodDelete, "/v1/jobs/job-1", ""), "job_id", "job-1")
	app.JobDelete(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = withURLParam(authedRequest(http.MethodDelete, "/v1/jobs/job-1", ""), "job_id", "job-1")
	app.JobDelete(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeat delete status = %d, want 404", rec.Code)
	}
}
