package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
	"photorevive/internal/middleware"
	"photorevive/internal/orchestrator"
)

type jobSubmitRequest struct {
	Kind      string         `json:"kind" validate:"required,oneof=COLORIZE VIDEO_SYNTHESIS LIVEPORTRAIT EMOJI_VIDEO TTS"`
	SourceRef string         `json:"source_ref" validate:"required_unless=Kind TTS,omitempty,url"`
	Params    map[string]any `json:"params"`
}

func (a *App) JobsSubmit(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req jobSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	params := req.Params
	kind := domain.JobKind(req.Kind)
	if kind == domain.JobKindTTS {
		params = a.ttsParams(r, params)
	}

	job, err := a.Jobs.Submit(r.Context(), orchestrator.SubmitParams{
		OwnerID:       userID,
		Kind:          kind,
		SourceRef:     req.SourceRef,
		Params:        params,
		OriginCountry: middleware.CountryFromContext(r.Context()),
		CanSpend:      middleware.CanSpendFromContext(r.Context()),
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, jobView(job))
}

func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Store.GetForOwner(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, jobView(job))
}

// JobStatus returns the stored state only; it never reaches out to the
// vendor, so status reads stay cheap under client polling.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	job, err := a.Store.GetForOwner(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	resp := map[string]any{
		"id":         job.ID,
		"state":      job.State,
		"updated_at": job.UpdatedAt,
	}
	if job.State == domain.JobStateSucceeded {
		resp["result_refs"] = job.ResultRefs
	}
	if job.State == domain.JobStateFailed {
		resp["error"] = job.ErrorDetail
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) JobsList(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	jobs, err := a.Store.ListForOwner(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(jobs))
	for i := range jobs {
		items = append(items, jobView(&jobs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) JobDelete(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return
	}
	deleted, err := a.Store.DeleteForOwner(r.Context(), jobID, userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if !deleted {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ttsParams defaults the synthesis voice from the request locale when the
// client did not pick one.
func (a *App) ttsParams(r *http.Request, params map[string]any) map[string]any {
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["voice"]; !ok {
		params["voice"] = gateway.VoiceForLocale(middleware.LocaleFromContext(r.Context()))
	}
	return params
}

func jobView(job *domain.Job) map[string]any {
	view := map[string]any{
		"id":          job.ID,
		"kind":        job.Kind,
		"state":       job.State,
		"source_ref":  job.SourceRef,
		"credit_cost": job.CreditCost,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
	}
	if len(job.ResultRefs) > 0 {
		view["result_refs"] = job.ResultRefs
	}
	if job.ErrorDetail != "" {
		view["error"] = job.ErrorDetail
	}
	return view
}
