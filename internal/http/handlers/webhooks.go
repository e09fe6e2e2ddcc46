package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
)

type dashScopeWebhookPayload struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		VideoURL   string `json:"video_url"`
		Results    []struct {
			URL string `json:"url"`
		} `json:"results"`
		Message string `json:"message"`
	} `json:"output"`
}

type a302WebhookPayload struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output struct {
		ImageURL string `json:"image_url"`
		Images   []struct {
			URL string `json:"url"`
		} `json:"images"`
	} `json:"output"`
	Error string `json:"error"`
}

// WebhookReceive folds a vendor callback into the reconcile path. Webhook
// delivery is at-least-once and unordered with respect to polling, so the
// handler is tolerant: unknown external ids are acknowledged with 202 and
// dropped rather than retried into a poison queue.
func (a *App) WebhookReceive(w http.ResponseWriter, r *http.Request) {
	vendor := chi.URLParam(r, "vendor")

	externalID, obs, err := decodeWebhook(vendor, r)
	if err != nil {
		if errors.Is(err, errUnknownVendor) {
			a.error(w, http.StatusNotFound, "not_found", "unknown vendor")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if externalID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "missing task id")
		return
	}

	job, err := a.Jobs.ReconcileByExternalID(r.Context(), externalID, obs)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// The callback may have outrun our own submission commit.
			a.json(w, http.StatusAccepted, map[string]string{"status": "ignored"})
			return
		}
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": job.ID, "state": job.State})
}

var errUnknownVendor = errors.New("unknown vendor")

func decodeWebhook(vendor string, r *http.Request) (string, gateway.PollResult, error) {
	switch vendor {
	case "dashscope":
		var p dashScopeWebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return "", gateway.PollResult{}, errors.New("invalid payload")
		}
		return p.Output.TaskID, dashScopeObservation(p), nil
	case "302ai":
		var p a302WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return "", gateway.PollResult{}, errors.New("invalid payload")
		}
		return p.ID, a302Observation(p), nil
	default:
		return "", gateway.PollResult{}, errUnknownVendor
	}
}

func dashScopeObservation(p dashScopeWebhookPayload) gateway.PollResult {
	switch p.Output.TaskStatus {
	case "SUCCEEDED":
		urls := make([]string, 0, 1)
		if p.Output.VideoURL != "" {
			urls = append(urls, p.Output.VideoURL)
		}
		for _, res := range p.Output.Results {
			if res.URL != "" {
				urls = append(urls, res.URL)
			}
		}
		if len(urls) == 0 {
			return gateway.PollResult{Status: gateway.StatusFailed, ErrorDetail: "dashscope: task succeeded without artifacts"}
		}
		return gateway.PollResult{Status: gateway.StatusSucceeded, ArtifactURLs: urls}
	case "FAILED", "CANCELED", "UNKNOWN":
		detail := p.Output.Message
		if detail == "" {
			detail = "dashscope: task " + strings.ToLower(p.Output.TaskStatus)
		}
		return gateway.PollResult{Status: gateway.StatusFailed, ErrorDetail: detail}
	default:
		return gateway.PollResult{Status: gateway.StatusRunning, Progress: p.Output.TaskStatus}
	}
}

func a302Observation(p a302WebhookPayload) gateway.PollResult {
	switch strings.ToLower(p.Status) {
	case "succeeded", "completed", "success":
		urls := make([]string, 0, 1)
		if p.Output.ImageURL != "" {
			urls = append(urls, p.Output.ImageURL)
		}
		for _, img := range p.Output.Images {
			if img.URL != "" {
				urls = append(urls, img.URL)
			}
		}
		if len(urls) == 0 {
			return gateway.PollResult{Status: gateway.StatusFailed, ErrorDetail: "302ai: task succeeded without artifacts"}
		}
		return gateway.PollResult{Status: gateway.StatusSucceeded, ArtifactURLs: urls}
	case "failed", "error", "canceled":
		detail := p.Error
		if detail == "" {
			detail = "302ai: task failed"
		}
		return gateway.PollResult{Status: gateway.StatusFailed, ErrorDetail: detail}
	default:
		return gateway.PollResult{Status: gateway.StatusRunning, Progress: p.Status}
	}
}
