// Package handlers implements the HTTP API surface. Handlers validate and
// translate; the orchestrator and ledger own all business rules.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"photorevive/internal/domain"
	"photorevive/internal/gateway"
	"photorevive/internal/ledger"
	"photorevive/internal/middleware"
	"photorevive/internal/orchestrator"
)

// JobService is the orchestrator surface the handlers call.
type JobService interface {
	Submit(ctx context.Context, p orchestrator.SubmitParams) (*domain.Job, error)
	ReconcileByExternalID(ctx context.Context, externalID string, obs gateway.PollResult) (*domain.Job, error)
}

// JobReader reads owner-scoped job records.
type JobReader interface {
	GetForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error)
	ListForOwner(ctx context.Context, ownerID string, limit int) ([]domain.Job, error)
	DeleteForOwner(ctx context.Context, jobID, ownerID string) (bool, error)
}

type App struct {
	Jobs     JobService
	Store    JobReader
	Ledger   ledger.Ledger
	Validate *validator.Validate
	Fetch    *http.Client
	Logger   zerolog.Logger
}

func NewApp(jobs JobService, store JobReader, lgr ledger.Ledger, logger zerolog.Logger) *App {
	return &App{
		Jobs:     jobs,
		Store:    store,
		Ledger:   lgr,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Fetch:    &http.Client{Timeout: 60 * time.Second},
		Logger:   logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// domainError maps sentinel errors onto HTTP responses.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrInsufficientCredits):
		a.error(w, http.StatusPaymentRequired, "insufficient_credits", "not enough credits for this operation")
	case errors.Is(err, domain.ErrDuplicateOperation):
		a.error(w, http.StatusConflict, "conflict", "operation already applied")
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
