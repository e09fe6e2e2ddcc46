package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"photorevive/internal/domain"
	"photorevive/internal/middleware"
)

func (a *App) CreditsBalance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.Balance(r.Context(), userID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"balance": balance})
}

func (a *App) CreditsTransactions(w http.ResponseWriter, r *http.Request) {
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
	txs, err := a.Ledger.Transactions(r.Context(), userID, limit)
	if err != nil {
		a.domainError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(txs))
	for _, tx := range txs {
		items = append(items, map[string]any{
			"id":           tx.ID,
			"amount":       tx.Amount,
			"type":         tx.Type,
			"reference_id": tx.ReferenceID,
			"created_at":   tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

type creditsConfirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
	Package         string `json:"package"`
	AmountCents     int64  `json:"amount_cents" validate:"required_without=Package,omitempty,gt=0"`
}

// packageCredits maps a named purchase package to its credit grant. Unknown
// packages fall back to the cents-based formula.
func packageCredits(pkg string, amountCents int64) int64 {
	switch pkg {
	case "pkg_100":
		return 100
	case "pkg_500":
		return 500
	case "pkg_1000":
		return 1000
	case "pkg_2000":
		return 2000
	}
	return amountCents / 100 * 60
}

// CreditsConfirm records a completed purchase reported by the payment
// collaborator. The payment intent id is the idempotency key, so delivery
// retries cannot double-grant.
func (a *App) CreditsConfirm(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req creditsConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if err := a.Validate.Struct(req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	credits := packageCredits(req.Package, req.AmountCents)
	if credits <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "purchase grants no credits")
		return
	}

	tx, applied, err := a.Ledger.Credit(r.Context(), userID, credits, domain.TransactionPurchase, "purchase:"+req.PaymentIntentID, map[string]any{
		"package":      req.Package,
		"amount_cents": req.AmountCents,
		"country":      middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	code := http.StatusCreated
	if !applied {
		code = http.StatusOK
	}
	a.json(w, code, map[string]any{
		"transaction_id": tx.ID,
		"credits":        tx.Amount,
		"applied":        applied,
	})
}

// AuthBonus grants the one-time first-login bonus. Both the email and the
// OAuth login flows call this; the user-keyed reference collapses them
// onto a single grant.
func (a *App) AuthBonus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	tx, applied, err := a.Ledger.Credit(r.Context(), userID, domain.FirstLoginBonusCredits, domain.TransactionBonus, domain.FirstLoginBonusReference(userID), map[string]any{
		"country": middleware.CountryFromContext(r.Context()),
	})
	if err != nil {
		a.domainError(w, err)
		return
	}
	code := http.StatusCreated
	if !applied {
		code = http.StatusOK
	}
	a.json(w, code, map[string]any{
		"transaction_id": tx.ID,
		"credits":        tx.Amount,
		"applied":        applied,
	})
}
