package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tradepost/backend/internal/middleware"
	"github.com/tradepost/backend/internal/services"
)

// ReferralLedger is the part of the ledger service the handlers call
type ReferralLedger interface {
	ProcessQualifyingAction(ctx context.Context, accountID string) (*services.QualifyingActionResult, error)
	GetReferralSummary(ctx context.Context, accountID string) (*services.ReferralSummary, error)
}

type ReferralHandler struct {
	ledger    ReferralLedger
	qr        *services.ReferralQRService
	deduper   services.EventDeduper
	validator *services.ValidationHelper
}

func NewReferralHandler(ledger ReferralLedger, qr *services.ReferralQRService, deduper services.EventDeduper) *ReferralHandler {
	if deduper == nil {
		deduper = services.NoopEventDeduper{}
	}
	return &ReferralHandler{
		ledger:    ledger,
		qr:        qr,
		deduper:   deduper,
		validator: services.NewValidationHelper(),
	}
}

type qualifyingActionRequest struct {
	AccountID string `json:"accountId" validate:"required,max=64"`
	EventID   string `json:"eventId" validate:"required,eventid"`
}

// ProcessQualifyingAction is called once the payment provider has confirmed a subscription
// @Summary Process qualifying action
// @Tags referrals
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body qualifyingActionRequest true "Qualifying event"
// @Success 200 {object} services.QualifyingActionResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /referrals/qualifying-actions [post]
func (h *ReferralHandler) ProcessQualifyingAction(w http.ResponseWriter, r *http.Request) {
	var req qualifyingActionRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := h.validator.DecodeAndValidate(r.Body, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	claimed, err := h.deduper.Claim(r.Context(), req.EventID)
	if err != nil {
		// Dedup is only a front filter; the ledger flag still guarantees at-most-once.
		log.Printf("[REFERRAL] Event dedup unavailable for %s: %v", req.EventID, err)
		claimed = true
	}
	if !claimed {
		log.Printf("[REFERRAL] Duplicate event %s for account %s", req.EventID, req.AccountID)
		services.SendJSON(w, http.StatusOK, &services.QualifyingActionResult{
			AccountID:      req.AccountID,
			Outcome:        services.OutcomeAlreadyProcessed,
			DuplicateEvent: true,
		})
		return
	}

	// The claim is kept only when processing returns a result; errors and panics release it.
	processed := false
	defer func() {
		if processed {
			return
		}
		if releaseErr := h.deduper.Release(context.WithoutCancel(r.Context()), req.EventID); releaseErr != nil {
			log.Printf("[REFERRAL] Failed to release event %s: %v", req.EventID, releaseErr)
		}
	}()

	result, err := h.ledger.ProcessQualifyingAction(r.Context(), req.AccountID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAccountNotFound):
			services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		case errors.Is(err, services.ErrTransactionConflict):
			services.SendErrorResponse(w, "Transaction conflict, retry later", http.StatusConflict, nil)
		default:
			services.SendErrorResponse(w, "Failed to process qualifying action", http.StatusInternalServerError, nil)
		}
		return
	}

	processed = true
	services.SendJSON(w, http.StatusOK, result)
}

// GetReferralSummary returns the caller's referral code, balance and referral lists
// @Summary Referral summary of the caller
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} services.ReferralSummary
// @Router /accounts/{accountId}/referrals [get]
func (h *ReferralHandler) GetReferralSummary(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ownerOnly(w, r)
	if !ok {
		return
	}

	summary, err := h.ledger.GetReferralSummary(r.Context(), accountID)
	if errors.Is(err, services.ErrAccountNotFound) {
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[ACCOUNT] Failed to load referral summary for %s: %v", accountID, err)
		services.SendErrorResponse(w, "Failed to load referral summary", http.StatusInternalServerError, nil)
		return
	}

	services.SendJSON(w, http.StatusOK, summary)
}

// GetReferralQR returns a PNG QR code of the caller's referral signup link
// @Summary Referral link QR code
// @Tags accounts
// @Produce png
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Router /accounts/{accountId}/referral-qr [get]
func (h *ReferralHandler) GetReferralQR(w http.ResponseWriter, r *http.Request) {
	accountID, ok := ownerOnly(w, r)
	if !ok {
		return
	}

	link, png, err := h.qr.GenerateReferralQR(r.Context(), accountID, 256)
	if errors.Is(err, services.ErrAccountNotFound) {
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[ACCOUNT] Failed to generate referral QR for %s: %v", accountID, err)
		services.SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Referral-Link", link)
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// ownerOnly resolves {accountId} and requires it to be the authenticated caller
func ownerOnly(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	accountID := chi.URLParam(r, "accountId")
	if accountID != userID {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return "", false
	}
	return accountID, true
}

func writeRequestError(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		services.SendErrorResponse(w, "Request body too large", http.StatusRequestEntityTooLarge, nil)
	case isValidationError(err):
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
	default:
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
	}
}
