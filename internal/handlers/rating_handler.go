package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/tradepost/backend/internal/middleware"
	"github.com/tradepost/backend/internal/services"
)

type RatingHandler struct {
	service   *services.RatingService
	validator *services.ValidationHelper
}

func NewRatingHandler(service *services.RatingService) *RatingHandler {
	return &RatingHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

type submitRatingRequest struct {
	Score   int    `json:"score" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=500"`
}

// SubmitRating rates the {accountId} profile as the authenticated caller
// @Summary Rate a profile
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Rated account ID"
// @Param request body submitRatingRequest true "Rating"
// @Success 201 {object} services.RatingResult
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts/{accountId}/ratings [post]
func (h *RatingHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	raterID := middleware.UserIDFromContext(r.Context())
	if raterID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req submitRatingRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	if err := h.validator.DecodeAndValidate(r.Body, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	profileID := chi.URLParam(r, "accountId")
	result, err := h.service.SubmitRating(r.Context(), profileID, raterID, req.Score, req.Comment)
	switch {
	case err == nil:
		services.SendJSON(w, http.StatusCreated, result)
	case errors.Is(err, services.ErrAccountNotFound):
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
	case errors.Is(err, services.ErrAlreadyRated):
		services.SendErrorResponse(w, "You have already rated this profile", http.StatusConflict, nil)
	case errors.Is(err, services.ErrSelfRating), errors.Is(err, services.ErrInvalidScore):
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
	case errors.Is(err, services.ErrTransactionConflict):
		services.SendErrorResponse(w, "Transaction conflict, retry later", http.StatusConflict, nil)
	default:
		log.Printf("[RATING] Failed to rate %s: %v", profileID, err)
		services.SendErrorResponse(w, "Failed to submit rating", http.StatusInternalServerError, nil)
	}
}

func isValidationError(err error) bool {
	var fieldErrs validator.ValidationErrors
	return errors.As(err, &fieldErrs)
}
