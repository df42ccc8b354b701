package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/tradepost/backend/internal/models"
	"github.com/tradepost/backend/internal/repository"
)

var (
	ErrAlreadyRated = errors.New("profile already rated by this account")
	ErrSelfRating   = errors.New("accounts cannot rate themselves")
	ErrInvalidScore = errors.New("score must be between 1 and 5")
)

const ratingTxAttempts = 5

// RatingService keeps each profile's running rating average
type RatingService struct {
	accounts repository.AccountRepository
}

func NewRatingService(accounts repository.AccountRepository) *RatingService {
	return &RatingService{accounts: accounts}
}

// RatingResult is the profile's aggregate after a rating is accepted
type RatingResult struct {
	ProfileID     string  `json:"profileId"`
	RatingAverage float64 `json:"ratingAverage"`
	RatingCount   int     `json:"ratingCount"`
}

// SubmitRating records one rating per (profile, rater) and folds it into the average.
// The uniqueness check and the aggregate update commit together.
func (s *RatingService) SubmitRating(ctx context.Context, profileID, raterID string, score int, comment string) (*RatingResult, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	if profileID == raterID {
		return nil, ErrSelfRating
	}

	var result *RatingResult
	var err error
	for attempt := 1; attempt <= ratingTxAttempts; attempt++ {
		err = s.accounts.RunInTx(ctx, func(tx repository.AccountTx) error {
			profile, err := tx.GetAccount(ctx, profileID)
			if err != nil {
				return err
			}

			if err := tx.InsertRating(ctx, &models.Rating{
				ID:        uuid.NewString(),
				ProfileID: profileID,
				RaterID:   raterID,
				Score:     score,
				Comment:   comment,
				CreatedAt: time.Now(),
			}); err != nil {
				return err
			}

			total := profile.RatingAverage*float64(profile.RatingCount) + float64(score)
			profile.RatingCount++
			profile.RatingAverage = total / float64(profile.RatingCount)
			if err := tx.SaveAccount(ctx, profile); err != nil {
				return err
			}

			result = &RatingResult{
				ProfileID:     profile.ID,
				RatingAverage: profile.RatingAverage,
				RatingCount:   profile.RatingCount,
			}
			return nil
		})
		if !errors.Is(err, repository.ErrConflict) {
			break
		}
		log.Printf("[RATING] Conflict rating %s (attempt %d/%d)", profileID, attempt, ratingTxAttempts)
	}

	switch {
	case err == nil:
		log.Printf("[RATING] %s rated %s: %d", raterID, profileID, score)
		return result, nil
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrAccountNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrAlreadyRated
	case errors.Is(err, repository.ErrConflict):
		return nil, fmt.Errorf("rating %s: %w", profileID, ErrTransactionConflict)
	default:
		return nil, fmt.Errorf("submit rating: %w", err)
	}
}
