package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/restaurant-feedback/metrics"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"gorm.io/gorm"
)

const (
	MinCategoryRating = 1
	MaxCategoryRating = 5

	RecentFeedbackLimit = 5
)

// FeedbackInput is one customer submission before it is stored.
type FeedbackInput struct {
	CustomerName   string
	WaitTime       int
	FoodQuality    int
	Service        int
	Ambiance       int
	Comment        string
	ReferralSource string
}

func (in FeedbackInput) Validate() error {
	for _, r := range []int{in.WaitTime, in.FoodQuality, in.Service, in.Ambiance} {
		if r < MinCategoryRating || r > MaxCategoryRating {
			return ErrRatingOutOfRange
		}
	}
	return nil
}

// SubmissionAverage is the unrounded mean of the four category ratings.
func (in FeedbackInput) SubmissionAverage() float64 {
	return float64(in.WaitTime+in.FoodQuality+in.Service+in.Ambiance) / 4
}

// RatingUpdate is the new aggregate state after one more submission.
type RatingUpdate struct {
	SubmissionAverage float64 // rounded, stored on the feedback row
	RatingSum         float64
	ReviewCount       int
	OverallRating     float64
}

// ComputeRatingUpdate folds one unrounded submission average into the running
// aggregate. Rounding happens only on the way out, so the overall rating always
// equals round(mean of all submission averages, 1).
func ComputeRatingUpdate(currentSum float64, currentCount int, submissionAverage float64) RatingUpdate {
	newCount := currentCount + 1
	newSum := currentSum + submissionAverage
	return RatingUpdate{
		SubmissionAverage: utils.RoundToOneDecimal(submissionAverage),
		RatingSum:         newSum,
		ReviewCount:       newCount,
		OverallRating:     utils.RoundToOneDecimal(newSum / float64(newCount)),
	}
}

type FeedbackReceipt struct {
	Feedback      models.Feedback `json:"feedback"`
	OverallRating float64         `json:"overall_rating"`
	ReviewCount   int             `json:"review_count"`
}

type RatingSummary struct {
	OverallRating float64 `json:"overall_rating"`
	ReviewCount   int     `json:"review_count"`
}

// RatingAggregator keeps overall_rating/review_count consistent with the feedback rows.
type RatingAggregator struct {
	db     *gorm.DB
	policy RetryPolicy
	now    func() time.Time
}

func NewRatingAggregator(db *gorm.DB, policy RetryPolicy) *RatingAggregator {
	return &RatingAggregator{
		db:     db,
		policy: policy,
		now:    time.Now,
	}
}

// SubmitFeedback stores a feedback row and updates the restaurant aggregate in
// one transaction. A concurrent change to the restaurant restarts the whole
// read-compute-write step.
func (ra *RatingAggregator) SubmitFeedback(ctx context.Context, restaurantID string, in FeedbackInput) (*FeedbackReceipt, error) {
	if err := in.Validate(); err != nil {
		metrics.RecordFeedbackSubmission("invalid")
		return nil, err
	}

	var receipt FeedbackReceipt
	err := retryTransaction(ctx, ra.policy, func() error {
		return ra.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var restaurant models.Restaurant
			if err := tx.First(&restaurant, "id = ?", restaurantID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrRestaurantNotFound
				}
				return err
			}

			update := ComputeRatingUpdate(restaurant.CurrentRatingSum(), restaurant.ReviewCount, in.SubmissionAverage())

			result := tx.Model(&models.Restaurant{}).
				Where("id = ? AND version = ?", restaurant.ID, restaurant.Version).
				Updates(map[string]interface{}{
					"overall_rating": update.OverallRating,
					"review_count":   update.ReviewCount,
					"rating_sum":     update.RatingSum,
					"version":        gorm.Expr("version + 1"),
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrConcurrentUpdate
			}

			feedback := models.Feedback{
				RestaurantID:     restaurant.ID,
				CustomerName:     in.CustomerName,
				WaitTime:         in.WaitTime,
				FoodQuality:      in.FoodQuality,
				Service:          in.Service,
				Ambiance:         in.Ambiance,
				Comment:          in.Comment,
				ReferralSource:   in.ReferralSource,
				NewAverageReview: update.SubmissionAverage,
				CreatedAt:        ra.now(),
			}
			if err := tx.Create(&feedback).Error; err != nil {
				return fmt.Errorf("failed to store feedback: %w", err)
			}

			receipt = FeedbackReceipt{
				Feedback:      feedback,
				OverallRating: update.OverallRating,
				ReviewCount:   update.ReviewCount,
			}
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.RecordFeedbackSubmission("not_found")
		case errors.Is(err, ErrTransactionRetryExhausted):
			metrics.RecordFeedbackSubmission("retry_exhausted")
			utils.ErrorLogger.Printf("Feedback for restaurant %s lost the race too many times: %v", restaurantID, err)
		default:
			metrics.RecordFeedbackSubmission("error")
			utils.ErrorLogger.Printf("Error submitting feedback for restaurant %s: %v", restaurantID, err)
		}
		return nil, err
	}

	metrics.RecordFeedbackSubmission("success")
	utils.InfoLogger.Printf("Feedback %d stored for restaurant %s (rating=%.1f, reviews=%d)",
		receipt.Feedback.ID, restaurantID, receipt.OverallRating, receipt.ReviewCount)

	return &receipt, nil
}

// ListFeedback returns every feedback row for the restaurant, newest first.
func (ra *RatingAggregator) ListFeedback(ctx context.Context, restaurantID string) ([]models.Feedback, error) {
	return ra.feedbackPage(ctx, restaurantID, 0)
}

// RecentFeedback returns at most limit rows, newest first.
func (ra *RatingAggregator) RecentFeedback(ctx context.Context, restaurantID string, limit int) ([]models.Feedback, error) {
	if limit <= 0 {
		limit = RecentFeedbackLimit
	}
	return ra.feedbackPage(ctx, restaurantID, limit)
}

func (ra *RatingAggregator) feedbackPage(ctx context.Context, restaurantID string, limit int) ([]models.Feedback, error) {
	if _, err := ra.RatingSummary(ctx, restaurantID); err != nil {
		return nil, err
	}

	query := ra.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	feedback := make([]models.Feedback, 0)
	if err := query.Find(&feedback).Error; err != nil {
		return nil, err
	}
	return feedback, nil
}

func (ra *RatingAggregator) RatingSummary(ctx context.Context, restaurantID string) (*RatingSummary, error) {
	var restaurant models.Restaurant
	err := ra.db.WithContext(ctx).
		Select("id", "overall_rating", "review_count").
		First(&restaurant, "id = ?", restaurantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}
	return &RatingSummary{
		OverallRating: restaurant.OverallRating,
		ReviewCount:   restaurant.ReviewCount,
	}, nil
}
