package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/yeremiapane/restaurant-feedback/hub"
	"github.com/yeremiapane/restaurant-feedback/metrics"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"gorm.io/gorm"
)

const (
	SideChannelQRCode           = "qr_code"
	SideChannelCredentialsEmail = "credentials_email"

	sideChannelTaskTimeout = 2 * time.Minute
)

// SideChannelTask is a best-effort job that runs after the primary write committed.
type SideChannelTask struct {
	Kind         string
	RestaurantID string
	Run          func(ctx context.Context) error
}

type SideChannelResult struct {
	Kind         string `json:"kind"`
	RestaurantID string `json:"restaurant_id"`
	Attempts     int    `json:"attempts"`
	Err          error  `json:"-"`
}

func (r SideChannelResult) Succeeded() bool { return r.Err == nil }

// Status is "succeeded" or "failed".
func (r SideChannelResult) Status() string {
	if r.Err != nil {
		return "failed"
	}
	return "succeeded"
}

type SideChannelMetrics struct {
	Dispatched int64 `json:"dispatched"`
	Succeeded  int64 `json:"succeeded"`
	Failed     int64 `json:"failed"`
	Retries    int64 `json:"retries"`
}

// SideChannelDispatcher runs side channel tasks in the background with their
// own retry policy. Outcomes never flow back into the primary transaction.
type SideChannelDispatcher struct {
	db      *gorm.DB
	hub     *hub.Hub
	policy  RetryPolicy
	timeout time.Duration
	metrics SideChannelMetrics
	mutex   sync.Mutex
	wg      sync.WaitGroup
}

func NewSideChannelDispatcher(db *gorm.DB, h *hub.Hub, policy RetryPolicy) *SideChannelDispatcher {
	return &SideChannelDispatcher{
		db:      db,
		hub:     h,
		policy:  policy,
		timeout: sideChannelTaskTimeout,
	}
}

// Dispatch starts the task and returns a channel that receives exactly one result.
// The channel is buffered, so callers may drop it.
func (d *SideChannelDispatcher) Dispatch(task SideChannelTask) <-chan SideChannelResult {
	results := make(chan SideChannelResult, 1)

	d.mutex.Lock()
	d.metrics.Dispatched++
	d.mutex.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		result := d.run(task)
		d.record(result)
		results <- result
		close(results)
	}()

	return results
}

// Wait blocks until every dispatched task has finished.
func (d *SideChannelDispatcher) Wait() {
	d.wg.Wait()
}

func (d *SideChannelDispatcher) GetMetrics() SideChannelMetrics {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.metrics
}

func (d *SideChannelDispatcher) run(task SideChannelTask) SideChannelResult {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	attempts := 0
	operation := func() error {
		attempts++
		return task.Run(ctx)
	}
	notify := func(err error, next time.Duration) {
		d.mutex.Lock()
		d.metrics.Retries++
		d.mutex.Unlock()
		utils.ErrorLogger.Printf("Side channel %s for restaurant %s failed (attempt %d), retrying in %s: %v",
			task.Kind, task.RestaurantID, attempts, next, err)
	}

	err := backoff.RetryNotify(operation, d.policy.backOff(ctx), notify)
	return SideChannelResult{
		Kind:         task.Kind,
		RestaurantID: task.RestaurantID,
		Attempts:     attempts,
		Err:          err,
	}
}

func (d *SideChannelDispatcher) record(result SideChannelResult) {
	d.mutex.Lock()
	if result.Succeeded() {
		d.metrics.Succeeded++
	} else {
		d.metrics.Failed++
	}
	d.mutex.Unlock()

	metrics.RecordSideChannelTask(result.Kind, result.Status())

	var message string
	if result.Succeeded() {
		utils.InfoLogger.Printf("Side channel %s for restaurant %s succeeded after %d attempt(s)",
			result.Kind, result.RestaurantID, result.Attempts)
		message = fmt.Sprintf("%s succeeded for restaurant %s", result.Kind, result.RestaurantID)
	} else {
		utils.ErrorLogger.Printf("Side channel %s for restaurant %s gave up after %d attempt(s): %v",
			result.Kind, result.RestaurantID, result.Attempts, result.Err)
		message = fmt.Sprintf("%s failed for restaurant %s: %v", result.Kind, result.RestaurantID, result.Err)
	}

	restaurantID := result.RestaurantID
	notification := models.Notification{
		RestaurantID: &restaurantID,
		Kind:         result.Kind + "_" + result.Status(),
		Message:      message,
	}
	if d.db != nil {
		if err := d.db.Create(&notification).Error; err != nil {
			utils.ErrorLogger.Printf("Error storing side channel notification: %v", err)
		}
	}

	if d.hub != nil {
		d.hub.Broadcast(hub.EventSideChannelResult, map[string]interface{}{
			"kind":          result.Kind,
			"restaurant_id": result.RestaurantID,
			"status":        result.Status(),
			"attempts":      result.Attempts,
		})
	}
}
