package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yeremiapane/restaurant-feedback/hub"
	"github.com/yeremiapane/restaurant-feedback/metrics"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

const (
	DefaultClaimMonitorInterval = time.Minute
	staleClaimBatchSize         = 100
)

// ClaimMonitor periodically hands abandoned approvals back to the pending
// queue so an admin can approve them again.
type ClaimMonitor struct {
	lifecycle *LifecycleManager
	Interval  time.Duration
	stopChan  chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewClaimMonitor(lm *LifecycleManager, interval time.Duration) *ClaimMonitor {
	if interval <= 0 {
		interval = DefaultClaimMonitorInterval
	}
	return &ClaimMonitor{
		lifecycle: lm,
		Interval:  interval,
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (cm *ClaimMonitor) Start() {
	go func() {
		defer close(cm.done)
		ticker := time.NewTicker(cm.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if _, err := cm.lifecycle.ReleaseStaleClaims(context.Background()); err != nil {
					utils.ErrorLogger.Printf("Error releasing stale approval claims: %v", err)
				}
			case <-cm.stopChan:
				return
			}
		}
	}()
}

// Stop ends the loop and waits for an in-flight sweep.
func (cm *ClaimMonitor) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopChan) })
	<-cm.done
}

// ReleaseStaleClaims returns requests stuck in provisioning past the claim
// lease to pending, deleting any identity the failed approval created. A
// request whose identity cannot be deleted stays provisioning so a later
// approval resumes it.
func (lm *LifecycleManager) ReleaseStaleClaims(ctx context.Context) (int, error) {
	cutoff := lm.now().Add(-lm.claimLease)

	var stale []models.DemoRequest
	if err := lm.db.WithContext(ctx).
		Where("status = ? AND claimed_at < ?", models.DemoRequestStatusProvisioning, cutoff).
		Order("claimed_at ASC").
		Limit(staleClaimBatchSize).
		Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("failed to find stale claims: %w", err)
	}

	released := 0
	for i := range stale {
		request := &stale[i]

		// take the claim over; the stalled approval's writes stop matching
		claim := approvalClaim{requestID: request.ID, token: uuid.NewString()}
		result := lm.db.WithContext(ctx).Model(&models.DemoRequest{}).
			Where("id = ? AND status = ? AND claimed_at < ?", request.ID, models.DemoRequestStatusProvisioning, cutoff).
			Updates(map[string]interface{}{
				"claimed_at":  lm.now(),
				"claim_token": claim.token,
			})
		if result.Error != nil {
			return released, fmt.Errorf("failed to take over claim on demo request %d: %w", request.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			continue
		}
		// the identity may have been recorded after the batch was read
		var current models.DemoRequest
		if err := lm.db.WithContext(ctx).First(&current, request.ID).Error; err != nil {
			return released, fmt.Errorf("failed to reload demo request %d: %w", request.ID, err)
		}
		request = &current

		if request.ProvisionedUserID != nil {
			if err := lm.identities.DeleteIdentity(ctx, *request.ProvisionedUserID); err != nil {
				utils.ErrorLogger.Printf("Error deleting identity %s of stale demo request %d: %v",
					*request.ProvisionedUserID, request.ID, err)
				continue
			}
		}
		lm.releaseClaim(ctx, claim, true)
		released++

		utils.InfoLogger.Printf("Released stale approval claim on demo request %d (%s)", request.ID, request.Email)
		metrics.RecordDemoRequestTransition("claim_released")
		lm.broadcast(hub.EventDemoRequestReleased, map[string]interface{}{"demo_request_id": request.ID})
	}
	return released, nil
}
