package controllers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/services"
)

const sideChannelPending = "pending"

// sideChannelStatuses waits at most wait for both side channels and reports
// pending for any that has not finished by then.
func sideChannelStatuses(result *services.ApprovalResult, wait time.Duration) gin.H {
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()

	return gin.H{
		"qr_code": awaitSideChannel(ctx, result.QRCode),
		"email":   awaitSideChannel(ctx, result.Email),
	}
}

func awaitSideChannel(ctx context.Context, results <-chan services.SideChannelResult) string {
	select {
	case r, ok := <-results:
		if ok {
			return r.Status()
		}
		return sideChannelPending
	default:
	}

	select {
	case r, ok := <-results:
		if ok {
			return r.Status()
		}
		return sideChannelPending
	case <-ctx.Done():
		return sideChannelPending
	}
}

func onboardingResponse(result *services.ApprovalResult, wait time.Duration) gin.H {
	return gin.H{
		"restaurant":     result.Restaurant,
		"owner_password": result.OwnerPassword,
		"side_channels":  sideChannelStatuses(result, wait),
	}
}
