package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/yeremiapane/restaurant-feedback/hub"
	"github.com/yeremiapane/restaurant-feedback/metrics"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/utils"
	"gorm.io/gorm"
)

const DefaultApprovalClaimLease = 5 * time.Minute

var (
	ErrApprovalInProgress = newError(ErrConflict, "demo request is being approved")
	ErrApprovalClaimLost  = newError(ErrConflict, "approval claim expired and was taken over")
)

type DemoRequestInput struct {
	RestaurantName string
	Email          string
	Phone          string
	Location       string
	RestaurantType string
}

func (in DemoRequestInput) validate() error {
	if strings.TrimSpace(in.RestaurantName) == "" || normalizeEmail(in.Email) == "" {
		return newError(ErrInvalidInput, "restaurant name and email are required")
	}
	return nil
}

// RestaurantInput is the direct onboarding form.
type RestaurantInput struct {
	DemoRequestInput
	Plan string
}

// RestaurantUpdate carries the editable fields; nil means unchanged.
type RestaurantUpdate struct {
	RestaurantName *string
	Email          *string
	Phone          *string
	Location       *string
	RestaurantType *string
	Plan           *string
}

// ApprovalResult is returned once the restaurant exists. QRCode and Email each
// deliver one side channel result and may be ignored.
type ApprovalResult struct {
	Restaurant    models.Restaurant
	OwnerPassword string
	QRCode        <-chan SideChannelResult
	Email         <-chan SideChannelResult
}

type LifecycleOptions struct {
	Identities IdentityProvider
	Dispatcher *SideChannelDispatcher
	Images     ImageStore
	QR         QREncoder
	Mailer     Mailer
	Hub        *hub.Hub
	// FeedbackFormURL is the origin serving the customer feedback form.
	FeedbackFormURL string
	ClaimLease      time.Duration
}

// LifecycleManager moves a demo request to an active restaurant exactly once.
type LifecycleManager struct {
	db              *gorm.DB
	identities      IdentityProvider
	dispatcher      *SideChannelDispatcher
	images          ImageStore
	qr              QREncoder
	mailer          Mailer
	hub             *hub.Hub
	feedbackFormURL string
	claimLease      time.Duration
	now             func() time.Time
}

func NewLifecycleManager(db *gorm.DB, opts LifecycleOptions) *LifecycleManager {
	lease := opts.ClaimLease
	if lease <= 0 {
		lease = DefaultApprovalClaimLease
	}
	return &LifecycleManager{
		db:              db,
		identities:      opts.Identities,
		dispatcher:      opts.Dispatcher,
		images:          opts.Images,
		qr:              opts.QR,
		mailer:          opts.Mailer,
		hub:             opts.Hub,
		feedbackFormURL: strings.TrimRight(opts.FeedbackFormURL, "/"),
		claimLease:      lease,
		now:             time.Now,
	}
}

// SubmitDemoRequest stores a new pending request unless one is already open
// for the same email.
func (lm *LifecycleManager) SubmitDemoRequest(ctx context.Context, in DemoRequestInput) (*models.DemoRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	email := normalizeEmail(in.Email)

	var count int64
	if err := lm.db.WithContext(ctx).Model(&models.DemoRequest{}).
		Where("pending_email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDuplicateDemoRequest
	}

	request := models.DemoRequest{
		RestaurantName: strings.TrimSpace(in.RestaurantName),
		Email:          email,
		PendingEmail:   &email,
		Phone:          in.Phone,
		Location:       in.Location,
		RestaurantType: in.RestaurantType,
		IsPending:      true,
		Status:         models.DemoRequestStatusPending,
	}
	if err := lm.db.WithContext(ctx).Create(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateDemoRequest
		}
		return nil, fmt.Errorf("failed to store demo request: %w", err)
	}

	metrics.RecordDemoRequestTransition("submitted")
	utils.InfoLogger.Printf("Demo request %d submitted for %s", request.ID, request.Email)
	lm.broadcast(hub.EventDemoRequestSubmitted, request)
	return &request, nil
}

// ListPendingDemoRequests returns open requests, newest first, optionally
// filtered by restaurant name or email.
func (lm *LifecycleManager) ListPendingDemoRequests(ctx context.Context, search string) ([]models.DemoRequest, error) {
	query := lm.db.WithContext(ctx).Where("is_pending = ?", true)
	if search = strings.ToLower(strings.TrimSpace(search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(restaurant_name) LIKE ? OR LOWER(email) LIKE ?", like, like)
	}

	requests := make([]models.DemoRequest, 0)
	if err := query.Order("created_at DESC, id DESC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

func (lm *LifecycleManager) GetDemoRequest(ctx context.Context, id uint) (*models.DemoRequest, error) {
	var request models.DemoRequest
	if err := lm.db.WithContext(ctx).First(&request, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDemoRequestNotFound
		}
		return nil, err
	}
	return &request, nil
}

// ApproveDemoRequest provisions the owner identity and the restaurant, then
// marks the request approved. An empty ownerPassword is replaced by a
// generated one. A second approval reports ErrAlreadyProcessed and writes nothing.
func (lm *LifecycleManager) ApproveDemoRequest(ctx context.Context, id uint, ownerPassword string) (*ApprovalResult, error) {
	password, err := lm.ownerPassword(ownerPassword)
	if err != nil {
		return nil, err
	}

	request, claim, err := lm.claim(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			metrics.RecordDemoRequestTransition("already_processed")
		}
		return nil, err
	}

	userID, err := lm.provisionIdentity(ctx, request, claim, password)
	if err != nil {
		return nil, err
	}

	restaurant := lm.newRestaurant(userID, demoRequestInput(request), models.PlanFreeTier)
	err = lm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&restaurant).Error; err != nil {
			return fmt.Errorf("failed to create restaurant: %w", err)
		}

		result := claim.scope(tx).Updates(map[string]interface{}{
			"status":        models.DemoRequestStatusApproved,
			"is_pending":    false,
			"pending_email": nil,
			"restaurant_id": userID,
			"claim_token":   nil,
		})
		if result.Error != nil {
			return fmt.Errorf("failed to mark demo request approved: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrApprovalClaimLost
		}
		return nil
	})
	if err != nil {
		if cerr := lm.compensate(ctx, claim, userID); cerr != nil {
			utils.ErrorLogger.Printf("Demo request %d left in provisioning for resumption: %v", request.ID, cerr)
		}
		metrics.RecordDemoRequestTransition("failed")
		utils.ErrorLogger.Printf("Error approving demo request %d: %v", request.ID, err)
		return nil, err
	}

	metrics.RecordDemoRequestTransition("approved")
	utils.InfoLogger.Printf("Demo request %d approved, restaurant %s created", request.ID, restaurant.ID)
	lm.broadcast(hub.EventDemoRequestApproved, map[string]interface{}{
		"demo_request_id": request.ID,
		"restaurant":      restaurant,
	})

	return lm.finishOnboarding(restaurant, password), nil
}

// RejectDemoRequest deletes a pending request. A request that is already gone
// counts as rejected.
func (lm *LifecycleManager) RejectDemoRequest(ctx context.Context, id uint) error {
	request, err := lm.GetDemoRequest(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDemoRequestNotFound) {
			utils.InfoLogger.Printf("Demo request %d already gone, nothing to reject", id)
			return nil
		}
		return err
	}

	switch request.Status {
	case models.DemoRequestStatusApproved:
		return ErrAlreadyProcessed
	case models.DemoRequestStatusProvisioning:
		return ErrApprovalInProgress
	}

	result := lm.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.DemoRequestStatusPending).
		Delete(&models.DemoRequest{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Lost a race with an approval or another rejection.
		if _, err := lm.GetDemoRequest(ctx, id); errors.Is(err, ErrDemoRequestNotFound) {
			return nil
		}
		return ErrAlreadyProcessed
	}

	if request.ProvisionedUserID != nil {
		if err := lm.identities.DeleteIdentity(ctx, *request.ProvisionedUserID); err != nil {
			utils.ErrorLogger.Printf("Error deleting identity %s of rejected demo request %d: %v",
				*request.ProvisionedUserID, id, err)
		}
	}

	metrics.RecordDemoRequestTransition("rejected")
	utils.InfoLogger.Printf("Demo request %d rejected", id)
	lm.broadcast(hub.EventDemoRequestRejected, map[string]interface{}{"demo_request_id": id})
	return nil
}

// OnboardRestaurant creates an owner identity and its restaurant directly,
// without a demo request.
func (lm *LifecycleManager) OnboardRestaurant(ctx context.Context, in RestaurantInput, ownerPassword string) (*ApprovalResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	plan := in.Plan
	if plan == "" {
		plan = models.PlanFreeTier
	}
	if !validPlan(plan) {
		return nil, errInvalidPlan(plan)
	}

	password, err := lm.ownerPassword(ownerPassword)
	if err != nil {
		return nil, err
	}

	userID, err := lm.identities.CreateIdentity(ctx, in.Email, password, models.RoleRestaurantOwner)
	if err != nil {
		return nil, identityError(err)
	}

	restaurant := lm.newRestaurant(userID, in.DemoRequestInput, plan)
	if err := lm.db.WithContext(ctx).Create(&restaurant).Error; err != nil {
		if derr := lm.identities.DeleteIdentity(ctx, userID); derr != nil {
			utils.ErrorLogger.Printf("Error deleting orphaned identity %s: %v", userID, derr)
		}
		return nil, fmt.Errorf("failed to create restaurant: %w", err)
	}

	utils.InfoLogger.Printf("Restaurant %s onboarded for %s", restaurant.ID, restaurant.Email)
	lm.broadcast(hub.EventRestaurantCreated, restaurant)
	return lm.finishOnboarding(restaurant, password), nil
}

// ListRestaurants returns active restaurants, optionally filtered by name, email or location.
func (lm *LifecycleManager) ListRestaurants(ctx context.Context, search string) ([]models.Restaurant, error) {
	query := lm.db.WithContext(ctx).Where("is_pending = ?", false)
	if search = strings.ToLower(strings.TrimSpace(search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(restaurant_name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(location) LIKE ?", like, like, like)
	}

	restaurants := make([]models.Restaurant, 0)
	if err := query.Order("date_of_joining DESC").Find(&restaurants).Error; err != nil {
		return nil, err
	}
	return restaurants, nil
}

func (lm *LifecycleManager) GetRestaurant(ctx context.Context, id string) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := lm.db.WithContext(ctx).First(&restaurant, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRestaurantNotFound
		}
		return nil, err
	}
	return &restaurant, nil
}

// UpdateRestaurant edits descriptive fields and the plan. Rating columns are
// owned by the rating aggregator and never written here.
func (lm *LifecycleManager) UpdateRestaurant(ctx context.Context, id string, in RestaurantUpdate) (*models.Restaurant, error) {
	updates := map[string]interface{}{}
	set := func(column string, v *string) {
		if v != nil {
			updates[column] = strings.TrimSpace(*v)
		}
	}
	set("restaurant_name", in.RestaurantName)
	set("phone", in.Phone)
	set("location", in.Location)
	set("restaurant_type", in.RestaurantType)
	if in.Email != nil {
		updates["email"] = normalizeEmail(*in.Email)
	}
	if in.Plan != nil {
		if !validPlan(*in.Plan) {
			return nil, errInvalidPlan(*in.Plan)
		}
		updates["plan"] = *in.Plan
	}
	if name, ok := updates["restaurant_name"]; ok && name == "" {
		return nil, newError(ErrInvalidInput, "restaurant name cannot be empty")
	}

	if _, err := lm.GetRestaurant(ctx, id); err != nil {
		return nil, err
	}
	if len(updates) > 0 {
		if err := lm.db.WithContext(ctx).Model(&models.Restaurant{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to update restaurant: %w", err)
		}
	}

	restaurant, err := lm.GetRestaurant(ctx, id)
	if err != nil {
		return nil, err
	}
	utils.InfoLogger.Printf("Restaurant %s updated", id)
	lm.broadcast(hub.EventRestaurantUpdated, restaurant)
	return restaurant, nil
}

// DeleteRestaurant removes the restaurant, its feedback and its owner account
// in one transaction.
func (lm *LifecycleManager) DeleteRestaurant(ctx context.Context, id string) error {
	err := lm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("restaurant_id = ?", id).Delete(&models.Feedback{}).Error; err != nil {
			return fmt.Errorf("failed to delete feedback: %w", err)
		}

		result := tx.Where("id = ?", id).Delete(&models.Restaurant{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete restaurant: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrRestaurantNotFound
		}

		if err := tx.Where("restaurant_id = ? AND role = ?", id, models.RoleRestaurantOwner).
			Delete(&models.User{}).Error; err != nil {
			return fmt.Errorf("failed to delete owner account: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	utils.InfoLogger.Printf("Restaurant %s deleted", id)
	lm.broadcast(hub.EventRestaurantDeleted, map[string]interface{}{"restaurant_id": id})
	return nil
}

// approvalClaim is the right to write a provisioning demo request. It is
// lost once the lease runs out and someone else claims the row.
type approvalClaim struct {
	requestID uint
	token     string
}

func (c approvalClaim) scope(db *gorm.DB) *gorm.DB {
	return db.Model(&models.DemoRequest{}).
		Where("id = ? AND status = ? AND claim_token = ?", c.requestID, models.DemoRequestStatusProvisioning, c.token)
}

// claim moves a request to provisioning. A provisioning row whose lease ran out
// may be claimed again, which resumes an interrupted approval.
func (lm *LifecycleManager) claim(ctx context.Context, id uint) (*models.DemoRequest, approvalClaim, error) {
	now := lm.now()
	claim := approvalClaim{requestID: id, token: uuid.NewString()}
	result := lm.db.WithContext(ctx).Model(&models.DemoRequest{}).
		Where("id = ? AND (status = ? OR (status = ? AND claimed_at < ?))",
			id, models.DemoRequestStatusPending, models.DemoRequestStatusProvisioning, now.Add(-lm.claimLease)).
		Updates(map[string]interface{}{
			"status":      models.DemoRequestStatusProvisioning,
			"claimed_at":  now,
			"claim_token": claim.token,
		})
	if result.Error != nil {
		return nil, claim, result.Error
	}

	request, err := lm.GetDemoRequest(ctx, id)
	if err != nil {
		return nil, claim, err
	}
	if result.RowsAffected == 0 {
		return nil, claim, ErrAlreadyProcessed
	}
	return request, claim, nil
}

func (lm *LifecycleManager) provisionIdentity(ctx context.Context, request *models.DemoRequest, claim approvalClaim, password string) (string, error) {
	if request.ProvisionedUserID != nil {
		userID := *request.ProvisionedUserID
		err := lm.identities.ResetPassword(ctx, userID, password)
		if err == nil {
			utils.InfoLogger.Printf("Resuming approval of demo request %d with identity %s", request.ID, userID)
			return userID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			lm.releaseClaim(ctx, claim, false)
			return "", fmt.Errorf("%w: resume identity: %v", ErrExternalService, err)
		}
	}

	userID, err := lm.identities.CreateIdentity(ctx, request.Email, password, models.RoleRestaurantOwner)
	if err != nil {
		lm.releaseClaim(ctx, claim, true)
		return "", identityError(err)
	}

	result := claim.scope(lm.db.WithContext(ctx)).Update("provisioned_user_id", userID)
	if result.Error != nil {
		if cerr := lm.compensate(ctx, claim, userID); cerr != nil {
			utils.ErrorLogger.Printf("Error compensating demo request %d: %v", request.ID, cerr)
		}
		return "", fmt.Errorf("failed to record provisioned identity: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// nobody else knows this identity, so it is ours to remove
		if err := lm.identities.DeleteIdentity(ctx, userID); err != nil {
			utils.ErrorLogger.Printf("Error deleting identity %s after losing claim on demo request %d: %v",
				userID, request.ID, err)
		}
		return "", ErrApprovalClaimLost
	}
	return userID, nil
}

// compensate undoes identity creation while the claim is still held. If the
// claim was taken over the identity belongs to the new holder and is left
// alone. If the identity cannot be deleted the request keeps its
// provisioned_user_id and stays claimed until the lease expires.
func (lm *LifecycleManager) compensate(ctx context.Context, claim approvalClaim, userID string) error {
	held, err := lm.renewClaim(ctx, claim)
	if err != nil {
		return fmt.Errorf("renew claim: %w", err)
	}
	if !held {
		utils.InfoLogger.Printf("Claim on demo request %d was taken over, keeping identity %s", claim.requestID, userID)
		return nil
	}
	if err := lm.identities.DeleteIdentity(ctx, userID); err != nil {
		return fmt.Errorf("delete identity %s: %w", userID, err)
	}
	lm.releaseClaim(ctx, claim, true)
	return nil
}

// renewClaim restarts the lease, reporting whether the claim is still held.
func (lm *LifecycleManager) renewClaim(ctx context.Context, claim approvalClaim) (bool, error) {
	result := claim.scope(lm.db.WithContext(ctx)).Update("claimed_at", lm.now())
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (lm *LifecycleManager) releaseClaim(ctx context.Context, claim approvalClaim, clearIdentity bool) {
	updates := map[string]interface{}{
		"status":      models.DemoRequestStatusPending,
		"claimed_at":  nil,
		"claim_token": nil,
	}
	if clearIdentity {
		updates["provisioned_user_id"] = nil
	}
	if err := claim.scope(lm.db.WithContext(ctx)).Updates(updates).Error; err != nil {
		utils.ErrorLogger.Printf("Error releasing claim on demo request %d: %v", claim.requestID, err)
	}
}

func (lm *LifecycleManager) newRestaurant(id string, in DemoRequestInput, plan string) models.Restaurant {
	zero := 0.0
	return models.Restaurant{
		ID:             id,
		RestaurantName: strings.TrimSpace(in.RestaurantName),
		Email:          normalizeEmail(in.Email),
		Phone:          in.Phone,
		Location:       in.Location,
		RestaurantType: in.RestaurantType,
		Plan:           plan,
		OverallRating:  0,
		ReviewCount:    0,
		RatingSum:      &zero,
		DateOfJoining:  lm.now(),
		IsPending:      false,
	}
}

// finishOnboarding dispatches the QR code and credentials email.
func (lm *LifecycleManager) finishOnboarding(restaurant models.Restaurant, password string) *ApprovalResult {
	id := restaurant.ID
	qr := lm.dispatcher.Dispatch(SideChannelTask{
		Kind:         SideChannelQRCode,
		RestaurantID: id,
		Run: func(ctx context.Context) error {
			return lm.storeQRCode(ctx, id)
		},
	})

	message := CredentialsEmail(restaurant.Email, password)
	email := lm.dispatcher.Dispatch(SideChannelTask{
		Kind:         SideChannelCredentialsEmail,
		RestaurantID: id,
		Run: func(ctx context.Context) error {
			return lm.mailer.Send(ctx, message)
		},
	})

	return &ApprovalResult{
		Restaurant:    restaurant,
		OwnerPassword: password,
		QRCode:        qr,
		Email:         email,
	}
}

func (lm *LifecycleManager) storeQRCode(ctx context.Context, restaurantID string) error {
	png, err := lm.qr.Encode(FeedbackURL(lm.feedbackFormURL, restaurantID))
	if err != nil {
		return backoff.Permanent(err)
	}

	url, err := lm.images.Upload(ctx, "qrcodes/"+restaurantID+".png", png, "image/png")
	if err != nil {
		return fmt.Errorf("%w: qr upload: %v", ErrExternalService, err)
	}

	result := lm.db.WithContext(ctx).Model(&models.Restaurant{}).
		Where("id = ?", restaurantID).
		Update("qr_code_url", url)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return backoff.Permanent(ErrRestaurantNotFound)
	}
	return nil
}

func (lm *LifecycleManager) ownerPassword(supplied string) (string, error) {
	if supplied != "" {
		return supplied, nil
	}
	return GeneratePassword()
}

func (lm *LifecycleManager) broadcast(event string, data interface{}) {
	if lm.hub != nil {
		lm.hub.Broadcast(event, data)
	}
}

func identityError(err error) error {
	if errors.Is(err, ErrAccountExists) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: create identity: %v", ErrExternalService, err)
}

func demoRequestInput(request *models.DemoRequest) DemoRequestInput {
	return DemoRequestInput{
		RestaurantName: request.RestaurantName,
		Email:          request.Email,
		Phone:          request.Phone,
		Location:       request.Location,
		RestaurantType: request.RestaurantType,
	}
}

func validPlan(plan string) bool {
	return plan == models.PlanFreeTier || plan == models.PlanSubscribed
}

func errInvalidPlan(plan string) error {
	return newError(ErrInvalidInput, fmt.Sprintf("unknown plan %q", plan))
}
