package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/restaurant-feedback/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type lifecycleFixture struct {
	db         *gorm.DB
	auth       *AuthService
	dispatcher *SideChannelDispatcher
	images     *fakeImageStore
	mailer     *fakeMailer
	lm         *LifecycleManager
}

func newLifecycleFixture(t *testing.T, identities IdentityProvider) *lifecycleFixture {
	t.Helper()
	db := setupTestDB(t)
	f := &lifecycleFixture{
		db:         db,
		auth:       NewAuthService(db, []byte("test-secret")),
		dispatcher: NewSideChannelDispatcher(db, nil, fastRetryPolicy(2)),
		images:     newFakeImageStore(),
		mailer:     &fakeMailer{},
	}
	if identities == nil {
		identities = f.auth
	}
	f.lm = NewLifecycleManager(db, LifecycleOptions{
		Identities:      identities,
		Dispatcher:      f.dispatcher,
		Images:          f.images,
		QR:              NewPNGQREncoder(),
		Mailer:          f.mailer,
		FeedbackFormURL: "https://feedback.test",
		ClaimLease:      time.Minute,
	})
	t.Cleanup(f.dispatcher.Wait)
	return f
}

func (f *lifecycleFixture) submit(t *testing.T, email string) *models.DemoRequest {
	t.Helper()
	request, err := f.lm.SubmitDemoRequest(context.Background(), DemoRequestInput{
		RestaurantName: "Sate Pak Kumis",
		Email:          email,
		Phone:          "0812345678",
		Location:       "Jakarta",
		RestaurantType: "Indonesian",
	})
	require.NoError(t, err)
	return request
}

func (f *lifecycleFixture) reload(t *testing.T, id uint) models.DemoRequest {
	t.Helper()
	var request models.DemoRequest
	require.NoError(t, f.db.First(&request, id).Error)
	return request
}

func (f *lifecycleFixture) count(model interface{}) int64 {
	var n int64
	f.db.Model(model).Count(&n)
	return n
}

func TestSubmitDemoRequest_DuplicatePendingEmail(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.submit(t, "a@b.com")

	_, err := f.lm.SubmitDemoRequest(context.Background(), DemoRequestInput{RestaurantName: "Other", Email: " A@B.com "})
	assert.ErrorIs(t, err, ErrDuplicateDemoRequest)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(1), f.count(&models.DemoRequest{}))
}

func TestSubmitDemoRequest_RequiresNameAndEmail(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	_, err := f.lm.SubmitDemoRequest(context.Background(), DemoRequestInput{Email: "a@b.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, f.count(&models.DemoRequest{}))
}

func TestSubmitDemoRequest_AcceptedAfterApproval(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	again := f.submit(t, "a@b.com")
	assert.NotEqual(t, request.ID, again.ID)
	assert.True(t, again.IsPending)
}

func TestSubmitDemoRequest_AcceptedAfterRejection(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	require.NoError(t, f.lm.RejectDemoRequest(context.Background(), request.ID))
	f.submit(t, "a@b.com")
}

func TestApproveDemoRequest_CreatesRestaurantWithDefaults(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "owner@warung.id")

	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	restaurant := result.Restaurant
	assert.Equal(t, "Sate Pak Kumis", restaurant.RestaurantName)
	assert.Equal(t, "owner@warung.id", restaurant.Email)
	assert.Equal(t, "Jakarta", restaurant.Location)
	assert.Equal(t, models.PlanFreeTier, restaurant.Plan)
	assert.Zero(t, restaurant.OverallRating)
	assert.Zero(t, restaurant.ReviewCount)
	assert.False(t, restaurant.IsPending)
	assert.WithinDuration(t, time.Now(), restaurant.DateOfJoining, time.Minute)
	assert.Equal(t, "secret123", result.OwnerPassword)

	// The restaurant is keyed by the owner's identity.
	user, err := f.auth.FindUser(context.Background(), restaurant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleRestaurantOwner, user.Role)
	require.NotNil(t, user.RestaurantID)
	assert.Equal(t, restaurant.ID, *user.RestaurantID)

	stored := f.reload(t, request.ID)
	assert.Equal(t, models.DemoRequestStatusApproved, stored.Status)
	assert.False(t, stored.IsPending)
	assert.Nil(t, stored.PendingEmail)
	require.NotNil(t, stored.RestaurantID)
	assert.Equal(t, restaurant.ID, *stored.RestaurantID)

	qr := <-result.QRCode
	email := <-result.Email
	assert.NoError(t, qr.Err)
	assert.NoError(t, email.Err)
	f.dispatcher.Wait()

	var reloaded models.Restaurant
	require.NoError(t, f.db.First(&reloaded, "id = ?", restaurant.ID).Error)
	assert.Equal(t, "https://cdn.test/qrcodes/"+restaurant.ID+".png", reloaded.QRCodeURL)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "owner@warung.id", sent[0].To)
	assert.Equal(t, "Your Restaurant Login Credentials", sent[0].Subject)
	assert.Contains(t, sent[0].Text, "secret123")

	assert.Equal(t, int64(2), f.count(&models.Notification{}))
}

func TestApproveDemoRequest_GeneratesPasswordWhenEmpty(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "")
	require.NoError(t, err)
	assert.Len(t, result.OwnerPassword, 12)

	session, err := f.auth.SignIn(context.Background(), "a@b.com", result.OwnerPassword)
	require.NoError(t, err)
	assert.Equal(t, result.Restaurant.ID, session.UserID)
}

func TestApproveDemoRequest_SecondApprovalIsNoop(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	_, err = f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, int64(1), f.count(&models.Restaurant{}))
	assert.Equal(t, int64(1), f.count(&models.User{}))
}

func TestApproveDemoRequest_ConcurrentApprovalsCreateOneRestaurant(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyProcessed)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), f.count(&models.Restaurant{}))
}

func TestApproveDemoRequest_NotFound(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	_, err := f.lm.ApproveDemoRequest(context.Background(), 999, "secret123")
	assert.ErrorIs(t, err, ErrDemoRequestNotFound)
}

func TestApproveDemoRequest_AccountExistsReleasesClaim(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	_, err := f.auth.CreateIdentity(context.Background(), "a@b.com", "taken123", models.RoleRestaurantOwner)
	require.NoError(t, err)
	request := f.submit(t, "a@b.com")

	_, err = f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	assert.ErrorIs(t, err, ErrAccountExists)

	stored := f.reload(t, request.ID)
	assert.Equal(t, models.DemoRequestStatusPending, stored.Status)
	assert.True(t, stored.IsPending)
	assert.Nil(t, stored.ClaimedAt)
	assert.Nil(t, stored.ProvisionedUserID)
	assert.Zero(t, f.count(&models.Restaurant{}))
}

func TestApproveDemoRequest_CompensatesWhenRestaurantWriteFails(t *testing.T) {
	identities := &fakeIdentities{id: "fixed-id"}
	f := newLifecycleFixture(t, identities)
	seedRestaurant(t, f.db, "fixed-id", 0, 0)
	request := f.submit(t, "a@b.com")

	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.Error(t, err)

	assert.Equal(t, []string{"fixed-id"}, identities.deleted)
	stored := f.reload(t, request.ID)
	assert.Equal(t, models.DemoRequestStatusPending, stored.Status)
	assert.Nil(t, stored.ProvisionedUserID)
	assert.True(t, stored.IsPending)
	assert.Empty(t, f.mailer.Sent())
}

func TestApproveDemoRequest_ResumesAfterFailedCompensation(t *testing.T) {
	identities := &fakeIdentities{id: "fixed-id", deleteErr: errors.New("auth service down")}
	f := newLifecycleFixture(t, identities)
	blocker := seedRestaurant(t, f.db, "fixed-id", 0, 0)
	request := f.submit(t, "a@b.com")

	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.Error(t, err)

	stored := f.reload(t, request.ID)
	assert.Equal(t, models.DemoRequestStatusProvisioning, stored.Status)
	require.NotNil(t, stored.ProvisionedUserID)
	assert.Equal(t, "fixed-id", *stored.ProvisionedUserID)

	// Still inside the lease: nobody else may pick it up.
	_, err = f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	assert.ErrorIs(t, err, ErrAlreadyProcessed)

	require.NoError(t, f.db.Delete(&blocker).Error)
	f.lm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret456")
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", result.Restaurant.ID)
	assert.Equal(t, 1, identities.created)
	assert.Equal(t, []string{"fixed-id"}, identities.resets)
	assert.Equal(t, models.DemoRequestStatusApproved, f.reload(t, request.ID).Status)
}

func TestApproveDemoRequest_EmailFailureKeepsRestaurant(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.mailer.err = errors.New("smtp unavailable")
	request := f.submit(t, "a@b.com")

	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	email := <-result.Email
	assert.Error(t, email.Err)
	assert.Equal(t, "failed", email.Status())
	assert.Equal(t, 2, email.Attempts)
	f.dispatcher.Wait()

	assert.Equal(t, int64(1), f.count(&models.Restaurant{}))
	assert.Equal(t, models.DemoRequestStatusApproved, f.reload(t, request.ID).Status)

	var failed int64
	f.db.Model(&models.Notification{}).Where("kind = ?", models.NotificationEmailFailed).Count(&failed)
	assert.Equal(t, int64(1), failed)
}

func TestApproveDemoRequest_QRUploadFailureIsReportedSeparately(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.images.err = errors.New("bucket unavailable")
	request := f.submit(t, "a@b.com")

	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	qr := <-result.QRCode
	assert.ErrorIs(t, qr.Err, ErrExternalService)
	assert.NoError(t, (<-result.Email).Err)
	f.dispatcher.Wait()

	var restaurant models.Restaurant
	require.NoError(t, f.db.First(&restaurant, "id = ?", result.Restaurant.ID).Error)
	assert.Empty(t, restaurant.QRCodeURL)
}

func TestRejectDemoRequest(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	require.NoError(t, f.lm.RejectDemoRequest(context.Background(), request.ID))
	assert.Zero(t, f.count(&models.DemoRequest{}))

	// Already gone is still a successful rejection.
	assert.NoError(t, f.lm.RejectDemoRequest(context.Background(), request.ID))
}

func TestRejectDemoRequest_ApprovedCannotBeRejected(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")
	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	err = f.lm.RejectDemoRequest(context.Background(), request.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.Equal(t, int64(1), f.count(&models.DemoRequest{}))
}

func TestListPendingDemoRequests_Search(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	f.submit(t, "sate@b.com")
	other, err := f.lm.SubmitDemoRequest(context.Background(), DemoRequestInput{RestaurantName: "Bakso Solo", Email: "bakso@b.com"})
	require.NoError(t, err)
	approved := f.submit(t, "done@b.com")
	_, err = f.lm.ApproveDemoRequest(context.Background(), approved.ID, "secret123")
	require.NoError(t, err)

	all, err := f.lm.ListPendingDemoRequests(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	found, err := f.lm.ListPendingDemoRequests(context.Background(), "BAKSO")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, other.ID, found[0].ID)
}

func TestOnboardRestaurant(t *testing.T) {
	f := newLifecycleFixture(t, nil)

	result, err := f.lm.OnboardRestaurant(context.Background(), RestaurantInput{
		DemoRequestInput: DemoRequestInput{RestaurantName: "Gudeg Yu Djum", Email: "gudeg@b.com", Location: "Yogyakarta"},
		Plan:             models.PlanSubscribed,
	}, "secret123")
	require.NoError(t, err)
	assert.Equal(t, models.PlanSubscribed, result.Restaurant.Plan)
	assert.False(t, result.Restaurant.IsPending)

	user, err := f.auth.FindUser(context.Background(), result.Restaurant.ID)
	require.NoError(t, err)
	assert.Equal(t, "gudeg@b.com", user.Email)

	_, err = f.lm.OnboardRestaurant(context.Background(), RestaurantInput{
		DemoRequestInput: DemoRequestInput{RestaurantName: "Again", Email: "gudeg@b.com"},
	}, "secret123")
	assert.ErrorIs(t, err, ErrAccountExists)

	_, err = f.lm.OnboardRestaurant(context.Background(), RestaurantInput{
		DemoRequestInput: DemoRequestInput{RestaurantName: "Bad plan", Email: "plan@b.com"},
		Plan:             "enterprise",
	}, "secret123")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpdateRestaurant_LeavesRatingAlone(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	seedRestaurant(t, f.db, "resto-1", 4.2, 10)

	name, plan := "Renamed", models.PlanSubscribed
	updated, err := f.lm.UpdateRestaurant(context.Background(), "resto-1", RestaurantUpdate{RestaurantName: &name, Plan: &plan})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.RestaurantName)
	assert.Equal(t, models.PlanSubscribed, updated.Plan)
	assert.Equal(t, 4.2, updated.OverallRating)
	assert.Equal(t, 10, updated.ReviewCount)

	bad := "gold"
	_, err = f.lm.UpdateRestaurant(context.Background(), "resto-1", RestaurantUpdate{Plan: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.lm.UpdateRestaurant(context.Background(), "missing", RestaurantUpdate{RestaurantName: &name})
	assert.ErrorIs(t, err, ErrRestaurantNotFound)
}

func TestDeleteRestaurant_RemovesFeedbackAndOwner(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")
	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)
	f.dispatcher.Wait()
	id := result.Restaurant.ID

	ra := NewRatingAggregator(f.db, fastRetryPolicy(3))
	_, err = ra.SubmitFeedback(context.Background(), id, ratings(4, 4, 4, 4))
	require.NoError(t, err)

	require.NoError(t, f.lm.DeleteRestaurant(context.Background(), id))
	assert.Zero(t, f.count(&models.Restaurant{}))
	assert.Zero(t, f.count(&models.Feedback{}))
	assert.Zero(t, f.count(&models.User{}))

	assert.ErrorIs(t, f.lm.DeleteRestaurant(context.Background(), id), ErrRestaurantNotFound)
}

func TestApproveDemoRequest_StoresHashedPassword(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")
	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", result.Restaurant.ID).Error)
	assert.NotEqual(t, "secret123", user.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("secret123")))
}

type recordingQREncoder struct {
	mu       sync.Mutex
	contents []string
}

func (e *recordingQREncoder) Encode(content string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.contents = append(e.contents, content)
	return []byte("png"), nil
}

func TestApproveDemoRequest_QRCodePointsAtFeedbackForm(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	encoder := &recordingQREncoder{}
	f.lm.qr = encoder
	f.lm.feedbackFormURL = "https://app.feedback.test"
	request := f.submit(t, "a@b.com")

	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.NoError(t, err)
	require.True(t, (<-result.QRCode).Succeeded())

	encoder.mu.Lock()
	defer encoder.mu.Unlock()
	assert.Equal(t, []string{"https://app.feedback.test/feedback/" + result.Restaurant.ID}, encoder.contents)
}

// onIdentityRecorded runs fn once, right after an approval commits the
// provisioned_user_id of a demo request and before it creates the restaurant.
func onIdentityRecorded(t *testing.T, db *gorm.DB, fn func()) {
	t.Helper()
	fired := false
	require.NoError(t, db.Callback().Update().After("gorm:commit_or_rollback_transaction").
		Register("test:identity_recorded", func(tx *gorm.DB) {
			if fired || tx.Error != nil || tx.Statement.Table != "demo_requests" {
				return
			}
			dest, ok := tx.Statement.Dest.(map[string]interface{})
			if !ok {
				return
			}
			if _, ok := dest["provisioned_user_id"]; !ok {
				return
			}
			fired = true
			fn()
		}))
	t.Cleanup(func() {
		db.Callback().Update().Remove("test:identity_recorded")
	})
}

func TestApproveDemoRequest_StalledApprovalLosesClaimToSweep(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	released := 0
	onIdentityRecorded(t, f.db, func() {
		f.lm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		var err error
		released, err = f.lm.ReleaseStaleClaims(context.Background())
		require.NoError(t, err)
	})

	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	assert.ErrorIs(t, err, ErrApprovalClaimLost)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, released)

	stored := f.reload(t, request.ID)
	assert.Equal(t, models.DemoRequestStatusPending, stored.Status)
	assert.True(t, stored.IsPending)
	assert.Nil(t, stored.ProvisionedUserID)
	assert.Nil(t, stored.ClaimToken)
	assert.Zero(t, f.count(&models.Restaurant{}))
	assert.Zero(t, f.count(&models.User{}))

	// the request can be approved again from scratch
	result, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret456")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.count(&models.Restaurant{}))
	assert.Equal(t, int64(1), f.count(&models.User{}))
	assert.Equal(t, models.DemoRequestStatusApproved, f.reload(t, request.ID).Status)
	assert.NotEmpty(t, result.Restaurant.ID)
}

func TestApproveDemoRequest_StalledApprovalKeepsIdentityOfNewHolder(t *testing.T) {
	f := newLifecycleFixture(t, nil)
	request := f.submit(t, "a@b.com")

	var resumed *ApprovalResult
	onIdentityRecorded(t, f.db, func() {
		f.lm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		var err error
		resumed, err = f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret456")
		require.NoError(t, err)
	})

	_, err := f.lm.ApproveDemoRequest(context.Background(), request.ID, "secret123")
	require.Error(t, err)
	require.NotNil(t, resumed)

	stored := f.reload(t, request.ID)
	assert.Equal(t, models.DemoRequestStatusApproved, stored.Status)
	require.NotNil(t, stored.RestaurantID)
	assert.Equal(t, resumed.Restaurant.ID, *stored.RestaurantID)
	assert.Equal(t, int64(1), f.count(&models.Restaurant{}))

	var owner models.User
	require.NoError(t, f.db.First(&owner, "id = ?", resumed.Restaurant.ID).Error)
	assert.Equal(t, "a@b.com", owner.Email)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(owner.Password), []byte("secret456")))
}
