package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/config"
	"github.com/yeremiapane/restaurant-feedback/controllers"
	"github.com/yeremiapane/restaurant-feedback/hub"
	"github.com/yeremiapane/restaurant-feedback/metrics"
	"github.com/yeremiapane/restaurant-feedback/middlewares"
	"github.com/yeremiapane/restaurant-feedback/models"
	"github.com/yeremiapane/restaurant-feedback/services"
	"gorm.io/gorm"
)

// Deps are the wired services the HTTP layer needs.
type Deps struct {
	DB        *gorm.DB
	Config    *config.Config
	Auth      *services.AuthService
	Ratings   *services.RatingAggregator
	Lifecycle *services.LifecycleManager
	// Mailer backs the /send-email relay endpoint.
	Mailer services.Mailer
	Hub    *hub.Hub
}

var allowedUploadExts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}

func SetupRouter(deps Deps) *gin.Engine {
	cfg := deps.Config

	r := gin.New()
	r.Use(gin.Recovery())

	// Only images are served from uploads.
	r.Use(func(c *gin.Context) {
		path := strings.ToLower(c.Request.URL.Path)
		if strings.HasPrefix(path, "/uploads/") && !hasAllowedExt(path) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	})

	r.Use(middlewares.SecurityHeaders(cfg.PublicBaseURL))
	r.Use(middlewares.CORSMiddlewares(cfg.CORSOrigin))
	r.Use(middlewares.LoggerMiddleware())
	// 50 requests per second per IP
	r.Use(middlewares.NewRateLimiter(50, 1).RateLimit())

	r.Static("/uploads", cfg.Upload.Dir)

	userCtrl := controllers.NewUserController(deps.Auth)
	feedbackCtrl := controllers.NewFeedbackController(deps.Ratings)
	demoCtrl := controllers.NewDemoRequestController(deps.Lifecycle, cfg.SideChannelWait)
	restaurantCtrl := controllers.NewRestaurantController(deps.Lifecycle, cfg.SideChannelWait)
	adminCtrl := controllers.NewAdminController(deps.DB)
	notificationCtrl := controllers.NewNotificationController(deps.DB)
	emailCtrl := controllers.NewEmailController(deps.Mailer, cfg.MailRelayToken)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	strict := middlewares.NewStrictRateLimiter()
	r.POST("/login", strict, userCtrl.Login)
	r.POST("/demo-requests", strict, demoCtrl.SubmitDemoRequest)

	feedbackLimiter := middlewares.NewIPRateLimiter(2*time.Second, 30).Middleware()
	r.POST("/feedback/:restaurant_id", feedbackLimiter, feedbackCtrl.SubmitFeedback)
	r.GET("/restaurants/:restaurant_id/summary", feedbackCtrl.GetRatingSummary)

	relayLimiter := middlewares.NewIPRateLimiter(2*time.Second, 10).Middleware()
	r.POST("/send-email", relayLimiter, emailCtrl.SendEmail)

	ws := r.Group("/ws")
	ws.Use(middlewares.WebSocketAuthMiddleware(deps.Auth))
	{
		ws.GET("", controllers.WSHandler(deps.Hub))
	}

	// ----------------------------------------------------------------
	//                      ADMIN ROUTES
	// ----------------------------------------------------------------
	admin := r.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(deps.Auth), middlewares.RequireRole(models.RoleAdmin))
	{
		admin.GET("/profile", userCtrl.GetProfile)
		admin.POST("/logout", userCtrl.Logout)

		admin.GET("/demo-requests", demoCtrl.GetPendingDemoRequests)
		admin.POST("/demo-requests/:id/approve", demoCtrl.ApproveDemoRequest)
		admin.DELETE("/demo-requests/:id", demoCtrl.RejectDemoRequest)

		admin.GET("/restaurants", restaurantCtrl.GetAllRestaurants)
		admin.POST("/restaurants", restaurantCtrl.CreateRestaurant)
		admin.GET("/restaurants/:restaurant_id", restaurantCtrl.GetRestaurantByID)
		admin.PATCH("/restaurants/:restaurant_id", restaurantCtrl.UpdateRestaurant)
		admin.DELETE("/restaurants/:restaurant_id", restaurantCtrl.DeleteRestaurant)
		admin.GET("/restaurants/:restaurant_id/feedback", feedbackCtrl.GetAllFeedback)
		admin.GET("/restaurants/:restaurant_id/feedback/recent", feedbackCtrl.GetRecentFeedback)

		admin.GET("/dashboard/stats", adminCtrl.GetDashboardStats)

		admin.GET("/notifications", notificationCtrl.GetAllNotifications)
		admin.GET("/notifications/:notif_id", notificationCtrl.GetNotificationByID)
		admin.DELETE("/notifications/:notif_id", notificationCtrl.DeleteNotification)
	}

	// ----------------------------------------------------------------
	//                      OWNER ROUTES
	// ----------------------------------------------------------------
	owner := r.Group("/owner")
	owner.Use(middlewares.AuthMiddleware(deps.Auth), middlewares.RequireRole(models.RoleRestaurantOwner))
	{
		owner.GET("/profile", userCtrl.GetProfile)
		owner.POST("/logout", userCtrl.Logout)
		owner.GET("/restaurant", restaurantCtrl.GetOwnerRestaurant)
		owner.GET("/feedback", feedbackCtrl.GetOwnerFeedback)
	}

	return r
}

func hasAllowedExt(path string) bool {
	for _, ext := range allowedUploadExts {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}
