package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/restaurant-feedback/config"
	"github.com/yeremiapane/restaurant-feedback/database"
	"github.com/yeremiapane/restaurant-feedback/hub"
	"github.com/yeremiapane/restaurant-feedback/router"
	"github.com/yeremiapane/restaurant-feedback/services"
	"github.com/yeremiapane/restaurant-feedback/utils"
)

func main() {
	utils.InitLogger()
	cfg := config.Load()
	utils.ConfigureLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.MailRelayToken == "" {
		utils.ErrorLogger.Println("MAIL_RELAY_TOKEN not set: /send-email is disabled and credentials emails will fail")
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to AutoMigrate: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authService := services.NewAuthService(db, cfg.JWTSecret)
	if err := database.SeedAdmin(ctx, authService, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		utils.ErrorLogger.Fatalf("Failed to seed admin: %v", err)
	}

	images, err := services.NewImageStore(ctx, cfg.Upload)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to set up image store: %v", err)
	}

	eventHub := hub.Default()

	txPolicy := services.DefaultTransactionRetryPolicy()
	txPolicy.MaxAttempts = cfg.RatingMaxRetries
	ratings := services.NewRatingAggregator(db, txPolicy)

	sidePolicy := services.DefaultSideChannelRetryPolicy()
	sidePolicy.MaxAttempts = cfg.SideChannelMaxRetries
	dispatcher := services.NewSideChannelDispatcher(db, eventHub, sidePolicy)

	lifecycle := services.NewLifecycleManager(db, services.LifecycleOptions{
		Identities:      authService,
		Dispatcher:      dispatcher,
		Images:          images,
		QR:              services.NewPNGQREncoder(),
		Mailer:          services.NewRelayMailer(cfg.MailRelayURL, cfg.MailRelayToken),
		Hub:             eventHub,
		FeedbackFormURL: cfg.FeedbackFormURL,
		ClaimLease:      cfg.ApprovalClaimLease,
	})

	claimMonitor := services.NewClaimMonitor(lifecycle, cfg.ClaimMonitorInterval)
	claimMonitor.Start()

	r := router.SetupRouter(router.Deps{
		DB:        db,
		Config:    cfg,
		Auth:      authService,
		Ratings:   ratings,
		Lifecycle: lifecycle,
		Mailer:    services.NewSMTPMailer(cfg.SMTP),
		Hub:       eventHub,
	})

	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		utils.ErrorLogger.Printf("Error setting trusted proxies: %v", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	<-ctx.Done()
	utils.InfoLogger.Println("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.ErrorLogger.Printf("Error during shutdown: %v", err)
	}

	claimMonitor.Stop()

	// let queued QR uploads and credential emails finish
	dispatcher.Wait()
	utils.InfoLogger.Printf("Side channels drained: %+v", dispatcher.GetMetrics())
}
