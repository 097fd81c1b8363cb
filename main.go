package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jatri-ovijog-backend/auth"
	"jatri-ovijog-backend/config"
	"jatri-ovijog-backend/email"
	"jatri-ovijog-backend/groq"
	"jatri-ovijog-backend/handlers"
	"jatri-ovijog-backend/metrics"
	"jatri-ovijog-backend/middleware"
	"jatri-ovijog-backend/pipeline"
	"jatri-ovijog-backend/supabase"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Load configuration
	cfg := config.Load()

	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	// Validate required configuration
	if cfg.SupabaseURL == "" {
		log.Fatal("SUPABASE_URL environment variable is required")
	}
	if cfg.SupabaseAnonKey == "" {
		log.Fatal("SUPABASE_ANON_KEY environment variable is required")
	}
	if cfg.GroqAPIKey == "" {
		log.Fatal("GROQ_API_KEY environment variable is required")
	}

	metrics.Register()

	// Initialize the datastore client
	store := supabase.New(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceRoleKey, cfg.SupabaseTimeout)

	// Initialize the LLM client
	llmClient := groq.NewClient(cfg.GroqAPIKey, cfg.GroqModel)
	log.Infof("Using LLM provider: %s (model %s)", llmClient.SourceName(), cfg.GroqModel)

	tokens := auth.NewTokenManager(cfg.JWTSecret)

	// Initialize the outbound mail backend
	sender, err := setupMailer(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize mail sender: %v", err)
	}
	dispatcher := pipeline.NewDispatcher(sender, cfg.EmailQueueSize, cfg.EmailWorkers)

	// Initialize the complaint pipeline
	svc := pipeline.NewService(store, llmClient, tokens, dispatcher, cfg.LLMMaxConcurrency, cfg.LLMTimeout)

	// Setup Gin router
	router := setupRouter(svc, cfg)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start HTTP server in a goroutine
	go func() {
		log.Infof("Starting HTTP server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Drain queued resolution emails before exiting
	dispatcher.Close()

	log.Info("Server exited")
}

func setupMailer(cfg *config.Config) (email.Sender, error) {
	switch cfg.MailProvider {
	case "sendgrid":
		return email.NewSendGridSender(cfg.SendGridAPIKey, "Jatri Ovijog", cfg.MailFrom), nil
	default:
		return email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom), nil
	}
}

func setupRouter(svc *pipeline.Service, cfg *config.Config) *gin.Engine {
	router := gin.Default()

	// Set trusted proxies from config
	router.SetTrustedProxies(cfg.TrustedProxies)

	// Apply global middleware
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestID())

	h := handlers.NewHandlers(svc)

	// Root level health check (not under /api)
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", h.HealthCheck)

		complaints := api.Group("/complaints")
		{
			complaints.GET("", h.GetComplaints)
			complaints.GET("/summary", h.GetComplaintsSummary)
			complaints.GET("/history/:busNumber", h.GetHistoryByBus)
			complaints.POST("", h.CreateComplaint)
			complaints.PATCH("/:id", h.UpdateComplaint)
			complaints.PATCH("/:id/status", h.UpdateComplaintStatus)
			complaints.POST("/:id/resolve", h.ResolveComplaint)
			complaints.DELETE("/:id", h.DeleteComplaint)
			complaints.POST("/parse-chat", h.ParseChat)
		}

		emergencies := api.Group("/emergencies")
		{
			emergencies.GET("", h.GetEmergencies)
			emergencies.GET("/summary", h.GetEmergenciesSummary)
			emergencies.POST("", h.CreateEmergency)
		}
	}

	return router
}
