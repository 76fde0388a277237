package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/pixmoji/backend/docs"
	"github.com/pixmoji/backend/internal/config"
	"github.com/pixmoji/backend/internal/database"
	"github.com/pixmoji/backend/internal/handlers"
	"github.com/pixmoji/backend/internal/imagegen"
	"github.com/pixmoji/backend/internal/mailer"
	mW "github.com/pixmoji/backend/internal/middleware"
	"github.com/pixmoji/backend/internal/services"
)

// @title Pixmoji Backend API
// @version 1.0
// @description API for AI emoji generation with token-metered usage
// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.SetDefault("jwt.expiry_hours", 72)

	viper.BindEnv("stripe.secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("stripe.webhook_secret", "STRIPE_WEBHOOK_SECRET")
	viper.BindEnv("app.base_url", "APP_BASE_URL")
	viper.SetDefault("app.base_url", "http://localhost:8080")

	viper.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	viper.BindEnv("gemini.model", "GEMINI_MODEL")
	viper.BindEnv("email.api_key", "EMAIL_API_KEY")
	viper.BindEnv("email.from", "EMAIL_FROM")
	viper.BindEnv("email.endpoint", "EMAIL_ENDPOINT")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "Pixmoji Backend API"
	docs.SwaggerInfo.Description = "API for AI emoji generation with token-metered usage"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokenCfg := config.LoadTokenConfig()
	genCfg := config.LoadGenerationConfig()
	authCfg := config.LoadAuthConfig()

	generator := imagegen.NewGeminiClient(
		viper.GetString("gemini.api_key"),
		viper.GetString("gemini.model"),
		"",
		genCfg.CallTimeout,
	)
	if !generator.Configured() {
		log.Println("Warning: GEMINI_API_KEY not set, emoji generation will fail")
	}

	var sender mailer.Sender
	httpSender := mailer.NewHTTPSender(
		viper.GetString("email.api_key"),
		viper.GetString("email.from"),
		viper.GetString("email.endpoint"),
	)
	if httpSender.Configured() {
		sender = httpSender
	} else {
		log.Println("Warning: email sender not configured, login codes will be logged")
	}

	ledgerService := services.NewLedgerService(db)
	generationService := services.NewGenerationService(db, ledgerService, generator, genCfg)
	paymentService := services.NewPaymentService(ledgerService, tokenCfg)
	authService := services.NewAuthService(ledgerService, redisClient, sender, authCfg)
	voiceService := services.NewVoiceService()
	defer voiceService.Close()

	emojiHandler := handlers.NewEmojiHandler(generationService, ledgerService, genCfg)

	// Initialize auth middleware with Redis
	mW.InitAuthMiddleware(redisClient)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// Static file server for generated emojis
	r.Handle("/static/emojis/*", http.StripPrefix("/static/emojis/",
		mW.StaticFileServer(genCfg.EmojiDir)))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Pixmoji backend is running"})
		})

		r.Post("/generate-emoji", emojiHandler.GenerateEmoji)
		r.Get("/my-emojis/{email}", emojiHandler.MyEmojis)
		r.Get("/user-tokens/{email}", emojiHandler.UserTokens)
		r.Get("/transactions/{email}", emojiHandler.Transactions)

		r.Post("/purchase-tokens", paymentService.PurchaseTokens)
		r.Post("/stripe-webhook", paymentService.StripeWebhook)

		r.Post("/send-code", authService.SendCode)
		r.Post("/verify-code", authService.VerifyCode)
		r.Post("/logout", authService.Logout)

		r.Post("/transcribe-description", voiceService.TranscribeDescription)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)
			r.Get("/me", authService.Me)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
