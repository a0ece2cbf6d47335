package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/arnavbhatt/rollcall/internal/chat"
	"github.com/arnavbhatt/rollcall/internal/config"
	"github.com/arnavbhatt/rollcall/internal/gormw"
	"github.com/arnavbhatt/rollcall/internal/handlers/api"
	"github.com/arnavbhatt/rollcall/internal/handlers/events"
	"github.com/arnavbhatt/rollcall/internal/handlers/middleware"
	"github.com/arnavbhatt/rollcall/internal/lifecycle"
	"github.com/arnavbhatt/rollcall/internal/mailer"
	"github.com/arnavbhatt/rollcall/internal/registry"
	"github.com/arnavbhatt/rollcall/internal/storage"
	"github.com/arnavbhatt/rollcall/internal/token"
)

var (
	configPath = flag.String("c", "", "Path to configuration file")
)

func main() {
	_ = godotenv.Load()

	flag.Parse()
	path := *configPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		log.Fatal().Msg("Config path must be provided via CONFIG_PATH env var or -c flag")
	}

	// Load configuration
	cfg := config.LoadConfig(path)

	// cron schedule
	scheduler, _ := gocron.NewScheduler()
	scheduler.Start()

	// Initialize database
	db, err := gormw.Open(&cfg.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	tokens := token.NewService(cfg.Token.ExpiryDays)
	reg := registry.New(db, tokens)

	var sender mailer.Sender = mailer.NoMail{}
	if cfg.Mail.Enabled {
		sender = mailer.NewSMTP(cfg.Mail.SMTP)
	}

	var chatClient chat.Client = chat.LogOnly{}
	if cfg.Chat.WebhookURL != "" {
		chatClient = chat.NewWebhook(cfg.Chat.WebhookURL, cfg.APIKey)
	}

	lc := lifecycle.New(cfg.Verification, reg, chatClient)
	lifecycle.RegisterSweeper(scheduler, lc)

	attempts := storage.NewFailedAttemptStorage(cfg.Token.FailureLimit, 15*time.Minute)

	// Set up Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.Default()
	router.Use(middleware.RequestLogger())

	apiKey := middleware.NewAPIKey(cfg.APIKey)
	guarded := router.Group("/", apiKey.Middleware())

	api.New(reg, sender, attempts, cfg.Token.ExpiryDays).RegisterHandlers(guarded)
	events.New(lc).RegisterHandlers(guarded)

	// Start server
	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		// Good practice to set timeouts to avoid Slowloris attacks.
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      router,
	}

	// Run our server in a goroutine so that it doesn't block.
	go func() {
		log.Printf("start server at %q", srv.Addr)
		if err := srv.ListenAndServe(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	c := make(chan os.Signal, 1)
	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// SIGKILL, SIGQUIT or SIGTERM (Ctrl+/) will not be caught.
	signal.Notify(c, os.Interrupt)

	// Block until we receive our signal.
	<-c

	// Create a deadline to wait for.
	wait := time.Second * 15
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	// Doesn't block if no connections, but will otherwise wait
	// until the timeout deadline.
	srv.Shutdown(ctx)

	log.Info().Msg("shutting down")
	os.Exit(0)
}
