package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talkdub/talkdub/internal/config"
	"github.com/talkdub/talkdub/internal/database"
	"github.com/talkdub/talkdub/internal/delivery"
	"github.com/talkdub/talkdub/internal/janitor"
	"github.com/talkdub/talkdub/internal/jobstore"
	"github.com/talkdub/talkdub/internal/models"
	"github.com/talkdub/talkdub/internal/notify"
	"github.com/talkdub/talkdub/internal/orchestrator"
	"github.com/talkdub/talkdub/internal/phase"
	"github.com/talkdub/talkdub/internal/phase/phases"
	"github.com/talkdub/talkdub/internal/phase/registry"
	"github.com/talkdub/talkdub/internal/pinstore"
	"github.com/talkdub/talkdub/internal/ratelimit"
	"github.com/talkdub/talkdub/internal/translation"
	"github.com/talkdub/talkdub/internal/translationcache"
	"github.com/talkdub/talkdub/internal/worker"
	"github.com/talkdub/talkdub/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Version information (set by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// @title TalkDub API
// @version 1.0
// @description Durable, resumable job-orchestration service for video dubbing
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api/v1

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("TalkDub %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	log.Println("🚀 TalkDub starting up...")

	log.Println("📋 Loading configuration...")
	cfg := config.Load()

	log.Println("📝 Initializing logging system...")
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting TalkDub", "version", version, "commit", commit)

	log.Println("🗄️  Initializing database connection...")
	if err := database.Initialize(cfg.DatabasePath); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()
	log.Println("✅ Database connection established")

	log.Println("📦 Opening job store...")
	store, err := jobstore.New(cfg.DataRoot)
	if err != nil {
		log.Fatal("Failed to open job store:", err)
	}
	log.Println("✅ Job store ready")

	pinStore := pinstore.New(database.DB, time.Duration(cfg.PINRetentionHours)*time.Hour, cfg.MaxPINAttempts)
	limiter := ratelimit.New(database.DB, cfg.LLMRPMLimit, cfg.LLMBufferFactor)
	cache := translationcache.New(database.DB, time.Duration(cfg.DeliveryRetentionHours)*time.Hour)

	log.Println("🔑 Starting credential watcher...")
	credWatcher, err := config.NewCredentialWatcher(cfg)
	if err != nil {
		log.Fatal("Failed to start credential watcher:", err)
	}
	credWatcher.Start()
	defer credWatcher.Stop()
	log.Println("✅ Credential watcher ready (LLM key hot-reloads on rotation)")

	log.Println("🌐 Wiring translation pipeline...")
	llmClient := translation.NewOpenAIClient(func() string { return credWatcher.Get("llm_api_key") }, cfg.LLMBaseURL, cfg.LLMModel, cfg.TranslationTemperature)
	pipeline := translation.NewPipeline(cache, limiter, llmClient, cfg.ChunkCharLimit, cfg.ChunkSegLimit, cfg.PhaseMaxRetries)
	log.Println("✅ Translation pipeline ready")

	reg := registry.Default()
	runner := phase.NewRunner(store, reg, cfg.DataRoot, cfg.PhaseMaxRetries, cfg.PhaseBackoffBase())
	orch := orchestrator.New(runner, store, true)

	dispatcher := notify.New(notify.NewEmailNotifier(cfg.EmailFrom))

	phaseList := func(job models.Job) []phase.Phase {
		return []phase.Phase{
			phases.Download{},
			phases.Normalize{},
			phases.Separate{},
			phases.ASR{},
			phases.VAD{},
			phases.RefAudio{MinQuality: 0.5},
			phases.Hallucination{},
			phases.Translation{Pipeline: pipeline},
			phases.TTS{Shortener: pipeline},
			phases.Timeline{},
			phases.Mix{},
			phases.Finalize{DataRoot: cfg.DataRoot},
			phases.Manifest{DataRoot: cfg.DataRoot},
		}
	}

	log.Println("📋 Starting background job worker...")
	jobWorker := worker.New(store, pinStore, orch, dispatcher, phaseList, time.Duration(cfg.DeliveryRetentionHours)*time.Hour)
	jobWorker.Start()
	defer jobWorker.Stop()
	log.Println("✅ Job worker started (concurrency 1)")

	log.Println("🧹 Starting expiry janitor...")
	sweeper := janitor.New(store, pinStore, limiter, cache, cfg.DataRoot, time.Duration(cfg.FailedJobRetentionDays)*24*time.Hour)
	sweeper.Start(time.Duration(cfg.TempFileRetentionHours) * time.Hour / 4)
	defer sweeper.Stop()
	log.Println("✅ Janitor sweeping on schedule")

	log.Println("🔧 Setting up API handlers...")
	handler := delivery.NewHandler(cfg, store, pinStore, jobWorker)

	log.Println("🛤️  Configuring routes...")
	if cfg.Host != "localhost" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := delivery.NewRouter(handler)
	log.Println("✅ Routes configured")

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("🌐 Starting HTTP server on %s:%s", cfg.Host, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server:", err)
		}
	}()

	time.Sleep(100 * time.Millisecond)
	log.Printf("🎉 TalkDub is now running! Server listening on http://%s:%s", cfg.Host, cfg.Port)
	log.Println("💡 Visit /swagger/index.html for API documentation")
	log.Println("🛑 Press Ctrl+C to stop the server")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
