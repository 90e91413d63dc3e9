package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/clipvault/clipvault/internal/archiver"
	"github.com/clipvault/clipvault/internal/budget"
	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/db"
	"github.com/clipvault/clipvault/internal/eligibility"
	"github.com/clipvault/clipvault/internal/ffmpeg"
	"github.com/clipvault/clipvault/internal/jobs"
	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/progress"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
	"github.com/clipvault/clipvault/internal/scheduler"
	"github.com/clipvault/clipvault/internal/storage"
	"github.com/clipvault/clipvault/internal/version"
)

func main() {
	ver := version.Load()
	log.Printf("ClipVault %s starting...", ver.Version)

	cfg := config.Load()

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(cfg.DatabaseURL, "migrations"); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	cfg.MergeFromDB(database)

	repos := jobs.Repos{
		Videos:        repository.NewVideoRepository(database),
		Channels:      repository.NewChannelRepository(database),
		Playlists:     repository.NewPlaylistRepository(database),
		PlaylistItems: repository.NewPlaylistItemRepository(database),
		Annotations:   repository.NewAnnotationRepository(database),
		Errors:        repository.NewDownloadErrorRepository(database),
		Blocked:       repository.NewBlockedRepository(database),
		Scans:         repository.NewScanHistoryRepository(database),
	}

	var registry locks.Registry = locks.NewMemoryRegistry()
	var events jobs.EventNotifier
	if cfg.RedisEnabled {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		registry = locks.NewRedisRegistry(redisClient)
		events = progress.NewPublisher(redisClient)
	}

	client := provider.NewYtdlpClient(cfg.YtdlpPath, cfg.RequestsRateLimit)
	converter := ffmpeg.NewConverter(cfg.FFmpegPath)
	store := storage.NewLocal(cfg.DataDir)
	notifier := notifications.New(cfg.NotificationURL)

	queue := jobs.NewQueue(cfg.RedisAddr, 10)
	jobs.RegisterHandlers(queue, repos, client, converter, store, registry, notifier, events, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := queue.Start(ctx); err != nil {
		log.Fatalf("queue start failed: %v", err)
	}

	filter := eligibility.New(registry, repos.Blocked, repos.Errors, repos.Channels,
		cfg.VideoDownloadErrorDailyAttempts, cfg.VideoDownloadErrorAttempts)
	calc := budget.New(cfg.AutomatedDownloadsDailyLimit, cfg.AutomatedDownloadsPerTaskLimit,
		cfg.AutomatedDownloadsDurationLimitSplit)
	arch := archiver.New(repos.Videos, repos.Channels, repos.Playlists,
		filter, calc, queue, client, notifier, cfg)

	sched := scheduler.New(arch, repos.Channels, repos.Playlists, repos.Videos,
		repos.Scans, queue, notifier, cfg)
	sched.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	sched.Stop()
	queue.Stop()
}
