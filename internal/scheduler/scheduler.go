// Package scheduler owns the engine's clock. Every ten minutes it runs an
// archiver tick, fires scans whose crontab schedules match the current
// minute, feeds the metadata refresher, and handles the daily chores.
package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/archiver"
	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/repository"
	"github.com/clipvault/clipvault/internal/schedule"
)

const tickInterval = 10 * time.Minute

// privacyChecksPerTick bounds how many stale-metadata refreshes each tick
// feeds into the low queue.
const privacyChecksPerTick = 10

// Dispatcher is the slice of the task queue the scheduler uses.
type Dispatcher interface {
	DispatchChannelScan(channelID uuid.UUID, fullIndex bool) error
	DispatchPlaylistSync(playlistID uuid.UUID) error
	DispatchUpdateDetails(videoID uuid.UUID, mode string, downloadFile bool) error
	DispatchQualityUpgradeScan() error
}

// Scheduler runs the periodic loop.
type Scheduler struct {
	archiver     *archiver.Archiver
	channelRepo  *repository.ChannelRepository
	playlistRepo *repository.PlaylistRepository
	videoRepo    *repository.VideoRepository
	scanRepo     *repository.ScanHistoryRepository
	dispatch     Dispatcher
	notifier     *notifications.Notifier
	cfg          *config.Config

	stop chan struct{}
}

func New(arch *archiver.Archiver, channelRepo *repository.ChannelRepository,
	playlistRepo *repository.PlaylistRepository, videoRepo *repository.VideoRepository,
	scanRepo *repository.ScanHistoryRepository, dispatch Dispatcher,
	notifier *notifications.Notifier, cfg *config.Config) *Scheduler {
	return &Scheduler{
		archiver: arch, channelRepo: channelRepo, playlistRepo: playlistRepo,
		videoRepo: videoRepo, scanRepo: scanRepo, dispatch: dispatch,
		notifier: notifier, cfg: cfg,
		stop: make(chan struct{}),
	}
}

// Start begins the ticker loop.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	log.Printf("[scheduler] archive loop started (%s interval)", tickInterval)
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) run(ctx context.Context) {
	// Align the first tick to the next 10-minute boundary so crontab
	// minute matching stays deterministic.
	now := time.Now()
	next := now.Truncate(tickInterval).Add(tickInterval)
	select {
	case <-time.After(next.Sub(now)):
	case <-s.stop:
		return
	case <-ctx.Done():
		return
	}
	s.tick(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stop:
			log.Println("[scheduler] scheduler stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	s.archiver.Tick(ctx)
	s.checkChannelScans(now)
	s.checkPlaylistScans(now)
	s.feedMetadataRefresher(now)
	s.dailyChores(now)
}

// checkChannelScans queues an index scan for every channel whose crontab
// schedule matches this tick's minute, unless a recent scan blocks it.
func (s *Scheduler) checkChannelScans(now time.Time) {
	channels, err := s.channelRepo.ListScheduled()
	if err != nil {
		log.Printf("[scheduler] error listing scheduled channels: %v", err)
		return
	}
	for _, channel := range channels {
		active, err := schedule.IsActiveNow(channel.ScannerSchedule, now)
		if err != nil {
			log.Printf("[scheduler] bad schedule on channel %q: %v", channel.Name, err)
			continue
		}
		if !active {
			continue
		}
		window := time.Duration(s.cfg.ChannelBlockRescanWindowHours) * time.Hour
		if channel.BlockRescanWindowHours != nil {
			window = time.Duration(*channel.BlockRescanWindowHours) * time.Hour
		}
		if recent, err := s.scanRepo.RecentlyScanned(models.ScanTargetChannel, channel.ID, window); err == nil && recent {
			log.Printf("[scheduler] channel %q scanned within %s, skipping", channel.Name, window)
			continue
		}
		log.Printf("[scheduler] channel %q is due for scan", channel.Name)
		if err := s.dispatch.DispatchChannelScan(channel.ID, false); err != nil {
			log.Printf("[scheduler] error dispatching scan for %q: %v", channel.Name, err)
		}
	}
}

func (s *Scheduler) checkPlaylistScans(now time.Time) {
	playlists, err := s.playlistRepo.ListScheduled()
	if err != nil {
		log.Printf("[scheduler] error listing scheduled playlists: %v", err)
		return
	}
	window := time.Duration(s.cfg.PlaylistBlockRescanWindowHours) * time.Hour
	for _, playlist := range playlists {
		active, err := schedule.IsActiveNow(playlist.Schedule, now)
		if err != nil {
			log.Printf("[scheduler] bad schedule on playlist %q: %v", playlist.Title, err)
			continue
		}
		if !active {
			continue
		}
		if recent, err := s.scanRepo.RecentlyScanned(models.ScanTargetPlaylist, playlist.ID, window); err == nil && recent {
			log.Printf("[scheduler] playlist %q scanned within %s, skipping", playlist.Title, window)
			continue
		}
		log.Printf("[scheduler] playlist %q is due for sync", playlist.Title)
		if err := s.dispatch.DispatchPlaylistSync(playlist.ID); err != nil {
			log.Printf("[scheduler] error dispatching sync for %q: %v", playlist.Title, err)
		}
	}
}

// feedMetadataRefresher queues privacy-status checks for videos whose
// metadata has gone stale, plus any manually force-checked batch.
func (s *Scheduler) feedMetadataRefresher(now time.Time) {
	minAge := time.Duration(s.cfg.PrivacyStatusCheckMinAgeDays) * 24 * time.Hour
	stale, err := s.videoRepo.ListNeedingPrivacyCheck(now, minAge, privacyChecksPerTick)
	if err != nil {
		log.Printf("[scheduler] error listing stale videos: %v", err)
	} else {
		for _, v := range stale {
			if err := s.dispatch.DispatchUpdateDetails(v.ID, "auto", false); err != nil {
				log.Printf("[scheduler] error dispatching refresh for %s: %v", v.ProviderID, err)
			}
		}
	}

	if s.cfg.ForceCheckPerCall <= 0 {
		return
	}
	forced, err := s.videoRepo.ListForceCheckCandidates(s.cfg.ForceCheckPerCall)
	if err != nil {
		log.Printf("[scheduler] error listing force checks: %v", err)
		return
	}
	for _, v := range forced {
		if err := s.dispatch.DispatchUpdateDetails(v.ID, "auto", false); err != nil {
			log.Printf("[scheduler] error dispatching force check for %s: %v", v.ProviderID, err)
		}
	}
}

// dailyChores fires the once-a-day work on its designated ticks: the
// quality upgrade scan in the early morning, and the no-videos-archived
// notification on the day's last tick.
func (s *Scheduler) dailyChores(now time.Time) {
	if now.Hour() == 3 && now.Minute() < 10 {
		if err := s.dispatch.DispatchQualityUpgradeScan(); err != nil {
			log.Printf("[scheduler] error dispatching quality scan: %v", err)
		}
	}

	if now.Hour() == 23 && now.Minute() >= 50 {
		count, err := s.videoRepo.CountDownloadedToday(now)
		if err != nil {
			log.Printf("[scheduler] error counting today's downloads: %v", err)
			return
		}
		if count == 0 {
			s.notifier.Sendf(notifications.KindNoVideosArchivedToday, "No videos archived today",
				"No videos were archived on %s", now.Format("2006-01-02"))
		}
	}
}
