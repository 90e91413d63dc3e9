package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/repository"
)

// QualityUpgradeHandler finds downloaded videos sitting below their
// channel's or playlist's target quality and re-runs them through the
// download pipeline. The per-run cap keeps upgrades from starving fresh
// downloads.
type QualityUpgradeHandler struct {
	channelRepo  *repository.ChannelRepository
	playlistRepo *repository.PlaylistRepository
	videoRepo    *repository.VideoRepository
	queue        *Queue
	cfg          *config.Config
}

func NewQualityUpgradeHandler(channelRepo *repository.ChannelRepository, playlistRepo *repository.PlaylistRepository,
	videoRepo *repository.VideoRepository, queue *Queue, cfg *config.Config) *QualityUpgradeHandler {
	return &QualityUpgradeHandler{
		channelRepo: channelRepo, playlistRepo: playlistRepo, videoRepo: videoRepo,
		queue: queue, cfg: cfg,
	}
}

func (h *QualityUpgradeHandler) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	budget := h.cfg.AutomatedQualityUpgradesPerTaskLimit
	if budget <= 0 {
		return nil
	}

	channels, err := h.channelRepo.ListScheduled()
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	for _, channel := range channels {
		if budget <= 0 {
			break
		}
		if channel.Quality <= 0 {
			continue
		}
		candidates, err := h.videoRepo.ListQualityUpgradeByChannel(channel.ID, channel.Quality, budget)
		if err != nil {
			return fmt.Errorf("channel %s candidates: %w", channel.Name, err)
		}
		budget -= h.dispatch(candidates, "Automated Quality Upgrade - Channel "+channel.Name)
	}

	playlists, err := h.playlistRepo.ListScheduled()
	if err != nil {
		return fmt.Errorf("list playlists: %w", err)
	}
	for _, playlist := range playlists {
		if budget <= 0 {
			break
		}
		if playlist.Quality <= 0 {
			continue
		}
		candidates, err := h.videoRepo.ListQualityUpgradeByPlaylist(playlist.ID, playlist.Quality, budget)
		if err != nil {
			return fmt.Errorf("playlist %s candidates: %w", playlist.Title, err)
		}
		budget -= h.dispatch(candidates, "Automated Quality Upgrade - Playlist "+playlist.Title)
	}
	return nil
}

// dispatch soft-resets each candidate so the pipeline sees it as
// undownloaded, stamps the upgrade marker, and queues the re-download.
// Candidates whose stored file already matches the best format the
// provider reports are stamped at-max instead of being reset.
// Returns how many were queued.
func (h *QualityUpgradeHandler) dispatch(candidates []*models.Video, source string) int {
	queued := 0
	for _, video := range candidates {
		if video.AtReportedMaxQuality() {
			video.AtMaxQuality = true
			if err := h.videoRepo.Save(video); err != nil {
				log.Printf("QualityUpgrade: save at-max for %s: %v", video.ProviderID, err)
			}
			log.Printf("QualityUpgrade: %s already at reported max, skipping", video.ProviderID)
			continue
		}
		video.SystemNotes.MarkMaxQualityUpgraded(time.Now())
		if err := h.videoRepo.Save(video); err != nil {
			log.Printf("QualityUpgrade: save marker for %s: %v", video.ProviderID, err)
			continue
		}
		if err := h.videoRepo.Delete(video.ID, true, true); err != nil {
			log.Printf("QualityUpgrade: reset %s: %v", video.ProviderID, err)
			continue
		}
		if err := h.queue.DispatchDownload(video, source, "", 0); err != nil {
			log.Printf("QualityUpgrade: dispatch %s: %v", video.ProviderID, err)
			continue
		}
		log.Printf("QualityUpgrade: %s queued for re-download (%s)", video.ProviderID, source)
		queued++
	}
	return queued
}
