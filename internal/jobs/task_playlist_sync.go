package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
)

// PlaylistSyncHandler reconciles one playlist against the provider's
// current listing: memberships are created, re-flagged, or removed, and a
// playlist that keeps vanishing from the provider is disabled.
type PlaylistSyncHandler struct {
	playlistRepo *repository.PlaylistRepository
	itemRepo     *repository.PlaylistItemRepository
	videoRepo    *repository.VideoRepository
	channelRepo  *repository.ChannelRepository
	blockedRepo  *repository.BlockedRepository
	scanRepo     *repository.ScanHistoryRepository
	client       provider.Client
	registry     locks.Registry
	notifier     *notifications.Notifier
	queue        *Queue
}

func NewPlaylistSyncHandler(playlistRepo *repository.PlaylistRepository, itemRepo *repository.PlaylistItemRepository,
	videoRepo *repository.VideoRepository, channelRepo *repository.ChannelRepository,
	blockedRepo *repository.BlockedRepository, scanRepo *repository.ScanHistoryRepository,
	client provider.Client, registry locks.Registry, notifier *notifications.Notifier, queue *Queue) *PlaylistSyncHandler {
	return &PlaylistSyncHandler{
		playlistRepo: playlistRepo, itemRepo: itemRepo, videoRepo: videoRepo,
		channelRepo: channelRepo, blockedRepo: blockedRepo, scanRepo: scanRepo,
		client: client, registry: registry, notifier: notifier, queue: queue,
	}
}

func (h *PlaylistSyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p PlaylistSyncPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	playlistID, _ := uuid.Parse(p.PlaylistID)
	playlist, err := h.playlistRepo.GetByID(playlistID)
	if err != nil {
		return fmt.Errorf("get playlist: %w", err)
	}
	if playlist.ProviderID == "" {
		log.Printf("PlaylistSync: %s is local-only, skipping", playlist.Title)
		return nil
	}

	token, err := h.registry.Acquire(ctx, "Playlist", playlist.ID.String(), "scanning", time.Hour)
	if err != nil {
		log.Printf("PlaylistSync: %s scanning lock held, skipping", playlist.Title)
		return nil
	}
	defer h.registry.Release(context.Background(), token)

	details, err := h.client.PlaylistDetails(ctx, "https://www.youtube.com/playlist?list="+playlist.ProviderID)
	if err != nil {
		return fmt.Errorf("playlist details: %w", err)
	}
	if details == nil {
		return h.handleNotFound(playlist)
	}
	if playlist.NotFoundFailures > 0 {
		if err := h.playlistRepo.ClearNotFoundFailures(playlist.ID); err != nil {
			log.Printf("PlaylistSync: clear failures for %s: %v", playlist.Title, err)
		}
	}

	if details.Title != "" && details.Title != playlist.Title {
		playlist.Title = details.Title
		if err := h.playlistRepo.Save(playlist); err != nil {
			log.Printf("PlaylistSync: save title for %s: %v", playlist.Title, err)
		}
	}
	h.assignChannel(playlist, details)

	if err := h.reconcile(playlist, details); err != nil {
		return err
	}

	if err := h.scanRepo.Record(models.ScanTargetPlaylist, playlist.ID); err != nil {
		log.Printf("PlaylistSync: record scan for %s: %v", playlist.Title, err)
	}
	return nil
}

// handleNotFound counts consecutive provider misses and disables the
// playlist's schedule once the threshold is reached.
func (h *PlaylistSyncHandler) handleNotFound(playlist *models.Playlist) error {
	failures, err := h.playlistRepo.IncrementNotFoundFailures(playlist.ID)
	if err != nil {
		return fmt.Errorf("increment not-found failures: %w", err)
	}
	log.Printf("PlaylistSync: %s not found on provider (failure %d/%d)",
		playlist.Title, failures, models.MaxNotFoundFailures)
	if failures < models.MaxNotFoundFailures {
		return nil
	}
	if err := h.playlistRepo.ClearSchedule(playlist.ID); err != nil {
		return fmt.Errorf("clear schedule: %w", err)
	}
	h.notifier.Sendf(notifications.KindPlaylistDisabled, "Playlist disabled",
		"%s was not found on the provider %d times and has been disabled",
		playlist.Title, failures)
	return nil
}

// assignChannel links an unassigned playlist to the channel the provider
// reports as its owner, when that channel is already archived.
func (h *PlaylistSyncHandler) assignChannel(playlist *models.Playlist, details *provider.PlaylistDetails) {
	if playlist.ChannelID != nil || details.ChannelID == "" {
		return
	}
	channel, err := h.channelRepo.GetByProviderID(details.ChannelID)
	if err != nil || channel == nil {
		return
	}
	if err := h.playlistRepo.AssignChannel(playlist.ID, channel.ID); err != nil {
		log.Printf("PlaylistSync: assign channel for %s: %v", playlist.Title, err)
		return
	}
	playlist.ChannelID = &channel.ID
	log.Printf("PlaylistSync: %s assigned to channel %s", playlist.Title, channel.Name)
}

func (h *PlaylistSyncHandler) reconcile(playlist *models.Playlist, details *provider.PlaylistDetails) error {
	existing, err := h.itemRepo.ListByPlaylist(playlist.ID)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}
	itemsByVideo := map[uuid.UUID]*models.PlaylistItem{}
	for _, item := range existing {
		itemsByVideo[item.VideoID] = item
	}

	seen := map[uuid.UUID]bool{}
	for index, entry := range details.Entries {
		video, err := h.ensureVideo(playlist, entry)
		if err != nil {
			log.Printf("PlaylistSync: entry %s in %s: %v", entry.ID, playlist.Title, err)
			continue
		}
		if video == nil {
			continue // placeholder entry or blocked provider id
		}
		seen[video.ID] = true

		if playlist.DisableWhenStringFoundInVideoTitle != "" &&
			titleContains(video.Title, playlist.DisableWhenStringFoundInVideoTitle) {
			if err := h.playlistRepo.ClearSchedule(playlist.ID); err != nil {
				return fmt.Errorf("clear schedule: %w", err)
			}
			h.notifier.Sendf(notifications.KindPlaylistDisabled, "Playlist disabled",
				"%s: disable string matched video title %q", playlist.Title, video.Title)
			log.Printf("PlaylistSync: %s disabled, string found in %q", playlist.Title, video.Title)
			return nil
		}

		item := itemsByVideo[video.ID]
		if item == nil {
			h.addItem(playlist, video, index)
			continue
		}
		if item.MissingFromPlaylistOnProvider || item.ManuallyAdded {
			if item.MissingFromPlaylistOnProvider {
				if err := h.itemRepo.SetMissing(item.ID, false); err != nil {
					log.Printf("PlaylistSync: clear missing for %s: %v", video.ProviderID, err)
				}
			}
			if item.ManuallyAdded {
				if err := h.itemRepo.SetManuallyAdded(item.ID, false); err != nil {
					log.Printf("PlaylistSync: clear manual flag for %s: %v", video.ProviderID, err)
				}
			}
			h.notifier.Sendf(notifications.KindVideoReaddedToPlaylist, "Video re-added to playlist",
				"%s is back in %s", video.Title, playlist.Title)
		}
		if item.DisplayOrder != index {
			if err := h.itemRepo.SetDisplayOrder(item.ID, index); err != nil {
				log.Printf("PlaylistSync: set order for %s: %v", video.ProviderID, err)
			}
		}
		if item.Download && !desiredItemDownload(playlist, video) {
			if err := h.itemRepo.SetDownload(item.ID, false); err != nil {
				log.Printf("PlaylistSync: set download for %s: %v", video.ProviderID, err)
			}
		}
	}

	return h.removeDeparted(playlist, existing, seen)
}

// skipPlaylistEntry filters out listing entries that cannot become videos:
// entries with no id and the provider's private/deleted placeholders.
func skipPlaylistEntry(entry provider.PlaylistEntry) bool {
	if entry.ID == "" {
		return true
	}
	switch strings.ToLower(entry.Title) {
	case "[private video]", "[deleted video]":
		return true
	}
	return false
}

// desiredItemDownload decides a membership's download flag: the video must
// permit downloading and the title must clear the playlist's skip list.
func desiredItemDownload(playlist *models.Playlist, video *models.Video) bool {
	return video.PermitDownload && !playlist.TitleSkipMatch(video.Title)
}

// ensureVideo resolves a listing entry to a Video row, creating one when
// the provider id is new and not on the denylist.
func (h *PlaylistSyncHandler) ensureVideo(playlist *models.Playlist, entry provider.PlaylistEntry) (*models.Video, error) {
	if skipPlaylistEntry(entry) {
		return nil, nil
	}
	if blocked, err := h.blockedRepo.IsBlocked(entry.ID); err == nil && blocked {
		return nil, nil
	}
	video, err := h.videoRepo.GetByProviderID(entry.ID)
	if err != nil {
		return nil, err
	}
	if video != nil {
		return video, nil
	}

	video = &models.Video{
		ProviderID:              entry.ID,
		Title:                   entry.Title,
		Duration:                entry.Duration,
		Quality:                 playlist.Quality,
		PrivacyStatus:           models.PrivacyPublic,
		PermitDownload:          true,
		ConvertToAudio:          playlist.ConvertToAudio,
		DownloadCommentsOnIndex: playlist.DownloadCommentsOnIndex,
	}
	video.SetKind(models.KindVideo)
	if playlist.ChannelID != nil {
		video.ChannelID = playlist.ChannelID
	}
	if err := h.videoRepo.Save(video); err != nil {
		return nil, err
	}
	if err := h.queue.DispatchUpdateDetails(video.ID, "auto", false); err != nil {
		log.Printf("PlaylistSync: details dispatch for %s: %v", video.ProviderID, err)
	}
	return video, nil
}

func (h *PlaylistSyncHandler) addItem(playlist *models.Playlist, video *models.Video, index int) {
	item := &models.PlaylistItem{
		PlaylistID:   playlist.ID,
		VideoID:      video.ID,
		DisplayOrder: index,
		Download:     desiredItemDownload(playlist, video),
	}
	if err := h.itemRepo.Create(item); err != nil {
		log.Printf("PlaylistSync: create item for %s: %v", video.ProviderID, err)
		return
	}
	h.notifier.Sendf(notifications.KindVideoAddedToPlaylist, "Video added to playlist",
		"%s added to %s", video.Title, playlist.Title)
}

// removeDeparted flags memberships no longer reported by the provider.
// Manually added items are never touched; with sync_deletions on the
// membership row is deleted outright instead of being flagged.
func (h *PlaylistSyncHandler) removeDeparted(playlist *models.Playlist, existing []*models.PlaylistItem, seen map[uuid.UUID]bool) error {
	for _, item := range existing {
		if seen[item.VideoID] || item.ManuallyAdded || item.MissingFromPlaylistOnProvider {
			continue
		}
		video, err := h.videoRepo.GetByID(item.VideoID)
		if err != nil {
			return fmt.Errorf("get departed video: %w", err)
		}
		if playlist.SyncDeletions {
			if err := h.itemRepo.Delete(item.ID); err != nil {
				return fmt.Errorf("delete item: %w", err)
			}
		} else if err := h.itemRepo.SetMissing(item.ID, true); err != nil {
			return fmt.Errorf("flag missing: %w", err)
		}
		h.notifier.Sendf(notifications.KindVideoRemovedFromPlaylist, "Video removed from playlist",
			"%s", departureNotice(playlist.SyncDeletions, video.Title, playlist.Title))
	}
	return nil
}

// departureNotice phrases the removal notification: a deleted membership
// reads differently from one merely flagged missing.
func departureNotice(deleted bool, videoTitle, playlistTitle string) string {
	if deleted {
		return fmt.Sprintf("%s was removed from %s", videoTitle, playlistTitle)
	}
	return fmt.Sprintf("%s is missing from %s on the provider", videoTitle, playlistTitle)
}

func titleContains(title, needle string) bool {
	return strings.Contains(strings.ToLower(title), strings.ToLower(needle))
}
