// Package archiver drives the periodic download pass. Each tick walks a
// fixed sequence of sub-passes that share one admission budget: date-gated
// flag swaps, full-archive channels, playlists, error retries, livestream
// retries, and the max-quality liveness check.
package archiver

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/budget"
	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/eligibility"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/notifications"
	"github.com/clipvault/clipvault/internal/provider"
)

// SourceFullArchive tags downloads dispatched by the full-archive pass.
const SourceFullArchive = "automated_archiver - Channel Full Archive"

// SourceLiveReattempt tags livestream retries; their dispatch carries a
// short countdown so the provider settles the recording first.
const (
	SourceLiveReattempt  = "Live Download - Reattempt"
	liveReattemptDelay   = 10 * time.Second
	SourcePlaylist       = "automated_archiver - Playlist"
	SourceErrorReattempt = "automated_archiver - Error Reattempt"
	SourceMaxQuality     = "automated_archiver - Max Quality Upgrade"
)

// VideoStore is the slice of the video repository the archiver consumes.
type VideoStore interface {
	GetByID(id uuid.UUID) (*models.Video, error)
	Save(v *models.Video) error
	Delete(id uuid.UUID, allowDelete, keepRecord bool) error
	CountDownloadedToday(now time.Time) (int, error)
	ListUndownloadedByChannel(channelID uuid.UUID, cutoff *time.Time) ([]*models.Video, error)
	ListUndownloadedByPlaylist(playlistID uuid.UUID) ([]*models.Video, error)
	ListErrorRetryCandidates(now time.Time, wait time.Duration, dailyCap, hardCap int) ([]*models.Video, error)
	ListLiveRetryCandidates(now time.Time, retryAfter time.Duration) ([]*models.Video, error)
	ListMaxQualityLivenessCandidates(now time.Time, window time.Duration) ([]*models.Video, error)
}

// ChannelStore is the slice of the channel repository the archiver consumes.
type ChannelStore interface {
	GetByID(id uuid.UUID) (*models.Channel, error)
	Save(c *models.Channel) error
	ListFullArchive() ([]*models.Channel, error)
	ListFlagSwapsDue(now time.Time) ([]*models.Channel, error)
}

// PlaylistStore is the slice of the playlist repository the archiver consumes.
type PlaylistStore interface {
	ListScheduled() ([]*models.Playlist, error)
}

// Dispatcher queues work onto the task queue.
type Dispatcher interface {
	DispatchDownload(video *models.Video, source, requestedBy string, countdown time.Duration) error
	DispatchChannelScan(channelID uuid.UUID, fullIndex bool) error
}

// Archiver owns one tick of the archive loop.
type Archiver struct {
	videos    VideoStore
	channels  ChannelStore
	playlists PlaylistStore
	filter    *eligibility.Filter
	calc      *budget.Calculator
	dispatch  Dispatcher
	client    provider.Client
	notifier  *notifications.Notifier
	cfg       *config.Config

	now func() time.Time
}

func New(videos VideoStore, channels ChannelStore, playlists PlaylistStore,
	filter *eligibility.Filter, calc *budget.Calculator, dispatch Dispatcher,
	client provider.Client, notifier *notifications.Notifier, cfg *config.Config) *Archiver {
	return &Archiver{
		videos: videos, channels: channels, playlists: playlists,
		filter: filter, calc: calc, dispatch: dispatch,
		client: client, notifier: notifier, cfg: cfg,
		now: time.Now,
	}
}

// tickState carries the shared budget accounting across one tick's passes.
type tickState struct {
	today      int // downloads completed today before this tick
	dispatched int // downloads queued by earlier passes of this tick
}

func (s *tickState) counted() int { return s.today + s.dispatched }

// Tick runs the full sub-pass sequence once.
func (a *Archiver) Tick(ctx context.Context) {
	now := a.now()
	a.applyFlagSwaps(now)

	today, err := a.videos.CountDownloadedToday(now)
	if err != nil {
		log.Printf("Archiver: count today's downloads: %v", err)
		return
	}
	state := &tickState{today: today}

	a.fullArchivePass(ctx, state)
	a.playlistPass(ctx, state)
	a.errorRetryPass(ctx, state, now)
	a.liveRetryPass(ctx, state, now)
	a.maxQualityLivenessPass(ctx, state, now)

	if state.dispatched > 0 {
		log.Printf("Archiver: tick dispatched %d download(s)", state.dispatched)
	}
}

// applyFlagSwaps promotes every date-gated flag whose date has arrived:
// index→download swaps per kind, delayed full archiving, and delayed full
// indexing.
func (a *Archiver) applyFlagSwaps(now time.Time) {
	due, err := a.channels.ListFlagSwapsDue(now)
	if err != nil {
		log.Printf("Archiver: list flag swaps: %v", err)
		return
	}
	for _, channel := range due {
		fullIndex := false
		if channel.SwapIndexVideosAfter != nil && !channel.SwapIndexVideosAfter.After(now) {
			channel.DownloadVideos = true
			channel.SwapIndexVideosAfter = nil
			log.Printf("Archiver: %s now downloads videos", channel.Name)
		}
		if channel.SwapIndexShortsAfter != nil && !channel.SwapIndexShortsAfter.After(now) {
			channel.DownloadShorts = true
			channel.SwapIndexShortsAfter = nil
			log.Printf("Archiver: %s now downloads shorts", channel.Name)
		}
		if channel.SwapIndexLivestreamsAfter != nil && !channel.SwapIndexLivestreamsAfter.After(now) {
			channel.DownloadLivestreams = true
			channel.SwapIndexLivestreamsAfter = nil
			log.Printf("Archiver: %s now downloads livestreams", channel.Name)
		}
		if channel.FullArchiveAfter != nil && !channel.FullArchiveAfter.After(now) {
			channel.FullArchive = true
			a.notifier.Sendf(notifications.KindFullArchivingStarted, "Full archiving started",
				"%s", channel.Name)
			log.Printf("Archiver: %s full archiving started", channel.Name)
		}
		if channel.FullIndexAfter != nil && !channel.FullIndexAfter.After(now) {
			channel.FullIndexAfter = nil
			fullIndex = true
		}
		if err := a.channels.Save(channel); err != nil {
			log.Printf("Archiver: save flag swap for %s: %v", channel.Name, err)
			continue
		}
		if fullIndex {
			if err := a.dispatch.DispatchChannelScan(channel.ID, true); err != nil {
				log.Printf("Archiver: full index dispatch for %s: %v", channel.Name, err)
			}
		}
	}
}

// fullArchivePass drains the backlog of full-archive channels, oldest
// upload first. A channel whose backlog is empty has finished archiving.
func (a *Archiver) fullArchivePass(ctx context.Context, state *tickState) {
	channels, err := a.channels.ListFullArchive()
	if err != nil {
		log.Printf("Archiver: list full archive channels: %v", err)
		return
	}
	for _, channel := range channels {
		pending, err := a.videos.ListUndownloadedByChannel(channel.ID, channel.FullArchiveCutoff)
		if err != nil {
			log.Printf("Archiver: backlog for %s: %v", channel.Name, err)
			continue
		}
		pending = a.downloadableForChannel(channel, pending)
		if len(pending) == 0 {
			a.completeFullArchive(channel)
			continue
		}

		candidates := make([]eligibility.Candidate, len(pending))
		for i, v := range pending {
			candidates[i] = eligibility.Candidate{Video: v, Channel: channel}
		}
		take := len(candidates)
		if channel.SlowFullArchive && take > 1 {
			take = 1
		}
		a.dispatchBudgeted(ctx, state, candidates[:take], SourceFullArchive, 0)
	}
}

// downloadableForChannel filters the backlog down to the kinds the channel
// actually downloads.
func (a *Archiver) downloadableForChannel(channel *models.Channel, videos []*models.Video) []*models.Video {
	var out []*models.Video
	for _, v := range videos {
		switch v.Kind() {
		case models.KindShort:
			if !channel.DownloadShorts {
				continue
			}
		case models.KindLivestream:
			if !channel.DownloadLivestreams {
				continue
			}
		default:
			if !channel.DownloadVideos {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

func (a *Archiver) completeFullArchive(channel *models.Channel) {
	channel.FullArchive = false
	channel.SlowFullArchive = false
	channel.SendDownloadNotification = true
	channel.FullyIndexed = true
	if err := a.channels.Save(channel); err != nil {
		log.Printf("Archiver: save archive completion for %s: %v", channel.Name, err)
		return
	}
	a.notifier.Sendf(notifications.KindFullArchivingCompleted, "Full archiving completed",
		"%s", channel.Name)
	log.Printf("Archiver: %s full archiving completed", channel.Name)
}

// playlistPass downloads pending playlist members for every scheduled
// playlist.
func (a *Archiver) playlistPass(ctx context.Context, state *tickState) {
	playlists, err := a.playlists.ListScheduled()
	if err != nil {
		log.Printf("Archiver: list playlists: %v", err)
		return
	}
	for _, playlist := range playlists {
		pending, err := a.videos.ListUndownloadedByPlaylist(playlist.ID)
		if err != nil {
			log.Printf("Archiver: backlog for playlist %s: %v", playlist.Title, err)
			continue
		}
		candidates := make([]eligibility.Candidate, 0, len(pending))
		for _, v := range pending {
			c := eligibility.Candidate{Video: v, Playlist: playlist}
			if v.ChannelID != nil {
				if ch, err := a.channels.GetByID(*v.ChannelID); err == nil {
					c.Channel = ch
				}
			}
			candidates = append(candidates, c)
		}
		a.dispatchBudgeted(ctx, state, candidates, SourcePlaylist, 0)
	}
}

// errorRetryPass re-attempts videos whose last failure has aged past the
// wait period and whose error budgets are not exhausted.
func (a *Archiver) errorRetryPass(ctx context.Context, state *tickState, now time.Time) {
	wait := time.Duration(a.cfg.VideoDownloadErrorWaitPeriodMinutes) * time.Minute
	pending, err := a.videos.ListErrorRetryCandidates(now, wait,
		a.cfg.VideoDownloadErrorDailyAttempts, a.cfg.VideoDownloadErrorAttempts)
	if err != nil {
		log.Printf("Archiver: list error retries: %v", err)
		return
	}
	a.dispatchBudgeted(ctx, state, a.withChannels(pending), SourceErrorReattempt, 0)
}

// liveRetryPass re-attempts videos that were still live at the last
// attempt, once the retry window has passed. The was-live flag is cleared
// up front so a failing retry re-flags it deliberately.
func (a *Archiver) liveRetryPass(ctx context.Context, state *tickState, now time.Time) {
	retryAfter := time.Duration(a.cfg.VideoLiveDownloadRetryHours) * time.Hour
	pending, err := a.videos.ListLiveRetryCandidates(now, retryAfter)
	if err != nil {
		log.Printf("Archiver: list live retries: %v", err)
		return
	}
	for _, v := range pending {
		v.SystemNotes.SetWasLiveAtLastAttempt(false)
		if err := a.videos.Save(v); err != nil {
			log.Printf("Archiver: clear live flag for %s: %v", v.ProviderID, err)
		}
	}
	a.dispatchBudgeted(ctx, state, a.withChannels(pending), SourceLiveReattempt, liveReattemptDelay)
}

// maxQualityLivenessPass requeries videos downloaded during or right after
// a live event. When the provider now reports a taller format than what we
// stored, the video is reset and re-queued at the better quality.
func (a *Archiver) maxQualityLivenessPass(ctx context.Context, state *tickState, now time.Time) {
	retryAfter := time.Duration(a.cfg.VideoLiveDownloadRetryHours) * time.Hour
	pending, err := a.videos.ListMaxQualityLivenessCandidates(now, retryAfter)
	if err != nil {
		log.Printf("Archiver: list max quality liveness: %v", err)
		return
	}
	for _, v := range pending {
		if state.counted() >= a.calc.DailyLimit || state.dispatched >= a.calc.PerTickLimit {
			return
		}
		details, err := a.client.VideoDetails(ctx, v.URL(), provider.VideoDetailsOptions{Quiet: true})
		if err != nil || details == nil || details.IsLive {
			continue
		}
		best := provider.MaxHeight(details.Formats)
		if best <= v.Quality {
			v.AtMaxQuality = true
			if err := a.videos.Save(v); err != nil {
				log.Printf("Archiver: save max quality for %s: %v", v.ProviderID, err)
			}
			continue
		}
		v.SystemNotes.MarkMaxQualityUpgraded(now)
		if err := a.videos.Save(v); err != nil {
			log.Printf("Archiver: save upgrade marker for %s: %v", v.ProviderID, err)
			continue
		}
		if err := a.videos.Delete(v.ID, true, true); err != nil {
			log.Printf("Archiver: reset %s for upgrade: %v", v.ProviderID, err)
			continue
		}
		if err := a.dispatch.DispatchDownload(v, SourceMaxQuality, "", 0); err != nil {
			log.Printf("Archiver: dispatch upgrade for %s: %v", v.ProviderID, err)
			continue
		}
		state.dispatched++
	}
}

// dispatchBudgeted runs the budget calculator over the candidates, then
// walks them in order dispatching the eligible ones until the take is
// spent. Eligibility is re-checked authoritatively right before dispatch.
func (a *Archiver) dispatchBudgeted(ctx context.Context, state *tickState,
	candidates []eligibility.Candidate, source string, countdown time.Duration) {
	if len(candidates) == 0 {
		return
	}

	budgetCandidates := make([]budget.Candidate, len(candidates))
	for i, c := range candidates {
		budgetCandidates[i] = budget.Candidate{ID: c.Video.ProviderID, Duration: c.Video.Duration}
	}
	take := a.calc.Take(state.counted(), budgetCandidates)
	if remaining := a.calc.PerTickLimit - state.dispatched; take > remaining {
		take = remaining
	}
	if take <= 0 {
		return
	}

	for _, c := range candidates {
		if take <= 0 {
			return
		}
		// Requested both decides and consumes force/skip credits, so it is
		// the only call made on the dispatch path.
		verdict := a.filter.Requested(ctx, c)
		if !verdict.Allowed {
			log.Printf("Archiver: %s refused at dispatch: %s", c.Video.ProviderID, verdict.Reason)
			continue
		}
		if err := a.dispatch.DispatchDownload(c.Video, source, "", countdown); err != nil {
			log.Printf("Archiver: dispatch %s: %v", c.Video.ProviderID, err)
			continue
		}
		state.dispatched++
		take--
	}
}

// withChannels attaches each video's channel so eligibility sees the full
// candidate context.
func (a *Archiver) withChannels(videos []*models.Video) []eligibility.Candidate {
	candidates := make([]eligibility.Candidate, 0, len(videos))
	for _, v := range videos {
		c := eligibility.Candidate{Video: v}
		if v.ChannelID != nil {
			if ch, err := a.channels.GetByID(*v.ChannelID); err == nil {
				c.Channel = ch
			}
		}
		candidates = append(candidates, c)
	}
	return candidates
}
