package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clipvault/clipvault/internal/config"
	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
	"github.com/clipvault/clipvault/internal/provider"
	"github.com/clipvault/clipvault/internal/repository"
)

// placeholderTitle matches the provider's stand-in title for videos it can
// no longer describe. Metadata carrying it is not trusted.
var placeholderTitle = regexp.MustCompile(`^youtube video #`)

// UpdateDetailsHandler refreshes one video's metadata from the provider
// and reconciles privacy status, formats, and the at-max-quality marker.
type UpdateDetailsHandler struct {
	videoRepo      *repository.VideoRepository
	annotationRepo *repository.AnnotationRepository
	client         provider.Client
	registry       locks.Registry
	queue          *Queue
	cfg            *config.Config
}

func NewUpdateDetailsHandler(videoRepo *repository.VideoRepository, annotationRepo *repository.AnnotationRepository,
	client provider.Client, registry locks.Registry, queue *Queue, cfg *config.Config) *UpdateDetailsHandler {
	return &UpdateDetailsHandler{
		videoRepo: videoRepo, annotationRepo: annotationRepo,
		client: client, registry: registry, queue: queue, cfg: cfg,
	}
}

func (h *UpdateDetailsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p UpdateDetailsPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	videoID, _ := uuid.Parse(p.VideoID)
	video, err := h.videoRepo.GetByID(videoID)
	if err != nil {
		return fmt.Errorf("get video: %w", err)
	}

	token, err := h.registry.Acquire(ctx, "Video", video.ID.String(), "updating", 30*time.Minute)
	if err != nil {
		log.Printf("UpdateDetails: %s updating lock held, skipping", video.ProviderID)
		return nil
	}
	defer h.registry.Release(context.Background(), token)

	now := time.Now()
	video.PrivacyStatusChecks++
	video.LastPrivacyStatusCheck = &now

	opts := provider.VideoDetailsOptions{Quiet: true}
	if video.NeedsCookies {
		opts.CookiesFile = h.cfg.CookiesFile
	}
	details, err := h.client.VideoDetails(ctx, video.URL(), opts)
	if err != nil {
		h.applyErrorClass(video, err)
		if p.Mode == "auto" {
			video.SystemNotes.LogUpdateVideoDetails(now, "error: "+string(provider.ClassOf(err)))
		}
		if saveErr := h.videoRepo.Save(video); saveErr != nil {
			return fmt.Errorf("save after provider error: %w", saveErr)
		}
		log.Printf("UpdateDetails: %s provider error: %v", video.ProviderID, err)
		return nil
	}

	result := h.apply(video, details, now)
	if result == "ok" {
		h.syncChapters(video, details, now)
	}
	if p.Mode == "auto" {
		video.SystemNotes.LogUpdateVideoDetails(now, result)
	}
	if err := h.videoRepo.Save(video); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	log.Printf("UpdateDetails: %s refreshed (%s)", video.ProviderID, result)

	if p.DownloadFile && !video.HasFile() {
		if err := h.queue.DispatchDownload(video, "Manual - Update and Download", "", 0); err != nil {
			log.Printf("UpdateDetails: download dispatch for %s: %v", video.ProviderID, err)
		}
	}
	return nil
}

// apply folds fresh provider metadata into the video. Title and description
// honor their per-field locks, and untrusted placeholder metadata is
// dropped while the privacy transition it implies is kept.
func (h *UpdateDetailsHandler) apply(video *models.Video, details *provider.VideoDetails, now time.Time) string {
	lowerTitle := strings.ToLower(details.Title)
	switch {
	case lowerTitle == "[private video]":
		video.PrivacyStatus = models.PrivacyPrivate
		return "private"
	case lowerTitle == "[deleted video]":
		video.PrivacyStatus = models.PrivacyDeleted
		return "deleted"
	case placeholderTitle.MatchString(lowerTitle):
		// Metadata stub; keep whatever we already have.
		return "placeholder"
	}

	if !video.TitleLocked && details.Title != "" {
		video.Title = details.Title
	}
	if !video.DescriptionLocked {
		video.Description = details.Description
	}
	if details.Duration > 0 {
		video.Duration = details.Duration
	}
	if details.UploadDate != "" {
		if d, err := time.Parse("20060102", details.UploadDate); err == nil {
			video.UploadDate = &d
		}
	}
	if details.WasLive || details.IsLive {
		video.SetKind(models.KindLivestream)
	}
	video.PrivacyStatus = privacyFromAvailability(details.Availability)

	h.reconcileFormats(video, details.Formats, now)
	return "ok"
}

// reconcileFormats replaces the stored format list and recomputes the
// at-max-quality marker for downloaded videos. A regression from at-max
// (the provider now reports a taller format) clears the marker and stamps
// the change so the quality upgrade scan picks the video up.
func (h *UpdateDetailsHandler) reconcileFormats(video *models.Video, formats []provider.Format, now time.Time) {
	if len(formats) == 0 {
		return
	}
	list := make(models.Formats, 0, len(formats))
	for _, f := range formats {
		list = append(list, models.Format{
			FormatID:   f.FormatID,
			FormatNote: f.FormatNote,
			Ext:        f.Ext,
			Height:     f.Height,
			Width:      f.Width,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
		})
	}
	video.DlpFormats = list
	if video.Quality == 0 {
		video.Quality = list.MaxHeight()
	}

	if !video.HasFile() {
		return
	}
	atMax := video.AtReportedMaxQuality()
	if video.AtMaxQuality && !atMax {
		video.SystemNotes.MarkUVDMaxQualityChanged(now)
	}
	video.AtMaxQuality = atMax
}

// maxSponsorblockLoads caps how many times SponsorBlock segments are
// re-applied to one video; after that the stored skips are left alone.
const maxSponsorblockLoads = 3

// syncChapters mirrors the provider's chapter markers onto the video:
// ordinary chapters become highlights, SponsorBlock-marked segments become
// duration skips. The sets are replaced wholesale so removals propagate.
// The caller saves the video afterwards, persisting the load marker.
func (h *UpdateDetailsHandler) syncChapters(video *models.Video, details *provider.VideoDetails, now time.Time) {
	if len(details.Chapters) == 0 {
		return
	}
	highlights, skips := partitionChapters(details.Chapters)
	if err := h.annotationRepo.ReplaceHighlights(video.ID, highlights); err != nil {
		log.Printf("UpdateDetails: replace highlights for %s: %v", video.ProviderID, err)
	}
	if sponsorblockExhausted(video) {
		return
	}
	if err := h.annotationRepo.ReplaceDurationSkips(video.ID, skips); err != nil {
		log.Printf("UpdateDetails: replace duration skips for %s: %v", video.ProviderID, err)
		return
	}
	if len(skips) > 0 {
		video.SystemNotes.MarkSponsorblockLoaded(now)
	}
}

// partitionChapters splits the provider's chapter list into highlights and
// SponsorBlock-derived duration skips.
func partitionChapters(chapters []provider.Chapter) ([]*models.Highlight, []*models.DurationSkip) {
	var highlights []*models.Highlight
	var skips []*models.DurationSkip
	for _, c := range chapters {
		if strings.HasPrefix(c.Title, "[SponsorBlock]") {
			skips = append(skips, &models.DurationSkip{Start: int(c.Start), End: int(c.End)})
			continue
		}
		highlights = append(highlights, &models.Highlight{Start: int(c.Start), End: int(c.End), Note: c.Title})
	}
	return highlights, skips
}

// sponsorblockExhausted reports whether the video already spent its
// SponsorBlock reload allowance.
func sponsorblockExhausted(video *models.Video) bool {
	return video.SystemNotes.SponsorblockLoadCount() >= maxSponsorblockLoads
}

func (h *UpdateDetailsHandler) applyErrorClass(video *models.Video, err error) {
	switch provider.ClassOf(err) {
	case provider.ClassPrivate:
		video.PrivacyStatus = models.PrivacyPrivate
	case provider.ClassBlocked:
		video.PrivacyStatus = models.PrivacyBlocked
	case provider.ClassDeleted:
		video.PrivacyStatus = models.PrivacyDeleted
	case provider.ClassUnavailableItem:
		video.PrivacyStatus = models.PrivacyUnavailable
	}
}

// privacyFromAvailability maps the provider's availability strings onto the
// privacy enum; anything unrecognized counts as public.
func privacyFromAvailability(availability string) models.PrivacyStatus {
	switch availability {
	case "private":
		return models.PrivacyPrivate
	case "unlisted":
		return models.PrivacyUnlisted
	case "needs_auth", "premium_only", "subscriber_only":
		return models.PrivacyUnavailable
	default:
		return models.PrivacyPublic
	}
}
