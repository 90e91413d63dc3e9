// Package eligibility decides whether a video may be downloaded right now.
// The predicates run in a fixed order and short-circuit on the first
// decisive verdict, mirroring how the archiver ranks candidates.
package eligibility

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clipvault/clipvault/internal/locks"
	"github.com/clipvault/clipvault/internal/models"
)

// BlockChecker answers whether a provider id is on the denylist.
type BlockChecker interface {
	IsBlocked(providerID string) (bool, error)
}

// ErrorCounter exposes the per-video download error counts.
type ErrorCounter interface {
	CountForVideoSince(videoID uuid.UUID, since time.Time) (int, error)
	CountForVideo(videoID uuid.UUID) (int, error)
}

// CounterStore mutates the channel force/skip credits atomically.
type CounterStore interface {
	DecrementForceNextDownloads(id uuid.UUID) (bool, error)
	DecrementSkipNextDownloads(id uuid.UUID) (bool, error)
}

// Filter is the eligibility predicate layer.
type Filter struct {
	Locks    locks.Registry
	Blocked  BlockChecker
	Errors   ErrorCounter
	Counters CounterStore

	DailyErrorCap int
	HardErrorCap  int

	now func() time.Time
}

// New builds a filter with the given error caps.
func New(reg locks.Registry, blocked BlockChecker, errors ErrorCounter, counters CounterStore, dailyCap, hardCap int) *Filter {
	return &Filter{
		Locks:    reg,
		Blocked:  blocked,
		Errors:   errors,
		Counters: counters,

		DailyErrorCap: dailyCap,
		HardErrorCap:  hardCap,
		now:           time.Now,
	}
}

// Candidate bundles a video with the scope it was enumerated from.
type Candidate struct {
	Video    *models.Video
	Channel  *models.Channel  // may be nil
	Playlist *models.Playlist // set when enumerated via a playlist
}

// Verdict explains an eligibility decision.
type Verdict struct {
	Allowed bool
	Reason  string
}

func reject(reason string) Verdict { return Verdict{Allowed: false, Reason: reason} }
func accept(reason string) Verdict { return Verdict{Allowed: true, Reason: reason} }

// Check is the pure entry point used while ranking; it never mutates
// counters.
func (f *Filter) Check(ctx context.Context, c Candidate) Verdict {
	return f.evaluate(ctx, c, false)
}

// Requested is the authoritative entry point called immediately before
// dispatch; it consumes force/skip credits.
func (f *Filter) Requested(ctx context.Context, c Candidate) Verdict {
	return f.evaluate(ctx, c, true)
}

func (f *Filter) evaluate(ctx context.Context, c Candidate, consume bool) Verdict {
	v := c.Video

	if v.HasFile() {
		return reject("already downloaded")
	}
	if f.Locks != nil && f.Locks.IsHeld(ctx, "Video", v.ID.String(), "processing") {
		return reject("processing lock held")
	}
	if f.Blocked != nil {
		if blocked, err := f.Blocked.IsBlocked(v.ProviderID); err == nil && blocked {
			return reject("provider id blocked")
		}
	}

	forced, viaCounter := f.forceRoute(c)
	if v.PrivacyStatus != models.PrivacyPublic && !forced {
		return reject("privacy status " + string(v.PrivacyStatus))
	}
	if f.atMaxDownloadErrors(v.ID) {
		log.Printf("Eligibility: video %s at max daily errors", v.ProviderID)
		return reject("at max daily errors")
	}
	if forced {
		if consume && viaCounter {
			if _, err := f.Counters.DecrementForceNextDownloads(c.Channel.ID); err != nil {
				log.Printf("Eligibility: force credit decrement for %s: %v", c.Channel.Name, err)
			}
		}
		return accept("forced")
	}

	if c.Channel != nil {
		if c.Channel.SkipNextDownloads > 0 {
			if consume {
				if _, err := f.Counters.DecrementSkipNextDownloads(c.Channel.ID); err != nil {
					log.Printf("Eligibility: skip credit decrement for %s: %v", c.Channel.Name, err)
				}
			}
			return reject("skip credit consumed")
		}
		if c.Channel.TitleSkipMatch(v.Title) {
			return reject("title skip match")
		}
		min, max := c.Channel.DurationBounds(v.Kind())
		if min > 0 && v.Duration < min {
			return reject("duration below minimum")
		}
		if max > 0 && v.Duration > max {
			return reject("duration above maximum")
		}
	}

	if c.Playlist != nil && c.Playlist.RestrictToAssignedChannel {
		if c.Playlist.ChannelID == nil || v.ChannelID == nil || *c.Playlist.ChannelID != *v.ChannelID {
			return reject("outside playlist's assigned channel")
		}
	}

	return accept("eligible")
}

// forceRoute checks the three force routes. Only the channel-counter route
// consumes a credit; a video-level force or a title-force match leaves the
// counter alone. The caller consumes the credit on the accept path so a
// rejection never burns one.
func (f *Filter) forceRoute(c Candidate) (forced, viaCounter bool) {
	if c.Video.ForceDownload {
		return true, false
	}
	if c.Channel == nil {
		return false, false
	}
	if c.Channel.TitleForceMatch(c.Video.Title) {
		return true, false
	}
	if c.Channel.ForceNextDownloads > 0 {
		return true, true
	}
	return false, false
}

// atMaxDownloadErrors applies both the daily cap and the lifetime cap.
func (f *Filter) atMaxDownloadErrors(videoID uuid.UUID) bool {
	if f.Errors == nil {
		return false
	}
	now := f.now()
	daily, err := f.Errors.CountForVideoSince(videoID, now.Add(-24*time.Hour))
	if err == nil && f.DailyErrorCap > 0 && daily >= f.DailyErrorCap {
		return true
	}
	total, err := f.Errors.CountForVideo(videoID)
	if err == nil && f.HardErrorCap > 0 && total >= f.HardErrorCap {
		return true
	}
	return false
}
