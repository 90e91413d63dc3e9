package provider

import (
	"errors"
	"strings"
)

// ErrorClass buckets provider failures by how the engine reacts to them.
type ErrorClass string

const (
	// ClassUnavailable covers network and 5xx failures; retried with backoff.
	ClassUnavailable ErrorClass = "provider_unavailable"
	// ClassBlocked marks region or uploader blocks; no retry.
	ClassBlocked ErrorClass = "provider_blocked"
	// ClassPrivate marks private videos; no retry.
	ClassPrivate ErrorClass = "provider_private"
	// ClassUnavailableItem marks "video unavailable"; no retry.
	ClassUnavailableItem ErrorClass = "provider_unavailable_item"
	// ClassDeleted marks deleted/copyright/terminated items; no retry.
	ClassDeleted ErrorClass = "provider_deleted"
	// ClassAgeGated marks sign-in-to-confirm-age items; no retry.
	ClassAgeGated ErrorClass = "provider_age_gated"
	// ClassLiveEvent marks not-yet-started live events; rescheduled.
	ClassLiveEvent ErrorClass = "provider_live_event"
	// ClassUnknown is anything unrecognized; retried with backoff.
	ClassUnknown ErrorClass = "provider_unknown"
)

// Error is a classified provider failure.
type Error struct {
	Class   ErrorClass
	Message string
}

func (e *Error) Error() string {
	return string(e.Class) + ": " + e.Message
}

// Classify maps a provider error message onto the taxonomy.
func Classify(message string) *Error {
	lower := strings.ToLower(message)
	class := ClassUnknown
	switch {
	case contains(lower, "blocked in your country", "uploader has not made this video available"):
		class = ClassBlocked
	case contains(lower, "this video is private", "private video"):
		class = ClassPrivate
	case contains(lower, "video unavailable"):
		class = ClassUnavailableItem
	case contains(lower,
		"this video has been removed",
		"copyright claim",
		"account associated with this video has been terminated",
		"video is no longer available",
		"harassment and bullying"):
		class = ClassDeleted
	case contains(lower, "sign in to confirm your age"):
		class = ClassAgeGated
	case contains(lower, "this live event will start in", "premieres in"):
		class = ClassLiveEvent
	case contains(lower, "unable to download", "connection", "timed out", "http error 5"):
		class = ClassUnavailable
	}
	return &Error{Class: class, Message: message}
}

// ClassOf extracts the error class, defaulting to unknown.
func ClassOf(err error) ErrorClass {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ClassUnknown
}

// Retryable reports whether the engine should retry with backoff.
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassUnavailable, ClassUnknown:
		return true
	}
	return false
}

// ChannelGone reports whether the message indicates a channel-level
// terminal state and which channel status applies.
func ChannelGone(message string) (status string, ok bool) {
	lower := strings.ToLower(message)
	switch {
	case contains(lower, "account has been terminated", "channel has been terminated"):
		return "terminated", true
	case contains(lower, "channel has been removed", "account has been removed"):
		return "removed", true
	case contains(lower, "channel does not exist", "404: not found", "this channel is not available"):
		return "no_longer_exists", true
	}
	return "", false
}

func contains(haystack string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}
