package provider

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    ErrorClass
	}{
		{"ERROR: This video is blocked in your country", ClassBlocked},
		{"The uploader has not made this video available in your country", ClassBlocked},
		{"ERROR: This video is private", ClassPrivate},
		{"Private video. Sign in if you've been granted access", ClassPrivate},
		{"ERROR: Video unavailable", ClassUnavailableItem},
		{"This video has been removed by the uploader", ClassDeleted},
		{"Video unavailable. This video is no longer available due to a copyright claim", ClassUnavailableItem},
		{"The account associated with this video has been terminated", ClassDeleted},
		{"Sign in to confirm your age", ClassAgeGated},
		{"ERROR: This live event will start in 2 hours", ClassLiveEvent},
		{"Premieres in 45 minutes", ClassLiveEvent},
		{"unable to download webpage: HTTP Error 503", ClassUnavailable},
		{"The read operation timed out", ClassUnavailable},
		{"something entirely new", ClassUnknown},
	}
	for _, tt := range tests {
		err := Classify(tt.message)
		assert.Equal(t, tt.want, err.Class, tt.message)
	}
}

func TestClassifyIsCaseInsensitive(t *testing.T) {
	assert.Equal(t, ClassPrivate, Classify("THIS VIDEO IS PRIVATE").Class)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Classify("connection reset by peer")))
	assert.True(t, Retryable(Classify("brand new failure mode")))
	assert.False(t, Retryable(Classify("This video is private")))
	assert.False(t, Retryable(Classify("This live event will start in 3 hours")))
}

func TestClassOfUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("download abc: %w", Classify("Video unavailable"))
	assert.Equal(t, ClassUnavailableItem, ClassOf(wrapped))
	assert.Equal(t, ClassUnknown, ClassOf(errors.New("plain error")))
}

func TestChannelGone(t *testing.T) {
	tests := []struct {
		message string
		status  string
		ok      bool
	}{
		{"This account has been terminated", "terminated", true},
		{"This channel has been removed", "removed", true},
		{"This channel does not exist", "no_longer_exists", true},
		{"HTTP Error 404: Not Found", "no_longer_exists", true},
		{"some transient failure", "", false},
	}
	for _, tt := range tests {
		status, ok := ChannelGone(tt.message)
		assert.Equal(t, tt.ok, ok, tt.message)
		assert.Equal(t, tt.status, status, tt.message)
	}
}
