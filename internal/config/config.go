package config

import (
	"database/sql"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cast"
)

type Config struct {
	DatabaseURL string
	RedisAddr   string
	DataDir     string
	CacheDir    string
	CookiesFile string
	ProxyURL    string

	YtdlpPath  string
	FFmpegPath string

	NotificationURL string

	// Admission control.
	AutomatedDownloadsDailyLimit         int
	AutomatedDownloadsPerTaskLimit       int
	AutomatedDownloadsDurationLimitSplit int
	AutomatedQualityUpgradesPerTaskLimit int

	// Error budgets and retry windows.
	VideoDownloadErrorWaitPeriodMinutes int
	VideoDownloadErrorDailyAttempts     int
	VideoDownloadErrorAttempts          int
	VideoLiveDownloadRetryHours         int

	// Rescan block windows.
	ChannelBlockRescanWindowHours  int
	PlaylistBlockRescanWindowHours int

	// Metadata refresh.
	PrivacyStatusCheckMinAgeDays int
	ForceCheckPerCall            int

	// Provider throttles.
	RequestsRateLimit         float64 // requests per second
	DownloadSpeedRateLimitKBs int

	// Behavior toggles.
	ShortsForceMaxQuality bool
	DeleteDownloadCache   bool
	SaveInfoJSONFile      bool
	CookiesAlwaysRequired bool
	CookiesApplyOnRetries bool
	RedisEnabled          bool
}

func Load() *Config {
	return &Config{
		DatabaseURL: env("DATABASE_URL", "postgres://clipvault:clipvault@db:5432/clipvault?sslmode=disable"),
		RedisAddr:   env("REDIS_ADDR", "redis:6379"),
		DataDir:     env("DATA_DIR", "/data"),
		CacheDir:    env("CACHE_DIR", "/cache"),
		CookiesFile: env("COOKIES_FILE", ""),
		ProxyURL:    env("PROXY_URL", ""),

		YtdlpPath:  env("YTDLP_PATH", "yt-dlp"),
		FFmpegPath: env("FFMPEG_PATH", "ffmpeg"),

		NotificationURL: env("NOTIFICATION_URL", ""),

		AutomatedDownloadsDailyLimit:         envInt("AUTOMATED_DOWNLOADS_DAILY_LIMIT", 400),
		AutomatedDownloadsPerTaskLimit:       envInt("AUTOMATED_DOWNLOADS_PER_TASK_LIMIT", 4),
		AutomatedDownloadsDurationLimitSplit: envInt("AUTOMATED_DOWNLOADS_DURATION_LIMIT_SPLIT", 5400),
		AutomatedQualityUpgradesPerTaskLimit: envInt("AUTOMATED_QUALITY_UPGRADES_PER_TASK_LIMIT", 2),

		VideoDownloadErrorWaitPeriodMinutes: envInt("VIDEO_DOWNLOAD_ERROR_WAIT_PERIOD", 60),
		VideoDownloadErrorDailyAttempts:     envInt("VIDEO_DOWNLOAD_ERROR_DAILY_ATTEMPTS", 5),
		VideoDownloadErrorAttempts:          envInt("VIDEO_DOWNLOAD_ERROR_ATTEMPTS", 70),
		VideoLiveDownloadRetryHours:         envInt("VIDEO_LIVE_DOWNLOAD_RETRY_HOURS", 6),

		ChannelBlockRescanWindowHours:  envInt("CHANNEL_BLOCK_RESCAN_WINDOW_HOURS", 2),
		PlaylistBlockRescanWindowHours: envInt("PLAYLIST_BLOCK_RESCAN_WINDOW_HOURS", 2),

		PrivacyStatusCheckMinAgeDays: envInt("PRIVACY_STATUS_CHECK_MIN_AGE", 30),
		ForceCheckPerCall:            envInt("FORCE_CHECK_PER_CALL", 0),

		RequestsRateLimit:         envFloat("REQUESTS_RATE_LIMIT", 1),
		DownloadSpeedRateLimitKBs: envInt("DOWNLOAD_SPEED_RATE_LIMIT", 0),

		ShortsForceMaxQuality: envBool("SHORTS_FORCE_MAX_QUALITY", true),
		DeleteDownloadCache:   envBool("DELETE_DOWNLOAD_CACHE", true),
		SaveInfoJSONFile:      envBool("SAVE_INFO_JSON_FILE", true),
		CookiesAlwaysRequired: envBool("COOKIES_ALWAYS_REQUIRED", false),
		CookiesApplyOnRetries: envBool("COOKIES_APPLY_ON_RETRIES", false),
		RedisEnabled:          envBool("REDIS_ENABLED", false),
	}
}

// MergeFromDB overlays values from the settings table, when present. A
// missing table is not an error so fresh databases boot cleanly.
func (c *Config) MergeFromDB(db *sql.DB) {
	rows, err := db.Query("SELECT key, value FROM settings")
	if err != nil {
		log.Printf("config: skipping DB merge: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		switch key {
		case "notification_url":
			c.NotificationURL = value
		case "automated_downloads_daily_limit":
			c.AutomatedDownloadsDailyLimit = cast.ToInt(value)
		case "automated_downloads_per_task_limit":
			c.AutomatedDownloadsPerTaskLimit = cast.ToInt(value)
		case "automated_downloads_duration_limit_split":
			c.AutomatedDownloadsDurationLimitSplit = cast.ToInt(value)
		case "video_download_error_wait_period":
			c.VideoDownloadErrorWaitPeriodMinutes = cast.ToInt(value)
		case "video_download_error_daily_attempts":
			c.VideoDownloadErrorDailyAttempts = cast.ToInt(value)
		case "delete_download_cache":
			c.DeleteDownloadCache = cast.ToBool(value)
		case "save_info_json_file":
			c.SaveInfoJSONFile = cast.ToBool(value)
		case "shorts_force_max_quality":
			c.ShortsForceMaxQuality = cast.ToBool(value)
		case "requests_rate_limit":
			c.RequestsRateLimit = cast.ToFloat64(value)
		case "download_speed_rate_limit":
			c.DownloadSpeedRateLimitKBs = cast.ToInt(value)
		}
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
