package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsWhenUnset(t *testing.T) {
	for _, key := range []string{
		"STORAGE_ROOT", "IS_LOCAL", "FILE_SERVER_PORT", "CALENDAR_UTC_OFFSET",
		"DOWNLOADER_PATH", "FFMPEG_PATH", "LOCATION_TAG", "DIARIZER_PATH",
		"DOWNLOAD_WORKER_CONCURRENCY", "QUEUE_MAX_RETRIES", "QUEUE_RETRY_BASE",
		"METRICS_ADDR",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "./data", cfg.StorageRoot)
	assert.False(t, cfg.IsLocal)
	assert.Equal(t, 8081, cfg.FileServerPort)
	assert.Equal(t, "-04:00", cfg.CalendarUTCOffset)
	assert.Equal(t, "video-download", cfg.DownloaderPath)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "City Hall", cfg.LocationTag)
	assert.Equal(t, "diarize-tool", cfg.DiarizerPath)
	assert.Equal(t, 2, cfg.DownloadWorkerConcurrency)
	assert.Equal(t, 3, cfg.QueueMaxRetries)
	assert.Equal(t, 2*time.Second, cfg.QueueRetryBase)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
}

func TestLoad_OverridesFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE_ROOT", "/var/meetingpipe")
	t.Setenv("IS_LOCAL", "true")
	t.Setenv("DOWNLOAD_WORKER_CONCURRENCY", "7")
	t.Setenv("QUEUE_RETRY_BASE", "500ms")

	cfg, err := Load()
	assert.NoError(t, err)
	assert.Equal(t, "/var/meetingpipe", cfg.StorageRoot)
	assert.True(t, cfg.IsLocal)
	assert.Equal(t, 7, cfg.DownloadWorkerConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.QueueRetryBase)
}

func TestLoadPlaylistMappings_OnlyNonEmptyValuesKept(t *testing.T) {
	environ := []string{
		"PLAYLIST_CITY_COMMISSION=P1",
		"PLAYLIST_GENERAL_POLICY_COMMITTEE=",
		"UNRELATED_VAR=ignored",
		"malformed",
	}
	mappings := loadPlaylistMappings(environ)
	assert.Equal(t, map[string]string{"CITY_COMMISSION": "P1"}, mappings)
}

func TestParseInt_FallsBackOnInvalidValue(t *testing.T) {
	assert.Equal(t, 42, parseInt("not-a-number", 42))
	assert.Equal(t, 9, parseInt("9", 42))
	assert.Equal(t, 42, parseInt("", 42))
}

func TestParseDuration_FallsBackOnInvalidValue(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
	assert.Equal(t, 5*time.Second, parseDuration("5s", time.Minute))
}
