// Package config loads pipeline configuration from the environment,
// following jonkmatsumo-resume-customizer's pattern of loading a local
// .env file (via joho/godotenv) before falling back to os.Getenv so a
// developer's shell and an operator's systemd EnvironmentFile both work
// unmodified.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting the pipeline's processes
// consume. Not every process needs every field; each cmd/ binary reads
// only the subset relevant to its role.
type Config struct {
	StorageRoot string

	IsLocal        bool
	FileServerHost string
	FileServerPort int
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	PostgresDSN string
	RedisAddr   string
	RedisPassword string
	RedisDB     int

	RemoteBaseURL string // file server base URL, used when IS_LOCAL=false

	CalendarBaseURL    string
	CalendarUTCOffset  string // open question #1 in DESIGN.md: kept configurable, not hard-coded
	AgendaBaseURL      string

	DownloaderPath      string
	DownloaderToken     string
	FFmpegPath          string
	VideoHostBaseURL    string
	VideoHostToken      string
	LocationTag         string
	DiarizerPath        string
	DiarizeScratchRoot  string
	DiarizeScratchWorldWritable bool

	PlaylistMappings map[string]string // <NAME> -> configured identifier, built from PLAYLIST_<NAME> env vars

	DownloadWorkerConcurrency int
	ExtractWorkerConcurrency  int
	UploadWorkerConcurrency   int
	DiarizeWorkerConcurrency  int

	QueueMaxRetries  int
	QueueRetryBase   time.Duration
	QueueCompletedCap int64
	QueueFailedCap    int64

	DrainDeadline time.Duration

	MetricsAddr string
}

// Load reads configuration from the environment, loading .env first if
// present (ignoring its absence, matching godotenv's conventional use in
// development).
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		StorageRoot: valueOrDefault(os.Getenv("STORAGE_ROOT"), "./data"),

		IsLocal:        strings.EqualFold(os.Getenv("IS_LOCAL"), "true"),
		FileServerHost: valueOrDefault(os.Getenv("FILE_SERVER_HOST"), "localhost"),
		FileServerPort: parseInt(os.Getenv("FILE_SERVER_PORT"), 8081),
		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:    strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		MinioBucket:    valueOrDefault(os.Getenv("MINIO_BUCKET"), "meeting-artifacts"),

		PostgresDSN:   valueOrDefault(os.Getenv("POSTGRES_DSN"), "postgres://localhost:5432/meetingpipe"),
		RedisAddr:     valueOrDefault(os.Getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseInt(os.Getenv("REDIS_DB"), 0),

		RemoteBaseURL: os.Getenv("REMOTE_BASE_URL"),

		CalendarBaseURL:       os.Getenv("CALENDAR_BASE_URL"),
		CalendarUTCOffset:     valueOrDefault(os.Getenv("CALENDAR_UTC_OFFSET"), "-04:00"),
		AgendaBaseURL:         os.Getenv("AGENDA_BASE_URL"),

		DownloaderPath:  valueOrDefault(os.Getenv("DOWNLOADER_PATH"), "video-download"),
		DownloaderToken: os.Getenv("DOWNLOADER_TOKEN"),
		FFmpegPath:      valueOrDefault(os.Getenv("FFMPEG_PATH"), "ffmpeg"),
		VideoHostBaseURL: os.Getenv("VIDEO_HOST_BASE_URL"),
		VideoHostToken:   os.Getenv("VIDEO_HOST_TOKEN"),
		LocationTag:     valueOrDefault(os.Getenv("LOCATION_TAG"), "City Hall"),

		DiarizerPath:                valueOrDefault(os.Getenv("DIARIZER_PATH"), "diarize-tool"),
		DiarizeScratchRoot:          valueOrDefault(os.Getenv("DIARIZE_SCRATCH_ROOT"), os.TempDir()),
		DiarizeScratchWorldWritable: strings.EqualFold(os.Getenv("DIARIZE_SCRATCH_WORLD_WRITABLE"), "true"),

		DownloadWorkerConcurrency: parseInt(os.Getenv("DOWNLOAD_WORKER_CONCURRENCY"), 2),
		ExtractWorkerConcurrency:  parseInt(os.Getenv("EXTRACT_WORKER_CONCURRENCY"), 3),
		UploadWorkerConcurrency:   parseInt(os.Getenv("UPLOAD_WORKER_CONCURRENCY"), 1),
		DiarizeWorkerConcurrency:  parseInt(os.Getenv("DIARIZE_WORKER_CONCURRENCY"), 1),

		QueueMaxRetries:   parseInt(os.Getenv("QUEUE_MAX_RETRIES"), 3),
		QueueRetryBase:    parseDuration(os.Getenv("QUEUE_RETRY_BASE"), 2*time.Second),
		QueueCompletedCap: int64(parseInt(os.Getenv("QUEUE_COMPLETED_CAP"), 100)),
		QueueFailedCap:    int64(parseInt(os.Getenv("QUEUE_FAILED_CAP"), 500)),

		DrainDeadline: parseDuration(os.Getenv("DRAIN_DEADLINE"), 30*time.Second),

		MetricsAddr: valueOrDefault(os.Getenv("METRICS_ADDR"), ":9090"),

		PlaylistMappings: loadPlaylistMappings(os.Environ()),
	}

	return cfg, nil
}

// RequireFatal exits the process with a structured configuration-error
// line when a required credential is missing: the worker refuses to
// start rather than running degraded.
func RequireFatal(name, value string) {
	if strings.TrimSpace(value) == "" {
		fmt.Fprintf(os.Stderr, `{"message":"configuration error","step":"startup","missing":%q}`+"\n", name)
		os.Exit(1)
	}
}

// loadPlaylistMappings extracts PLAYLIST_<NAME>=<identifier> pairs. The
// regex side of the upload worker's mapping table lives in code
// (internal/playlist); this only captures which identifiers are actually
// configured so unset env vars drop their mapping.
func loadPlaylistMappings(environ []string) map[string]string {
	out := make(map[string]string)
	const prefix = "PLAYLIST_"
	for _, kv := range environ {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := parts[0], parts[1]
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		if strings.TrimSpace(value) != "" {
			out[name] = value
		}
	}
	return out
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func parseInt(value string, fallback int) int {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
