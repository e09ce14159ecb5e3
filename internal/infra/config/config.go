package config

import (
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendMinIO = "minio"
	BackendLocal = "local"

	SecretNone = "none"
	SecretFile = "file"
	SecretAWS  = "aws"
)

type Shared struct {
	LogLevel string `yaml:"log_level"`

	Redis    Redis    `yaml:"redis"`
	MinIO    MinIO    `yaml:"minio"`
	NATS     NATS     `yaml:"nats"`
	Artifact Artifact `yaml:"artifact"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
}

type NATS struct {
	URL           string `yaml:"url"`
	QueueName     string `yaml:"queue_name"`
	MaxReconnects int    `yaml:"max_reconnects"`
	Subject       string `yaml:"subject"`
	Stream        string `yaml:"stream"`
}

type Artifact struct {
	Backend   string        `yaml:"backend"`
	LocalDir  string        `yaml:"local_dir"`
	Retention time.Duration `yaml:"retention"`
}

type Ingress struct {
	Shared `yaml:",inline"`

	Addr             string        `yaml:"addr"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	MaxClipDuration  time.Duration `yaml:"max_clip_duration"`
	DefaultBitrate   string        `yaml:"default_bitrate"`
	PresignDownloads bool          `yaml:"presign_downloads"`
	CORSOrigins      []string      `yaml:"cors_origins"`
}

type Distributor struct {
	Shared `yaml:",inline"`

	PoolSize        int           `yaml:"pool_size"`
	WorkDir         string        `yaml:"work_dir"`
	JobBudget       time.Duration `yaml:"job_budget"`
	TerminalReserve time.Duration `yaml:"terminal_reserve"`
	StaleGrace      time.Duration `yaml:"stale_grace"`
	RecordTTL       time.Duration `yaml:"record_ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`

	ConverterAddr string `yaml:"converter_addr"`
	YTDLPPath     string `yaml:"ytdlp_path"`
	FFmpegPath    string `yaml:"ffmpeg_path"`
	FFprobePath   string `yaml:"ffprobe_path"`

	Secret Secret `yaml:"secret"`
}

type Secret struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
	Name    string `yaml:"name"`
	Region  string `yaml:"region"`
}

type Converter struct {
	LogLevel string `yaml:"log_level"`

	Addr        string `yaml:"addr"`
	WorkDir     string `yaml:"work_dir"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
	MaxParallel int    `yaml:"max_parallel"`
}

func MustLoadIngress(path string) *Ingress {
	var cfg Ingress
	mustRead(path, &cfg)
	cfg.Shared.mustValidate()

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxClipDuration <= 0 {
		cfg.MaxClipDuration = 2 * time.Hour
	}
	if cfg.DefaultBitrate == "" {
		cfg.DefaultBitrate = "96k"
	}

	return &cfg
}

func MustLoadDistributor(path string) *Distributor {
	var cfg Distributor
	mustRead(path, &cfg)
	cfg.Shared.mustValidate()

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 2
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.JobBudget <= 0 {
		cfg.JobBudget = 15 * time.Minute
	}
	if cfg.TerminalReserve <= 0 {
		cfg.TerminalReserve = 30 * time.Second
	}
	if cfg.TerminalReserve >= cfg.JobBudget {
		log.Fatalf("config: terminal_reserve %s must be less than job_budget %s", cfg.TerminalReserve, cfg.JobBudget)
	}
	if cfg.StaleGrace <= 0 {
		cfg.StaleGrace = time.Minute
	}
	if cfg.RecordTTL <= 0 {
		cfg.RecordTTL = 2 * cfg.Artifact.Retention
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.YTDLPPath == "" {
		cfg.YTDLPPath = "yt-dlp"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}

	switch cfg.Secret.Backend {
	case "":
		cfg.Secret.Backend = SecretNone
	case SecretNone:
	case SecretFile:
		if cfg.Secret.Path == "" {
			log.Fatalf("config: secret.path is empty")
		}
	case SecretAWS:
		if cfg.Secret.Name == "" {
			log.Fatalf("config: secret.name is empty")
		}
	default:
		log.Fatalf("config: unknown secret.backend %q", cfg.Secret.Backend)
	}

	return &cfg
}

func MustLoadConverter(path string) *Converter {
	var cfg Converter
	mustRead(path, &cfg)

	if cfg.Addr == "" {
		cfg.Addr = ":50051"
	}
	if cfg.WorkDir == "" {
		log.Fatalf("config: work_dir is empty")
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 2
	}

	return &cfg
}

func mustRead(path string, out any) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("config: cannot read file %q: %v", path, err)
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		log.Fatalf("config: cannot unmarshal yaml: %v", err)
	}
}

func (s *Shared) mustValidate() {
	if s.Redis.Addr == "" {
		log.Fatalf("config: redis.addr is empty")
	}
	if s.NATS.Subject == "" {
		log.Fatalf("config: nats.subject is empty")
	}
	if s.NATS.Stream == "" {
		s.NATS.Stream = "AUDIO_CLIPS"
	}
	if s.Artifact.Retention <= 0 {
		log.Fatalf("config: artifact.retention must be positive, got %s", s.Artifact.Retention)
	}

	switch s.Artifact.Backend {
	case "", BackendMinIO:
		s.Artifact.Backend = BackendMinIO
		if s.MinIO.Endpoint == "" || s.MinIO.Bucket == "" {
			log.Fatalf("config: minio.endpoint and minio.bucket are required for the minio backend")
		}
	case BackendLocal:
		if s.Artifact.LocalDir == "" {
			log.Fatalf("config: artifact.local_dir is empty")
		}
	default:
		log.Fatalf("config: unknown artifact.backend %q", s.Artifact.Backend)
	}
}

// Level maps log_level to a slog level. Unknown values fall back to info.
func Level(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
