package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"dictakey/internal/domain"
)

// Config stores process configuration. Mutable user choices live in settings.
type Config struct {
	Audio       AudioConfig       `yaml:"audio"`
	Deepgram    DeepgramConfig    `yaml:"deepgram"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Whisper     WhisperConfig     `yaml:"whisper"`
	Enhancement EnhancementConfig `yaml:"enhancement"`
	HTTP        HTTPConfig        `yaml:"http"`
	Rules       RulesConfig       `yaml:"rules"`
	Session     SessionConfig     `yaml:"session"`
	Store       StoreConfig       `yaml:"store"`
	Settings    SettingsConfig    `yaml:"settings"`
	Shortcut    ShortcutConfig    `yaml:"shortcut"`
	Log         LogConfig         `yaml:"log"`

	Models  []domain.ModelRef `yaml:"models"`
	Prompts []domain.Prompt   `yaml:"prompts"`
}

type AudioConfig struct {
	Backend         string `yaml:"backend" env:"DICTAKEY_AUDIO_BACKEND" env-default:"ffmpeg"`
	RecorderCommand string `yaml:"recorder_command" env:"DICTAKEY_FFMPEG_COMMAND" env-default:"ffmpeg"`
	InputFormat     string `yaml:"input_format" env:"DICTAKEY_AUDIO_INPUT_FORMAT"`
	InputDevice     string `yaml:"input_device" env:"DICTAKEY_AUDIO_INPUT_DEVICE" env-default:"default"`
	SampleRate      int    `yaml:"sample_rate" env:"DICTAKEY_SAMPLE_RATE" env-default:"16000"`
	Channels        int    `yaml:"channels" env:"DICTAKEY_CHANNELS" env-default:"1"`
}

type DeepgramConfig struct {
	APIKey      string `yaml:"api_key" env:"DEEPGRAM_API_KEY"`
	APIBaseURL  string `yaml:"api_base" env:"DEEPGRAM_API_BASE" env-default:"https://api.deepgram.com/v1"`
	Model       string `yaml:"model" env:"DEEPGRAM_MODEL" env-default:"nova-2"`
	Language    string `yaml:"language" env:"DEEPGRAM_LANGUAGE"`
	SmartFormat bool   `yaml:"smart_format" env:"DEEPGRAM_SMART_FORMAT" env-default:"true"`
}

type OpenAIConfig struct {
	APIKey             string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL            string        `yaml:"api_base" env:"OPENAI_API_BASE" env-default:"https://api.openai.com/v1"`
	TranscriptionModel string        `yaml:"transcription_model" env:"DICTAKEY_OPENAI_TRANSCRIPTION_MODEL" env-default:"whisper-1"`
	TextPath           string        `yaml:"text_path" env:"DICTAKEY_OPENAI_TEXT_PATH" env-default:"text"`
	MaxRetries         int           `yaml:"max_retries" env:"DICTAKEY_OPENAI_MAX_RETRIES" env-default:"3"`
	RetryBaseDelay     time.Duration `yaml:"retry_base_delay" env:"DICTAKEY_OPENAI_RETRY_DELAY" env-default:"500ms"`
}

type WhisperConfig struct {
	ServerCommand  string        `yaml:"server_command" env:"DICTAKEY_WHISPER_SERVER"`
	CLICommand     string        `yaml:"cli_command" env:"DICTAKEY_WHISPER_CLI" env-default:"whisper-cli"`
	ModelPath      string        `yaml:"model_path" env:"DICTAKEY_WHISPER_MODEL"`
	Threads        int           `yaml:"threads" env:"DICTAKEY_WHISPER_THREADS"`
	StartupTimeout time.Duration `yaml:"startup_timeout" env:"DICTAKEY_WHISPER_STARTUP_TIMEOUT" env-default:"30s"`
	KeepWarm       time.Duration `yaml:"keep_warm" env:"DICTAKEY_MODEL_KEEP_WARM" env-default:"2m"`
}

type EnhancementConfig struct {
	Model string `yaml:"model" env:"DICTAKEY_ENHANCEMENT_MODEL" env-default:"gpt-4o-mini"`
}

type HTTPConfig struct {
	Timeout            time.Duration `yaml:"timeout" env:"DICTAKEY_HTTP_TIMEOUT" env-default:"60s"`
	EnableHTTP2        bool          `yaml:"enable_http2" env:"DICTAKEY_HTTP2" env-default:"true"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify" env:"DICTAKEY_INSECURE_SKIP_VERIFY"`
}

type RulesConfig struct {
	Path           string `yaml:"path" env:"DICTAKEY_RULES_FILE"`
	IterationLimit int    `yaml:"iteration_limit" env:"DICTAKEY_RULE_ITERATION_LIMIT" env-default:"30"`
	Watch          bool   `yaml:"watch" env:"DICTAKEY_RULES_WATCH" env-default:"true"`
}

type SessionConfig struct {
	ChunkSize     int           `yaml:"chunk_size" env:"DICTAKEY_AUDIO_CHUNK_SIZE" env-default:"4096"`
	TempDir       string        `yaml:"temp_dir" env:"DICTAKEY_TEMP_DIR"`
	RecordingsDir string        `yaml:"recordings_dir" env:"DICTAKEY_RECORDINGS_DIR"`
	Cooldown      time.Duration `yaml:"shortcut_cooldown" env:"DICTAKEY_SHORTCUT_COOLDOWN" env-default:"500ms"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver" env:"DICTAKEY_STORE" env-default:"jsonl"`
	Path          string `yaml:"path" env:"DICTAKEY_HISTORY_FILE"`
	DSN           string `yaml:"dsn" env:"DICTAKEY_DATABASE_URL"`
	RetentionDays int    `yaml:"retention_days" env:"DICTAKEY_AUDIO_RETENTION_DAYS"`
}

type SettingsConfig struct {
	Path string `yaml:"path" env:"DICTAKEY_SETTINGS_FILE"`
}

type ShortcutConfig struct {
	Toggle string `yaml:"toggle" env:"DICTAKEY_TOGGLE_SHORTCUT" env-default:"ctrl+shift+space"`
}

type LogConfig struct {
	Level     string `yaml:"level" env:"DICTAKEY_LOG_LEVEL" env-default:"info"`
	JSON      bool   `yaml:"json" env:"DICTAKEY_LOG_JSON"`
	AddSource bool   `yaml:"add_source" env:"DICTAKEY_LOG_SOURCE"`
}

// Load reads the YAML config file when present and applies environment overrides.
func Load() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, errors.New("could not determine home directory")
	}
	configDir := filepath.Join(home, ".config", "dictakey")
	dataDir := filepath.Join(home, ".local", "share", "dictakey")

	path := strings.TrimSpace(os.Getenv("DICTAKEY_CONFIG"))
	if path == "" {
		path = filepath.Join(configDir, "config.yaml")
	}

	var cfg Config
	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment variables: %w", err)
	}

	if cfg.Rules.Path == "" {
		cfg.Rules.Path = firstExisting(
			filepath.Join(configDir, "substitutions.rules"),
			filepath.Join(home, ".config", "hypr", "whisper-substitutions.rules"),
		)
	}
	if cfg.Session.TempDir == "" {
		cfg.Session.TempDir = filepath.Join(os.TempDir(), "dictakey")
	}
	if cfg.Session.RecordingsDir == "" {
		cfg.Session.RecordingsDir = filepath.Join(dataDir, "recordings")
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(dataDir, "history.jsonl")
	}
	if cfg.Settings.Path == "" {
		cfg.Settings.Path = filepath.Join(configDir, "settings.yaml")
	}

	normalize(&cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	cfg.Audio.Backend = strings.ToLower(strings.TrimSpace(cfg.Audio.Backend))
	if cfg.Rules.IterationLimit <= 0 {
		cfg.Rules.IterationLimit = 30
	}
	if cfg.Session.ChunkSize < 256 {
		cfg.Session.ChunkSize = 4096
	}
	if cfg.Session.Cooldown <= 0 {
		cfg.Session.Cooldown = 500 * time.Millisecond
	}
	if cfg.Store.RetentionDays < 0 {
		cfg.Store.RetentionDays = 0
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	if len(cfg.Models) == 0 {
		cfg.Models = defaultModels(*cfg)
	}
	if len(cfg.Prompts) == 0 {
		cfg.Prompts = []domain.Prompt{{ID: "default", Title: "Default"}}
	}
}

// defaultModels offers every backend the environment can reach.
func defaultModels(cfg Config) []domain.ModelRef {
	var models []domain.ModelRef
	if cfg.Whisper.ModelPath != "" {
		models = append(models, domain.ModelRef{
			Name:     strings.TrimSuffix(filepath.Base(cfg.Whisper.ModelPath), filepath.Ext(cfg.Whisper.ModelPath)),
			Provider: domain.ModelProviderLocal,
			Path:     cfg.Whisper.ModelPath,
		})
	}
	models = append(models,
		domain.ModelRef{Name: cfg.Deepgram.Model, Provider: domain.ModelProviderCloud, Cloud: "deepgram", Language: cfg.Deepgram.Language},
		domain.ModelRef{Name: cfg.OpenAI.TranscriptionModel, Provider: domain.ModelProviderCloud, Cloud: "openai"},
	)
	return models
}

// Model finds a configured model by name.
func (c Config) Model(name string) (domain.ModelRef, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			return m, true
		}
	}
	return domain.ModelRef{}, false
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if len(paths) == 0 {
		return ""
	}
	return paths[0]
}
