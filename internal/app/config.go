package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/yungbote/blackboard-backend/internal/data/db"
	"github.com/yungbote/blackboard-backend/internal/http/middleware"
	"github.com/yungbote/blackboard-backend/internal/lesson/generation"
	"github.com/yungbote/blackboard-backend/internal/lesson/narration"
	"github.com/yungbote/blackboard-backend/internal/lesson/pipeline"
	"github.com/yungbote/blackboard-backend/internal/lesson/playback"
	"github.com/yungbote/blackboard-backend/internal/platform/envutil"
	"github.com/yungbote/blackboard-backend/internal/platform/gcp"
	"github.com/yungbote/blackboard-backend/internal/platform/openai"
	"github.com/yungbote/blackboard-backend/internal/realtime/bus"
	"github.com/yungbote/blackboard-backend/internal/services"
)

const configEnv = "BLACKBOARD_CONFIG"

type Config struct {
	LogMode     string
	Port        string
	ServiceName string
	Environment string
	CORSOrigins []string

	DB         db.Config
	Redis      bus.RedisConfig
	OpenAI     openai.Config
	Storage    gcp.StorageConfig
	Generation generation.Config
	Pipeline   pipeline.Config
	Narration  narration.PacedConfig
	// Synthesize narrates with the speech endpoint instead of pacing text alone.
	Synthesize   bool
	Playback     playback.Config
	BoardIdleTTL time.Duration
}

// fileConfig is the TOML layout. Zero values leave the environment setting alone.
type fileConfig struct {
	LogMode     string   `toml:"log_mode"`
	Port        string   `toml:"port"`
	ServiceName string   `toml:"service_name"`
	Environment string   `toml:"environment"`
	CORSOrigins []string `toml:"cors_origins"`

	Database struct {
		Driver           string `toml:"driver"`
		SQLitePath       string `toml:"sqlite_path"`
		PostgresHost     string `toml:"postgres_host"`
		PostgresPort     string `toml:"postgres_port"`
		PostgresUser     string `toml:"postgres_user"`
		PostgresPassword string `toml:"postgres_password"`
		PostgresName     string `toml:"postgres_name"`
		PostgresSSLMode  string `toml:"postgres_sslmode"`
	} `toml:"database"`

	Redis struct {
		Addr    string `toml:"addr"`
		Channel string `toml:"channel"`
	} `toml:"redis"`

	OpenAI struct {
		BaseURL     string `toml:"base_url"`
		Model       string `toml:"model"`
		ImageModel  string `toml:"image_model"`
		ImageSize   string `toml:"image_size"`
		SpeechModel string `toml:"speech_model"`
		SpeechVoice string `toml:"speech_voice"`
		MaxRetries  int    `toml:"max_retries"`
	} `toml:"openai"`

	Storage struct {
		Mode          string `toml:"mode"`
		Bucket        string `toml:"bucket"`
		EmulatorHost  string `toml:"emulator_host"`
		CDNDomain     string `toml:"cdn_domain"`
		PublicBaseURL string `toml:"public_base_url"`
	} `toml:"storage"`

	Lesson struct {
		MinSteps         int `toml:"min_steps"`
		MaxSteps         int `toml:"max_steps"`
		ImageMaxInflight int `toml:"image_max_inflight"`
	} `toml:"lesson"`

	Playback struct {
		EraseDelayMS int     `toml:"erase_delay_ms"`
		AutoPlay     *bool   `toml:"auto_play"`
		Rate         float64 `toml:"rate"`
		BoardIdleTTL string  `toml:"board_idle_ttl"`
	} `toml:"playback"`

	Narration struct {
		WordsPerSecond float64 `toml:"words_per_second"`
		Synthesize     *bool   `toml:"synthesize"`
	} `toml:"narration"`
}

// LoadConfig reads the environment, then applies the TOML file at path (or
// $BLACKBOARD_CONFIG). Values set in the file win over the environment. A
// missing file is an error only when it was named explicitly.
func LoadConfig(path string) (Config, error) {
	cfg := configFromEnv()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = envutil.String(configEnv, "")
	}
	if path != "" {
		fc, err := readConfigFile(path)
		switch {
		case err == nil:
			if err := fc.apply(&cfg); err != nil {
				return Config{}, err
			}
		case errors.Is(err, fs.ErrNotExist) && !explicit:
		default:
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configFromEnv() Config {
	storage, _ := gcp.StorageConfigFromEnv()
	return Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Port:        envutil.String("PORT", "8080"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "blackboard"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		CORSOrigins: middleware.AllowedOrigins(),

		DB:      db.ConfigFromEnv(),
		Redis:   bus.RedisConfigFromEnv(),
		OpenAI:  openai.ConfigFromEnv(),
		Storage: storage,
		Generation: generation.Config{
			MinSteps: envutil.Int("LESSON_MIN_STEPS", 8),
			MaxSteps: envutil.Int("LESSON_MAX_STEPS", 15),
		},
		Pipeline: pipeline.Config{
			MaxInflight: int64(envutil.Int("IMAGE_MAX_INFLIGHT", 1)),
		},
		Narration: narration.PacedConfig{
			WordsPerSecond: envutil.Float("NARRATION_WPS", 2.5),
		},
		Synthesize: envutil.Bool("NARRATION_SYNTHESIZE", false),
		Playback: playback.Config{
			EraseDelay: envutil.Millis("ERASE_DELAY_MS", playback.DefaultEraseDelay),
			Rate:       envutil.Float("NARRATION_RATE", 1),
			AutoPlay:   envutil.Bool("BOARD_AUTOPLAY", true),
		},
		BoardIdleTTL: envutil.Duration("BOARD_IDLE_TTL", services.DefaultBoardIdleTTL),
	}
}

func readConfigFile(path string) (fileConfig, error) {
	var fc fileConfig
	file, err := os.Open(path)
	if err != nil {
		return fc, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.LogMode, fc.LogMode)
	setString(&cfg.Port, fc.Port)
	setString(&cfg.ServiceName, fc.ServiceName)
	setString(&cfg.Environment, fc.Environment)
	if len(fc.CORSOrigins) > 0 {
		cfg.CORSOrigins = fc.CORSOrigins
	}

	d := fc.Database
	setString(&cfg.DB.Driver, strings.ToLower(d.Driver))
	setString(&cfg.DB.SQLitePath, d.SQLitePath)
	setString(&cfg.DB.PostgresHost, d.PostgresHost)
	setString(&cfg.DB.PostgresPort, d.PostgresPort)
	setString(&cfg.DB.PostgresUser, d.PostgresUser)
	setString(&cfg.DB.PostgresPassword, d.PostgresPassword)
	setString(&cfg.DB.PostgresName, d.PostgresName)
	setString(&cfg.DB.PostgresSSLMode, d.PostgresSSLMode)

	setString(&cfg.Redis.Addr, fc.Redis.Addr)
	setString(&cfg.Redis.Channel, fc.Redis.Channel)

	o := fc.OpenAI
	setString(&cfg.OpenAI.BaseURL, o.BaseURL)
	setString(&cfg.OpenAI.Model, o.Model)
	setString(&cfg.OpenAI.ImageModel, o.ImageModel)
	setString(&cfg.OpenAI.ImageSize, o.ImageSize)
	setString(&cfg.OpenAI.SpeechModel, o.SpeechModel)
	setString(&cfg.OpenAI.SpeechVoice, o.SpeechVoice)
	setInt(&cfg.OpenAI.MaxRetries, o.MaxRetries)

	s := fc.Storage
	if m := strings.ToLower(strings.TrimSpace(s.Mode)); m != "" {
		cfg.Storage.Mode = gcp.StorageMode(m)
	}
	setString(&cfg.Storage.Bucket, s.Bucket)
	setString(&cfg.Storage.EmulatorHost, strings.TrimRight(s.EmulatorHost, "/"))
	setString(&cfg.Storage.CDNDomain, s.CDNDomain)
	setString(&cfg.Storage.PublicBaseURL, strings.TrimRight(s.PublicBaseURL, "/"))

	setInt(&cfg.Generation.MinSteps, fc.Lesson.MinSteps)
	setInt(&cfg.Generation.MaxSteps, fc.Lesson.MaxSteps)
	if fc.Lesson.ImageMaxInflight > 0 {
		cfg.Pipeline.MaxInflight = int64(fc.Lesson.ImageMaxInflight)
	}

	p := fc.Playback
	if p.EraseDelayMS > 0 {
		cfg.Playback.EraseDelay = time.Duration(p.EraseDelayMS) * time.Millisecond
	}
	if p.AutoPlay != nil {
		cfg.Playback.AutoPlay = *p.AutoPlay
	}
	if p.Rate > 0 {
		cfg.Playback.Rate = p.Rate
	}
	if ttl := strings.TrimSpace(p.BoardIdleTTL); ttl != "" {
		dur, err := time.ParseDuration(ttl)
		if err != nil || dur <= 0 {
			return fmt.Errorf("invalid playback.board_idle_ttl %q", ttl)
		}
		cfg.BoardIdleTTL = dur
	}

	if fc.Narration.WordsPerSecond > 0 {
		cfg.Narration.WordsPerSecond = fc.Narration.WordsPerSecond
	}
	if fc.Narration.Synthesize != nil {
		cfg.Synthesize = *fc.Narration.Synthesize
	}
	return nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("port is required")
	}
	switch c.DB.Driver {
	case db.DriverSQLite, db.DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q (allowed: %q, %q)", c.DB.Driver, db.DriverSQLite, db.DriverPostgres)
	}
	if c.Generation.MinSteps > 0 && c.Generation.MaxSteps > 0 && c.Generation.MinSteps > c.Generation.MaxSteps {
		return fmt.Errorf("lesson min steps %d exceeds max steps %d", c.Generation.MinSteps, c.Generation.MaxSteps)
	}
	if c.Storage.Bucket != "" {
		if err := c.Storage.Validate(); err != nil {
			return err
		}
	}
	return nil
}
