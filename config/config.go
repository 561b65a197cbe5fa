package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN"`
	ApplicationID string `env:"DISCORD_APPLICATION_ID"`

	GuildID string `env:"DISCORD_GUILD_ID"`
	OwnerID string `env:"BOT_OWNER_ID"`

	ShardCount int `env:"SHARD_COUNT" envDefault:"0"`

	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string `env:"LOG_FORMAT" envDefault:"console"`
	AutoLeaveTimeout int    `env:"AUTO_LEAVE_TIMEOUT" envDefault:"300"`
	DefaultVolume    int    `env:"DEFAULT_VOLUME" envDefault:"100"`
	DefaultPasses    int    `env:"DEFAULT_PASSES" envDefault:"2"`
	MaxQueueSize     int    `env:"MAX_QUEUE_SIZE" envDefault:"500"`

	DownloadDir string `env:"DOWNLOAD_DIR" envDefault:"downloads"`
	FFmpegPath  string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	YTDLPPath   string `env:"YTDLP_PATH" envDefault:"yt-dlp"`

	DBHost     string `env:"DB_HOST"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	RadioStreamURL      string        `env:"RADIO_STREAM_URL" envDefault:"https://listen.moe/stream"`
	RadioSocketURL      string        `env:"RADIO_SOCKET_URL" envDefault:"wss://listen.moe/gateway_v2"`
	RadioImage          string        `env:"RADIO_IMAGE" envDefault:"https://listen.moe/images/share.jpg"`
	RadioURL            string        `env:"RADIO_URL" envDefault:"https://listen.moe"`
	RadioUpdateInterval time.Duration `env:"RADIO_UPDATE_INTERVAL" envDefault:"5s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}

	if c.ApplicationID == "" {
		return errors.New("DISCORD_APPLICATION_ID is required")
	}

	if c.DefaultVolume < 0 || c.DefaultVolume > 200 {
		return errors.New("DEFAULT_VOLUME must be between 0 and 200")
	}

	if c.DefaultPasses < 1 || c.DefaultPasses > 10 {
		return errors.New("DEFAULT_PASSES must be between 1 and 10")
	}

	if c.MaxQueueSize < 1 {
		return errors.New("MAX_QUEUE_SIZE must be at least 1")
	}

	if c.RadioStreamURL == "" {
		return errors.New("RADIO_STREAM_URL is required")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.GuildID != ""
}

func (c *Config) AutoLeave() time.Duration {
	if c.AutoLeaveTimeout <= 0 {
		return 0
	}
	return time.Duration(c.AutoLeaveTimeout) * time.Second
}

// DefaultVolumeRatio converts the percent based DEFAULT_VOLUME into the
// multiplier used by the audio filter.
func (c *Config) DefaultVolumeRatio() float64 {
	return float64(c.DefaultVolume) / 100
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c *Config) GetDBConfig() *DBConfig {
	return &DBConfig{
		Host:     c.DBHost,
		Port:     c.DBPort,
		User:     c.DBUser,
		Password: c.DBPassword,
		Name:     c.DBName,
		SSLMode:  c.DBSSLMode,
	}
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c *Config) GetRedisConfig() *RedisConfig {
	return &RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

type RadioConfig struct {
	Stream         string
	Socket         string
	Image          string
	URL            string
	UpdateInterval time.Duration
}

func (c *Config) GetRadioConfig() *RadioConfig {
	return &RadioConfig{
		Stream:         c.RadioStreamURL,
		Socket:         c.RadioSocketURL,
		Image:          c.RadioImage,
		URL:            c.RadioURL,
		UpdateInterval: c.RadioUpdateInterval,
	}
}
