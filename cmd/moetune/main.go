package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hxnx/moetune/config"
	"github.com/hxnx/moetune/internal/bot"
	"github.com/hxnx/moetune/internal/logging"
	"github.com/rs/zerolog/log"
)

const usage = `Required environment variables:
  DISCORD_TOKEN           Discord bot token
  DISCORD_APPLICATION_ID  Discord application ID

Optional environment variables:
  DISCORD_GUILD_ID        Register commands to a single guild
  BOT_OWNER_ID            User allowed to run !sync
  SHARD_COUNT             Number of shards (0 = auto-detect)
  LOG_LEVEL, LOG_FORMAT   Log level (debug, info, warn, error) and format (console, json)
  DEFAULT_VOLUME          Default volume (0-200, default: 100)
  DEFAULT_PASSES          Default encoder passes (1-10, default: 2)
  MAX_QUEUE_SIZE          Maximum queue size per guild (default: 500)
  AUTO_LEAVE_TIMEOUT      Seconds before leaving an empty channel (0 = disabled, default: 300)
  FFMPEG_PATH, YTDLP_PATH, DOWNLOAD_DIR
  DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE
  REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB
  RADIO_STREAM_URL, RADIO_SOCKET_URL, RADIO_IMAGE, RADIO_URL, RADIO_UPDATE_INTERVAL
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "console")
		log.Error().Err(err).Msg("failed to load configuration")
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	mode := "production"
	if cfg.IsDevelopment() {
		mode = "development"
	}
	log.Info().
		Str("mode", mode).
		Str("guild_id", cfg.GuildID).
		Str("log_level", cfg.LogLevel).
		Int("default_volume", cfg.DefaultVolume).
		Int("default_passes", cfg.DefaultPasses).
		Int("max_queue_size", cfg.MaxQueueSize).
		Dur("auto_leave", cfg.AutoLeave()).
		Int("shards", cfg.ShardCount).
		Msg("configuration loaded")
	log.Info().
		Str("db", fmt.Sprintf("%s:%d/%s", cfg.DBHost, cfg.DBPort, cfg.DBName)).
		Str("redis", fmt.Sprintf("%s:%d/%d", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)).
		Str("radio_stream", cfg.RadioStreamURL).
		Str("radio_socket", cfg.RadioSocketURL).
		Msg("backends")

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	log.Info().Msg("starting bot")
	if err := b.Start(); err != nil {
		log.Fatal().Err(err).Msg("bot failed to start")
	}

	log.Info().Msg("bot is running, press CTRL+C to exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	if err := b.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop bot")
	}
}
