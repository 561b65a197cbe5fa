package bot

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/moetune/config"
	"github.com/hxnx/moetune/internal/database"
	commands "github.com/hxnx/moetune/internal/features"
	"github.com/hxnx/moetune/internal/features/shared"
	"github.com/hxnx/moetune/internal/music"
	"github.com/hxnx/moetune/internal/radio"
	"github.com/hxnx/moetune/internal/redis"
	"github.com/hxnx/moetune/internal/voice"
	"github.com/rs/zerolog/log"
)

type Bot struct {
	config       *config.Config
	sessions     []*discordgo.Session
	services     *shared.Services
	notifier     *Notifier
	socket       *radio.Socket
	stopSocket   context.CancelFunc
	unsubscribe  []func()
	started      bool
	presenceStop chan struct{}
}

func New(cfg *config.Config) (*Bot, error) {
	db := cfg.GetDBConfig()
	dbConfig := &database.Config{
		Host:     db.Host,
		Port:     db.Port,
		User:     db.User,
		Password: db.Password,
		DBName:   db.Name,
		SSLMode:  db.SSLMode,
	}

	if err := database.Initialize(dbConfig); err != nil {
		log.Warn().Err(err).Msg("database initialization failed, guild settings fall back to defaults")
	}

	rc := cfg.GetRedisConfig()
	redisConfig := redis.Config{
		Host:     rc.Host,
		Port:     rc.Port,
		Password: rc.Password,
		DB:       rc.DB,
	}

	if _, err := redis.Init(redisConfig); err != nil {
		log.Warn().Err(err).Msg("redis initialization failed, music queues are unavailable")
	}

	sessions, err := newSessions(cfg)
	if err != nil {
		return nil, err
	}

	voices := voice.NewManager(voice.NewFFmpegEncoder(cfg.FFmpegPath))
	resolver := music.NewYTDLPResolver(cfg.YTDLPPath)

	player, err := music.NewPlayer(music.NewQueueStoreFromDefault(), nil, music.NewFFmpegTranscoder(cfg.FFmpegPath), music.Options{
		DownloadDir:   cfg.DownloadDir,
		MaxQueueSize:  cfg.MaxQueueSize,
		DefaultVolume: cfg.DefaultVolumeRatio(),
		DefaultPasses: cfg.DefaultPasses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create music player: %w", err)
	}
	player.WithSource(resolver).WithVoice(voices)

	radioCfg := cfg.GetRadioConfig()
	settings := database.NewSettingRepositoryFromDefault()
	socket := radio.NewSocket(radioCfg.Socket)
	station := radio.NewPlayer(radio.Config{
		Stream:         radioCfg.Stream,
		Image:          radioCfg.Image,
		URL:            radioCfg.URL,
		UpdateInterval: radioCfg.UpdateInterval,
	}, socket, voices, settings, nil).
		WithMusic(player).
		WithDeleter(sessions[0])

	notifier := NewNotifier(sessions[0], settings, station)

	services := &shared.Services{
		Music:     player,
		Radio:     station,
		Voice:     voices,
		Resolver:  resolver,
		Searches:  music.NewSearches(music.SearchSessionTTL),
		Settings:  settings,
		Notices:   notifier,
		AppID:     cfg.ApplicationID,
		OwnerID:   cfg.OwnerID,
		AutoLeave: cfg.AutoLeave(),
	}

	return &Bot{
		config:   cfg,
		sessions: sessions,
		services: services,
		notifier: notifier,
		socket:   socket,
	}, nil
}

func newSessions(cfg *config.Config) ([]*discordgo.Session, error) {
	shardCount := cfg.ShardCount
	if shardCount < 1 {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, err
		}

		if gw, err := s.GatewayBot(); err == nil && gw.Shards > 0 {
			shardCount = gw.Shards
		} else {
			log.Warn().Err(err).Msg("failed to auto-detect shard count, defaulting to 1")
			shardCount = 1
		}
	}

	sessions := make([]*discordgo.Session, 0, shardCount)
	for shard := 0; shard < shardCount; shard++ {
		s, err := discordgo.New("Bot " + cfg.DiscordToken)
		if err != nil {
			return nil, err
		}

		s.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildVoiceStates |
			discordgo.IntentsGuildMessages |
			discordgo.IntentsMessageContent

		if shardCount > 1 {
			s.Identify.Shard = &[2]int{shard, shardCount}
			s.ShardCount = shardCount
		}

		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (b *Bot) Start() error {
	if b.started {
		return nil
	}

	if len(b.sessions) == 0 {
		return nil
	}

	router := commands.NewRouter(b.services)
	for _, s := range b.sessions {
		b.registerHandlers(s)
		router.AddHandlers(s)
	}

	b.unsubscribe = append(b.unsubscribe,
		b.services.Music.Events().Subscribe(b.notifier.HandleMusic),
		b.services.Radio.Events().Subscribe(b.notifier.HandleRadio),
	)

	if _, err := commands.RegisterCommands(b.sessions[0], b.config.ApplicationID, b.config.GuildID); err != nil {
		log.Warn().Err(err).Msg("failed to register slash commands")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.stopSocket = cancel
	go func() {
		if err := b.socket.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("radio socket stopped")
		}
	}()

	for _, s := range b.sessions {
		if err := s.Open(); err != nil {
			cancel()
			return err
		}
	}

	b.startPresenceUpdater()
	b.started = true
	log.Info().Int("shards", len(b.sessions)).Msg("bot session opened")
	return nil
}

func (b *Bot) registerHandlers(s *discordgo.Session) {
	s.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		if r.User != nil {
			log.Info().Str("user", r.User.Username).Int("shard", s.ShardID).Int("guilds", len(r.Guilds)).Msg("bot ready")
		} else {
			log.Info().Int("shard", s.ShardID).Msg("bot ready")
		}
		b.updatePresence()
	})
}

func (b *Bot) Stop() error {
	if !b.started {
		return nil
	}

	b.started = false
	b.stopPresenceUpdater()

	for _, unsubscribe := range b.unsubscribe {
		unsubscribe()
	}
	b.unsubscribe = nil

	if b.stopSocket != nil {
		b.stopSocket()
	}
	b.services.Radio.Close()

	if err := b.services.Voice.DisconnectAll(); err != nil {
		log.Warn().Err(err).Msg("failed to leave voice channels")
	}

	for _, s := range b.sessions {
		if err := s.Close(); err != nil {
			return err
		}
	}

	if err := database.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}

	if err := redis.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis")
	}

	log.Info().Int("shards", len(b.sessions)).Msg("bot session closed")
	return nil
}
