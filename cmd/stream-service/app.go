package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/internal/archive"
	"github.com/weiawesome/wes-io-live/internal/cache"
	"github.com/weiawesome/wes-io-live/internal/config"
	"github.com/weiawesome/wes-io-live/internal/domain"
	"github.com/weiawesome/wes-io-live/internal/handler"
	"github.com/weiawesome/wes-io-live/internal/idgen"
	"github.com/weiawesome/wes-io-live/internal/reconciler"
	"github.com/weiawesome/wes-io-live/internal/repository"
	"github.com/weiawesome/wes-io-live/internal/service"
	"github.com/weiawesome/wes-io-live/internal/store"
	"github.com/weiawesome/wes-io-live/pkg/database"
	pkglog "github.com/weiawesome/wes-io-live/pkg/log"
	"github.com/weiawesome/wes-io-live/pkg/pubsub"
	"github.com/weiawesome/wes-io-live/pkg/storage"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *gorm.DB
	redis  *redis.Client
	bus    pubsub.PubSub

	cassandra *repository.CassandraMessageRepository
	objects   storage.Storage

	services handler.Services
	sweeper  *reconciler.Sweeper
	archiver *archive.Archiver

	closers []func()
}

// loadConfig loads configuration and initialises the global logger. With
// watch set, edits to the config file change the log level at runtime.
func loadConfig(watch bool) (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if watch {
		cfg, err = config.LoadAndWatch(func(next *config.Config) {
			level := pkglog.SetLevel(next.Log.Level)
			l := pkglog.L()
			l.Info().Str("level", level.String()).Msg("config reloaded")
		})
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, pkglog.L(), fmt.Errorf("load config: %w", err)
	}

	logCfg := cfg.Log
	if logCfg.ServiceName == "" {
		logCfg.ServiceName = "stream-service"
	}
	if logCfg.Level == "debug" {
		logCfg.Pretty = true
	}
	pkglog.Init(logCfg)
	return cfg, pkglog.L(), nil
}

// openDatabase connects to the configured SQL database.
func openDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("get sql.DB: %w", err)
	}
	return db, func() { sqlDB.Close() }, nil
}

// newApp wires every dependency the serve and sweep commands need.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	db, closeDB, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, closeDB)

	a.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	a.closers = append(a.closers, func() { a.redis.Close() })
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.redis.Ping(pingCtx).Err(); err != nil {
		a.close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")

	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create pubsub: %w", err)
	}
	a.bus = bus
	a.closers = append(a.closers, func() { bus.Close() })
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("event bus connected")

	messageRepo, err := a.messageRepository(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	uuids := idgen.NewUUIDGenerator()
	streamRepo := repository.NewGormStreamRepository(db)
	sessionRepo := repository.NewGormSessionRepository(db)
	userRepo := repository.NewGormUserRepository(db)
	followRepo := repository.NewGormFollowRepository(db)
	presenceStore := store.NewRedisStore(a.redis)

	window := cfg.Presence.ActiveWindow
	if window <= 0 {
		window = domain.DefaultActiveWindow
	}

	rooms := service.NewChatRoomService(
		repository.NewGormChatRoomRepository(db), streamRepo,
		cache.NewRedisRoomCache(a.redis, ""), cfg.Chat.RoomCacheTTL,
		nil, bus, uuids, time.Now,
	)
	messages := service.NewMessageService(
		messageRepo, rooms, streamRepo, followRepo, userRepo,
		store.NewRedisLimiter(a.redis), bus, idgen.NewULIDGenerator(),
		service.MessageConfig{
			MaxContentLength: cfg.Chat.MaxContentLength,
			DefaultLimit:     cfg.Chat.DefaultLimit,
			MaxLimit:         cfg.Chat.MaxLimit,
		},
		time.Now,
	)

	a.services = handler.Services{
		Streams:   service.NewStreamService(streamRepo, userRepo, presenceStore, uuids, time.Now),
		Lifecycle: service.NewLifecycleService(streamRepo, rooms, presenceStore, bus, time.Now),
		Presence:  service.NewPresenceService(sessionRepo, presenceStore, bus, uuids, window, time.Now),
		Rooms:     rooms,
		Messages:  messages,
		Users:     service.NewUserService(userRepo, followRepo, uuids, time.Now),
		Dashboard: service.NewDashboardService(streamRepo, followRepo),
	}

	presenceCfg := cfg.Presence
	presenceCfg.ActiveWindow = window
	a.sweeper = reconciler.New(sessionRepo, streamRepo, presenceStore, presenceCfg, time.Now)

	if cfg.Archive.Enabled {
		objects, err := storage.New(ctx, cfg.Storage)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("create storage: %w", err)
		}
		a.objects = objects
		a.archiver = archive.New(bus, rooms, messages, objects, cfg.Archive, time.Now)
		logger.Info().Str("driver", cfg.Storage.Driver).Msg("transcript archiving enabled")
	}

	return a, nil
}

// messageRepository selects the chat message store.
func (a *app) messageRepository(ctx context.Context) (repository.MessageRepository, error) {
	switch a.cfg.Chat.Store {
	case "cassandra":
		session, err := repository.NewCassandraSession(a.cfg.Cassandra)
		if err != nil {
			return nil, fmt.Errorf("connect cassandra: %w", err)
		}
		repo := repository.NewCassandraMessageRepository(session)
		a.cassandra = repo
		a.closers = append(a.closers, func() { repo.Close() })
		a.logger.Info().Strs("hosts", a.cfg.Cassandra.Hosts).Str("keyspace", a.cfg.Cassandra.Keyspace).Msg("cassandra message store connected")
		return repo, nil
	case "gorm", "":
		return repository.NewGormMessageRepository(a.db), nil
	default:
		return nil, fmt.Errorf("unsupported chat store: %s", a.cfg.Chat.Store)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
