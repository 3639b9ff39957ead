package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"participation-tracker/internal/app"
	"participation-tracker/internal/config"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/infra/memory"
	"participation-tracker/internal/infra/postgres"
	redisinfra "participation-tracker/internal/infra/redis"
	"participation-tracker/internal/pkg/logger"
	"participation-tracker/internal/recognition"
	"participation-tracker/internal/speech"
)

// backends holds the opened persistence clients; either may be nil.
type backends struct {
	store app.Store
	redis *redis.Client
	pool  *pgxpool.Pool
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}

// openBackends picks the store from config: Postgres behind a Redis read
// cache when both are set, either one alone, or memory when neither is.
func openBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{}
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}
	if cfg.Postgres.URL != "" {
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.pool = pool
	}

	switch {
	case b.pool != nil && b.redis != nil:
		ttl := config.Duration(cfg.Redis.CacheTTL, 10*time.Minute)
		b.store = redisinfra.NewCachedStore(b.redis, postgres.NewStore(b.pool), cfg.Redis.Prefix, ttl)
		logger.Info().Str("store", "postgres+redis-cache").Msg("persistence ready")
	case b.pool != nil:
		b.store = postgres.NewStore(b.pool)
		logger.Info().Str("store", "postgres").Msg("persistence ready")
	case b.redis != nil:
		b.store = redisinfra.NewStore(b.redis, cfg.Redis.Prefix)
		logger.Info().Str("store", "redis").Msg("persistence ready")
	default:
		b.store = memory.NewStore()
		logger.Warn().Str("store", "memory").Msg("no persistence configured, state is lost on exit")
	}
	return b, nil
}

func trackerOptions(cfg config.Config) (app.Options, error) {
	opts := app.DefaultOptions()
	mode, err := domain.ParseNameMode(cfg.Tracker.NameDetectionMode)
	if err != nil {
		return opts, fmt.Errorf("tracker.name_detection_mode: %w", err)
	}
	opts.NameMode = mode
	opts.RequireTrigger = config.Enabled(cfg.Tracker.RequireTrigger)
	opts.LowParticipationWindow = config.Duration(cfg.Tracker.LowParticipationWindow, opts.LowParticipationWindow)
	opts.DefaultDuration = config.Duration(cfg.Tracker.DefaultDuration, opts.DefaultDuration)
	opts.DefaultConfidence = cfg.Tracker.DefaultConfidence
	return opts, nil
}

func notificationPreferences(cfg config.Config) app.Preferences {
	prefs := app.DefaultPreferences()
	n := cfg.Notifications
	prefs.ParticipationAlerts = config.Enabled(n.ParticipationAlerts)
	prefs.LowParticipationAlerts = config.Enabled(n.LowParticipationAlerts)
	prefs.RankingChanges = config.Enabled(n.RankingChanges)
	prefs.AudioDeviceAlerts = config.Enabled(n.AudioDeviceAlerts)
	prefs.MinTimeBetweenAlerts = config.Duration(n.MinTimeBetweenAlerts, prefs.MinTimeBetweenAlerts)
	return prefs
}

func sessionOptions(cfg config.Config, gate recognition.ClassGate, messenger recognition.Messenger, notifier recognition.DeviceNotifier) recognition.Options {
	return recognition.Options{
		MaxAttempts: cfg.Recognition.MaxAttempts,
		BaseDelay:   config.Duration(cfg.Recognition.BaseDelay, time.Second),
		Gate:        gate,
		Messenger:   messenger,
		Notifier:    notifier,
	}
}

// newCapability builds the configured speech capability. The relay is
// returned separately so the websocket endpoint can feed it.
func newCapability(cfg config.Config, feed *app.Feed) (recognition.Capability, *speech.Relay, error) {
	switch cfg.Recognition.Source {
	case "relay":
		relay := speech.NewRelay(func(command string) {
			feed.Publish(domain.Update{Type: domain.UpdateRecognition, Payload: domain.RecognitionControl{Command: command}})
		})
		return relay, relay, nil
	case "stream":
		if cfg.Recognition.StreamURL == "" {
			return nil, nil, fmt.Errorf("recognition.stream_url is required for the stream source")
		}
		return speech.NewStream(cfg.Recognition.StreamURL), nil, nil
	}
	return nil, nil, fmt.Errorf("unknown recognition source %q", cfg.Recognition.Source)
}
