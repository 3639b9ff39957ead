package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"participation-tracker/internal/app"
	"participation-tracker/internal/config"
	redisinfra "participation-tracker/internal/infra/redis"
	"participation-tracker/internal/pkg/logger"
	"participation-tracker/internal/recognition"
	transport "participation-tracker/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the participation tracker server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, false); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	opts, err := trackerOptions(cfg)
	if err != nil {
		return err
	}

	feed := app.NewFeed()
	publishers := []app.Publisher{app.NewFeedPublisher(feed)}
	if b.redis != nil {
		publishers = append(publishers, redisinfra.NewPublisher(b.redis, cfg.Redis.Channel))
	}
	notifications := app.NewNotificationManager(notificationPreferences(cfg), publishers...)
	messenger := app.NewFeedMessenger(feed)
	writer := app.NewWriter(b.store)

	tracker := app.NewTracker(opts, writer, notifications, messenger, feed)
	if err := tracker.Restore(ctx, b.store); err != nil {
		return err
	}

	capability, relay, err := newCapability(cfg, feed)
	if err != nil {
		return err
	}
	session := recognition.NewSession(capability, tracker, sessionOptions(cfg, tracker, messenger, notifications))

	var sink transport.TranscriptSink
	if relay != nil {
		sink = relay
	}
	handler := transport.NewHandler(tracker, session, notifications, opts)
	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(handler, transport.NewWSHandler(tracker, sink)),
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return writer.Run(gctx) })
	g.Go(func() error { return notifications.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })

	scheduler := cron.New()
	refresh := config.Duration(cfg.Recognition.RefreshInterval, 30*time.Minute)
	if _, err := scheduler.AddFunc("@every "+refresh.String(), func() {
		if err := session.Refresh(gctx); err != nil {
			logger.Warn().Err(err).Msg("recognition refresh skipped")
		}
	}); err != nil {
		return err
	}
	if _, err := scheduler.AddFunc(cfg.Tracker.SweepSchedule, func() { tracker.Sweep(gctx) }); err != nil {
		return err
	}
	scheduler.Start()
	g.Go(func() error {
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	g.Go(func() error {
		logger.Info().Str("port", finalPort).Str("source", cfg.Recognition.Source).Msg("starting participation tracker")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
