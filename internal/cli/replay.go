package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"participation-tracker/internal/app"
	"participation-tracker/internal/config"
	"participation-tracker/internal/domain"
	"participation-tracker/internal/pkg/logger"
	"participation-tracker/internal/recognition"
	"participation-tracker/internal/speech"
)

type replayOptions struct {
	class    string
	students []string
	mode     string
}

// NewReplayCmd feeds a transcript file through the recognition pipeline as if
// each line had been spoken, then prints the resulting leaderboard.
func NewReplayCmd(configPath *string) *cobra.Command {
	var opts replayOptions
	cmd := &cobra.Command{
		Use:   "replay <transcript-file>",
		Short: "Replay a transcript file through participation detection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return runReplay(cmd.Context(), cfg, opts, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.class, "class", "", "class id or name to track (created if missing)")
	cmd.Flags().StringSliceVar(&opts.students, "student", nil, `student "First Last" to add if missing (repeatable)`)
	cmd.Flags().StringVar(&opts.mode, "mode", "", "name detection mode override (firstName, lastName, both)")
	_ = cmd.MarkFlagRequired("class")
	return cmd
}

func runReplay(ctx context.Context, cfg config.Config, ro replayOptions, input io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if ro.mode != "" {
		cfg.Tracker.NameDetectionMode = ro.mode
	}
	opts, err := trackerOptions(cfg)
	if err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	feed := app.NewFeed()
	messenger := app.NewFeedMessenger(feed)
	writer := app.NewWriter(b.store)
	tracker := app.NewTracker(opts, writer, nil, messenger, feed)
	if err := tracker.Restore(ctx, b.store); err != nil {
		return err
	}
	if err := prepareReplay(ctx, tracker, ro); err != nil {
		return err
	}

	script := speech.NewScript(input)
	session := recognition.NewSession(script, tracker, sessionOptions(cfg, tracker, messenger, nil))

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return writer.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })

	if err := tracker.StartTracking(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	if err := session.Start(ctx); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	select {
	case <-script.Done():
	case <-ctx.Done():
	}
	// the stop command is handled after the last transcript
	if err := session.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("stop replay session")
	}
	tracker.StopTracking(ctx)
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if err := script.Err(); err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(tracker.Leaderboard())
}

// prepareReplay selects the class and registers missing students.
func prepareReplay(ctx context.Context, tracker *app.Tracker, ro replayOptions) error {
	classID := ""
	for _, c := range tracker.Classes() {
		if c.ID == ro.class || strings.EqualFold(c.Name, ro.class) {
			classID = c.ID
			break
		}
	}
	if classID == "" {
		c, err := tracker.AddClass(ctx, ro.class, "")
		if err != nil {
			return err
		}
		classID = c.ID
	}
	if err := tracker.SelectClass(ctx, classID); err != nil {
		return err
	}

	existing := make(map[string]bool)
	for _, s := range tracker.Students() {
		existing[strings.ToLower(s.FullName())] = true
	}
	for _, raw := range ro.students {
		first, last, ok := strings.Cut(strings.TrimSpace(raw), " ")
		if !ok {
			return fmt.Errorf("student %q: expected \"First Last\"", raw)
		}
		last = strings.TrimSpace(last)
		full := strings.ToLower(first + " " + last)
		if existing[full] {
			continue
		}
		if _, err := tracker.AddStudent(ctx, first, last, nil); err != nil {
			return err
		}
		existing[full] = true
	}
	if len(tracker.Students()) == 0 {
		return fmt.Errorf("no students to match: %w", domain.ErrUnknownStudent)
	}
	return nil
}
