package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var attendCmd = &cobra.Command{
	Use:   "attend <frame-or-dir>...",
	Short: "Run an attendance session over a sequence of frames",
	Long: `Run a recognition session over captured frames, in order, as if they
came from a live camera. A person is recorded and announced once and stays
suppressed until someone else is recognized or the mode changes.

Directories are expanded to their image files sorted by name.

Examples:
  # Replay a capture directory in check-in mode
  face-attendance attend frames/

  # Switch between check-in and check-out every 100 frames
  face-attendance attend --toggle-every 100 frames/

  # Drop undelivered events at the end instead of waiting for them
  face-attendance attend --stop-policy discard frames/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAttend,
}

func init() {
	rootCmd.AddCommand(attendCmd)

	attendCmd.Flags().String("mode", "checkin", "Initial mode (checkin or checkout)")
	attendCmd.Flags().Int("toggle-every", 0, "Toggle the mode every N frames (0 = never)")
	attendCmd.Flags().String("stop-policy", "", "drain or discard queued events on stop (default SESSION_STOP_POLICY)")
	attendCmd.Flags().Duration("stop-timeout", 0, "Maximum time to wait for delivery on stop (default SESSION_STOP_TIMEOUT)")
}

func runAttend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	mode, err := recognition.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	policyName := mustGetString(cmd, "stop-policy")
	if policyName == "" {
		policyName = cfg.Session.StopPolicy
	}
	policy, err := recognition.ParseFlushPolicy(policyName)
	if err != nil {
		return err
	}
	stopTimeout := mustGetDuration(cmd, "stop-timeout")
	if stopTimeout <= 0 {
		stopTimeout = cfg.Session.StopTimeout
	}
	toggleEvery := mustGetInt(cmd, "toggle-every")

	frames, err := expandImagePaths(args)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return errors.New("no frames found")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	m, err := newMatcher(&cfg.Match)
	if err != nil {
		return err
	}
	sink, err := attendance.Open(ctx, &cfg.Attendance)
	if err != nil {
		return fmt.Errorf("opening attendance sink: %w", err)
	}
	defer sink.Close()
	announcer, err := newAnnouncer(&cfg.Speech)
	if err != nil {
		return err
	}

	pipeline := recognition.NewPipeline(store, m, embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.MaxImageSize), nil)
	session := recognition.NewSession("cli", mode, sessionOptions(cfg, sink, announcer, nil))

	fmt.Printf("Session started in %s mode with %d enrolled samples\n", mode, store.Count())

	bar := progressbar.NewOptions(len(frames),
		progressbar.OptionSetDescription("Processing frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	counts := make(map[recognition.FrameOutcome]int)
	var frameErrors int
	for i, path := range frames {
		bar.Add(1)
		if toggleEvery > 0 && i > 0 && i%toggleEvery == 0 {
			if _, err := session.ToggleMode(); err != nil {
				return err
			}
		}

		data, err := os.ReadFile(path)
		if err != nil {
			frameErrors++
			continue
		}
		res, err := pipeline.ProcessFrame(ctx, session, data)
		if err != nil {
			// A failed frame is dropped; the feed continues.
			frameErrors++
			continue
		}
		counts[res.Outcome]++
	}
	bar.Finish()
	fmt.Println()

	stopCtx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	status := session.Status()
	stopErr := session.Stop(stopCtx, policy)

	fmt.Printf("Frames: %d matched, %d unmatched, %d without face, %d failed\n",
		counts[recognition.OutcomeMatched], counts[recognition.OutcomeNoMatch], counts[recognition.OutcomeNoFace], frameErrors)
	fmt.Printf("Attendance events: %d (final mode %s, stop policy %s)\n", status.EventsCount, status.Mode, policy)
	if stopErr != nil {
		return fmt.Errorf("stopping session: %w", stopErr)
	}
	return nil
}
