package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/recognition"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image-or-dir>...",
	Short: "Identify the faces in images",
	Long: `Identify the largest face of each image against the enrolled samples.

With --record every match is written to the attendance sink and announced,
without debouncing. Use "attend" to process a camera feed.

Examples:
  face-attendance recognize door.jpg
  face-attendance recognize --threshold 0.5 --json captures/
  face-attendance recognize --record --mode checkout door.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Float64("threshold", 0, "Minimum cosine similarity (0 = MATCH_THRESHOLD)")
	recognizeCmd.Flags().String("mode", "checkin", "Attendance mode for --record (checkin or checkout)")
	recognizeCmd.Flags().Bool("record", false, "Record and announce every match")
	recognizeCmd.Flags().Bool("json", false, "Output as JSON")
}

// RecognizeResult is the result for one image.
type RecognizeResult struct {
	Image         string                   `json:"image"`
	Outcome       recognition.FrameOutcome `json:"outcome"`
	IdentityID    string                   `json:"identity_id,omitempty"`
	IdentityLabel string                   `json:"identity_label,omitempty"`
	Similarity    float64                  `json:"similarity,omitempty"`
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")
	record := mustGetBool(cmd, "record")

	mode, err := recognition.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	if t := mustGetFloat64(cmd, "threshold"); t != 0 {
		cfg.Match.Threshold = t
	}

	paths, err := expandImagePaths(args)
	if err != nil {
		return err
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
	pipeline := recognition.NewPipeline(store, m, embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.MaxImageSize), nil)

	var sink attendance.Sink
	var announcer recognition.Announcer
	if record {
		if sink, err = attendance.Open(ctx, &cfg.Attendance); err != nil {
			return fmt.Errorf("opening attendance sink: %w", err)
		}
		defer sink.Close()
		if announcer, err = newAnnouncer(&cfg.Speech); err != nil {
			return err
		}
	}

	results := make([]RecognizeResult, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		match, outcome, err := pipeline.ResolveImage(ctx, data)
		if err != nil {
			return fmt.Errorf("recognizing %s: %w", path, err)
		}

		res := RecognizeResult{Image: path, Outcome: outcome}
		if match != nil {
			res.IdentityID = match.IdentityID
			res.IdentityLabel = match.IdentityLabel
			res.Similarity = match.Similarity
		}
		results = append(results, res)

		if !record || outcome == recognition.OutcomeNoFace {
			continue
		}
		phrase := cfg.Phrases.Unknown
		if match != nil {
			ev := recognition.AttendanceEvent{
				IdentityID:    match.IdentityID,
				IdentityLabel: match.IdentityLabel,
				Mode:          mode,
				Similarity:    match.Similarity,
				Timestamp:     time.Now(),
			}
			if err := sink.Record(ctx, ev); err != nil {
				return fmt.Errorf("recording attendance: %w", err)
			}
			phrase = cfg.Phrases.Format(string(mode), match.IdentityLabel)
		}
		if err := announcer.Announce(ctx, phrase); err != nil {
			fmt.Printf("Warning: announcement failed: %v\n", err)
		}
	}

	if jsonOutput {
		return outputJSON(results)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IMAGE\tOUTCOME\tID\tNAME\tSIMILARITY")
	fmt.Fprintln(w, "-----\t-------\t--\t----\t----------")
	for _, r := range results {
		sim := ""
		if r.Outcome == recognition.OutcomeMatched {
			sim = fmt.Sprintf("%.3f", r.Similarity)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Image, r.Outcome, r.IdentityID, r.IdentityLabel, sim)
	}
	w.Flush()
	return nil
}
