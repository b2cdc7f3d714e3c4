package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedder"
	"github.com/kozaktomas/face-attendance/internal/matcher"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <identity-id> <image-or-dir>...",
	Short: "Enroll a person from face images",
	Long: `Enroll a person by embedding the largest face of each image.

Images without a detectable face are skipped. Collection stops once
--samples faces were embedded. Enrolling an existing ID again overwrites
its samples position by position. Samples that match another enrolled
person are reported as look-alikes.

Examples:
  # Enroll E7 from five webcam captures
  face-attendance enroll E7 --name "Eve Novak" captures/eve/

  # Use every image in the directory
  face-attendance enroll E7 --name "Eve Novak" --samples 0 captures/eve/`,
	Args: cobra.MinimumNArgs(2),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Display name announced on recognition (defaults to the ID)")
	enrollCmd.Flags().Int("samples", constants.DefaultEnrollSamples, "Number of face samples to collect (0 = all images)")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// EnrollResult is the outcome of an enroll command.
type EnrollResult struct {
	IdentityID    string      `json:"identity_id"`
	IdentityLabel string      `json:"identity_label"`
	Stored        int         `json:"stored"`
	Skipped       []string    `json:"skipped,omitempty"`
	LookAlikes    []LookAlike `json:"look_alikes,omitempty"`
}

// LookAlike is another identity a new sample matches.
type LookAlike struct {
	Sample int `json:"sample"`
	matcher.Neighbor
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	jsonOutput := mustGetBool(cmd, "json")
	samples := mustGetInt(cmd, "samples")

	identityID := args[0]
	label := mustGetString(cmd, "name")
	if label == "" {
		label = identityID
	}

	paths, err := expandImagePaths(args[1:])
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found")
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

	client := embedder.NewClient(cfg.Embedding.URL, cfg.Embedding.MaxImageSize)

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Embedding faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionFullWidth(),
		)
	}

	result := EnrollResult{IdentityID: identityID, IdentityLabel: label}
	var vectors [][]float32
	for _, path := range paths {
		if samples > 0 && len(vectors) >= samples {
			break
		}
		if bar != nil {
			bar.Add(1)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		emb, err := client.FaceEmbedding(ctx, data)
		if errors.Is(err, embedder.ErrNoFace) {
			result.Skipped = append(result.Skipped, path)
			continue
		}
		if err != nil {
			return fmt.Errorf("embedding %s: %w", path, err)
		}
		vectors = append(vectors, emb)
	}
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	if len(vectors) == 0 {
		return fmt.Errorf("no face found in %d images", len(paths))
	}

	result.LookAlikes, err = findLookAlikes(m, store.Snapshot(), identityID, vectors)
	if err != nil {
		return err
	}

	result.Stored, err = store.Add(ctx, identityID, label, vectors)
	if err != nil {
		return fmt.Errorf("storing samples: %w", err)
	}

	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Printf("Enrolled %s (%s) with %d samples\n", label, identityID, result.Stored)
	for _, path := range result.Skipped {
		fmt.Printf("  skipped %s: no face\n", path)
	}
	for _, la := range result.LookAlikes {
		fmt.Printf("Warning: sample %d resembles %s (%s) at %.3f\n", la.Sample, la.IdentityLabel, la.IdentityID, la.Similarity)
	}
	if samples > 0 && result.Stored < samples {
		fmt.Printf("Warning: only %d of %d requested samples collected\n", result.Stored, samples)
	}
	return nil
}

// findLookAlikes reports, per sample, the closest other identity that the
// sample would be recognized as.
func findLookAlikes(m *matcher.Matcher, snap *database.Snapshot, identityID string, vectors [][]float32) ([]LookAlike, error) {
	var out []LookAlike
	for i, v := range vectors {
		neighbors, err := m.Similar(snap, v, 5)
		if err != nil {
			return nil, fmt.Errorf("searching look-alikes: %w", err)
		}
		for _, n := range neighbors {
			if n.Similarity < m.Threshold() {
				break
			}
			if n.IdentityID != identityID {
				out = append(out, LookAlike{Sample: i, Neighbor: n})
				break
			}
		}
	}
	return out, nil
}
