package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and the effective recognition settings",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().Bool("json", false, "Output as JSON")
}

// VersionInfo describes the build and the settings recognition runs with.
type VersionInfo struct {
	Version   string  `json:"version"`
	Commit    string  `json:"commit"`
	Built     string  `json:"built"`
	GoVersion string  `json:"go_version"`
	Store     string  `json:"store"`
	Dim       int     `json:"embedding_dim"`
	Threshold float64 `json:"threshold"`
	Index     string  `json:"index"`
	Sinks     string  `json:"sinks"`
}

func newVersionInfo(cfg *config.Config) VersionInfo {
	return VersionInfo{
		Version:   Version,
		Commit:    CommitSHA,
		Built:     BuildDate,
		GoVersion: runtime.Version(),
		Store:     cfg.Store.Backend,
		Dim:       cfg.Store.Dim,
		Threshold: cfg.Match.Threshold,
		Index:     cfg.Match.Index,
		Sinks:     cfg.Attendance.Sink,
	}
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := newVersionInfo(config.Load())
	if mustGetBool(cmd, "json") {
		return outputJSON(info)
	}

	fmt.Printf("face-attendance %s (%s)\n", info.Version, info.GoVersion)
	fmt.Printf("  Commit:    %s\n", info.Commit)
	fmt.Printf("  Built:     %s\n", info.Built)
	fmt.Printf("  Store:     %s, %d-d embeddings\n", info.Store, info.Dim)
	fmt.Printf("  Matching:  %s, threshold %.2f\n", info.Index, info.Threshold)
	fmt.Printf("  Sinks:     %s\n", info.Sinks)
	return nil
}
