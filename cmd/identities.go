package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/labels"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "List enrolled identities",
	Long: `List enrolled identities with their number of samples.

Examples:
  face-attendance identities
  face-attendance identities --query novak --json`,
	Args: cobra.NoArgs,
	RunE: runIdentitiesList,
}

var identitiesRemoveCmd = &cobra.Command{
	Use:   "remove <identity-id>...",
	Short: "Remove all samples of identities",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIdentitiesRemove,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesRemoveCmd)

	identitiesCmd.Flags().String("query", "", "Filter by ID or name (diacritics insensitive)")
	identitiesCmd.Flags().Bool("json", false, "Output as JSON")
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ids := labels.Filter(store.Identities(), mustGetString(cmd, "query"))
	if mustGetBool(cmd, "json") {
		return outputJSON(ids)
	}

	if len(ids) == 0 {
		fmt.Println("No identities enrolled")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSAMPLES")
	fmt.Fprintln(w, "--\t----\t-------")
	for _, id := range ids {
		fmt.Fprintf(w, "%s\t%s\t%d\n", id.ID, id.Label, id.Samples)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d identities, %d samples\n", len(ids), store.Count())
	return nil
}

func runIdentitiesRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	for _, id := range args {
		n, err := store.DeleteIdentity(ctx, id)
		if err != nil {
			return fmt.Errorf("removing %s: %w", id, err)
		}
		if n == 0 {
			fmt.Printf("%s: not enrolled\n", id)
			continue
		}
		fmt.Printf("%s: removed %d samples\n", id, n)
	}
	return nil
}
