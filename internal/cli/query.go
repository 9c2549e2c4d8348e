package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/amplifier/internal/store"
)

// --- amplified command ---

var (
	amplifiedMinScore int
	amplifiedLimit    int
)

var amplifiedCmd = &cobra.Command{
	Use:   "amplified",
	Short: "List entities tracked by several organizations",
	RunE:  runAmplified,
}

// --- snapshots command ---

var (
	snapshotsFrom string
	snapshotsTo   string
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots <tenant-id>",
	Short: "Show a tenant's daily intelligence snapshots",
	Args:  cobra.ExactArgs(1),
	RunE:  runSnapshots,
}

func init() {
	amplifiedCmd.Flags().IntVar(&amplifiedMinScore, "min-score", 0, "Minimum amplification score")
	amplifiedCmd.Flags().IntVarP(&amplifiedLimit, "limit", "n", 20, "Maximum number of entities")

	snapshotsCmd.Flags().StringVar(&snapshotsFrom, "from", "", "First day, YYYY-MM-DD")
	snapshotsCmd.Flags().StringVar(&snapshotsTo, "to", "", "Last day, YYYY-MM-DD")
}

func runAmplified(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	rows, err := st.ListAmplifications(ctx, amplifiedMinScore, amplifiedLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(rows) == 0 {
		fmt.Fprintln(out, "No amplified entities.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tENTITY\tTYPE\tORGS\tSIGNALS\t7D\tINDUSTRIES")
	for _, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.AmplificationScore, r.EntityName, r.EntityType, r.TenantCount,
			r.SignalCount, r.SignalsLast7d, strings.Join(r.Industries, ", "))
	}
	return tw.Flush()
}

func runSnapshots(cmd *cobra.Command, args []string) error {
	from, err := parseDay(snapshotsFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseDay(snapshotsTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := st.ListSnapshots(ctx, args[0], from, to)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(snaps) == 0 {
		fmt.Fprintln(out, "No snapshots found.")
		return nil
	}

	for _, s := range snaps {
		fmt.Fprintf(out, "%s  tension %d/10  opportunity %d/10  %s  (%d surprises)\n",
			s.SnapshotDate, s.TensionLevel, s.OpportunityLevel, s.OverallSentiment, s.SurpriseCount)
		if s.BiggestSurprise != nil {
			fmt.Fprintf(out, "  biggest surprise: %s\n", s.BiggestSurprise.WhySurprising)
		}
		for _, e := range s.KeyEvents {
			fmt.Fprintf(out, "  - %s\n", e)
		}
		for _, sh := range s.NarrativeShifts {
			fmt.Fprintf(out, "  ~ %s: %s\n", sh.Narrative, sh.Shift)
		}
	}
	return nil
}

func parseDay(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(store.DateLayout, v)
}
