package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/amplifier/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import tenants and signals from a JSONL file",
	Long: "Each line is a JSON object with \"kind\" set to \"tenant\" or \"signal\". " +
		"Malformed lines are skipped and counted. Tenants must come before their signals.",
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := ingest.NewImporter(st).ImportFile(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d tenants and %d signals (%d skipped, %d failed)\n",
		res.Tenants, res.Signals, res.Skipped, res.Failed)
	return nil
}
