package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roboforge/roboforge/internal/observability"
	"github.com/roboforge/roboforge/internal/output"
)

var partsCmd = &cobra.Command{
	Use:   "parts",
	Short: "Search electronic components",
}

var partsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search parts through Nexar",
	Long: `Search electronic components by free text. Requires NEXAR_CLIENT_ID and
NEXAR_CLIENT_SECRET (or parts.client_id / parts.client_secret in config).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPartsSearch,
}

func init() {
	rootCmd.AddCommand(partsCmd)
	partsCmd.AddCommand(partsSearchCmd)

	partsSearchCmd.Flags().String("output-format", "table", "Output format: table, markdown, json")
	partsSearchCmd.Flags().Bool("raw", false, "Print the upstream response data as JSON")
	partsSearchCmd.Flags().Bool("no-cache", false, "Bypass the local search cache")
}

func runPartsSearch(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	raw, _ := cmd.Flags().GetBool("raw")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx, observability.CLILogger, appOptions{store: !noCache})
	if err != nil {
		return fmt.Errorf("loading app: %w", err)
	}
	defer a.Close()

	result, err := a.parts.Search(ctx, query)
	if err != nil {
		return err
	}

	if raw {
		return writeJSONTo(cmd.OutOrStdout(), result.Data)
	}
	rendered, err := output.NewFormatter(format).FormatParts(result.Parts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), ensureTrailingNewline(rendered))
	return err
}
