package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/store"
	"github.com/roboforge/roboforge/internal/observability"
	"github.com/roboforge/roboforge/internal/output"
)

var buildsCmd = &cobra.Command{
	Use:     "builds",
	Aliases: []string{"build"},
	Short:   "Manage saved build configurations",
}

var buildsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List build configurations",
	Args:  cobra.NoArgs,
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, f output.Formatter, _ []string) error {
		builds, err := st.ListBuilds(cmd.Context())
		if err != nil {
			return err
		}
		return printFormatted(cmd, func() (string, error) { return f.FormatBuilds(builds) })
	}),
}

var buildsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one build configuration",
	Args:  cobra.ExactArgs(1),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, f output.Formatter, args []string) error {
		build, err := st.GetBuild(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printFormatted(cmd, func() (string, error) { return f.FormatBuild(build) })
	}),
}

var buildsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a build configuration",
	Long:  `Create a build configuration. Without a name it is called "Configuration N".`,
	Args:  cobra.MaximumNArgs(1),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, f output.Formatter, args []string) error {
		build, err := st.CreateBuild(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		return printFormatted(cmd, func() (string, error) { return f.FormatBuild(build) })
	}),
}

var buildsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a build configuration",
	Args:  cobra.MinimumNArgs(2),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, f output.Formatter, args []string) error {
		name := strings.TrimSpace(strings.Join(args[1:], " "))
		if name == "" {
			return errors.New("name is required")
		}
		build, err := st.RenameBuild(cmd.Context(), args[0], name)
		if err != nil {
			return err
		}
		return printFormatted(cmd, func() (string, error) { return f.FormatBuild(build) })
	}),
}

var buildsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a build configuration",
	Args:  cobra.ExactArgs(1),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, _ output.Formatter, args []string) error {
		if err := st.DeleteBuild(cmd.Context(), args[0]); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return err
	}),
}

var buildsAddPartCmd = &cobra.Command{
	Use:   "add-part <id>",
	Short: "Add a part to a build configuration",
	Args:  cobra.ExactArgs(1),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, f output.Formatter, args []string) error {
		part, err := partFromFlags(cmd)
		if err != nil {
			return err
		}
		build, err := st.AddPart(cmd.Context(), args[0], part)
		if err != nil {
			return err
		}
		return printFormatted(cmd, func() (string, error) { return f.FormatBuild(build) })
	}),
}

var buildsRemovePartCmd = &cobra.Command{
	Use:   "remove-part <id> <index>",
	Short: "Remove the part at a zero-based index",
	Args:  cobra.ExactArgs(2),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, f output.Formatter, args []string) error {
		index, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid index %q", args[1])
		}
		build, err := st.RemovePart(cmd.Context(), args[0], index)
		if err != nil {
			return err
		}
		return printFormatted(cmd, func() (string, error) { return f.FormatBuild(build) })
	}),
}

var buildsExportCmd = &cobra.Command{
	Use:   "export [id]",
	Short: "Export build configurations as JSON",
	Long:  `Export one build configuration, or all of them, as JSON. Use --out to write a file.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: withBuilds(func(cmd *cobra.Command, st *store.Store, _ output.Formatter, args []string) error {
		var payload any
		if len(args) == 1 {
			build, err := st.GetBuild(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			payload = build
		} else {
			builds, err := st.ListBuilds(cmd.Context())
			if err != nil {
				return err
			}
			payload = map[string]any{"builds": builds}
		}

		outPath, _ := cmd.Flags().GetString("out")
		return withSink(outPath, func(w io.Writer) error {
			return writeJSONTo(w, payload)
		})
	}),
}

func init() {
	rootCmd.AddCommand(buildsCmd)
	buildsCmd.AddCommand(buildsListCmd, buildsShowCmd, buildsCreateCmd, buildsRenameCmd,
		buildsDeleteCmd, buildsAddPartCmd, buildsRemovePartCmd, buildsExportCmd)

	buildsCmd.PersistentFlags().String("output-format", "table", "Output format: table, markdown, json")

	buildsAddPartCmd.Flags().String("mpn", "", "Manufacturer part number")
	buildsAddPartCmd.Flags().String("name", "", "Part name")
	buildsAddPartCmd.Flags().String("manufacturer", "", "Manufacturer")
	buildsAddPartCmd.Flags().String("category", "", "Category")
	buildsAddPartCmd.Flags().Int("qty", 1, "Quantity")
	buildsAddPartCmd.Flags().String("json", "", "Part as JSON (overrides the other flags)")

	buildsExportCmd.Flags().String("out", "", "Write to a file instead of stdout")
}

type buildsRunner func(cmd *cobra.Command, st *store.Store, f output.Formatter, args []string) error

// withBuilds opens the store and resolves the output format for a builds subcommand.
func withBuilds(run buildsRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		a, err := loadApp(cmd.Context(), observability.CLILogger, appOptions{store: true})
		if err != nil {
			return fmt.Errorf("loading app: %w", err)
		}
		defer a.Close()
		return run(cmd, a.store, output.NewFormatter(format), args)
	}
}

func printFormatted(cmd *cobra.Command, render func() (string, error)) error {
	rendered, err := render()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), ensureTrailingNewline(rendered))
	return err
}

func partFromFlags(cmd *cobra.Command) (core.Part, error) {
	var part core.Part
	if raw, _ := cmd.Flags().GetString("json"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &part); err != nil {
			return part, fmt.Errorf("invalid part JSON: %w", err)
		}
	} else {
		part.MPN, _ = cmd.Flags().GetString("mpn")
		part.Name, _ = cmd.Flags().GetString("name")
		part.Manufacturer, _ = cmd.Flags().GetString("manufacturer")
		part.Category, _ = cmd.Flags().GetString("category")
		part.Quantity, _ = cmd.Flags().GetInt("qty")
	}
	part.MPN = strings.TrimSpace(part.MPN)
	part.Name = strings.TrimSpace(part.Name)
	if part.MPN == "" && part.Name == "" {
		return part, errors.New("a part needs --mpn or --name")
	}
	if part.Quantity <= 0 {
		part.Quantity = 1
	}
	return part, nil
}
