package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roboforge/roboforge/internal/ailink/prompt"
	"github.com/roboforge/roboforge/internal/config"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "Inspect generation prompts",
	Long: `Inspect the prompts used for generation. Built-in prompts can be
overridden per slug by placing markdown files in ailink.prompts_dir.`,
}

var promptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadPromptRegistry(cmd)
		if err != nil {
			return err
		}

		prompts := registry.List()
		if len(prompts) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "No prompts found.")
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Slug", "Version", "Output", "Source", "Description"})
		for _, p := range prompts {
			if p == nil {
				continue
			}
			t.AppendRow(table.Row{p.Config.Slug, p.Config.Version, p.Config.Output.Extension, p.Source, p.Config.Description})
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

var promptsShowCmd = &cobra.Command{
	Use:   "show <slug> [description]",
	Short: "Render a prompt's messages",
	Long:  `Render the system and user messages a prompt sends, using a sample description.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadPromptRegistry(cmd)
		if err != nil {
			return err
		}
		def, err := registry.Get(args[0])
		if err != nil {
			return err
		}

		description := strings.Join(args[1:], " ")
		if description == "" {
			description = "A two-wheeled line-following robot"
		}
		parts, _ := cmd.Flags().GetStringSlice("parts")
		system, user, err := prompt.Render(def, map[string]string{
			"description": description,
			"query":       description,
			"parts":       strings.Join(parts, ", "),
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "# %s (%s)\n\n", def.Config.Slug, def.Source)
		_, _ = fmt.Fprintf(out, "## system\n\n%s\n\n", system)
		_, err = fmt.Fprintf(out, "## user\n\n%s\n", user)
		return err
	},
}

func init() {
	rootCmd.AddCommand(promptsCmd)
	promptsCmd.AddCommand(promptsListCmd, promptsShowCmd)

	promptsShowCmd.Flags().StringSlice("parts", nil, "Sample part labels")
}

func loadPromptRegistry(cmd *cobra.Command) (prompt.Registry, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	return prompt.RegistryWithOverrides(cfg.AILink.PromptsDir)
}
