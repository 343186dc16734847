package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/core/engine"
	"github.com/roboforge/roboforge/internal/observability"
	"github.com/roboforge/roboforge/internal/output"
)

var forgeCmd = &cobra.Command{
	Use:   "forge [description]",
	Short: "Generate every artifact for a robot",
	Long: `Generate the parts list, Arduino code, wiring diagram, 3D model and preview
for a robot description in one run. Artifacts are generated concurrently;
a failed artifact is reported without stopping the others.

Use --build to take the part selection from a saved build configuration.`,
	RunE: runForge,
}

func init() {
	rootCmd.AddCommand(forgeCmd)

	forgeCmd.Flags().String("image-url", "", "Reference image URL for vision prompts")
	forgeCmd.Flags().String("image-file", "", "Local reference image, sent inline as a data URL")
	forgeCmd.Flags().StringSlice("parts", nil, "Selected part labels (repeat or comma-separate)")
	forgeCmd.Flags().String("build", "", "Use the parts of this build configuration ID")
	forgeCmd.Flags().StringSlice("only", nil, "Restrict to these artifacts (parts, code, circuit, model, preview)")
	forgeCmd.Flags().Bool("image", false, "Also render a concept image")
	forgeCmd.Flags().String("out-dir", "", "Write each artifact to this directory")
	forgeCmd.Flags().String("output-format", "table", "Summary format: table, markdown, json")
}

func runForge(cmd *cobra.Command, args []string) error {
	imageURL, err := resolveImageRef(cmd)
	if err != nil {
		return err
	}
	partLabels, _ := cmd.Flags().GetStringSlice("parts")
	buildID, _ := cmd.Flags().GetString("build")
	only, _ := cmd.Flags().GetStringSlice("only")
	withImage, _ := cmd.Flags().GetBool("image")
	outDir, _ := cmd.Flags().GetString("out-dir")
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	artifacts, err := parseArtifactList(only)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx, observability.CLILogger, appOptions{store: true, vendor: true})
	if err != nil {
		return fmt.Errorf("loading app: %w", err)
	}
	defer a.Close()
	if err := requireVendorKey(a.cfg); err != nil {
		return err
	}

	if strings.TrimSpace(buildID) != "" {
		build, err := a.store.GetBuild(ctx, buildID)
		if err != nil {
			return err
		}
		partLabels = append(partLabels, build.PartLabels()...)
	}

	result, err := a.forge.Forge(ctx, engine.ForgeRequest{
		Description:  strings.Join(args, " "),
		ImageURL:     imageURL,
		Parts:        partLabels,
		Artifacts:    artifacts,
		IncludeImage: withImage,
	})
	if err != nil {
		return err
	}

	if outDir != "" {
		written, err := writeForgeArtifacts(outDir, result)
		if err != nil {
			return err
		}
		for _, path := range written {
			observability.CLILogger.Info("Wrote artifact", zap.String("path", path))
		}
	}

	rendered, err := output.NewFormatter(format).FormatForge(result)
	if err != nil {
		return err
	}
	fmt.Print(ensureTrailingNewline(rendered))

	total := len(result.Artifacts)
	if withImage {
		total++
	}
	if failed := result.Failed(); failed > 0 && failed == total {
		return fmt.Errorf("all %d artifacts failed", failed)
	}
	return nil
}

func parseArtifactList(values []string) ([]ailink.Artifact, error) {
	var out []ailink.Artifact
	for _, v := range values {
		a, err := ailink.ParseArtifact(v)
		if err != nil {
			return nil, err
		}
		if a.PromptSlug() == "" || a == ailink.ArtifactSearch {
			return nil, fmt.Errorf("artifact %q is not part of a forge run", v)
		}
		out = append(out, a)
	}
	return out, nil
}

// writeForgeArtifacts writes successful artifacts as robot.<ext> and returns
// the paths written.
func writeForgeArtifacts(dir string, result *engine.ForgeResult) ([]string, error) {
	absDir, err := ensureOutDir(dir)
	if err != nil {
		return nil, err
	}
	var written []string
	for _, art := range result.Artifacts {
		if art.Error != nil {
			continue
		}
		path := filepath.Join(absDir, artifactFilename(art))
		if err := os.WriteFile(path, []byte(ensureTrailingNewline(art.Content)), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	if result.Image != nil {
		path := filepath.Join(absDir, "image-url.txt")
		if err := os.WriteFile(path, []byte(result.Image.URL+"\n"), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func artifactFilename(art engine.ArtifactResult) string {
	ext := strings.TrimPrefix(art.Extension, ".")
	if ext == "" {
		ext = "txt"
	}
	name := "robot"
	switch art.Artifact {
	case ailink.ArtifactParts:
		name = "parts"
	case ailink.ArtifactCircuit:
		name = "circuit"
	case ailink.ArtifactPreview:
		name = "preview"
	}
	return name + "." + ext
}
