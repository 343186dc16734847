package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/ailink/encode"
	"github.com/roboforge/roboforge/internal/core"
	"github.com/roboforge/roboforge/internal/core/engine"
	"github.com/roboforge/roboforge/internal/observability"
	"github.com/roboforge/roboforge/internal/output"
)

// maxDescriptionFileChars bounds descriptions read from --description-file.
const maxDescriptionFileChars = 2000

var generateCmd = &cobra.Command{
	Use:   "generate <code|parts|circuit|model|preview|search|image> [description]",
	Short: "Generate one artifact from a robot description",
	Long: `Generate a single artifact for a robot description.

Artifacts:
  code      Arduino sketch
  parts     parts list (CSV; rendered as a table unless --raw)
  circuit   wiring diagram (SVG)
  model     3D model (ASCII STL)
  preview   isometric preview (SVG)
  search    web research notes for a query
  image     photorealistic concept image (prints the URL)

When no description is given but --parts is, the description becomes
"Robot with N parts".`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringP("description-file", "f", "", "Read description from file (truncated to 2000 chars)")
	generateCmd.Flags().String("image-url", "", "Reference image URL for vision prompts")
	generateCmd.Flags().String("image-file", "", "Local reference image, sent inline as a data URL")
	generateCmd.Flags().StringSlice("parts", nil, "Selected part labels (repeat or comma-separate)")
	generateCmd.Flags().String("out", "", "Write the artifact to a file instead of stdout")
	generateCmd.Flags().Bool("raw", false, "Print the artifact exactly as generated")
	generateCmd.Flags().String("output-format", "table", "Output format for parts lists: table, markdown, json")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	artifact, err := ailink.ParseArtifact(args[0])
	if err != nil {
		return err
	}

	descriptionFile, _ := cmd.Flags().GetString("description-file")
	imageURL, err := resolveImageRef(cmd)
	if err != nil {
		return err
	}
	partLabels, _ := cmd.Flags().GetStringSlice("parts")
	outPath, _ := cmd.Flags().GetString("out")
	raw, _ := cmd.Flags().GetBool("raw")
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	description := strings.Join(args[1:], " ")
	if strings.TrimSpace(description) == "" && descriptionFile != "" {
		description, err = readTruncatedFile(descriptionFile, maxDescriptionFileChars)
		if err != nil {
			return fmt.Errorf("reading description file: %w", err)
		}
	}
	description, err = engine.ResolveDescription(description, partLabels)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := loadApp(ctx, observability.CLILogger, appOptions{vendor: true})
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	defer a.Close()
	if err := requireVendorKey(a.cfg); err != nil {
		return err
	}

	if artifact == ailink.ArtifactImage {
		img, err := a.svc.GenerateRobotImage(ctx, description)
		if err != nil {
			return fmt.Errorf("image generation failed: %w", err)
		}
		return withSink(outPath, func(w io.Writer) error {
			if format == output.FormatJSON {
				return writeJSONTo(w, img)
			}
			_, err := fmt.Fprintln(w, img.URL)
			return err
		})
	}

	resp, err := a.svc.GenerateArtifact(ctx, artifact, description, imageURL, partLabels)
	if err != nil {
		return fmt.Errorf("generation failed: %w", err)
	}
	return withSink(outPath, func(w io.Writer) error {
		return writeArtifact(w, artifact, resp, format, raw)
	})
}

// writeArtifact prints a generated artifact. Parts lists are rendered through
// the formatter unless raw output is requested.
func writeArtifact(w io.Writer, artifact ailink.Artifact, resp *ailink.GenerateResponse, format output.Format, raw bool) error {
	if raw {
		_, err := io.WriteString(w, ensureTrailingNewline(resp.Content))
		return err
	}
	if format == output.FormatJSON && artifact != ailink.ArtifactParts {
		return writeJSONTo(w, resp)
	}
	if artifact != ailink.ArtifactParts {
		_, err := io.WriteString(w, ensureTrailingNewline(resp.Content))
		return err
	}

	items, err := core.ParsePartsListString(resp.Content)
	if err != nil || len(items) == 0 {
		_, werr := io.WriteString(w, ensureTrailingNewline(resp.Content))
		return werr
	}
	rendered, err := output.NewFormatter(format).FormatPartsList(items)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, ensureTrailingNewline(rendered))
	return err
}

// resolveImageRef returns --image-url, or --image-file encoded as a data URL.
func resolveImageRef(cmd *cobra.Command) (string, error) {
	imageURL, _ := cmd.Flags().GetString("image-url")
	imageFile, _ := cmd.Flags().GetString("image-file")
	if imageFile == "" {
		return imageURL, nil
	}
	if imageURL != "" {
		return "", fmt.Errorf("--image-url and --image-file are mutually exclusive")
	}
	ref, err := encode.ImageDataURL(imageFile)
	if err != nil {
		return "", fmt.Errorf("reading reference image: %w", err)
	}
	return ref, nil
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ensureTrailingNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

func readTruncatedFile(path string, maxLen int) (result string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if maxLen <= 0 {
		return "", nil
	}

	reader := bufio.NewReader(f)
	var builder strings.Builder
	builder.Grow(maxLen + 3)

	count := 0
	for count < maxLen+1 {
		r, _, readErr := reader.ReadRune()
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", readErr
		}
		if count < maxLen {
			builder.WriteRune(r)
		}
		count++
	}

	content := builder.String()
	if count > maxLen {
		content += "..."
	}
	return content, nil
}
