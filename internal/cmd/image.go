package cmd

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/roboforge/roboforge/internal/observability"
)

// maxImageBytes caps concept image downloads.
const maxImageBytes = 32 << 20

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Concept image commands",
}

var imageGenerateCmd = &cobra.Command{
	Use:   "generate <description>",
	Short: "Render a concept image and save it locally",
	Long: `Render a photorealistic concept image for a robot description.

The image URL is printed. With --out-dir the image is downloaded there, and
--thumb also writes a scaled-down copy next to it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImageGenerate,
}

var imageThumbCmd = &cobra.Command{
	Use:   "thumb <file>...",
	Short: "Write thumbnails for saved images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImageThumb,
}

// thumbOptions controls thumbnail encoding.
type thumbOptions struct {
	MaxSize     int
	Format      string
	JPEGQuality int
	Suffix      string
}

func init() {
	rootCmd.AddCommand(imageCmd)
	imageCmd.AddCommand(imageGenerateCmd, imageThumbCmd)

	imageGenerateCmd.Flags().String("out-dir", "", "Download the image into this directory")
	imageGenerateCmd.Flags().Bool("thumb", false, "Also write a thumbnail (requires --out-dir)")
	imageGenerateCmd.Flags().Duration("download-timeout", 60*time.Second, "Image download timeout")

	for _, c := range []*cobra.Command{imageGenerateCmd, imageThumbCmd} {
		c.Flags().Int("max-size", 256, "Max thumbnail dimension (64-1024)")
		c.Flags().String("format", "jpeg", "Thumbnail format: jpeg or png")
		c.Flags().Int("jpeg-quality", 80, "JPEG quality (1-100)")
		c.Flags().String("suffix", "thumbnail", "Filename suffix (e.g. 'thumbnail' -> name.thumbnail.jpg)")
	}
}

func runImageGenerate(cmd *cobra.Command, args []string) error {
	description := strings.TrimSpace(strings.Join(args, " "))
	if description == "" {
		return errors.New("description is required")
	}
	outDir, _ := cmd.Flags().GetString("out-dir")
	thumb, _ := cmd.Flags().GetBool("thumb")
	timeout, _ := cmd.Flags().GetDuration("download-timeout")
	if thumb && strings.TrimSpace(outDir) == "" {
		return errors.New("--thumb requires --out-dir")
	}
	opts, err := thumbOptionsFromFlags(cmd)
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

	img, err := a.svc.GenerateRobotImage(ctx, description)
	if err != nil {
		return fmt.Errorf("image generation failed: %w", err)
	}
	fmt.Println(img.URL)

	if strings.TrimSpace(outDir) == "" {
		return nil
	}
	absOut, err := ensureOutDir(outDir)
	if err != nil {
		return err
	}
	path := filepath.Join(absOut, sanitizeFilename(img.RobotType)+".png")
	if err := downloadFile(ctx, &http.Client{Timeout: timeout}, img.URL, path); err != nil {
		return fmt.Errorf("download image: %w", err)
	}
	fmt.Println(path)

	if thumb {
		thumbPath := thumbnailPath(absOut, filepath.Base(path), opts)
		if err := writeThumbnail(path, thumbPath, opts); err != nil {
			return fmt.Errorf("thumbnail: %w", err)
		}
		fmt.Println(thumbPath)
	}
	return nil
}

func runImageThumb(cmd *cobra.Command, args []string) error {
	opts, err := thumbOptionsFromFlags(cmd)
	if err != nil {
		return err
	}
	for _, in := range args {
		if isThumbnail(in, opts.Suffix) {
			observability.CLILogger.Debug("Skipping thumbnail input", zap.String("path", in))
			continue
		}
		out := thumbnailPath(filepath.Dir(in), filepath.Base(in), opts)
		if err := writeThumbnail(in, out, opts); err != nil {
			return fmt.Errorf("thumbnail %s: %w", in, err)
		}
		fmt.Println(out)
	}
	return nil
}

func thumbOptionsFromFlags(cmd *cobra.Command) (thumbOptions, error) {
	maxSize, _ := cmd.Flags().GetInt("max-size")
	format, _ := cmd.Flags().GetString("format")
	quality, _ := cmd.Flags().GetInt("jpeg-quality")
	suffix, _ := cmd.Flags().GetString("suffix")

	opts := thumbOptions{
		MaxSize:     maxSize,
		Format:      strings.ToLower(strings.TrimSpace(format)),
		JPEGQuality: quality,
		Suffix:      strings.TrimSpace(suffix),
	}
	if opts.MaxSize < 64 || opts.MaxSize > 1024 {
		return opts, errors.New("--max-size must be between 64 and 1024")
	}
	if opts.Suffix == "" {
		opts.Suffix = "thumbnail"
	}
	switch opts.Format {
	case "png", "jpeg", "jpg":
	default:
		return opts, fmt.Errorf("unsupported format: %s", format)
	}
	return opts, nil
}

func downloadFile(ctx context.Context, client *http.Client, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, io.LimitReader(resp.Body, maxImageBytes)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func isThumbnail(path, suffix string) bool {
	base := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return strings.HasSuffix(base, "."+strings.ToLower(suffix))
}

func thumbnailPath(outDir, filename string, opts thumbOptions) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	ext := "jpg"
	if opts.Format == "png" {
		ext = "png"
	}
	return filepath.Join(outDir, fmt.Sprintf("%s.%s.%s", base, opts.Suffix, ext))
}

func writeThumbnail(inPath, outPath string, opts thumbOptions) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close() // nolint:errcheck

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := makeThumbnail(in, out, opts); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// makeThumbnail scales src so its longer side is at most opts.MaxSize. Images
// already smaller are re-encoded at their own size.
func makeThumbnail(src io.Reader, dst io.Writer, opts thumbOptions) error {
	srcImg, _, err := image.Decode(src)
	if err != nil {
		return err
	}

	bounds := srcImg.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return errors.New("invalid image dimensions")
	}

	scale := min(float64(opts.MaxSize)/float64(max(width, height)), 1)
	newW := max(int(float64(width)*scale), 1)
	newH := max(int(float64(height)*scale), 1)

	scaled := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), srcImg, bounds, draw.Over, nil)

	if opts.Format == "png" {
		return png.Encode(dst, scaled)
	}
	quality := min(max(opts.JPEGQuality, 1), 100)
	return jpeg.Encode(dst, scaled, &jpeg.Options{Quality: quality})
}
