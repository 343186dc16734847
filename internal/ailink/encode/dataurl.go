// Package encode turns local reference images into data URLs that vision
// prompts accept in place of a hosted image URL.
package encode

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// MaxImageBytes bounds reference images embedded in a prompt.
const MaxImageBytes = 20 << 20

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// ImageDataURL reads an image file and returns it as a base64 data URL.
func ImageDataURL(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxImageBytes {
		return "", fmt.Errorf("%s exceeds %d MiB", path, MaxImageBytes>>20)
	}
	return DataURL(data)
}

// DataURL sniffs the image type of data and encodes it as a data URL.
func DataURL(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image")
	}
	mediaType := http.DetectContentType(data)
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	if !imageTypes[mediaType] {
		return "", fmt.Errorf("unsupported image type %q", mediaType)
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// IsDataURL reports whether ref is already an inline data URL.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:")
}
