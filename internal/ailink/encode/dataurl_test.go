package encode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageDataURLEncodesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.png")
	require.NoError(t, os.WriteFile(path, pngBytes(t), 0o600))

	url, err := ImageDataURL(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "data:image/png;base64,"))
	assert.True(t, IsDataURL(url))
}

func TestDataURLRejectsNonImages(t *testing.T) {
	_, err := DataURL([]byte("just some text"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image type")

	_, err = DataURL(nil)
	require.Error(t, err)
}

func TestImageDataURLMissingFile(t *testing.T) {
	_, err := ImageDataURL(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}

func TestIsDataURL(t *testing.T) {
	assert.False(t, IsDataURL("https://example.com/robot.png"))
	assert.True(t, IsDataURL("data:image/jpeg;base64,AAAA"))
}
