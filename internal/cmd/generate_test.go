package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roboforge/roboforge/internal/ailink"
	"github.com/roboforge/roboforge/internal/output"
)

const samplePartsCSV = `category,name,mpn,qty,price_eur,supplier,url,specs
Controller,Arduino Uno R3,A000066,1,24.00,Arduino,https://store.arduino.cc,ATmega328P
Sensor,HC-SR04,HC-SR04,2,3.50,Generic,,ultrasonic
`

func TestWriteArtifactRendersPartsList(t *testing.T) {
	var buf bytes.Buffer
	resp := &ailink.GenerateResponse{Content: samplePartsCSV}
	require.NoError(t, writeArtifact(&buf, ailink.ArtifactParts, resp, output.FormatTable, false))

	out := buf.String()
	assert.Contains(t, out, "Arduino Uno R3")
	assert.Contains(t, out, "31.00")
	assert.NotContains(t, out, "price_eur")
}

func TestWriteArtifactRawPassthrough(t *testing.T) {
	var buf bytes.Buffer
	resp := &ailink.GenerateResponse{Content: samplePartsCSV}
	require.NoError(t, writeArtifact(&buf, ailink.ArtifactParts, resp, output.FormatTable, true))
	assert.Equal(t, samplePartsCSV, buf.String())
}

func TestWriteArtifactFallsBackWhenPartsUnparseable(t *testing.T) {
	var buf bytes.Buffer
	resp := &ailink.GenerateResponse{Content: "no table today"}
	require.NoError(t, writeArtifact(&buf, ailink.ArtifactParts, resp, output.FormatTable, false))
	assert.Equal(t, "no table today\n", buf.String())
}

func TestWriteArtifactJSON(t *testing.T) {
	var buf bytes.Buffer
	resp := &ailink.GenerateResponse{
		PromptSlug: "arduino-code",
		Content:    "void loop() {}",
		Format:     "cpp",
	}
	require.NoError(t, writeArtifact(&buf, ailink.ArtifactCode, resp, output.FormatJSON, false))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "void loop() {}", decoded["content"])
	assert.Equal(t, "cpp", decoded["format"])
}

func TestGenerateHelpListsArtifactFormats(t *testing.T) {
	assert.Contains(t, generateCmd.Long, "3D model (ASCII STL)")
	assert.NotContains(t, generateCmd.Long, "OpenSCAD")
}

func TestReadTruncatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desc.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("ä", 10)), 0o644))

	got, err := readTruncatedFile(path, 4)
	require.NoError(t, err)
	assert.Equal(t, "ääää...", got)

	got, err = readTruncatedFile(path, 10)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ä", 10), got)

	_, err = readTruncatedFile(filepath.Join(t.TempDir(), "missing"), 4)
	assert.Error(t, err)
}

func newImageRefCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	c.Flags().String("image-url", "", "")
	c.Flags().String("image-file", "", "")
	return c
}

func TestResolveImageRef(t *testing.T) {
	c := newImageRefCommand()
	require.NoError(t, c.Flags().Set("image-url", "https://example.com/bot.png"))
	ref, err := resolveImageRef(c)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/bot.png", ref)

	path := filepath.Join(t.TempDir(), "bot.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\n0000"), 0o600))

	c = newImageRefCommand()
	require.NoError(t, c.Flags().Set("image-file", path))
	ref, err = resolveImageRef(c)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "data:image/png;base64,"))

	require.NoError(t, c.Flags().Set("image-url", "https://example.com/bot.png"))
	_, err = resolveImageRef(c)
	require.Error(t, err)
}
