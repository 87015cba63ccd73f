package main

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

const fixture = "```json\n" + `{
	"explanation": "Cyclone moving north-west.",
	"locationName": "Darwin, Australia",
	"temperature": 31,
	"stormTrack": [{"hour": 0, "x": 80, "y": 20}, {"hour": 24, "x": 40, "y": 60}],
	"windField": [{"x": 50, "y": 50, "speed": 75, "direction": 315}],
	"anomalies": [{"points": [{"x": 5, "y": 5}, {"x": 15, "y": 5}, {"x": 10, "y": 15}], "description": "Dry slot"}]
}` + "\n```"

func writeFixtures(t *testing.T) (analysisPath, imagePath string) {
	t.Helper()
	dir := t.TempDir()
	analysisPath = filepath.Join(dir, "analysis.json")
	require.NoError(t, os.WriteFile(analysisPath, []byte(fixture), 0o644))

	img := image.NewRGBA(image.Rect(0, 0, 60, 30))
	img.Set(1, 1, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	imagePath = filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(imagePath, buf.Bytes(), 0o644))
	return analysisPath, imagePath
}

func TestRun_WritesAllOutputs(t *testing.T) {
	analysisPath, imagePath := writeFixtures(t)
	out := filepath.Join(t.TempDir(), "out")
	var stdout, stderr bytes.Buffer

	code := run([]string{"-analysis", analysisPath, "-image", imagePath, "-out", out, "-hour", "12", "-card-width", "400"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Darwin, Australia")
	assert.Contains(t, stdout.String(), "60x30")

	for _, name := range []string{"overlay.svg", "overlay.png", "wind.png", "card.png", "export.csv"} {
		info, err := os.Stat(filepath.Join(out, name))
		require.NoError(t, err, name)
		assert.Positive(t, info.Size(), name)
	}

	f, err := os.Open(filepath.Join(out, "overlay.png"))
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Width, "overlay drawn over the source image")

	csv, err := os.ReadFile(filepath.Join(out, "export.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "photo.png")
}

func TestRun_WithoutImage(t *testing.T) {
	analysisPath, _ := writeFixtures(t)
	out := t.TempDir()
	var stdout, stderr bytes.Buffer

	code := run([]string{"-analysis", analysisPath, "-out", out, "-width", "200", "-height", "100", "-card-width", "400"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	svg, err := os.ReadFile(filepath.Join(out, "overlay.svg"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100"`))
}

func TestRun_Errors(t *testing.T) {
	analysisPath, _ := writeFixtures(t)
	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "missing analysis flag", args: nil, code: 2},
		{name: "unknown flag", args: []string{"-nope"}, code: 2},
		{name: "analysis not found", args: []string{"-analysis", "does-not-exist.json"}, code: 1},
		{name: "unknown layer", args: []string{"-analysis", analysisPath, "-layers", "clouds"}, code: 1},
		{name: "half-specified size", args: []string{"-analysis", analysisPath, "-out", t.TempDir(), "-width", "100"}, code: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, run(tt.args, &stdout, &stderr))
		})
	}
}
