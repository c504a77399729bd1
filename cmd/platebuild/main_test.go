package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

func TestSourceChannels(t *testing.T) {
	gray := writePNG(t, "gray.png", image.NewGray(image.Rect(0, 0, 4, 4)))
	n, err := sourceChannels(gray)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "grayscale sources must yield single-channel plates")

	rgba := writePNG(t, "rgb.png", image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	n, err = sourceChannels(rgba)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
