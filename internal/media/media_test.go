package media

import (
	"bytes"
	"context"
	"encoding/base64"
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

func pngDataURL(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestSaveDownsizesWideImages(t *testing.T) {
	dir := t.TempDir()
	s := &DiskStore{Dir: dir, BaseURL: "http://localhost:8080/", MaxWidth: 100}

	url, err := s.Save(context.Background(), pngDataURL(t, 400, 200))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost:8080/media/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"))

	f, err := os.Open(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestSaveKeepsSmallImages(t *testing.T) {
	dir := t.TempDir()
	s := &DiskStore{Dir: dir, BaseURL: "http://h"}
	url, err := s.Save(context.Background(), pngDataURL(t, 20, 10))
	require.NoError(t, err)

	f, err := os.Open(filepath.Join(dir, filepath.Base(url)))
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
}

func TestSavePassesThroughURLs(t *testing.T) {
	s := &DiskStore{Dir: t.TempDir()}
	url, err := s.Save(context.Background(), "https://cdn.example.com/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.jpg", url)
}

func TestSaveRejectsGarbage(t *testing.T) {
	s := &DiskStore{Dir: t.TempDir()}
	for _, payload := range []string{
		"not a url",
		"data:text/plain;base64,aGVsbG8=",
		"data:image/png;base64,!!!",
		"data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("not png")),
	} {
		_, err := s.Save(context.Background(), payload)
		assert.ErrorIs(t, err, ErrInvalidImage, payload)
	}
}
