// Package media turns image payloads into durable URLs before a message is
// persisted.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"go.uber.org/zap"
)

// ErrInvalidImage is returned for payloads that are not a decodable image.
var ErrInvalidImage = errors.New("invalid image payload")

// DefaultMaxWidth bounds stored images.
const DefaultMaxWidth = 1280

// Store resolves an image payload to a URL.
type Store interface {
	Save(ctx context.Context, payload string) (string, error)
}

// DiskStore writes images under Dir and serves them as BaseURL/media/<file>.
type DiskStore struct {
	Dir      string
	BaseURL  string
	MaxWidth uint
	Logger   *zap.Logger
}

var _ Store = (*DiskStore)(nil)

// Save accepts a data URL and returns the public URL of the stored file.
// Payloads that already are http(s) URLs are returned unchanged.
func (s *DiskStore) Save(ctx context.Context, payload string) (string, error) {
	if strings.HasPrefix(payload, "http://") || strings.HasPrefix(payload, "https://") {
		return payload, nil
	}
	raw, err := decodeDataURL(payload)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	maxWidth := s.MaxWidth
	if maxWidth == 0 {
		maxWidth = DefaultMaxWidth
	}
	if uint(img.Bounds().Dx()) > maxWidth {
		img = resize.Resize(maxWidth, 0, img, resize.Lanczos3)
	}

	var (
		buf bytes.Buffer
		ext string
	)
	if format == "jpeg" {
		ext = ".jpg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	} else {
		ext = ".png"
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}

	if err := os.MkdirAll(s.Dir, 0o700); err != nil {
		return "", fmt.Errorf("create media dir: %w", err)
	}
	name := uuid.Must(uuid.NewV7()).String() + ext
	tmp := filepath.Join(s.Dir, "."+name+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.Dir, name)); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename image: %w", err)
	}

	if s.Logger != nil {
		s.Logger.Debug("image stored", zap.String("file", name), zap.String("format", format), zap.Int("bytes", buf.Len()))
	}
	return strings.TrimRight(s.BaseURL, "/") + "/media/" + name, nil
}

func decodeDataURL(payload string) ([]byte, error) {
	rest, ok := strings.CutPrefix(payload, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URL", ErrInvalidImage)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") || !strings.HasPrefix(meta, "image/") {
		return nil, fmt.Errorf("%w: expected base64 image data URL", ErrInvalidImage)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return raw, nil
}
