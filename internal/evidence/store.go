package evidence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const MaxImageBytes = 5 << 20

var (
	ErrEmptyImage    = errors.New("evidence image is empty")
	ErrImageTooLarge = errors.New("evidence image exceeds size limit")
	ErrNotAnImage    = errors.New("evidence payload is not an image")
	ErrForeignURL    = errors.New("evidence url does not belong to this store")
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// FileStore writes evidence images under a local directory and returns the
// public path they are served from.
type FileStore struct {
	dir     string
	baseURL string
}

func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create evidence directory: %w", err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *FileStore) Save(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if len(data) > MaxImageBytes {
		return "", ErrImageTooLarge
	}

	ext, err := extensionFor(data)
	if err != nil {
		return "", err
	}

	prefix := unsafeName.ReplaceAllString(name, "_")
	if prefix == "" {
		prefix = "evidence"
	}
	filename := fmt.Sprintf("%s_%s%s", prefix, uuid.NewString(), ext)

	// write then rename so readers never observe a partial file
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp evidence file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write evidence file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close evidence file: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, filename)); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store evidence file: %w", err)
	}

	return s.baseURL + "/" + filename, nil
}

// Remove deletes the file behind a URL returned by Save. A file that is
// already gone is not an error.
func (s *FileStore) Remove(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove evidence file: %w", err)
	}
	return nil
}

func extensionFor(data []byte) (string, error) {
	switch http.DetectContentType(data) {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/webp":
		return ".webp", nil
	case "image/gif":
		return ".gif", nil
	}
	return "", ErrNotAnImage
}

// IsDataURL reports whether s is an inline image payload.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:image")
}

// DecodeImage accepts a data URL or bare base64 and returns the raw bytes.
func DecodeImage(s string) ([]byte, error) {
	payload := strings.TrimSpace(s)
	if IsDataURL(payload) {
		idx := strings.Index(payload, ";base64,")
		if idx < 0 {
			return nil, errors.New("data URL is not base64 encoded")
		}
		payload = payload[idx+len(";base64,"):]
	}
	if payload == "" {
		return nil, ErrEmptyImage
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes {
		return nil, ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}
