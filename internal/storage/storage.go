// Package storage provides the object storage backends that hold uploaded recordings.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/oszuidwest/zwfm-voicebox/internal/config"
)

// ErrNotConfigured is returned when the selected backend lacks required settings.
var ErrNotConfigured = errors.New("storage is not configured")

// ErrNotFound is returned by Open when the object does not exist.
var ErrNotFound = errors.New("object not found")

// MaxListObjects caps the number of objects returned by List.
const MaxListObjects = 100

// placeholderName is the marker some dashboards create to keep empty folders visible.
const placeholderName = ".emptyFolderPlaceholder"

// Object describes a stored recording.
type Object struct {
	Name         string    `json:"name"` // Object name without the folder
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Store is an object storage backend.
type Store interface {
	// List returns up to MaxListObjects objects in folder, sorted by name.
	List(ctx context.Context, folder string) ([]Object, error)
	// Upload stores body under key.
	Upload(ctx context.Context, key, contentType string, body []byte) error
	// Open returns the content of the object at key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Test verifies that the backend accepts writes.
	Test(ctx context.Context) error
}

// New creates the store selected by the storage mode in cfg.
func New(cfg *config.Snapshot) (Store, error) {
	switch cfg.StorageMode {
	case config.StorageLocal:
		return NewLocalStore(cfg.LocalPath, cfg.PublicURL)
	case config.StorageS3:
		return NewS3Store(&S3Options{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicURL:       cfg.PublicURL,
			PresignTTL:      time.Duration(cfg.PresignMinutes) * time.Minute,
		})
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}
}

// Key joins a folder and object name into a storage key.
func Key(folder, name string) string {
	return path.Join(strings.Trim(folder, "/"), name)
}

// keep reports whether an entry name belongs in a listing.
func keep(name string) bool {
	return name != "" && name != placeholderName && !strings.Contains(name, "/")
}

// sortAndLimit orders objects by name and truncates to MaxListObjects.
func sortAndLimit(objects []Object) []Object {
	slices.SortFunc(objects, func(a, b Object) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(objects) > MaxListObjects {
		objects = objects[:MaxListObjects]
	}
	return objects
}

// publicURL joins a base URL and a key, escaping each key segment.
func publicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

// checkContentType logs when the sniffed type of body disagrees with the declared type.
func checkContentType(key, contentType string, body []byte) {
	if len(body) == 0 {
		return
	}
	detected := mimetype.Detect(body)
	if detected.Is(contentType) {
		return
	}
	slog.Warn("uploaded content does not match declared type",
		"key", key, "declared", contentType, "detected", detected.String())
}

// unavailableStore fails every operation with the error that prevented the
// configured backend from being created.
type unavailableStore struct {
	err error
}

// Unavailable returns a Store whose operations all fail with err wrapped in
// ErrNotConfigured. It keeps the server usable for recording and diagnostics
// while storage is misconfigured.
func Unavailable(err error) Store {
	return unavailableStore{err: fmt.Errorf("%w: %w", ErrNotConfigured, err)}
}

func (s unavailableStore) List(context.Context, string) ([]Object, error) { return nil, s.err }

func (s unavailableStore) Upload(context.Context, string, string, []byte) error { return s.err }

func (s unavailableStore) Open(context.Context, string) (io.ReadCloser, error) { return nil, s.err }

func (s unavailableStore) Test(context.Context) error { return s.err }

// IsAvailable reports whether s is a working backend rather than one returned by Unavailable.
func IsAvailable(s Store) bool {
	_, unavailable := s.(unavailableStore)
	return s != nil && !unavailable
}
