package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

// MediaPrefix is the URL path under which LocalStore objects are served.
const MediaPrefix = "/media/"

// LocalStore keeps recordings in a directory on disk.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates a store rooted at dir. Object URLs use baseURL when set,
// otherwise MediaPrefix.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := util.ValidatePath("storage.local_path", dir); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotConfigured, err)
	}
	if baseURL == "" {
		baseURL = strings.TrimSuffix(MediaPrefix, "/")
	}
	return &LocalStore{root: filepath.Clean(dir), baseURL: baseURL}, nil
}

// resolve maps a key to a path below the root.
func (s *LocalStore) resolve(key string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return p, nil
}

// List implements Store.
func (s *LocalStore) List(_ context.Context, folder string) ([]Object, error) {
	dir, err := s.resolve(folder)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Object{}, nil
	}
	if err != nil {
		return nil, util.WrapError("read storage folder", err)
	}

	objects := make([]Object, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !keep(name) || strings.HasPrefix(name, ".upload-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // Removed while listing
		}
		objects = append(objects, Object{
			Name:         name,
			URL:          publicURL(s.baseURL, Key(folder, name)),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC(),
		})
	}

	return sortAndLimit(objects), nil
}

// Upload implements Store. The file is written to a temporary name and renamed
// so that listings never show partial uploads.
func (s *LocalStore) Upload(_ context.Context, key, contentType string, body []byte) error {
	dst, err := s.resolve(key)
	if err != nil {
		return err
	}
	checkContentType(key, contentType, body)

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create storage folder", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return util.WrapError("create upload file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return util.WrapError("write upload file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return util.WrapError("close upload file", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return util.WrapError("set upload file mode", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return util.WrapError("store upload file", err)
	}
	return nil
}

// Open implements Store.
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Test implements Store.
func (s *LocalStore) Test(_ context.Context) error {
	return util.CheckPathWritable(s.root)
}

// Handler serves stored objects below MediaPrefix.
func (s *LocalStore) Handler() http.Handler {
	return http.StripPrefix(MediaPrefix, http.FileServer(http.Dir(s.root)))
}
