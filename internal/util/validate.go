package util

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IsConfigured reports whether all provided values are non-empty.
func IsConfigured(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return false
		}
	}
	return true
}

// ValidatePath rejects empty paths and paths containing "..".
func ValidatePath(field, path string) error {
	if path == "" {
		return fmt.Errorf("%s: is required", field)
	}
	if strings.Contains(path, "..") || strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("%s: path cannot contain '..'", field)
	}
	return nil
}

// ValidateObjectName reports whether name is a single path segment that is safe
// to join below a storage folder.
func ValidateObjectName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("invalid object name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("object name %q must not contain path separators", name)
	}
	return nil
}

// CheckPathWritable verifies that a directory exists (creating it if needed) and
// that a file can be written to and removed from it.
func CheckPathWritable(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		slog.Error("path writability check failed", "path", path, "error", err, "step", "mkdir")
		return fmt.Errorf("path is not writable")
	}

	testFile := filepath.Join(path, fmt.Sprintf(".voicebox-write-test-%d", time.Now().UnixNano()))
	if err := os.WriteFile(testFile, make([]byte, 1024), 0o600); err != nil {
		_ = os.Remove(testFile) // Best effort cleanup
		slog.Error("path writability check failed", "path", path, "error", err, "step", "write")
		return fmt.Errorf("path is not writable")
	}

	if err := os.Remove(testFile); err != nil {
		slog.Error("path writability check failed", "path", path, "error", err, "step", "remove")
		return fmt.Errorf("path is not writable")
	}

	return nil
}
