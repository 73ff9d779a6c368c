package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/oszuidwest/zwfm-voicebox/internal/types"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
	"golang.org/x/mod/semver"
)

const (
	githubRepo           = "oszuidwest/zwfm-voicebox"
	versionCheckInterval = 24 * time.Hour
	versionCheckDelay    = 30 * time.Second // Keeps the first request out of startup
	versionCheckTimeout  = 30 * time.Second
	versionMaxAttempts   = 3
	versionRetryDelay    = 1 * time.Minute
	versionMaxRetryDelay = 15 * time.Minute
)

// errRetryLater marks a failed check worth repeating within the same cycle.
var errRetryLater = errors.New("release check should be retried")

// retryError is a retryable failure, optionally with the server's Retry-After value.
type retryError struct {
	status     int
	retryAfter string
}

func (e *retryError) Error() string {
	return fmt.Sprintf("github API returned status %d", e.status)
}

func (e *retryError) Unwrap() error { return errRetryLater }

// VersionChecker polls GitHub for the latest voicebox release and reports
// whether an update is available. It is safe for concurrent use.
type VersionChecker struct {
	mu      sync.RWMutex
	latest  string
	etag    string // For conditional requests (304 Not Modified)
	apiBase string
	client  *http.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// NewVersionChecker returns a VersionChecker that polls in the background until Stop.
func NewVersionChecker() *VersionChecker {
	vc := newVersionChecker("https://api.github.com")
	go vc.run()
	return vc
}

// newVersionChecker returns a checker against apiBase without starting the poll loop.
func newVersionChecker(apiBase string) *VersionChecker {
	ctx, cancel := context.WithCancel(context.Background())
	return &VersionChecker{
		apiBase: apiBase,
		client:  &http.Client{Timeout: versionCheckTimeout},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Stop ends the poll loop and aborts a running check.
func (vc *VersionChecker) Stop() {
	vc.cancel()
}

func (vc *VersionChecker) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in version checker", "panic", r)
		}
	}()

	wait := versionCheckDelay
	for {
		select {
		case <-time.After(wait):
			vc.checkWithRetry()
		case <-vc.ctx.Done():
			return
		}
		wait = versionCheckInterval
	}
}

// checkWithRetry runs one check cycle, backing off between retryable failures.
func (vc *VersionChecker) checkWithRetry() {
	backoff := util.NewBackoff(versionRetryDelay, versionMaxRetryDelay)
	for attempt := 1; ; attempt++ {
		err := vc.check(vc.ctx)
		if err == nil {
			return
		}
		if !errors.Is(err, errRetryLater) || attempt == versionMaxAttempts {
			slog.Debug("version check failed", "attempt", attempt, "error", err)
			return
		}
		var rerr *retryError
		retryAfter := ""
		if errors.As(err, &rerr) {
			retryAfter = rerr.retryAfter
		}
		if backoff.Wait(vc.ctx, retryAfter) != nil {
			return
		}
	}
}

// githubRelease represents a release with version and status information.
type githubRelease struct {
	TagName    string `json:"tag_name"`
	Draft      bool   `json:"draft"`
	Prerelease bool   `json:"prerelease"`
}

// check fetches the latest release. Errors wrapping errRetryLater are transient.
func (vc *VersionChecker) check(ctx context.Context) error {
	url := vc.apiBase + "/repos/" + githubRepo + "/releases/latest"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "zwfm-voicebox/"+Version)

	vc.mu.RLock()
	if vc.etag != "" {
		req.Header.Set("If-None-Match", vc.etag)
	}
	vc.mu.RUnlock()

	resp, err := vc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errRetryLater, err)
	}
	defer util.SafeCloseFunc(resp.Body, "release response body")()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotModified, resp.StatusCode == http.StatusNotFound:
		// Unchanged, or no releases published yet.
		return nil
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return &retryError{status: resp.StatusCode, retryAfter: resp.Header.Get("Retry-After")}
	default:
		return fmt.Errorf("github API returned status %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return fmt.Errorf("%w: decode release: %w", errRetryLater, err)
	}
	if release.Draft || release.Prerelease {
		return nil
	}
	if release.TagName == "" {
		return fmt.Errorf("%w: release without tag", errRetryLater)
	}

	vc.mu.Lock()
	vc.latest = normalizeVersion(release.TagName)
	if etag := resp.Header.Get("ETag"); etag != "" {
		vc.etag = etag
	}
	vc.mu.Unlock()
	return nil
}

// Info returns the current version info for the frontend.
func (vc *VersionChecker) Info() types.VersionInfo {
	vc.mu.RLock()
	latest := vc.latest
	vc.mu.RUnlock()

	current := normalizeVersion(Version)
	info := types.VersionInfo{
		Current:   current,
		Latest:    latest,
		Commit:    Commit,
		BuildTime: util.FormatHumanTime(BuildTime),
	}
	// Development builds have no comparable version.
	if latest != "" && semver.IsValid(canonicalVersion(current)) {
		info.UpdateAvail = isNewerVersion(latest, current)
	}
	return info
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// canonicalVersion returns v with the "v" prefix semver expects.
func canonicalVersion(v string) string {
	return "v" + normalizeVersion(v)
}

// isNewerVersion reports whether latest is newer than current.
func isNewerVersion(latest, current string) bool {
	return semver.Compare(canonicalVersion(latest), canonicalVersion(current)) > 0
}
