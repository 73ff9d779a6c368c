// Package config provides application configuration management.
package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/oszuidwest/zwfm-voicebox/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultWebPort               = 8080
	DefaultStationName           = "ZuidWest FM"
	DefaultStationColorLight     = "#E6007E"
	DefaultStationColorDark      = "#E6007E"
	DefaultStorageMode           = StorageLocal
	DefaultFolder                = "recordings"
	DefaultLocalPath             = "/var/lib/voicebox"
	DefaultPresignMinutes        = 60
	DefaultS3Region              = "auto"
	DefaultMaxDurationMinutes    = 30
	DefaultMaxSizeMB             = 50
	DefaultWebhookTimeoutSeconds = 10
)

// StorageMode determines where uploaded recordings are stored.
type StorageMode string

// Supported storage modes.
const (
	StorageLocal StorageMode = "local" // Files below storage.local_path
	StorageS3    StorageMode = "s3"    // S3-compatible bucket
)

// Validation patterns define regular expressions for configuration value validation.
var (
	// Station name: any printable characters except control chars
	stationNamePattern  = regexp.MustCompile(`^[^\x00-\x1F\x7F]+$`)
	stationColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	folderPattern       = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9 _.-]*$`)
)

// IsValidFolder reports whether name can be used as a storage folder.
func IsValidFolder(name string) bool {
	return folderPattern.MatchString(name)
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	FFmpegPath string `json:"ffmpeg_path"`                               // Path to FFmpeg binary (empty = use PATH)
	Port       int    `json:"port" validate:"omitempty,gte=1,lte=65535"` // HTTP server port
}

// WebConfig holds page branding settings.
type WebConfig struct {
	StationName string `json:"station_name"` // Display name in the page header
	ColorLight  string `json:"color_light"`  // Accent color for light mode (#RRGGBB)
	ColorDark   string `json:"color_dark"`   // Accent color for dark mode (#RRGGBB)
}

// AudioConfig holds the local input device used by headless recording.
type AudioConfig struct {
	Input string `json:"input"` // Audio input device identifier (empty = platform default)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint        string `json:"endpoint,omitempty" validate:"omitempty,url,max=2048"` // Custom endpoint (empty for AWS)
	Region          string `json:"region,omitempty" validate:"omitempty,max=64"`         // Region (default "auto")
	Bucket          string `json:"bucket,omitempty" validate:"omitempty,max=63"`         // Bucket name
	AccessKeyID     string `json:"access_key_id,omitempty" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key,omitempty" validate:"omitempty,max=256"`
}

// IsConfigured reports whether bucket and credentials are set.
func (c *S3Config) IsConfigured() bool {
	return util.IsConfigured(c.Bucket, c.AccessKeyID, c.SecretAccessKey)
}

// StorageConfig holds the object storage backend settings.
type StorageConfig struct {
	Mode           StorageMode `json:"mode" validate:"omitempty,oneof=local s3"`
	Folder         string      `json:"folder" validate:"omitempty,max=100"`                  // Folder that holds the recordings
	LocalPath      string      `json:"local_path" validate:"omitempty,max=4096"`             // Root directory for local mode
	PublicURL      string      `json:"public_url" validate:"omitempty,url,max=2048"`         // Base URL for object links
	PresignMinutes int         `json:"presign_minutes" validate:"omitempty,gte=1,lte=10080"` // Presigned link lifetime (S3 without public_url)
	S3             S3Config    `json:"s3"`
}

// RecordingConfig holds limits for a single recording session.
type RecordingConfig struct {
	MaxDurationMinutes int `json:"max_duration_minutes" validate:"omitempty,gte=1,lte=1440"`
	MaxSizeMB          int `json:"max_size_mb" validate:"omitempty,gte=1,lte=2048"`
}

// WebhookConfig holds webhook notification settings. The OAuth2 fields are
// optional and enable client-credentials authentication.
type WebhookConfig struct {
	URL          string   `json:"url" validate:"omitempty,url,max=2048"`
	TokenURL     string   `json:"token_url,omitempty" validate:"omitempty,url,max=2048"`
	ClientID     string   `json:"client_id,omitempty" validate:"omitempty,max=256"`
	ClientSecret string   `json:"client_secret,omitempty" validate:"omitempty,max=500"`
	Scopes       []string `json:"scopes,omitempty" validate:"omitempty,dive,max=256"`
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"`
}

// LogConfig holds event log settings.
type LogConfig struct {
	EventPath string `json:"event_path" validate:"omitempty,max=4096"` // JSON lines event log (empty = platform default)
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Web           WebConfig           `json:"web"`
	Audio         AudioConfig         `json:"audio"`
	Storage       StorageConfig       `json:"storage"`
	Recording     RecordingConfig     `json:"recording"`
	Notifications NotificationsConfig `json:"notifications"`
	Log           LogConfig           `json:"log"`

	mu       sync.RWMutex
	filePath string
}

// validate is the validator for struct tags on the configuration sections.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port: DefaultWebPort,
		},
		Web: WebConfig{
			StationName: DefaultStationName,
			ColorLight:  DefaultStationColorLight,
			ColorDark:   DefaultStationColorDark,
		},
		Storage: StorageConfig{
			Mode:      DefaultStorageMode,
			Folder:    DefaultFolder,
			LocalPath: DefaultLocalPath,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if os.IsNotExist(err) {
		return c.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return util.WrapError("parse config", err)
	}

	c.applyDefaults()

	return c.validate()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	name := c.Web.StationName
	if name == "" || len(name) > 30 || !stationNamePattern.MatchString(name) {
		return fmt.Errorf("invalid station_name %q: must be 1-30 printable characters", name)
	}
	if !stationColorPattern.MatchString(c.Web.ColorLight) {
		return fmt.Errorf("invalid color_light %q: must be hex format (#RRGGBB)", c.Web.ColorLight)
	}
	if !stationColorPattern.MatchString(c.Web.ColorDark) {
		return fmt.Errorf("invalid color_dark %q: must be hex format (#RRGGBB)", c.Web.ColorDark)
	}
	if !IsValidFolder(c.Storage.Folder) {
		return fmt.Errorf("invalid storage folder %q: must be a single path segment", c.Storage.Folder)
	}

	for _, section := range []any{&c.System, &c.Storage, &c.Recording, &c.Notifications.Webhook, &c.Log} {
		if err := validate.Struct(section); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}

	switch c.Storage.Mode {
	case StorageLocal:
		if err := util.ValidatePath("storage.local_path", c.Storage.LocalPath); err != nil {
			return err
		}
	case StorageS3:
		if !c.Storage.S3.IsConfigured() {
			return fmt.Errorf("storage mode s3 requires s3.bucket, s3.access_key_id and s3.secret_access_key")
		}
	}

	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() {
	if c.System.Port == 0 {
		c.System.Port = DefaultWebPort
	}
	if c.Web.StationName == "" {
		c.Web.StationName = DefaultStationName
	}
	if c.Web.ColorLight == "" {
		c.Web.ColorLight = DefaultStationColorLight
	}
	if c.Web.ColorDark == "" {
		c.Web.ColorDark = DefaultStationColorDark
	}
	if c.Storage.Mode == "" {
		c.Storage.Mode = DefaultStorageMode
	}
	if c.Storage.Folder == "" {
		c.Storage.Folder = DefaultFolder
	}
	if c.Storage.Mode == StorageLocal && c.Storage.LocalPath == "" {
		c.Storage.LocalPath = DefaultLocalPath
	}
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// FFmpegPath returns the configured FFmpeg binary path.
func (c *Config) FFmpegPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.FFmpegPath
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	WebPort    int
	FFmpegPath string

	// Web/Branding
	StationName       string
	StationColorLight string
	StationColorDark  string

	// Audio
	AudioInput string

	// Storage
	StorageMode    StorageMode
	Folder         string
	LocalPath      string
	PublicURL      string
	PresignMinutes int
	S3             S3Config

	// Recording
	MaxDurationMinutes int
	MaxSizeMB          int

	// Notifications
	Webhook WebhookConfig

	// Log
	EventLogPath string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	webhook := c.Notifications.Webhook
	webhook.Scopes = append([]string(nil), webhook.Scopes...)

	return Snapshot{
		WebPort:    c.System.Port,
		FFmpegPath: c.System.FFmpegPath,

		StationName:       c.Web.StationName,
		StationColorLight: c.Web.ColorLight,
		StationColorDark:  c.Web.ColorDark,

		AudioInput: c.Audio.Input,

		StorageMode:    cmp.Or(c.Storage.Mode, DefaultStorageMode),
		Folder:         cmp.Or(c.Storage.Folder, DefaultFolder),
		LocalPath:      c.Storage.LocalPath,
		PublicURL:      strings.TrimRight(c.Storage.PublicURL, "/"),
		PresignMinutes: cmp.Or(c.Storage.PresignMinutes, DefaultPresignMinutes),
		S3: S3Config{
			Endpoint:        c.Storage.S3.Endpoint,
			Region:          cmp.Or(c.Storage.S3.Region, DefaultS3Region),
			Bucket:          c.Storage.S3.Bucket,
			AccessKeyID:     c.Storage.S3.AccessKeyID,
			SecretAccessKey: c.Storage.S3.SecretAccessKey,
		},

		MaxDurationMinutes: cmp.Or(c.Recording.MaxDurationMinutes, DefaultMaxDurationMinutes),
		MaxSizeMB:          cmp.Or(c.Recording.MaxSizeMB, DefaultMaxSizeMB),

		Webhook: webhook,

		EventLogPath: c.Log.EventPath,
	}
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.Webhook.URL != ""
}

// HasWebhookAuth reports whether OAuth2 client credentials are configured for the webhook.
func (s *Snapshot) HasWebhookAuth() bool {
	return util.IsConfigured(s.Webhook.TokenURL, s.Webhook.ClientID, s.Webhook.ClientSecret)
}

// MaxSizeBytes returns the recording size limit in bytes.
func (s *Snapshot) MaxSizeBytes() int64 {
	return int64(s.MaxSizeMB) << 20
}
