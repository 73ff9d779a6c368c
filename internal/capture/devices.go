package capture

import (
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// platformConfig defines platform-specific capture settings.
type platformConfig struct {
	// InputFormat is the FFmpeg input format (alsa, avfoundation, dshow).
	InputFormat string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// StopViaStdin is set where FFmpeg cannot be signalled and is stopped with 'q' on stdin.
	StopViaStdin bool

	// DeviceList returns how to enumerate input devices.
	DeviceList func(ffmpegPath string) DeviceListConfig
}

// DeviceListConfig defines how to list audio devices for a platform.
type DeviceListConfig struct {
	// Command and args to list devices.
	Command []string

	// AudioStartMarker indicates the start of audio devices section.
	AudioStartMarker string

	// AudioStopMarker indicates the end of audio devices section (optional).
	AudioStopMarker string

	// DevicePattern is the regex to extract device info.
	DevicePattern *regexp.Regexp

	// ParseDevice converts regex matches to a Device.
	ParseDevice func(matches []string) *Device

	// FallbackDevices are returned if detection fails.
	FallbackDevices []Device
}

// Devices returns available audio input devices for the current platform.
func Devices(ffmpegPath string) []Device {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return listDevices(getPlatformConfig().DeviceList(ffmpegPath))
}

// resolveDevice returns device, the platform default, or the first detected device.
func resolveDevice(device, ffmpegPath string) (string, error) {
	if device != "" {
		return device, nil
	}
	if def := getPlatformConfig().DefaultDevice; def != "" {
		return def, nil
	}
	devices := Devices(ffmpegPath)
	if len(devices) == 0 {
		return "", ErrNoAudioDevice
	}
	return devices[0].ID, nil
}

// listDevices runs the listing command and parses its output.
//
//nolint:gocritic // hugeParam: 96 bytes is acceptable, no performance impact
func listDevices(cfg DeviceListConfig) []Device {
	if len(cfg.Command) == 0 {
		return cfg.FallbackDevices
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	output, err := cmd.CombinedOutput()
	// Listing commands often exit non-zero after printing the devices.
	if err != nil && len(output) == 0 {
		slog.Error("failed to list audio devices", "error", err)
		return cfg.FallbackDevices
	}

	return parseDeviceList(string(output), &cfg)
}

// parseDeviceList extracts devices from listing output.
func parseDeviceList(output string, cfg *DeviceListConfig) []Device {
	var devices []Device
	inAudioSection := cfg.AudioStartMarker == "" // If no marker, always in section

	for line := range strings.SplitSeq(output, "\n") {
		if cfg.AudioStartMarker != "" && strings.Contains(line, cfg.AudioStartMarker) {
			inAudioSection = true
			continue
		}
		if cfg.AudioStopMarker != "" && strings.Contains(line, cfg.AudioStopMarker) {
			inAudioSection = false
			continue
		}

		if !inAudioSection {
			continue
		}

		// Skip alternative name lines (Windows DirectShow).
		if strings.Contains(line, "Alternative name") {
			continue
		}

		if cfg.DevicePattern == nil {
			continue
		}

		matches := cfg.DevicePattern.FindStringSubmatch(line)
		if len(matches) > 0 && cfg.ParseDevice != nil {
			if dev := cfg.ParseDevice(matches); dev != nil {
				devices = append(devices, *dev)
			}
		}
	}

	if len(devices) == 0 {
		return cfg.FallbackDevices
	}

	return devices
}
