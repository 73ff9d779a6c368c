//go:build windows

package capture

import (
	"regexp"
	"strings"
)

func getPlatformConfig() platformConfig {
	return platformConfig{
		InputFormat:   "dshow",
		DefaultDevice: "", // Auto-detect, no safe default on Windows
		StopViaStdin:  true,
		DeviceList:    windowsDeviceList,
	}
}

func windowsDeviceList(ffmpegPath string) DeviceListConfig {
	return DeviceListConfig{
		Command: []string{ffmpegPath, "-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		// FFmpeg versions differ in whether they print a "DirectShow audio devices"
		// header, so lines are filtered by their "(audio)" suffix instead.
		DevicePattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 2 {
				return nil
			}
			name := strings.TrimSpace(matches[1])
			return &Device{
				ID:   "audio=" + name,
				Name: name,
			}
		},
	}
}
