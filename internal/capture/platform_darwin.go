//go:build darwin

package capture

import "regexp"

func getPlatformConfig() platformConfig {
	return platformConfig{
		InputFormat:   "avfoundation",
		DefaultDevice: ":0",
		DeviceList:    darwinDeviceList,
	}
}

func darwinDeviceList(ffmpegPath string) DeviceListConfig {
	return DeviceListConfig{
		Command:          []string{ffmpegPath, "-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		AudioStartMarker: "AVFoundation audio devices:",
		AudioStopMarker:  "AVFoundation video devices:",
		DevicePattern:    regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 3 {
				return nil
			}
			return &Device{
				ID:   ":" + matches[1],
				Name: matches[2],
			}
		},
	}
}
