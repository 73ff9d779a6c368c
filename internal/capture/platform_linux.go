//go:build linux

package capture

import "regexp"

func getPlatformConfig() platformConfig {
	return platformConfig{
		InputFormat:   "alsa",
		DefaultDevice: "default",
		DeviceList:    linuxDeviceList,
	}
}

func linuxDeviceList(string) DeviceListConfig {
	return DeviceListConfig{
		Command:          []string{"arecord", "-l"},
		AudioStartMarker: "", // No marker, parse all lines
		DevicePattern:    regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\]`),
		ParseDevice: func(matches []string) *Device {
			if len(matches) < 4 {
				return nil
			}
			return &Device{
				ID:   "default:CARD=" + matches[2],
				Name: matches[3],
			}
		},
		FallbackDevices: []Device{
			{ID: "default", Name: "System default"},
		},
	}
}
