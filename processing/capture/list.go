package capture

import (
	"path/filepath"
	"regexp"
	"runtime"
	"sort"

	"camview/internal/models"
)

var dshowVideoDevice = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)

// ListDevices enumerates attached cameras in a stable order.
func ListDevices(tools Tools) ([]models.DeviceID, error) {
	if runtime.GOOS == "windows" {
		_, stderr, _ := execRun(tools.FFmpeg, "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
		return parseDshowDevices(string(stderr)), nil
	}

	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	devices := make([]models.DeviceID, 0, len(paths))
	for _, p := range paths {
		devices = append(devices, models.DeviceID(p))
	}
	return devices, nil
}

func parseDshowDevices(out string) []models.DeviceID {
	var cameras []models.DeviceID
	seen := make(map[string]bool)

	for _, m := range dshowVideoDevice.FindAllStringSubmatch(out, -1) {
		name := m[1]
		if name != "dummy" && !seen[name] {
			cameras = append(cameras, models.DeviceID(name))
			seen[name] = true
		}
	}

	return cameras
}
