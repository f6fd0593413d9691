package capture

import (
	"strings"

	"camview/internal/config"
	"camview/internal/models"
)

const fileScheme = "file://"

// NewOpener opens file:// ids as local files and everything else as webcams,
// sized from cfg at open time.
func NewOpener(cfg *config.Config) Opener {
	tools := Tools{
		FFmpeg:  cfg.Capture.FFmpegPath,
		FFprobe: cfg.Capture.FFprobePath,
		V4L2Ctl: cfg.Capture.V4L2CtlPath,
	}

	return OpenerFunc(func(id models.DeviceID) (Device, error) {
		if path, ok := strings.CutPrefix(string(id), fileScheme); ok {
			return OpenLocalFile(path, cfg.GetFPS(), tools)
		}
		return OpenFFmpegWebcam(string(id), cfg.GetFPS(), cfg.GetWidth(), cfg.GetHeight(), tools)
	})
}
