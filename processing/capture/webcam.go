package capture

import (
	"fmt"
	"os"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"camview/internal/logging"
	"camview/internal/models"

	"github.com/pkg/errors"
)

// FFmpegWebcam drives a live camera through ffmpeg (v4l2 or dshow).
type FFmpegWebcam struct {
	deviceName string
	targetFPS  uint
	tools      Tools
	goos       string
	run        runFunc

	format models.Format
}

func OpenFFmpegWebcam(deviceName string, targetFPS uint, width, height int, tools Tools) (*FFmpegWebcam, error) {
	ws := newFFmpegWebcam(deviceName, targetFPS, width, height, tools, runtime.GOOS, execRun)

	if ws.goos != "windows" {
		if _, err := os.Stat(deviceName); err != nil {
			return nil, errors.Wrapf(err, "camera %s unavailable", deviceName)
		}
	}

	// The native encoding only describes what the camera emits before
	// ffmpeg converts it.
	if formats, err := ws.Formats(); err == nil && len(formats) > 0 {
		ws.format.Encoding = formats[0].Encoding
	} else if err != nil {
		logging.Get().Debug("format listing failed", "device", deviceName, "error", err)
	}

	return ws, nil
}

func newFFmpegWebcam(deviceName string, targetFPS uint, width, height int, tools Tools, goos string, run runFunc) *FFmpegWebcam {
	return &FFmpegWebcam{
		deviceName: deviceName,
		targetFPS:  targetFPS,
		tools:      tools,
		goos:       goos,
		run:        run,
		format: models.Format{
			Width:    uint32(width),
			Height:   uint32(height),
			Encoding: "native",
		},
	}
}

func (ws *FFmpegWebcam) Format() (models.Format, error) {
	return ws.format, nil
}

// SetFormat accepts any size and the encodings ffmpeg can emit. Other
// encodings leave the current encoding in place.
func (ws *FFmpegWebcam) SetFormat(f models.Format) (models.Format, error) {
	if f.Width == 0 || f.Height == 0 {
		return ws.format, errors.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}

	ws.format.Width = f.Width
	ws.format.Height = f.Height

	if _, ok := ffmpegPixFmt(f.Encoding); ok {
		ws.format.Encoding = f.Encoding
	}

	return ws.format, nil
}

func (ws *FFmpegWebcam) inputArgs() []string {
	if ws.goos == "windows" {
		return []string{"-f", "dshow", "-i", fmt.Sprintf("video=%s", ws.deviceName)}
	}
	return []string{"-f", "v4l2", "-i", ws.deviceName}
}

func (ws *FFmpegWebcam) OpenStream() (Stream, error) {
	pixFmt, ok := ffmpegPixFmt(ws.format.Encoding)
	if !ok {
		return nil, errors.Errorf("cannot stream %s frames", ws.format.Encoding)
	}

	fps := ws.targetFPS
	if fps == 0 {
		fps = standartFps
	}

	args := []string{"-nostdin", "-loglevel", "error"}
	args = append(args, ws.inputArgs()...)
	args = append(args,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d", fps, ws.format.Width, ws.format.Height),
		"-f", "image2pipe",
		"-pix_fmt", pixFmt,
		"-vcodec", "rawvideo",
		"-",
	)

	return startPipe(ws.tools.FFmpeg, args, ws.format, 0)
}

var (
	v4l2FormatLine = regexp.MustCompile(`(?:Raw|Compressed)\s*:\s*(\S+)\s*:[^:]*:\s*(.*)$`)
	dshowOption    = regexp.MustCompile(`(?:pixel_format|vcodec)=(\S+)\s+min s=(\d+)x(\d+)`)
	frameSize      = regexp.MustCompile(`(\d+)x(\d+)`)
)

func (ws *FFmpegWebcam) Formats() ([]models.Format, error) {
	var args []string
	if ws.goos == "windows" {
		args = []string{"-hide_banner", "-list_options", "true", "-f", "dshow", "-i", fmt.Sprintf("video=%s", ws.deviceName)}
	} else {
		args = []string{"-hide_banner", "-f", "v4l2", "-list_formats", "all", "-i", ws.deviceName}
	}

	// ffmpeg exits non-zero after listing; only the output matters.
	_, stderr, _ := ws.run(ws.tools.FFmpeg, args...)

	var formats []models.Format
	if ws.goos == "windows" {
		formats = parseDshowOptions(string(stderr))
	} else {
		formats = parseV4L2Formats(string(stderr))
	}

	if len(formats) == 0 {
		return nil, errors.Errorf("no formats reported for %s", ws.deviceName)
	}
	return formats, nil
}

func parseV4L2Formats(out string) []models.Format {
	var formats []models.Format

	for _, line := range strings.Split(out, "\n") {
		m := v4l2FormatLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		enc := models.PixelEncoding(m[1])
		for _, size := range frameSize.FindAllStringSubmatch(m[2], -1) {
			w, _ := strconv.ParseUint(size[1], 10, 32)
			h, _ := strconv.ParseUint(size[2], 10, 32)
			formats = append(formats, models.Format{Width: uint32(w), Height: uint32(h), Encoding: enc})
		}
	}

	return formats
}

func parseDshowOptions(out string) []models.Format {
	var formats []models.Format
	seen := make(map[models.Format]bool)

	for _, m := range dshowOption.FindAllStringSubmatch(out, -1) {
		w, _ := strconv.ParseUint(m[2], 10, 32)
		h, _ := strconv.ParseUint(m[3], 10, 32)

		f := models.Format{Width: uint32(w), Height: uint32(h), Encoding: models.PixelEncoding(m[1])}
		if !seen[f] {
			formats = append(formats, f)
			seen[f] = true
		}
	}

	return formats
}

func (ws *FFmpegWebcam) Controls() ([]models.Control, error) {
	if ws.goos != "linux" {
		return nil, errors.Errorf("controls are not supported on %s", ws.goos)
	}

	stdout, stderr, err := ws.run(ws.tools.V4L2Ctl, "-d", ws.deviceName, "--list-ctrls-menus")
	if err != nil {
		return nil, errors.Wrapf(err, "v4l2-ctl list controls: %s", strings.TrimSpace(string(stderr)))
	}

	return parseV4L2Controls(string(stdout)), nil
}

func (ws *FFmpegWebcam) SetControl(c models.Control) (models.Control, error) {
	if ws.goos != "linux" {
		return c, errors.Errorf("controls are not supported on %s", ws.goos)
	}

	if !c.Accepts(c.Value) {
		return c, errors.Errorf("value %s out of range for %s", c.Value, c.Name)
	}

	arg := fmt.Sprintf("--set-ctrl=%s=%s", c.Name, c.Value)
	if _, stderr, err := ws.run(ws.tools.V4L2Ctl, "-d", ws.deviceName, arg); err != nil {
		return c, errors.Wrapf(err, "v4l2-ctl set %s: %s", c.Name, strings.TrimSpace(string(stderr)))
	}

	return c, nil
}

func (ws *FFmpegWebcam) Close() error {
	return nil
}

var (
	v4l2ControlLine = regexp.MustCompile(`^\s*(\w+)\s+0x([0-9a-fA-F]+)\s+\((\w+)\)\s*:\s*(.*)$`)
	v4l2MenuLine    = regexp.MustCompile(`^\s+(-?\d+):\s+(.+)$`)
	v4l2KeyValue    = regexp.MustCompile(`(\w+)=(-?\d+)`)
)

func parseV4L2Controls(out string) []models.Control {
	var controls []models.Control
	var menu *models.Control

	for _, line := range strings.Split(out, "\n") {
		if m := v4l2ControlLine.FindStringSubmatch(line); m != nil {
			menu = nil

			id, _ := strconv.ParseUint(m[2], 16, 32)
			c := models.Control{ID: uint32(id), Name: m[1]}

			switch m[3] {
			case "bool":
				c.Representation.Kind = models.RepresentationBoolean
			case "int", "int64":
				c.Representation.Kind = models.RepresentationInteger
			case "menu", "intmenu":
				c.Representation.Kind = models.RepresentationMenu
			default:
				continue
			}

			for _, kv := range v4l2KeyValue.FindAllStringSubmatch(m[4], -1) {
				n, _ := strconv.ParseInt(kv[2], 10, 64)
				switch kv[1] {
				case "min":
					c.Representation.Min = n
				case "max":
					c.Representation.Max = n
				case "step":
					c.Representation.Step = n
				case "default":
					c.Representation.Default = n
				case "value":
					if c.Representation.Kind == models.RepresentationBoolean {
						c.Value = models.BoolValue(n != 0)
					} else {
						c.Value = models.IntValue(n)
					}
				}
			}

			controls = append(controls, c)
			if c.Representation.Kind == models.RepresentationMenu {
				menu = &controls[len(controls)-1]
			}
			continue
		}

		if menu != nil {
			if m := v4l2MenuLine.FindStringSubmatch(line); m != nil {
				idx, _ := strconv.ParseInt(m[1], 10, 64)
				menu.Representation.Items = append(menu.Representation.Items, models.MenuItem{Index: idx, Label: strings.TrimSpace(m[2])})
				continue
			}
			menu = nil
		}
	}

	sort.SliceStable(controls, func(i, j int) bool { return controls[i].ID < controls[j].ID })
	return controls
}
