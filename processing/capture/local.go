package capture

import (
	"encoding/json"
	"fmt"

	"camview/internal/models"

	"github.com/pkg/errors"
)

const (
	standartFps uint = 30
)

// LocalFileDevice plays a video file as a virtual camera, paced at the
// target FPS.
type LocalFileDevice struct {
	path      string
	targetFPS uint
	tools     Tools

	nativeWidth  uint32
	nativeHeight uint32

	format models.Format
}

func OpenLocalFile(path string, targetFPS uint, tools Tools) (*LocalFileDevice, error) {
	return openLocalFile(path, targetFPS, tools, execRun)
}

func openLocalFile(path string, targetFPS uint, tools Tools, run runFunc) (*LocalFileDevice, error) {
	w, h, err := probeVideoDimensions(run, tools.FFprobe, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to probe video %s", path)
	}

	if targetFPS == 0 {
		targetFPS = standartFps
	}

	return &LocalFileDevice{
		path:      path,
		targetFPS: targetFPS,
		tools:     tools,
		nativeWidth:   w,
		nativeHeight:  h,
		format:    models.Format{Width: w, Height: h, Encoding: models.RGBA32},
	}, nil
}

func (ls *LocalFileDevice) Format() (models.Format, error) {
	return ls.format, nil
}

func (ls *LocalFileDevice) SetFormat(f models.Format) (models.Format, error) {
	if f.Width == 0 || f.Height == 0 {
		return ls.format, errors.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}

	ls.format.Width = f.Width
	ls.format.Height = f.Height

	if _, ok := ffmpegPixFmt(f.Encoding); ok {
		ls.format.Encoding = f.Encoding
	}

	return ls.format, nil
}

func (ls *LocalFileDevice) Formats() ([]models.Format, error) {
	return []models.Format{
		{Width: ls.nativeWidth, Height: ls.nativeHeight, Encoding: models.BGRA32},
		{Width: ls.nativeWidth, Height: ls.nativeHeight, Encoding: models.RGBA32},
	}, nil
}

func (ls *LocalFileDevice) Controls() ([]models.Control, error) {
	return []models.Control{}, nil
}

func (ls *LocalFileDevice) SetControl(c models.Control) (models.Control, error) {
	return c, errors.Errorf("file source has no control %q", c.Name)
}

func (ls *LocalFileDevice) OpenStream() (Stream, error) {
	pixFmt, ok := ffmpegPixFmt(ls.format.Encoding)
	if !ok {
		return nil, errors.Errorf("cannot stream %s frames", ls.format.Encoding)
	}

	args := []string{
		"-nostdin", "-loglevel", "error",
		"-i", ls.path,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:%d:flags=neighbor", ls.targetFPS, ls.format.Width, ls.format.Height),
		"-f", "image2pipe",
		"-pix_fmt", pixFmt,
		"-vcodec", "rawvideo",
		"-",
	}

	return startPipe(ls.tools.FFmpeg, args, ls.format, ls.targetFPS)
}

func (ls *LocalFileDevice) Close() error {
	return nil
}

type probeData struct {
	Streams []struct {
		Width  uint32 `json:"width"`
		Height uint32 `json:"height"`
	} `json:"streams"`
}

func probeVideoDimensions(run runFunc, ffprobe, path string) (uint32, uint32, error) {
	output, stderr, err := run(ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "json",
		path,
	)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "ffprobe: %s", stderr)
	}

	var data probeData
	if err := json.Unmarshal(output, &data); err != nil {
		return 0, 0, errors.Wrap(err, "decode ffprobe output")
	}

	if len(data.Streams) == 0 {
		return 0, 0, errors.New("no video streams found")
	}

	return data.Streams[0].Width, data.Streams[0].Height, nil
}
