package capture

import (
	"bytes"
	"io"
	"os/exec"
	"sync"
	"time"

	"camview/internal/logging"
	"camview/internal/models"

	"github.com/pkg/errors"
)

type Tools struct {
	FFmpeg  string
	FFprobe string
	V4L2Ctl string
}

func DefaultTools() Tools {
	return Tools{FFmpeg: "ffmpeg", FFprobe: "ffprobe", V4L2Ctl: "v4l2-ctl"}
}

// runFunc runs a short-lived helper to completion.
type runFunc func(name string, args ...string) (stdout, stderr []byte, err error)

func execRun(name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.Command(name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func ffmpegPixFmt(e models.PixelEncoding) (string, bool) {
	switch e {
	case models.BGRA32:
		return "bgra", true
	case models.RGBA32:
		return "rgba", true
	default:
		return "", false
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// pipeStream reads packed frames from an ffmpeg rawvideo pipe.
type pipeStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *lockedBuffer

	format models.Format
	buffer []byte

	// ticker paces file playback; nil for live devices.
	ticker *time.Ticker

	closeOnce sync.Once
}

func startPipe(bin string, args []string, format models.Format, pace uint) (*pipeStream, error) {
	cmd := exec.Command(bin, args...)

	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "ffmpeg stdout pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "ffmpeg start error. Details: %s", stderr.String())
	}

	logging.Get().Debug("ffmpeg started", "pid", cmd.Process.Pid, "args", args)

	s := &pipeStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		format: format,
		buffer: make([]byte, format.FrameSize()),
	}

	if pace > 0 {
		s.ticker = time.NewTicker(time.Second / time.Duration(pace))
	}

	return s, nil
}

// Next returns a frame whose Data is reused by the following call.
func (s *pipeStream) Next() (RawFrame, error) {
	if s.ticker != nil {
		<-s.ticker.C
	}

	if _, err := io.ReadFull(s.stdout, s.buffer); err != nil {
		if detail := s.stderr.String(); detail != "" {
			return RawFrame{}, errors.Wrapf(err, "read error: %s", detail)
		}
		return RawFrame{}, errors.Wrap(err, "read error")
	}

	return RawFrame{
		Width:    s.format.Width,
		Height:   s.format.Height,
		Encoding: s.format.Encoding,
		Data:     s.buffer,
	}, nil
}

func (s *pipeStream) Close() error {
	s.closeOnce.Do(func() {
		if s.ticker != nil {
			s.ticker.Stop()
		}
		s.stdout.Close()
		if s.cmd != nil && s.cmd.Process != nil {
			s.cmd.Process.Kill()
			s.cmd.Wait()
		}
	})
	return nil
}
