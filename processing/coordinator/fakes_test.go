package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"camview/internal/models"
	"camview/processing/capture"

	"github.com/pkg/errors"
)

// deviceTracker counts live fake devices across all fake openers.
type deviceTracker struct {
	mu      sync.Mutex
	live    int
	maxLive int
	opened  int
	closed  int
	order   []string
}

func (t *deviceTracker) open(id models.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live++
	t.opened++
	if t.live > t.maxLive {
		t.maxLive = t.live
	}
	t.order = append(t.order, "open "+string(id))
}

func (t *deviceTracker) close(id models.DeviceID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live--
	t.closed++
	t.order = append(t.order, "close "+string(id))
}

func (t *deviceTracker) snapshot() (live, maxLive, opened, closed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live, t.maxLive, t.opened, t.closed
}

type fakeOpener struct {
	tracker *deviceTracker

	// native is the format devices report before negotiation.
	native models.Format
	// negotiated overrides what SetFormat returns when non-zero.
	negotiated models.Format
	frames     int
	// endless makes streams produce frames forever.
	endless    bool
	frameDelay time.Duration

	openErr   error
	streamErr error
	nextErr   error

	streamsOpened atomic.Int32
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{
		tracker: &deviceTracker{},
		native:  models.Format{Width: 640, Height: 480, Encoding: "yuyv422"},
	}
}

func (o *fakeOpener) Open(id models.DeviceID) (capture.Device, error) {
	if o.openErr != nil {
		return nil, o.openErr
	}
	o.tracker.open(id)
	return &fakeDevice{opener: o, id: id, format: o.native}, nil
}

type fakeDevice struct {
	opener *fakeOpener
	id     models.DeviceID
	format models.Format
	closed bool
	value  models.ControlValue
}

func (d *fakeDevice) Format() (models.Format, error) { return d.format, nil }

func (d *fakeDevice) SetFormat(f models.Format) (models.Format, error) {
	if d.opener.negotiated != (models.Format{}) {
		d.format = d.opener.negotiated
		return d.format, nil
	}
	d.format = f
	return f, nil
}

func (d *fakeDevice) Formats() ([]models.Format, error) {
	return []models.Format{
		{Width: 640, Height: 480, Encoding: models.BGRA32},
		{Width: 320, Height: 240, Encoding: models.BGRA32},
	}, nil
}

func (d *fakeDevice) Controls() ([]models.Control, error) {
	return []models.Control{{
		ID:             1,
		Name:           "exposure",
		Representation: models.Representation{Kind: models.RepresentationInteger, Min: 0, Max: 100},
		Value:          d.value,
	}}, nil
}

func (d *fakeDevice) SetControl(c models.Control) (models.Control, error) {
	if !c.Accepts(c.Value) {
		return c, errors.Errorf("bad value for %s", c.Name)
	}
	d.value = c.Value
	return c, nil
}

func (d *fakeDevice) OpenStream() (capture.Stream, error) {
	if d.opener.streamErr != nil {
		return nil, d.opener.streamErr
	}
	d.opener.streamsOpened.Add(1)
	return &fakeStream{device: d, remaining: d.opener.frames}, nil
}

func (d *fakeDevice) Close() error {
	if d.closed {
		panic("fake device closed twice")
	}
	d.closed = true
	d.opener.tracker.close(d.id)
	return nil
}

// fakeStream encodes a sequence marker in the first pixel's blue byte.
type fakeStream struct {
	device    *fakeDevice
	remaining int
	marker    byte
}

func (s *fakeStream) Next() (capture.RawFrame, error) {
	o := s.device.opener
	if o.frameDelay > 0 {
		time.Sleep(o.frameDelay)
	}
	if o.nextErr != nil {
		return capture.RawFrame{}, o.nextErr
	}
	if !o.endless {
		if s.remaining == 0 {
			return capture.RawFrame{}, errors.New("no more frames")
		}
		s.remaining--
	}

	s.marker++
	f := s.device.format
	data := make([]byte, f.FrameSize())
	data[0] = s.marker

	return capture.RawFrame{Width: f.Width, Height: f.Height, Encoding: f.Encoding, Data: data}, nil
}

func (s *fakeStream) Close() error { return nil }

type recordingSink struct {
	mu     sync.Mutex
	frames []*models.Frame
}

func (s *recordingSink) Deliver(f *models.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// markers returns the sequence marker of each delivered frame. BGRA blue
// lands in the RGBA blue byte at offset 2.
func (s *recordingSink) markers() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, 0, len(s.frames))
	for _, f := range s.frames {
		out = append(out, f.Pixels[2])
	}
	return out
}

type recordingSender struct {
	mu       sync.Mutex
	requests []Request
	err      error
}

func (s *recordingSender) Send(req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *recordingSender) kinds() []RequestKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestKind, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Kind)
	}
	return out
}
