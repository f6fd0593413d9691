// Package coordinator owns the capture device on a single goroutine. It
// multiplexes control requests against frame capture, converts frames to
// RGBA32 and hands them to a FrameSink one at a time.
package coordinator

import (
	"context"
	"runtime"
	"time"

	"camview/internal/logging"
	"camview/internal/models"
	"camview/processing/capture"

	"github.com/pkg/errors"
)

const (
	DefaultIdlePoll = 100 * time.Millisecond

	maxBatch = 32
)

// FrameSink receives finished frames on the coordinator goroutine. Deliver
// must not block for long; the next capture waits for it.
type FrameSink interface {
	Deliver(frame *models.Frame)
}

type SinkFunc func(frame *models.Frame)

func (f SinkFunc) Deliver(frame *models.Frame) { f(frame) }

// Receiver is the consumer side of the request channel.
type Receiver interface {
	TryReceive(timeout time.Duration) (Request, bool, error)
}

type State int

const (
	Idle State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "Streaming"
	}
	return "Idle"
}

type Options struct {
	// Encoding every stream must negotiate. Defaults to BGRA32.
	Encoding models.PixelEncoding
	// IdlePoll bounds the request wait while Idle.
	IdlePoll time.Duration
	// OnError observes failures that have no reply channel to go to.
	OnError func(err error)
	// OnState observes every state transition.
	OnState func(s State)
}

// state is either idleState or *streamingState.
type state interface {
	tag() State
}

type idleState struct{}

func (idleState) tag() State { return Idle }

type streamingState struct {
	id     models.DeviceID
	device capture.Device
	stream capture.Stream
	format models.Format
}

func (*streamingState) tag() State { return Streaming }

type Coordinator struct {
	opener   capture.Opener
	requests Receiver
	sink     FrameSink
	opts     Options

	state    state
	sequence uint64
}

func New(opener capture.Opener, requests Receiver, sink FrameSink, opts Options) *Coordinator {
	if opts.Encoding == "" {
		opts.Encoding = models.BGRA32
	}
	if opts.IdlePoll <= 0 {
		opts.IdlePoll = DefaultIdlePoll
	}

	return &Coordinator{
		opener:   opener,
		requests: requests,
		sink:     sink,
		opts:     opts,
		state:    idleState{},
	}
}

// Run drives the loop until ctx is cancelled, the request channel is closed
// or a Shutdown request arrives. The device is always closed on return.
func (c *Coordinator) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	defer c.stop()

	logging.Get().Debug("capture coordinator started")
	defer logging.Get().Debug("capture coordinator stopped")

	for ctx.Err() == nil {
		if done := c.step(); done {
			return nil
		}
	}
	return nil
}

// step runs one loop iteration and reports whether the loop should end.
func (c *Coordinator) step() bool {
	timeout := c.opts.IdlePoll

	if st, ok := c.state.(*streamingState); ok {
		c.captureOne(st)
		timeout = 0
		if c.state.tag() == Idle {
			timeout = c.opts.IdlePoll
		}
	}

	req, ok, err := c.requests.TryReceive(timeout)
	if err != nil {
		if !errors.Is(err, ErrChannelClosed) {
			c.report(err)
		}
		return true
	}

	for handled := 0; ok; handled++ {
		c.handle(req)
		if req.Kind == Shutdown {
			return true
		}
		if handled == maxBatch {
			break
		}

		// Requests queued together are served before the next capture.
		req, ok, err = c.requests.TryReceive(0)
		if err != nil {
			return errors.Is(err, ErrChannelClosed)
		}
	}
	return false
}

func (c *Coordinator) captureOne(st *streamingState) {
	raw, err := st.stream.Next()
	if err != nil {
		c.stop()
		c.report(newError(ErrFrameCaptureFailed, st.id, err))
		return
	}

	c.sequence++
	frame, err := Convert(raw, c.sequence)
	if err != nil {
		c.stop()
		c.report(newError(ErrFrameCaptureFailed, st.id, err))
		return
	}

	c.sink.Deliver(frame)
}

func (c *Coordinator) handle(req Request) {
	result, err := c.execute(req)

	log := logging.Get()
	if err != nil {
		log.Warn("request failed", "request", req.Kind, "id", req.ID, "error", err)
	} else {
		log.Debug("request done", "request", req.Kind, "id", req.ID, "state", c.state.tag())
	}

	if req.Reply == nil {
		if err != nil {
			c.report(err)
		}
		return
	}

	select {
	case req.Reply <- Response{ID: req.ID, Kind: req.Kind, Result: result, Err: err}:
	default:
		log.Warn("reply dropped", "request", req.Kind, "id", req.ID)
	}
}

func (c *Coordinator) execute(req Request) (any, error) {
	switch req.Kind {
	case StartStream:
		return c.start(req.Device)
	case StopStream, Shutdown:
		c.stop()
		return nil, nil
	}

	st, ok := c.state.(*streamingState)
	if !ok {
		return nil, newError(ErrNoDeviceOpen, "", nil)
	}

	switch req.Kind {
	case QueryFormats:
		formats, err := st.device.Formats()
		if err != nil {
			return nil, errors.Wrapf(err, "query formats of %s", st.id)
		}
		return formats, nil

	case QueryControls:
		controls, err := st.device.Controls()
		if err != nil {
			return nil, errors.Wrapf(err, "query controls of %s", st.id)
		}
		return controls, nil

	case GetFormat:
		return st.format, nil

	case SetFormat:
		return c.renegotiate(st, req.Format)

	case SetControl:
		ctrl, err := st.device.SetControl(req.Control)
		if err != nil {
			return nil, errors.Wrapf(err, "set control %s on %s", req.Control.Name, st.id)
		}
		return ctrl, nil
	}

	return nil, errors.Errorf("unknown request kind %d", req.Kind)
}

func (c *Coordinator) start(id models.DeviceID) (any, error) {
	if st, ok := c.state.(*streamingState); ok {
		if st.id == id {
			return st.format, nil
		}
		c.stop()
	}

	device, err := c.opener.Open(id)
	if err != nil {
		return nil, newError(ErrDeviceOpenFailed, id, err)
	}

	format, err := device.Format()
	if err != nil {
		closeDevice(id, device)
		return nil, newError(ErrDeviceOpenFailed, id, err)
	}

	format, err = c.negotiate(device, format)
	if err != nil {
		closeDevice(id, device)
		return nil, newError(ErrFormatNegotiationFailed, id, err)
	}

	stream, err := device.OpenStream()
	if err != nil {
		closeDevice(id, device)
		return nil, newError(ErrStreamOpenFailed, id, err)
	}

	c.enter(&streamingState{id: id, device: device, stream: stream, format: format})
	logging.Get().Info("stream started", "device", id, "format", format)
	return format, nil
}

// negotiate forces the required encoding onto want and checks the device
// kept it.
func (c *Coordinator) negotiate(device capture.Device, want models.Format) (models.Format, error) {
	want.Encoding = c.opts.Encoding

	got, err := device.SetFormat(want)
	if err != nil {
		return got, err
	}
	if got.Encoding != c.opts.Encoding {
		return got, errors.Errorf("device negotiated %s, need %s", got.Encoding, c.opts.Encoding)
	}
	return got, nil
}

// renegotiate restarts the stream in a new format. On failure the device
// is closed and the coordinator is Idle.
func (c *Coordinator) renegotiate(st *streamingState, want models.Format) (any, error) {
	if want.Encoding != "" && want.Encoding != c.opts.Encoding {
		return nil, newError(ErrFormatNegotiationFailed, st.id,
			errors.Errorf("encoding %s is not %s", want.Encoding, c.opts.Encoding))
	}

	closeStream(st.id, st.stream)

	format, err := c.negotiate(st.device, want)
	if err != nil {
		closeDevice(st.id, st.device)
		c.leave()
		return nil, newError(ErrFormatNegotiationFailed, st.id, err)
	}

	stream, err := st.device.OpenStream()
	if err != nil {
		closeDevice(st.id, st.device)
		c.leave()
		return nil, newError(ErrStreamOpenFailed, st.id, err)
	}

	st.stream = stream
	st.format = format
	logging.Get().Info("stream format changed", "device", st.id, "format", format)
	return format, nil
}

func (c *Coordinator) enter(st *streamingState) {
	if _, ok := c.state.(*streamingState); ok {
		panic("coordinator: opening a second stream while streaming")
	}
	c.state = st
	c.notify()
}

// leave drops to Idle without touching the handles.
func (c *Coordinator) leave() {
	c.state = idleState{}
	c.notify()
}

// stop closes the stream and device if open. It is a no-op while Idle.
func (c *Coordinator) stop() {
	st, ok := c.state.(*streamingState)
	if !ok {
		return
	}

	closeStream(st.id, st.stream)
	closeDevice(st.id, st.device)
	c.leave()
	logging.Get().Info("stream stopped", "device", st.id)
}

func (c *Coordinator) notify() {
	if c.opts.OnState != nil {
		c.opts.OnState(c.state.tag())
	}
}

func (c *Coordinator) report(err error) {
	logging.Get().Error("capture error", "error", err)
	if c.opts.OnError != nil {
		c.opts.OnError(err)
	}
}

func closeStream(id models.DeviceID, s capture.Stream) {
	if err := s.Close(); err != nil {
		logging.Get().Warn("stream close failed", "device", id, "error", err)
	}
}

func closeDevice(id models.DeviceID, d capture.Device) {
	if err := d.Close(); err != nil {
		logging.Get().Warn("device close failed", "device", id, "error", err)
	}
}
