package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"camview/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	opener *fakeOpener
	ch     *Channel
	sink   *recordingSink
	coord  *Coordinator
	errs   []error
	states []State
}

func newHarness(t *testing.T, opener *fakeOpener) *harness {
	t.Helper()

	h := &harness{opener: opener, ch: NewChannel(4), sink: &recordingSink{}}
	h.coord = New(opener, h.ch, h.sink, Options{
		IdlePoll: time.Millisecond,
		OnError:  func(err error) { h.errs = append(h.errs, err) },
		OnState:  func(s State) { h.states = append(h.states, s) },
	})
	return h
}

// request enqueues req with a reply channel and returns it.
func (h *harness) request(t *testing.T, req Request) <-chan Response {
	t.Helper()
	reply := make(chan Response, 1)
	req.Reply = reply
	require.NoError(t, h.ch.Send(req))
	return reply
}

func (h *harness) start(t *testing.T, id models.DeviceID) <-chan Response {
	req := NewRequest(StartStream)
	req.Device = id
	return h.request(t, req)
}

func (h *harness) state() State { return h.coord.state.tag() }

// assertConsistent checks that a device is open exactly while Streaming.
func (h *harness) assertConsistent(t *testing.T) {
	t.Helper()
	live, _, _, _ := h.opener.tracker.snapshot()
	if h.state() == Streaming {
		assert.Equal(t, 1, live)
	} else {
		assert.Equal(t, 0, live)
	}
}

func TestStartStreamNegotiatesRequiredEncoding(t *testing.T) {
	h := newHarness(t, newFakeOpener())

	reply := h.start(t, "cam0")
	h.coord.step()

	resp := <-reply
	require.NoError(t, resp.Err)
	f, ok := resp.Format()
	require.True(t, ok)
	assert.Equal(t, models.Format{Width: 640, Height: 480, Encoding: models.BGRA32}, f)
	assert.Equal(t, Streaming, h.state())
	assert.Equal(t, []State{Streaming}, h.states)
	h.assertConsistent(t)
}

func TestStartStreamRejectsMismatchedEncoding(t *testing.T) {
	opener := newFakeOpener()
	opener.negotiated = models.Format{Width: 640, Height: 480, Encoding: "yuyv422"}
	h := newHarness(t, opener)

	reply := h.start(t, "cam0")
	h.coord.step()

	resp := <-reply
	require.Error(t, resp.Err)
	assert.True(t, errors.Is(resp.Err, ErrFormatNegotiationFailed))
	assert.Equal(t, Idle, h.state())

	live, _, opened, closed := opener.tracker.snapshot()
	assert.Equal(t, 0, live)
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, int32(0), opener.streamsOpened.Load())
}

func TestStartStreamOpenFailureStaysIdle(t *testing.T) {
	opener := newFakeOpener()
	opener.openErr = errors.New("no such device")
	h := newHarness(t, opener)

	reply := h.start(t, "cam9")
	h.coord.step()

	resp := <-reply
	assert.True(t, errors.Is(resp.Err, ErrDeviceOpenFailed))
	assert.Contains(t, resp.Err.Error(), "cam9")
	assert.Contains(t, resp.Err.Error(), "no such device")
	assert.Equal(t, Idle, h.state())
	assert.Empty(t, h.states)
}

func TestStartStreamStreamFailureClosesDevice(t *testing.T) {
	opener := newFakeOpener()
	opener.streamErr = errors.New("busy")
	h := newHarness(t, opener)

	reply := h.start(t, "cam0")
	h.coord.step()

	assert.True(t, errors.Is((<-reply).Err, ErrStreamOpenFailed))
	h.assertConsistent(t)
	assert.Equal(t, Idle, h.state())
}

func TestFireAndForgetFailureIsReported(t *testing.T) {
	opener := newFakeOpener()
	opener.openErr = errors.New("gone")
	h := newHarness(t, opener)

	req := NewRequest(StartStream)
	req.Device = "cam0"
	require.NoError(t, h.ch.Send(req))
	h.coord.step()

	require.Len(t, h.errs, 1)
	assert.True(t, errors.Is(h.errs[0], ErrDeviceOpenFailed))
}

func TestStopStreamIsIdempotent(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	first := h.request(t, NewRequest(StopStream))
	second := h.request(t, NewRequest(StopStream))
	h.coord.step()
	h.coord.step()

	assert.NoError(t, (<-first).Err)
	assert.NoError(t, (<-second).Err)
	assert.Equal(t, Idle, h.state())

	h.start(t, "cam0")
	h.coord.step()
	require.Equal(t, Streaming, h.state())

	first = h.request(t, NewRequest(StopStream))
	second = h.request(t, NewRequest(StopStream))
	h.coord.step()
	h.coord.step()

	assert.NoError(t, (<-first).Err)
	assert.NoError(t, (<-second).Err)
	assert.Equal(t, Idle, h.state())
	assert.Equal(t, []State{Streaming, Idle}, h.states)
	h.assertConsistent(t)
}

func TestStartThenStopDeliversNoFrames(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	started := h.start(t, "cam0")
	stopped := h.request(t, NewRequest(StopStream))
	h.coord.step()

	assert.NoError(t, (<-started).Err)
	assert.NoError(t, (<-stopped).Err)
	assert.Equal(t, Idle, h.state())

	h.coord.step()
	h.coord.step()

	assert.Equal(t, 0, h.sink.count())
	assert.Equal(t, []State{Streaming, Idle}, h.states)
	live, _, opened, closed := opener.tracker.snapshot()
	assert.Equal(t, 0, live)
	assert.Equal(t, 1, opened)
	assert.Equal(t, 1, closed)
}

func TestQueuedRequestsServedInOrder(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	h.start(t, "cam0")
	get := h.request(t, NewRequest(GetFormat))
	stop := h.request(t, NewRequest(StopStream))
	after := h.request(t, NewRequest(GetFormat))
	h.coord.step()

	assert.NoError(t, (<-get).Err)
	assert.NoError(t, (<-stop).Err)
	assert.True(t, errors.Is((<-after).Err, ErrNoDeviceOpen))
	assert.Equal(t, 0, h.sink.count())
}

func TestQueriesWithoutDeviceReturnNoDevice(t *testing.T) {
	h := newHarness(t, newFakeOpener())

	kinds := []RequestKind{QueryFormats, QueryControls, GetFormat, SetFormat, SetControl}
	for _, kind := range kinds {
		reply := h.request(t, NewRequest(kind))
		h.coord.step()

		resp := <-reply
		assert.True(t, errors.Is(resp.Err, ErrNoDeviceOpen), kind.String())
		assert.Equal(t, kind, resp.Kind)
		assert.Equal(t, Idle, h.state())
	}
}

func TestQueriesWhileStreaming(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	h.start(t, "cam0")
	h.coord.step()

	formats := h.request(t, NewRequest(QueryFormats))
	h.coord.step()
	fs, ok := (<-formats).Formats()
	require.True(t, ok)
	assert.Len(t, fs, 2)

	set := NewRequest(SetControl)
	set.Control = models.Control{
		ID:             1,
		Name:           "exposure",
		Representation: models.Representation{Kind: models.RepresentationInteger, Min: 0, Max: 100},
		Value:          models.IntValue(42),
	}
	setReply := h.request(t, set)
	h.coord.step()
	resp := <-setReply
	require.NoError(t, resp.Err)
	ctrl, ok := resp.Control()
	require.True(t, ok)
	assert.Equal(t, models.IntValue(42), ctrl.Value)

	controls := h.request(t, NewRequest(QueryControls))
	h.coord.step()
	cs, ok := (<-controls).Controls()
	require.True(t, ok)
	require.Len(t, cs, 1)
	assert.Equal(t, models.IntValue(42), cs[0].Value)

	set.Control.Value = models.IntValue(500)
	badReply := h.request(t, set)
	h.coord.step()
	assert.Error(t, (<-badReply).Err)
	assert.Equal(t, Streaming, h.state())

	get := h.request(t, NewRequest(GetFormat))
	h.coord.step()
	f, ok := (<-get).Format()
	require.True(t, ok)
	assert.Equal(t, models.BGRA32, f.Encoding)
}

func TestSetFormatWhileStreaming(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	h.start(t, "cam0")
	h.coord.step()

	req := NewRequest(SetFormat)
	req.Format = models.Format{Width: 320, Height: 240, Encoding: models.BGRA32}
	reply := h.request(t, req)
	h.coord.step()

	resp := <-reply
	require.NoError(t, resp.Err)
	f, _ := resp.Format()
	assert.Equal(t, req.Format, f)
	assert.Equal(t, Streaming, h.state())
	assert.Equal(t, int32(2), opener.streamsOpened.Load())

	h.coord.step()
	last := h.sink.frames[len(h.sink.frames)-1]
	assert.Equal(t, uint32(320), last.Width)
	assert.Equal(t, uint32(240), last.Height)

	req.Format.Encoding = models.RGBA32
	reply = h.request(t, req)
	h.coord.step()
	assert.True(t, errors.Is((<-reply).Err, ErrFormatNegotiationFailed))
	assert.Equal(t, Streaming, h.state())
}

func TestSetFormatNegotiationFailureDropsToIdle(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	h.start(t, "cam0")
	h.coord.step()

	opener.negotiated = models.Format{Width: 320, Height: 240, Encoding: "mjpeg"}
	req := NewRequest(SetFormat)
	req.Format = models.Format{Width: 320, Height: 240}
	reply := h.request(t, req)
	h.coord.step()

	assert.True(t, errors.Is((<-reply).Err, ErrFormatNegotiationFailed))
	assert.Equal(t, Idle, h.state())
	h.assertConsistent(t)
}

func TestCaptureFailureDegradesToIdle(t *testing.T) {
	opener := newFakeOpener()
	opener.frames = 2
	h := newHarness(t, opener)

	h.start(t, "cam0")
	for i := 0; i < 4; i++ {
		h.coord.step()
	}

	assert.Equal(t, 2, h.sink.count())
	assert.Equal(t, Idle, h.state())
	require.Len(t, h.errs, 1)
	assert.True(t, errors.Is(h.errs[0], ErrFrameCaptureFailed))
	h.assertConsistent(t)
}

func TestFramesDeliveredInCaptureOrder(t *testing.T) {
	opener := newFakeOpener()
	opener.frames = 10
	h := newHarness(t, opener)

	h.start(t, "cam0")
	h.coord.step()
	for i := 0; i < 10; i++ {
		h.coord.step()
	}

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, h.sink.markers())
	for i, f := range h.sink.frames {
		assert.Equal(t, uint64(i+1), f.Sequence)
	}
}

func TestStartOtherDeviceSwitchesStream(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	h.start(t, "cam0")
	h.coord.step()
	same := h.start(t, "cam0")
	h.coord.step()
	require.NoError(t, (<-same).Err)

	h.start(t, "cam1")
	h.coord.step()

	assert.Equal(t, Streaming, h.state())
	_, maxLive, opened, closed := opener.tracker.snapshot()
	assert.Equal(t, 1, maxLive)
	assert.Equal(t, 2, opened)
	assert.Equal(t, 1, closed)
	assert.Equal(t, []string{"open cam0", "close cam0", "open cam1"}, opener.tracker.order)
}

func TestSecondStreamPanics(t *testing.T) {
	h := newHarness(t, newFakeOpener())
	h.start(t, "cam0")
	h.coord.step()

	assert.Panics(t, func() {
		h.coord.enter(&streamingState{id: "cam1"})
	})
}

func TestShutdownRequestEndsRun(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	h := newHarness(t, opener)

	h.start(t, "cam0")
	h.request(t, NewRequest(Shutdown))

	done := make(chan error, 1)
	go func() { done <- h.coord.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}

	live, _, _, _ := opener.tracker.snapshot()
	assert.Equal(t, 0, live)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	opener.frameDelay = time.Millisecond
	h := newHarness(t, opener)
	h.coord.opts.OnState = nil
	h.coord.opts.OnError = nil

	h.start(t, "cam0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.coord.Run(ctx) }()

	require.Eventually(t, func() bool { return h.sink.count() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}

	live, _, opened, closed := opener.tracker.snapshot()
	assert.Equal(t, 0, live)
	assert.Equal(t, opened, closed)
}

func TestRunStopsOnChannelClose(t *testing.T) {
	h := newHarness(t, newFakeOpener())
	h.ch.Close()

	done := make(chan error, 1)
	go func() { done <- h.coord.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func TestConcurrentProducersNeverOpenTwoDevices(t *testing.T) {
	opener := newFakeOpener()
	opener.endless = true
	sink := &recordingSink{}

	svc := Start(context.Background(), opener, sink, Options{IdlePoll: time.Millisecond}, 8)
	root := svc.Connection()

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		conn := root.Clone()
		id := models.DeviceID([]string{"cam0", "cam1"}[p%2])

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Release()
			for i := 0; i < 50; i++ {
				_, err := conn.StartStream(id)
				assert.NoError(t, err)
				_, err = conn.StopStream()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	pending, err := root.GetFormat()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = pending.Wait(ctx)
	require.NoError(t, ctx.Err())

	root.Release()
	svc.Stop()

	live, maxLive, opened, closed := opener.tracker.snapshot()
	assert.Equal(t, 0, live)
	assert.LessOrEqual(t, maxLive, 1)
	assert.Equal(t, opened, closed)
	assert.Greater(t, opened, 0)
}

func TestEndToEndViewerScenario(t *testing.T) {
	opener := newFakeOpener()
	opener.frames = 3
	opener.negotiated = models.Format{Width: 640, Height: 480, Encoding: models.BGRA32}

	devices := func() []models.DeviceID { return []models.DeviceID{"cam0"} }
	ids := devices()
	require.Equal(t, []models.DeviceID{"cam0"}, ids)

	h := newHarness(t, opener)
	conn := NewConnection(h.ch)

	pending, err := conn.StartStream(ids[0])
	require.NoError(t, err)
	h.coord.step()

	resp := <-pending.Done()
	require.NoError(t, resp.Err)
	assert.Equal(t, Streaming, h.state())

	for i := 0; i < 3; i++ {
		h.coord.step()
	}

	require.Equal(t, 3, h.sink.count())
	for _, f := range h.sink.frames {
		assert.Equal(t, uint32(640), f.Width)
		assert.Equal(t, uint32(480), f.Height)
		assert.Len(t, f.Pixels, 640*480*4)
	}

	stop, err := conn.StopStream()
	require.NoError(t, err)
	h.coord.handle(mustReceive(t, h.ch))

	assert.NoError(t, (<-stop.Done()).Err)
	assert.Equal(t, Idle, h.state())
	h.assertConsistent(t)
	assert.Equal(t, 3, h.sink.count())
}

func mustReceive(t *testing.T, ch *Channel) Request {
	t.Helper()
	req, ok, err := ch.TryReceive(time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	return req
}
