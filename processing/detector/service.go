package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"time"

	"camview/internal/logging"
	"camview/internal/models"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const retryDelay = 2 * time.Second

// RemoteDetector streams JPEG frames to a websocket detection service and
// publishes the boxes it answers with.
type RemoteDetector struct {
	serverURL string

	InputFrames  chan image.Image
	OutputResult chan []models.DetectionResult

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRemoteDetector(serverURL string) *RemoteDetector {
	return &RemoteDetector{
		serverURL:    serverURL,
		InputFrames:  make(chan image.Image, 5),
		OutputResult: make(chan []models.DetectionResult, 5),
		done:         make(chan struct{}),
	}
}

func (d *RemoteDetector) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	go d.runLoop(ctx)
}

// Stop disconnects and closes OutputResult.
func (d *RemoteDetector) Stop() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
	}
}

// Submit offers img without blocking and reports whether it was queued.
func (d *RemoteDetector) Submit(img image.Image) bool {
	select {
	case d.InputFrames <- img:
		return true
	default:
		return false
	}
}

func (d *RemoteDetector) Results() <-chan []models.DetectionResult {
	return d.OutputResult
}

func (d *RemoteDetector) runLoop(ctx context.Context) {
	defer close(d.done)
	defer close(d.OutputResult)

	log := logging.Get()

	for ctx.Err() == nil {
		log.Info("connecting to detector server", "url", d.serverURL)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.serverURL, nil)
		if err != nil {
			log.Warn("detector connection failed", "error", err, "retry", retryDelay)
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		log.Info("connected to detection server")
		err = d.serve(ctx, conn)

		if ctx.Err() == nil {
			log.Warn("detector connection lost", "error", err)
		}
	}
}

// serve pumps frames and results until the connection fails. It closes
// conn and waits for the reader before returning.
func (d *RemoteDetector) serve(ctx context.Context, conn *websocket.Conn) error {
	errChan := make(chan error, 1)
	readerDone := make(chan struct{})

	defer func() {
		conn.Close()
		<-readerDone
	}()

	go func() {
		defer close(readerDone)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				errChan <- errors.Wrap(err, "read results")
				return
			}

			var results []models.DetectionResult
			if err := json.Unmarshal(message, &results); err != nil {
				logging.Get().Warn("detector JSON decode error", "error", err)
				continue
			}

			select {
			case d.OutputResult <- results:
			default:
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()

		case err := <-errChan:
			return err

		case img := <-d.InputFrames:
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, nil); err != nil {
				logging.Get().Warn("JPEG encode error", "error", err)
				continue
			}

			if err := conn.WriteMessage(websocket.BinaryMessage, buf.Bytes()); err != nil {
				return errors.Wrap(err, "write frame")
			}
		}
	}
}
