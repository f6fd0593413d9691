package processing

import (
	"image"
	"image/color"
	"sync"

	"camview/internal/models"
	"camview/processing/coordinator"
)

type Detector interface {
	Submit(img image.Image) bool
	Results() <-chan []models.DetectionResult
}

// Annotator is a FrameSink that feeds frames to a Detector and draws the
// latest boxes onto each frame before passing it on.
type Annotator struct {
	next coordinator.FrameSink
	det  Detector

	lastResults []models.DetectionResult
	mu          sync.RWMutex
}

func NewAnnotator(det Detector, next coordinator.FrameSink) *Annotator {
	a := &Annotator{next: next, det: det}

	go func() {
		for results := range det.Results() {
			a.mu.Lock()
			a.lastResults = results
			a.mu.Unlock()
		}
	}()

	return a
}

func (a *Annotator) Deliver(frame *models.Frame) {
	rgbaImg := frame.Image()

	// The detector encodes asynchronously, so it gets its own copy.
	a.det.Submit(cloneRGBA(rgbaImg))

	a.mu.RLock()
	currentDetections := a.lastResults
	a.mu.RUnlock()

	if len(currentDetections) > 0 {
		bounds := rgbaImg.Bounds()
		col := color.RGBA{0, 255, 0, 255}

		for _, res := range currentDetections {
			box, ok := res.Scale(bounds.Dx(), bounds.Dy())
			if !ok {
				continue
			}
			drawRect(rgbaImg, box, col)
		}
	}

	a.next.Deliver(frame)
}

func cloneRGBA(img *image.RGBA) *image.RGBA {
	pix := make([]byte, len(img.Pix))
	copy(pix, img.Pix)
	return &image.RGBA{Pix: pix, Stride: img.Stride, Rect: img.Rect}
}

func drawRect(img *image.RGBA, box models.Box, col color.Color) {
	thickness := 3
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := box.X1; x <= box.X2; x++ {
			setPixel(x, box.Y1+t)
			setPixel(x, box.Y2-t)
		}
		for y := box.Y1; y <= box.Y2; y++ {
			setPixel(box.X1+t, y)
			setPixel(box.X2-t, y)
		}
	}
}
