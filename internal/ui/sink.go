package ui

import (
	"image"
	"sync/atomic"
	"time"

	"camview/internal/models"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
)

// CanvasSink presents frames on a fyne canvas image. Deliver never waits
// for the UI: if a repaint is still queued, the newer frame replaces the
// pending one.
type CanvasSink struct {
	target *canvas.Image
	stats  *FrameStats

	latest    atomic.Pointer[models.Frame]
	scheduled atomic.Bool

	// schedule runs fn on the UI goroutine.
	schedule func(fn func())
}

func NewCanvasSink(target *canvas.Image, stats *FrameStats) *CanvasSink {
	return &CanvasSink{target: target, stats: stats, schedule: fyne.Do}
}

func (s *CanvasSink) Deliver(frame *models.Frame) {
	s.stats.Observe(frame.Captured, time.Now())
	s.latest.Store(frame)

	if !s.scheduled.CompareAndSwap(false, true) {
		return
	}

	s.schedule(func() {
		s.scheduled.Store(false)
		if f := s.latest.Load(); f != nil {
			s.show(f.Image())
		}
	})
}

// Clear blanks the canvas, e.g. after the stream stopped.
func (s *CanvasSink) Clear() {
	s.latest.Store(nil)
	s.schedule(func() { s.show(nil) })
}

func (s *CanvasSink) show(img image.Image) {
	s.target.Image = img
	s.target.Refresh()
}
