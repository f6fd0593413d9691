package models

import (
	"image"
	"time"
)

// Frame is a display-ready picture in RGBA32. The sink owns it after delivery.
type Frame struct {
	Width    uint32
	Height   uint32
	Pixels   []byte
	Sequence uint64
	Captured time.Time
}

// Image views the pixels as an *image.RGBA without copying.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pixels,
		Stride: int(f.Width) * 4,
		Rect:   image.Rect(0, 0, int(f.Width), int(f.Height)),
	}
}
