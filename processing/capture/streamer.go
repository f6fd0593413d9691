package capture

import (
	"camview/internal/models"
)

// Opener opens capture devices by id.
type Opener interface {
	Open(id models.DeviceID) (Device, error)
}

// Device is an open capture device. It is not safe for concurrent use and
// must stay on the goroutine that opened it.
type Device interface {
	Format() (models.Format, error)
	// SetFormat returns the format the device actually negotiated.
	SetFormat(f models.Format) (models.Format, error)
	Formats() ([]models.Format, error)
	Controls() ([]models.Control, error)
	SetControl(c models.Control) (models.Control, error)
	OpenStream() (Stream, error)
	Close() error
}

// Stream yields raw frames in the negotiated format.
type Stream interface {
	// Next blocks for at most about one frame interval.
	Next() (RawFrame, error)
	Close() error
}

type RawFrame struct {
	Width    uint32
	Height   uint32
	Encoding models.PixelEncoding
	Data     []byte
}

type OpenerFunc func(id models.DeviceID) (Device, error)

func (f OpenerFunc) Open(id models.DeviceID) (Device, error) { return f(id) }
