package coordinator

import (
	"time"

	"camview/internal/models"
	"camview/processing/capture"

	"github.com/pkg/errors"
)

// Convert copies a raw packed frame into a new RGBA32 Frame.
func Convert(raw capture.RawFrame, sequence uint64) (*models.Frame, error) {
	size := int(raw.Width) * int(raw.Height) * 4
	if size == 0 {
		return nil, errors.Errorf("empty frame %dx%d", raw.Width, raw.Height)
	}
	if len(raw.Data) < size {
		return nil, errors.Errorf("short frame: %d of %d bytes", len(raw.Data), size)
	}

	pixels := make([]byte, size)

	switch raw.Encoding {
	case models.BGRA32:
		for i := 0; i < size; i += 4 {
			pixels[i] = raw.Data[i+2]
			pixels[i+1] = raw.Data[i+1]
			pixels[i+2] = raw.Data[i]
			pixels[i+3] = raw.Data[i+3]
		}
	case models.RGBA32:
		copy(pixels, raw.Data[:size])
	default:
		return nil, errors.Errorf("cannot convert %s frames", raw.Encoding)
	}

	return &models.Frame{
		Width:    raw.Width,
		Height:   raw.Height,
		Pixels:   pixels,
		Sequence: sequence,
		Captured: time.Now(),
	}, nil
}
