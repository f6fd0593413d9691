package coordinator

import (
	"fmt"

	"camview/internal/models"

	"github.com/pkg/errors"
)

var (
	ErrDeviceOpenFailed        = errors.New("device open failed")
	ErrFormatNegotiationFailed = errors.New("format negotiation failed")
	ErrStreamOpenFailed        = errors.New("stream open failed")
	ErrFrameCaptureFailed      = errors.New("frame capture failed")
	ErrNoDeviceOpen            = errors.New("no device open")
	ErrChannelClosed           = errors.New("request channel closed")
)

// Error ties a failure to its kind and device. errors.Is matches both the
// kind sentinel and the underlying cause.
type Error struct {
	Kind   error
	Device models.DeviceID
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Device != "" {
		msg = fmt.Sprintf("%s: %s", e.Device, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, device models.DeviceID, err error) *Error {
	return &Error{Kind: kind, Device: device, Err: err}
}
