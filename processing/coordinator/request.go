package coordinator

import (
	"context"

	"camview/internal/models"

	"github.com/google/uuid"
)

type RequestKind int

const (
	StartStream RequestKind = iota
	StopStream
	QueryFormats
	QueryControls
	GetFormat
	SetFormat
	SetControl
	// Shutdown stops streaming and ends the coordinator loop.
	Shutdown
)

var requestNames = [...]string{
	StartStream:   "StartStream",
	StopStream:    "StopStream",
	QueryFormats:  "QueryFormats",
	QueryControls: "QueryControls",
	GetFormat:     "GetFormat",
	SetFormat:     "SetFormat",
	SetControl:    "SetControl",
	Shutdown:      "Shutdown",
}

func (k RequestKind) String() string {
	if int(k) < len(requestNames) {
		return requestNames[k]
	}
	return "Unknown"
}

// Request is one command for the coordinator. Only the payload field that
// matches Kind is read.
type Request struct {
	ID   uuid.UUID
	Kind RequestKind

	Device  models.DeviceID
	Format  models.Format
	Control models.Control

	// Reply, when set, receives exactly one Response. It must have room
	// for it so the coordinator never blocks.
	Reply chan<- Response
}

func NewRequest(kind RequestKind) Request {
	return Request{ID: uuid.New(), Kind: kind}
}

// Response reports the outcome of a Request. Result holds
// models.Format, []models.Format, models.Control or []models.Control
// depending on Kind, or nil.
type Response struct {
	ID     uuid.UUID
	Kind   RequestKind
	Result any
	Err    error
}

func (r Response) Format() (models.Format, bool) {
	f, ok := r.Result.(models.Format)
	return f, ok
}

func (r Response) Formats() ([]models.Format, bool) {
	f, ok := r.Result.([]models.Format)
	return f, ok
}

func (r Response) Control() (models.Control, bool) {
	c, ok := r.Result.(models.Control)
	return c, ok
}

func (r Response) Controls() ([]models.Control, bool) {
	c, ok := r.Result.([]models.Control)
	return c, ok
}

// Pending is the caller side of a request's reply.
type Pending struct {
	ID    uuid.UUID
	Kind  RequestKind
	reply <-chan Response
}

// Wait blocks until the coordinator answers or ctx is done.
func (p *Pending) Wait(ctx context.Context) (Response, error) {
	select {
	case resp := <-p.reply:
		return resp, resp.Err
	case <-ctx.Done():
		return Response{ID: p.ID, Kind: p.Kind}, ctx.Err()
	}
}

// Done exposes the reply for use in select statements.
func (p *Pending) Done() <-chan Response {
	return p.reply
}
