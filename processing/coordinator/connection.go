package coordinator

import (
	"sync"
	"sync/atomic"

	"camview/internal/logging"
	"camview/internal/models"

	"github.com/pkg/errors"
)

var ErrConnectionReleased = errors.New("connection released")

type connShared struct {
	sender Sender
	refs   atomic.Int64
}

// Connection is a producer handle on the coordinator. Clone it for every
// owner; when the last clone is released a StopStream is enqueued so the
// device is never left open.
type Connection struct {
	shared   *connShared
	once     sync.Once
	released atomic.Bool
}

func NewConnection(sender Sender) *Connection {
	shared := &connShared{sender: sender}
	shared.refs.Store(1)
	return &Connection{shared: shared}
}

// Clone returns a new owner of the same connection. Cloning a released
// handle is a programming error.
func (c *Connection) Clone() *Connection {
	if c.released.Load() {
		panic("coordinator: Clone of released Connection")
	}
	c.shared.refs.Add(1)
	return &Connection{shared: c.shared}
}

// Release drops this owner. It is safe to call more than once.
func (c *Connection) Release() {
	c.once.Do(func() {
		c.released.Store(true)

		if c.shared.refs.Add(-1) != 0 {
			return
		}

		if err := c.shared.sender.Send(NewRequest(StopStream)); err != nil {
			logging.Get().Debug("final stop not delivered", "error", err)
		}
	})
}

func (c *Connection) send(req Request) (*Pending, error) {
	if c.released.Load() {
		return nil, ErrConnectionReleased
	}

	reply := make(chan Response, 1)
	req.Reply = reply

	if err := c.shared.sender.Send(req); err != nil {
		return nil, err
	}
	return &Pending{ID: req.ID, Kind: req.Kind, reply: reply}, nil
}

func (c *Connection) StartStream(id models.DeviceID) (*Pending, error) {
	req := NewRequest(StartStream)
	req.Device = id
	return c.send(req)
}

func (c *Connection) StopStream() (*Pending, error) {
	return c.send(NewRequest(StopStream))
}

func (c *Connection) QueryFormats() (*Pending, error) {
	return c.send(NewRequest(QueryFormats))
}

func (c *Connection) QueryControls() (*Pending, error) {
	return c.send(NewRequest(QueryControls))
}

func (c *Connection) GetFormat() (*Pending, error) {
	return c.send(NewRequest(GetFormat))
}

func (c *Connection) SetFormat(f models.Format) (*Pending, error) {
	req := NewRequest(SetFormat)
	req.Format = f
	return c.send(req)
}

func (c *Connection) SetControl(ctrl models.Control) (*Pending, error) {
	req := NewRequest(SetControl)
	req.Control = ctrl
	return c.send(req)
}

// Shutdown asks the coordinator loop to exit after closing the device.
func (c *Connection) Shutdown() (*Pending, error) {
	return c.send(NewRequest(Shutdown))
}
