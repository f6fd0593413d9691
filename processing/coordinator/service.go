package coordinator

import (
	"context"

	"camview/processing/capture"
)

// Service runs a Coordinator on its own goroutine.
type Service struct {
	channel *Channel
	conn    *Connection
	cancel  context.CancelFunc
	done    chan struct{}
}

func Start(ctx context.Context, opener capture.Opener, sink FrameSink, opts Options, queueSize int) *Service {
	ctx, cancel := context.WithCancel(ctx)

	ch := NewChannel(queueSize)
	coord := New(opener, ch, sink, opts)

	s := &Service{
		channel: ch,
		conn:    NewConnection(ch),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		coord.Run(ctx)
	}()

	return s
}

// Connection returns the root handle. Clone it for additional owners.
func (s *Service) Connection() *Connection {
	return s.conn
}

// Done is closed once the coordinator loop has exited.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// Stop ends the loop and waits for the device to be closed.
func (s *Service) Stop() {
	s.channel.Close()
	s.cancel()
	<-s.done
}
