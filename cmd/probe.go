package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"camview/internal/models"
	"camview/processing/coordinator"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type probeOptions struct {
	frames  int
	timeout time.Duration
}

func newProbeCommand(root *rootOptions, newOpener openerFactory) *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe [device]",
		Short: "Open a device headless, print its formats and controls and capture a few frames",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			device := models.DeviceID(root.cfg.SelectedDevice())
			if len(args) == 1 {
				device = models.DeviceID(args[0])
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, opts.timeout)
			defer cancel()

			sink := newCountingSink(opts.frames)
			svc := coordinator.Start(ctx, newOpener(root.cfg), sink, coordinator.Options{
				IdlePoll: root.cfg.Capture.IdlePoll,
			}, root.cfg.Capture.QueueInitCap)
			defer svc.Stop()

			conn := svc.Connection()
			defer conn.Release()

			return probe(ctx, cmd.OutOrStdout(), conn, sink, device, opts.frames)
		},
	}

	cmd.Flags().IntVar(&opts.frames, "frames", 3, "frames to capture")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "overall deadline")

	return cmd
}

func probe(ctx context.Context, out io.Writer, conn *coordinator.Connection, sink *countingSink, device models.DeviceID, frames int) error {
	resp, err := wait(ctx)(conn.StartStream(device))
	if err != nil {
		return errors.Wrapf(err, "start %s", device)
	}
	format, _ := resp.Format()
	fmt.Fprintf(out, "device:  %s\nformat:  %s\n", device, format)

	if resp, err := wait(ctx)(conn.QueryFormats()); err == nil {
		formats, _ := resp.Formats()
		fmt.Fprintf(out, "formats: %d\n", len(formats))
		for _, f := range formats {
			fmt.Fprintf(out, "  %s\n", f)
		}
	} else {
		fmt.Fprintf(out, "formats: %v\n", err)
	}

	if resp, err := wait(ctx)(conn.QueryControls()); err == nil {
		controls, _ := resp.Controls()
		fmt.Fprintf(out, "controls: %d\n", len(controls))
		for _, c := range controls {
			fmt.Fprintf(out, "  %s (%s) = %s\n", c.Name, c.Representation.Kind, c.Value)
		}
	} else {
		fmt.Fprintf(out, "controls: %v\n", err)
	}

	for got := 0; got < frames; got++ {
		select {
		case f := <-sink.frames:
			fmt.Fprintf(out, "frame %d: %dx%d\n", f.Sequence, f.Width, f.Height)
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "captured %d of %d frames", got, frames)
		}
	}

	if _, err := wait(ctx)(conn.StopStream()); err != nil {
		return errors.Wrap(err, "stop")
	}
	return nil
}

func wait(ctx context.Context) func(*coordinator.Pending, error) (coordinator.Response, error) {
	return func(p *coordinator.Pending, err error) (coordinator.Response, error) {
		if err != nil {
			return coordinator.Response{}, err
		}
		return p.Wait(ctx)
	}
}

// countingSink keeps the first n frames and drops the rest.
type countingSink struct {
	frames chan *models.Frame
}

func newCountingSink(n int) *countingSink {
	if n < 1 {
		n = 1
	}
	return &countingSink{frames: make(chan *models.Frame, n)}
}

func (s *countingSink) Deliver(f *models.Frame) {
	select {
	case s.frames <- f:
	default:
	}
}
