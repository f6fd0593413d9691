package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"camview/internal/config"
	"camview/internal/logging"
	"camview/internal/ui"
	"camview/processing/capture"
	"camview/processing/coordinator"
	processing "camview/processing/detector"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool

	cfg *config.Config
}

// openerFactory builds the device opener; tests replace it.
type openerFactory func(cfg *config.Config) capture.Opener

func Execute() error {
	return NewRootCommand(capture.NewOpener).Execute()
}

func NewRootCommand(newOpener openerFactory) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "camview",
		Short:         "Live viewer for local capture devices",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Init(opts.verbose)

			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return errors.Wrap(err, "load config")
			}
			opts.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViewer(cmd.Context(), opts, newOpener)
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "config file")
	root.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(newListCommand(opts))
	root.AddCommand(newProbeCommand(opts, newOpener))

	return root
}

func runViewer(ctx context.Context, opts *rootOptions, newOpener openerFactory) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := opts.cfg
	tools := toolsFor(cfg)

	viewer := ui.CreateApp(cfg, opts.configPath, tools)

	var sink coordinator.FrameSink = viewer.Sink()
	if cfg.Detector.Enabled {
		det := processing.NewRemoteDetector(cfg.Detector.URL)
		det.Start(ctx)
		defer det.Stop()

		sink = processing.NewAnnotator(det, sink)
	}

	svc := coordinator.Start(ctx, newOpener(cfg), sink, coordinator.Options{
		IdlePoll: cfg.Capture.IdlePoll,
		OnError:  viewer.ReportError,
		OnState:  viewer.ReportState,
	}, cfg.Capture.QueueInitCap)
	defer svc.Stop()

	viewer.Run(svc.Connection())
	return nil
}

func toolsFor(cfg *config.Config) capture.Tools {
	return capture.Tools{
		FFmpeg:  cfg.Capture.FFmpegPath,
		FFprobe: cfg.Capture.FFprobePath,
		V4L2Ctl: cfg.Capture.V4L2CtlPath,
	}
}
