package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"camview/internal/config"
	"camview/internal/logging"
	"camview/internal/models"
	"camview/internal/ui/cwidget"
	"camview/processing/capture"
	"camview/processing/coordinator"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

const (
	requestTimeout = 10 * time.Second

	loadingCameras = "Loading cameras..."
	noCameras      = "No cameras found"
)

type ViewerApp struct {
	fyneApp fyne.App
	mainWin fyne.Window

	config     *config.Config
	configPath string
	tools      capture.Tools
	conn       *coordinator.Connection

	dynamicSettings *fyne.Container
	staticSettings  *fyne.Container
	controlsBox     *fyne.Container

	videoCanvas  *canvas.Image
	sink         *CanvasSink
	stats        *FrameStats
	statusLabel  *widget.Label
	latencyLabel *widget.Label
	fpsLabel     *widget.Label
	formatSelect *widget.Select
	formats      []models.Format

	statStop chan struct{}
}

func CreateApp(cfg *config.Config, configPath string, tools capture.Tools) *ViewerApp {
	a := app.New()
	w := a.NewWindow("Camera Viewer")

	w.Resize(fyne.NewSize(1200, 600))

	videoCanvas := canvas.NewImageFromImage(nil)
	videoCanvas.FillMode = canvas.ImageFillContain
	videoCanvas.SetMinSize(fyne.NewSize(640, 480))

	stats := &FrameStats{}

	return &ViewerApp{
		fyneApp:     a,
		mainWin:     w,
		config:      cfg,
		configPath:  configPath,
		tools:       tools,
		videoCanvas: videoCanvas,
		stats:       stats,
		sink:        NewCanvasSink(videoCanvas, stats),
		statStop:    make(chan struct{}),
	}
}

// Sink is the Frame Sink to hand to the coordinator.
func (a *ViewerApp) Sink() *CanvasSink {
	return a.sink
}

// ReportError shows coordinator failures that no request waited for.
func (a *ViewerApp) ReportError(err error) {
	fyne.Do(func() {
		dialog.ShowError(err, a.mainWin)
	})
}

func (a *ViewerApp) ReportState(s coordinator.State) {
	if s == coordinator.Idle {
		a.stats.Reset()
		a.sink.Clear()
	}

	fyne.Do(func() {
		if a.statusLabel != nil {
			a.statusLabel.SetText(fmt.Sprintf("State: %s", s))
		}
		if s == coordinator.Idle && a.controlsBox != nil {
			a.controlsBox.Objects = nil
			a.controlsBox.Refresh()
		}
	})
}

// Run shows the window and blocks until it is closed. conn is released on
// return.
func (a *ViewerApp) Run(conn *coordinator.Connection) {
	a.conn = conn
	defer conn.Release()

	a.dynamicSettings = container.NewVBox()
	a.controlsBox = container.NewVBox()

	sourceTypeSelect := widget.NewSelect(config.SourcesList[:], func(s string) {
		a.config.SetSource(config.SourceType(s))
		a.refreshSettingsUI(s)
	})

	sourceTypeSelect.SetSelected(string(a.config.GetSource()))

	settingsLabel := widget.NewLabelWithStyle("Configuration", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	a.statusLabel = widget.NewLabel(fmt.Sprintf("State: %s", coordinator.Idle))
	a.latencyLabel = widget.NewLabel(a.formatLatency(0))
	a.fpsLabel = widget.NewLabel(a.formatFPS(0))

	a.formatSelect = widget.NewSelect(nil, a.onFormatSelected)
	a.formatSelect.PlaceHolder = "Format"
	a.formatSelect.Disable()

	videoContainer := container.NewBorder(
		container.NewHBox(a.statusLabel, widget.NewSeparator(), a.fpsLabel, widget.NewSeparator(), a.latencyLabel),
		nil, nil, nil,
		a.videoCanvas,
	)

	a.setupConfigSettings()

	sidebar := container.NewVBox(
		settingsLabel,
		widget.NewSeparator(),
		widget.NewLabel("Source Type:"),
		sourceTypeSelect,
		widget.NewSeparator(),
		a.dynamicSettings,
		a.staticSettings,
		widget.NewSeparator(),
		container.NewHBox(
			widget.NewButtonWithIcon("Start", theme.MediaPlayIcon(), func() {
				a.StartProcessing()
			}),
			widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
				a.StopProcessing()
			}),
		),
		widget.NewSeparator(),
		widget.NewLabel("Format:"),
		a.formatSelect,
		widget.NewLabel("Controls:"),
		a.controlsBox,
	)

	split := container.NewHSplit(
		container.NewPadded(container.NewVScroll(sidebar)),
		container.NewPadded(videoContainer),
	)
	split.SetOffset(0.3)

	a.mainWin.SetContent(split)

	a.refreshSettingsUI(string(a.config.GetSource()))

	a.mainWin.SetCloseIntercept(func() {
		if err := a.config.Save(a.configPath); err != nil {
			logging.Get().Warn("config not saved", "path", a.configPath, "error", err)
		}
		close(a.statStop)
		a.mainWin.Close()
	})

	go a.runStatLoop()

	a.mainWin.CenterOnScreen()
	a.mainWin.ShowAndRun()
}

// await waits for a reply off the UI goroutine and runs onOK on it.
func (a *ViewerApp) await(pending *coordinator.Pending, err error, onOK func(coordinator.Response)) {
	if err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := pending.Wait(ctx)

		fyne.Do(func() {
			if err != nil {
				dialog.ShowError(err, a.mainWin)
				return
			}
			if onOK != nil {
				onOK(resp)
			}
		})
	}()
}

func (a *ViewerApp) StartProcessing() {
	device := models.DeviceID(a.config.SelectedDevice())

	pending, err := a.conn.StartStream(device)
	a.await(pending, err, func(resp coordinator.Response) {
		if f, ok := resp.Format(); ok {
			logging.Get().Info("streaming", "device", device, "format", f)
		}
		a.refreshFormats()
		a.refreshControls()
	})
}

func (a *ViewerApp) StopProcessing() {
	pending, err := a.conn.StopStream()
	a.await(pending, err, func(coordinator.Response) {
		a.formatSelect.Options = nil
		a.formatSelect.ClearSelected()
		a.formatSelect.Disable()
	})
}

// RestartProcessing reopens the device so new size and FPS settings apply.
func (a *ViewerApp) RestartProcessing() {
	if _, err := a.conn.StopStream(); err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}
	a.StartProcessing()
}

func (a *ViewerApp) refreshFormats() {
	pending, err := a.conn.QueryFormats()
	a.await(pending, err, func(resp coordinator.Response) {
		formats, _ := resp.Formats()

		a.formats = a.formats[:0]
		options := make([]string, 0, len(formats))
		seen := make(map[string]bool)

		for _, f := range formats {
			label := fmt.Sprintf("%dx%d", f.Width, f.Height)
			if seen[label] {
				continue
			}
			seen[label] = true
			a.formats = append(a.formats, f)
			options = append(options, label)
		}

		a.formatSelect.Options = options
		if len(options) > 0 {
			a.formatSelect.Enable()
		}
		a.formatSelect.Refresh()
	})
}

func (a *ViewerApp) onFormatSelected(label string) {
	for _, f := range a.formats {
		if fmt.Sprintf("%dx%d", f.Width, f.Height) != label {
			continue
		}

		// Leave the encoding to the coordinator.
		f.Encoding = ""

		pending, err := a.conn.SetFormat(f)
		a.await(pending, err, func(resp coordinator.Response) {
			if got, ok := resp.Format(); ok {
				a.config.SetWidth(int(got.Width))
				a.config.SetHeight(int(got.Height))
			}
		})
		return
	}
}

func (a *ViewerApp) refreshControls() {
	pending, err := a.conn.QueryControls()
	if err != nil {
		dialog.ShowError(err, a.mainWin)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		resp, err := pending.Wait(ctx)
		if err != nil {
			// Sources without controls are normal; nothing to show.
			logging.Get().Debug("controls unavailable", "error", err)
			return
		}

		controls, _ := resp.Controls()
		fyne.Do(func() {
			a.controlsBox.Objects = nil
			for _, c := range controls {
				if obj := a.controlEditor(c); obj != nil {
					a.controlsBox.Add(obj)
				}
			}
			a.controlsBox.Refresh()
		})
	}()
}

func (a *ViewerApp) applyControl(c models.Control, v models.ControlValue) {
	c.Value = v
	pending, err := a.conn.SetControl(c)
	a.await(pending, err, nil)
}

func (a *ViewerApp) controlEditor(c models.Control) fyne.CanvasObject {
	label := strings.ReplaceAll(c.Name, "_", " ")
	rep := c.Representation

	switch rep.Kind {
	case models.RepresentationBoolean:
		check := widget.NewCheck(label, nil)
		check.SetChecked(c.Value.Kind == models.ValueBoolean && c.Value.Boolean)
		check.OnChanged = func(b bool) {
			a.applyControl(c, models.BoolValue(b))
		}
		return check

	case models.RepresentationMenu:
		if len(rep.Items) == 0 {
			break
		}

		labels := make([]string, len(rep.Items))
		for i, item := range rep.Items {
			labels[i] = item.Label
		}

		sel := widget.NewSelect(labels, nil)
		for _, item := range rep.Items {
			if c.Value.Kind == models.ValueInteger && item.Index == c.Value.Integer {
				sel.SetSelected(item.Label)
			}
		}
		sel.OnChanged = func(s string) {
			for _, item := range rep.Items {
				if item.Label == s {
					a.applyControl(c, models.IntValue(item.Index))
					return
				}
			}
		}
		return container.NewVBox(widget.NewLabel(label), sel)
	}

	if rep.Kind == models.RepresentationInteger || rep.Kind == models.RepresentationMenu {
		current := rep.Default
		if c.Value.Kind == models.ValueInteger {
			current = c.Value.Integer
		}
		return cwidget.NewRangeInput(label, rep.Min, rep.Max, current, func(v int64) {
			a.applyControl(c, models.IntValue(v))
		})
	}

	return nil
}

func (a *ViewerApp) runStatLoop() {
	uiTicker := time.NewTicker(time.Millisecond * 200)
	defer uiTicker.Stop()

	for {
		select {
		case <-uiTicker.C:
			fps, latency := a.stats.Snapshot()
			fyne.Do(func() {
				a.latencyLabel.SetText(a.formatLatency(latency))
				a.fpsLabel.SetText(a.formatFPS(fps))
			})
		case <-a.statStop:
			return
		}
	}
}

func (a *ViewerApp) formatFPS(v uint) string {
	return fmt.Sprintf("FPS: %d", v)
}

func (a *ViewerApp) formatLatency(v time.Duration) string {
	return fmt.Sprintf("Latency: %d ms", v.Milliseconds())
}

func (a *ViewerApp) setupConfigSettings() {

	a.staticSettings = container.NewVBox()

	fpsInput := cwidget.NewIntInput(
		"FPS",
		"Enter integer",
		int(a.config.GetFPS()),
		func(i int) {
			a.config.SetFPS(uint(i))
		},
	)

	widthInput := cwidget.NewIntInput(
		"Width",
		"Enter integer",
		a.config.GetWidth(),
		func(i int) {
			a.config.SetWidth(i)
		},
	)

	heightInput := cwidget.NewIntInput(
		"Height",
		"Enter integer",
		a.config.GetHeight(),
		func(i int) {
			a.config.SetHeight(i)
		},
	)

	applyCfg := widget.NewButton("Apply config", func() {
		a.RestartProcessing()
	})

	a.staticSettings.Add(fpsInput)
	a.staticSettings.Add(widthInput)
	a.staticSettings.Add(heightInput)

	a.staticSettings.Add(applyCfg)

}

func (a *ViewerApp) refreshSettingsUI(sourceType string) {
	if a.dynamicSettings == nil {
		return
	}

	a.dynamicSettings.Objects = nil

	switch config.SourceType(sourceType) {
	case config.SourceLocal:
		pathEntry := widget.NewEntry()
		pathEntry.SetPlaceHolder("/path/to/video.mp4")
		pathEntry.SetText(a.config.Local.Path)

		pathEntry.OnChanged = func(s string) {
			a.config.SetLocalPath(s)
		}

		fileBtn := widget.NewButtonWithIcon("Open File", theme.FolderOpenIcon(), func() {
			dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
				if err == nil && reader != nil {
					path := reader.URI().Path()
					reader.Close()
					pathEntry.SetText(path)
				}
			}, a.mainWin)
		})

		a.dynamicSettings.Add(widget.NewLabel("Video Path:"))
		a.dynamicSettings.Add(container.NewBorder(nil, nil, nil, fileBtn, pathEntry))

	case config.SourceWebcam:
		deviceSelect := widget.NewSelect([]string{loadingCameras}, func(s string) {
			if s != loadingCameras && s != noCameras {
				a.config.SetWebcamDevice(s)
			}
		})
		deviceSelect.SetSelected(loadingCameras)
		deviceSelect.Disable()

		a.dynamicSettings.Add(widget.NewLabel("Select Camera:"))
		a.dynamicSettings.Add(deviceSelect)
		a.dynamicSettings.Refresh()

		current := a.config.SelectedDevice()

		go func() {
			devices, err := capture.ListDevices(a.tools)

			fyne.Do(func() {
				if err != nil {
					dialog.ShowError(err, a.mainWin)
					deviceSelect.Options = []string{"Error listing cameras"}
				} else if len(devices) == 0 {
					deviceSelect.Options = []string{noCameras}
				} else {
					options := make([]string, len(devices))
					for i, d := range devices {
						options[i] = d.String()
					}
					deviceSelect.Options = options
					deviceSelect.Enable()

					if current != "" {
						deviceSelect.SetSelected(current)
					} else {
						deviceSelect.SetSelected(options[0])
					}
				}
				deviceSelect.Refresh()
			})
		}()
	}

	a.dynamicSettings.Refresh()
}
