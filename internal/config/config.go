package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type SourceType string

const (
	SourceLocal  SourceType = "Local"
	SourceWebcam SourceType = "Web-Camera"

	DefaultDetectorURL string        = "ws://localhost:8080/ws"
	DefaultIdlePoll    time.Duration = 100 * time.Millisecond

	envPrefix = "CAMVIEW"
)

var SourcesList = [...]string{
	string(SourceLocal),
	string(SourceWebcam),
}

type LocalConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

type WebcamConfig struct {
	DeviceID string `json:"device_id" mapstructure:"device_id"`
}

type CaptureConfig struct {
	IdlePoll     time.Duration `json:"idle_poll" mapstructure:"idle_poll"`
	FFmpegPath   string        `json:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	FFprobePath  string        `json:"ffprobe_path" mapstructure:"ffprobe_path"`
	V4L2CtlPath  string        `json:"v4l2ctl_path" mapstructure:"v4l2ctl_path"`
	QueueInitCap int           `json:"queue_init_cap" mapstructure:"queue_init_cap"`
}

type DetectorConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
}

type Config struct {
	mu sync.RWMutex

	ActiveSource SourceType `json:"active_source" mapstructure:"active_source"`
	TargetFPS    uint       `json:"target_fps" mapstructure:"target_fps"`
	Width        int        `json:"width" mapstructure:"width"`
	Height       int        `json:"height" mapstructure:"height"`

	Local    LocalConfig    `json:"local" mapstructure:"local"`
	Webcam   WebcamConfig   `json:"webcam" mapstructure:"webcam"`
	Capture  CaptureConfig  `json:"capture" mapstructure:"capture"`
	Detector DetectorConfig `json:"detector" mapstructure:"detector"`
}

func (c *Config) GetFPS() uint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.TargetFPS
}

func (c *Config) SetFPS(fps uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TargetFPS = fps
}

func (c *Config) GetWidth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Width
}

func (c *Config) SetWidth(width int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Width = width
}

func (c *Config) GetHeight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Height
}

func (c *Config) SetHeight(height int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Height = height
}

func (c *Config) GetSource() SourceType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ActiveSource
}

func (c *Config) SetSource(s SourceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ActiveSource = s
}

// SelectedDevice is the device id the active source points at.
func (c *Config) SelectedDevice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.ActiveSource == SourceLocal {
		return "file://" + c.Local.Path
	}
	return c.Webcam.DeviceID
}

func (c *Config) SetWebcamDevice(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Webcam.DeviceID = id
}

func (c *Config) SetLocalPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Local.Path = path
}

func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c, "", "  ")
	c.mu.RUnlock()

	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create config dir for %s", path)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write config %s", path)
	}

	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/camview/config.json.
func DefaultPath() string {
	path, err := xdg.ConfigFile(filepath.Join("camview", "config.json"))
	if err != nil {
		return "config.json"
	}
	return path
}

// Load reads path over the defaults. A missing file is not an error.
// CAMVIEW_* environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode config %s", path)
	}

	if cfg.Capture.IdlePoll <= 0 {
		cfg.Capture.IdlePoll = DefaultIdlePoll
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("active_source", string(d.ActiveSource))
	v.SetDefault("target_fps", d.TargetFPS)
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("local.path", d.Local.Path)
	v.SetDefault("webcam.device_id", d.Webcam.DeviceID)
	v.SetDefault("capture.idle_poll", d.Capture.IdlePoll)
	v.SetDefault("capture.ffmpeg_path", d.Capture.FFmpegPath)
	v.SetDefault("capture.ffprobe_path", d.Capture.FFprobePath)
	v.SetDefault("capture.v4l2ctl_path", d.Capture.V4L2CtlPath)
	v.SetDefault("capture.queue_init_cap", d.Capture.QueueInitCap)
	v.SetDefault("detector.enabled", d.Detector.Enabled)
	v.SetDefault("detector.url", d.Detector.URL)
}

func NewDefaultConfig() *Config {
	return &Config{
		ActiveSource: SourceWebcam,
		Local:        LocalConfig{Path: ""},
		Webcam:       WebcamConfig{DeviceID: "/dev/video0"},
		TargetFPS:    30,
		Width:        640,
		Height:       480,
		Capture: CaptureConfig{
			IdlePoll:     DefaultIdlePoll,
			FFmpegPath:   "ffmpeg",
			FFprobePath:  "ffprobe",
			V4L2CtlPath:  "v4l2-ctl",
			QueueInitCap: 16,
		},
		Detector: DetectorConfig{
			Enabled: false,
			URL:     DefaultDetectorURL,
		},
	}
}
