// Package config loads the daemon configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	vc0706 "github.com/CACTUS-Mission/cFS-VC0706"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/app"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/capture"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/gpio"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

type Config struct {
	Camera  Camera  `yaml:"camera"`
	Capture Capture `yaml:"capture"`
	GPIO    GPIO    `yaml:"gpio"`
	App     App     `yaml:"app"`
	Journal Journal `yaml:"journal"`
}

type Camera struct {
	TTYInterface int           `yaml:"tty_interface"`
	Device       string        `yaml:"device"` // overrides the tty_interface device
	Baud         int           `yaml:"baud"`
	SerialNumber byte          `yaml:"serial_number"`
	PollInterval time.Duration `yaml:"poll_interval"`
	TimeoutScale int           `yaml:"timeout_scale"`
	ChunkSize    uint32        `yaml:"chunk_size"`
	MaxImageSize uint32        `yaml:"max_image_size"`

	// l, m, s or a width. Empty leaves the camera setting alone.
	ImageSize   string `yaml:"image_size"`
	Compression *uint8 `yaml:"compression"`

	// Serve frames from the built-in simulator instead of a serial port.
	Simulate bool `yaml:"simulate"`
}

type Capture struct {
	ImageDir    string        `yaml:"image_dir"`
	RebootFile  string        `yaml:"reboot_file"`
	Interval    time.Duration `yaml:"interval"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	MaxPictures int           `yaml:"max_pictures"`
}

// GPIO pins are line offsets on Chip, which on a Raspberry Pi are BCM
// numbers, not wiringPi or header pin numbers. The LED default is BCM 15
// (wiringPi 16). The photo count defaults keep the flight numbers 36..31
// as offsets; wiringPi has no mapping for 32 and up to convert them from.
type GPIO struct {
	Enabled        bool          `yaml:"enabled"`
	Chip           string        `yaml:"chip"`
	LEDPin         int           `yaml:"led_pin"`
	FlashWarmup    time.Duration `yaml:"flash_warmup"`
	PhotoCountPins []int         `yaml:"photo_count_pins"`
}

type App struct {
	PipeDepth      int           `yaml:"pipe_depth"`
	ReceiveTimeout time.Duration `yaml:"receive_timeout"`

	// Period of the housekeeping request. Zero disables it.
	HKInterval time.Duration `yaml:"hk_interval"`
}

type Journal struct {
	// Empty disables the journal.
	Path string `yaml:"path"`
}

// LoadError reports a configuration that could not be read or is invalid.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error { return e.Cause }

// Default is the flight configuration.
func Default() *Config {
	return &Config{
		Camera: Camera{
			Baud:         vc0706.BAUD,
			SerialNumber: vc0706.SERIAL_NUM,
			PollInterval: vc0706.TO_U,
			TimeoutScale: vc0706.TO_SCALE,
			ChunkSize:    vc0706.BUFFER_CHUNK_SIZE,
			MaxImageSize: vc0706.MAX_IMAGE_LEN,
		},
		Capture: Capture{
			ImageDir:   capture.DefaultImageDir,
			RebootFile: capture.DefaultRebootFile,
			RetryDelay: capture.DefaultRetryDelay,
		},
		GPIO: GPIO{
			Chip:           gpio.DefaultChip,
			LEDPin:         15,
			FlashWarmup:    vc0706.FLASH_WARMUP,
			PhotoCountPins: []int{36, 35, 34, 33, 32, 31},
		},
		App: App{
			PipeDepth:      swbus.DefaultPipeDepth,
			ReceiveTimeout: app.DefaultReceiveTimeout,
			HKInterval:     time.Second,
		},
	}
}

// Parse reads YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &LoadError{Message: "invalid configuration", Cause: err}
	}
	return cfg, nil
}

// Load reads a configuration file. An empty path gives the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Camera.TTYInterface < 0 {
		errs = append(errs, fmt.Errorf("camera.tty_interface %d is negative", c.Camera.TTYInterface))
	}
	if c.Camera.Baud <= 0 {
		errs = append(errs, fmt.Errorf("camera.baud %d must be positive", c.Camera.Baud))
	}
	if c.Camera.ChunkSize == 0 || c.Camera.ChunkSize > 0xFFFF {
		errs = append(errs, fmt.Errorf("camera.chunk_size %d out of range", c.Camera.ChunkSize))
	}
	if c.Camera.ImageSize != "" {
		if _, ok := vc0706.ParseImageSize(c.Camera.ImageSize); !ok {
			errs = append(errs, fmt.Errorf("camera.image_size %q is not one of l, m, s, 640, 320, 160", c.Camera.ImageSize))
		}
	}
	if c.Capture.ImageDir == "" {
		errs = append(errs, errors.New("capture.image_dir is required"))
	}
	if c.Capture.MaxPictures < 0 {
		errs = append(errs, fmt.Errorf("capture.max_pictures %d is negative", c.Capture.MaxPictures))
	}
	if c.GPIO.Enabled {
		if n := len(c.GPIO.PhotoCountPins); n > 8 {
			errs = append(errs, fmt.Errorf("gpio.photo_count_pins: %d pins, at most 8", n))
		}
		seen := map[int]bool{c.GPIO.LEDPin: true}
		for _, p := range c.GPIO.PhotoCountPins {
			if seen[p] {
				errs = append(errs, fmt.Errorf("gpio: pin %d used twice", p))
			}
			seen[p] = true
		}
	}
	if c.App.PipeDepth <= 0 {
		errs = append(errs, fmt.Errorf("app.pipe_depth %d must be positive", c.App.PipeDepth))
	}
	return errors.Join(errs...)
}

// CameraOptions converts the camera section for vc0706.New and vc0706.Open.
func (c *Config) CameraOptions() vc0706.Options {
	return vc0706.Options{
		TTYInterface: c.Camera.TTYInterface,
		Device:       c.Camera.Device,
		Baud:         c.Camera.Baud,
		SerialNumber: c.Camera.SerialNumber,
		PollInterval: c.Camera.PollInterval,
		TimeoutScale: c.Camera.TimeoutScale,
		ChunkSize:    c.Camera.ChunkSize,
		MaxImageLen:  c.Camera.MaxImageSize,
		FlashWarmup:  c.GPIO.FlashWarmup,
	}
}

func (c *Config) CaptureOptions() capture.Options {
	return capture.Options{
		ImageDir:    c.Capture.ImageDir,
		RebootFile:  c.Capture.RebootFile,
		Interval:    c.Capture.Interval,
		RetryDelay:  c.Capture.RetryDelay,
		MaxPictures: c.Capture.MaxPictures,
	}
}

func (c *Config) AppOptions() app.Options {
	return app.Options{
		PipeDepth:      c.App.PipeDepth,
		ReceiveTimeout: c.App.ReceiveTimeout,
	}
}
