// Command vc0706d runs the camera application: it takes pictures on the
// VC0706, answers ground commands and reports housekeeping.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	vc0706 "github.com/CACTUS-Mission/cFS-VC0706"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/app"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/camsim"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/capture"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/config"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/events"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/gpio"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/journal"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	simulate    = flag.Bool("simulate", false, "use the built-in camera simulator")
	interactive = flag.Bool("console", false, "read ground commands from an interactive prompt")
	imageDir    = flag.String("images", "", "override the image directory")
	maxPictures = flag.Int("n", 0, "stop after n pictures, 0 uses the configured limit")
)

func main() {
	flag.Parse()
	defer glog.Flush()

	if err := run(); err != nil {
		glog.Error(err)
		glog.Flush()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *simulate {
		cfg.Camera.Simulate = true
	}
	if *imageDir != "" {
		cfg.Capture.ImageDir = *imageDir
	}
	if *maxPictures > 0 {
		cfg.Capture.MaxPictures = *maxPictures
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hw, err := openGPIO(cfg)
	if err != nil {
		return err
	}
	defer hw.Close()

	camOpts := cfg.CameraOptions()
	if hw.led != nil {
		camOpts.Flash = hw.led
	}
	cam, err := openCamera(cfg, camOpts)
	if err != nil {
		return err
	}
	defer cam.Close()
	setupCamera(ctx, cam, cfg)

	bus := swbus.New()
	evs := events.New(app.Name, app.EventFilters, events.GlogSink{})
	a := app.New(bus, evs, cfg.AppOptions())

	task := capture.New(cam, bus, evs, cfg.CaptureOptions())
	task.SetHousekeeping(a)
	if hw.count != nil {
		task.SetPhotoCounter(hw.count)
	}
	a.SetChild(task)

	var wg sync.WaitGroup
	if cfg.Journal.Path != "" {
		w, err := journal.Create(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer w.Close()
		rec := journal.NewRecorder(bus, w, cfg.App.PipeDepth)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rec.Run(ctx); err != nil {
				glog.Warningf("journal: %v", err)
			}
		}()
	}
	if cfg.App.HKInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduleHousekeeping(ctx, bus, cfg.App.HKInterval)
		}()
	}
	if *interactive {
		c, err := newConsole(bus, cfg.App.PipeDepth)
		if err != nil {
			return err
		}
		go c.Run(ctx, stop)
	}

	// With a picture limit the daemon exits once the task is done.
	if cfg.Capture.MaxPictures > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()
		a.SetChild(childFunc(func(ctx context.Context) error {
			defer cancel()
			return task.Run(ctx)
		}))
	}

	err = a.Run(ctx)
	stop()
	wg.Wait()
	glog.Infof("%d pictures stored, %d failed", task.Stored(), task.Failed())
	return err
}

type childFunc func(ctx context.Context) error

func (f childFunc) Run(ctx context.Context) error { return f(ctx) }

func openCamera(cfg *config.Config, opts vc0706.Options) (*vc0706.Camera, error) {
	if cfg.Camera.Simulate {
		glog.Info("Using simulated camera")
		return vc0706.New(camsim.New(camsim.WithSerialNumber(opts.SerialNumber)), opts), nil
	}
	return vc0706.Open(opts)
}

// setupCamera resets the module and applies the configured image settings.
// Failures are logged; the capture task keeps retrying the camera anyway.
func setupCamera(ctx context.Context, cam *vc0706.Camera, cfg *config.Config) {
	if err := cam.Reset(ctx); err != nil {
		glog.Warningf("Camera %d reset: %v", cam.Interface(), err)
		return
	}
	if cfg.Camera.ImageSize != "" {
		size, _ := vc0706.ParseImageSize(cfg.Camera.ImageSize)
		if err := cam.SetImageSize(ctx, size); err != nil {
			glog.Warningf("Camera %d image size: %v", cam.Interface(), err)
		}
	}
	if c := cfg.Camera.Compression; c != nil {
		if err := cam.SetCompression(ctx, *c); err != nil {
			glog.Warningf("Camera %d compression: %v", cam.Interface(), err)
		}
	}
	if v, err := cam.GetVersion(ctx); err == nil {
		glog.Infof("Camera %d version %q", cam.Interface(), v)
	}
}

// scheduleHousekeeping plays the scheduler's part: it asks the application
// for housekeeping telemetry every interval.
func scheduleHousekeeping(ctx context.Context, bus *swbus.Bus, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			bus.Send(msg.NoArgsCmd(msg.SendHKMID, 0))
		}
	}
}

type hardware struct {
	led   *gpio.LED
	count *gpio.ParallelBus
	pins  []io.Closer
}

func openGPIO(cfg *config.Config) (*hardware, error) {
	hw := &hardware{}
	if !cfg.GPIO.Enabled {
		return hw, nil
	}
	pin, err := gpio.OpenOutput(cfg.GPIO.Chip, cfg.GPIO.LEDPin)
	if err != nil {
		return nil, fmt.Errorf("led: %w", err)
	}
	hw.pins = append(hw.pins, pin)
	if hw.led, err = gpio.NewLED(pin); err != nil {
		hw.Close()
		return nil, fmt.Errorf("led: %w", err)
	}

	count, pins, err := gpio.OpenParallelBus(cfg.GPIO.Chip, cfg.GPIO.PhotoCountPins)
	for _, p := range pins {
		hw.pins = append(hw.pins, p)
	}
	if err != nil {
		hw.Close()
		return nil, fmt.Errorf("photo count: %w", err)
	}
	hw.count = count
	return hw, nil
}

func (hw *hardware) Close() error {
	if hw.led != nil {
		hw.led.Off()
	}
	for _, p := range hw.pins {
		p.Close()
	}
	return nil
}
