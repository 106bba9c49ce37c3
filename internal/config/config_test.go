package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vc0706 "github.com/CACTUS-Mission/cFS-VC0706"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	opts := cfg.CameraOptions()
	assert.Equal(t, vc0706.BAUD, opts.Baud)
	assert.Equal(t, vc0706.TO_U, opts.PollInterval)
	assert.Equal(t, "/ram/images", cfg.CaptureOptions().ImageDir)
	assert.Equal(t, []int{36, 35, 34, 33, 32, 31}, cfg.GPIO.PhotoCountPins)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
camera:
  tty_interface: 1
  poll_interval: 20ms
  image_size: s
  compression: 128
  simulate: true
capture:
  image_dir: /tmp/images
  interval: 2s
  max_pictures: 10
gpio:
  enabled: true
  photo_count_pins: [5, 6, 7]
journal:
  path: /tmp/vc0706.cbor
`))
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Camera.TTYInterface)
	assert.Equal(t, 20*time.Millisecond, cfg.Camera.PollInterval)
	assert.Equal(t, "s", cfg.Camera.ImageSize)
	require.NotNil(t, cfg.Camera.Compression)
	assert.Equal(t, uint8(128), *cfg.Camera.Compression)
	assert.True(t, cfg.Camera.Simulate)
	assert.Equal(t, 2*time.Second, cfg.Capture.Interval)
	assert.Equal(t, 10, cfg.CaptureOptions().MaxPictures)
	assert.Equal(t, []int{5, 6, 7}, cfg.GPIO.PhotoCountPins)
	assert.Equal(t, "/tmp/vc0706.cbor", cfg.Journal.Path)

	// untouched fields keep their defaults
	assert.Equal(t, vc0706.BAUD, cfg.Camera.Baud)
	assert.Equal(t, 15, cfg.GPIO.LEDPin)
	assert.Equal(t, "gpiochip0", cfg.GPIO.Chip)
	assert.Equal(t, "/ram/logs/reboot.txt", cfg.Capture.RebootFile)
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "camera: [",
		"image size":    "camera:\n  image_size: huge\n",
		"chunk size":    "camera:\n  chunk_size: 70000\n",
		"no image dir":  "capture:\n  image_dir: \"\"\n",
		"shared pin":    "gpio:\n  enabled: true\n  led_pin: 31\n",
		"negative pics": "capture:\n  max_pictures: -1\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vc0706.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app:\n  pipe_depth: 4\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.AppOptions().PipeDepth)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, le.Error(), "missing.yaml: failed to read file")
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, os.WriteFile(path, []byte("gpio:\n  enabled: true\n  led_pin: 36\n"), 0644))
	_, err = Load(path)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, path, le.File)
}
