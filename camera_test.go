package vc0706_test

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vc0706 "github.com/CACTUS-Mission/cFS-VC0706"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/camsim"
)

func newCamera(t *testing.T, sim *camsim.Sim, opts vc0706.Options) *vc0706.Camera {
	t.Helper()
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	return vc0706.New(sim, opts)
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestResetDrainsBanner(t *testing.T) {
	sim := camsim.New()
	cam := newCamera(t, sim, vc0706.Options{})

	require.NoError(t, cam.Reset(context.Background()))
	n, err := sim.Buffered()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetVersion(t *testing.T) {
	sim := camsim.New()
	cam := newCamera(t, sim, vc0706.Options{})

	v, err := cam.GetVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, camsim.DefaultVersion, v)
	assert.Equal(t, len(camsim.DefaultVersion), cam.BufferLen())
}

func TestTakePictureStoresFrame(t *testing.T) {
	img := pattern(1000)
	sim := camsim.New(camsim.WithImage(img))
	cam := newCamera(t, sim, vc0706.Options{})
	path := filepath.Join(t.TempDir(), "000_0_0001.jpg")

	got, err := cam.TakePicture(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, path, cam.ImageName())
	assert.Equal(t, uint32(1000), cam.FramePointer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, img, data)

	assert.False(t, sim.Frozen(), "video should be resumed")
	assert.Equal(t, 4, sim.Count(vc0706.CMD_READ_FBUF))
}

func TestCaptureChunkSizes(t *testing.T) {
	img := pattern(777)
	for _, chunk := range []uint32{1, 64, 256, 777, 4096} {
		sim := camsim.New(camsim.WithImage(img))
		cam := newCamera(t, sim, vc0706.Options{ChunkSize: chunk})

		got, err := cam.Capture(context.Background())
		require.NoError(t, err, "chunk %d", chunk)
		assert.True(t, bytes.Equal(img, got), "chunk %d", chunk)
	}
}

func TestTakePictureRenderedJPEG(t *testing.T) {
	ctx := context.Background()
	sim := camsim.New()
	cam := newCamera(t, sim, vc0706.Options{})

	require.NoError(t, cam.SetImageSize(ctx, vc0706.IMAGE_SIZE_SMALL))
	size, err := cam.ImageSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(vc0706.IMAGE_SIZE_SMALL), size)

	path := filepath.Join(t.TempDir(), "snap.jpg")
	_, err = cam.TakePicture(ctx, path)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 160, cfg.Width)
	assert.Equal(t, 120, cfg.Height)
}

func TestCaptureTooLarge(t *testing.T) {
	sim := camsim.New(camsim.WithImage(pattern(300)))
	cam := newCamera(t, sim, vc0706.Options{MaxImageLen: 100})

	_, err := cam.TakePicture(context.Background(), filepath.Join(t.TempDir(), "x.jpg"))
	require.ErrorIs(t, err, vc0706.ErrImageTooLarge)
	assert.Equal(t, vc0706.MAX_LEN_RETRIES, sim.Count(vc0706.CMD_GET_FBUF_LEN))
	assert.Zero(t, sim.Count(vc0706.CMD_READ_FBUF))
	assert.False(t, sim.Frozen())
}

func TestErrorStatus(t *testing.T) {
	sim := camsim.New()
	cam := newCamera(t, sim, vc0706.Options{})
	sim.Fail(vc0706.CMD_GET_VERSION, vc0706.STATUS_CMD_NOT_EXEC)

	_, err := cam.GetVersion(context.Background())
	var re *vc0706.ReplyError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, vc0706.STATUS_CMD_NOT_EXEC, re.Status)

	_, err = cam.GetVersion(context.Background())
	assert.NoError(t, err)
}

func TestTimeoutWhenMuted(t *testing.T) {
	sim := camsim.New()
	sim.Mute(true)
	cam := newCamera(t, sim, vc0706.Options{})

	_, err := cam.GetVersion(context.Background())
	assert.ErrorIs(t, err, vc0706.ErrTimeout)
	assert.ErrorIs(t, cam.Reset(context.Background()), vc0706.ErrTimeout)
}

func TestWrongSerialNumber(t *testing.T) {
	sim := camsim.New(camsim.WithSerialNumber(0x01))
	cam := newCamera(t, sim, vc0706.Options{})

	_, err := cam.GetVersion(context.Background())
	var re *vc0706.ReplyError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "unexpected serial number", re.Reason)

	cam = newCamera(t, sim, vc0706.Options{SerialNumber: 0x01})
	cam.ClearBuffer(context.Background())
	_, err = cam.GetVersion(context.Background())
	assert.NoError(t, err)
}

func TestReadBufferRetriesChunk(t *testing.T) {
	img := pattern(600)
	sim := camsim.New(camsim.WithImage(img))
	cam := newCamera(t, sim, vc0706.Options{})
	sim.Fail(vc0706.CMD_READ_FBUF, vc0706.STATUS_CMD_EXEC_ERROR)

	got, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, img, got)
	assert.Equal(t, 4, sim.Count(vc0706.CMD_READ_FBUF))
}

type recordingFlash struct {
	calls []string
}

func (f *recordingFlash) On() error  { f.calls = append(f.calls, "on"); return nil }
func (f *recordingFlash) Off() error { f.calls = append(f.calls, "off"); return nil }

func TestFlashDuringFreeze(t *testing.T) {
	flash := &recordingFlash{}
	sim := camsim.New(camsim.WithImage(pattern(10)))
	cam := newCamera(t, sim, vc0706.Options{Flash: flash, FlashWarmup: time.Millisecond})

	_, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"on", "off"}, flash.calls)
}

func TestMotionDetect(t *testing.T) {
	ctx := context.Background()
	sim := camsim.New()
	cam := newCamera(t, sim, vc0706.Options{})

	require.NoError(t, cam.SetMotionDetect(ctx, true))
	assert.True(t, sim.MotionArmed())
	on, err := cam.MotionDetectEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	seen, err := cam.MotionDetected(ctx)
	require.NoError(t, err)
	assert.False(t, seen)

	require.True(t, sim.TriggerMotion())
	seen, err = cam.MotionDetected(ctx)
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, cam.SetMotionDetect(ctx, false))
	assert.False(t, cam.MotionEnabled())
	assert.False(t, sim.TriggerMotion())
}

func TestRegisters(t *testing.T) {
	ctx := context.Background()
	sim := camsim.New()
	cam := newCamera(t, sim, vc0706.Options{})

	require.NoError(t, cam.SetCompression(ctx, 0x80))
	assert.Equal(t, byte(0x80), sim.Register(vc0706.DEVICE_TYPE_CHIP_REGISTER, vc0706.REG_COMPRESSION))
	rate, err := cam.Compression(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), rate)

	require.NoError(t, cam.SetDownsize(ctx, 0x11))
	ds, err := cam.Downsize(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), ds)

	require.NoError(t, cam.SetColorMode(ctx, vc0706.COLOR_CTRL_MODE_UART, vc0706.COLOR_SHOW_MODE_BLACK))
}

func TestContextCancelled(t *testing.T) {
	sim := camsim.New()
	sim.Mute(true)
	cam := vc0706.New(sim, vc0706.Options{PollInterval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := cam.GetVersion(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedCameraNotReady(t *testing.T) {
	cam := newCamera(t, camsim.New(), vc0706.Options{})
	require.True(t, cam.Ready())
	require.NoError(t, cam.Close())
	assert.False(t, cam.Ready())
	assert.ErrorIs(t, cam.SendCommand(vc0706.CMD_GET_VERSION, nil), vc0706.ErrNotReady)
}

// tamperPort rewrites the simulator's answer to every READ_FBUF command.
type tamperPort struct {
	*camsim.Sim
	tamper func(reply []byte) []byte
	out    []byte
}

func (p *tamperPort) Write(b []byte) (int, error) {
	n, err := p.Sim.Write(b)
	if err != nil || len(b) < 3 || b[2] != vc0706.CMD_READ_FBUF {
		return n, err
	}
	pending, err := p.Sim.Buffered()
	if err != nil {
		return n, err
	}
	reply := make([]byte, pending)
	m, err := p.Sim.Read(reply)
	p.out = append(p.out, p.tamper(reply[:m])...)
	return n, err
}

func (p *tamperPort) Buffered() (int, error) {
	n, err := p.Sim.Buffered()
	return n + len(p.out), err
}

func (p *tamperPort) Read(b []byte) (int, error) {
	if len(p.out) > 0 {
		n := copy(b, p.out)
		p.out = p.out[n:]
		return n, nil
	}
	return p.Sim.Read(b)
}

func TestShortChunkIsAnError(t *testing.T) {
	sim := camsim.New(camsim.WithImage(pattern(20)))
	port := &tamperPort{Sim: sim, tamper: func(r []byte) []byte {
		// header and 17 of the 20 data bytes, no trailer
		return r[:vc0706.HEADER_LEN+17]
	}}
	cam := vc0706.New(port, vc0706.Options{PollInterval: time.Millisecond})
	path := filepath.Join(t.TempDir(), "short.jpg")

	_, err := cam.TakePicture(context.Background(), path)
	require.ErrorIs(t, err, vc0706.ErrShortRead)
	assert.Contains(t, err.Error(), "got 17 of 20 bytes at offset 0")
	assert.NoFileExists(t, path)
	assert.False(t, sim.Frozen(), "video should be resumed")
}

func TestBadTrailerIsTolerated(t *testing.T) {
	img := pattern(600)
	sim := camsim.New(camsim.WithImage(img))
	port := &tamperPort{Sim: sim, tamper: func(r []byte) []byte {
		out := append([]byte{}, r...)
		copy(out[len(out)-vc0706.HEADER_LEN:], []byte{0x76, 0x00, 0x32, 0x03, 0x00})
		return out
	}}
	cam := vc0706.New(port, vc0706.Options{PollInterval: time.Millisecond})
	path := filepath.Join(t.TempDir(), "trailer.jpg")

	_, err := cam.TakePicture(context.Background(), path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, img, data)
	assert.Equal(t, 3, sim.Count(vc0706.CMD_READ_FBUF))
}

func TestSaveFailureKeepsFrameFrozen(t *testing.T) {
	sim := camsim.New(camsim.WithImage(pattern(100)))
	cam := newCamera(t, sim, vc0706.Options{})
	path := filepath.Join(t.TempDir(), "missing", "000_0_0001.jpg")

	_, err := cam.TakePicture(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image file could not be created")
	assert.True(t, sim.Frozen())
	assert.Empty(t, cam.ImageName())
}
