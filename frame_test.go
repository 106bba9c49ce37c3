package vc0706

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeSendCmd(t *testing.T) {
	assert.Equal(t, []byte{0x56, 0x00, 0x11, 0x00}, MakeSimpleSendCmd(SERIAL_NUM, CMD_GET_VERSION))
	assert.Equal(t, []byte{0x56, 0x01, 0x36, 0x01, 0x03}, MakeSendCmd(0x01, CMD_FBUF_CTRL, []byte{RESUME_FRAME}))
}

func TestMakeReadFbufCmd(t *testing.T) {
	cmd := MakeReadFbufCmd(0x00, 0x01020304, 0x100, CAMERADELAY)
	assert.Equal(t, []byte{
		0x56, 0x00, 0x32, 0x0C,
		0x00, 0x0A,
		0x01, 0x02, 0x03, 0x04,
		0x00, 0x00, 0x01, 0x00,
		0x00, 0x0A,
	}, cmd)
}

func TestCheckReply(t *testing.T) {
	tests := []struct {
		name   string
		reply  []byte
		reason string
	}{
		{"ok", []byte{0x76, 0x00, 0x26, 0x00, 0x00}, ""},
		{"short", []byte{0x76, 0x00}, "short reply"},
		{"not a reply", []byte{0x56, 0x00, 0x26, 0x00, 0x00}, "not a reply"},
		{"serial", []byte{0x76, 0x01, 0x26, 0x00, 0x00}, "unexpected serial number"},
		{"command", []byte{0x76, 0x00, 0x11, 0x00, 0x00}, "unexpected command"},
		{"status", []byte{0x76, 0x00, 0x26, 0x03, 0x00}, "error status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReply(0x00, CMD_SYSTEM_RESET, tt.reply)
			if tt.reason == "" {
				require.NoError(t, err)
				return
			}
			var re *ReplyError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.reason, re.Reason)
			assert.Equal(t, byte(CMD_SYSTEM_RESET), re.Cmd)
		})
	}
}

func TestReplyErrorMessage(t *testing.T) {
	err := CheckReply(0x00, CMD_GET_VERSION, []byte{0x76, 0x00, 0x11, 0x04, 0x00})
	assert.EqualError(t, err, "cmd 0x11: error status (command cannot execute now), reply 7600110400")
}

func TestDevicePath(t *testing.T) {
	assert.Equal(t, "/dev/ttyAMA0", DevicePath(0))
	assert.Equal(t, "/dev/ttyAMA1", DevicePath(1))
}

func TestParseImageSize(t *testing.T) {
	size, ok := ParseImageSize("160")
	require.True(t, ok)
	assert.Equal(t, byte(IMAGE_SIZE_SMALL), size)

	_, ok = ParseImageSize("1080")
	assert.False(t, ok)

	w, h := ImageDimensions(IMAGE_SIZE_LARGE)
	assert.Equal(t, []int{640, 480}, []int{w, h})
}

type fakeSerial struct {
	r    *io.PipeReader
	mu   sync.Mutex
	sent []byte
}

func (f *fakeSerial) Read(b []byte) (int, error) { return f.r.Read(b) }

func (f *fakeSerial) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, b...)
	return len(b), nil
}

func (f *fakeSerial) Close() error { return f.r.Close() }

func TestPumpPortBuffers(t *testing.T) {
	r, w := io.Pipe()
	dev := &fakeSerial{r: r}
	p := newPumpPort(dev)

	go w.Write([]byte{0x76, 0x00, 0x26})
	require.Eventually(t, func() bool {
		n, err := p.Buffered()
		return err == nil && n == 3
	}, time.Second, time.Millisecond)

	buf := make([]byte, 8)
	n, err := p.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x76, 0x00, 0x26}, buf[:n])

	_, err = p.Write([]byte{0x56})
	require.NoError(t, err)
	dev.mu.Lock()
	assert.Equal(t, []byte{0x56}, dev.sent)
	dev.mu.Unlock()

	require.NoError(t, p.Close())
	require.Eventually(t, func() bool {
		_, err := p.Buffered()
		return err != nil
	}, time.Second, time.Millisecond)
}

func TestHeaderNames(t *testing.T) {
	assert.Equal(t, byte(0x56), byte(COMMAND_BEGIN))
	assert.Equal(t, byte(0x76), byte(COMMAND_SUCCESS))
	assert.Equal(t, byte(0x11), byte(GEN_VERSION))
	assert.Equal(t, byte(0x26), byte(RESET))
	assert.Equal(t, []byte{0, 1, 2, 3}, []byte{STOPCURRENTFRAME, STOPNEXTFRAME, STEPFRAME, RESUMEFRAME})
	assert.Equal(t, []byte{0x00, 0x11, 0x22}, []byte{SIZE640, SIZE320, SIZE160})
}
