package journal

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CACTUS-Mission/cFS-VC0706/internal/ccsds"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/msg"
	"github.com/CACTUS-Mission/cFS-VC0706/internal/swbus"
)

var epoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func readAll(t *testing.T, path string, f Filter) []Entry {
	t.Helper()
	r, err := Open(path, f)
	require.NoError(t, err)
	defer r.Close()

	var out []Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, e)
	}
}

func TestNewEntry(t *testing.T) {
	img := msg.ImageCmd{Code: msg.Image1CC, Name: "004_1_0007.jpg"}.Packet()
	e := NewEntry(img, epoch)
	assert.Equal(t, KindImage, e.Kind)
	assert.Equal(t, msg.Image1CC, e.Code)
	assert.Equal(t, "004_1_0007.jpg", e.Name)
	assert.Equal(t, uint16(msg.ImageCmdMID), e.MsgID)
	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)

	hk := msg.HKTlm{CommandCount: 3, Filename: "004_1_0006.jpg"}.Packet(epoch)
	e = NewEntry(hk, epoch)
	assert.Equal(t, KindHousekeeping, e.Kind)
	assert.Equal(t, "004_1_0006.jpg", e.Name)
	assert.Equal(t, []byte(hk), e.Packet)

	e = NewEntry(msg.NoArgsCmd(msg.CmdMID, msg.ResetCountersCC), epoch)
	assert.Equal(t, KindOther, e.Kind)
	assert.Equal(t, msg.ResetCountersCC, e.Code)
}

func TestEntryString(t *testing.T) {
	e := Entry{ID: "id", Time: epoch, MsgID: 0x188A, Kind: KindImage, Code: 3, Name: "000_0_0001.jpg"}
	assert.Equal(t, "2026-03-14T09:26:53Z id IMAGE 0x188A cc=3 000_0_0001.jpg", e.String())
}

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vc0706.cbor")
	w, err := Create(path)
	require.NoError(t, err)

	first := NewEntry(msg.HKTlm{Filename: "a.jpg"}.Packet(epoch), epoch)
	second := NewEntry(msg.ImageCmd{Code: msg.Image0CC, Name: "b.jpg"}.Packet(), epoch.Add(time.Second))
	require.NoError(t, w.Write(first))
	require.NoError(t, w.Write(second))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Write(first), ErrClosed)

	got := readAll(t, path, Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, first.ID, got[0].ID)
	assert.True(t, first.Time.Equal(got[0].Time))
	assert.Equal(t, first.Packet, got[0].Packet)
	assert.Equal(t, "b.jpg", got[1].Name)

	// reopening appends
	w, err = Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(NewEntry(msg.HKTlm{}.Packet(epoch), epoch.Add(2*time.Second))))
	require.NoError(t, w.Close())
	assert.Len(t, readAll(t, path, Filter{}), 3)

	image := KindImage
	assert.Len(t, readAll(t, path, Filter{Kind: &image}), 1)
	assert.Len(t, readAll(t, path, Filter{MsgID: uint16(msg.HKTlmMID)}), 2)
	assert.Len(t, readAll(t, path, Filter{Since: epoch.Add(time.Second)}), 2)
	assert.Len(t, readAll(t, path, Filter{ID: second.ID}), 1)
}

func TestRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vc0706.cbor")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	bus := swbus.New()
	bus.SetClock(func() time.Time { return epoch })
	rec := NewRecorder(bus, w, 8)
	require.Equal(t, 1, bus.Subscribers(msg.ImageCmdMID))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Run(ctx) }()

	bus.Send(msg.ImageCmd{Code: msg.Image0CC, Name: "000_0_0001.jpg"}.Packet())
	bus.Send(msg.HKTlm{Filename: "000_0_0001.jpg"}.Packet(epoch))
	bus.Send(msg.NoArgsCmd(msg.CmdMID, msg.NoopCC)) // not subscribed
	cancel()
	require.NoError(t, <-done)
	assert.Zero(t, bus.Subscribers(msg.ImageCmdMID))

	got := readAll(t, path, Filter{})
	require.Len(t, got, 2)
	assert.Equal(t, KindImage, got[0].Kind)
	assert.Equal(t, KindHousekeeping, got[1].Kind)
	assert.True(t, epoch.Equal(got[1].Time))
}

func TestRecorderExtraIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vc0706.cbor")
	w, err := Create(path)
	require.NoError(t, err)
	defer w.Close()

	bus := swbus.New()
	rec := NewRecorder(bus, w, 8, msg.CmdMID)
	bus.Send(msg.NoArgsCmd(msg.CmdMID, msg.NoopCC))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Run(ctx))

	got := readAll(t, path, Filter{})
	require.Len(t, got, 1)
	assert.Equal(t, msg.CmdMID, ccsds.MsgID(got[0].MsgID))
}
