package vc0706

import (
	"context"
	"fmt"
)

var IMAGE_SIZES = map[string]byte{
	"l":   IMAGE_SIZE_LARGE,
	"m":   IMAGE_SIZE_MEDIUM,
	"s":   IMAGE_SIZE_SMALL,
	"640": IMAGE_SIZE_LARGE,
	"320": IMAGE_SIZE_MEDIUM,
	"160": IMAGE_SIZE_SMALL,
}

// ParseImageSize accepts l/m/s or 640/320/160.
func ParseImageSize(sz string) (byte, bool) {
	size, ok := IMAGE_SIZES[sz]
	return size, ok
}

// ImageDimensions maps a size code to pixels.
func ImageDimensions(size byte) (w, h int) {
	switch size {
	case IMAGE_SIZE_LARGE:
		return 640, 480
	case IMAGE_SIZE_SMALL:
		return 160, 120
	default:
		return 320, 240
	}
}

// run sends a command and checks its bare 5 byte reply.
func (c *Camera) run(ctx context.Context, cmd byte, args []byte) error {
	if err := c.SendCommand(cmd, args); err != nil {
		return err
	}
	_, err := c.CheckReply(ctx, cmd, HEADER_LEN)
	return err
}

// runByte sends a command whose reply carries a single data byte.
func (c *Camera) runByte(ctx context.Context, cmd byte, args []byte) (byte, error) {
	if err := c.SendCommand(cmd, args); err != nil {
		return 0, err
	}
	if _, err := c.CheckReply(ctx, cmd, HEADER_LEN); err != nil {
		return 0, err
	}
	b, err := c.read(ctx, 1, 3*c.opts.TimeoutScale)
	if err != nil {
		return 0, err
	}
	if len(b) != 1 {
		return 0, fmt.Errorf("cmd 0x%02x: missing data byte: %w", cmd, ErrTimeout)
	}
	return b[0], nil
}

// Command format: 0x56 + serial number + 0x31 + 0x05 + device type +
// 0x01 + register address (2 bytes) + value
// Return format: 0x76 + serial number + 0x31 + 0x00 + 0x00
func (c *Camera) writeData(ctx context.Context, device byte, addr uint16, v byte) error {
	data := []byte{device, 0x01, byte(addr >> 8), byte(addr), v}
	return c.run(ctx, CMD_WRITE_DATA, data)
}

func (c *Camera) readData(ctx context.Context, device byte, addr uint16) (byte, error) {
	data := []byte{device, 0x01, byte(addr >> 8), byte(addr)}
	return c.runByte(ctx, CMD_READ_DATA, data)
}

// SetImageSize stores the size code in the module's EEPROM. The module
// applies it after a reset.
func (c *Camera) SetImageSize(ctx context.Context, size byte) error {
	if err := c.writeData(ctx, DEVICE_TYPE_I2C_EEPROM, REG_IMAGE_SIZE, size); err != nil {
		return fmt.Errorf("set image size: %w", err)
	}
	return nil
}

func (c *Camera) ImageSize(ctx context.Context) (byte, error) {
	size, err := c.readData(ctx, DEVICE_TYPE_I2C_EEPROM, REG_IMAGE_SIZE)
	if err != nil {
		return 0, fmt.Errorf("image size: %w", err)
	}
	return size, nil
}

func (c *Camera) SetCompression(ctx context.Context, rate byte) error {
	if err := c.writeData(ctx, DEVICE_TYPE_CHIP_REGISTER, REG_COMPRESSION, rate); err != nil {
		return fmt.Errorf("set compression: %w", err)
	}
	return nil
}

func (c *Camera) Compression(ctx context.Context) (byte, error) {
	return c.readData(ctx, DEVICE_TYPE_CHIP_REGISTER, REG_COMPRESSION)
}

func (c *Camera) SetColorMode(ctx context.Context, ctrlMode, showMode byte) error {
	return c.run(ctx, CMD_COLOR_CTRL, []byte{ctrlMode, showMode})
}

// SetDownsize scales the next frames down: 0x00 none, 0x11 1/2, 0x22 1/4.
func (c *Camera) SetDownsize(ctx context.Context, code byte) error {
	return c.run(ctx, CMD_DOWNSIZE_CTRL, []byte{code})
}

func (c *Camera) Downsize(ctx context.Context) (byte, error) {
	return c.runByte(ctx, CMD_DOWNSIZE_STATUS, []byte{0x00})
}
