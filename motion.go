package vc0706

import (
	"context"
	"fmt"
)

// SetMotionDetect arms or disarms the module's motion alarm over UART.
func (c *Camera) SetMotionDetect(ctx context.Context, on bool) error {
	if err := c.run(ctx, CMD_MOTION_CTRL, []byte{0x01, 0x01, 0x00, 0x00}); err != nil {
		return fmt.Errorf("motion control: %w", err)
	}
	var flag byte
	if on {
		flag = 0x01
	}
	if err := c.run(ctx, CMD_COMM_MOTION_CTRL, []byte{flag}); err != nil {
		return fmt.Errorf("motion detect: %w", err)
	}
	c.ClearBuffer(ctx)
	c.motion = on
	return nil
}

// MotionDetectEnabled asks the module whether the motion alarm is armed.
func (c *Camera) MotionDetectEnabled(ctx context.Context) (bool, error) {
	flag, err := c.runByte(ctx, CMD_COMM_MOTION_STATUS, EMPTY_DATA)
	if err != nil {
		return false, fmt.Errorf("motion status: %w", err)
	}
	c.motion = flag == 0x01
	return c.motion, nil
}

// MotionDetected looks for an unsolicited motion alarm:
// 0x76 + serial number + 0x39 + 0x00 + 0x00
func (c *Camera) MotionDetected(ctx context.Context) (bool, error) {
	r, err := c.read(ctx, HEADER_LEN, 1*c.opts.TimeoutScale)
	if err != nil {
		return false, err
	}
	if len(r) == 0 {
		return false, nil
	}
	if len(r) < HEADER_LEN {
		return false, fmt.Errorf("motion alarm: got %d of %d bytes: %w", len(r), HEADER_LEN, ErrTimeout)
	}
	if err := CheckReply(c.serialNum, CMD_COMM_MOTION_DETECTED, r); err != nil {
		return false, err
	}
	return true, nil
}
