package vc0706

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	ErrNotReady      = errors.New("camera not ready")
	ErrTimeout       = errors.New("camera did not answer in time")
	ErrShortRead     = errors.New("frame buffer read ended early")
	ErrImageTooLarge = errors.New("image too large")
)

// ReplyError reports a reply that does not acknowledge Cmd.
type ReplyError struct {
	Cmd    byte
	Status byte
	Reply  []byte
	Reason string
}

func (e *ReplyError) Error() string {
	msg := fmt.Sprintf("cmd 0x%02x: %s", e.Cmd, e.Reason)
	if e.Status != STATUS_SUCCESS {
		msg += fmt.Sprintf(" (%s)", StatusText(e.Status))
	}
	if len(e.Reply) > 0 {
		n := len(e.Reply)
		if n > 8 {
			n = 8
		}
		msg += ", reply " + hex.EncodeToString(e.Reply[:n])
	}
	return msg
}

func StatusText(s byte) string {
	switch s {
	case STATUS_SUCCESS:
		return "success"
	case STATUS_NOT_RECEIVED:
		return "command not received"
	case STATUS_DATA_LEN_ERROR:
		return "data length error"
	case STATUS_DATA_FMT_ERROR:
		return "data format error"
	case STATUS_CMD_NOT_EXEC:
		return "command cannot execute now"
	case STATUS_CMD_EXEC_ERROR:
		return "command executed wrong"
	}
	return fmt.Sprintf("status 0x%02x", s)
}
