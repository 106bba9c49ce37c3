package vc0706

import "encoding/binary"

var EMPTY_DATA = []byte{}

// Communication protocol for receive:
// protocol sign(1B) + serial number(1B) + command(1B) + data length(1B) +
// data(0~16B)
func MakeSendCmd(sn, c byte, d []byte) (cmd []byte) {
	cmd = []byte{CMD_SEND, sn, c, byte(len(d))}
	cmd = append(cmd, d...)
	return
}

func MakeSimpleSendCmd(sn, c byte) (cmd []byte) {
	cmd = MakeSendCmd(sn, c, EMPTY_DATA)
	return
}

// Communication protocol for return:
// protocol sign(1B) + serial number (1B) + cmd (1B) + status(1B) +
// data length(1B) + Data(0~16B)
func MakeReplyCmd(sn, c, s byte, d []byte) (cmd []byte) {
	cmd = []byte{CMD_REPLY, sn, c, s, byte(len(d))}
	cmd = append(cmd, d...)
	return
}

func MakeSimpleReplyCmd(sn, c byte) (cmd []byte) {
	cmd = MakeReplyCmd(sn, c, STATUS_SUCCESS, EMPTY_DATA)
	return
}

// CheckReply makes sure the command executed successfully.
// Only the reply sign, serial number, command and status bytes are checked.
func CheckReply(sn, c byte, r []byte) error {
	switch {
	case len(r) < 4:
		return &ReplyError{Cmd: c, Reply: r, Reason: "short reply"}
	case r[0] != CMD_REPLY:
		return &ReplyError{Cmd: c, Reply: r, Reason: "not a reply"}
	case r[1] != sn:
		return &ReplyError{Cmd: c, Reply: r, Reason: "unexpected serial number"}
	case r[2] != c:
		return &ReplyError{Cmd: c, Reply: r, Reason: "unexpected command"}
	case r[3] != STATUS_SUCCESS:
		return &ReplyError{Cmd: c, Reply: r, Status: r[3], Reason: "error status"}
	}
	return nil
}

// Command format: 0x56 + serial number + 0x32 + 0x0C + FBUF type (1 byte)
// + control mode(1 byte) + starting address(4 bytes) + data-length(4 bytes)
// + delay(2 bytes)
func MakeReadFbufCmd(sn byte, start, length uint32, delay uint16) []byte {
	data := make([]byte, 12)
	data[0] = STOP_CURRENT_FRAME
	data[1] = MCU_MODE
	binary.BigEndian.PutUint32(data[2:], start)
	binary.BigEndian.PutUint32(data[6:], length)
	binary.BigEndian.PutUint16(data[10:], delay)
	return MakeSendCmd(sn, CMD_READ_FBUF, data)
}
