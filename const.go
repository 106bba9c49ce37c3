package vc0706

import "time"

const (
	PORT_FORMAT       = "/dev/ttyAMA%d"
	BAUD              = 38400
	SERIAL_NUM        = 0x00
	BUFFER_CHUNK_SIZE = uint32(256) // bytes

	// Upper bound for bytes drained by ClearBuffer or collected by GetVersion.
	CAMERABUFFSIZ = 100
	// READ_FBUF delay field, in 0.01 ms units
	CAMERADELAY = 10
	// Multiplier for every poll budget. Raise it to slow the link down.
	TO_SCALE = 1
	// Sleep between polls when no byte is waiting.
	TO_U = 200 * time.Millisecond

	// Frames longer than this are refused and the camera is asked again.
	MAX_IMAGE_LEN   = uint32(20000)
	MAX_LEN_RETRIES = 3

	FLASH_WARMUP = 50 * time.Millisecond

	HEADER_LEN = 5 // reply header and READ_FBUF trailer length
)

const (
	CMD_END                  = 0x00
	CMD_GET_VERSION          = 0x11
	CMD_SET_SERIAL_NUMBER    = 0x21
	CMD_SET_PORT             = 0x24
	CMD_SYSTEM_RESET         = 0x26
	CMD_READ_DATA            = 0x30
	CMD_WRITE_DATA           = 0x31
	CMD_READ_FBUF            = 0x32
	CMD_GET_FBUF_LEN         = 0x34
	CMD_FBUF_CTRL            = 0x36
	CMD_COMM_MOTION_CTRL     = 0x37
	CMD_COMM_MOTION_STATUS   = 0x38
	CMD_COMM_MOTION_DETECTED = 0x39
	CMD_COLOR_CTRL           = 0x3C
	CMD_COLOR_STATUS         = 0x3D
	CMD_MOTION_CTRL          = 0x42
	CMD_MOTION_STATUS        = 0x43
	CMD_TVOUT_CTRL           = 0x44
	CMD_OSD_ADD_CHAR         = 0x45
	CMD_SET_ZOOM             = 0x52
	CMD_GET_ZOOM             = 0x53
	CMD_DOWNSIZE_CTRL        = 0x54
	CMD_DOWNSIZE_STATUS      = 0x55
	CMD_SEND                 = 0x56 // COMMAND_BEGIN
	CMD_REPLY                = 0x76 // COMMAND_SUCCESS
)

// Names used by the C driver header.
const (
	COMMAND_BEGIN   = CMD_SEND
	COMMAND_SUCCESS = CMD_REPLY
	GEN_VERSION     = CMD_GET_VERSION
	RESET           = CMD_SYSTEM_RESET

	STOPCURRENTFRAME = STOP_CURRENT_FRAME
	STOPNEXTFRAME    = STOP_NEXT_FRAME
	STEPFRAME        = STEP_FRAME
	RESUMEFRAME      = RESUME_FRAME

	SIZE640 = IMAGE_SIZE_LARGE
	SIZE320 = IMAGE_SIZE_MEDIUM
	SIZE160 = IMAGE_SIZE_SMALL
)

// FBUF_CTRL arguments
const (
	STOP_CURRENT_FRAME byte = 0x00
	STOP_NEXT_FRAME    byte = 0x01
	STEP_FRAME         byte = 0x02
	RESUME_FRAME       byte = 0x03
)

const (
	// Status:
	// 0: successful; 1: doesn't receive the cmd; 2: data length error;
	// 3:data format error; 4: cmd cannot exec now; 5: cmd received but
	// exec wrong
	STATUS_SUCCESS byte = iota
	STATUS_NOT_RECEIVED
	STATUS_DATA_LEN_ERROR
	STATUS_DATA_FMT_ERROR
	STATUS_CMD_NOT_EXEC
	STATUS_CMD_EXEC_ERROR
)

const (
	// data transfer mode
	MCU_MODE = 0x0A
	DMA_MODE = 0x0F
)

const (
	IMAGE_SIZE_LARGE  = 0x00 // 640x480
	IMAGE_SIZE_MEDIUM = 0x11 // 320x240
	IMAGE_SIZE_SMALL  = 0x22 // 160x120
)

const (
	COLOR_CTRL_MODE_GPIO byte = iota
	COLOR_CTRL_MODE_UART
)

const (
	COLOR_SHOW_MODE_AUTO byte = iota
	COLOR_SHOW_MODE_COLOR
	COLOR_SHOW_MODE_BLACK
)

// READ_DATA / WRITE_DATA device types
const (
	DEVICE_TYPE_CHIP_REGISTER byte = iota + 1
	DEVICE_TYPE_SENSOR_REGISTER
	DEVICE_TYPE_CCIR656_REGISTER
	DEVICE_TYPE_I2C_EEPROM
	DEVICE_TYPE_SPI_EEPROM
	DEVICE_TYPE_SPI_FLASH
)

// Registers reached through READ_DATA / WRITE_DATA.
const (
	REG_IMAGE_SIZE  = uint16(0x0019) // I2C EEPROM
	REG_COMPRESSION = uint16(0x1204) // chip register
)
