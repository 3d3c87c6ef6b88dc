// pkg/driver/status.go
package driver

import "fmt"

// StatusSize is the fixed length of a status frame.
const StatusSize = 32

// Status frame constants
const (
	statusPrintHeadMark = 0x80
	statusClassMarker   = 'B'
	statusReserved14    = 0x3f
)

// MediaType is the media type code reported in, and requested through,
// status and print information frames.
type MediaType uint8

const (
	MediaNone            MediaType = 0x00
	MediaContinuous      MediaType = 0x0a
	MediaDieCutLabels    MediaType = 0x0b
	MediaContinuousAlt   MediaType = 0x4a
	MediaDieCutLabelsAlt MediaType = 0x4b
)

// StatusType identifies why the device sent a status frame.
type StatusType uint8

const (
	StatusReply         StatusType = 0x00
	StatusPrintingDone  StatusType = 0x01
	StatusErrorOccurred StatusType = 0x02
	StatusTurnedOff     StatusType = 0x04
	StatusNotification  StatusType = 0x05
	StatusPhaseChange   StatusType = 0x06
)

// PhaseType is the device's current phase.
type PhaseType uint8

const (
	PhaseReceiving PhaseType = 0x00
	PhasePrinting  PhaseType = 0x01
)

// Notification is the notification code carried by a status frame.
type Notification uint8

const (
	NotificationNone           Notification = 0x00
	NotificationCoolingStarted Notification = 0x03
	NotificationCoolingDone    Notification = 0x04
)

// ErrorBits combines the two error bytes: err1 in the low byte, err2 in the high byte.
type ErrorBits uint16

const (
	ErrorBitNoMedia ErrorBits = 1 << iota
	ErrorBitEndOfMedia
	ErrorBitCutterJam
	_ // 0x08 is not assigned
	ErrorBitPrinterInUse
	ErrorBitPrinterTurnedOff
	ErrorBitHighVoltageAdapter
	ErrorBitFanMotor
	ErrorBitReplaceMedia
	ErrorBitExpansionBufferFull
	ErrorBitCommunication
	ErrorBitCommunicationBufferFull
	ErrorBitCoverOpen
	ErrorBitCancelKey
	ErrorBitMediaCannotBeFed
	ErrorBitSystem
)

// Status is a decoded status frame.
type Status struct {
	PrintHeadMark uint8        `json:"print_head_mark"`
	Size          uint8        `json:"size"`
	ModelClass    uint8        `json:"model_class"`
	ModelCode     uint8        `json:"model_code"`
	Error1        uint8        `json:"error_1"`
	Error2        uint8        `json:"error_2"`
	MediaWidth    uint8        `json:"media_width_mm"`
	MediaType     MediaType    `json:"media_type"`
	Mode          Mode         `json:"mode"`
	MediaLength   uint8        `json:"media_length_mm"`
	Type          StatusType   `json:"status_type"`
	Phase         PhaseType    `json:"phase_type"`
	PhaseNumber   uint16       `json:"phase_number"`
	Notification  Notification `json:"notification"`
}

// ParseStatus decodes a status frame field by field. Frames of any length
// other than StatusSize are rejected.
func ParseStatus(frame []byte) (*Status, error) {
	if len(frame) != StatusSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidStatusFrame, len(frame))
	}
	return &Status{
		PrintHeadMark: frame[0],
		Size:          frame[1],
		ModelClass:    frame[3],
		ModelCode:     frame[4],
		Error1:        frame[8],
		Error2:        frame[9],
		MediaWidth:    frame[10],
		MediaType:     MediaType(frame[11]),
		Mode:          Mode(frame[15]),
		MediaLength:   frame[17],
		Type:          StatusType(frame[18]),
		Phase:         PhaseType(frame[19]),
		PhaseNumber:   uint16(frame[20])<<8 | uint16(frame[21]),
		Notification:  Notification(frame[22]),
	}, nil
}

// MarshalBinary encodes the status into its 32-byte wire form, filling the
// reserved bytes with their documented values.
func (s Status) MarshalBinary() ([]byte, error) {
	frame := make([]byte, StatusSize)
	frame[0] = s.PrintHeadMark
	frame[1] = s.Size
	frame[2] = statusClassMarker
	frame[3] = s.ModelClass
	frame[4] = s.ModelCode
	frame[5] = '0'
	frame[6] = '0'
	frame[8] = s.Error1
	frame[9] = s.Error2
	frame[10] = s.MediaWidth
	frame[11] = uint8(s.MediaType)
	frame[14] = statusReserved14
	frame[15] = uint8(s.Mode)
	frame[17] = s.MediaLength
	frame[18] = uint8(s.Type)
	frame[19] = uint8(s.Phase)
	frame[20] = uint8(s.PhaseNumber >> 8)
	frame[21] = uint8(s.PhaseNumber)
	frame[22] = uint8(s.Notification)
	return frame, nil
}

// NewStatus returns a reply frame for the given model with the header fields set.
func NewStatus(modelCode uint8) Status {
	return Status{
		PrintHeadMark: statusPrintHeadMark,
		Size:          StatusSize,
		ModelClass:    '0',
		ModelCode:     modelCode,
	}
}

// Errors returns the combined error set.
func (s Status) Errors() ErrorBits {
	return ErrorBits(s.Error1) | ErrorBits(s.Error2)<<8
}

// HasErrors reports whether any error bit is set.
func (s Status) HasErrors() bool {
	return s.Error1 != 0 || s.Error2 != 0
}

// IsContinuous reports whether continuous tape is loaded.
func (s Status) IsContinuous() bool {
	return s.MediaType == MediaContinuous || s.MediaType == MediaContinuousAlt
}
