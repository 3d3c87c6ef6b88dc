// internal/driver/brother/decode.go
package brother

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"ql-service/pkg/driver"
)

var modelNames = map[uint8]string{
	'1': "QL-560",
	'2': "QL-570",
	'3': "QL-580N",
	'4': "QL-1060N",
	'5': "QL-700",
	'6': "QL-710W",
	'7': "QL-720NW",
	'O': "QL-500/550",
	'P': "QL-1050",
	'Q': "QL-650TD",
}

// ModelName decodes a model code. Unknown codes are labelled, not rejected.
func ModelName(modelCode uint8) string {
	if name, ok := modelNames[modelCode]; ok {
		return name
	}
	return fmt.Sprintf("unrecognised (type code 0x%02x)", modelCode)
}

// MediaTypeLabel decodes the media type byte
func MediaTypeLabel(mediaType driver.MediaType) string {
	switch mediaType {
	case driver.MediaNone:
		return "no-media"
	case driver.MediaContinuous, driver.MediaContinuousAlt:
		return "continuous-length-tape"
	case driver.MediaDieCutLabels, driver.MediaDieCutLabelsAlt:
		return "die-cut-labels"
	default:
		return fmt.Sprintf("unknown (code 0x%02x)", uint8(mediaType))
	}
}

// ParseMediaType accepts "continuous", "die-cut" or a numeric media type code
func ParseMediaType(s string) (driver.MediaType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continuous", "continuous-length-tape":
		return driver.MediaContinuous, nil
	case "die-cut", "die-cut-labels", "labels":
		return driver.MediaDieCutLabels, nil
	}
	code, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid media type %q", s)
	}
	return driver.MediaType(code), nil
}

// ModeLabel decodes the mode byte
func ModeLabel(mode driver.Mode) string {
	if mode&driver.ModeAutoCut != 0 {
		return "auto-cut"
	}
	return "no-auto-cut"
}

// errorNames is in bit-scan order: error byte 1 low to high, then error byte 2.
var errorNames = []struct {
	bit  driver.ErrorBits
	name string
}{
	{driver.ErrorBitNoMedia, "no-media"},
	{driver.ErrorBitEndOfMedia, "end-of-media"},
	{driver.ErrorBitCutterJam, "cutter-jam"},
	{driver.ErrorBitPrinterInUse, "printer-in-use"},
	{driver.ErrorBitPrinterTurnedOff, "printer-turned-off"},
	{driver.ErrorBitHighVoltageAdapter, "high-voltage-adapter"},
	{driver.ErrorBitFanMotor, "fan-motor-error"},

	{driver.ErrorBitReplaceMedia, "replace-media"},
	{driver.ErrorBitExpansionBufferFull, "expansion-buffer-full"},
	{driver.ErrorBitCommunication, "communication-error"},
	{driver.ErrorBitCommunicationBufferFull, "communication-buffer-full"},
	{driver.ErrorBitCoverOpen, "cover-open"},
	{driver.ErrorBitCancelKey, "cancel-key-pressed"},
	{driver.ErrorBitMediaCannotBeFed, "media-cannot-be-fed"},
	{driver.ErrorBitSystem, "system-error"},
}

// ErrorNames returns the condition names of every set bit, in bit order
func ErrorNames(errs driver.ErrorBits) []string {
	names := make([]string, 0, len(errorNames))
	for _, e := range errorNames {
		if errs&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	return names
}

// ErrorsLabel joins the error names with spaces, or returns "none"
func ErrorsLabel(errs driver.ErrorBits) string {
	names := ErrorNames(errs)
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, " ")
}

// NewDeviceError wraps a status frame's error set
func NewDeviceError(s *driver.Status) *driver.DeviceError {
	errs := s.Errors()
	return &driver.DeviceError{Errors: errs, Conditions: ErrorNames(errs)}
}

// StatusTypeLabel decodes the status type byte
func StatusTypeLabel(t driver.StatusType) string {
	switch t {
	case driver.StatusReply:
		return "reply"
	case driver.StatusPrintingDone:
		return "printing-done"
	case driver.StatusErrorOccurred:
		return "error-occurred"
	case driver.StatusTurnedOff:
		return "turned-off"
	case driver.StatusNotification:
		return "notification"
	case driver.StatusPhaseChange:
		return "phase-change"
	default:
		return fmt.Sprintf("unknown (code 0x%02x)", uint8(t))
	}
}

// PhaseLabel decodes the phase type byte
func PhaseLabel(p driver.PhaseType) string {
	switch p {
	case driver.PhaseReceiving:
		return "receiving"
	case driver.PhasePrinting:
		return "printing"
	default:
		return fmt.Sprintf("unknown (code 0x%02x)", uint8(p))
	}
}

// NotificationLabel decodes the notification byte
func NotificationLabel(n driver.Notification) string {
	switch n {
	case driver.NotificationNone:
		return "none"
	case driver.NotificationCoolingStarted:
		return "cooling-started"
	case driver.NotificationCoolingDone:
		return "cooling-done"
	default:
		return fmt.Sprintf("unknown (code 0x%02x)", uint8(n))
	}
}

// ReportSection selects the sections of a status report
type ReportSection uint

const (
	ReportModel ReportSection = 1 << iota
	ReportErrors
	ReportMedia
	ReportMode
	ReportPhase

	ReportAll = ReportModel | ReportErrors | ReportMedia | ReportMode
)

// RenderStatus writes the selected sections as right-aligned "key: value" lines
func RenderStatus(w io.Writer, s *driver.Status, sections ReportSection) error {
	if s == nil {
		return nil
	}

	var b strings.Builder
	line := func(key string, value any) {
		fmt.Fprintf(&b, "%17s: %v\n", key, value)
	}

	if sections&ReportModel != 0 {
		line("Printer", ModelName(s.ModelCode))
	}
	if sections&ReportMode != 0 {
		line("Mode", ModeLabel(s.Mode))
	}
	if sections&ReportErrors != 0 {
		line("Errors", ErrorsLabel(s.Errors()))
	}
	if sections&ReportMedia != 0 {
		line("Media type", MediaTypeLabel(s.MediaType))
		line("Media width (mm)", s.MediaWidth)
		if !s.IsContinuous() {
			line("Media length (mm)", s.MediaLength)
		}
	}
	if sections&ReportPhase != 0 {
		line("Status type", StatusTypeLabel(s.Type))
		line("Phase", PhaseLabel(s.Phase))
		line("Notification", NotificationLabel(s.Notification))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// StatusReport renders the selected sections to a string
func StatusReport(s *driver.Status, sections ReportSection) string {
	var b strings.Builder
	_ = RenderStatus(&b, s, sections)
	return b.String()
}
