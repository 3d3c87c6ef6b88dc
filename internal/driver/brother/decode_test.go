// internal/driver/brother/decode_test.go
package brother

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ql-service/pkg/driver"
)

func TestModelName(t *testing.T) {
	assert.Equal(t, "QL-570", ModelName('2'))
	assert.Equal(t, "QL-1060N", ModelName('4'))
	assert.Equal(t, "QL-500/550", ModelName('O'))
	assert.Equal(t, "QL-650TD", ModelName('Q'))

	name := ModelName(0xee)
	assert.Contains(t, name, "ee")
	assert.Equal(t, "unrecognised (type code 0xee)", name)
}

func TestMediaTypeLabel(t *testing.T) {
	assert.Equal(t, "no-media", MediaTypeLabel(driver.MediaNone))
	assert.Equal(t, "continuous-length-tape", MediaTypeLabel(driver.MediaContinuous))
	assert.Equal(t, "continuous-length-tape", MediaTypeLabel(driver.MediaContinuousAlt))
	assert.Equal(t, "die-cut-labels", MediaTypeLabel(driver.MediaDieCutLabels))
	assert.Equal(t, "die-cut-labels", MediaTypeLabel(driver.MediaDieCutLabelsAlt))
	assert.Equal(t, "unknown (code 0x11)", MediaTypeLabel(driver.MediaType(0x11)))
}

func TestModeLabel(t *testing.T) {
	assert.Equal(t, "auto-cut", ModeLabel(driver.ModeAutoCut))
	assert.Equal(t, "auto-cut", ModeLabel(driver.Mode(0x41)))
	assert.Equal(t, "no-auto-cut", ModeLabel(driver.ModeNoAutoCut))
}

func errorBits(err1, err2 uint8) driver.ErrorBits {
	s := driver.Status{Error1: err1, Error2: err2}
	return s.Errors()
}

func TestErrorsLabel(t *testing.T) {
	tests := []struct {
		name       string
		err1, err2 uint8
		want       string
	}{
		{"none", 0, 0, "none"},
		{"no media", 0x01, 0, "no-media"},
		{"no media and in use", 0x11, 0, "no-media printer-in-use"},
		{"unassigned bit", 0x08, 0, "none"},
		{"second byte", 0, 0x11, "replace-media cover-open"},
		{"both bytes", 0x80, 0x80, "fan-motor-error system-error"},
		{"everything", 0xff, 0xff, "no-media end-of-media cutter-jam printer-in-use printer-turned-off " +
			"high-voltage-adapter fan-motor-error replace-media expansion-buffer-full communication-error " +
			"communication-buffer-full cover-open cancel-key-pressed media-cannot-be-fed system-error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorsLabel(errorBits(tt.err1, tt.err2)))
		})
	}
}

func TestErrorNamesAreFreshPerCall(t *testing.T) {
	first := ErrorNames(errorBits(0x01, 0))
	second := ErrorNames(errorBits(0, 0x10))

	assert.Equal(t, []string{"no-media"}, first)
	assert.Equal(t, []string{"cover-open"}, second)
	assert.Empty(t, ErrorNames(0))
}

func TestNewDeviceError(t *testing.T) {
	s := driver.NewStatus('2')
	s.Error1 = 0x04
	err := NewDeviceError(&s)

	assert.ErrorIs(t, err, driver.ErrDeviceReported)
	assert.Equal(t, []string{"cutter-jam"}, err.Conditions)
	assert.Equal(t, "printer reported error(s): cutter-jam", err.Error())
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "printing-done", StatusTypeLabel(driver.StatusPrintingDone))
	assert.Equal(t, "phase-change", StatusTypeLabel(driver.StatusPhaseChange))
	assert.Equal(t, "unknown (code 0x09)", StatusTypeLabel(driver.StatusType(9)))
	assert.Equal(t, "printing", PhaseLabel(driver.PhasePrinting))
	assert.Equal(t, "cooling-done", NotificationLabel(driver.NotificationCoolingDone))
}

func TestRenderStatus(t *testing.T) {
	s := driver.NewStatus('2')
	s.MediaType = driver.MediaDieCutLabels
	s.MediaWidth = 62
	s.MediaLength = 29
	s.Error2 = 0x10

	var buf bytes.Buffer
	require.NoError(t, RenderStatus(&buf, &s, ReportAll))

	want := "          Printer: QL-570\n" +
		"             Mode: no-auto-cut\n" +
		"           Errors: cover-open\n" +
		"       Media type: die-cut-labels\n" +
		" Media width (mm): 62\n" +
		"Media length (mm): 29\n"
	assert.Equal(t, want, buf.String())
}

func TestRenderStatusContinuousOmitsLength(t *testing.T) {
	s := driver.NewStatus('5')
	s.MediaType = driver.MediaContinuousAlt
	s.MediaWidth = 62

	report := StatusReport(&s, ReportMedia)
	assert.Equal(t, "       Media type: continuous-length-tape\n Media width (mm): 62\n", report)
	assert.NotContains(t, report, "length (mm)")
}

func TestRenderStatusSections(t *testing.T) {
	s := driver.NewStatus('7')
	assert.Equal(t, "          Printer: QL-720NW\n", StatusReport(&s, ReportModel))
	assert.Contains(t, StatusReport(&s, ReportPhase), "Status type: reply")
	assert.Empty(t, StatusReport(nil, ReportAll))
}

func TestParseMediaType(t *testing.T) {
	mt, err := ParseMediaType("continuous")
	require.NoError(t, err)
	assert.Equal(t, driver.MediaContinuous, mt)

	mt, err = ParseMediaType("Die-Cut")
	require.NoError(t, err)
	assert.Equal(t, driver.MediaDieCutLabels, mt)

	mt, err = ParseMediaType("0x4b")
	require.NoError(t, err)
	assert.Equal(t, driver.MediaDieCutLabelsAlt, mt)

	_, err = ParseMediaType("glossy")
	assert.Error(t, err)
	_, err = ParseMediaType("300")
	assert.Error(t, err)
}
