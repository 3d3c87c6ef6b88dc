// pkg/driver/status_test.go
package driver

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRoundTrip(t *testing.T) {
	want := NewStatus('2')
	want.Error1 = 0x11
	want.Error2 = 0x10
	want.MediaWidth = 62
	want.MediaType = MediaDieCutLabels
	want.Mode = ModeAutoCut
	want.MediaLength = 29
	want.Type = StatusPhaseChange
	want.Phase = PhasePrinting
	want.PhaseNumber = 0x0102
	want.Notification = NotificationCoolingStarted

	frame, err := want.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, frame, StatusSize)

	assert.Equal(t, byte(0x80), frame[0])
	assert.Equal(t, byte(0x20), frame[1])
	assert.Equal(t, byte('B'), frame[2])
	assert.Equal(t, byte('2'), frame[4])
	assert.Equal(t, byte(0x3f), frame[14])
	assert.Equal(t, byte(0x01), frame[20])
	assert.Equal(t, byte(0x02), frame[21])

	got, err := ParseStatus(frame)
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestParseStatusRejectsWrongLength(t *testing.T) {
	for _, n := range []int{0, 1, 31, 33} {
		t.Run(fmt.Sprintf("%d bytes", n), func(t *testing.T) {
			_, err := ParseStatus(make([]byte, n))
			assert.ErrorIs(t, err, ErrInvalidStatusFrame)
		})
	}
}

func TestStatusErrors(t *testing.T) {
	s := NewStatus('5')
	assert.False(t, s.HasErrors())
	assert.Equal(t, ErrorBits(0), s.Errors())

	s.Error1 = 0x01
	s.Error2 = 0x10
	assert.True(t, s.HasErrors())
	assert.Equal(t, ErrorBitNoMedia|ErrorBitCoverOpen, s.Errors())
}

func TestErrorBitValues(t *testing.T) {
	assert.Equal(t, ErrorBits(0x0001), ErrorBitNoMedia)
	assert.Equal(t, ErrorBits(0x0004), ErrorBitCutterJam)
	assert.Equal(t, ErrorBits(0x0010), ErrorBitPrinterInUse)
	assert.Equal(t, ErrorBits(0x0080), ErrorBitFanMotor)
	assert.Equal(t, ErrorBits(0x0100), ErrorBitReplaceMedia)
	assert.Equal(t, ErrorBits(0x8000), ErrorBitSystem)
}

func TestIsContinuous(t *testing.T) {
	s := NewStatus('2')
	for mediaType, want := range map[MediaType]bool{
		MediaNone:            false,
		MediaContinuous:      true,
		MediaContinuousAlt:   true,
		MediaDieCutLabels:    false,
		MediaDieCutLabelsAlt: false,
	} {
		s.MediaType = mediaType
		assert.Equal(t, want, s.IsContinuous(), "media type 0x%02x", uint8(mediaType))
	}
}

func TestPrintConfigBuilders(t *testing.T) {
	cfg := DefaultPrintConfig().
		WithMediaType(MediaContinuous).
		WithMediaWidth(62).
		WithMediaLength(100)

	assert.Equal(t, uint8(DefaultThreshold), cfg.Threshold)
	assert.True(t, cfg.FirstPage)
	assert.Equal(t, PrintConfigMediaType|PrintConfigMediaWidth|PrintConfigMediaLength, cfg.Flags)
	assert.Equal(t, uint8(62), cfg.MediaWidth)
	assert.Equal(t, uint8(100), cfg.MediaLength)
}

func TestBitmapValidate(t *testing.T) {
	bm := NewBitmap(3, 2)
	require.NoError(t, bm.Validate())
	assert.Equal(t, byte(0xff), bm.At(2, 1))
	bm.Set(2, 1, 0)
	assert.Equal(t, byte(0), bm.Pix[5])

	assert.Error(t, (&Bitmap{Width: 0, Height: 1}).Validate())
	assert.Error(t, (&Bitmap{Width: 2, Height: 2, Pix: make([]byte, 3)}).Validate())
}

func TestDeviceErrorMessage(t *testing.T) {
	err := &DeviceError{Errors: ErrorBitNoMedia, Conditions: []string{"no-media", "cover-open"}}
	assert.Equal(t, "printer reported error(s): no-media cover-open", err.Error())
	assert.ErrorIs(t, err, ErrDeviceReported)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{errors.New("boom"), ExitFailure},
		{fmt.Errorf("open: %w", ErrDeviceUnavailable), ExitDeviceUnavailable},
		{fmt.Errorf("write: %w", ErrChannelIO), ExitChannelIO},
		{fmt.Errorf("%w: %w", ErrProtocolTimeout, ErrChannelIO), ExitTimeout},
		{&PageError{Item: "a.png", Copy: 1, Err: &DeviceError{}}, ExitDeviceReported},
		{&PageError{Item: "a.png", Copy: 1, Err: ErrImageTooWide}, ExitImageTooWide},
		{&PageError{Item: "a.png", Copy: 1, Err: ErrImageLoadFailed}, ExitImageLoad},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ExitCode(tt.err), "%v", tt.err)
	}
}
