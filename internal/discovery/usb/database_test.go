// internal/discovery/usb/database_test.go
package usb

import (
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceDatabaseKnowsBrotherQL(t *testing.T) {
	db := NewDeviceDatabase()

	assert.True(t, db.IsKnownVendor(BrotherVendorID))
	assert.False(t, db.IsKnownVendor(0x04b8))
	assert.Equal(t, 14, db.GetTotalProductCount())

	vendor := db.GetVendorInfo(BrotherVendorID)
	require.NotNil(t, vendor)

	ql700 := vendor.GetProductInfo(0x2042)
	require.NotNil(t, ql700)
	assert.Equal(t, "QL-700", ql700.Model)
	assert.False(t, ql700.Wide)

	ql1060 := vendor.GetProductInfo(0x202a)
	require.NotNil(t, ql1060)
	assert.True(t, ql1060.Wide)

	assert.Nil(t, vendor.GetProductInfo(0xffff))
}

func TestUSBAddress(t *testing.T) {
	assert.Equal(t, "usb://04f9:2042", USBAddress(BrotherVendorID, gousb.ID(0x2042), ""))
	assert.Equal(t, "usb://04f9:2042/000F1Z401370", USBAddress(BrotherVendorID, gousb.ID(0x2042), "000F1Z401370"))
}
