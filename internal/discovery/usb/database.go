// internal/discovery/usb/database.go
package usb

import (
	"github.com/google/gousb"
)

// BrotherVendorID is the USB vendor ID of Brother Industries
const BrotherVendorID gousb.ID = 0x04f9

// DeviceDatabase contains known USB label printers for identification
type DeviceDatabase struct {
	vendors map[gousb.ID]*VendorInfo
}

// VendorInfo contains vendor-specific information
type VendorInfo struct {
	Name     string
	products map[gousb.ID]*ProductInfo
}

// ProductInfo contains product-specific information
type ProductInfo struct {
	Model      string
	Wide       bool
	Confidence float64
}

// NewDeviceDatabase creates and initializes the device database
func NewDeviceDatabase() *DeviceDatabase {
	db := &DeviceDatabase{
		vendors: make(map[gousb.ID]*VendorInfo),
	}
	db.initializeDatabase()
	return db
}

// initializeDatabase populates the known devices database
func (db *DeviceDatabase) initializeDatabase() {
	brother := &VendorInfo{
		Name:     "Brother Industries, Ltd",
		products: make(map[gousb.ID]*ProductInfo),
	}

	for productID, info := range map[gousb.ID]*ProductInfo{
		0x2015: {Model: "QL-500", Confidence: 0.95},
		0x2016: {Model: "QL-550", Confidence: 0.95},
		0x201b: {Model: "QL-650TD", Confidence: 0.95},
		0x2020: {Model: "QL-1050", Wide: true, Confidence: 0.95},
		0x2027: {Model: "QL-560", Confidence: 0.95},
		0x2028: {Model: "QL-570", Confidence: 0.95},
		0x2029: {Model: "QL-580N", Confidence: 0.95},
		0x202a: {Model: "QL-1060N", Wide: true, Confidence: 0.95},
		0x2042: {Model: "QL-700", Confidence: 0.95},
		0x2043: {Model: "QL-710W", Confidence: 0.95},
		0x2044: {Model: "QL-720NW", Confidence: 0.95},
		// Newer models speak the same raster protocol but are not in the
		// status model table.
		0x209b: {Model: "QL-800", Confidence: 0.7},
		0x209c: {Model: "QL-810W", Confidence: 0.7},
		0x209d: {Model: "QL-820NWB", Confidence: 0.7},
	} {
		brother.products[productID] = info
	}

	db.vendors[BrotherVendorID] = brother
}

// IsKnownVendor checks if a vendor ID is in the database
func (db *DeviceDatabase) IsKnownVendor(vendorID gousb.ID) bool {
	_, exists := db.vendors[vendorID]
	return exists
}

// GetVendorInfo retrieves vendor information
func (db *DeviceDatabase) GetVendorInfo(vendorID gousb.ID) *VendorInfo {
	return db.vendors[vendorID]
}

// GetProductInfo retrieves product information from vendor
func (vi *VendorInfo) GetProductInfo(productID gousb.ID) *ProductInfo {
	return vi.products[productID]
}

// GetTotalProductCount returns total number of known products
func (db *DeviceDatabase) GetTotalProductCount() int {
	total := 0
	for _, vendor := range db.vendors {
		total += len(vendor.products)
	}
	return total
}
