// internal/model/job.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus represents the status of a print job
type JobStatus string

const (
	JobStatusPending  JobStatus = "PENDING"
	JobStatusPrinting JobStatus = "PRINTING"
	JobStatusSuccess  JobStatus = "SUCCESS"
	JobStatusFailed   JobStatus = "FAILED"
	JobStatusTimeout  JobStatus = "TIMEOUT"
)

// PrintResolutionDPI is the head resolution of every supported model.
const PrintResolutionDPI = 300

var mmPerInch = decimal.NewFromFloat(25.4)

// PrintJob records one print request and its outcome
type PrintJob struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Device       string     `json:"device" db:"device"`
	Items        StringList `json:"items" db:"items"`
	Copies       int        `json:"copies" db:"copies"`
	Options      JSONObject `json:"options" db:"options"`
	Status       JobStatus  `json:"status" db:"status"`
	Pages        PageList   `json:"pages" db:"pages"`
	ErrorMessage *string    `json:"error_message,omitempty" db:"error_message"`
	DeviceErrors StringList `json:"device_errors,omitempty" db:"device_errors"`
	StartedAt    time.Time  `json:"started_at" db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	DurationMs   *int       `json:"duration_ms,omitempty" db:"duration_ms"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// NewPrintJob creates a pending job for the given device and items
func NewPrintJob(device string, items []string, copies int) *PrintJob {
	now := time.Now()
	return &PrintJob{
		ID:        uuid.New(),
		Device:    device,
		Items:     StringList(items),
		Copies:    copies,
		Options:   JSONObject{},
		Status:    JobStatusPending,
		Pages:     PageList{},
		StartedAt: now,
		CreatedAt: now,
	}
}

// IsCompleted checks if the job reached a terminal status
func (j *PrintJob) IsCompleted() bool {
	return j.Status == JobStatusSuccess ||
		j.Status == JobStatusFailed ||
		j.Status == JobStatusTimeout
}

// Finish stamps the completion time and duration.
func (j *PrintJob) Finish(status JobStatus, err error) {
	completed := time.Now()
	duration := int(completed.Sub(j.StartedAt).Milliseconds())
	j.Status = status
	j.CompletedAt = &completed
	j.DurationMs = &duration
	if err != nil {
		msg := err.Error()
		j.ErrorMessage = &msg
	}
}

// JobPage describes one printed page
type JobPage struct {
	Item       string          `json:"item"`
	Copy       int             `json:"copy"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	LengthMM   decimal.Decimal `json:"length_mm"`
	DurationMs int64           `json:"duration_ms"`
}

// NewJobPage fills in the physical label length, one raster column per dot.
func NewJobPage(item string, copyNo, width, height int, duration time.Duration) JobPage {
	return JobPage{
		Item:       item,
		Copy:       copyNo,
		Width:      width,
		Height:     height,
		LengthMM:   DotsToMillimetres(width),
		DurationMs: duration.Milliseconds(),
	}
}

// DotsToMillimetres converts a dot count at PrintResolutionDPI to millimetres.
func DotsToMillimetres(dots int) decimal.Decimal {
	return decimal.NewFromInt(int64(dots)).
		Mul(mmPerInch).
		Div(decimal.NewFromInt(PrintResolutionDPI)).
		Round(1)
}

// PageList type for PostgreSQL JSONB page arrays
type PageList []JobPage

func (p *PageList) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported JSONB source %T", value)
	}
	return json.Unmarshal(bytes, p)
}

func (p PageList) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}
