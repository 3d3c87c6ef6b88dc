// internal/service/status.go
package service

import (
	"fmt"

	"ql-service/internal/driver/brother"
	"ql-service/internal/model"
	"ql-service/pkg/driver"
)

// NewPrinterStatus labels a status frame for API clients
func NewPrinterStatus(device string, s *driver.Status) *model.PrinterStatus {
	status := &model.PrinterStatus{
		Device:       device,
		Model:        brother.ModelName(s.ModelCode),
		ModelCode:    fmt.Sprintf("0x%02x", s.ModelCode),
		Mode:         brother.ModeLabel(s.Mode),
		Errors:       model.StringList(brother.ErrorNames(s.Errors())),
		MediaType:    brother.MediaTypeLabel(s.MediaType),
		MediaWidth:   s.MediaWidth,
		StatusType:   brother.StatusTypeLabel(s.Type),
		Phase:        brother.PhaseLabel(s.Phase),
		Notification: brother.NotificationLabel(s.Notification),
		BlockSize:    brother.BlockSize(s.ModelCode),
		MaxDots:      brother.MaxDots(s.ModelCode),
		Report:       brother.StatusReport(s, brother.ReportAll),
	}
	if status.Errors == nil {
		status.Errors = model.StringList{}
	}
	if !s.IsContinuous() {
		length := s.MediaLength
		status.MediaLength = &length
	}
	return status
}
