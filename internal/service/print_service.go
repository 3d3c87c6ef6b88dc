// internal/service/print_service.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ql-service/internal/config"
	internalDriver "ql-service/internal/driver"
	"ql-service/internal/driver/brother"
	"ql-service/internal/imaging"
	"ql-service/internal/model"
	"ql-service/internal/repository"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

var (
	// ErrUnsupportedAddress is returned for printer addresses no channel can open
	ErrUnsupportedAddress = errors.New("unsupported printer address")
	// ErrNoImages is returned for print requests without uploads
	ErrNoImages = errors.New("at least one image is required")
)

// EventPublisher receives job lifecycle events
type EventPublisher interface {
	Publish(event model.DeviceEvent)
}

// Upload is one image received with a print request
type Upload struct {
	Name string
	Data []byte
}

// PrintRequest represents a print job request
type PrintRequest struct {
	Device  string             `json:"device"`
	Uploads []Upload           `json:"-"`
	Copies  int                `json:"copies"`
	Config  driver.PrintConfig `json:"config"`
	Options driver.JobOptions  `json:"options"`

	// Dither and ScaleToFit override the configured image defaults when set.
	Dither     *bool `json:"dither,omitempty"`
	ScaleToFit *bool `json:"scale_to_fit,omitempty"`
}

// PrintService runs print jobs and status queries against printers
type PrintService struct {
	jobRepo        repository.JobRepository
	driverRegistry *internalDriver.Registry
	publisher      EventPublisher
	config         *config.Config
	logger         *utils.ServiceLogger
}

// NewPrintService creates a new print service instance
func NewPrintService(
	jobRepo repository.JobRepository,
	driverRegistry *internalDriver.Registry,
	publisher EventPublisher,
	config *config.Config,
	logger *zap.Logger,
) *PrintService {
	return &PrintService{
		jobRepo:        jobRepo,
		driverRegistry: driverRegistry,
		publisher:      publisher,
		config:         config,
		logger:         utils.NewServiceLogger(logger, "print-service"),
	}
}

// DefaultDevice returns the configured printer address
func (ps *PrintService) DefaultDevice() string {
	return ps.config.Printer.Address
}

// resolveDevice falls back to the configured printer address
func (ps *PrintService) resolveDevice(device string) (string, error) {
	if device == "" {
		device = ps.config.Printer.Address
	}
	if !ps.driverRegistry.IsSupported(device) {
		return "", fmt.Errorf("%w '%s'", ErrUnsupportedAddress, device)
	}
	return device, nil
}

// GetStatus queries the printer once and returns the decoded status
func (ps *PrintService) GetStatus(ctx context.Context, device string) (*model.PrinterStatus, error) {
	device, err := ps.resolveDevice(device)
	if err != nil {
		return nil, err
	}

	var status *driver.Status
	err = ps.driverRegistry.WithPrinter(ctx, device, func(d *brother.QLDriver) error {
		if err := d.Initialize(ctx); err != nil {
			return err
		}
		status, err = d.Status(ctx)
		return err
	})
	if err != nil {
		ps.logger.Warn("Printer status query failed", zap.String("device", device), zap.Error(err))
		return nil, err
	}

	return NewPrinterStatus(device, status), nil
}

// Print runs one print job and records it in the job history. The returned
// job is populated even when printing fails.
func (ps *PrintService) Print(ctx context.Context, req *PrintRequest) (*model.PrintJob, error) {
	if len(req.Uploads) == 0 {
		return nil, ErrNoImages
	}
	device, err := ps.resolveDevice(req.Device)
	if err != nil {
		return nil, err
	}

	copies := req.Copies
	if copies < 1 {
		copies = 1
	}

	items := make([]string, 0, len(req.Uploads))
	seen := make(map[string]bool, len(req.Uploads))
	for i, upload := range req.Uploads {
		name := upload.Name
		switch {
		case name == "":
			name = fmt.Sprintf("image-%d", i+1)
		case seen[name]:
			name = fmt.Sprintf("%d-%s", i+1, name)
		}
		seen[name] = true
		req.Uploads[i].Name = name
		items = append(items, name)
	}

	job := model.NewPrintJob(device, items, copies)
	job.Options = jobOptions(req)
	if err := ps.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create print job: %w", err)
	}

	jobLogger := utils.NewJobLogger(ps.logger.Logger, job.ID.String())
	jobLogger.Start(zap.String("device", device), zap.Int("items", len(items)), zap.Int("copies", copies))
	ps.publish(model.EventJobStarted, job, nil)

	job.Status = model.JobStatusPrinting
	results, printErr := ps.runJob(ctx, device, req, items, copies)
	for _, page := range results {
		job.Pages = append(job.Pages, model.NewJobPage(page.Item, page.Copy, page.Width, page.Height, page.Duration))
		jobLogger.Page(page.Item, page.Copy, page.Width, page.Height)
	}

	if printErr != nil {
		status := model.JobStatusFailed
		if errors.Is(printErr, driver.ErrProtocolTimeout) {
			status = model.JobStatusTimeout
		}
		var deviceErr *driver.DeviceError
		if errors.As(printErr, &deviceErr) {
			job.DeviceErrors = model.StringList(deviceErr.Conditions)
		}
		job.Finish(status, printErr)
		jobLogger.Error(printErr, zap.Int("pages_printed", len(results)))
		ps.publish(model.EventJobFailed, job, printErr)
	} else {
		job.Finish(model.JobStatusSuccess, nil)
		jobLogger.Success(zap.Int("pages_printed", len(results)))
		ps.publish(model.EventJobCompleted, job, nil)
	}

	// The job outcome must be stored even if the request was cancelled.
	if err := ps.jobRepo.Update(context.WithoutCancel(ctx), job); err != nil {
		ps.logger.Error("Failed to update print job", zap.Error(err), zap.String("job_id", job.ID.String()))
	}

	return job, printErr
}

func (ps *PrintService) runJob(ctx context.Context, device string, req *PrintRequest, items []string, copies int) ([]driver.PageResult, error) {
	opts := imaging.Options{
		Dither:     ps.config.Printer.Dither,
		ScaleToFit: ps.config.Printer.ScaleToFit,
	}
	if req.Dither != nil {
		opts.Dither = *req.Dither
	}
	if req.ScaleToFit != nil {
		opts.ScaleToFit = *req.ScaleToFit
	}

	var results []driver.PageResult
	err := ps.driverRegistry.WithPrinter(ctx, device, func(d *brother.QLDriver) error {
		if err := d.Initialize(ctx); err != nil {
			return err
		}
		status, err := d.Configure(ctx, req.Options)
		if err != nil {
			return err
		}

		opts.MaxDots = brother.MaxDots(status.ModelCode)
		source := imaging.NewMemorySource(imaging.NewLoader(opts, ps.logger.Logger))
		for _, upload := range req.Uploads {
			source.Add(upload.Name, upload.Data)
		}

		results, err = d.PrintJob(ctx, source, driver.Job{
			Items:   items,
			Copies:  copies,
			Config:  req.Config,
			Options: req.Options,
		})
		return err
	})
	return results, err
}

// GetJob returns one job from the history
func (ps *PrintService) GetJob(ctx context.Context, id uuid.UUID) (*model.PrintJob, error) {
	return ps.jobRepo.GetByID(ctx, id)
}

// ListJobs returns a page of the job history
func (ps *PrintService) ListJobs(ctx context.Context, filter *repository.JobFilter) ([]*model.PrintJob, int, error) {
	return ps.jobRepo.List(ctx, filter)
}

// HealthMetrics returns per-printer metrics of the last finished session
func (ps *PrintService) HealthMetrics() map[string]driver.HealthMetrics {
	return ps.driverRegistry.HealthMetrics()
}

// ActiveDevices returns printers with a job or query in progress
func (ps *PrintService) ActiveDevices() []string {
	return ps.driverRegistry.ActiveDevices()
}

func (ps *PrintService) publish(eventType model.EventType, job *model.PrintJob, err error) {
	if ps.publisher == nil {
		return
	}
	data := model.JSONObject{
		"job_id": job.ID.String(),
		"status": string(job.Status),
		"pages":  len(job.Pages),
	}
	if err != nil {
		data["error"] = err.Error()
	}
	ps.publisher.Publish(model.NewDeviceEvent(eventType, job.Device, "print-service", data))
}

func jobOptions(req *PrintRequest) model.JSONObject {
	opts := model.JSONObject{
		"threshold": req.Config.Threshold,
		"auto_cut":  req.Options.AutoCut,
	}
	if req.Options.AutoCut {
		opts["auto_cut_every"] = req.Options.AutoCutEvery
	}
	if req.Options.Margin != nil {
		opts["margin"] = *req.Options.Margin
	}
	if req.Config.Flags&driver.PrintConfigMediaType != 0 {
		opts["media_type"] = brother.MediaTypeLabel(req.Config.MediaType)
	}
	if req.Config.Flags&driver.PrintConfigMediaWidth != 0 {
		opts["media_width_mm"] = req.Config.MediaWidth
	}
	if req.Config.Flags&driver.PrintConfigMediaLength != 0 {
		opts["media_length_mm"] = req.Config.MediaLength
	}
	if req.Config.Flags&driver.PrintConfigQualityFirst != 0 {
		opts["quality"] = true
	}
	if req.Dither != nil {
		opts["dither"] = *req.Dither
	}
	if req.ScaleToFit != nil {
		opts["scale_to_fit"] = *req.ScaleToFit
	}
	return opts
}
