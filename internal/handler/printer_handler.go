// internal/handler/printer_handler.go
package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ql-service/internal/driver/brother"
	"ql-service/internal/service"
	"ql-service/internal/utils"
	"ql-service/pkg/driver"
)

// imagesField is the multipart field carrying the label images, in print order
const imagesField = "images"

// PrinterHandler handles status and print requests
type PrinterHandler struct {
	printService *service.PrintService
	maxUploadMB  int64
	threshold    uint8
	logger       *utils.ServiceLogger
}

// NewPrinterHandler creates a new printer handler
func NewPrinterHandler(printService *service.PrintService, maxUploadMB int64, threshold int, logger *zap.Logger) *PrinterHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 16
	}
	if threshold < 0 || threshold > 255 {
		threshold = driver.DefaultThreshold
	}
	return &PrinterHandler{
		printService: printService,
		maxUploadMB:  maxUploadMB,
		threshold:    uint8(threshold),
		logger:       utils.NewServiceLogger(logger, "printer-handler"),
	}
}

// GetStatus queries a printer
// @Summary Printer status
// @Description Request and decode one status frame from a printer
// @Tags Printer
// @Produce json
// @Param device query string false "Printer address, defaults to the configured printer"
// @Success 200 {object} utils.APIResponse{data=model.PrinterStatus} "Status retrieved"
// @Failure 400 {object} utils.APIResponse "Unsupported address"
// @Failure 409 {object} utils.APIResponse "Printer busy"
// @Failure 504 {object} utils.APIResponse "Printer stopped responding"
// @Router /printer/status [get]
func (h *PrinterHandler) GetStatus(c *gin.Context) {
	status, err := h.printService.GetStatus(c.Request.Context(), c.Query("device"))
	if err != nil {
		if errors.Is(err, service.ErrUnsupportedAddress) {
			utils.ErrorResponse(c, http.StatusBadRequest, "Unsupported printer address", err)
			return
		}
		utils.ErrorResponse(c, utils.ErrorStatus(err), "Failed to read printer status", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Status retrieved", status)
}

// Print prints the uploaded images
// @Summary Print labels
// @Description Print every uploaded image, in order, the requested number of times
// @Tags Printer
// @Accept multipart/form-data
// @Produce json
// @Param images formData file true "Label images, printed in order"
// @Param device formData string false "Printer address"
// @Param copies formData int false "Copies of the whole image set" default(1)
// @Param threshold formData int false "Luminance below which a pixel prints black" default(128)
// @Param autocut formData bool false "Cut after the pages of every copy"
// @Param autocut_every formData int false "Pages between cuts, defaults to the number of images"
// @Param margin formData int false "Feed margin in dots"
// @Param media_type formData string false "continuous, die-cut or a numeric code"
// @Param media_width formData int false "Media width in mm"
// @Param media_length formData int false "Media length in mm"
// @Param quality formData bool false "Give priority to print quality"
// @Param dither formData bool false "Dither instead of thresholding"
// @Param fit formData bool false "Scale images down to the print head width"
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Job printed"
// @Failure 400 {object} utils.APIResponse "Invalid request"
// @Failure 409 {object} utils.APIResponse "Printer busy"
// @Failure 422 {object} utils.APIResponse "Image cannot be printed"
// @Failure 502 {object} utils.APIResponse "Printer reported error(s)"
// @Failure 504 {object} utils.APIResponse "Printer stopped responding"
// @Router /printer/print [post]
func (h *PrinterHandler) Print(c *gin.Context) {
	limit := h.maxUploadMB << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.Request.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			utils.ErrorResponse(c, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return
		}
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}

	req, err := h.parsePrintForm(c)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid print request", err)
		return
	}

	job, err := h.printService.Print(c.Request.Context(), req)
	if err != nil {
		if job == nil {
			if errors.Is(err, service.ErrUnsupportedAddress) || errors.Is(err, service.ErrNoImages) {
				utils.ErrorResponse(c, http.StatusBadRequest, "Invalid print request", err)
				return
			}
			utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to start print job", err)
			return
		}

		status := utils.ErrorStatus(err)
		message := "Print job failed"
		var deviceErr *driver.DeviceError
		switch {
		case errors.As(err, &deviceErr):
			message = fmt.Sprintf("Printer reported error(s): %s", brother.ErrorsLabel(deviceErr.Errors))
		case errors.Is(err, driver.ErrProtocolTimeout):
			message = "Printer stopped responding"
		}
		h.logger.Warn("Print job failed",
			zap.String("job_id", job.ID.String()),
			zap.Int("http_status", status),
			zap.Error(err),
		)
		c.JSON(status, utils.APIResponse{
			Success: false,
			Message: message,
			Data:    job,
			Error: &utils.APIError{
				Code:    utils.ErrorCode(status),
				Message: message,
				Details: err.Error(),
			},
			Timestamp: time.Now(),
			RequestID: c.GetString("request_id"),
		})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Job printed", job)
}

// parsePrintForm reads the uploads and options of a print request
func (h *PrinterHandler) parsePrintForm(c *gin.Context) (*service.PrintRequest, error) {
	form := c.Request.MultipartForm
	if form == nil || len(form.File[imagesField]) == 0 {
		return nil, service.ErrNoImages
	}

	req := &service.PrintRequest{
		Device: c.PostForm("device"),
		Copies: 1,
		Config: driver.DefaultPrintConfig(),
	}
	req.Config.Threshold = h.threshold

	for _, header := range form.File[imagesField] {
		data, err := readUpload(header)
		if err != nil {
			return nil, fmt.Errorf("failed to read upload '%s': %w", header.Filename, err)
		}
		req.Uploads = append(req.Uploads, service.Upload{Name: header.Filename, Data: data})
	}

	fields := formFields{c: c}
	if v, ok := fields.uintValue("copies", 1, 1000); ok {
		req.Copies = int(v)
	}
	if v, ok := fields.uintValue("threshold", 0, 255); ok {
		req.Config.Threshold = uint8(v)
	}
	if v, ok := fields.uintValue("margin", 0, 0xffff); ok {
		margin := uint16(v)
		req.Options.Margin = &margin
	}
	if v, ok := fields.boolValue("autocut"); ok && v {
		req.Options.AutoCut = true
		req.Options.AutoCutEvery = uint8(min(len(req.Uploads), 255))
		if every, ok := fields.uintValue("autocut_every", 1, 255); ok {
			req.Options.AutoCutEvery = uint8(every)
		}
	}
	if s := c.PostForm("media_type"); s != "" {
		mediaType, err := brother.ParseMediaType(s)
		if err != nil {
			return nil, err
		}
		req.Config = req.Config.WithMediaType(mediaType)
	}
	if v, ok := fields.uintValue("media_width", 1, 255); ok {
		req.Config = req.Config.WithMediaWidth(uint8(v))
	}
	if v, ok := fields.uintValue("media_length", 1, 255); ok {
		req.Config = req.Config.WithMediaLength(uint8(v))
	}
	if v, ok := fields.boolValue("quality"); ok && v {
		req.Config.Flags |= driver.PrintConfigQualityFirst
	}
	if v, ok := fields.boolValue("dither"); ok {
		req.Dither = &v
	}
	if v, ok := fields.boolValue("fit"); ok {
		req.ScaleToFit = &v
	}

	if fields.err != nil {
		return nil, fields.err
	}
	return req, nil
}

func readUpload(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// formFields parses optional form values, keeping the first error
type formFields struct {
	c   *gin.Context
	err error
}

func (f *formFields) uintValue(name string, lo, hi uint64) (uint64, bool) {
	s := f.c.PostForm(name)
	if s == "" || f.err != nil {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v < lo || v > hi {
		f.err = fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
		return 0, false
	}
	return v, true
}

func (f *formFields) boolValue(name string) (bool, bool) {
	s := f.c.PostForm(name)
	if s == "" || f.err != nil {
		return false, false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		f.err = fmt.Errorf("%s must be a boolean", name)
		return false, false
	}
	return v, true
}
