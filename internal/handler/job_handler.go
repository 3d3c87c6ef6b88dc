// internal/handler/job_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ql-service/internal/model"
	"ql-service/internal/repository"
	"ql-service/internal/service"
	"ql-service/internal/utils"
)

// JobHandler serves the print job history
type JobHandler struct {
	printService *service.PrintService
	logger       *utils.ServiceLogger
}

// NewJobHandler creates a new job handler
func NewJobHandler(printService *service.PrintService, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		printService: printService,
		logger:       utils.NewServiceLogger(logger, "job-handler"),
	}
}

// Pagination describes one page of a listing
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// GetJob returns one job
// @Summary Get print job
// @Tags Jobs
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} utils.APIResponse{data=model.PrintJob} "Job retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid job ID"
// @Failure 404 {object} utils.APIResponse "Job not found"
// @Router /jobs/{id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid job ID", err)
		return
	}

	job, err := h.printService.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Job not found", err)
			return
		}
		h.logger.Error("Failed to get job", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get job", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Job retrieved", job)
}

// ListJobs lists jobs with filtering
// @Summary List print jobs
// @Description Get the print job history, newest first
// @Tags Jobs
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Items per page" default(20)
// @Param device query string false "Filter by printer address"
// @Param status query string false "Filter by status" Enums(PENDING, PRINTING, SUCCESS, FAILED, TIMEOUT)
// @Param start_date query string false "Start date filter (RFC3339)"
// @Param end_date query string false "End date filter (RFC3339)"
// @Success 200 {object} utils.APIResponse{data=object{jobs=[]model.PrintJob,pagination=Pagination}} "Jobs retrieved"
// @Failure 400 {object} utils.APIResponse "Invalid filter"
// @Failure 500 {object} utils.APIResponse "Internal server error"
// @Router /jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := &repository.JobFilter{Page: 1, PerPage: 20}

	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		}
	}
	if perPage := c.Query("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil && pp > 0 && pp <= 100 {
			filter.PerPage = pp
		}
	}

	validationErrors := map[string]string{}
	if device := c.Query("device"); device != "" {
		filter.Device = &device
	}
	if status := c.Query("status"); status != "" {
		s := model.JobStatus(status)
		switch s {
		case model.JobStatusPending, model.JobStatusPrinting, model.JobStatusSuccess,
			model.JobStatusFailed, model.JobStatusTimeout:
			filter.Status = &s
		default:
			validationErrors["status"] = "unknown job status"
		}
	}
	if startDate := c.Query("start_date"); startDate != "" {
		if date, err := time.Parse(time.RFC3339, startDate); err == nil {
			filter.StartDate = &date
		} else {
			validationErrors["start_date"] = "must be RFC3339"
		}
	}
	if endDate := c.Query("end_date"); endDate != "" {
		if date, err := time.Parse(time.RFC3339, endDate); err == nil {
			filter.EndDate = &date
		} else {
			validationErrors["end_date"] = "must be RFC3339"
		}
	}
	if len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	jobs, total, err := h.printService.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list jobs", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Jobs retrieved", gin.H{
		"jobs": jobs,
		"pagination": Pagination{
			Page:       filter.Page,
			PerPage:    filter.PerPage,
			Total:      total,
			TotalPages: (total + filter.PerPage - 1) / filter.PerPage,
		},
	})
}
