package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/qr-attendance-api/internal/dto"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	"github.com/noah-isme/qr-attendance-api/internal/service"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/response"
)

type reportService interface {
	Build(ctx context.Context, courseID string) (*service.CourseReport, error)
	Response(report *service.CourseReport) dto.ReportResponse
	File(ctx context.Context, courseID string, format models.ExportFormat) (*service.ReportFile, error)
}

type exportJobService interface {
	CreateJob(ctx context.Context, courseID, actorID string, req dto.ExportRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, id, actorID string, role models.UserRole) (*dto.ExportJobResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ReportHandler exposes course attendance reports and exports.
type ReportHandler struct {
	reports reportService
	exports exportJobService
}

// NewReportHandler constructs handler. exports may be nil when async exports are disabled.
func NewReportHandler(reports reportService, exports exportJobService) *ReportHandler {
	return &ReportHandler{reports: reports, exports: exports}
}

// CourseReport godoc
// @Summary Course attendance report
// @Description Presence matrix, statistics and recent trend for a course
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /reports/courses/{id} [get]
func (h *ReportHandler) CourseReport(c *gin.Context) {
	start := time.Now()
	report, err := h.reports.Build(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := response.Meta{
		"processing_time_ms": time.Since(start).Milliseconds(),
	}
	if report.Empty() {
		meta["message"] = service.ReportEmptyMessage
	}
	response.JSON(c, http.StatusOK, h.reports.Response(report), meta)
}

// CourseCSV godoc
// @Summary Download course attendance as CSV
// @Tags Reports
// @Produce text/csv
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {file} binary
// @Router /reports/courses/{id}/csv [get]
func (h *ReportHandler) CourseCSV(c *gin.Context) {
	h.download(c, models.ExportFormatCSV)
}

// CoursePDF godoc
// @Summary Download course attendance as PDF
// @Tags Reports
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Success 200 {file} binary
// @Router /reports/courses/{id}/pdf [get]
func (h *ReportHandler) CoursePDF(c *gin.Context) {
	h.download(c, models.ExportFormatPDF)
}

func (h *ReportHandler) download(c *gin.Context, format models.ExportFormat) {
	file, err := h.reports.File(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// CreateExport godoc
// @Summary Queue an asynchronous course export
// @Tags Reports
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Course ID"
// @Param payload body dto.ExportRequest true "Export format"
// @Success 202 {object} response.Envelope
// @Router /reports/courses/{id}/exports [post]
func (h *ReportHandler) CreateExport(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.ErrExportsDisabled)
		return
	}
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	var req dto.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid export payload"))
		return
	}
	res, err := h.exports.CreateJob(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, res)
}

// ExportStatus godoc
// @Summary Export job status
// @Tags Reports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Export job ID"
// @Success 200 {object} response.Envelope
// @Router /reports/exports/{id} [get]
func (h *ReportHandler) ExportStatus(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.ErrExportsDisabled)
		return
	}
	claims := mustClaims(c)
	if claims == nil {
		return
	}
	res, err := h.exports.GetStatus(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Download godoc
// @Summary Download a finished export through its signed link
// @Tags Reports
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /export/{token} [get]
func (h *ReportHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.ErrExportsDisabled)
		return
	}
	dl, err := h.exports.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer dl.File.Close() //nolint:errcheck

	contentType := "text/csv; charset=utf-8"
	if dl.Format == models.ExportFormatPDF {
		contentType = "application/pdf"
	}
	response.Stream(c, dl.Filename, contentType, dl.File)
}
