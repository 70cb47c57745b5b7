package dto

import (
	"time"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// ReportCourse identifies the course a report belongs to.
type ReportCourse struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// ReportSession is one column of the presence matrix.
type ReportSession struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	GeneratedAt time.Time `json:"generatedAt"`
	Present     int       `json:"present"`
}

// ReportRow is one student line of the presence matrix.
type ReportRow struct {
	StudentID string            `json:"studentId"`
	IDNumber  string            `json:"idNumber"`
	Name      string            `json:"name"`
	Presence  []models.Presence `json:"presence"`
	Present   int               `json:"present"`
}

// ReportResponse is the JSON rendering of a course attendance report.
type ReportResponse struct {
	Course      ReportCourse           `json:"course"`
	Sessions    []ReportSession        `json:"sessions"`
	Rows        []ReportRow            `json:"rows"`
	Stats       models.AttendanceStats `json:"stats"`
	Trend       []models.TrendPoint    `json:"trend"`
	Timezone    string                 `json:"timezone"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// ExportRequest captures POST /reports/courses/:id/exports payload.
type ExportRequest struct {
	Format models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
}

// ExportJobResponse exposes export job progress metadata.
type ExportJobResponse struct {
	ID        string              `json:"id"`
	CourseID  string              `json:"courseId"`
	Format    models.ExportFormat `json:"format"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	Error     *string             `json:"error,omitempty"`
}

// NewExportJobResponse maps a stored job into its response shape.
func NewExportJobResponse(job models.ExportJob) *ExportJobResponse {
	resp := &ExportJobResponse{
		ID:        job.ID,
		CourseID:  job.CourseID,
		Format:    job.Format,
		Status:    job.Status,
		Progress:  job.Progress,
		ResultURL: job.ResultURL,
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp
}
