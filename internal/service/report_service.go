package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/dto"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/export"
)

// ReportEmptyMessage is attached to reports without sessions or students.
const ReportEmptyMessage = "No attendance records found for this course"

type reportDataSource interface {
	ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error)
	ListEnrolled(ctx context.Context, courseID string) ([]models.Student, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ReportServiceConfig controls report rendering.
type ReportServiceConfig struct {
	Location     *time.Location
	FetchTimeout time.Duration
	TrendPoints  int
}

// CourseReport is a built presence matrix with its summaries.
type CourseReport struct {
	Course      models.Course
	Matrix      models.ReportMatrix
	Stats       models.AttendanceStats
	Trend       []models.TrendPoint
	GeneratedAt time.Time
}

// Empty reports whether there is nothing to show.
func (r *CourseReport) Empty() bool {
	return len(r.Matrix.Sessions) == 0 || len(r.Matrix.Students) == 0
}

// ReportFile is a rendered report ready for download.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService builds course attendance reports.
type ReportService struct {
	courses attendance.CourseReader
	store   reportDataSource
	pdf     pdfRenderer
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReportServiceConfig
	now     func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(courses attendance.CourseReader, store reportDataSource, pdf pdfRenderer, metrics *MetricsService, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.TrendPoints <= 0 {
		cfg.TrendPoints = attendance.DefaultTrendPoints
	}
	return &ReportService{
		courses: courses,
		store:   store,
		pdf:     pdf,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// Build fetches sessions and roster for the course and aggregates them.
// Only the fetch is bounded by the configured timeout.
func (s *ReportService) Build(ctx context.Context, courseID string) (*CourseReport, error) {
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	course, err := s.courses.FindCourse(fetchCtx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, s.fetchError(err, "failed to load course")
	}

	sessions, err := s.store.ListSessions(fetchCtx, course.ID)
	if err != nil {
		return nil, s.fetchError(err, "failed to load attendance sessions")
	}
	roster, err := s.store.ListEnrolled(fetchCtx, course.ID)
	if err != nil {
		return nil, s.fetchError(err, "failed to load course roster")
	}
	s.metrics.ObserveStoreCall("report_fetch", time.Since(start))

	matrix := attendance.BuildMatrix(*course, sessions, roster)
	report := &CourseReport{
		Course:      *course,
		Matrix:      matrix,
		Stats:       attendance.ComputeStats(matrix),
		Trend:       attendance.Trend(matrix, s.cfg.Location, s.cfg.TrendPoints),
		GeneratedAt: s.now().UTC(),
	}
	s.metrics.ObserveReportBuild("json", time.Since(start))
	return report, nil
}

// Response maps a report to its JSON representation.
func (s *ReportService) Response(report *CourseReport) dto.ReportResponse {
	m := report.Matrix
	resp := dto.ReportResponse{
		Course: dto.ReportCourse{
			ID:   report.Course.ID,
			Code: report.Course.CourseCode,
			Name: report.Course.CourseName,
		},
		Sessions:    make([]dto.ReportSession, len(m.Sessions)),
		Rows:        make([]dto.ReportRow, len(m.Students)),
		Stats:       report.Stats,
		Trend:       report.Trend,
		Timezone:    s.cfg.Location.String(),
		GeneratedAt: report.GeneratedAt,
	}
	for j, session := range m.Sessions {
		resp.Sessions[j] = dto.ReportSession{
			ID:          session.ID,
			Label:       attendance.SessionLabel(session, s.cfg.Location),
			GeneratedAt: session.GeneratedAt,
			Present:     attendance.SessionPresentCount(m, j),
		}
	}
	for i, student := range m.Students {
		present := 0
		for _, cell := range m.Presence[i] {
			if cell == models.PresencePresent {
				present++
			}
		}
		resp.Rows[i] = dto.ReportRow{
			StudentID: student.ID,
			IDNumber:  student.IDNumber,
			Name:      student.DisplayName(),
			Presence:  m.Presence[i],
			Present:   present,
		}
	}
	if resp.Trend == nil {
		resp.Trend = []models.TrendPoint{}
	}
	return resp
}

// Render serialises a built report in the requested format.
func (s *ReportService) Render(report *CourseReport, format models.ExportFormat) (*ReportFile, error) {
	start := time.Now()
	var (
		data        []byte
		contentType string
		err         error
	)
	switch format {
	case models.ExportFormatCSV:
		var text string
		text, err = attendance.ToCSV(report.Course.CourseName, report.Matrix, s.cfg.Location)
		data = []byte(text)
		contentType = "text/csv; charset=utf-8"
	case models.ExportFormatPDF:
		data, err = s.pdf.Render(attendance.MatrixDataset(report.Course.CourseName, report.Matrix, s.cfg.Location))
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to render report")
	}
	s.metrics.ObserveReportBuild(string(format), time.Since(start))
	return &ReportFile{
		Filename:    ReportFilename(report.Course.CourseCode, report.GeneratedAt, format),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// File builds and renders the course report in one step.
func (s *ReportService) File(ctx context.Context, courseID string, format models.ExportFormat) (*ReportFile, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", format))
	}
	report, err := s.Build(ctx, courseID)
	if err != nil {
		return nil, err
	}
	return s.Render(report, format)
}

// ReportFilename returns "<courseCode>_Attendance_<timestamp>.<ext>" with a UTC timestamp.
func ReportFilename(courseCode string, at time.Time, format models.ExportFormat) string {
	return fmt.Sprintf("%s_Attendance_%s.%s", sanitizeFilename(courseCode), at.UTC().Format("20060102T150405Z"), format)
}

func (s *ReportService) fetchError(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("report fetch timed out", zap.Duration("timeout", s.cfg.FetchTimeout), zap.Error(err))
		return appErrors.WrapAs(err, appErrors.ErrStore, "report data could not be loaded in time")
	}
	s.logger.Error(message, zap.Error(err))
	return appErrors.WrapAs(err, appErrors.ErrStore, message)
}

const maxFilenameRunes = 100

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "course"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "\"", "")
	result := replacer.Replace(raw)
	if utf8.RuneCountInString(result) > maxFilenameRunes {
		return string([]rune(result)[:maxFilenameRunes])
	}
	return result
}
