package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/dto"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/logger"
)

// ScanService turns student scan requests into verified attendance records.
type ScanService struct {
	courses   attendance.CourseReader
	verifier  *attendance.Verifier
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewScanService constructs a ScanService.
func NewScanService(courses attendance.CourseReader, store attendance.ScanAppender, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ScanService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ScanService{
		courses:   courses,
		verifier:  attendance.NewVerifier(store, logger),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// Scan verifies the submitted QR payload for the authenticated student.
// A repeated scan is not an error: it returns status already_scanned.
func (s *ScanService) Scan(ctx context.Context, studentID string, req dto.ScanRequest) (*dto.ScanResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "qrData and courseId are required")
	}
	if studentID == "" {
		return nil, appErrors.ErrUnauthorized
	}

	course, err := s.courses.FindCourse(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load course")
	}

	attempt := models.ScanAttempt{
		RawPayload:      req.QRData,
		ClaimedCourseID: req.CourseID,
		StudentID:       studentID,
		PresentedAt:     s.now(),
	}
	log := logger.FromContext(ctx, s.logger)
	result, err := s.verifier.Verify(ctx, attempt, *course)
	if err != nil {
		s.metrics.RecordScanOutcome(string(attendance.ReasonStoreFailure))
		log.Error("scan could not be recorded",
			zap.String("course_id", course.ID),
			zap.String("student_id", studentID),
			zap.Error(err))
		return nil, appErrors.WrapAs(err, appErrors.ErrStore, result.Detail)
	}

	resp := &dto.ScanResponse{
		SessionID:  result.SessionID,
		CourseID:   course.ID,
		CourseCode: course.CourseCode,
	}

	switch {
	case result.Accepted:
		s.metrics.RecordScanOutcome("accepted")
		log.Info("attendance recorded",
			zap.String("session_id", result.SessionID),
			zap.String("course_id", course.ID),
			zap.String("student_id", studentID))
		resp.Status = dto.ScanStatusRecorded
		resp.Message = fmt.Sprintf("Attendance recorded for %s.", course.CourseCode)
		if result.Scan != nil {
			scannedAt := result.Scan.ScannedAt
			resp.ScannedAt = &scannedAt
		}
		return resp, nil
	case result.Reason == attendance.ReasonAlreadyScanned:
		s.metrics.RecordScanOutcome(string(result.Reason))
		resp.Status = dto.ScanStatusAlreadyScanned
		resp.Message = result.Detail
		return resp, nil
	default:
		s.metrics.RecordScanOutcome(string(result.Reason))
		log.Debug("scan rejected",
			zap.String("reason", string(result.Reason)),
			zap.String("course_id", course.ID),
			zap.String("student_id", studentID))
		return nil, rejectionError(result)
	}
}

func rejectionError(result attendance.Result) error {
	var base *appErrors.Error
	switch result.Reason {
	case attendance.ReasonMalformedPayload:
		base = appErrors.ErrMalformedPayload
	case attendance.ReasonWrongCourse:
		base = appErrors.ErrWrongCourse
	case attendance.ReasonNotEnrolled:
		base = appErrors.ErrNotEnrolled
	case attendance.ReasonExpired:
		base = appErrors.ErrExpired
	default:
		base = appErrors.ErrStore
	}
	return appErrors.Clone(base, result.Detail)
}
