package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/dto"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/export"
)

type sessionStore interface {
	CreateSession(ctx context.Context, session *models.AttendanceSession) error
	FindSession(ctx context.Context, id string) (*models.AttendanceSession, error)
	ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error)
}

type qrRenderer interface {
	Render(payload string) ([]byte, error)
}

// SessionServiceConfig tunes QR issuance.
type SessionServiceConfig struct {
	TokenTTL      time.Duration
	ImageSize     int
	APIPrefix     string
	PublicBaseURL string
}

// SessionService issues QR attendance sessions for lecturers.
type SessionService struct {
	courses   attendance.CourseReader
	sessions  sessionStore
	qr        qrRenderer
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       SessionServiceConfig
	now       func() time.Time
}

// NewSessionService constructs a SessionService. A nil renderer defaults to PNG QR codes.
func NewSessionService(courses attendance.CourseReader, sessions sessionStore, qr qrRenderer, validate *validator.Validate, logger *zap.Logger, cfg SessionServiceConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 10 * time.Minute
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	if qr == nil {
		qr = export.NewQRExporter(cfg.ImageSize)
	}
	return &SessionService{
		courses:   courses,
		sessions:  sessions,
		qr:        qr,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithCache makes Issue drop cached dashboard totals.
func (s *SessionService) WithCache(cache *CacheService) *SessionService {
	s.cache = cache
	return s
}

// Issue opens a new session for the course and returns the QR payload to display.
func (s *SessionService) Issue(ctx context.Context, courseID, actorID string, req dto.IssueSessionRequest) (*dto.SessionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "ttlMinutes must be between 1 and 1440")
	}
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}

	ttl := s.cfg.TokenTTL
	if req.TTLMinutes > 0 {
		ttl = time.Duration(req.TTLMinutes) * time.Minute
	}
	generatedAt := s.now().UTC()
	expiresAt := generatedAt.Add(ttl)
	session := &models.AttendanceSession{
		ID:          uuid.NewString(),
		CourseID:    course.ID,
		GeneratedAt: generatedAt,
		ExpiresAt:   &expiresAt,
		CreatedBy:   actorID,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create attendance session")
	}

	s.cache.Invalidate(ctx, "dashboard:*")

	payload, err := s.payload(*session, *course)
	if err != nil {
		return nil, err
	}
	s.logger.Info("attendance session issued",
		zap.String("session_id", session.ID),
		zap.String("course_id", course.ID),
		zap.Time("expires_at", expiresAt))

	resp := dto.NewSessionResponse(*session, *course, payload, s.imageURL(session.ID))
	return &resp, nil
}

// List returns the course's sessions oldest first, with their scan counts.
func (s *SessionService) List(ctx context.Context, courseID string) ([]dto.SessionResponse, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	sessions, err := s.sessions.ListSessions(ctx, course.ID)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list attendance sessions")
	}
	sorted := attendance.SortSessions(sessions)
	items := make([]dto.SessionResponse, 0, len(sorted))
	for _, session := range sorted {
		payload, err := s.payload(session, *course)
		if err != nil {
			return nil, err
		}
		items = append(items, dto.NewSessionResponse(session, *course, payload, s.imageURL(session.ID)))
	}
	return items, nil
}

// QRImage renders the session's payload as a PNG.
func (s *SessionService) QRImage(ctx context.Context, sessionID string) ([]byte, error) {
	session, err := s.sessions.FindSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance session not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load attendance session")
	}
	course, err := s.loadCourse(ctx, session.CourseID)
	if err != nil {
		return nil, err
	}
	payload, err := s.payload(*session, *course)
	if err != nil {
		return nil, err
	}
	png, err := s.qr.Render(payload)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to render qr code")
	}
	return png, nil
}

func (s *SessionService) loadCourse(ctx context.Context, courseID string) (*models.Course, error) {
	course, err := s.courses.FindCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load course")
	}
	return course, nil
}

func (s *SessionService) payload(session models.AttendanceSession, course models.Course) (string, error) {
	payload, err := attendance.EncodeToken(models.QRToken{
		SessionID:  session.ID,
		CourseID:   course.ID,
		CourseCode: course.CourseCode,
		ExpiresAt:  session.ExpiresAt,
	})
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrInternal, "failed to encode qr payload")
	}
	return payload, nil
}

func (s *SessionService) imageURL(sessionID string) string {
	return fmt.Sprintf("%s%s/sessions/%s/qr.png", s.cfg.PublicBaseURL, strings.TrimRight(s.cfg.APIPrefix, "/"), sessionID)
}
