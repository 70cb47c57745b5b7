package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// Reason identifies why a scan attempt did not produce a new record.
type Reason string

const (
	ReasonMalformedPayload Reason = "MALFORMED_PAYLOAD"
	ReasonWrongCourse      Reason = "WRONG_COURSE"
	ReasonNotEnrolled      Reason = "NOT_ENROLLED"
	ReasonExpired          Reason = "EXPIRED"
	ReasonAlreadyScanned   Reason = "ALREADY_SCANNED"
	ReasonStoreFailure     Reason = "STORE_FAILURE"
)

// Rejection carries a reason and the message shown to the student.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

// Result is the outcome of a verified scan attempt.
type Result struct {
	Accepted  bool         `json:"accepted"`
	Reason    Reason       `json:"reason,omitempty"`
	Detail    string       `json:"detail,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Scan      *models.Scan `json:"scan,omitempty"`
}

// Verifier decides whether scan attempts become attendance records.
type Verifier struct {
	store  ScanAppender
	logger *zap.Logger
}

// NewVerifier constructs a verifier appending accepted scans to store.
func NewVerifier(store ScanAppender, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{store: store, logger: logger}
}

// Check runs the side-effect free checks: payload shape, course identity,
// enrollment and expiry, in that order. The first failing check wins.
func (v *Verifier) Check(attempt models.ScanAttempt, course models.Course) (*models.QRToken, *Rejection) {
	token, err := ParseToken(attempt.RawPayload)
	if err != nil {
		return nil, &Rejection{Reason: ReasonMalformedPayload, Detail: "Invalid QR code format"}
	}

	if token.CourseID != attempt.ClaimedCourseID || attempt.ClaimedCourseID != course.ID {
		payloadCode := token.CourseCode
		if payloadCode == "" {
			payloadCode = "another course"
		}
		return token, &Rejection{
			Reason: ReasonWrongCourse,
			Detail: fmt.Sprintf("This QR code is for %s. You are trying to mark attendance for %s.", payloadCode, course.CourseCode),
		}
	}

	if !course.IsEnrolled(attempt.StudentID) {
		code := course.CourseCode
		if code == "" {
			code = "this course"
		}
		return token, &Rejection{
			Reason: ReasonNotEnrolled,
			Detail: fmt.Sprintf("You are not enrolled in %s. Attendance cannot be marked.", code),
		}
	}

	if token.ExpiresAt == nil {
		v.logger.Debug("qr token carries no expiry", zap.String("session_id", token.SessionID))
	}
	if !IsValid(token, attempt.PresentedAt) {
		return token, &Rejection{
			Reason: ReasonExpired,
			Detail: "This QR code has expired. Please ask your lecturer to generate a new one.",
		}
	}
	return token, nil
}

// Verify checks the attempt and, when every check passes, appends the scan.
// A duplicate scan yields ReasonAlreadyScanned without touching the store's data.
// Store failures return a ReasonStoreFailure result together with a *StoreError.
func (v *Verifier) Verify(ctx context.Context, attempt models.ScanAttempt, course models.Course) (Result, error) {
	token, rejection := v.Check(attempt, course)
	if rejection != nil {
		result := Result{Reason: rejection.Reason, Detail: rejection.Detail}
		if token != nil {
			result.SessionID = token.SessionID
		}
		return result, nil
	}

	if token.SessionID == "" {
		sessionID, err := v.openSession(ctx, course.ID, attempt.PresentedAt)
		if err != nil {
			return Result{
				Reason: ReasonStoreFailure,
				Detail: "Attendance could not be recorded. Please scan again.",
			}, &StoreError{Op: "resolve session", Err: err}
		}
		if sessionID == "" {
			return Result{
				Reason: ReasonMalformedPayload,
				Detail: fmt.Sprintf("There is no open attendance session for %s.", course.CourseCode),
			}, nil
		}
		token.SessionID = sessionID
	}

	scannedAt := attempt.PresentedAt.UTC()
	created, err := v.store.AppendScan(ctx, token.SessionID, course.ID, attempt.StudentID, scannedAt)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return Result{
			Reason:    ReasonMalformedPayload,
			Detail:    fmt.Sprintf("This QR code does not match an attendance session of %s.", course.CourseCode),
			SessionID: token.SessionID,
		}, nil
	case err != nil:
		return Result{
			Reason:    ReasonStoreFailure,
			Detail:    "Attendance could not be recorded. Please scan again.",
			SessionID: token.SessionID,
		}, &StoreError{Op: "append scan", Err: err}
	case !created:
		return Result{
			Reason:    ReasonAlreadyScanned,
			Detail:    "Your attendance has already been recorded for this session.",
			SessionID: token.SessionID,
		}, nil
	}

	return Result{
		Accepted:  true,
		SessionID: token.SessionID,
		Scan:      &models.Scan{StudentID: attempt.StudentID, ScannedAt: scannedAt},
	}, nil
}

// openSession returns the most recently generated session of the course that
// is open at the given time, or "" when there is none or the store cannot list sessions.
func (v *Verifier) openSession(ctx context.Context, courseID string, at time.Time) (string, error) {
	lister, ok := v.store.(SessionLister)
	if !ok {
		return "", nil
	}
	sessions, err := lister.ListSessions(ctx, courseID)
	if err != nil {
		return "", err
	}
	var open *models.AttendanceSession
	for i := range sessions {
		s := &sessions[i]
		if s.GeneratedAt.After(at) {
			continue
		}
		if s.ExpiresAt != nil && !at.Before(*s.ExpiresAt) {
			continue
		}
		if open == nil || s.GeneratedAt.After(open.GeneratedAt) {
			open = s
		}
	}
	if open == nil {
		return "", nil
	}
	return open.ID, nil
}
