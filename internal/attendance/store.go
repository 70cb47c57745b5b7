package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// ErrSessionNotFound is returned by stores when a session does not exist for the course.
var ErrSessionNotFound = errors.New("attendance session not found")

// ScanAppender performs the atomic insert-if-absent of an accepted scan.
// created is false when the student already scanned the session.
type ScanAppender interface {
	AppendScan(ctx context.Context, sessionID, courseID, studentID string, scannedAt time.Time) (created bool, err error)
}

// SessionLister lists a course's sessions. Stores implementing it let tokens
// without a sessionId resolve to the course's open session.
type SessionLister interface {
	ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error)
}

// Store is the attendance record store consumed by verification and reporting.
type Store interface {
	ScanAppender
	SessionLister
	ListEnrolled(ctx context.Context, courseID string) ([]models.Student, error)
}

// StoreError marks a failure of the backing store, as opposed to a rejected scan.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("attendance store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// CourseReader loads course snapshots including their enrollment set.
type CourseReader interface {
	FindCourse(ctx context.Context, id string) (*models.Course, error)
}
