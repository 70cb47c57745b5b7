package dto

import (
	"time"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// ScanRequest captures POST /attendance/scan payload.
type ScanRequest struct {
	QRData   string `json:"qrData" validate:"required,max=2048"`
	CourseID string `json:"courseId" validate:"required,max=64"`
}

// Scan outcome statuses returned to the student.
const (
	ScanStatusRecorded       = "recorded"
	ScanStatusAlreadyScanned = "already_scanned"
)

// ScanResponse reports the outcome of an accepted or repeated scan.
type ScanResponse struct {
	Status     string     `json:"status"`
	Message    string     `json:"message"`
	SessionID  string     `json:"sessionId"`
	CourseID   string     `json:"courseId"`
	CourseCode string     `json:"courseCode"`
	ScannedAt  *time.Time `json:"scannedAt,omitempty"`
}

// IssueSessionRequest captures POST /courses/:id/sessions payload.
// TTLMinutes overrides the configured QR lifetime when set.
type IssueSessionRequest struct {
	TTLMinutes int `json:"ttlMinutes" validate:"omitempty,min=1,max=1440"`
}

// SessionResponse describes an issued QR session.
type SessionResponse struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"courseId"`
	CourseCode  string     `json:"courseCode"`
	GeneratedAt time.Time  `json:"generatedAt"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	QRData      string     `json:"qrData"`
	QRImageURL  string     `json:"qrImageUrl"`
	ScanCount   int        `json:"scanCount"`
}

// NewSessionResponse maps a stored session into its response shape.
func NewSessionResponse(session models.AttendanceSession, course models.Course, qrData, imageURL string) SessionResponse {
	return SessionResponse{
		ID:          session.ID,
		CourseID:    session.CourseID,
		CourseCode:  course.CourseCode,
		GeneratedAt: session.GeneratedAt,
		ExpiresAt:   session.ExpiresAt,
		QRData:      qrData,
		QRImageURL:  imageURL,
		ScanCount:   len(session.Scans),
	}
}
