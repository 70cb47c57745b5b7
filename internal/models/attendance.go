package models

import "time"

// QRToken is the payload embedded in a lecturer-issued QR code.
type QRToken struct {
	SessionID  string     `json:"sessionId"`
	CourseID   string     `json:"courseId"`
	CourseCode string     `json:"courseCode,omitempty"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// Scan is a single accepted presence record within a session.
type Scan struct {
	StudentID string    `db:"student_id" json:"student_id"`
	ScannedAt time.Time `db:"scanned_at" json:"scanned_at"`
}

// AttendanceSession is one QR generation event for a course.
type AttendanceSession struct {
	ID          string     `db:"id" json:"id"`
	CourseID    string     `db:"course_id" json:"course_id"`
	GeneratedAt time.Time  `db:"generated_at" json:"generated_at"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by,omitempty"`
	Scans       []Scan     `db:"-" json:"scans"`
}

// HasScan reports whether the student already scanned this session.
func (s AttendanceSession) HasScan(studentID string) bool {
	for _, scan := range s.Scans {
		if scan.StudentID == studentID {
			return true
		}
	}
	return false
}

// ScanAttempt is a transient scan request consumed once by the verifier.
type ScanAttempt struct {
	RawPayload      string
	ClaimedCourseID string
	StudentID       string
	PresentedAt     time.Time
}

// Presence is the value of one presence matrix cell.
type Presence string

const (
	PresencePresent Presence = "Present"
	PresenceAbsent  Presence = "Absent"
)

// ReportMatrix is the student by session presence grid for a course.
// Presence[i][j] refers to Students[i] and Sessions[j].
type ReportMatrix struct {
	Course   Course              `json:"course"`
	Sessions []AttendanceSession `json:"sessions"`
	Students []Student           `json:"students"`
	Presence [][]Presence        `json:"presence"`
}

// AttendanceStats summarises a report matrix.
type AttendanceStats struct {
	TotalStudents  int `json:"total_students"`
	TotalSessions  int `json:"total_sessions"`
	AvgAttendance  int `json:"avg_attendance"`
	AttendanceRate int `json:"attendance_rate"`
}

// TrendPoint is one bar of the attendance trend chart.
type TrendPoint struct {
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
	Count     int    `json:"count"`
}
