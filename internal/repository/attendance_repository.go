package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/models"
)

const sessionColumns = `id, course_id, generated_at, expires_at, created_by`

// AttendanceRepository is the Postgres attendance record store.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

var _ attendance.Store = (*AttendanceRepository)(nil)

// CreateSession inserts a new QR generation event.
func (r *AttendanceRepository) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.GeneratedAt.IsZero() {
		session.GeneratedAt = time.Now()
	}
	session.GeneratedAt = session.GeneratedAt.UTC()
	if session.ExpiresAt != nil {
		utc := session.ExpiresAt.UTC()
		session.ExpiresAt = &utc
	}
	const query = `INSERT INTO attendance_sessions (id, course_id, generated_at, expires_at, created_by)
VALUES (:id, :course_id, :generated_at, :expires_at, :created_by)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create attendance session: %w", err)
	}
	return nil
}

// FindSession returns a session without its scans.
func (r *AttendanceRepository) FindSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE id = $1`
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attendance session: %w", err)
	}
	return &session, nil
}

// AppendScan records a scan unless the student already scanned the session.
// The session row is share-locked so it cannot disappear mid-insert; the
// primary key on (session_id, student_id) makes the insert idempotent.
func (r *AttendanceRepository) AppendScan(ctx context.Context, sessionID, courseID, studentID string, scannedAt time.Time) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin append scan: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			tx.Rollback() //nolint:errcheck
		}
	}()

	var lockedID string
	const lockQuery = `SELECT id FROM attendance_sessions WHERE id = $1 AND course_id = $2 FOR SHARE`
	if err := tx.GetContext(ctx, &lockedID, lockQuery, sessionID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return false, attendance.ErrSessionNotFound
		}
		return false, fmt.Errorf("lock attendance session: %w", err)
	}

	const insertQuery = `INSERT INTO attendance_scans (session_id, student_id, scanned_at)
VALUES ($1, $2, $3)
ON CONFLICT (session_id, student_id) DO NOTHING RETURNING student_id`
	created := true
	var inserted string
	if err := tx.QueryRowxContext(ctx, insertQuery, sessionID, studentID, scannedAt.UTC()).Scan(&inserted); err != nil {
		if err != sql.ErrNoRows {
			return false, fmt.Errorf("insert attendance scan: %w", err)
		}
		created = false
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit append scan: %w", err)
	}
	commit = true
	return created, nil
}

type sessionScanRow struct {
	SessionID string    `db:"session_id"`
	StudentID string    `db:"student_id"`
	ScannedAt time.Time `db:"scanned_at"`
}

// ListSessions returns every session of the course with its scans in arrival order.
func (r *AttendanceRepository) ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM attendance_sessions WHERE course_id = $1 ORDER BY generated_at ASC`
	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, courseID); err != nil {
		return nil, fmt.Errorf("list attendance sessions: %w", err)
	}
	if len(sessions) == 0 {
		return sessions, nil
	}

	const scanQuery = `SELECT sc.session_id, sc.student_id, sc.scanned_at
FROM attendance_scans sc
JOIN attendance_sessions s ON s.id = sc.session_id
WHERE s.course_id = $1
ORDER BY sc.scanned_at ASC`
	var rows []sessionScanRow
	if err := r.db.SelectContext(ctx, &rows, scanQuery, courseID); err != nil {
		return nil, fmt.Errorf("list attendance scans: %w", err)
	}

	index := make(map[string]int, len(sessions))
	for i := range sessions {
		sessions[i].Scans = []models.Scan{}
		index[sessions[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.SessionID]; ok {
			sessions[i].Scans = append(sessions[i].Scans, models.Scan{StudentID: row.StudentID, ScannedAt: row.ScannedAt})
		}
	}
	return sessions, nil
}

// ListEnrolled returns the roster of a course.
func (r *AttendanceRepository) ListEnrolled(ctx context.Context, courseID string) ([]models.Student, error) {
	const query = `SELECT u.id, u.first_name, u.last_name, u.id_number, u.email
FROM course_enrollments ce
JOIN users u ON u.id = ce.student_id
WHERE ce.course_id = $1 AND u.role = 'STUDENT'`
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, courseID); err != nil {
		return nil, fmt.Errorf("list enrolled students: %w", err)
	}
	return students, nil
}

// CountSessions returns the number of sessions across all courses.
func (r *AttendanceRepository) CountSessions(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM attendance_sessions`); err != nil {
		return 0, fmt.Errorf("count attendance sessions: %w", err)
	}
	return total, nil
}
