package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/models"
)

const lockSessionSQL = "SELECT id FROM attendance_sessions WHERE id = $1 AND course_id = $2 FOR SHARE"

func TestAppendScanCreated(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	at := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionSQL)).
		WithArgs("sess-1", "CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))
	mock.ExpectQuery("INSERT INTO attendance_scans").
		WithArgs("sess-1", "S1", at).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("S1"))
	mock.ExpectCommit()

	created, err := repo.AppendScan(context.Background(), "sess-1", "CS101", "S1", at)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScanAlreadyExists(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))
	mock.ExpectQuery("ON CONFLICT \\(session_id, student_id\\) DO NOTHING").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}))
	mock.ExpectCommit()

	created, err := repo.AppendScan(context.Background(), "sess-1", "CS101", "S1", time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScanUnknownSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionSQL)).
		WithArgs("sess-x", "CS101").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.AppendScan(context.Background(), "sess-x", "CS101", "S1", time.Now())
	assert.ErrorIs(t, err, attendance.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendScanInsertFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sess-1"))
	mock.ExpectQuery("INSERT INTO attendance_scans").WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.AppendScan(context.Background(), "sess-1", "CS101", "S1", time.Now())
	require.Error(t, err)
	assert.NotErrorIs(t, err, attendance.ErrSessionNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsGroupsScans(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)
	day1 := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(48 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE course_id = $1 ORDER BY generated_at ASC")).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "generated_at", "expires_at", "created_by"}).
			AddRow("s1", "CS101", day1, nil, "lect-1").
			AddRow("s2", "CS101", day2, day2.Add(10*time.Minute), "lect-1"))
	mock.ExpectQuery("FROM attendance_scans sc").
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "student_id", "scanned_at"}).
			AddRow("s1", "S2", day1.Add(time.Minute)).
			AddRow("s1", "S1", day1.Add(2*time.Minute)).
			AddRow("s2", "S1", day2.Add(time.Minute)))

	sessions, err := repo.ListSessions(context.Background(), "CS101")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Nil(t, sessions[0].ExpiresAt)
	require.Len(t, sessions[0].Scans, 2)
	assert.Equal(t, "S2", sessions[0].Scans[0].StudentID)
	assert.True(t, sessions[1].HasScan("S1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsEmpty(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("FROM attendance_sessions WHERE course_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_id", "generated_at", "expires_at", "created_by"}))

	sessions, err := repo.ListSessions(context.Background(), "CS101")
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListEnrolled(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery("FROM course_enrollments ce").
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "id_number", "email"}).
			AddRow("S1", "S1", "Lee", "1001", "s1@example.com"))

	students, err := repo.ListEnrolled(context.Background(), "CS101")
	require.NoError(t, err)
	require.Len(t, students, 1)
	assert.Equal(t, "Lee, S1", students[0].DisplayName())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSessionNormalisesToUTC(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectExec("INSERT INTO attendance_sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	local := time.Date(2025, time.January, 5, 17, 0, 0, 0, time.FixedZone("UTC+8", 8*60*60))
	expires := local.Add(10 * time.Minute)
	session := &models.AttendanceSession{CourseID: "CS101", GeneratedAt: local, ExpiresAt: &expires, CreatedBy: "lect-1"}
	require.NoError(t, repo.CreateSession(context.Background(), session))
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, time.UTC, session.GeneratedAt.Location())
	assert.Equal(t, time.UTC, session.ExpiresAt.Location())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindCourseLoadsEnrollment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, course_code, course_name FROM courses WHERE id = $1")).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"id", "course_code", "course_name"}).AddRow("CS101", "CS101", "Intro to CS"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student_id FROM course_enrollments WHERE course_id = $1")).
		WithArgs("CS101").
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("S1").AddRow("S2"))

	course, err := repo.FindCourse(context.Background(), "CS101")
	require.NoError(t, err)
	assert.Equal(t, 2, course.EnrolledCount())
	assert.True(t, course.IsEnrolled("S2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
