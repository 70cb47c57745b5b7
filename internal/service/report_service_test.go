package service

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-api/internal/models"
	"github.com/noah-isme/qr-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
	"github.com/noah-isme/qr-attendance-api/pkg/export"
)

type slowSource struct{}

func (slowSource) ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowSource) ListEnrolled(ctx context.Context, courseID string) ([]models.Student, error) {
	return nil, nil
}

func seededReportStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddUser(models.User{ID: "S1", FirstName: "Ana", LastName: "Lee", IDNumber: "1001", Role: models.RoleStudent, Active: true})
	store.AddUser(models.User{ID: "S2", FirstName: "Ben", LastName: "Park", IDNumber: "1002", Role: models.RoleStudent, Active: true})
	store.AddCourse(models.NewCourse("c-101", "CS101", "Intro to CS", "S1", "S2"))
	store.AddCourse(models.NewCourse("c-empty", "CS000", "Empty Course"))

	ctx := context.Background()
	first := &models.AttendanceSession{ID: "s1", CourseID: "c-101", GeneratedAt: time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)}
	second := &models.AttendanceSession{ID: "s2", CourseID: "c-101", GeneratedAt: time.Date(2025, time.January, 12, 9, 0, 0, 0, time.UTC)}
	require.NoError(t, store.CreateSession(ctx, second))
	require.NoError(t, store.CreateSession(ctx, first))
	for _, scan := range []struct{ session, student string }{{"s1", "S1"}, {"s1", "S2"}, {"s2", "S1"}} {
		created, err := store.AppendScan(ctx, scan.session, "c-101", scan.student, time.Now())
		require.NoError(t, err)
		require.True(t, created)
	}
	return store
}

func newTestReportService(store *repository.MemoryStore) *ReportService {
	svc := NewReportService(store, store, nil, NewMetricsService(), nil, ReportServiceConfig{})
	svc.now = func() time.Time { return time.Date(2025, time.January, 20, 8, 30, 0, 0, time.UTC) }
	return svc
}

func TestReportServiceBuild(t *testing.T) {
	svc := newTestReportService(seededReportStore(t))

	report, err := svc.Build(context.Background(), "c-101")
	require.NoError(t, err)
	require.False(t, report.Empty())

	assert.Equal(t, models.AttendanceStats{TotalStudents: 2, TotalSessions: 2, AvgAttendance: 2, AttendanceRate: 75}, report.Stats)
	require.Len(t, report.Matrix.Sessions, 2)
	assert.Equal(t, "s1", report.Matrix.Sessions[0].ID)

	resp := svc.Response(report)
	assert.Equal(t, "CS101", resp.Course.Code)
	assert.Equal(t, "Jan 5, 2025", resp.Sessions[0].Label)
	assert.Equal(t, 2, resp.Sessions[0].Present)
	assert.Equal(t, "Lee, Ana", resp.Rows[0].Name)
	assert.Equal(t, 2, resp.Rows[0].Present)
	assert.Equal(t, []models.Presence{models.PresencePresent, models.PresenceAbsent}, resp.Rows[1].Presence)
	assert.Len(t, resp.Trend, 2)
}

func TestReportServiceEmptyCourse(t *testing.T) {
	svc := newTestReportService(seededReportStore(t))

	report, err := svc.Build(context.Background(), "c-empty")
	require.NoError(t, err)
	assert.True(t, report.Empty())
	assert.Equal(t, models.AttendanceStats{}, report.Stats)
	assert.NotNil(t, svc.Response(report).Trend)
}

func TestReportServiceUnknownCourse(t *testing.T) {
	svc := newTestReportService(seededReportStore(t))

	_, err := svc.Build(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReportServiceFetchTimeout(t *testing.T) {
	store := seededReportStore(t)
	svc := NewReportService(store, slowSource{}, nil, nil, nil, ReportServiceConfig{FetchTimeout: 20 * time.Millisecond})

	_, err := svc.Build(context.Background(), "c-101")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrStore.Code, appErr.Code)
	assert.Equal(t, "report data could not be loaded in time", appErr.Message)
}

func TestReportServiceCSVFile(t *testing.T) {
	svc := newTestReportService(seededReportStore(t))

	file, err := svc.File(context.Background(), "c-101", models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "CS101_Attendance_20250120T083000Z.csv", file.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", file.ContentType)

	body := string(file.Data)
	assert.True(t, strings.HasPrefix(body, `"Course: Intro to CS"`))
	assert.Contains(t, body, `"ID Number","Student Name","Jan 5, 2025","Jan 12, 2025"`)
	assert.Contains(t, body, `"1002","Park, Ben","Present","Absent"`)
}

func TestReportServicePDFFile(t *testing.T) {
	svc := NewReportService(seededReportStore(t), seededReportStore(t), export.NewPDFExporter(), nil, nil, ReportServiceConfig{})

	file, err := svc.File(context.Background(), "c-101", models.ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Data), "%PDF"))
}

func TestReportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newTestReportService(seededReportStore(t))

	_, err := svc.File(context.Background(), "c-101", models.ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportFilenameSanitises(t *testing.T) {
	at := time.Date(2025, time.February, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	assert.Equal(t, "CS-101_Attendance_20250201T030000Z.pdf", ReportFilename("CS/101", at, models.ExportFormatPDF))
	assert.Equal(t, "course_Attendance_20250201T030000Z.csv", ReportFilename("", at, models.ExportFormatCSV))

	long := sanitizeFilename(strings.Repeat("é", 150))
	assert.True(t, utf8.ValidString(long))
	assert.Equal(t, 100, utf8.RuneCountInString(long))
	assert.Equal(t, strings.Repeat("é", 100), long)
}
