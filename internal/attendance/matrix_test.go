package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

func TestSortRosterCaseInsensitive(t *testing.T) {
	roster := []models.Student{
		{ID: "2", FirstName: "amy", LastName: "Smith"},
		{ID: "1", FirstName: "Zara", LastName: "Ali"},
	}
	sorted := SortRoster(roster)

	names := []string{sorted[0].DisplayName(), sorted[1].DisplayName()}
	assert.Equal(t, []string{"Ali, Zara", "Smith, amy"}, names)
	assert.Equal(t, "2", roster[0].ID, "input must not be reordered")
}

func TestSortRosterBreaksNameTies(t *testing.T) {
	roster := []models.Student{
		{ID: "u-9", IDNumber: "1002", FirstName: "Ben", LastName: "Park"},
		{ID: "u-3", IDNumber: "1001", FirstName: "ben", LastName: "PARK"},
		{ID: "u-2", IDNumber: "1002", FirstName: "Ben", LastName: "park"},
	}
	for _, input := range [][]models.Student{roster, {roster[2], roster[0], roster[1]}} {
		sorted := SortRoster(input)
		assert.Equal(t, []string{"u-3", "u-2", "u-9"}, []string{sorted[0].ID, sorted[1].ID, sorted[2].ID})
	}
}

func TestSortRosterByFirstNameAndLocale(t *testing.T) {
	roster := []models.Student{
		{ID: "a", FirstName: "bob", LastName: "lee"},
		{ID: "b", FirstName: "Ann", LastName: "Lee"},
		{ID: "c", FirstName: "Zoe", LastName: "Éclair"},
		{ID: "d", FirstName: "Max", LastName: "Fox"},
		{ID: "e", FirstName: "Ian", LastName: "Davis"},
	}
	sorted := SortRoster(roster)

	ids := make([]string, len(sorted))
	for i, s := range sorted {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"e", "c", "d", "b", "a"}, ids)
}

func TestBuildMatrix(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, time.January, d, 9, 0, 0, 0, time.UTC) }
	course := models.NewCourse("CS101", "CS101", "Intro to CS", "S1", "S2")
	sessions := []models.AttendanceSession{
		{ID: "late", CourseID: "CS101", GeneratedAt: day(7), Scans: []models.Scan{{StudentID: "S2"}}},
		{ID: "early", CourseID: "CS101", GeneratedAt: day(5), Scans: []models.Scan{{StudentID: "S1"}, {StudentID: "S2"}}},
	}
	roster := []models.Student{
		{ID: "S2", FirstName: "S2", LastName: "Park"},
		{ID: "S1", FirstName: "S1", LastName: "Lee"},
	}

	m := BuildMatrix(course, sessions, roster)

	require.Len(t, m.Sessions, 2)
	assert.Equal(t, "early", m.Sessions[0].ID)
	assert.Equal(t, "late", m.Sessions[1].ID)
	assert.Equal(t, "S1", m.Students[0].ID)
	assert.Equal(t, [][]models.Presence{
		{models.PresencePresent, models.PresenceAbsent},
		{models.PresencePresent, models.PresencePresent},
	}, m.Presence)
	assert.Equal(t, "late", sessions[0].ID, "input must not be reordered")

	again := BuildMatrix(course, sessions, roster)
	assert.Equal(t, m, again)
}

func TestBuildMatrixStableOnEqualTimestamps(t *testing.T) {
	at := time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)
	sessions := []models.AttendanceSession{{ID: "first", GeneratedAt: at}, {ID: "second", GeneratedAt: at}}

	m := BuildMatrix(models.Course{}, sessions, nil)
	assert.Equal(t, "first", m.Sessions[0].ID)
	assert.Equal(t, "second", m.Sessions[1].ID)
}

func TestBuildMatrixEmptyInputs(t *testing.T) {
	roster := []models.Student{{ID: "S1", LastName: "Lee"}}

	noSessions := BuildMatrix(models.Course{}, nil, roster)
	require.Len(t, noSessions.Presence, 1)
	assert.Empty(t, noSessions.Presence[0])

	noStudents := BuildMatrix(models.Course{}, []models.AttendanceSession{{ID: "s"}}, nil)
	assert.Empty(t, noStudents.Presence)
	assert.Len(t, noStudents.Sessions, 1)
}
