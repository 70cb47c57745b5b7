package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

func TestComputeStatsEmpty(t *testing.T) {
	stats := ComputeStats(BuildMatrix(models.Course{}, nil, []models.Student{{ID: "S1"}}))
	assert.Equal(t, models.AttendanceStats{TotalStudents: 1}, stats)

	stats = ComputeStats(BuildMatrix(models.Course{}, []models.AttendanceSession{{ID: "s"}}, nil))
	assert.Equal(t, models.AttendanceStats{TotalSessions: 1}, stats)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, 1, roundHalfUp(1, 2))
	assert.Equal(t, 13, roundHalfUp(100, 8))
	assert.Equal(t, 33, roundHalfUp(100, 3))
	assert.Equal(t, 67, roundHalfUp(200, 3))
	assert.Equal(t, 0, roundHalfUp(0, 5))
	assert.Equal(t, 3, roundHalfUp(5, 2))
}

func TestComputeStatsRounding(t *testing.T) {
	roster := []models.Student{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}}
	sessions := []models.AttendanceSession{
		{ID: "1", GeneratedAt: baseTime, Scans: []models.Scan{{StudentID: "A"}}},
		{ID: "2", GeneratedAt: baseTime.Add(time.Hour)},
	}
	stats := ComputeStats(BuildMatrix(models.Course{}, sessions, roster))

	assert.Equal(t, 4, stats.TotalStudents)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.AvgAttendance)
	assert.Equal(t, 13, stats.AttendanceRate)
}

func TestTrendKeepsLastSessions(t *testing.T) {
	var sessions []models.AttendanceSession
	for d := 1; d <= 7; d++ {
		sessions = append(sessions, models.AttendanceSession{
			ID:          fmt.Sprintf("s%d", d),
			GeneratedAt: time.Date(2025, time.January, d, 23, 30, 0, 0, time.UTC),
			Scans:       []models.Scan{{StudentID: "S1"}},
		})
	}
	m := BuildMatrix(models.Course{}, sessions, []models.Student{{ID: "S1"}, {ID: "S2"}})

	points := Trend(m, nil, 5)
	require.Len(t, points, 5)
	assert.Equal(t, "s3", points[0].SessionID)
	assert.Equal(t, "Jan 3", points[0].Label)
	assert.Equal(t, 1, points[0].Count)

	manila := time.FixedZone("UTC+8", 8*60*60)
	shifted := Trend(m, manila, 1)
	require.Len(t, shifted, 1)
	assert.Equal(t, "Jan 8", shifted[0].Label)
}

func TestEndToEndCourseReport(t *testing.T) {
	generatedAt := time.Date(2025, time.January, 5, 8, 0, 0, 0, time.UTC)
	course := models.NewCourse("CS101", "CS101", "Intro to CS", "S1", "S2")
	store := newFakeStore(models.AttendanceSession{ID: "sess-1", CourseID: "CS101", GeneratedAt: generatedAt})
	verifier := NewVerifier(store, nil)

	result, err := verifier.Verify(context.Background(), models.ScanAttempt{
		RawPayload:      payload(t, "sess-1", "CS101", "CS101", nil),
		ClaimedCourseID: "CS101",
		StudentID:       "S1",
		PresentedAt:     generatedAt.Add(2 * time.Minute),
	}, course)
	require.NoError(t, err)
	require.True(t, result.Accepted)

	sessions := []models.AttendanceSession{*store.sessions["sess-1"]}
	roster := []models.Student{
		{ID: "S2", IDNumber: "1002", FirstName: "S2", LastName: "Park"},
		{ID: "S1", IDNumber: "1001", FirstName: "S1", LastName: "Lee"},
	}
	m := BuildMatrix(course, sessions, roster)

	out, err := ToCSV(course.CourseName, m, time.UTC)
	require.NoError(t, err)
	expected := "\"Course: Intro to CS\"\n" +
		"\"ID Number\",\"Student Name\",\"Jan 5, 2025\"\n" +
		"\"1001\",\"Lee, S1\",\"Present\"\n" +
		"\"1002\",\"Park, S2\",\"Absent\"\n"
	assert.Equal(t, expected, out)

	assert.Equal(t, models.AttendanceStats{
		TotalStudents:  2,
		TotalSessions:  1,
		AvgAttendance:  1,
		AttendanceRate: 50,
	}, ComputeStats(m))
}

func TestCSVRoundTripReproducesGrid(t *testing.T) {
	roster := []models.Student{
		{ID: "A", IDNumber: `9"9`, FirstName: "Ann", LastName: "O\"Neil"},
		{ID: "B", IDNumber: "2", FirstName: "Bo, Jr", LastName: "Kim"},
		{ID: "C", IDNumber: "3", FirstName: "Cy", LastName: "Ng"},
	}
	sessions := []models.AttendanceSession{
		{ID: "1", GeneratedAt: baseTime, Scans: []models.Scan{{StudentID: "A"}, {StudentID: "C"}}},
		{ID: "2", GeneratedAt: baseTime.Add(24 * time.Hour), Scans: []models.Scan{{StudentID: "B"}}},
		{ID: "3", GeneratedAt: baseTime.Add(48 * time.Hour)},
	}
	m := BuildMatrix(models.Course{}, sessions, roster)

	out, err := ToCSV("Data, \"Structures\"", m, time.UTC)
	require.NoError(t, err)

	reader := csv.NewReader(bytes.NewReader([]byte(out)))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2+len(m.Students))
	assert.Equal(t, []string{"Course: Data, \"Structures\""}, records[0])

	for i, student := range m.Students {
		row := records[i+2]
		require.Len(t, row, 2+len(m.Sessions))
		assert.Equal(t, student.IDNumber, row[0])
		assert.Equal(t, student.DisplayName(), row[1])
		for j := range m.Sessions {
			assert.Equal(t, string(m.Presence[i][j]), row[j+2])
		}
	}
}
