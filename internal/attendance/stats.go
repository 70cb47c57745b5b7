package attendance

import (
	"time"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// DefaultTrendPoints is the number of sessions shown in the trend chart.
const DefaultTrendPoints = 5

// ComputeStats summarises the matrix. Averages round half up and are zero
// when there is nothing to divide by.
func ComputeStats(m models.ReportMatrix) models.AttendanceStats {
	stats := models.AttendanceStats{
		TotalStudents: len(m.Students),
		TotalSessions: len(m.Sessions),
	}
	present := PresentCount(m)
	if stats.TotalSessions > 0 {
		stats.AvgAttendance = roundHalfUp(present, stats.TotalSessions)
	}
	if cells := stats.TotalSessions * stats.TotalStudents; cells > 0 {
		stats.AttendanceRate = roundHalfUp(100*present, cells)
	}
	return stats
}

// PresentCount counts Present cells of the matrix.
func PresentCount(m models.ReportMatrix) int {
	total := 0
	for _, row := range m.Presence {
		for _, cell := range row {
			if cell == models.PresencePresent {
				total++
			}
		}
	}
	return total
}

// SessionPresentCount counts Present cells in column j.
func SessionPresentCount(m models.ReportMatrix, j int) int {
	total := 0
	for _, row := range m.Presence {
		if j < len(row) && row[j] == models.PresencePresent {
			total++
		}
	}
	return total
}

// Trend returns per-session present counts for the last n sessions,
// labelled like "Jan 5" in loc.
func Trend(m models.ReportMatrix, loc *time.Location, n int) []models.TrendPoint {
	if n <= 0 {
		n = DefaultTrendPoints
	}
	if loc == nil {
		loc = time.UTC
	}
	start := 0
	if len(m.Sessions) > n {
		start = len(m.Sessions) - n
	}
	points := make([]models.TrendPoint, 0, len(m.Sessions)-start)
	for j := start; j < len(m.Sessions); j++ {
		session := m.Sessions[j]
		points = append(points, models.TrendPoint{
			SessionID: session.ID,
			Label:     session.GeneratedAt.In(loc).Format("Jan 2"),
			Count:     SessionPresentCount(m, j),
		})
	}
	return points
}

// roundHalfUp returns a/b rounded to the nearest integer, .5 going up.
// a and b must be non-negative and b positive.
func roundHalfUp(a, b int) int {
	return (2*a + b) / (2 * b)
}
