package attendance

import (
	"time"

	"github.com/noah-isme/qr-attendance-api/internal/models"
	"github.com/noah-isme/qr-attendance-api/pkg/export"
)

// SessionLabelLayout renders column headers such as "Jan 5, 2025".
const SessionLabelLayout = "Jan 2, 2006"

// SessionLabel formats a session's generation time in loc.
func SessionLabel(session models.AttendanceSession, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return session.GeneratedAt.In(loc).Format(SessionLabelLayout)
}

// MatrixDataset lays the matrix out as an export table: one row per student
// in roster order, one column per session in chronological order.
func MatrixDataset(courseName string, m models.ReportMatrix, loc *time.Location) export.Dataset {
	headers := make([]string, 0, len(m.Sessions)+2)
	headers = append(headers, "ID Number", "Student Name")
	for _, session := range m.Sessions {
		headers = append(headers, SessionLabel(session, loc))
	}

	rows := make([][]string, len(m.Students))
	for i, student := range m.Students {
		row := make([]string, 0, len(headers))
		row = append(row, student.IDNumber, student.DisplayName())
		for j := range m.Sessions {
			cell := models.PresenceAbsent
			if i < len(m.Presence) && j < len(m.Presence[i]) {
				cell = m.Presence[i][j]
			}
			row = append(row, string(cell))
		}
		rows[i] = row
	}

	return export.Dataset{
		Title:   "Course: " + courseName,
		Headers: headers,
		Rows:    rows,
	}
}

// ToCSV renders the matrix as the attendance CSV document.
func ToCSV(courseName string, m models.ReportMatrix, loc *time.Location) (string, error) {
	out, err := export.NewCSVExporter().Render(MatrixDataset(courseName, m, loc))
	if err != nil {
		return "", err
	}
	return string(out), nil
}
