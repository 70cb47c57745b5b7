package attendance

import (
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// BuildMatrix pivots sessions and roster into a presence matrix.
// Sessions are ordered by GeneratedAt and students by last then first name,
// case-insensitively. The inputs are copied and never modified.
func BuildMatrix(course models.Course, sessions []models.AttendanceSession, roster []models.Student) models.ReportMatrix {
	sortedSessions := SortSessions(sessions)
	sortedStudents := SortRoster(roster)

	present := make([]map[string]struct{}, len(sortedSessions))
	for j, session := range sortedSessions {
		set := make(map[string]struct{}, len(session.Scans))
		for _, scan := range session.Scans {
			set[scan.StudentID] = struct{}{}
		}
		present[j] = set
	}

	grid := make([][]models.Presence, len(sortedStudents))
	for i, student := range sortedStudents {
		row := make([]models.Presence, len(sortedSessions))
		for j := range sortedSessions {
			if _, ok := present[j][student.ID]; ok {
				row[j] = models.PresencePresent
			} else {
				row[j] = models.PresenceAbsent
			}
		}
		grid[i] = row
	}

	return models.ReportMatrix{
		Course:   course,
		Sessions: sortedSessions,
		Students: sortedStudents,
		Presence: grid,
	}
}

// SortSessions returns a copy of sessions in ascending GeneratedAt order.
// Sessions sharing a timestamp keep their arrival order.
func SortSessions(sessions []models.AttendanceSession) []models.AttendanceSession {
	out := make([]models.AttendanceSession, len(sessions))
	copy(out, sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.Before(out[j].GeneratedAt)
	})
	return out
}

// SortRoster returns a copy of roster ordered by (lastName, firstName), then
// IDNumber and ID so equal names order the same on every export.
func SortRoster(roster []models.Student) []models.Student {
	out := make([]models.Student, len(roster))
	copy(out, roster)

	// collate.Collator keeps internal buffers; one per call.
	col := collate.New(language.English, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		return compareNames(col, out[i], out[j]) < 0
	})
	return out
}

func compareNames(col *collate.Collator, a, b models.Student) int {
	if c := col.CompareString(a.LastName, b.LastName); c != 0 {
		return c
	}
	if c := col.CompareString(a.FirstName, b.FirstName); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
		return c
	}
	if c := strings.Compare(strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)); c != 0 {
		return c
	}
	if c := strings.Compare(a.IDNumber, b.IDNumber); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}
