package dto

import "time"

// AdminDashboardResponse captures the admin dashboard totals.
type AdminDashboardResponse struct {
	TotalUsers     int       `json:"totalUsers"`
	TotalStudents  int       `json:"totalStudents"`
	TotalLecturers int       `json:"totalLecturers"`
	TotalAdmins    int       `json:"totalAdmins"`
	TotalCourses   int       `json:"totalCourses"`
	TotalSessions  int       `json:"totalSessions"`
	GeneratedAt    time.Time `json:"generatedAt"`
}
