package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/models"
)

type memorySession struct {
	mu      sync.Mutex
	session models.AttendanceSession
}

// MemoryStore keeps users, courses and attendance in process memory.
// It backs STORE_BACKEND=memory and tests; data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]models.User
	courses  map[string]models.Course
	sessions map[string]*memorySession
	order    []string
	audits   map[string]*models.LoginAudit
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    map[string]models.User{},
		courses:  map[string]models.Course{},
		sessions: map[string]*memorySession{},
		audits:   map[string]*models.LoginAudit{},
	}
}

var (
	_ attendance.Store        = (*MemoryStore)(nil)
	_ attendance.CourseReader = (*MemoryStore)(nil)
)

type seedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

type seedCourse struct {
	ID         string   `json:"id"`
	CourseCode string   `json:"course_code"`
	CourseName string   `json:"course_name"`
	StudentIDs []string `json:"student_ids"`
}

type memorySeed struct {
	Users   []seedUser   `json:"users"`
	Courses []seedCourse `json:"courses"`
}

// LoadSeedFile populates the store from a JSON fixture with "users" and
// "courses" arrays. Users carry bcrypt hashes in "password_hash".
func (s *MemoryStore) LoadSeedFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed memorySeed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode seed file: %w", err)
	}
	for _, u := range seed.Users {
		user := u.User
		user.PasswordHash = u.PasswordHash
		s.AddUser(user)
	}
	for _, c := range seed.Courses {
		s.AddCourse(models.NewCourse(c.ID, c.CourseCode, c.CourseName, c.StudentIDs...))
	}
	return nil
}

// AddUser inserts or replaces a user.
func (s *MemoryStore) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.users[user.ID] = user
}

// AddCourse inserts or replaces a course snapshot.
func (s *MemoryStore) AddCourse(course models.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := models.NewCourse(course.ID, course.CourseCode, course.CourseName)
	for id := range course.EnrolledStudentIDs {
		clone.Enroll(id)
	}
	s.courses[course.ID] = clone
}

// FindCourse returns a copy of the course snapshot.
func (s *MemoryStore) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := models.NewCourse(course.ID, course.CourseCode, course.CourseName)
	for studentID := range course.EnrolledStudentIDs {
		clone.Enroll(studentID)
	}
	return &clone, nil
}

// Count returns the number of courses.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.courses), nil
}

// CreateSession registers a new session for an existing course.
func (s *MemoryStore) CreateSession(ctx context.Context, session *models.AttendanceSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.courses[session.CourseID]; !ok {
		return fmt.Errorf("create attendance session: course %s: %w", session.CourseID, sql.ErrNoRows)
	}
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
	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("create attendance session: duplicate id %s", session.ID)
	}
	stored := *session
	stored.Scans = nil
	s.sessions[session.ID] = &memorySession{session: stored}
	s.order = append(s.order, session.ID)
	return nil
}

// FindSession returns a session without its scans.
func (s *MemoryStore) FindSession(ctx context.Context, id string) (*models.AttendanceSession, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	session := entry.session
	session.Scans = nil
	return &session, nil
}

// AppendScan appends under the session's own lock so concurrent scans of one
// student cannot both be recorded while other sessions proceed in parallel.
func (s *MemoryStore) AppendScan(ctx context.Context, sessionID, courseID, studentID string, scannedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return false, attendance.ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.session.CourseID != courseID {
		return false, attendance.ErrSessionNotFound
	}
	if entry.session.HasScan(studentID) {
		return false, nil
	}
	entry.session.Scans = append(entry.session.Scans, models.Scan{StudentID: studentID, ScannedAt: scannedAt.UTC()})
	return true, nil
}

// ListSessions returns deep copies of the course's sessions in creation order.
func (s *MemoryStore) ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error) {
	s.mu.RLock()
	entries := make([]*memorySession, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.sessions[id])
	}
	s.mu.RUnlock()

	sessions := make([]models.AttendanceSession, 0)
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.session.CourseID == courseID {
			session := entry.session
			session.Scans = append([]models.Scan{}, entry.session.Scans...)
			sessions = append(sessions, session)
		}
		entry.mu.Unlock()
	}
	return sessions, nil
}

// ListEnrolled returns the students enrolled in the course.
func (s *MemoryStore) ListEnrolled(ctx context.Context, courseID string) ([]models.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	course, ok := s.courses[courseID]
	if !ok {
		return []models.Student{}, nil
	}
	students := make([]models.Student, 0, course.EnrolledCount())
	for id := range course.EnrolledStudentIDs {
		user, ok := s.users[id]
		if !ok || user.Role != models.RoleStudent {
			continue
		}
		students = append(students, models.Student{
			ID:        user.ID,
			FirstName: user.FirstName,
			LastName:  user.LastName,
			IDNumber:  user.IDNumber,
			Email:     user.Email,
		})
	}
	return students, nil
}

// CountSessions returns the number of sessions across all courses.
func (s *MemoryStore) CountSessions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions), nil
}

// FindByEmail returns a user by case-insensitive email.
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

// FindByID returns a user by identifier.
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

// CountByRole returns active user totals grouped by role.
func (s *MemoryStore) CountByRole(ctx context.Context) (*models.UserCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := &models.UserCounts{}
	for _, user := range s.users {
		if !user.Active {
			continue
		}
		counts.Total++
		switch user.Role {
		case models.RoleStudent:
			counts.Students++
		case models.RoleLecturer:
			counts.Lecturers++
		case models.RoleAdmin:
			counts.Admins++
		}
	}
	return counts, nil
}

// CreateLoginAudit stores a login audit entry in UTC.
func (s *MemoryStore) CreateLoginAudit(ctx context.Context, audit *models.LoginAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.LoginTime.IsZero() {
		audit.LoginTime = time.Now()
	}
	audit.LoginTime = audit.LoginTime.UTC()
	stored := *audit
	s.audits[audit.ID] = &stored
	return nil
}

// CloseLoginAudit sets the logout time of an open audit entry.
func (s *MemoryStore) CloseLoginAudit(ctx context.Context, id, userID string, logoutAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	audit, ok := s.audits[id]
	if !ok || audit.UserID != userID || audit.LogoutTime != nil {
		return sql.ErrNoRows
	}
	ts := logoutAt.UTC()
	audit.LogoutTime = &ts
	return nil
}
