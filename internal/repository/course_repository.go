package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qr-attendance-api/internal/attendance"
	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// CourseRepository reads courses and their enrollment sets.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

var _ attendance.CourseReader = (*CourseRepository)(nil)

// FindCourse returns the course snapshot with enrolled student ids.
func (r *CourseRepository) FindCourse(ctx context.Context, id string) (*models.Course, error) {
	const query = `SELECT id, course_code, course_name FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find course: %w", err)
	}

	var studentIDs []string
	const enrollQuery = `SELECT student_id FROM course_enrollments WHERE course_id = $1`
	if err := r.db.SelectContext(ctx, &studentIDs, enrollQuery, id); err != nil {
		return nil, fmt.Errorf("list course enrollments: %w", err)
	}
	course.Enroll(studentIDs...)
	return &course, nil
}

// Count returns the total number of courses.
func (r *CourseRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses`); err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return total, nil
}
