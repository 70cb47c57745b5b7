package models

// Student is the roster view of a user with the STUDENT role.
type Student struct {
	ID        string `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	IDNumber  string `db:"id_number" json:"id_number"`
	Email     string `db:"email" json:"email"`
}

// DisplayName renders "Last, First" as used by attendance reports.
func (s Student) DisplayName() string {
	return s.LastName + ", " + s.FirstName
}

// Course is a snapshot of a course and the students enrolled in it.
type Course struct {
	ID                 string              `db:"id" json:"id"`
	CourseCode         string              `db:"course_code" json:"course_code"`
	CourseName         string              `db:"course_name" json:"course_name"`
	EnrolledStudentIDs map[string]struct{} `db:"-" json:"-"`
}

// NewCourse builds a course snapshot; duplicate student ids collapse.
func NewCourse(id, code, name string, studentIDs ...string) Course {
	c := Course{ID: id, CourseCode: code, CourseName: name}
	c.Enroll(studentIDs...)
	return c
}

// Enroll adds the provided student ids to the enrollment set.
func (c *Course) Enroll(studentIDs ...string) {
	if c.EnrolledStudentIDs == nil {
		c.EnrolledStudentIDs = make(map[string]struct{}, len(studentIDs))
	}
	for _, id := range studentIDs {
		c.EnrolledStudentIDs[id] = struct{}{}
	}
}

// IsEnrolled reports whether the student belongs to the course.
func (c Course) IsEnrolled(studentID string) bool {
	_, ok := c.EnrolledStudentIDs[studentID]
	return ok
}

// EnrolledCount returns the number of enrolled students.
func (c Course) EnrolledCount() int {
	return len(c.EnrolledStudentIDs)
}
