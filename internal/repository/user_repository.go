package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, id_number, role, active, created_at, updated_at`

// UserRepository provides read access to users and writes login audits.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// CountByRole returns active user totals grouped by role.
func (r *UserRepository) CountByRole(ctx context.Context) (*models.UserCounts, error) {
	const query = `SELECT
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE role = 'STUDENT') AS students,
		COUNT(*) FILTER (WHERE role = 'LECTURER') AS lecturers,
		COUNT(*) FILTER (WHERE role = 'ADMIN') AS admins
	FROM users WHERE active = TRUE`
	var counts models.UserCounts
	if err := r.db.GetContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	return &counts, nil
}

// CreateLoginAudit stores a login audit entry. LoginTime is kept in UTC.
func (r *UserRepository) CreateLoginAudit(ctx context.Context, audit *models.LoginAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.NewString()
	}
	if audit.LoginTime.IsZero() {
		audit.LoginTime = time.Now()
	}
	audit.LoginTime = audit.LoginTime.UTC()
	const query = `INSERT INTO login_audits (id, user_id, username, role, login_time, ip_address, user_agent) VALUES (:id, :user_id, :username, :role, :login_time, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, audit); err != nil {
		return fmt.Errorf("create login audit: %w", err)
	}
	return nil
}

// CloseLoginAudit sets the logout time of an open audit entry owned by userID.
func (r *UserRepository) CloseLoginAudit(ctx context.Context, id, userID string, logoutAt time.Time) error {
	const query = `UPDATE login_audits SET logout_time = $3 WHERE id = $1 AND user_id = $2 AND logout_time IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, userID, logoutAt.UTC())
	if err != nil {
		return fmt.Errorf("close login audit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close login audit rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
