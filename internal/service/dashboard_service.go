package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/qr-attendance-api/internal/dto"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
)

const adminDashboardCacheKey = "dashboard:admin"

type userCounter interface {
	CountByRole(ctx context.Context) (*models.UserCounts, error)
}

type courseCounter interface {
	Count(ctx context.Context) (int, error)
}

type sessionCounter interface {
	CountSessions(ctx context.Context) (int, error)
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the admin dashboard totals.
type DashboardService struct {
	users    userCounter
	courses  courseCounter
	sessions sessionCounter
	cache    *CacheService
	logger   *zap.Logger
	now      func() time.Time
	cfg      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(users userCounter, courses courseCounter, sessions sessionCounter, cache *CacheService, logger *zap.Logger, cfg DashboardServiceConfig) *DashboardService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		users:    users,
		courses:  courses,
		sessions: sessions,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// Admin returns the totals and whether they were served from cache. The
// three counts run concurrently; the first failure cancels the others.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	var cached dto.AdminDashboardResponse
	if s.cache.Get(ctx, adminDashboardCacheKey, &cached) {
		return &cached, true, nil
	}

	var (
		counts   *models.UserCounts
		courses  int
		sessions int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if counts, err = s.users.CountByRole(gctx); err != nil {
			return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to count users")
		}
		return nil
	})
	g.Go(func() (err error) {
		if courses, err = s.courses.Count(gctx); err != nil {
			return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to count courses")
		}
		return nil
	})
	g.Go(func() (err error) {
		if sessions, err = s.sessions.CountSessions(gctx); err != nil {
			return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to count sessions")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("dashboard totals unavailable", zap.Error(err))
		return nil, false, err
	}

	resp := &dto.AdminDashboardResponse{
		TotalUsers:     counts.Total,
		TotalStudents:  counts.Students,
		TotalLecturers: counts.Lecturers,
		TotalAdmins:    counts.Admins,
		TotalCourses:   courses,
		TotalSessions:  sessions,
		GeneratedAt:    s.now().UTC(),
	}
	s.cache.Set(ctx, adminDashboardCacheKey, resp, s.cfg.CacheTTL)
	return resp, false, nil
}
