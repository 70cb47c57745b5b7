package service

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-api/internal/dto"
	"github.com/noah-isme/qr-attendance-api/internal/models"
	"github.com/noah-isme/qr-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/qr-attendance-api/pkg/errors"
)

type mapCache struct {
	items   map[string][]byte
	deleted []string
}

func newMapCache() *mapCache { return &mapCache{items: map[string][]byte{}} }

func (m *mapCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mapCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *mapCache) DeleteByPattern(ctx context.Context, pattern string) error {
	for key := range m.items {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.items, key)
			m.deleted = append(m.deleted, key)
		}
	}
	return nil
}

type failingCounter struct{}

func (failingCounter) CountByRole(context.Context) (*models.UserCounts, error) {
	return nil, errors.New("db down")
}

func dashboardStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddUser(models.User{ID: "A1", Email: "admin@campus.edu", Role: models.RoleAdmin, Active: true})
	store.AddUser(models.User{ID: "L1", Email: "lect@campus.edu", Role: models.RoleLecturer, Active: true})
	store.AddUser(models.User{ID: "S1", Email: "s1@campus.edu", Role: models.RoleStudent, Active: true})
	store.AddUser(models.User{ID: "S2", Email: "s2@campus.edu", Role: models.RoleStudent, Active: true})
	store.AddCourse(models.NewCourse("c-101", "CS101", "Intro to CS", "S1", "S2"))
	require.NoError(t, store.CreateSession(context.Background(), &models.AttendanceSession{CourseID: "c-101"}))
	return store
}

func TestDashboardServiceAdminTotals(t *testing.T) {
	store := dashboardStore(t)
	svc := NewDashboardService(store, store, store, nil, nil, DashboardServiceConfig{})

	resp, hit, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 4, resp.TotalUsers)
	assert.Equal(t, 2, resp.TotalStudents)
	assert.Equal(t, 1, resp.TotalLecturers)
	assert.Equal(t, 1, resp.TotalAdmins)
	assert.Equal(t, 1, resp.TotalCourses)
	assert.Equal(t, 1, resp.TotalSessions)
}

func TestDashboardServiceUsesCache(t *testing.T) {
	store := dashboardStore(t)
	cacheRepo := newMapCache()
	cache := NewCacheService(cacheRepo, NewMetricsService(), time.Minute, nil, true)
	svc := NewDashboardService(store, store, store, cache, nil, DashboardServiceConfig{})

	_, hit, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)

	cached, hit, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 4, cached.TotalUsers)

	sessions := NewSessionService(store, store, pngStub{}, nil, nil, SessionServiceConfig{}).WithCache(cache)
	_, err = sessions.Issue(context.Background(), "c-101", "L1", dto.IssueSessionRequest{})
	require.NoError(t, err)
	assert.Contains(t, cacheRepo.deleted, "dashboard:admin")

	fresh, hit, err := svc.Admin(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, fresh.TotalSessions)
}

func TestDashboardServicePropagatesErrors(t *testing.T) {
	store := dashboardStore(t)
	svc := NewDashboardService(failingCounter{}, store, store, nil, nil, DashboardServiceConfig{})

	_, _, err := svc.Admin(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestCacheServiceDisabled(t *testing.T) {
	cacheRepo := newMapCache()
	cache := NewCacheService(cacheRepo, nil, 0, nil, false)

	cache.Set(context.Background(), "k", "v", 0)
	var out string
	assert.False(t, cache.Get(context.Background(), "k", &out))
	assert.Empty(t, cacheRepo.items)

	var nilCache *CacheService
	assert.False(t, nilCache.Enabled())
}
