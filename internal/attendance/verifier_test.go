package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.AttendanceSession
	err      error
	appends  int
}

func newFakeStore(sessions ...models.AttendanceSession) *fakeStore {
	store := &fakeStore{sessions: map[string]*models.AttendanceSession{}}
	for i := range sessions {
		session := sessions[i]
		store.sessions[session.ID] = &session
	}
	return store
}

func (f *fakeStore) AppendScan(ctx context.Context, sessionID, courseID, studentID string, scannedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	session, ok := f.sessions[sessionID]
	if !ok || session.CourseID != courseID {
		return false, ErrSessionNotFound
	}
	if session.HasScan(studentID) {
		return false, nil
	}
	session.Scans = append(session.Scans, models.Scan{StudentID: studentID, ScannedAt: scannedAt})
	f.appends++
	return true, nil
}

func (f *fakeStore) ListSessions(ctx context.Context, courseID string) ([]models.AttendanceSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []models.AttendanceSession
	for _, session := range f.sessions {
		if session.CourseID == courseID {
			out = append(out, *session)
		}
	}
	return out, nil
}

func (f *fakeStore) scans(sessionID string) []models.Scan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Scan(nil), f.sessions[sessionID].Scans...)
}

var baseTime = time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)

func payload(t *testing.T, sessionID, courseID, courseCode string, expiresAt *time.Time) string {
	t.Helper()
	raw, err := EncodeToken(models.QRToken{SessionID: sessionID, CourseID: courseID, CourseCode: courseCode, ExpiresAt: expiresAt})
	require.NoError(t, err)
	return raw
}

func cs101() models.Course {
	return models.NewCourse("CS101", "CS101", "Intro to CS", "S1", "S2")
}

func TestVerifyAcceptsAndAppends(t *testing.T) {
	store := newFakeStore(models.AttendanceSession{ID: "sess-1", CourseID: "CS101", GeneratedAt: baseTime})
	verifier := NewVerifier(store, nil)
	expires := baseTime.Add(10 * time.Minute)

	result, err := verifier.Verify(context.Background(), models.ScanAttempt{
		RawPayload:      payload(t, "sess-1", "CS101", "CS101", &expires),
		ClaimedCourseID: "CS101",
		StudentID:       "S1",
		PresentedAt:     baseTime.Add(time.Minute),
	}, cs101())
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	require.NotNil(t, result.Scan)
	assert.Equal(t, "S1", result.Scan.StudentID)
	assert.Equal(t, baseTime.Add(time.Minute), result.Scan.ScannedAt)
	assert.Len(t, store.scans("sess-1"), 1)
}

func TestVerifyDuplicateIsIdempotent(t *testing.T) {
	store := newFakeStore(models.AttendanceSession{ID: "sess-1", CourseID: "CS101", GeneratedAt: baseTime})
	verifier := NewVerifier(store, nil)
	attempt := models.ScanAttempt{
		RawPayload:      payload(t, "sess-1", "CS101", "CS101", nil),
		ClaimedCourseID: "CS101",
		StudentID:       "S1",
		PresentedAt:     baseTime,
	}

	first, err := verifier.Verify(context.Background(), attempt, cs101())
	require.NoError(t, err)
	assert.True(t, first.Accepted)

	second, err := verifier.Verify(context.Background(), attempt, cs101())
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, ReasonAlreadyScanned, second.Reason)
	assert.Len(t, store.scans("sess-1"), 1)
}

func TestVerifyConcurrentScansSameStudent(t *testing.T) {
	store := newFakeStore(models.AttendanceSession{ID: "sess-1", CourseID: "CS101", GeneratedAt: baseTime})
	verifier := NewVerifier(store, nil)
	attempt := models.ScanAttempt{
		RawPayload:      payload(t, "sess-1", "CS101", "CS101", nil),
		ClaimedCourseID: "CS101",
		StudentID:       "S2",
		PresentedAt:     baseTime,
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := verifier.Verify(context.Background(), attempt, cs101())
			if err == nil && result.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Len(t, store.scans("sess-1"), 1)
}

func TestVerifyRejections(t *testing.T) {
	expired := baseTime
	future := baseTime.Add(time.Hour)

	tests := []struct {
		name     string
		payload  string
		claimed  string
		student  string
		at       time.Time
		reason   Reason
		contains []string
	}{
		{
			name:     "malformed json",
			payload:  "not-json",
			claimed:  "CS101",
			student:  "S1",
			at:       baseTime,
			reason:   ReasonMalformedPayload,
			contains: []string{"Invalid QR code format"},
		},
		{
			name:     "missing course id",
			payload:  `{"sessionId":"sess-1"}`,
			claimed:  "CS101",
			student:  "S1",
			at:       baseTime,
			reason:   ReasonMalformedPayload,
			contains: []string{"Invalid QR code format"},
		},
		{
			name:     "wrong course wins over enrollment and expiry",
			payload:  payload(t, "sess-9", "CS201", "CS201", &expired),
			claimed:  "CS101",
			student:  "S9",
			at:       baseTime.Add(time.Hour),
			reason:   ReasonWrongCourse,
			contains: []string{"CS201", "CS101"},
		},
		{
			name:     "wrong course without code",
			payload:  `{"sessionId":"sess-9","courseId":"CS201"}`,
			claimed:  "CS101",
			student:  "S1",
			at:       baseTime,
			reason:   ReasonWrongCourse,
			contains: []string{"another course", "CS101"},
		},
		{
			name:     "not enrolled wins over expiry",
			payload:  payload(t, "sess-1", "CS101", "CS101", &expired),
			claimed:  "CS101",
			student:  "S9",
			at:       baseTime.Add(time.Hour),
			reason:   ReasonNotEnrolled,
			contains: []string{"You are not enrolled in CS101"},
		},
		{
			name:     "expired one second after",
			payload:  payload(t, "sess-1", "CS101", "CS101", &expired),
			claimed:  "CS101",
			student:  "S1",
			at:       baseTime.Add(time.Second),
			reason:   ReasonExpired,
			contains: []string{"expired"},
		},
		{
			name:     "expired exactly at expiry",
			payload:  payload(t, "sess-1", "CS101", "CS101", &expired),
			claimed:  "CS101",
			student:  "S1",
			at:       baseTime,
			reason:   ReasonExpired,
			contains: []string{"expired"},
		},
		{
			name:     "unknown session",
			payload:  payload(t, "sess-404", "CS101", "CS101", &future),
			claimed:  "CS101",
			student:  "S1",
			at:       baseTime,
			reason:   ReasonMalformedPayload,
			contains: []string{"CS101"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore(models.AttendanceSession{ID: "sess-1", CourseID: "CS101", GeneratedAt: baseTime})
			verifier := NewVerifier(store, nil)

			result, err := verifier.Verify(context.Background(), models.ScanAttempt{
				RawPayload:      tc.payload,
				ClaimedCourseID: tc.claimed,
				StudentID:       tc.student,
				PresentedAt:     tc.at,
			}, cs101())
			require.NoError(t, err)
			assert.False(t, result.Accepted)
			assert.Equal(t, tc.reason, result.Reason)
			for _, fragment := range tc.contains {
				assert.Contains(t, result.Detail, fragment)
			}
			assert.Nil(t, result.Scan)
			assert.Zero(t, store.appends)
		})
	}
}

func TestVerifyStoreFailure(t *testing.T) {
	store := newFakeStore(models.AttendanceSession{ID: "sess-1", CourseID: "CS101", GeneratedAt: baseTime})
	store.err = errors.New("connection refused")
	verifier := NewVerifier(store, nil)

	result, err := verifier.Verify(context.Background(), models.ScanAttempt{
		RawPayload:      payload(t, "sess-1", "CS101", "CS101", nil),
		ClaimedCourseID: "CS101",
		StudentID:       "S1",
		PresentedAt:     baseTime,
	}, cs101())
	require.Error(t, err)
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "append scan", storeErr.Op)
	assert.False(t, result.Accepted)
	assert.Equal(t, ReasonStoreFailure, result.Reason)
}

func TestCheckClaimedCourseMustMatchCourse(t *testing.T) {
	verifier := NewVerifier(newFakeStore(), nil)
	_, rejection := verifier.Check(models.ScanAttempt{
		RawPayload:      payload(t, "sess-1", "CS201", "CS201", nil),
		ClaimedCourseID: "CS201",
		StudentID:       "S1",
		PresentedAt:     baseTime,
	}, cs101())
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonWrongCourse, rejection.Reason)
	assert.Equal(t, fmt.Sprintf("%s: %s", rejection.Reason, rejection.Detail), rejection.Error())
}

func TestVerifyTokenWithoutSession(t *testing.T) {
	closed := baseTime.Add(-time.Hour)
	open := baseTime.Add(10 * time.Minute)
	sessions := []models.AttendanceSession{
		{ID: "sess-old", CourseID: "CS101", GeneratedAt: baseTime.Add(-2 * time.Hour), ExpiresAt: &closed},
		{ID: "sess-open", CourseID: "CS101", GeneratedAt: baseTime.Add(-time.Minute), ExpiresAt: &open},
		{ID: "sess-later", CourseID: "CS101", GeneratedAt: baseTime.Add(time.Hour)},
	}
	attempt := func(raw string) models.ScanAttempt {
		return models.ScanAttempt{RawPayload: raw, ClaimedCourseID: "CS101", StudentID: "S1", PresentedAt: baseTime}
	}

	t.Run("wrong course is reported before session lookup", func(t *testing.T) {
		store := newFakeStore(sessions...)
		result, err := NewVerifier(store, nil).Verify(context.Background(),
			attempt(`{"courseId":"CS201","courseCode":"CS201","expiresAt":"2030-01-01T00:00:00Z"}`), cs101())
		require.NoError(t, err)
		assert.Equal(t, ReasonWrongCourse, result.Reason)
		assert.Contains(t, result.Detail, "This QR code is for CS201")
		assert.Zero(t, store.appends)
	})

	t.Run("matching course records against the open session", func(t *testing.T) {
		store := newFakeStore(sessions...)
		result, err := NewVerifier(store, nil).Verify(context.Background(),
			attempt(`{"courseId":"CS101","courseCode":"CS101","expiresAt":"2030-01-01T00:00:00Z"}`), cs101())
		require.NoError(t, err)
		assert.True(t, result.Accepted)
		assert.Equal(t, "sess-open", result.SessionID)
		assert.Len(t, store.scans("sess-open"), 1)
	})

	t.Run("no open session", func(t *testing.T) {
		store := newFakeStore(sessions[0], sessions[2])
		result, err := NewVerifier(store, nil).Verify(context.Background(),
			attempt(`{"courseId":"CS101","courseCode":"CS101"}`), cs101())
		require.NoError(t, err)
		assert.Equal(t, ReasonMalformedPayload, result.Reason)
		assert.Contains(t, result.Detail, "no open attendance session for CS101")
		assert.Zero(t, store.appends)
	})

	t.Run("listing failure is a store error", func(t *testing.T) {
		store := newFakeStore(sessions...)
		store.err = errors.New("connection refused")
		result, err := NewVerifier(store, nil).Verify(context.Background(),
			attempt(`{"courseId":"CS101"}`), cs101())
		var storeErr *StoreError
		require.ErrorAs(t, err, &storeErr)
		assert.Equal(t, "resolve session", storeErr.Op)
		assert.Equal(t, ReasonStoreFailure, result.Reason)
	})
}
