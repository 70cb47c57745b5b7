package repository

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/qr-attendance-api/internal/models"
)

// MemoryExportJobRepository keeps export jobs in memory for STORE_BACKEND=memory.
type MemoryExportJobRepository struct {
	mu   sync.Mutex
	jobs map[string]models.ExportJob
}

// NewMemoryExportJobRepository constructs an empty repository.
func NewMemoryExportJobRepository() *MemoryExportJobRepository {
	return &MemoryExportJobRepository{jobs: map[string]models.ExportJob{}}
}

// Create stores a new job, filling id, status and creation time.
func (r *MemoryExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ExportStatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

// GetByID returns a copy of the job or sql.ErrNoRows.
func (r *MemoryExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &job, nil
}

// Update applies the non-nil fields of params.
func (r *MemoryExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		url := *params.ResultURL
		job.ResultURL = &url
	}
	if params.ErrorMessage != nil {
		msg := *params.ErrorMessage
		job.ErrorMessage = &msg
	}
	if params.FinishedAt != nil {
		finished := params.FinishedAt.UTC()
		job.FinishedAt = &finished
	}
	r.jobs[id] = job
	return nil
}

// ListQueued returns queued jobs oldest first.
func (r *MemoryExportJobRepository) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.list(limit, func(job models.ExportJob) bool {
		return job.Status == models.ExportStatusQueued
	}, func(job models.ExportJob) time.Time { return job.CreatedAt }), nil
}

// ListFinishedBefore returns finished jobs completed before cutoff.
func (r *MemoryExportJobRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.list(limit, func(job models.ExportJob) bool {
		return job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff)
	}, func(job models.ExportJob) time.Time { return *job.FinishedAt }), nil
}

func (r *MemoryExportJobRepository) list(limit int, keep func(models.ExportJob) bool, key func(models.ExportJob) time.Time) []models.ExportJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ExportJob, 0)
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return key(out[i]).Before(key(out[j])) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
