package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/shared/logger"
)

// JobStorage handles all database operations for jobs and their artifacts
type JobStorage struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *sqlx.DB, log *logger.Logger) *JobStorage {
	return &JobStorage{
		db:     db,
		logger: log,
	}
}

// Create inserts a new job row.
func (s *JobStorage) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (job_id, user_id, slug, status, child_name, child_age, child_gender, photo_key, cart_item_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.UserID,
		job.Slug,
		job.Status,
		job.ChildName,
		job.ChildAge,
		job.ChildGender,
		job.PhotoKey,
		job.CartItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("slug", job.Slug),
	)

	return nil
}

// Get retrieves a job by its ID.
func (s *JobStorage) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		SELECT job_id, user_id, slug, status, child_name, child_age, child_gender,
		       photo_key, face_detected, face_crop_key, failure_code, cart_item_id,
		       created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// TransitionStatus moves a job to a new status only when its current
// status is in the from set. A miss means another delivery already moved
// the row; the caller treats that as a no-op.
func (s *JobStorage) TransitionStatus(ctx context.Context, jobID string, from []domain.Status, to domain.Status) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = ANY($3)
	`

	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	result, err := s.db.ExecContext(ctx, query, to, jobID, pq.Array(fromStrs))
	if err != nil {
		return fmt.Errorf("failed to transition job status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		s.logger.Warn("Job status transition skipped - row not in expected status",
			slog.String("job_id", jobID),
			slog.String("to", string(to)),
		)
		return domain.ErrStaleTransition
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", string(to)),
	)

	return nil
}

// SetFailure moves a job into a failure status and records the reason.
func (s *JobStorage) SetFailure(ctx context.Context, jobID string, status domain.Status, code domain.FailureCode) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    failure_code = $2,
		    updated_at = NOW()
		WHERE job_id = $3
	`

	_, err := s.db.ExecContext(ctx, query, status, code, jobID)
	if err != nil {
		return fmt.Errorf("failed to set job failure: %w", err)
	}

	s.logger.Warn("Job failed",
		slog.String("job_id", jobID),
		slog.String("status", string(status)),
		slog.String("failure_code", string(code)),
	)

	return nil
}

// UpdatePhoto swaps the stored photo and clears any previous analysis
// result so the job can be re-analyzed.
func (s *JobStorage) UpdatePhoto(ctx context.Context, jobID, photoKey string) error {
	query := `
		UPDATE jobs
		SET photo_key = $1,
		    face_detected = NULL,
		    face_crop_key = NULL,
		    failure_code = NULL,
		    updated_at = NOW()
		WHERE job_id = $2
	`

	result, err := s.db.ExecContext(ctx, query, photoKey, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job photo: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

// SetAnalysisResult records the face detection outcome.
func (s *JobStorage) SetAnalysisResult(ctx context.Context, jobID string, faceDetected bool, faceCropKey *string) error {
	query := `
		UPDATE jobs
		SET face_detected = $1,
		    face_crop_key = $2,
		    updated_at = NOW()
		WHERE job_id = $3
	`

	_, err := s.db.ExecContext(ctx, query, faceDetected, faceCropKey, jobID)
	if err != nil {
		return fmt.Errorf("failed to set analysis result: %w", err)
	}

	return nil
}

// SetPageState upserts per-page regeneration progress.
func (s *JobStorage) SetPageState(ctx context.Context, jobID string, stage domain.Stage, pageNum int, state string, errMsg string) error {
	query := `
		INSERT INTO job_pages (job_id, stage, page_num, state, error_message, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NOW())
		ON CONFLICT (job_id, stage, page_num)
		DO UPDATE SET state = EXCLUDED.state,
		              error_message = EXCLUDED.error_message,
		              updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, jobID, stage, pageNum, state, errMsg)
	if err != nil {
		return fmt.Errorf("failed to set page state: %w", err)
	}

	return nil
}

// UpsertArtifact records the current object for (job, stage, kind, page).
// Re-runs of a unit overwrite the pointer rather than accumulate rows.
func (s *JobStorage) UpsertArtifact(ctx context.Context, a *domain.Artifact) error {
	query := `
		INSERT INTO job_artifacts (job_id, stage, kind, page_num, object_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, stage, kind, COALESCE(page_num, 0))
		DO UPDATE SET object_key = EXCLUDED.object_key,
		              created_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query, a.JobID, a.Stage, a.Kind, a.PageNum, a.ObjectKey)
	if err != nil {
		return fmt.Errorf("failed to upsert artifact: %w", err)
	}

	return nil
}

// ArtifactsByStage lists a job's artifacts for one stage ordered by page.
func (s *JobStorage) ArtifactsByStage(ctx context.Context, jobID string, stage domain.Stage) ([]domain.Artifact, error) {
	query := `
		SELECT id, job_id, stage, kind, page_num, object_key, created_at
		FROM job_artifacts
		WHERE job_id = $1 AND stage = $2
		ORDER BY page_num NULLS FIRST, kind
	`

	var artifacts []domain.Artifact
	if err := s.db.SelectContext(ctx, &artifacts, query, jobID, stage); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	return artifacts, nil
}
