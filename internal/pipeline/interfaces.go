package pipeline

import (
	"context"

	"github.com/fablepress/backend/internal/domain"
)

// JobStore is the persistence behind the pipeline. Status moves are
// compare-and-set: they succeed only when the row is currently in one of
// the allowed from-statuses, which is what makes at-least-once delivery
// safe across duplicate and concurrent workers.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)

	// TransitionStatus moves the job from any status in from to to.
	// Returns domain.ErrStaleTransition when the row matched none of them.
	TransitionStatus(ctx context.Context, jobID string, from []domain.Status, to domain.Status) error

	// SetFailure moves the job into a failure status with its reason code.
	SetFailure(ctx context.Context, jobID string, status domain.Status, code domain.FailureCode) error

	// UpdatePhoto swaps the stored photo key and clears previous analysis.
	UpdatePhoto(ctx context.Context, jobID, photoKey string) error

	// SetAnalysisResult records the face detection outcome.
	SetAnalysisResult(ctx context.Context, jobID string, faceDetected bool, faceCropKey *string) error

	// SetPageState tracks single-page regeneration progress.
	SetPageState(ctx context.Context, jobID string, stage domain.Stage, pageNum int, state string, errMsg string) error

	// UpsertArtifact records the current object for (job, stage, kind, page).
	UpsertArtifact(ctx context.Context, a *domain.Artifact) error

	ArtifactsByStage(ctx context.Context, jobID string, stage domain.Stage) ([]domain.Artifact, error)
}

// Dispatcher publishes task messages onto their queue.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *domain.TaskMessage) error
}

// Page regeneration states persisted through SetPageState.
const (
	PageStateQueued       = "queued"
	PageStateGenerating   = "bg_generating"
	PageStateRenderQueued = "render_queued"
	PageStateRendering    = "rendering"
	PageStateCompleted    = "completed"
	PageStateFailed       = "failed"
)
