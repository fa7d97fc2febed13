package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fablepress/backend/internal/artifact"
	"github.com/fablepress/backend/internal/book"
	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/shared/logger"
)

// presignExpiry bounds how long preview and download links stay valid.
const presignExpiry = 15 * time.Minute

var allowedPhotoExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
}

// Service implements the customer-facing pipeline operations: submit,
// status, generation requests, photo replacement, artifact listing.
type Service struct {
	jobs       JobStore
	artifacts  artifact.Store
	manifests  book.ManifestStore
	planner    *book.Planner
	dispatcher Dispatcher
	logger     *logger.Logger
}

// NewService wires the pipeline service.
func NewService(jobs JobStore, artifacts artifact.Store, manifests book.ManifestStore, planner *book.Planner, dispatcher Dispatcher, log *logger.Logger) *Service {
	return &Service{
		jobs:       jobs,
		artifacts:  artifacts,
		manifests:  manifests,
		planner:    planner,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// SubmitRequest carries a new personalization submission.
type SubmitRequest struct {
	Slug        string
	ChildName   string
	ChildAge    int
	ChildGender string
	UserID      string
	Filename    string
	Photo       []byte
}

func (r *SubmitRequest) validate() error {
	if strings.TrimSpace(r.Slug) == "" {
		return domain.NewValidationError("slug", "required")
	}
	if strings.TrimSpace(r.ChildName) == "" {
		return domain.NewValidationError("child_name", "required")
	}
	if r.ChildAge < 0 || r.ChildAge > 17 {
		return domain.NewValidationError("child_age", "must be between 0 and 17")
	}
	if len(r.Photo) == 0 {
		return domain.NewValidationError("child_photo", "required")
	}
	if !allowedPhotoExts[strings.ToLower(path.Ext(r.Filename))] {
		return domain.NewValidationError("child_photo", "unsupported file type")
	}
	return nil
}

// SubmitPhoto stores the photo, creates the job in pending_analysis and
// enqueues the analysis unit.
func (s *Service) SubmitPhoto(ctx context.Context, req *SubmitRequest) (*domain.Job, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	// Reject unknown or broken templates before accepting the job.
	if _, err := s.manifests.Load(ctx, req.Slug); err != nil {
		var mi *domain.ManifestInvalidError
		if errors.As(err, &mi) {
			return nil, err
		}
		if errors.Is(err, artifact.ErrObjectNotFound) {
			return nil, domain.NewValidationError("slug", "unknown book template")
		}
		return nil, err
	}

	jobID := uuid.NewString()
	photoKey := artifact.PhotoKey(jobID, sanitizeFilename(req.Filename))

	if err := s.artifacts.Put(ctx, photoKey, req.Photo, photoContentType(req.Filename)); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	job := &domain.Job{
		JobID:     jobID,
		Slug:      req.Slug,
		Status:    domain.StatusPendingAnalysis,
		ChildName: strings.TrimSpace(req.ChildName),
		ChildAge:  req.ChildAge,
		PhotoKey:  &photoKey,
	}
	if req.ChildGender != "" {
		gender := req.ChildGender
		job.ChildGender = &gender
	}
	if req.UserID != "" {
		userID := req.UserID
		job.UserID = &userID
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, &domain.TaskMessage{
		JobID: jobID,
		Task:  domain.TaskAnalyzePhoto,
	}); err != nil {
		return nil, err
	}

	s.logger.WithJob(jobID).Info("Personalization submitted",
		slog.String("slug", req.Slug),
	)
	return job, nil
}

// ReplacePhoto swaps the child photo and restarts the job at analysis.
// Rejected while a unit is in flight.
func (s *Service) ReplacePhoto(ctx context.Context, jobID, filename string, photo []byte) (*domain.Job, error) {
	if len(photo) == 0 {
		return nil, domain.NewValidationError("child_photo", "required")
	}
	if !allowedPhotoExts[strings.ToLower(path.Ext(filename))] {
		return nil, domain.NewValidationError("child_photo", "unsupported file type")
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	// Every status with a restart edge, plus pending_analysis itself:
	// swapping the photo again before analysis claims the job just
	// changes which photo the queued unit reads. Completed jobs are
	// locked; the book has shipped.
	restartable := append(
		sourceStatuses(domain.StatusPendingAnalysis),
		domain.StatusPendingAnalysis,
	)

	photoKey := artifact.PhotoKey(jobID, sanitizeFilename(filename))
	if err := s.artifacts.Put(ctx, photoKey, photo, photoContentType(filename)); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	if err := s.jobs.TransitionStatus(ctx, jobID, restartable, domain.StatusPendingAnalysis); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil, &domain.InvalidJobStateError{
				JobID:    jobID,
				Current:  job.Status,
				Expected: restartable,
			}
		}
		return nil, err
	}

	if err := s.jobs.UpdatePhoto(ctx, jobID, photoKey); err != nil {
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, &domain.TaskMessage{
		JobID: jobID,
		Task:  domain.TaskAnalyzePhoto,
	}); err != nil {
		return nil, err
	}

	s.logger.WithJob(jobID).Info("Photo replaced, restarting analysis")
	return s.jobs.Get(ctx, jobID)
}

// RequestGeneration moves the job into the stage's pending status and
// enqueues its first unit. Stages with no face-swap page skip the GPU
// unit and go straight to the render queue.
func (s *Service) RequestGeneration(ctx context.Context, jobID string, stage domain.Stage, randomizeSeed bool) (*domain.Job, error) {
	if !stage.Valid() {
		return nil, domain.NewValidationError("stage", "must be prepay or postpay")
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	// Analysis that found no face blocks every generation attempt until
	// the photo is replaced. The job itself stays queryable.
	if job.FaceDetected != nil && !*job.FaceDetected {
		return nil, domain.ErrNoFaceDetected
	}

	from := sourceStatuses(generationPending(stage))

	// generation_failed re-enters postpay only when the failed run was
	// postpay itself. Prepay finals on record are the evidence; a job
	// whose prepay run failed starts over at prepay.
	if stage == domain.StagePostpay && job.Status == domain.StatusGenerationFailed {
		done, err := s.hasFinalPages(ctx, jobID, domain.StagePrepay)
		if err != nil {
			return nil, err
		}
		if !done {
			from = withoutStatus(from, domain.StatusGenerationFailed)
		}
	}

	// Resolve the manifest and the first unit before touching the status,
	// so a broken template leaves the job where it was.
	manifest, err := s.manifests.Load(ctx, job.Slug)
	if err != nil {
		return nil, err
	}

	task := domain.TaskStageBackgrounds
	if !s.planner.StageHasFaceSwap(manifest, stage) {
		task = domain.TaskStageRender
	}

	if err := s.jobs.TransitionStatus(ctx, jobID, from, generationPending(stage)); err != nil {
		if errors.Is(err, domain.ErrStaleTransition) {
			return nil, &domain.InvalidJobStateError{JobID: jobID, Current: job.Status, Expected: from}
		}
		return nil, err
	}

	if err := s.dispatcher.Dispatch(ctx, &domain.TaskMessage{
		JobID:         jobID,
		Task:          task,
		Stage:         stage,
		RandomizeSeed: randomizeSeed,
	}); err != nil {
		// Nothing was enqueued; put the status back so the request can be
		// retried instead of parking the job in pending forever.
		if rbErr := s.jobs.TransitionStatus(ctx, jobID, []domain.Status{generationPending(stage)}, job.Status); rbErr != nil {
			s.logger.WithJob(jobID).Error("Failed to roll back generation request",
				slog.Any("error", rbErr),
			)
		}
		return nil, err
	}

	s.logger.WithJob(jobID).Info("Generation requested",
		slog.String("stage", string(stage)),
		slog.String("first_task", string(task)),
	)
	return s.jobs.Get(ctx, jobID)
}

// RegeneratePage re-runs a single page of an already generated stage
// without touching the job status. Progress is tracked per page.
func (s *Service) RegeneratePage(ctx context.Context, jobID string, stage domain.Stage, pageNum int, randomizeSeed bool) error {
	if !stage.Valid() {
		return domain.NewValidationError("stage", "must be prepay or postpay")
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	manifest, err := s.manifests.Load(ctx, job.Slug)
	if err != nil {
		return err
	}

	if !containsInt(s.planner.PageNums(manifest, stage), pageNum) {
		return domain.NewValidationError("page_num", fmt.Sprintf("page %d is not part of stage %s", pageNum, stage))
	}

	if err := s.jobs.SetPageState(ctx, jobID, stage, pageNum, PageStateQueued, ""); err != nil {
		return err
	}

	page := pageNum
	return s.dispatcher.Dispatch(ctx, &domain.TaskMessage{
		JobID:         jobID,
		Task:          domain.TaskStageBackgrounds,
		Stage:         stage,
		PageNum:       &page,
		RandomizeSeed: randomizeSeed,
	})
}

// PageView is one presigned page in a status or preview response.
type PageView struct {
	PageNum int    `json:"page_num"`
	URL     string `json:"url"`
}

// JobView is the polled status payload.
type JobView struct {
	Job     *domain.Job `json:"job"`
	Preview []PageView  `json:"preview,omitempty"`
}

// GetStatus returns the job and, once pages exist, presigned preview URLs
// for the front-visible prepay pages.
func (s *Service) GetStatus(ctx context.Context, jobID string) (*JobView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	view := &JobView{Job: job}

	preview, err := s.stagePages(ctx, job, domain.StagePrepay, true)
	if err == nil {
		view.Preview = preview
	}
	return view, nil
}

// StagePreview returns the front-visible rendered pages of a stage.
func (s *Service) StagePreview(ctx context.Context, jobID string, stage domain.Stage) ([]PageView, error) {
	if !stage.Valid() {
		return nil, domain.NewValidationError("stage", "must be prepay or postpay")
	}
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return s.stagePages(ctx, job, stage, true)
}

// StageArtifacts returns every final page of a stage. Prepay pages are
// available from prepay_ready onward, postpay pages only on completed.
func (s *Service) StageArtifacts(ctx context.Context, jobID string, stage domain.Stage) ([]PageView, error) {
	if !stage.Valid() {
		return nil, domain.NewValidationError("stage", "must be prepay or postpay")
	}

	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var gate []domain.Status
	if stage == domain.StagePrepay {
		gate = []domain.Status{
			domain.StatusPrepayReady,
			domain.StatusPostpayPending,
			domain.StatusPostpayGenerating,
			domain.StatusCompleted,
		}
	} else {
		gate = []domain.Status{domain.StatusCompleted}
	}
	if !containsStatus(gate, job.Status) {
		return nil, &domain.InvalidJobStateError{JobID: jobID, Current: job.Status, Expected: gate}
	}

	return s.stagePages(ctx, job, stage, false)
}

// stagePages presigns the final page artifacts of a stage, optionally
// restricted to front-visible pages.
func (s *Service) stagePages(ctx context.Context, job *domain.Job, stage domain.Stage, frontOnly bool) ([]PageView, error) {
	arts, err := s.jobs.ArtifactsByStage(ctx, job.JobID, stage)
	if err != nil {
		return nil, err
	}

	var visible map[int]bool
	if frontOnly {
		manifest, err := s.manifests.Load(ctx, job.Slug)
		if err != nil {
			return nil, err
		}
		visible = make(map[int]bool)
		for _, n := range s.planner.FrontVisiblePageNums(manifest, stage) {
			visible[n] = true
		}
	}

	pages := make([]PageView, 0, len(arts))
	for _, a := range arts {
		if a.Kind != domain.ArtifactPageFinal || a.PageNum == nil {
			continue
		}
		if frontOnly && !visible[*a.PageNum] {
			continue
		}
		url, err := s.artifacts.PresignGet(ctx, a.ObjectKey, presignExpiry)
		if err != nil {
			return nil, err
		}
		pages = append(pages, PageView{PageNum: *a.PageNum, URL: url})
	}
	return pages, nil
}

// hasFinalPages reports whether a stage has at least one final page on
// record.
func (s *Service) hasFinalPages(ctx context.Context, jobID string, stage domain.Stage) (bool, error) {
	arts, err := s.jobs.ArtifactsByStage(ctx, jobID, stage)
	if err != nil {
		return false, err
	}
	for _, a := range arts {
		if a.Kind == domain.ArtifactPageFinal {
			return true, nil
		}
	}
	return false, nil
}

// AvatarURL presigns the analysis face crop, when analysis produced one.
func (s *Service) AvatarURL(ctx context.Context, jobID string) (string, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.FaceCropKey == nil {
		return "", nil
	}
	return s.artifacts.PresignGet(ctx, *job.FaceCropKey, presignExpiry)
}

func sanitizeFilename(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		base = "photo.png"
	}
	return base
}

func photoContentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

func containsInt(nums []int, n int) bool {
	for _, v := range nums {
		if v == n {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.Status, s domain.Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func withoutStatus(statuses []domain.Status, s domain.Status) []domain.Status {
	out := make([]domain.Status, 0, len(statuses))
	for _, v := range statuses {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
