package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/disintegration/imaging"

	"github.com/fablepress/backend/internal/artifact"
	"github.com/fablepress/backend/internal/book"
	"github.com/fablepress/backend/internal/compositor"
	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/internal/inference"
	"github.com/fablepress/backend/shared/logger"
)

// faceCropPadding widens the detected face box before cropping the avatar.
const faceCropPadding = 0.1

// Executor runs the three pipeline units. Units are idempotent per
// (job, stage, page): artifact writes overwrite, status moves are CAS,
// so a redelivered message repeats work but never corrupts state.
type Executor struct {
	jobs       JobStore
	artifacts  artifact.Store
	manifests  book.ManifestStore
	planner    *book.Planner
	gateway    inference.Gateway
	detector   inference.FaceDetector
	compositor *compositor.Compositor
	dispatcher Dispatcher
	logger     *logger.Logger
}

// NewExecutor wires the unit executor.
func NewExecutor(
	jobs JobStore,
	artifacts artifact.Store,
	manifests book.ManifestStore,
	planner *book.Planner,
	gateway inference.Gateway,
	detector inference.FaceDetector,
	comp *compositor.Compositor,
	dispatcher Dispatcher,
	log *logger.Logger,
) *Executor {
	return &Executor{
		jobs:       jobs,
		artifacts:  artifacts,
		manifests:  manifests,
		planner:    planner,
		gateway:    gateway,
		detector:   detector,
		compositor: comp,
		dispatcher: dispatcher,
		logger:     log,
	}
}

// Execute runs one task message. A nil return consumes the message; a
// RetryableError asks the worker for a redelivery.
func (e *Executor) Execute(ctx context.Context, msg *domain.TaskMessage) error {
	switch msg.Task {
	case domain.TaskAnalyzePhoto:
		return e.executeAnalysis(ctx, msg)
	case domain.TaskStageBackgrounds:
		return e.executeBackgrounds(ctx, msg)
	case domain.TaskStageRender:
		return e.executeRender(ctx, msg)
	default:
		return fmt.Errorf("%w: unknown task %q", domain.ErrInvalidPayload, msg.Task)
	}
}

// MarkFailed records a terminal failure after the redelivery budget is
// spent. The worker calls it right before acking the poisoned message.
func (e *Executor) MarkFailed(ctx context.Context, msg *domain.TaskMessage, cause error) {
	log := e.logger.WithJob(msg.JobID)

	if msg.PageNum != nil {
		if err := e.jobs.SetPageState(ctx, msg.JobID, msg.Stage, *msg.PageNum, PageStateFailed, cause.Error()); err != nil {
			log.Error("Failed to record page failure", slog.Any("error", err))
		}
		return
	}

	status := domain.StatusGenerationFailed
	if msg.Task == domain.TaskAnalyzePhoto {
		status = domain.StatusAnalysisFailed
	}
	if err := e.jobs.SetFailure(ctx, msg.JobID, status, domain.FailureCodeFor(cause)); err != nil {
		log.Error("Failed to record job failure", slog.Any("error", err))
	}
}

func (e *Executor) executeAnalysis(ctx context.Context, msg *domain.TaskMessage) error {
	log := e.logger.WithJob(msg.JobID)

	err := e.jobs.TransitionStatus(ctx, msg.JobID,
		[]domain.Status{domain.StatusPendingAnalysis, domain.StatusAnalyzing},
		domain.StatusAnalyzing,
	)
	if errors.Is(err, domain.ErrStaleTransition) {
		log.Info("Skipping duplicate analysis delivery")
		return nil
	}
	if err != nil {
		return domain.NewRetryableError(err)
	}

	job, err := e.jobs.Get(ctx, msg.JobID)
	if err != nil {
		return domain.NewRetryableError(err)
	}
	if job.PhotoKey == nil {
		e.failAnalysis(ctx, log, msg.JobID, fmt.Errorf("job has no photo"))
		return nil
	}

	photo, err := e.loadImage(ctx, *job.PhotoKey)
	if err != nil {
		if errors.Is(err, artifact.ErrObjectNotFound) || isDecodeError(err) {
			e.failAnalysis(ctx, log, msg.JobID, err)
			return nil
		}
		return domain.NewRetryableError(err)
	}

	// No face is not a terminal failure: the job completes analysis with
	// the flag down and every generation request is rejected until the
	// customer replaces the photo.
	box, found := e.detector.DetectFace(photo)
	if !found {
		if err := e.jobs.SetAnalysisResult(ctx, msg.JobID, false, nil); err != nil {
			return domain.NewRetryableError(err)
		}
		log.Info("Analysis found no face")
	} else {
		crop := cropFace(photo, box)
		cropKey := artifact.AvatarCropKey(msg.JobID)
		if err := e.storeImage(ctx, cropKey, crop); err != nil {
			return domain.NewRetryableError(err)
		}
		if err := e.jobs.UpsertArtifact(ctx, &domain.Artifact{
			JobID:     msg.JobID,
			Stage:     domain.StageAnalysis,
			Kind:      domain.ArtifactAvatarCrop,
			ObjectKey: cropKey,
		}); err != nil {
			return domain.NewRetryableError(err)
		}
		if err := e.jobs.SetAnalysisResult(ctx, msg.JobID, true, &cropKey); err != nil {
			return domain.NewRetryableError(err)
		}
		log.Info("Analysis completed", slog.String("face_crop", cropKey))
	}

	err = e.jobs.TransitionStatus(ctx, msg.JobID,
		[]domain.Status{domain.StatusAnalyzing},
		domain.StatusAnalyzingCompleted,
	)
	if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
		return domain.NewRetryableError(err)
	}
	return nil
}

func (e *Executor) failAnalysis(ctx context.Context, log *logger.Logger, jobID string, cause error) {
	log.Error("Analysis failed", slog.Any("error", cause))
	if err := e.jobs.SetFailure(ctx, jobID, domain.StatusAnalysisFailed, domain.FailureCodeFor(cause)); err != nil {
		log.Error("Failed to record analysis failure", slog.Any("error", err))
	}
}

func (e *Executor) executeBackgrounds(ctx context.Context, msg *domain.TaskMessage) error {
	log := e.logger.WithJob(msg.JobID)
	updateStatus := msg.PageNum == nil

	job, manifest, pages, err := e.resolvePlan(ctx, msg)
	if err != nil {
		return e.consumeOrRetry(ctx, msg, err)
	}

	if updateStatus {
		err := e.jobs.TransitionStatus(ctx, msg.JobID,
			[]domain.Status{generationPending(msg.Stage), generationActive(msg.Stage)},
			generationActive(msg.Stage),
		)
		if errors.Is(err, domain.ErrStaleTransition) {
			log.Info("Skipping duplicate background delivery",
				slog.String("stage", string(msg.Stage)),
			)
			return nil
		}
		if err != nil {
			return domain.NewRetryableError(err)
		}
	} else {
		if err := e.jobs.SetPageState(ctx, msg.JobID, msg.Stage, *msg.PageNum, PageStateGenerating, ""); err != nil {
			return domain.NewRetryableError(err)
		}
	}

	needsSwap := false
	for _, page := range pages {
		if page.NeedsFaceSwap {
			needsSwap = true
			break
		}
	}

	var childImg image.Image
	if needsSwap {
		if !job.HasFace() || job.FaceCropKey == nil {
			return e.consumeOrRetry(ctx, msg, domain.ErrNoFaceDetected)
		}
		childImg, err = e.loadImage(ctx, *job.FaceCropKey)
		if err != nil {
			return domain.NewRetryableError(err)
		}
	}

	var seed *int64
	if msg.RandomizeSeed {
		v := rand.Int64N(1<<31-1) + 1
		seed = &v
	}

	for _, page := range pages {
		out, err := e.buildPageBackground(ctx, job, manifest, &page, childImg, seed)
		if err != nil {
			return e.consumeOrRetry(ctx, msg, err)
		}

		bgKey := artifact.PageBackgroundKey(msg.JobID, page.PageNum)
		if err := e.storeImage(ctx, bgKey, out); err != nil {
			return domain.NewRetryableError(err)
		}
		pageNum := page.PageNum
		if err := e.jobs.UpsertArtifact(ctx, &domain.Artifact{
			JobID:     msg.JobID,
			Stage:     msg.Stage,
			Kind:      domain.ArtifactPageBackground,
			PageNum:   &pageNum,
			ObjectKey: bgKey,
		}); err != nil {
			return domain.NewRetryableError(err)
		}

		log.Info("Page background ready",
			slog.String("stage", string(msg.Stage)),
			slog.Int("page_num", page.PageNum),
		)
	}

	if !updateStatus {
		if err := e.jobs.SetPageState(ctx, msg.JobID, msg.Stage, *msg.PageNum, PageStateRenderQueued, ""); err != nil {
			return domain.NewRetryableError(err)
		}
	}

	// Chain the CPU unit. The render task owns the terminal transition.
	if err := e.dispatcher.Dispatch(ctx, &domain.TaskMessage{
		JobID:   msg.JobID,
		Task:    domain.TaskStageRender,
		Stage:   msg.Stage,
		PageNum: msg.PageNum,
	}); err != nil {
		return domain.NewRetryableError(err)
	}
	return nil
}

// buildPageBackground produces the post-inference background for one page.
// Face transfer output must match the manifest geometry exactly; base
// pages without a face swap are normalized instead.
func (e *Executor) buildPageBackground(ctx context.Context, job *domain.Job, manifest *book.Manifest, page *book.Page, childImg image.Image, seed *int64) (image.Image, error) {
	base, err := e.loadImage(ctx, page.BaseKey)
	if err != nil {
		if errors.Is(err, artifact.ErrObjectNotFound) {
			return nil, &domain.ManifestInvalidError{
				Slug:   manifest.Slug,
				Reason: fmt.Sprintf("page %d base image %s missing", page.PageNum, page.BaseKey),
			}
		}
		return nil, domain.NewRetryableError(err)
	}

	target := manifest.Output.PageSizePx

	if !page.NeedsFaceSwap {
		return normalizeSquare(base, target), nil
	}

	pagePrompt := page.Prompt
	if pagePrompt == "" {
		pagePrompt = "child portrait"
	}
	negative := page.NegativePrompt
	if negative == "" {
		negative = "low quality, bad face, distorted"
	}

	out, err := e.gateway.TransferFace(ctx, &inference.TransferRequest{
		ChildPhoto:     childImg,
		Illustration:   normalizeSquare(base, target),
		Prompt:         book.JoinPromptParts(manifest.PositivePrompt, pagePrompt),
		NegativePrompt: negative,
		Seed:           seed,
	})
	if err != nil {
		return nil, err
	}

	// Transfer output is used for print as-is; a wrong size means the
	// workflow is misconfigured and rescaling would hide it.
	b := out.Bounds()
	if b.Dx() != target || b.Dy() != target {
		return nil, &domain.SizeMismatchError{
			PageNum: page.PageNum,
			GotW:    b.Dx(), GotH: b.Dy(),
			WantW: target, WantH: target,
		}
	}
	return out, nil
}

func (e *Executor) executeRender(ctx context.Context, msg *domain.TaskMessage) error {
	log := e.logger.WithJob(msg.JobID)
	updateStatus := msg.PageNum == nil

	job, manifest, pages, err := e.resolvePlan(ctx, msg)
	if err != nil {
		return e.consumeOrRetry(ctx, msg, err)
	}

	if updateStatus {
		err := e.jobs.TransitionStatus(ctx, msg.JobID,
			[]domain.Status{generationPending(msg.Stage), generationActive(msg.Stage)},
			generationActive(msg.Stage),
		)
		if errors.Is(err, domain.ErrStaleTransition) {
			log.Info("Skipping duplicate render delivery",
				slog.String("stage", string(msg.Stage)),
			)
			return nil
		}
		if err != nil {
			return domain.NewRetryableError(err)
		}
	} else {
		if err := e.jobs.SetPageState(ctx, msg.JobID, msg.Stage, *msg.PageNum, PageStateRendering, ""); err != nil {
			return domain.NewRetryableError(err)
		}
	}

	vars := map[string]string{
		"child_name": job.ChildName,
		"child_age":  strconv.Itoa(job.ChildAge),
	}
	if job.ChildGender != nil {
		vars["child_gender"] = *job.ChildGender
	} else {
		vars["child_gender"] = ""
	}

	target := manifest.Output.PageSizePx

	for _, page := range pages {
		bg, err := e.loadRenderBackground(ctx, msg, manifest, &page, target)
		if err != nil {
			return e.consumeOrRetry(ctx, msg, err)
		}

		final := bg
		if len(page.TextLayers) > 0 {
			final, err = e.compositor.RenderPage(ctx, bg, page.TextLayers, vars, manifest.Output)
			if err != nil {
				return e.consumeOrRetry(ctx, msg, err)
			}
		}

		finalKey := artifact.PageFinalKey(msg.JobID, page.PageNum)
		if err := e.storeImage(ctx, finalKey, final); err != nil {
			return domain.NewRetryableError(err)
		}
		pageNum := page.PageNum
		if err := e.jobs.UpsertArtifact(ctx, &domain.Artifact{
			JobID:     msg.JobID,
			Stage:     msg.Stage,
			Kind:      domain.ArtifactPageFinal,
			PageNum:   &pageNum,
			ObjectKey: finalKey,
		}); err != nil {
			return domain.NewRetryableError(err)
		}

		log.Info("Page rendered",
			slog.String("stage", string(msg.Stage)),
			slog.Int("page_num", page.PageNum),
		)
	}

	if updateStatus {
		err := e.jobs.TransitionStatus(ctx, msg.JobID,
			[]domain.Status{generationActive(msg.Stage)},
			generationDone(msg.Stage),
		)
		if err != nil && !errors.Is(err, domain.ErrStaleTransition) {
			return domain.NewRetryableError(err)
		}
		log.Info("Stage completed", slog.String("stage", string(msg.Stage)))
	} else {
		if err := e.jobs.SetPageState(ctx, msg.JobID, msg.Stage, *msg.PageNum, PageStateCompleted, ""); err != nil {
			return domain.NewRetryableError(err)
		}
	}
	return nil
}

// loadRenderBackground resolves a page's background for text rendering.
// Face-swap pages require the GPU unit's output; others derive it from
// the base image directly and persist it for consistency.
func (e *Executor) loadRenderBackground(ctx context.Context, msg *domain.TaskMessage, manifest *book.Manifest, page *book.Page, target int) (image.Image, error) {
	bgKey := artifact.PageBackgroundKey(msg.JobID, page.PageNum)

	if page.NeedsFaceSwap {
		bg, err := e.loadImage(ctx, bgKey)
		if err != nil {
			if errors.Is(err, artifact.ErrObjectNotFound) {
				return nil, fmt.Errorf("page %d background missing, GPU unit has not produced it", page.PageNum)
			}
			return nil, domain.NewRetryableError(err)
		}
		return bg, nil
	}

	base, err := e.loadImage(ctx, page.BaseKey)
	if err != nil {
		if errors.Is(err, artifact.ErrObjectNotFound) {
			return nil, &domain.ManifestInvalidError{
				Slug:   manifest.Slug,
				Reason: fmt.Sprintf("page %d base image %s missing", page.PageNum, page.BaseKey),
			}
		}
		return nil, domain.NewRetryableError(err)
	}

	bg := normalizeSquare(base, target)
	if err := e.storeImage(ctx, bgKey, bg); err != nil {
		return nil, domain.NewRetryableError(err)
	}
	pageNum := page.PageNum
	if err := e.jobs.UpsertArtifact(ctx, &domain.Artifact{
		JobID:     msg.JobID,
		Stage:     msg.Stage,
		Kind:      domain.ArtifactPageBackground,
		PageNum:   &pageNum,
		ObjectKey: bgKey,
	}); err != nil {
		return nil, domain.NewRetryableError(err)
	}
	return bg, nil
}

// resolvePlan loads the job, its manifest and the page plan for the
// message, validating a single-page request against the stage plan.
func (e *Executor) resolvePlan(ctx context.Context, msg *domain.TaskMessage) (*domain.Job, *book.Manifest, []book.Page, error) {
	job, err := e.jobs.Get(ctx, msg.JobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, nil, nil, fmt.Errorf("%w: job %s", domain.ErrInvalidPayload, msg.JobID)
		}
		return nil, nil, nil, domain.NewRetryableError(err)
	}

	manifest, err := e.manifests.Load(ctx, job.Slug)
	if err != nil {
		var mi *domain.ManifestInvalidError
		if errors.As(err, &mi) {
			return nil, nil, nil, err
		}
		return nil, nil, nil, domain.NewRetryableError(err)
	}

	pages := e.planner.Pages(manifest, msg.Stage)
	if msg.PageNum != nil {
		var single []book.Page
		for _, page := range pages {
			if page.PageNum == *msg.PageNum {
				single = []book.Page{page}
				break
			}
		}
		if single == nil {
			return nil, nil, nil, fmt.Errorf("%w: page %d not in stage %s", domain.ErrInvalidPayload, *msg.PageNum, msg.Stage)
		}
		pages = single
	}
	return job, manifest, pages, nil
}

// consumeOrRetry routes a unit error: transient failures become retryable
// for the worker, everything else terminally fails the job (or page) and
// consumes the message.
func (e *Executor) consumeOrRetry(ctx context.Context, msg *domain.TaskMessage, err error) error {
	if domain.IsRetryable(err) {
		return err
	}

	e.logger.WithJob(msg.JobID).Error("Unit failed",
		slog.String("task", string(msg.Task)),
		slog.Any("error", err),
	)
	e.MarkFailed(ctx, msg, err)
	return nil
}

func (e *Executor) loadImage(ctx context.Context, key string) (image.Image, error) {
	data, err := e.artifacts.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &decodeError{key: key, err: err}
	}
	return img, nil
}

func (e *Executor) storeImage(ctx context.Context, key string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return e.artifacts.Put(ctx, key, buf.Bytes(), "image/png")
}

type decodeError struct {
	key string
	err error
}

func (d *decodeError) Error() string {
	return fmt.Sprintf("failed to decode image %s: %v", d.key, d.err)
}

func (d *decodeError) Unwrap() error {
	return d.err
}

func isDecodeError(err error) bool {
	var de *decodeError
	return errors.As(err, &de)
}

// cropFace cuts the detected face with padding, clamped to the photo.
func cropFace(photo image.Image, box image.Rectangle) image.Image {
	padX := int(float64(box.Dx()) * faceCropPadding)
	padY := int(float64(box.Dy()) * faceCropPadding)
	padded := image.Rect(box.Min.X-padX, box.Min.Y-padY, box.Max.X+padX, box.Max.Y+padY)
	return imaging.Crop(photo, padded.Intersect(photo.Bounds()))
}

func normalizeSquare(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	return imaging.Resize(img, size, size, imaging.Lanczos)
}
