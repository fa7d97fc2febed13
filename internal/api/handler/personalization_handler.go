package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/fablepress/backend/internal/api/dto"
	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/internal/pipeline"
)

// maxPhotoSize bounds the uploaded child photo.
const maxPhotoSize = 15 << 20

// Submit handles POST /api/v1/personalizations
// Stores the child photo and starts photo analysis
func (h *PersonalizationHandler) Submit(c *gin.Context) {
	var req dto.SubmitPersonalizationRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	filename, photo, err := readPhotoPart(c)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := h.service.SubmitPhoto(c.Request.Context(), &pipeline.SubmitRequest{
		Slug:        req.Slug,
		ChildName:   req.ChildName,
		ChildAge:    req.ChildAge,
		ChildGender: req.ChildGender,
		UserID:      req.UserID,
		Filename:    filename,
		Photo:       photo,
	})
	if err != nil {
		h.logger.Error("Failed to submit personalization", slog.String("error", err.Error()))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPersonalizationDTO(&pipeline.JobView{Job: job}))
}

// GetStatus handles GET /api/v1/personalizations/:job_id
// Returns the polled job state with preview URLs once pages exist
func (h *PersonalizationHandler) GetStatus(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPersonalizationDTO(view))
}

// ReplacePhoto handles POST /api/v1/personalizations/:job_id/avatar
// Swaps the child photo and restarts analysis
func (h *PersonalizationHandler) ReplacePhoto(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	filename, photo, err := readPhotoPart(c)
	if err != nil {
		respondError(c, err)
		return
	}

	job, err := h.service.ReplacePhoto(c.Request.Context(), jobID, filename, photo)
	if err != nil {
		h.logger.Error("Failed to replace photo",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toPersonalizationDTO(&pipeline.JobView{Job: job}))
}

// GetAvatar handles GET /api/v1/personalizations/:job_id/avatar
// Returns a presigned URL for the analysis face crop
func (h *PersonalizationHandler) GetAvatar(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	url, err := h.service.AvatarURL(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.AvatarResponse{JobID: jobID, URL: url})
}

// Generate handles POST /api/v1/personalizations/:job_id/generate
// Starts page generation for one stage
func (h *PersonalizationHandler) Generate(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	var req dto.GenerateRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "stage is required",
		})
		return
	}

	job, err := h.service.RequestGeneration(c.Request.Context(), jobID, domain.Stage(req.Stage), req.RandomizeSeed)
	if err != nil {
		h.logger.Error("Failed to request generation",
			slog.String("job_id", jobID),
			slog.String("stage", req.Stage),
			slog.String("error", err.Error()),
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, toPersonalizationDTO(&pipeline.JobView{Job: job}))
}

// RegeneratePage handles POST /api/v1/personalizations/:job_id/pages/regenerate
// Re-runs a single page of an already generated stage
func (h *PersonalizationHandler) RegeneratePage(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	var req dto.RegeneratePageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "stage and page_num are required",
		})
		return
	}

	err := h.service.RegeneratePage(c.Request.Context(), jobID, domain.Stage(req.Stage), req.PageNum, req.RandomizeSeed)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":   jobID,
		"stage":    req.Stage,
		"page_num": req.PageNum,
	})
}

// Preview handles GET /api/v1/personalizations/:job_id/preview
// Returns the front-visible rendered pages of a stage
func (h *PersonalizationHandler) Preview(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	stage := domain.Stage(c.DefaultQuery("stage", string(domain.StagePrepay)))
	pages, err := h.service.StagePreview(c.Request.Context(), jobID, stage)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PagesResponse{
		JobID: jobID,
		Stage: string(stage),
		Pages: toPageDTOs(pages),
	})
}

// Artifacts handles GET /api/v1/personalizations/:job_id/artifacts
// Returns every final page of a stage once its gate status is reached
func (h *PersonalizationHandler) Artifacts(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	stage := domain.Stage(c.DefaultQuery("stage", string(domain.StagePrepay)))
	pages, err := h.service.StageArtifacts(c.Request.Context(), jobID, stage)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.PagesResponse{
		JobID: jobID,
		Stage: string(stage),
		Pages: toPageDTOs(pages),
	})
}

// jobID validates the :job_id path parameter.
func (h *PersonalizationHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// readPhotoPart extracts the "child_photo" multipart file.
func readPhotoPart(c *gin.Context) (string, []byte, error) {
	fileHeader, err := c.FormFile("child_photo")
	if err != nil {
		return "", nil, domain.NewValidationError("child_photo", "file is required")
	}
	if fileHeader.Size > maxPhotoSize {
		return "", nil, domain.NewValidationError("child_photo", "file too large")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", nil, domain.NewValidationError("child_photo", "unreadable file")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxPhotoSize+1))
	if err != nil {
		return "", nil, domain.NewValidationError("child_photo", "unreadable file")
	}
	if int64(len(data)) > maxPhotoSize {
		return "", nil, domain.NewValidationError("child_photo", "file too large")
	}

	return fileHeader.Filename, data, nil
}
