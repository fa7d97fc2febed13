package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fablepress/backend/internal/api/dto"
	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/internal/pipeline"
	"github.com/fablepress/backend/shared/logger"
	"github.com/fablepress/backend/shared/postgresql"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger   *logger.Logger
	Service  *pipeline.Service
	DBClient *postgresql.Client
}

// PersonalizationHandler handles personalization HTTP requests
type PersonalizationHandler struct {
	logger  *logger.Logger
	service *pipeline.Service
}

// NewPersonalizationHandler creates a new PersonalizationHandler instance
func NewPersonalizationHandler(deps *Dependencies) *PersonalizationHandler {
	return &PersonalizationHandler{
		logger:  deps.Logger,
		service: deps.Service,
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
		return
	}

	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "personalization not found",
		})
		return
	}

	var stateErr *domain.InvalidJobStateError
	if errors.As(err, &stateErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  stateErr.Error(),
			"status": string(stateErr.Current),
		})
		return
	}

	if errors.Is(err, domain.ErrNoFaceDetected) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "no face detected in the submitted photo, replace it and try again",
			"reason": string(domain.FailureNoFaceDetected),
		})
		return
	}

	var manifestErr *domain.ManifestInvalidError
	if errors.As(err, &manifestErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": manifestErr.Error(),
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal error",
	})
}

func toPageDTOs(pages []pipeline.PageView) []dto.PageDTO {
	out := make([]dto.PageDTO, len(pages))
	for i, p := range pages {
		out[i] = dto.PageDTO{PageNum: p.PageNum, URL: p.URL}
	}
	return out
}

func toPersonalizationDTO(view *pipeline.JobView) dto.PersonalizationDTO {
	job := view.Job
	out := dto.PersonalizationDTO{
		JobID:        job.JobID,
		Slug:         job.Slug,
		Status:       string(job.Status),
		ChildName:    job.ChildName,
		ChildAge:     job.ChildAge,
		ChildGender:  job.ChildGender,
		FaceDetected: job.FaceDetected,
		Preview:      toPageDTOs(view.Preview),
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    job.UpdatedAt.Format(time.RFC3339),
	}
	if job.FailureCode != nil {
		code := string(*job.FailureCode)
		out.FailureCode = &code
	}
	return out
}
