package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablepress/backend/internal/domain"
	"github.com/fablepress/backend/internal/pipeline"
)

func respond(t *testing.T, err error) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRespondError(t *testing.T) {
	t.Run("validation error", func(t *testing.T) {
		w, body := respond(t, domain.NewValidationError("child_age", "must be between 0 and 17"))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "child_age", body["field"])
	})

	t.Run("job not found", func(t *testing.T) {
		w, body := respond(t, domain.ErrJobNotFound)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "personalization not found", body["error"])
	})

	t.Run("invalid state", func(t *testing.T) {
		w, body := respond(t, &domain.InvalidJobStateError{
			JobID:    "j1",
			Current:  domain.StatusPrepayGenerating,
			Expected: []domain.Status{domain.StatusPrepayReady},
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "prepay_generating", body["status"])
	})

	t.Run("no face detected", func(t *testing.T) {
		w, body := respond(t, domain.ErrNoFaceDetected)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "no_face_detected", body["reason"])
	})

	t.Run("broken manifest", func(t *testing.T) {
		w, _ := respond(t, &domain.ManifestInvalidError{Slug: "b", Reason: "no pages"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("unexpected error stays opaque", func(t *testing.T) {
		w, body := respond(t, errors.New("pq: connection refused"))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "internal error", body["error"])
	})
}

func TestToPersonalizationDTO(t *testing.T) {
	detected := true
	code := domain.FailureInferenceUnavailable
	view := &pipeline.JobView{
		Job: &domain.Job{
			JobID:        "job-1",
			Slug:         "brave-knight",
			Status:       domain.StatusGenerationFailed,
			ChildName:    "Mira",
			ChildAge:     5,
			FaceDetected: &detected,
			FailureCode:  &code,
		},
		Preview: []pipeline.PageView{{PageNum: 2, URL: "https://cdn/p2.png"}},
	}

	out := toPersonalizationDTO(view)
	assert.Equal(t, "job-1", out.JobID)
	assert.Equal(t, "generation_failed", out.Status)
	require.NotNil(t, out.FailureCode)
	assert.Equal(t, "inference_unavailable", *out.FailureCode)
	require.Len(t, out.Preview, 1)
	assert.Equal(t, 2, out.Preview[0].PageNum)
}
