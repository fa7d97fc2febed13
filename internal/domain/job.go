package domain

import (
	"time"
)

// Status is the lifecycle state of a personalization job.
type Status string

const (
	StatusPendingAnalysis    Status = "pending_analysis"
	StatusAnalyzing          Status = "analyzing"
	StatusAnalyzingCompleted Status = "analyzing_completed"
	// StatusConfirmed is written by the cart system when the customer locks
	// in the personalization. The pipeline treats it as analyzing_completed.
	StatusConfirmed         Status = "confirmed"
	StatusPrepayPending     Status = "prepay_pending"
	StatusPrepayGenerating  Status = "prepay_generating"
	StatusPrepayReady       Status = "prepay_ready"
	StatusPostpayPending    Status = "postpay_pending"
	StatusPostpayGenerating Status = "postpay_generating"
	StatusCompleted         Status = "completed"
	StatusAnalysisFailed    Status = "analysis_failed"
	StatusGenerationFailed  Status = "generation_failed"
)

// Terminal reports whether the pipeline is done with s. The failure
// states can still restart through a photo replacement; completed cannot.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusAnalysisFailed, StatusGenerationFailed:
		return true
	}
	return false
}

// Failed reports whether s is a failure state.
func (s Status) Failed() bool {
	return s == StatusAnalysisFailed || s == StatusGenerationFailed
}

// ReadyForGeneration reports whether a generation request is accepted in s.
func (s Status) ReadyForGeneration() bool {
	switch s {
	case StatusAnalyzingCompleted, StatusConfirmed, StatusPrepayReady:
		return true
	}
	return false
}

// Stage identifies which slice of the book a generation run covers.
type Stage string

const (
	StagePrepay  Stage = "prepay"
	StagePostpay Stage = "postpay"
	// StageAnalysis tags artifacts produced before any generation stage
	// (the avatar crop). It is never a generation target.
	StageAnalysis Stage = "analysis"
)

// Valid reports whether s names a known stage.
func (s Stage) Valid() bool {
	return s == StagePrepay || s == StagePostpay
}

// FailureCode is the machine-readable reason attached to a failed status.
type FailureCode string

const (
	FailureNoFaceDetected       FailureCode = "no_face_detected"
	FailureInferenceUnavailable FailureCode = "inference_unavailable"
	FailureManifestInvalid      FailureCode = "manifest_invalid"
	FailureSizeMismatch         FailureCode = "size_mismatch"
	FailureInternal             FailureCode = "internal"
)

// Job is a personalization request and its pipeline state.
type Job struct {
	JobID        string       `db:"job_id" json:"job_id"`
	UserID       *string      `db:"user_id" json:"user_id,omitempty"`
	Slug         string       `db:"slug" json:"slug"`
	Status       Status       `db:"status" json:"status"`
	ChildName    string       `db:"child_name" json:"child_name"`
	ChildAge     int          `db:"child_age" json:"child_age"`
	ChildGender  *string      `db:"child_gender" json:"child_gender,omitempty"`
	PhotoKey     *string      `db:"photo_key" json:"photo_key,omitempty"`
	FaceDetected *bool        `db:"face_detected" json:"face_detected,omitempty"`
	FaceCropKey  *string      `db:"face_crop_key" json:"face_crop_key,omitempty"`
	FailureCode  *FailureCode `db:"failure_code" json:"failure_code,omitempty"`
	CartItemID   *string      `db:"cart_item_id" json:"cart_item_id,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updated_at"`
}

// HasFace reports whether analysis found a usable face in the child photo.
func (j *Job) HasFace() bool {
	return j.FaceDetected != nil && *j.FaceDetected
}

// ArtifactKind distinguishes the artifact records a job accumulates.
type ArtifactKind string

const (
	ArtifactPageBackground ArtifactKind = "page_bg_png"
	ArtifactPageFinal      ArtifactKind = "page_png"
	ArtifactAvatarCrop     ArtifactKind = "avatar_crop_png"
)

// Artifact is the current pointer to one produced object for a job.
type Artifact struct {
	ID        string       `db:"id" json:"id"`
	JobID     string       `db:"job_id" json:"job_id"`
	Stage     Stage        `db:"stage" json:"stage"`
	Kind      ArtifactKind `db:"kind" json:"kind"`
	PageNum   *int         `db:"page_num" json:"page_num,omitempty"`
	ObjectKey string       `db:"object_key" json:"object_key"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}
