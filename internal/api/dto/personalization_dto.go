package dto

// SubmitPersonalizationRequest is the multipart form for a new
// personalization. The child photo travels as the "child_photo" file part.
type SubmitPersonalizationRequest struct {
	Slug        string `form:"slug" binding:"required"`
	ChildName   string `form:"child_name" binding:"required"`
	ChildAge    int    `form:"child_age"`
	ChildGender string `form:"child_gender"`
	UserID      string `form:"user_id"`
}

// GenerateRequest asks for one stage of page generation.
type GenerateRequest struct {
	Stage         string `form:"stage" json:"stage" binding:"required"`
	RandomizeSeed bool   `form:"randomize_seed" json:"randomize_seed"`
}

// RegeneratePageRequest re-runs a single page of a generated stage.
type RegeneratePageRequest struct {
	Stage         string `form:"stage" json:"stage" binding:"required"`
	PageNum       int    `form:"page_num" json:"page_num" binding:"required"`
	RandomizeSeed bool   `form:"randomize_seed" json:"randomize_seed"`
}

// PageDTO is one presigned page URL.
type PageDTO struct {
	PageNum int    `json:"page_num"`
	URL     string `json:"url"`
}

// PersonalizationDTO is the polled job view.
type PersonalizationDTO struct {
	JobID        string    `json:"job_id"`
	Slug         string    `json:"slug"`
	Status       string    `json:"status"`
	ChildName    string    `json:"child_name"`
	ChildAge     int       `json:"child_age"`
	ChildGender  *string   `json:"child_gender,omitempty"`
	FaceDetected *bool     `json:"face_detected,omitempty"`
	FailureCode  *string   `json:"failure_code,omitempty"`
	Preview      []PageDTO `json:"preview,omitempty"`
	CreatedAt    string    `json:"created_at"`
	UpdatedAt    string    `json:"updated_at"`
}

// PagesResponse wraps a list of presigned pages.
type PagesResponse struct {
	JobID string    `json:"job_id"`
	Stage string    `json:"stage"`
	Pages []PageDTO `json:"pages"`
}

// AvatarResponse carries the presigned face crop.
type AvatarResponse struct {
	JobID string `json:"job_id"`
	URL   string `json:"url"`
}
