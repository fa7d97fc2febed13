package artifact

import "fmt"

// Object key conventions. Keys are deterministic per job so that repeated
// runs of a unit overwrite rather than accumulate.

// PhotoKey is the uploaded child photo.
func PhotoKey(jobID, filename string) string {
	return fmt.Sprintf("child_photos/%s_%s", jobID, filename)
}

// AvatarCropKey is the analysis face crop shown in the review UI.
func AvatarCropKey(jobID string) string {
	return fmt.Sprintf("avatars/%s_crop.png", jobID)
}

// PageBackgroundKey is the post-inference illustration before text overlay.
func PageBackgroundKey(jobID string, pageNum int) string {
	return fmt.Sprintf("layout/%s/pages/page_%02d_bg.png", jobID, pageNum)
}

// PageFinalKey is the finished page with text composited.
func PageFinalKey(jobID string, pageNum int) string {
	return fmt.Sprintf("layout/%s/pages/page_%02d.png", jobID, pageNum)
}

// ManifestKey is the book template manifest for a slug.
func ManifestKey(slug string) string {
	return fmt.Sprintf("templates/%s/manifest.json", slug)
}
