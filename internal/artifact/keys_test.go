package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	jobID := "4f9d2a10-9b7e-4c1a-8a51-2f3d9f6f1c00"

	assert.Equal(t, "child_photos/"+jobID+"_selfie.jpg", PhotoKey(jobID, "selfie.jpg"))
	assert.Equal(t, "avatars/"+jobID+"_crop.png", AvatarCropKey(jobID))
	assert.Equal(t, "layout/"+jobID+"/pages/page_02_bg.png", PageBackgroundKey(jobID, 2))
	assert.Equal(t, "layout/"+jobID+"/pages/page_12_bg.png", PageBackgroundKey(jobID, 12))
	assert.Equal(t, "layout/"+jobID+"/pages/page_07.png", PageFinalKey(jobID, 7))
	assert.Equal(t, "templates/space-adventure/manifest.json", ManifestKey("space-adventure"))
}

func TestKeys_Deterministic(t *testing.T) {
	jobID := "4f9d2a10-9b7e-4c1a-8a51-2f3d9f6f1c00"

	// Re-running a unit must hit the same object.
	assert.Equal(t, PageFinalKey(jobID, 3), PageFinalKey(jobID, 3))
	assert.NotEqual(t, PageFinalKey(jobID, 3), PageFinalKey(jobID, 4))
}
