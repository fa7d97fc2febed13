package inference

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDetector struct {
	box image.Rectangle
	ok  bool
}

func (d *stubDetector) DetectFace(_ image.Image) (image.Rectangle, bool) {
	return d.box, d.ok
}

func maskLuma(t *testing.T, mask image.Image, x, y int) uint8 {
	t.Helper()
	return color.GrayModel.Convert(mask.At(x, y)).(color.Gray).Y
}

func TestBuildFaceMask_DetectedFace(t *testing.T) {
	illustration := image.NewNRGBA(image.Rect(0, 0, 400, 400))
	det := &stubDetector{box: image.Rect(100, 80, 260, 280), ok: true}

	mask := BuildFaceMask(illustration, det)
	require.Equal(t, illustration.Bounds(), mask.Bounds())

	// Ellipse centre sits at the box centre x and 55% down the box.
	cx := 100 + 160/2
	cy := 80 + int(200*0.55)
	assert.Greater(t, maskLuma(t, mask, cx, cy), uint8(200))

	// Far corners stay masked out.
	assert.Less(t, maskLuma(t, mask, 5, 5), uint8(20))
	assert.Less(t, maskLuma(t, mask, 394, 394), uint8(20))
}

func TestBuildFaceMask_FallbackGeometry(t *testing.T) {
	illustration := image.NewNRGBA(image.Rect(0, 0, 400, 400))

	for _, det := range []FaceDetector{nil, &stubDetector{ok: false}} {
		mask := BuildFaceMask(illustration, det)

		// Centered in the upper half of the page.
		assert.Greater(t, maskLuma(t, mask, 200, 180), uint8(200))
		assert.Less(t, maskLuma(t, mask, 200, 390), uint8(20))
		assert.Less(t, maskLuma(t, mask, 10, 180), uint8(20))
	}
}

func TestBuildFaceMask_FeatheredEdge(t *testing.T) {
	illustration := image.NewNRGBA(image.Rect(0, 0, 400, 400))

	mask := BuildFaceMask(illustration, nil)

	// The blur leaves a gradient at the ellipse boundary instead of a
	// hard step. ax = 72 at this size, so x=272 is right on the edge.
	edge := maskLuma(t, mask, 272, 180)
	assert.Greater(t, edge, uint8(20))
	assert.Less(t, edge, uint8(240))
}
