package inference

import (
	"fmt"
	"image"

	pigo "github.com/esimov/pigo/core"
)

// Face detection tuning. Thresholds follow the cascade author's defaults
// for frontal photos.
const (
	detectMinSize     = 48
	detectMaxSize     = 2000
	detectShiftFactor = 0.1
	detectScaleFactor = 1.1
	detectQThreshold  = 5.0
	detectClusterIoU  = 0.2
)

// PigoDetector locates faces with the pigo cascade classifier.
type PigoDetector struct {
	classifier *pigo.Pigo
}

// NewPigoDetector unpacks a facefinder cascade.
func NewPigoDetector(cascade []byte) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier}, nil
}

// DetectFace returns the bounding box of the largest confident detection.
func (d *PigoDetector) DetectFace(img image.Image) (image.Rectangle, bool) {
	bounds := img.Bounds()
	cols := bounds.Dx()
	rows := bounds.Dy()
	if cols == 0 || rows == 0 {
		return image.Rectangle{}, false
	}

	pixels := pigo.RgbToGrayscale(img)

	params := pigo.CascadeParams{
		MinSize:     detectMinSize,
		MaxSize:     detectMaxSize,
		ShiftFactor: detectShiftFactor,
		ScaleFactor: detectScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, detectClusterIoU)

	best := -1
	for i, det := range dets {
		if det.Q < detectQThreshold {
			continue
		}
		if best < 0 || det.Scale > dets[best].Scale {
			best = i
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}

	det := dets[best]
	half := det.Scale / 2
	box := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half)
	return box.Intersect(bounds), true
}
