package inference

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

// BuildFaceMask synthesizes the grayscale inpaint mask for an illustration:
// a filled ellipse over the face region, Gaussian-feathered so the transfer
// blends into the artwork. The workflow reads it through an explicit mask
// image on a real RGB channel; alpha-channel masks crash the remote graph.
func BuildFaceMask(illustration image.Image, detector FaceDetector) image.Image {
	bounds := illustration.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	var cx, cy, ax, ay float64

	box, ok := image.Rectangle{}, false
	if detector != nil {
		box, ok = detector.DetectFace(illustration)
	}
	if ok && box.Dx() > 0 && box.Dy() > 0 {
		bw := float64(box.Dx())
		bh := float64(box.Dy())
		cx = float64(box.Min.X) + bw/2
		cy = float64(box.Min.Y) + bh*0.55
		ax = max(1, bw*0.8)
		ay = max(1, bh*1.1)
	} else {
		// No detection: centered ellipse in the upper half of the page,
		// where the subject's head sits in this book's layouts.
		cx = float64(w) / 2
		cy = float64(h) * 0.45
		ax = max(1, float64(w)*0.18)
		ay = max(1, float64(h)*0.22)
	}

	dc := gg.NewContext(w, h)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	dc.SetRGB(1, 1, 1)
	dc.DrawEllipse(cx, cy, ax, ay)
	dc.Fill()

	// Feather proportional to page size, floored for small previews.
	sigma := max(8, float64(min(w, h))*0.03)
	return imaging.Blur(dc.Image(), sigma)
}
