package inference

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"log/slog"

	"github.com/disintegration/imaging"
)

// LocalTransfer is the degraded on-box path used when the remote server is
// down: the detected face crop from the child photo is composited onto the
// illustration through the feathered face mask. No diffusion refinement,
// but the page stays personalized instead of failing outright.
type LocalTransfer struct {
	detector FaceDetector
	logger   *slog.Logger
}

// NewLocalTransfer creates the local compositing path.
func NewLocalTransfer(detector FaceDetector, logger *slog.Logger) *LocalTransfer {
	return &LocalTransfer{detector: detector, logger: logger}
}

// TransferFace composites the child's face into the illustration's face
// region. Without a face in either image the illustration is returned
// untouched, matching the remote path's behavior on undetectable pages.
func (l *LocalTransfer) TransferFace(ctx context.Context, req *TransferRequest) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	srcBox, srcOK := l.detector.DetectFace(req.ChildPhoto)
	dstBox, dstOK := l.detector.DetectFace(req.Illustration)
	if !srcOK || !dstOK {
		l.logger.Warn("Local transfer missing a face, returning base illustration",
			slog.Bool("photo_face", srcOK),
			slog.Bool("illustration_face", dstOK),
		)
		return req.Illustration, nil
	}

	faceCrop := imaging.Crop(req.ChildPhoto, srcBox)
	faceFitted := imaging.Resize(faceCrop, dstBox.Dx(), dstBox.Dy(), imaging.Lanczos)

	mask := req.Mask
	if mask == nil {
		mask = BuildFaceMask(req.Illustration, l.detector)
	}

	bounds := req.Illustration.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, req.Illustration, bounds.Min, draw.Src)

	overlay := image.NewRGBA(bounds)
	draw.Draw(overlay, dstBox, faceFitted, image.Point{}, draw.Src)

	draw.DrawMask(out, bounds, overlay, bounds.Min, toAlphaMask(mask), bounds.Min, draw.Over)
	return out, nil
}

// toAlphaMask converts a grayscale mask into an alpha mask for draw.DrawMask.
func toAlphaMask(mask image.Image) *image.Alpha {
	bounds := mask.Bounds()
	alpha := image.NewAlpha(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, _, _, _ := mask.At(x, y).RGBA()
			alpha.SetAlpha(x, y, color.Alpha{A: uint8(r >> 8)})
		}
	}
	return alpha
}
