package inference

import (
	"context"
	"errors"
	"fmt"
	"image"
)

// DefaultNegativePrompt is applied when a page specifies none.
const DefaultNegativePrompt = "plastic skin, deformed, cross-eyed, mismatched pupils, crooked teeth, " +
	"bruises under the eyes, red nose, pink nose, extra teeth, oversized eyes, long neck, strabismus, " +
	"big teeth, makeup, different color eyes, heterochromia, mismatched eyes, squint, misaligned eyes, diverse eyes"

// TransferRequest carries everything one face transfer needs.
type TransferRequest struct {
	ChildPhoto   image.Image
	Illustration image.Image
	// Mask overrides the synthesized face mask when the template ships an
	// explicit one alongside the base illustration.
	Mask           image.Image
	Prompt         string
	NegativePrompt string
	// Seed pins the sampler; nil lets the workflow keep its template seed.
	Seed *int64
}

// Gateway produces a personalized illustration from a child photo and a
// base page.
type Gateway interface {
	TransferFace(ctx context.Context, req *TransferRequest) (image.Image, error)
}

// FaceDetector locates the dominant face in an image.
type FaceDetector interface {
	// DetectFace returns the bounding box of the largest detected face,
	// or ok=false when no face is found.
	DetectFace(img image.Image) (box image.Rectangle, ok bool)
}

// remoteError marks a failure of the remote inference protocol. The
// fallback gateway switches to the local path on it; anything else
// propagates untouched.
type remoteError struct {
	err error
}

func (e *remoteError) Error() string {
	return fmt.Sprintf("remote inference failed: %v", e.err)
}

func (e *remoteError) Unwrap() error {
	return e.err
}

func newRemoteError(err error) error {
	return &remoteError{err: err}
}

// IsRemoteFailure reports whether err came from the remote protocol.
func IsRemoteFailure(err error) bool {
	var re *remoteError
	return errors.As(err, &re)
}
