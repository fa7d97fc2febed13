package inference

import (
	"context"
	"image"
	"log/slog"

	"github.com/fablepress/backend/internal/domain"
)

// FallbackGateway tries the remote server first and degrades to the local
// compositing path when the remote protocol fails. Non-protocol errors
// (bad workflow template, canceled context) propagate without fallback.
type FallbackGateway struct {
	remote Gateway
	local  Gateway
	logger *slog.Logger
}

// NewFallbackGateway wires the remote-then-local policy.
func NewFallbackGateway(remote, local Gateway, logger *slog.Logger) *FallbackGateway {
	return &FallbackGateway{remote: remote, local: local, logger: logger}
}

func (g *FallbackGateway) TransferFace(ctx context.Context, req *TransferRequest) (image.Image, error) {
	result, err := g.remote.TransferFace(ctx, req)
	if err == nil {
		return result, nil
	}
	if !IsRemoteFailure(err) {
		return nil, err
	}

	g.logger.Warn("Remote inference failed, falling back to local transfer",
		slog.Any("error", err),
	)

	result, localErr := g.local.TransferFace(ctx, req)
	if localErr != nil {
		g.logger.Error("Local transfer failed after remote failure",
			slog.Any("remote_error", err),
			slog.Any("local_error", localErr),
		)
		return nil, domain.ErrInferenceUnavailable
	}
	return result, nil
}
