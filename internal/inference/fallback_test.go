package inference

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fablepress/backend/internal/domain"
)

type stubGateway struct {
	result image.Image
	err    error
	calls  int
}

func (g *stubGateway) TransferFace(_ context.Context, _ *TransferRequest) (image.Image, error) {
	g.calls++
	return g.result, g.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackGateway_RemoteSucceeds(t *testing.T) {
	want := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	remote := &stubGateway{result: want}
	local := &stubGateway{}
	gw := NewFallbackGateway(remote, local, discardLogger())

	got, err := gw.TransferFace(context.Background(), &TransferRequest{})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Zero(t, local.calls)
}

func TestFallbackGateway_RemoteProtocolFailureUsesLocal(t *testing.T) {
	want := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	remote := &stubGateway{err: newRemoteError(errors.New("connection refused"))}
	local := &stubGateway{result: want}
	gw := NewFallbackGateway(remote, local, discardLogger())

	got, err := gw.TransferFace(context.Background(), &TransferRequest{})
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, 1, local.calls)
}

func TestFallbackGateway_NonRemoteErrorPropagates(t *testing.T) {
	cause := errors.New("invalid workflow template")
	remote := &stubGateway{err: cause}
	local := &stubGateway{}
	gw := NewFallbackGateway(remote, local, discardLogger())

	_, err := gw.TransferFace(context.Background(), &TransferRequest{})
	assert.ErrorIs(t, err, cause)
	assert.Zero(t, local.calls)
}

func TestFallbackGateway_BothFail(t *testing.T) {
	remote := &stubGateway{err: newRemoteError(errors.New("timeout"))}
	local := &stubGateway{err: errors.New("no checkpoint")}
	gw := NewFallbackGateway(remote, local, discardLogger())

	_, err := gw.TransferFace(context.Background(), &TransferRequest{})
	assert.ErrorIs(t, err, domain.ErrInferenceUnavailable)
}
