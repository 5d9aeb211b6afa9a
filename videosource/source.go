package videosource

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

// ErrStreamEnded signals that no further frames are available from the
// active source. It is normal termination, not a failure.
var ErrStreamEnded = errors.New("stream ended")

// Source produces frames one at a time. Next blocks until a frame is
// available and returns ErrStreamEnded once the source is exhausted. The
// release function must be called when the caller is done with the frame.
type Source interface {
	Next(ctx context.Context) (image.Image, func(), error)
	Close() error
}

// NewSource opens the source the descriptor points at. If the descriptor
// carries a resolution override, every frame the returned Source produces
// has exactly that size. An unopenable source is an error here, before any
// frame is pulled.
func NewSource(desc Descriptor, logger golog.Logger) (Source, error) {
	var src Source
	var err error
	switch desc.Kind {
	case KindImage:
		src, err = newFileSource([]string{desc.Path}, logger)
	case KindImageDirectory:
		src, err = newDirectorySource(desc.Path, logger)
	case KindVideoFile:
		src, err = newFFmpegSource(desc, logger)
	case KindWebcam:
		src, err = newWebcamSource(desc, logger)
	default:
		return nil, errors.Errorf("cannot open source of kind %q", desc.Kind)
	}
	if err != nil {
		return nil, err
	}
	// video and webcam sources are configured to emit the override size
	// directly; image sources get resized frame by frame.
	if desc.HasResolution() && (desc.Kind == KindImage || desc.Kind == KindImageDirectory) {
		src = ResizeSource(src, desc.Width, desc.Height)
	}
	return src, nil
}
