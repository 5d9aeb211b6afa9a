package videosource

import (
	"context"
	"image"

	"github.com/edaniels/golog"
	"github.com/edaniels/gostream/media"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pkg/errors"
)

// webcamSource pulls frames from a live USB camera. A camera disconnect
// surfaces as the end of the stream.
type webcamSource struct {
	reader media.VideoReadCloser
	logger golog.Logger
}

func newWebcamSource(desc Descriptor, logger golog.Logger) (*webcamSource, error) {
	labels := media.QueryVideoDeviceLabels()
	if desc.CameraIndex >= len(labels) {
		return nil, errors.Errorf("camera index %d out of range: found %d cameras", desc.CameraIndex, len(labels))
	}
	label := labels[desc.CameraIndex]

	reader, err := media.GetNamedVideoReader(label, makeConstraints(desc))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open camera %q", label)
	}
	logger.Infow("opened camera", "label", label, "index", desc.CameraIndex)
	return &webcamSource{reader: reader, logger: logger}, nil
}

func makeConstraints(desc Descriptor) mediadevices.MediaStreamConstraints {
	return mediadevices.MediaStreamConstraints{
		Video: func(constraint *mediadevices.MediaTrackConstraints) {
			if desc.HasResolution() {
				constraint.Width = prop.IntExact(desc.Width)
				constraint.Height = prop.IntExact(desc.Height)
			} else {
				constraint.Width = prop.IntRanged{Min: 0, Max: 4096, Ideal: 640}
				constraint.Height = prop.IntRanged{Min: 0, Max: 2160, Ideal: 480}
			}
			constraint.FrameRate = prop.FloatRanged{Min: 0, Max: 200, Ideal: 30}
			constraint.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatYUY2,
				frame.FormatUYVY,
				frame.FormatRGBA,
				frame.FormatMJPEG,
				frame.FormatNV12,
				frame.FormatNV21,
			}
		},
	}
}

func (ws *webcamSource) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	img, err := media.VideoReadReleaser{ws.reader}.Read()
	if err != nil {
		ws.logger.Warnw("camera read failed, ending stream", "error", err)
		return nil, nil, ErrStreamEnded
	}
	return img, func() {}, nil
}

func (ws *webcamSource) Close() error {
	return ws.reader.Close()
}
