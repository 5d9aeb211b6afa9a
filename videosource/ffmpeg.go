package videosource

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	viamutils "go.viam.com/utils"
)

// ffmpegSource decodes a video file by piping it through ffmpeg as a
// sequence of jpeg frames. Frames are pulled synchronously in file order.
type ffmpegSource struct {
	cancelFunc              context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
	reader                  *io.PipeReader
	ffmpegErr               atomic.Value
	logger                  golog.Logger
}

func newFFmpegSource(desc Descriptor, logger golog.Logger) (*ffmpegSource, error) {
	// make sure ffmpeg is in the path before doing anything else
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}

	outArgs := ffmpeg.KwArgs{
		"format": "image2pipe",
		"vcodec": "mjpeg",
	}
	if desc.HasResolution() {
		outArgs["s"] = fmt.Sprintf("%dx%d", desc.Width, desc.Height)
	}

	cancelableCtx, cancel := context.WithCancel(context.Background())
	in, out := io.Pipe()
	fs := &ffmpegSource{cancelFunc: cancel, reader: in, logger: logger}

	fs.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		stream := ffmpeg.Input(desc.Path).Output("pipe:", outArgs)
		stream.Context = cancelableCtx
		if err := stream.WithOutput(out).Run(); err != nil && cancelableCtx.Err() == nil {
			fs.ffmpegErr.Store(err)
		}
		// closing the write end unblocks any decode in progress
		out.Close()
	}, func() {
		cancel()
		fs.activeBackgroundWorkers.Done()
	})

	return fs, nil
}

func (fs *ffmpegSource) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	img, err := jpeg.Decode(fs.reader)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.ErrClosedPipe) {
			return nil, nil, ErrStreamEnded
		}
		// a corrupt frame mid-stream loses the jpeg framing, so the rest of
		// the pipe is undecodable; treat it as the end of the stream
		fs.logger.Warnw("frame decode failed, ending stream", "error", err)
		return nil, nil, ErrStreamEnded
	}
	if ffErr := fs.ffmpegErr.Load(); ffErr != nil {
		return nil, nil, errors.Wrap(ffErr.(error), "ffmpeg failed")
	}
	return img, func() {}, nil
}

func (fs *ffmpegSource) Close() error {
	fs.cancelFunc()
	fs.reader.Close()
	fs.activeBackgroundWorkers.Wait()
	return nil
}
