package pipeline

import (
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	viamutils "go.viam.com/utils"
)

// recordFPS is the frame rate stamped into recorded files.
const recordFPS = 30

// VideoRecorder encodes annotated frames into an MJPG video file, one frame
// per displayed frame in display order. Frames are handed to an ffmpeg
// process as raw RGBA.
type VideoRecorder struct {
	width, height int
	writer        *io.PipeWriter
	ffmpegErr     atomic.Value
	closeOnce     sync.Once
	closeErr      error

	activeBackgroundWorkers sync.WaitGroup
	logger                  golog.Logger
}

// NewVideoRecorder starts an encoder writing to path. width and height must
// match every frame that will be written.
func NewVideoRecorder(path string, width, height int, logger golog.Logger) (*VideoRecorder, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("recording needs a positive frame size, got %dx%d", width, height)
	}

	in, out := io.Pipe()
	r := &VideoRecorder{width: width, height: height, writer: out, logger: logger}

	inArgs := ffmpeg.KwArgs{
		"format":    "rawvideo",
		"pix_fmt":   "rgba",
		"s":         fmt.Sprintf("%dx%d", width, height),
		"framerate": recordFPS,
	}
	outArgs := ffmpeg.KwArgs{
		"vcodec": "mjpeg",
		"q:v":    3,
		"r":      recordFPS,
	}

	r.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		err := ffmpeg.Input("pipe:", inArgs).
			Output(path, outArgs).
			OverWriteOutput().
			WithInput(in).
			Run()
		if err != nil {
			r.ffmpegErr.Store(err)
		}
		// drain the pipe so a failed encoder does not wedge writers
		in.CloseWithError(errors.New("encoder exited"))
	}, r.activeBackgroundWorkers.Done)

	logger.Infow("recording", "path", path, "size", image.Point{width, height}, "fps", recordFPS)
	return r, nil
}

// Write appends one frame to the recording.
func (r *VideoRecorder) Write(img image.Image) error {
	if err := r.ffmpegErr.Load(); err != nil {
		return errors.Wrap(err.(error), "video encoder failed")
	}
	bounds := img.Bounds()
	if bounds.Dx() != r.width || bounds.Dy() != r.height {
		return errors.Errorf("frame size %dx%d does not match recording size %dx%d",
			bounds.Dx(), bounds.Dy(), r.width, r.height)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*r.width {
		rgba = image.NewRGBA(image.Rect(0, 0, r.width, r.height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	if _, err := r.writer.Write(rgba.Pix); err != nil {
		if ffErr := r.ffmpegErr.Load(); ffErr != nil {
			return errors.Wrap(ffErr.(error), "video encoder failed")
		}
		return err
	}
	return nil
}

// Close flushes the pipe and waits for the encoder to finish the file.
// Closing twice is a no-op.
func (r *VideoRecorder) Close() error {
	r.closeOnce.Do(func() {
		r.writer.Close()
		r.activeBackgroundWorkers.Wait()
		if err := r.ffmpegErr.Load(); err != nil {
			r.closeErr = err.(error)
		}
	})
	return r.closeErr
}
