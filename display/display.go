// Package display serves the annotated frame feed so a viewer can watch the
// pipeline output live.
package display

import (
	"context"
	"image"
	"sync"

	"github.com/edaniels/golog"
	"github.com/edaniels/gostream"
	"github.com/edaniels/gostream/codec/x264"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"
)

// Display shows annotated frames. Broadcast publishes the next frame to
// show; it never blocks the caller on a slow viewer.
type Display interface {
	Broadcast(img image.Image)
	Close() error
}

// NewNop returns a Display that discards frames. Used when no viewer is
// wanted and in tests.
func NewNop() Display {
	return &nopDisplay{}
}

type nopDisplay struct{}

func (d *nopDisplay) Broadcast(image.Image) {}
func (d *nopDisplay) Close() error          { return nil }

// streamDisplay serves the latest broadcast frame over a standalone WebRTC
// stream server, the same way the camera streaming tools do.
type streamDisplay struct {
	mu         sync.RWMutex
	latest     image.Image
	firstFrame chan struct{}
	firstOnce  sync.Once

	cancelFunc              context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
	stream                  gostream.Stream
	server                  gostream.StandaloneStreamServer
}

// NewStreamServer starts a stream server on the given port and returns a
// Display feeding it.
func NewStreamServer(ctx context.Context, port int, logger golog.Logger) (Display, error) {
	stream, err := gostream.NewStream(x264.DefaultStreamConfig)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create display stream")
	}
	server, err := gostream.NewStandaloneStreamServer(port, logger, stream)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create display stream server")
	}
	if err := server.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "cannot start display stream server")
	}

	cancelableCtx, cancel := context.WithCancel(ctx)
	d := &streamDisplay{
		firstFrame: make(chan struct{}),
		cancelFunc: cancel,
		stream:     stream,
		server:     server,
	}

	src := gostream.ImageSourceFunc(func(ctx context.Context) (image.Image, func(), error) {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-d.firstFrame:
		}
		d.mu.RLock()
		defer d.mu.RUnlock()
		return d.latest, func() {}, nil
	})

	d.activeBackgroundWorkers.Add(1)
	viamutils.ManagedGo(func() {
		gostream.StreamSource(cancelableCtx, src, stream)
	}, d.activeBackgroundWorkers.Done)

	logger.Infow("display stream started", "port", port)
	return d, nil
}

func (d *streamDisplay) Broadcast(img image.Image) {
	d.mu.Lock()
	d.latest = img
	d.mu.Unlock()
	d.firstOnce.Do(func() { close(d.firstFrame) })
}

func (d *streamDisplay) Close() error {
	d.cancelFunc()
	d.activeBackgroundWorkers.Wait()
	return d.server.Stop(context.Background())
}
