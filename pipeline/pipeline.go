// Package pipeline drives the capture, inference, annotation, signaling,
// display, and recording of frames until the source is exhausted or the run
// is canceled.
package pipeline

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"sirenwatch/display"
	"sirenwatch/objectdetection"
	"sirenwatch/videosource"
)

// DefaultSignal is the byte written to the control device when the target
// class is seen.
const DefaultSignal byte = 'A'

// State is where the pipeline is in its lifecycle.
type State int

const (
	// StateStarting means collaborators are being validated and opened.
	StateStarting State = iota
	// StateRunning means frames are being processed.
	StateRunning
	// StateDraining means resources are being released.
	StateDraining
	// StateStopped means the run is over and everything is released.
	StateStopped
)

// TerminationReason says why a run ended.
type TerminationReason int

const (
	// ReasonStreamEnded means the source ran out of frames.
	ReasonStreamEnded TerminationReason = iota
	// ReasonCanceled means the run was canceled (quit request or signal).
	ReasonCanceled
	// ReasonError means an iteration failed in a way that cannot be
	// recovered.
	ReasonError
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonStreamEnded:
		return "stream ended"
	case ReasonCanceled:
		return "canceled"
	case ReasonError:
		return "error"
	default:
		return "unknown"
	}
}

// Notifier is the signaling collaborator.
type Notifier interface {
	Notify(ctx context.Context, signal byte)
	Close() error
}

// FrameRecorder is the recording collaborator.
type FrameRecorder interface {
	Write(img image.Image) error
	Close() error
}

// Config collects the pipeline's collaborators. All lifecycle is explicit:
// the pipeline closes everything it is given, exactly once, when the run
// drains.
type Config struct {
	Source    videosource.Source
	Detector  objectdetection.Detector
	Annotator *objectdetection.Annotator
	Signaler  Notifier
	Display   display.Display
	// Recorder is optional; nil means no recording.
	Recorder FrameRecorder
	// Signal is the byte sent on target detection; zero means DefaultSignal.
	Signal byte
	Logger golog.Logger
}

// Pipeline runs the detection loop.
type Pipeline struct {
	cfg Config

	mu    sync.Mutex
	state State

	drainOnce sync.Once
	drainErr  error

	meter fpsMeter
}

// New validates the configuration and returns a pipeline ready to run.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Source == nil {
		return nil, errors.New("pipeline needs a frame source")
	}
	if cfg.Detector == nil {
		return nil, errors.New("pipeline needs a detector")
	}
	if cfg.Annotator == nil {
		return nil, errors.New("pipeline needs an annotator")
	}
	if cfg.Signaler == nil {
		return nil, errors.New("pipeline needs a signaler")
	}
	if cfg.Display == nil {
		cfg.Display = display.NewNop()
	}
	if cfg.Signal == 0 {
		cfg.Signal = DefaultSignal
	}
	if cfg.Logger == nil {
		cfg.Logger = golog.NewLogger("pipeline")
	}
	return &Pipeline{cfg: cfg}, nil
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run processes frames until the stream ends or ctx is canceled. Quit
// requests are honored cooperatively at iteration boundaries: an in-flight
// inference always completes first. Whatever the exit path, every
// collaborator is released exactly once before Run returns.
func (p *Pipeline) Run(ctx context.Context) (reason TerminationReason, err error) {
	p.setState(StateRunning)
	defer func() {
		err = multierr.Combine(err, p.drain())
	}()

	frames := 0
	for {
		if ctx.Err() != nil {
			p.cfg.Logger.Infow("quit requested", "frames", frames)
			return ReasonCanceled, nil
		}

		iterStart := time.Now()
		done, iterErr := p.iterate(ctx)
		if iterErr != nil {
			if errors.Is(iterErr, context.Canceled) || errors.Is(iterErr, context.DeadlineExceeded) {
				p.cfg.Logger.Infow("quit requested", "frames", frames)
				return ReasonCanceled, nil
			}
			return ReasonError, iterErr
		}
		if done {
			p.cfg.Logger.Infow("stream ended", "frames", frames)
			return ReasonStreamEnded, nil
		}

		frames++
		fps := p.meter.record(time.Since(iterStart))
		p.cfg.Logger.Debugw("frame processed", "fps", fps)
		if frames%fpsWindow == 0 {
			p.cfg.Logger.Infow("throughput", "frames", frames, "fps", p.meter.average())
		}
	}
}

// iterate handles one frame. It reports done=true on end of stream.
func (p *Pipeline) iterate(ctx context.Context) (done bool, err error) {
	frame, release, err := p.cfg.Source.Next(ctx)
	if err != nil {
		if errors.Is(err, videosource.ErrStreamEnded) {
			return true, nil
		}
		return false, err
	}
	defer func() {
		if release != nil {
			release()
		}
	}()

	detections, err := p.cfg.Detector(ctx, frame)
	if err != nil {
		return false, errors.Wrap(err, "inference failed")
	}

	annotated, targetFound := p.cfg.Annotator.Annotate(frame, detections)
	if targetFound {
		p.cfg.Signaler.Notify(ctx, p.cfg.Signal)
	}

	p.cfg.Display.Broadcast(annotated)
	if p.cfg.Recorder != nil {
		if err := p.cfg.Recorder.Write(annotated); err != nil {
			return false, errors.Wrap(err, "recording failed")
		}
	}
	return false, nil
}

// drain releases every collaborator exactly once. Each release is attempted
// independently; one failing does not skip the others.
func (p *Pipeline) drain() error {
	p.drainOnce.Do(func() {
		p.setState(StateDraining)
		var errs error
		errs = multierr.Combine(errs, p.cfg.Source.Close())
		if p.cfg.Recorder != nil {
			errs = multierr.Combine(errs, p.cfg.Recorder.Close())
		}
		errs = multierr.Combine(errs, p.cfg.Display.Close())
		errs = multierr.Combine(errs, p.cfg.Signaler.Close())
		p.drainErr = errs
		p.setState(StateStopped)
	})
	return p.drainErr
}
