package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"sirenwatch/objectdetection"
	"sirenwatch/videosource"
)

var pipelineTestLabels = []string{"ambulance", "bus", "car", "truck"}

type fakeSource struct {
	frames  int
	served  int
	closes  int
	onNext  func(served int)
	nextErr error
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, func(), error) {
	if s.onNext != nil {
		s.onNext(s.served)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.nextErr != nil {
		return nil, nil, s.nextErr
	}
	if s.served >= s.frames {
		return nil, nil, videosource.ErrStreamEnded
	}
	s.served++
	return image.NewNRGBA(image.Rect(0, 0, 64, 48)), func() {}, nil
}

func (s *fakeSource) Close() error {
	s.closes++
	return nil
}

type fakeNotifier struct {
	notifies int
	closes   int
}

func (n *fakeNotifier) Notify(ctx context.Context, signal byte) { n.notifies++ }
func (n *fakeNotifier) Close() error {
	n.closes++
	return nil
}

type fakeDisplay struct {
	broadcasts int
	closes     int
}

func (d *fakeDisplay) Broadcast(image.Image) { d.broadcasts++ }
func (d *fakeDisplay) Close() error {
	d.closes++
	return nil
}

type fakeRecorder struct {
	writes   int
	closes   int
	writeErr error
}

func (r *fakeRecorder) Write(image.Image) error {
	if r.writeErr != nil {
		return r.writeErr
	}
	r.writes++
	return nil
}

func (r *fakeRecorder) Close() error {
	r.closes++
	return nil
}

func detectorReturning(dets ...objectdetection.Detection) objectdetection.Detector {
	return func(ctx context.Context, img image.Image) ([]objectdetection.Detection, error) {
		return dets, nil
	}
}

func TestRunUntilStreamEnds(t *testing.T) {
	src := &fakeSource{frames: 3}
	notifier := &fakeNotifier{}
	disp := &fakeDisplay{}
	rec := &fakeRecorder{}

	p, err := New(Config{
		Source:    src,
		Detector:  detectorReturning(objectdetection.NewDetection(image.Rect(1, 1, 20, 20), 0.9, "Ambulance")),
		Annotator: objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels),
		Signaler:  notifier,
		Display:   disp,
		Recorder:  rec,
		Logger:    golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)

	reason, err := p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reason, test.ShouldEqual, ReasonStreamEnded)
	test.That(t, p.State(), test.ShouldEqual, StateStopped)

	// every frame displayed and recorded, target seen on each frame
	test.That(t, disp.broadcasts, test.ShouldEqual, 3)
	test.That(t, rec.writes, test.ShouldEqual, 3)
	test.That(t, notifier.notifies, test.ShouldEqual, 3)

	// every resource released exactly once
	test.That(t, src.closes, test.ShouldEqual, 1)
	test.That(t, rec.closes, test.ShouldEqual, 1)
	test.That(t, disp.closes, test.ShouldEqual, 1)
	test.That(t, notifier.closes, test.ShouldEqual, 1)
}

func TestNoSignalWithoutTarget(t *testing.T) {
	src := &fakeSource{frames: 2}
	notifier := &fakeNotifier{}

	p, err := New(Config{
		Source:    src,
		Detector:  detectorReturning(objectdetection.NewDetection(image.Rect(1, 1, 20, 20), 0.9, "car")),
		Annotator: objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels),
		Signaler:  notifier,
		Logger:    golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)

	reason, err := p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reason, test.ShouldEqual, ReasonStreamEnded)
	test.That(t, notifier.notifies, test.ShouldEqual, 0)
}

func TestBelowThresholdTargetDoesNotSignal(t *testing.T) {
	src := &fakeSource{frames: 1}
	notifier := &fakeNotifier{}

	p, err := New(Config{
		Source:    src,
		Detector:  detectorReturning(objectdetection.NewDetection(image.Rect(1, 1, 20, 20), 0.5, "ambulance")),
		Annotator: objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels),
		Signaler:  notifier,
		Logger:    golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)

	_, err = p.Run(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, notifier.notifies, test.ShouldEqual, 0)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeSource{frames: 1000}
	// request a quit mid-stream; the loop honors it at the next boundary
	src.onNext = func(served int) {
		if served == 5 {
			cancel()
		}
	}
	notifier := &fakeNotifier{}
	disp := &fakeDisplay{}

	p, err := New(Config{
		Source:    src,
		Detector:  detectorReturning(),
		Annotator: objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels),
		Signaler:  notifier,
		Display:   disp,
		Logger:    golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)

	reason, err := p.Run(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, reason, test.ShouldEqual, ReasonCanceled)
	test.That(t, p.State(), test.ShouldEqual, StateStopped)
	test.That(t, src.closes, test.ShouldEqual, 1)
	test.That(t, disp.closes, test.ShouldEqual, 1)
	test.That(t, notifier.closes, test.ShouldEqual, 1)
}

func TestRunDetectorFailureStillDrains(t *testing.T) {
	src := &fakeSource{frames: 10}
	notifier := &fakeNotifier{}
	rec := &fakeRecorder{}

	p, err := New(Config{
		Source: src,
		Detector: func(ctx context.Context, img image.Image) ([]objectdetection.Detection, error) {
			return nil, errors.New("model exploded")
		},
		Annotator: objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels),
		Signaler:  notifier,
		Recorder:  rec,
		Logger:    golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)

	reason, err := p.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "model exploded")
	test.That(t, reason, test.ShouldEqual, ReasonError)

	// the failure still took the draining path
	test.That(t, p.State(), test.ShouldEqual, StateStopped)
	test.That(t, src.closes, test.ShouldEqual, 1)
	test.That(t, rec.closes, test.ShouldEqual, 1)
	test.That(t, notifier.closes, test.ShouldEqual, 1)
}

func TestRecorderFailurePropagates(t *testing.T) {
	src := &fakeSource{frames: 10}
	rec := &fakeRecorder{writeErr: errors.New("disk full")}

	p, err := New(Config{
		Source:    src,
		Detector:  detectorReturning(),
		Annotator: objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels),
		Signaler:  &fakeNotifier{},
		Recorder:  rec,
		Logger:    golog.NewTestLogger(t),
	})
	test.That(t, err, test.ShouldBeNil)

	reason, err := p.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, reason, test.ShouldEqual, ReasonError)
	test.That(t, src.closes, test.ShouldEqual, 1)
}

func TestNewValidation(t *testing.T) {
	annotator := objectdetection.NewAnnotator(0.5, "ambulance", pipelineTestLabels)

	_, err := New(Config{Detector: detectorReturning(), Annotator: annotator, Signaler: &fakeNotifier{}})
	test.That(t, err.Error(), test.ShouldContainSubstring, "frame source")

	_, err = New(Config{Source: &fakeSource{}, Annotator: annotator, Signaler: &fakeNotifier{}})
	test.That(t, err.Error(), test.ShouldContainSubstring, "detector")

	_, err = New(Config{Source: &fakeSource{}, Detector: detectorReturning(), Signaler: &fakeNotifier{}})
	test.That(t, err.Error(), test.ShouldContainSubstring, "annotator")

	_, err = New(Config{Source: &fakeSource{}, Detector: detectorReturning(), Annotator: annotator})
	test.That(t, err.Error(), test.ShouldContainSubstring, "signaler")
}
