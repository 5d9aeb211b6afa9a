// Package main runs the detection pipeline: it watches a frame source, runs
// each frame through a detection model, shows and optionally records the
// annotated feed, and signals the control device when the target class is
// seen.
package main

import (
	"context"
	"strconv"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"sirenwatch/display"
	"sirenwatch/inference"
	"sirenwatch/objectdetection"
	"sirenwatch/pipeline"
	"sirenwatch/signaling"
	"sirenwatch/videosource"
)

var logger = golog.NewDevelopmentLogger("sirenwatch")

func main() {
	utils.ContextualMainQuit(mainWithArgs, logger)
}

// Arguments for the command.
type Arguments struct {
	Model       string `flag:"model,required,usage=path to tflite detection model"`
	Labels      string `flag:"labels,required,usage=path to class labels file (one name per line)"`
	Source      string `flag:"source,required,usage=image or video source (file, directory, or usb<N>)"`
	Thresh      string `flag:"thresh,default=0.5,usage=confidence threshold"`
	Resolution  string `flag:"resolution,usage=resolution WxH (example: \"640x480\")"`
	Record      bool   `flag:"record,usage=record annotated output video"`
	RecordPath  string `flag:"record-path,default=demo1.avi,usage=recorded video file"`
	Target      string `flag:"target,default=ambulance,usage=class name that triggers device signaling"`
	SerialPort  string `flag:"serial-port,default=COM11,usage=control device serial port"`
	DisplayPort int    `flag:"display-port,default=5555,usage=display stream port (0 disables the viewer)"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}

	threshold, err := strconv.ParseFloat(argsParsed.Thresh, 64)
	if err != nil || threshold < 0 || threshold > 1 {
		return errors.Errorf("confidence threshold must be a number between 0 and 1, got %q", argsParsed.Thresh)
	}

	desc, err := videosource.ParseSource(argsParsed.Source)
	if err != nil {
		return err
	}
	if argsParsed.Resolution != "" {
		desc.Width, desc.Height, err = videosource.ParseResolution(argsParsed.Resolution)
		if err != nil {
			return err
		}
	}

	if argsParsed.Record {
		if desc.Kind != videosource.KindVideoFile && desc.Kind != videosource.KindWebcam {
			return errors.New("recording only works for video or camera sources")
		}
		if !desc.HasResolution() {
			return errors.New("recording needs an explicit --resolution")
		}
	}

	return runPipeline(ctx, argsParsed, desc, threshold, logger)
}

func runPipeline(
	ctx context.Context,
	args Arguments,
	desc videosource.Descriptor,
	threshold float64,
	logger golog.Logger,
) (err error) {
	detector, err := inference.NewTFLiteDetector(args.Model, args.Labels, logger.Named("inference"))
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, detector.Close())
	}()

	// the signaler is best-effort: an unplugged device degrades it to a
	// no-op instead of stopping the run
	signaler := signaling.Dial(ctx, args.SerialPort, logger.Named("signaling"))

	source, err := videosource.NewSource(desc, logger.Named("source"))
	if err != nil {
		return multierr.Combine(err, signaler.Close())
	}

	var disp display.Display
	if args.DisplayPort > 0 {
		disp, err = display.NewStreamServer(ctx, args.DisplayPort, logger.Named("display"))
		if err != nil {
			return multierr.Combine(err, source.Close(), signaler.Close())
		}
	} else {
		disp = display.NewNop()
	}

	var recorder pipeline.FrameRecorder
	if args.Record {
		recorder, err = pipeline.NewVideoRecorder(args.RecordPath, desc.Width, desc.Height, logger.Named("recorder"))
		if err != nil {
			return multierr.Combine(err, disp.Close(), source.Close(), signaler.Close())
		}
	}

	p, err := pipeline.New(pipeline.Config{
		Source:    source,
		Detector:  detector.Infer,
		Annotator: objectdetection.NewAnnotator(threshold, args.Target, detector.Labels()),
		Signaler:  signaler,
		Display:   disp,
		Recorder:  recorder,
		Logger:    logger,
	})
	if err != nil {
		return multierr.Combine(err, disp.Close(), source.Close(), signaler.Close())
	}

	logger.Infow("starting detection loop",
		"source", desc.Kind.String(),
		"threshold", threshold,
		"target", args.Target,
		"recording", args.Record,
	)
	utils.ContextMainReadyFunc(ctx)()

	reason, err := p.Run(ctx)
	logger.Infow("detection loop finished", "reason", reason.String())
	return err
}
