// Package inference loads a tflite detection model and exposes it as an
// objectdetection.Detector.
package inference

import (
	"context"
	"image"
	"os"
	"runtime"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	tflite "github.com/mattn/go-tflite"
	"github.com/pkg/errors"

	"sirenwatch/objectdetection"
)

// TFLiteDetector wraps a tflite interpreter behind the detector contract:
// frame in, detections out.
type TFLiteDetector struct {
	model              *tflite.Model
	interpreter        *tflite.Interpreter
	interpreterOptions *tflite.InterpreterOptions
	inputWidth         int
	inputHeight        int
	inputType          tflite.TensorType
	labels             []string
	logger             golog.Logger
}

// NewTFLiteDetector loads the model and label table from disk. A missing or
// unloadable model is a configuration error.
func NewTFLiteDetector(modelPath, labelsPath string, logger golog.Logger) (*TFLiteDetector, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrapf(err, "model path %q is invalid or not found", modelPath)
	}
	labelsData, err := os.ReadFile(labelsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read labels file %q", labelsPath)
	}
	labels := ParseLabels(string(labelsData))
	if len(labels) == 0 {
		return nil, errors.Errorf("labels file %q contains no labels", labelsPath)
	}

	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, errors.Errorf("failed to load model %q", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	if options == nil {
		model.Delete()
		return nil, errors.New("failed to create interpreter options")
	}
	options.SetNumThread(runtime.NumCPU())
	options.SetErrorReporter(func(msg string, userData interface{}) {
		logger.Errorw("tflite", "msg", msg)
	}, nil)

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to create interpreter")
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.New("failed to allocate tensors")
	}

	input := interpreter.GetInputTensor(0)
	det := &TFLiteDetector{
		model:              model,
		interpreter:        interpreter,
		interpreterOptions: options,
		inputHeight:        input.Dim(1),
		inputWidth:         input.Dim(2),
		inputType:          input.Type(),
		labels:             labels,
		logger:             logger,
	}
	logger.Infow("loaded detection model",
		"model", modelPath,
		"input", image.Point{det.inputWidth, det.inputHeight},
		"classes", len(labels),
	)
	return det, nil
}

// Labels returns the model's ordered class table.
func (d *TFLiteDetector) Labels() []string {
	return d.labels
}

// Infer runs the model on one frame. The returned boxes are in the frame's
// pixel coordinates.
func (d *TFLiteDetector) Infer(ctx context.Context, img image.Image) ([]objectdetection.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resized := imaging.Resize(img, d.inputWidth, d.inputHeight, imaging.Linear)

	input := d.interpreter.GetInputTensor(0)
	switch d.inputType {
	case tflite.UInt8:
		if status := input.CopyFromBuffer(imageToUint8(resized)); status != tflite.OK {
			return nil, errors.New("copying frame into input tensor failed")
		}
	case tflite.Float32:
		if status := input.CopyFromBuffer(imageToFloat32(resized)); status != tflite.OK {
			return nil, errors.New("copying frame into input tensor failed")
		}
	default:
		return nil, errors.Errorf("unsupported input tensor type %v", d.inputType)
	}

	if status := d.interpreter.Invoke(); status != tflite.OK {
		return nil, errors.New("invoke failed")
	}

	if d.interpreter.GetOutputTensorCount() < 4 {
		return nil, errors.New("model does not produce detection output tensors")
	}
	locations := d.interpreter.GetOutputTensor(0).Float32s()
	classes := d.interpreter.GetOutputTensor(1).Float32s()
	scores := d.interpreter.GetOutputTensor(2).Float32s()
	counts := d.interpreter.GetOutputTensor(3).Float32s()
	count := 0
	if len(counts) > 0 {
		count = int(counts[0])
	}

	return TensorsToDetections(locations, classes, scores, count, d.labels, img.Bounds()), nil
}

// Close frees the interpreter and model.
func (d *TFLiteDetector) Close() error {
	d.interpreter.Delete()
	d.interpreterOptions.Delete()
	d.model.Delete()
	return nil
}

func imageToUint8(img *image.NRGBA) []uint8 {
	bounds := img.Bounds()
	out := make([]uint8, 0, bounds.Dx()*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}

func imageToFloat32(img *image.NRGBA) []float32 {
	bounds := img.Bounds()
	out := make([]float32, 0, bounds.Dx()*bounds.Dy()*3)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			out = append(out,
				(float32(c.R)-127.5)/127.5,
				(float32(c.G)-127.5)/127.5,
				(float32(c.B)-127.5)/127.5,
			)
		}
	}
	return out
}
