// Package objectdetection defines detections returned by a model and the
// tools to filter them and draw them onto frames.
package objectdetection

import (
	"context"
	"fmt"
	"image"
)

// Detection is a single model output: a bounding box in pixel coordinates,
// a confidence score between 0 and 1, and a class label.
type Detection interface {
	BoundingBox() image.Rectangle
	Score() float64
	Label() string
}

// NewDetection creates a Detection from its parts.
func NewDetection(boundingBox image.Rectangle, score float64, label string) Detection {
	return &detection2D{boundingBox, score, label}
}

type detection2D struct {
	boundingBox image.Rectangle
	score       float64
	label       string
}

// BoundingBox returns a bounding box around the detected object.
func (d *detection2D) BoundingBox() image.Rectangle {
	return d.boundingBox
}

// Score returns a confidence score of the detection between 0.0 and 1.0.
func (d *detection2D) Score() float64 {
	return d.score
}

// Label returns the class label of the object in the bounding box.
func (d *detection2D) Label() string {
	return d.label
}

func (d *detection2D) String() string {
	return fmt.Sprintf("Label: %s, Score: %.2f, Location: %v", d.label, d.score, d.boundingBox)
}

// Detector returns the detections found in the given frame. It is the
// boundary to the external model: frame in, detections out.
type Detector func(ctx context.Context, img image.Image) ([]Detection, error)
