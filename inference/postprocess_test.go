package inference

import (
	"image"
	"testing"

	"go.viam.com/test"
)

func TestParseLabels(t *testing.T) {
	labels := ParseLabels("ambulance\nbus\n\ncar\n")
	test.That(t, labels, test.ShouldResemble, []string{"ambulance", "bus", "car"})

	test.That(t, ParseLabels(""), test.ShouldBeEmpty)
}

func TestTensorsToDetections(t *testing.T) {
	bounds := image.Rect(0, 0, 200, 100)
	locations := []float32{
		0.1, 0.2, 0.5, 0.6, // ymin xmin ymax xmax, normalized
		0.0, 0.0, 1.0, 1.0,
	}
	classes := []float32{0, 2}
	scores := []float32{0.9, 0.3}
	labels := []string{"ambulance", "bus", "car"}

	dets := TensorsToDetections(locations, classes, scores, 2, labels, bounds)
	test.That(t, dets, test.ShouldHaveLength, 2)

	test.That(t, dets[0].Label(), test.ShouldEqual, "ambulance")
	test.That(t, dets[0].Score(), test.ShouldAlmostEqual, 0.9, 1e-6)
	test.That(t, dets[0].BoundingBox(), test.ShouldResemble, image.Rect(40, 10, 120, 50))

	test.That(t, dets[1].Label(), test.ShouldEqual, "car")
	test.That(t, dets[1].BoundingBox(), test.ShouldResemble, image.Rect(0, 0, 200, 100))
}

func TestTensorsToDetectionsClampsCount(t *testing.T) {
	bounds := image.Rect(0, 0, 10, 10)
	locations := []float32{0, 0, 1, 1}
	classes := []float32{99}
	scores := []float32{0.5}

	// count beyond the tensor sizes is clamped, out-of-range class
	// indices fall back to a placeholder label
	dets := TensorsToDetections(locations, classes, scores, 10, []string{"only"}, bounds)
	test.That(t, dets, test.ShouldHaveLength, 1)
	test.That(t, dets[0].Label(), test.ShouldEqual, "unknown")
}
