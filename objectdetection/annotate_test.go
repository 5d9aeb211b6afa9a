package objectdetection

import (
	"image"
	"testing"

	"go.viam.com/test"
)

var testLabels = []string{"ambulance", "bus", "car", "truck"}

func TestAnnotateTargetFound(t *testing.T) {
	a := NewAnnotator(0.5, "ambulance", testLabels)
	frame := image.NewNRGBA(image.Rect(0, 0, 200, 200))

	// the target match is case-insensitive
	dets := []Detection{
		NewDetection(image.Rect(5, 5, 50, 50), 0.9, "car"),
		NewDetection(image.Rect(60, 60, 120, 120), 0.8, "Ambulance"),
	}
	_, found := a.Annotate(frame, dets)
	test.That(t, found, test.ShouldBeTrue)

	dets = []Detection{
		NewDetection(image.Rect(5, 5, 50, 50), 0.9, "car"),
		NewDetection(image.Rect(60, 60, 120, 120), 0.8, "bus"),
	}
	_, found = a.Annotate(frame, dets)
	test.That(t, found, test.ShouldBeFalse)
}

func TestAnnotateThreshold(t *testing.T) {
	a := NewAnnotator(0.5, "ambulance", testLabels)
	frame := image.NewNRGBA(image.Rect(0, 0, 200, 200))

	// a target at or below the threshold contributes nothing
	dets := []Detection{
		NewDetection(image.Rect(5, 5, 50, 50), 0.5, "ambulance"),
	}
	out, found := a.Annotate(frame, dets)
	test.That(t, found, test.ShouldBeFalse)
	// nothing passed, so the frame comes back untouched
	test.That(t, out, test.ShouldEqual, frame)

	dets = append(dets, NewDetection(image.Rect(60, 60, 120, 120), 0.51, "car"))
	out, found = a.Annotate(frame, dets)
	test.That(t, found, test.ShouldBeFalse)
	test.That(t, out, test.ShouldNotEqual, frame)
}

func TestAnnotateDrawsBox(t *testing.T) {
	a := NewAnnotator(0.1, "ambulance", testLabels)
	frame := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	dets := []Detection{
		NewDetection(image.Rect(40, 40, 160, 160), 0.95, "bus"),
	}
	out, _ := a.Annotate(frame, dets)
	// a box edge pixel should no longer be the zero color
	r, g, b, _ := out.At(40, 100).RGBA()
	test.That(t, r+g+b, test.ShouldBeGreaterThan, 0)
}

func TestPaletteDeterminism(t *testing.T) {
	test.That(t, PaletteColor(0), test.ShouldResemble, PaletteColor(4))
	test.That(t, PaletteColor(1), test.ShouldResemble, PaletteColor(5))
	test.That(t, PaletteColor(2), test.ShouldNotResemble, PaletteColor(3))
	// same class always gets the same color
	test.That(t, PaletteColor(7), test.ShouldResemble, PaletteColor(7))
}
