package inference

import (
	"image"
	"strings"

	"sirenwatch/objectdetection"
)

// ParseLabels reads a label table: one class name per line, blank lines
// ignored, order preserved.
func ParseLabels(data string) []string {
	var labels []string
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		labels = append(labels, line)
	}
	return labels
}

// TensorsToDetections decodes the standard tflite detection output tensors
// into detections in the frame's pixel coordinates. locations holds
// normalized [ymin xmin ymax xmax] quads; classes holds class indices;
// scores holds confidences; count is how many entries are valid.
func TensorsToDetections(
	locations, classes, scores []float32,
	count int,
	labels []string,
	bounds image.Rectangle,
) []objectdetection.Detection {
	if n := len(locations) / 4; count > n {
		count = n
	}
	if count > len(classes) {
		count = len(classes)
	}
	if count > len(scores) {
		count = len(scores)
	}

	w := float32(bounds.Dx())
	h := float32(bounds.Dy())
	detections := make([]objectdetection.Detection, 0, count)
	for i := 0; i < count; i++ {
		ymin, xmin, ymax, xmax := locations[4*i], locations[4*i+1], locations[4*i+2], locations[4*i+3]
		rect := image.Rect(
			bounds.Min.X+int(xmin*w),
			bounds.Min.Y+int(ymin*h),
			bounds.Min.X+int(xmax*w),
			bounds.Min.Y+int(ymax*h),
		)
		classIdx := int(classes[i])
		label := "unknown"
		if classIdx >= 0 && classIdx < len(labels) {
			label = labels[classIdx]
		}
		detections = append(detections, objectdetection.NewDetection(rect, float64(scores[i]), label))
	}
	return detections
}
