package objectdetection

// Postprocessor defines a function that filters/modifies an incoming array of Detections.
type Postprocessor func([]Detection) []Detection

// NewScoreFilter returns a function that filters out detections at or below a
// certain confidence. The comparison is strict: a detection scoring exactly
// the threshold is dropped.
func NewScoreFilter(conf float64) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			if d.Score() > conf {
				out = append(out, d)
			}
		}
		return out
	}
}

// NewAreaFilter returns a function that filters out detections below a certain area.
func NewAreaFilter(area int) Postprocessor {
	return func(in []Detection) []Detection {
		out := make([]Detection, 0, len(in))
		for _, d := range in {
			bb := d.BoundingBox()
			if bb.Dx()*bb.Dy() >= area {
				out = append(out, d)
			}
		}
		return out
	}
}
