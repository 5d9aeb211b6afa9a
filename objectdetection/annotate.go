package objectdetection

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var overlayFont *truetype.Font

func init() {
	var err error
	overlayFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// palette is the fixed set of box colors. A class always maps to the same
// color: classIndex mod len(palette).
var palette = []color.NRGBA{
	{R: 87, G: 120, B: 164, A: 255},
	{R: 228, G: 148, B: 68, A: 255},
	{R: 209, G: 97, B: 93, A: 255},
	{R: 133, G: 182, B: 178, A: 255},
}

// PaletteColor returns the display color for a class index.
func PaletteColor(classIndex int) color.NRGBA {
	idx := classIndex % len(palette)
	if idx < 0 {
		idx += len(palette)
	}
	return palette[idx]
}

// Annotator filters detections by confidence, draws the survivors onto the
// frame, and reports whether the target class was seen.
type Annotator struct {
	threshold  float64
	target     string
	labelIndex map[string]int
}

// NewAnnotator creates an Annotator. labels is the model's ordered class
// table; it fixes which palette color each class gets. target is matched
// case-insensitively against detection labels.
func NewAnnotator(threshold float64, target string, labels []string) *Annotator {
	labelIndex := make(map[string]int, len(labels))
	for i, l := range labels {
		labelIndex[l] = i
	}
	return &Annotator{
		threshold:  threshold,
		target:     strings.ToLower(target),
		labelIndex: labelIndex,
	}
}

// Annotate draws every detection scoring strictly above the threshold onto
// the frame and returns the annotated frame along with whether any passing
// detection matched the target class. Detections at or below the threshold
// contribute nothing. Annotate never fails; box geometry is taken as the
// model produced it.
func (a *Annotator) Annotate(frame image.Image, detections []Detection) (image.Image, bool) {
	passing := NewScoreFilter(a.threshold)(detections)
	targetFound := false
	for _, d := range passing {
		if strings.EqualFold(d.Label(), a.target) {
			targetFound = true
			break
		}
	}
	if len(passing) == 0 {
		return frame, false
	}

	dc := gg.NewContextForImage(frame)
	for _, d := range passing {
		c := PaletteColor(a.labelIndex[d.Label()])
		box := d.BoundingBox()
		drawRectangleEmpty(dc, box, c, 2)
		label := fmt.Sprintf("%s: %d%%", d.Label(), int(math.Round(d.Score()*100)))
		drawString(dc, label, image.Point{box.Min.X, box.Min.Y - 7}, c, 12)
	}
	return dc.Image(), targetFound
}

// drawString writes a string to the given context at a particular point.
func drawString(dc *gg.Context, text string, p image.Point, c color.Color, size float64) {
	dc.SetFontFace(truetype.NewFace(overlayFont, &truetype.Options{Size: size}))
	dc.SetColor(c)
	dc.DrawStringWrapped(text, float64(p.X), float64(p.Y), 0, 0, float64(dc.Width()), 1, 0)
}

// drawRectangleEmpty draws the outline of the given rectangle into the context.
func drawRectangleEmpty(dc *gg.Context, r image.Rectangle, c color.Color, width float64) {
	dc.SetColor(c)

	dc.DrawLine(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Min.Y))
	dc.SetLineWidth(width)
	dc.Stroke()

	dc.DrawLine(float64(r.Min.X), float64(r.Min.Y), float64(r.Min.X), float64(r.Max.Y))
	dc.SetLineWidth(width)
	dc.Stroke()

	dc.DrawLine(float64(r.Max.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y))
	dc.SetLineWidth(width)
	dc.Stroke()

	dc.DrawLine(float64(r.Min.X), float64(r.Max.Y), float64(r.Max.X), float64(r.Max.Y))
	dc.SetLineWidth(width)
	dc.Stroke()
}
