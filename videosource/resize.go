package videosource

import (
	"context"
	"image"

	"github.com/disintegration/imaging"
)

type resizeSource struct {
	src    Source
	width  int
	height int
}

// ResizeSource wraps a source so that every frame it produces is resized to
// exactly width x height.
func ResizeSource(src Source, width, height int) Source {
	return &resizeSource{src: src, width: width, height: height}
}

func (rs *resizeSource) Next(ctx context.Context) (image.Image, func(), error) {
	img, release, err := rs.src.Next(ctx)
	if err != nil {
		return nil, nil, err
	}
	bounds := img.Bounds()
	if bounds.Dx() == rs.width && bounds.Dy() == rs.height {
		return img, release, nil
	}
	resized := imaging.Resize(img, rs.width, rs.height, imaging.Linear)
	if release != nil {
		release()
	}
	return resized, func() {}, nil
}

func (rs *resizeSource) Close() error {
	return rs.src.Close()
}
