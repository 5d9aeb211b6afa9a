package videosource

import (
	"context"
	"image"
	_ "image/jpeg" // register jpeg decoding
	_ "image/png"  // register png decoding
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp" // register bmp decoding
)

// fileSource serves decoded images from a pending queue of file paths,
// popping the head each pull. An empty queue means the stream has ended.
type fileSource struct {
	pending []string
	logger  golog.Logger
}

func newFileSource(paths []string, logger golog.Logger) (*fileSource, error) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.Wrapf(err, "cannot read image %q", p)
		}
	}
	return &fileSource{pending: paths, logger: logger}, nil
}

// newDirectorySource enumerates the files directly under dir whose extension
// is in the recognized image set, in discovery order.
func newDirectorySource(dir string, logger golog.Logger) (*fileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot enumerate image directory %q", dir)
	}
	var pending []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if containsExt(imageExtensions, filepath.Ext(entry.Name())) {
			pending = append(pending, filepath.Join(dir, entry.Name()))
		}
	}
	return &fileSource{pending: pending, logger: logger}, nil
}

func (fs *fileSource) Next(ctx context.Context) (image.Image, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(fs.pending) == 0 {
		return nil, nil, ErrStreamEnded
	}
	path := fs.pending[0]
	fs.pending = fs.pending[1:]

	f, err := os.Open(path)
	if err != nil {
		// a file that disappeared or turned unreadable mid-run ends the
		// stream rather than failing the pipeline
		fs.logger.Warnw("cannot open image, ending stream", "path", path, "error", err)
		return nil, nil, ErrStreamEnded
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		fs.logger.Warnw("cannot decode image, ending stream", "path", path, "error", err)
		return nil, nil, ErrStreamEnded
	}
	return img, func() {}, nil
}

func (fs *fileSource) Close() error {
	fs.pending = nil
	return nil
}
