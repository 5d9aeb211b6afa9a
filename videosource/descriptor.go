// Package videosource normalizes the supported frame sources (single image,
// image directory, video file, USB webcam) into one pull-based sequence of
// frames with a uniform end-of-stream signal.
package videosource

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Kind enumerates the supported source kinds.
type Kind int

const (
	// KindUnknown is an unclassifiable source.
	KindUnknown Kind = iota
	// KindImage is a single image file.
	KindImage
	// KindImageDirectory is a directory of image files.
	KindImageDirectory
	// KindVideoFile is a video file.
	KindVideoFile
	// KindWebcam is a live USB camera.
	KindWebcam
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindImageDirectory:
		return "image-directory"
	case KindVideoFile:
		return "video-file"
	case KindWebcam:
		return "webcam"
	default:
		return "unknown"
	}
}

// recognized file extension sets; matching is case-sensitive.
var (
	imageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}
	videoExtensions = []string{".avi", ".mov", ".mp4", ".mkv", ".wmv"}
)

// Descriptor is the resolved description of where frames come from. It is
// built once at startup and never changes.
type Descriptor struct {
	Kind        Kind
	Path        string
	CameraIndex int
	// Width/Height are the optional resolution override; zero means none.
	Width  int
	Height int
}

// HasResolution reports whether a resolution override is set.
func (d Descriptor) HasResolution() bool {
	return d.Width > 0 && d.Height > 0
}

// ParseSource classifies a user-provided source string into a Descriptor.
// It only classifies; whether the source can actually be opened is decided
// by NewSource.
func ParseSource(source string) (Descriptor, error) {
	if info, err := os.Stat(source); err == nil {
		if info.IsDir() {
			return Descriptor{Kind: KindImageDirectory, Path: source}, nil
		}
		ext := filepath.Ext(source)
		if containsExt(imageExtensions, ext) {
			return Descriptor{Kind: KindImage, Path: source}, nil
		}
		if containsExt(videoExtensions, ext) {
			return Descriptor{Kind: KindVideoFile, Path: source}, nil
		}
		return Descriptor{}, errors.Errorf("unsupported file extension %q for source %q", ext, source)
	}
	if idxStr, ok := strings.CutPrefix(source, "usb"); ok {
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 {
			return Descriptor{}, errors.Errorf("invalid camera index in source %q", source)
		}
		return Descriptor{Kind: KindWebcam, CameraIndex: idx}, nil
	}
	return Descriptor{}, errors.Errorf("invalid source %q: not an existing path or usb<N> token", source)
}

// ParseResolution parses a "<width>x<height>" string. Both the ASCII 'x' and
// the multiplication sign are accepted as separators.
func ParseResolution(res string) (int, int, error) {
	parts := strings.Split(strings.ReplaceAll(res, "×", "x"), "x")
	if len(parts) != 2 {
		return 0, 0, errors.Errorf("resolution must look like 640x480, got %q", res)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad width in resolution %q", res)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, errors.Wrapf(err, "bad height in resolution %q", res)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, errors.Errorf("resolution dimensions must be positive, got %q", res)
	}
	return width, height, nil
}

func containsExt(exts []string, ext string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
