package imgproc

import (
	"fmt"
	"image"
)

// InvalidImageError reports a nil, empty or otherwise unusable input image.
type InvalidImageError struct {
	Operation string
	Reason    string
}

func (e *InvalidImageError) Error() string {
	return fmt.Sprintf("%s: invalid image: %s", e.Operation, e.Reason)
}

func checkImage(op string, w, h int, nilImage bool) error {
	if nilImage {
		return &InvalidImageError{Operation: op, Reason: "image is nil"}
	}
	if w <= 0 || h <= 0 {
		return &InvalidImageError{Operation: op, Reason: fmt.Sprintf("zero-size image %dx%d", w, h)}
	}
	return nil
}

// ValidateImage returns an InvalidImageError for a nil or empty img.
func ValidateImage(op string, img image.Image) error {
	if img == nil {
		return checkImage(op, 0, 0, true)
	}
	b := img.Bounds()
	return checkImage(op, b.Dx(), b.Dy(), false)
}
