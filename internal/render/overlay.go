package render

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// WriteOverlay saves the diagnostic region overlay. The format follows the
// file extension; PNG is the usual choice.
func WriteOverlay(img image.Image, path string) error {
	const op = "WriteOverlay"
	if img == nil {
		return WrapRenderError(op, path, fmt.Errorf("%w: no overlay image", ErrRenderFailed))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return WrapRenderError(op, path, err)
	}
	if err := imaging.Save(img, path); err != nil {
		return WrapRenderError(op, path, fmt.Errorf("%w: %v", ErrRenderFailed, err))
	}
	return nil
}
