package gallery

import "errors"

var (
	ErrNotFound          = errors.New("recommendation not found")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrRenderFailed      = errors.New("card render failed")
)
