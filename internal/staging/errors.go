package staging

import "errors"

var (
	// ErrUnsupportedType is returned when a file's extension is outside the slot's drop filter.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrNotReady is returned when a slot has nothing staged.
	ErrNotReady = errors.New("file not staged")
	// ErrNoPreview is returned when the style slot has no preview reference.
	ErrNoPreview = errors.New("no style preview")
)
