package raster

import "errors"

var (
	// ErrUnsupportedMark means the mark family has no raster painter.
	ErrUnsupportedMark = errors.New("mark not supported for raster export")
	// ErrUnsupportedEncoding covers bins, transforms and channel shapes the painter cannot evaluate.
	ErrUnsupportedEncoding = errors.New("encoding not supported for raster export")
	// ErrNoData means no row produced a drawable value.
	ErrNoData = errors.New("no drawable values")
)
