package staging

import (
	"path/filepath"
	"strings"
	"time"
)

// Slot names one of the two pending file selections.
type Slot string

const (
	SlotData  Slot = "data"
	SlotStyle Slot = "style"
)

var acceptedExt = map[Slot]map[string]struct{}{
	SlotData:  {".csv": {}, ".xlsx": {}, ".xls": {}},
	SlotStyle: {".png": {}, ".jpg": {}, ".jpeg": {}, ".webp": {}},
}

// Accepts reports whether fileName passes the slot's drop filter.
func (s Slot) Accepts(fileName string) bool {
	exts, ok := acceptedExt[s]
	if !ok {
		return false
	}
	_, ok = exts[strings.ToLower(filepath.Ext(strings.TrimSpace(fileName)))]
	return ok
}

// StagedFile is a file held in a slot. A staged file is always ready; an empty
// slot is represented by its absence.
type StagedFile struct {
	Slot        Slot      `json:"slot"`
	FileName    string    `json:"fileName"`
	ContentType string    `json:"contentType"`
	SizeBytes   int64     `json:"sizeBytes"`
	Ready       bool      `json:"ready"`
	StagedAt    time.Time `json:"stagedAt"`

	storageKey string
}

// Preview describes the current display-only style thumbnail. Version changes
// on every replacement so clients can drop cached copies.
type Preview struct {
	Width   int `json:"width"`
	Height  int `json:"height"`
	Version int `json:"version"`

	storageKey string
}

// Snapshot is a copy of the store's state for display.
type Snapshot struct {
	Data       *StagedFile `json:"data,omitempty"`
	Style      *StagedFile `json:"style,omitempty"`
	Preview    *Preview    `json:"preview,omitempty"`
	DataReady  bool        `json:"dataReady"`
	StyleReady bool        `json:"styleReady"`
}
