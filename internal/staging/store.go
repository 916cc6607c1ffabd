// Package staging holds the data and style file selections of one session
// until a generation run picks them up.
package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartyap-backend/internal/shared/storage/object"
	"chartyap-backend/internal/shared/telemetry"
	"chartyap-backend/internal/shared/util"
	"chartyap-backend/internal/staging/preview"
)

// Options tunes a Store.
type Options struct {
	PreviewMaxDimension int
	PreviewMaxPixels    int
	// OnChange runs after every state change, outside the store's lock.
	OnChange func()
}

// Store owns the staged files of one session. Objects it replaces or resets are
// deleted from the object store.
type Store struct {
	objects   object.ObjectStore
	namespace string
	opts      Options
	now       func() time.Time

	mu      sync.Mutex
	data    *StagedFile
	style   *StagedFile
	preview *Preview
	version int
}

// New creates an empty store writing under namespace.
func New(objects object.ObjectStore, namespace string, opts Options) *Store {
	return &Store{
		objects:   objects,
		namespace: namespace,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StageData replaces the data file and marks it ready.
func (s *Store) StageData(ctx context.Context, fileName string, r io.Reader) (StagedFile, error) {
	if !SlotData.Accepts(fileName) {
		return StagedFile{}, fmt.Errorf("%w: %s", ErrUnsupportedType, fileName)
	}
	staged, err := s.save(ctx, SlotData, fileName, r)
	if err != nil {
		return StagedFile{}, err
	}

	s.mu.Lock()
	old := s.data
	s.data = &staged
	s.mu.Unlock()

	if old != nil {
		s.release(ctx, old.storageKey)
	}
	s.changed()
	return staged, nil
}

// StageStyle replaces the style file, marks it ready and builds a fresh preview.
// The previous style file and preview are released. A file that cannot be
// decoded is still staged, just without a preview.
func (s *Store) StageStyle(ctx context.Context, fileName string, r io.Reader) (StagedFile, error) {
	if !SlotStyle.Accepts(fileName) {
		return StagedFile{}, fmt.Errorf("%w: %s", ErrUnsupportedType, fileName)
	}
	var raw bytes.Buffer
	staged, err := s.save(ctx, SlotStyle, fileName, io.TeeReader(r, &raw))
	if err != nil {
		return StagedFile{}, err
	}

	fresh, err := s.makePreview(ctx, &raw)
	if err != nil {
		telemetry.Warn("staging.preview_failed", map[string]any{
			"session_id": s.namespace,
			"file_name":  fileName,
			"error":      err,
		})
	}

	s.mu.Lock()
	oldStyle, oldPreview := s.style, s.preview
	s.style = &staged
	s.preview = nil
	if fresh != nil {
		s.version++
		fresh.Version = s.version
		s.preview = fresh
	}
	s.mu.Unlock()

	if oldStyle != nil {
		s.release(ctx, oldStyle.storageKey)
	}
	if oldPreview != nil {
		s.release(ctx, oldPreview.storageKey)
	}
	s.changed()
	return staged, nil
}

// Ready reports whether slot holds a staged file.
func (s *Store) Ready(slot Slot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.slot(slot)
	return f != nil && f.Ready
}

// Open returns the staged file of slot and a reader over its content. The
// object is opened under the store's lock so a concurrent replacement cannot
// release it first.
func (s *Store) Open(ctx context.Context, slot Slot) (StagedFile, io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.slot(slot)
	if f == nil {
		return StagedFile{}, nil, fmt.Errorf("%w: %s", ErrNotReady, slot)
	}
	rc, err := s.objects.Open(ctx, f.storageKey)
	if err != nil {
		return StagedFile{}, nil, fmt.Errorf("open staged %s: %w", slot, err)
	}
	return *f, rc, nil
}

// OpenPreview returns the current preview thumbnail as PNG.
func (s *Store) OpenPreview(ctx context.Context) (Preview, io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return Preview{}, nil, ErrNoPreview
	}
	rc, err := s.objects.Open(ctx, s.preview.storageKey)
	if err != nil {
		return Preview{}, nil, fmt.Errorf("open preview: %w", err)
	}
	return *s.preview, rc, nil
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap Snapshot
	if s.data != nil {
		d := *s.data
		snap.Data = &d
		snap.DataReady = d.Ready
	}
	if s.style != nil {
		st := *s.style
		snap.Style = &st
		snap.StyleReady = st.Ready
	}
	if s.preview != nil {
		p := *s.preview
		snap.Preview = &p
	}
	return snap
}

// Reset clears both slots and releases every object the store still holds.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	var keys []string
	for _, f := range []*StagedFile{s.data, s.style} {
		if f != nil {
			keys = append(keys, f.storageKey)
		}
	}
	if s.preview != nil {
		keys = append(keys, s.preview.storageKey)
	}
	s.data, s.style, s.preview = nil, nil, nil
	s.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
			errs = append(errs, fmt.Errorf("release %s: %w", key, err))
		}
	}
	if len(keys) > 0 {
		s.changed()
	}
	return errors.Join(errs...)
}

func (s *Store) save(ctx context.Context, slot Slot, fileName string, r io.Reader) (StagedFile, error) {
	key, size, mimeType, err := s.objects.Save(ctx, s.namespace, fileName, r)
	if err != nil {
		return StagedFile{}, fmt.Errorf("stage %s: %w", slot, err)
	}
	return StagedFile{
		Slot:        slot,
		FileName:    fileName,
		ContentType: mimeType,
		SizeBytes:   size,
		Ready:       true,
		StagedAt:    s.now(),
		storageKey:  key,
	}, nil
}

func (s *Store) makePreview(ctx context.Context, r io.Reader) (*Preview, error) {
	thumb, err := preview.Make(r, s.opts.PreviewMaxDimension, s.opts.PreviewMaxPixels)
	if err != nil {
		return nil, err
	}
	key := path.Join(util.HashSessionKey(s.namespace), "previews", uuid.NewString()+".png")
	if _, err := s.objects.SaveWithKey(ctx, key, "image/png", bytes.NewReader(thumb.PNG)); err != nil {
		return nil, fmt.Errorf("save preview: %w", err)
	}
	return &Preview{Width: thumb.Width, Height: thumb.Height, storageKey: key}, nil
}

func (s *Store) release(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.objects.Delete(ctx, key); err != nil && !errors.Is(err, object.ErrNotFound) {
		telemetry.Warn("staging.release_failed", map[string]any{
			"session_id":  s.namespace,
			"storage_key": key,
			"error":       err,
		})
	}
}

func (s *Store) slot(slot Slot) *StagedFile {
	switch slot {
	case SlotData:
		return s.data
	case SlotStyle:
		return s.style
	}
	return nil
}

func (s *Store) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}
