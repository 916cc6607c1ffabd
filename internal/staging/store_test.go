package staging

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartyap-backend/internal/shared/storage/object"
	"chartyap-backend/internal/shared/storage/object/local"
)

// trackingStore records which keys are live so tests can assert releases.
type trackingStore struct {
	object.ObjectStore
	mu   sync.Mutex
	live map[string]struct{}
}

func newTrackingStore(t *testing.T) *trackingStore {
	return &trackingStore{ObjectStore: local.New(t.TempDir()), live: map[string]struct{}{}}
}

func (s *trackingStore) Save(ctx context.Context, ns, name string, r io.Reader) (string, int64, string, error) {
	key, size, mime, err := s.ObjectStore.Save(ctx, ns, name, r)
	if err == nil {
		s.mu.Lock()
		s.live[key] = struct{}{}
		s.mu.Unlock()
	}
	return key, size, mime, err
}

func (s *trackingStore) SaveWithKey(ctx context.Context, key, ct string, r io.Reader) (int64, error) {
	n, err := s.ObjectStore.SaveWithKey(ctx, key, ct, r)
	if err == nil {
		s.mu.Lock()
		s.live[key] = struct{}{}
		s.mu.Unlock()
	}
	return n, err
}

func (s *trackingStore) Delete(ctx context.Context, key string) error {
	err := s.ObjectStore.Delete(ctx, key)
	if err == nil {
		s.mu.Lock()
		delete(s.live, key)
		s.mu.Unlock()
	}
	return err
}

func (s *trackingStore) liveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func pngBytes(t testing.TB, w, h int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestSlotAccepts(t *testing.T) {
	assert.True(t, SlotData.Accepts("sales.csv"))
	assert.True(t, SlotData.Accepts("Q1.XLSX"))
	assert.False(t, SlotData.Accepts("chart.png"))
	assert.True(t, SlotStyle.Accepts("ref.jpeg"))
	assert.False(t, SlotStyle.Accepts("ref.gif"))
	assert.False(t, Slot("other").Accepts("sales.csv"))
}

func TestStageDataReplacesAndReleases(t *testing.T) {
	objects := newTrackingStore(t)
	changes := 0
	s := New(objects, "sess-1", Options{OnChange: func() { changes++ }})
	ctx := context.Background()

	assert.False(t, s.Ready(SlotData))

	_, err := s.StageData(ctx, "first.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	staged, err := s.StageData(ctx, "sales.csv", strings.NewReader("region,revenue\nNorth,120\n"))
	require.NoError(t, err)

	assert.True(t, staged.Ready)
	assert.Equal(t, "sales.csv", staged.FileName)
	assert.True(t, s.Ready(SlotData))
	assert.Equal(t, 1, objects.liveCount(), "the replaced data file must be released")
	assert.Equal(t, 2, changes)

	f, rc, err := s.Open(ctx, SlotData)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "sales.csv", f.FileName)
	assert.Equal(t, "region,revenue\nNorth,120\n", string(body))
}

func TestStageRejectsFilteredTypes(t *testing.T) {
	s := New(newTrackingStore(t), "sess-1", Options{})
	_, err := s.StageData(context.Background(), "report.pdf", strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedType))
	_, err = s.StageStyle(context.Background(), "notes.txt", strings.NewReader("x"))
	assert.True(t, errors.Is(err, ErrUnsupportedType))
	assert.False(t, s.Ready(SlotData))
	assert.False(t, s.Ready(SlotStyle))
}

func TestStageStyleRefreshesPreview(t *testing.T) {
	objects := newTrackingStore(t)
	s := New(objects, "sess-1", Options{PreviewMaxDimension: 100})
	ctx := context.Background()

	_, err := s.StageStyle(ctx, "a.png", bytes.NewReader(pngBytes(t, 400, 200)))
	require.NoError(t, err)
	first := s.Snapshot().Preview
	require.NotNil(t, first)
	assert.Equal(t, 100, first.Width)
	assert.Equal(t, 50, first.Height)

	_, err = s.StageStyle(ctx, "b.png", bytes.NewReader(pngBytes(t, 50, 50)))
	require.NoError(t, err)
	second := s.Snapshot().Preview
	require.NotNil(t, second)
	assert.Greater(t, second.Version, first.Version)
	assert.Equal(t, 2, objects.liveCount(), "one style file and one preview")

	p, rc, err := s.OpenPreview(ctx)
	require.NoError(t, err)
	defer rc.Close()
	cfg, err := png.DecodeConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, p.Width, cfg.Width)
}

func TestStageStyleWithoutDecodablePreview(t *testing.T) {
	objects := newTrackingStore(t)
	s := New(objects, "sess-1", Options{})
	ctx := context.Background()

	_, err := s.StageStyle(ctx, "a.png", bytes.NewReader(pngBytes(t, 10, 10)))
	require.NoError(t, err)
	_, err = s.StageStyle(ctx, "broken.png", strings.NewReader("not an image"))
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.True(t, snap.StyleReady)
	assert.Nil(t, snap.Preview)
	assert.Equal(t, 1, objects.liveCount(), "old preview released even when the new one fails")

	_, _, err = s.OpenPreview(ctx)
	assert.ErrorIs(t, err, ErrNoPreview)
}

func TestStageStyleOverPixelBudgetHasNoPreview(t *testing.T) {
	objects := newTrackingStore(t)
	s := New(objects, "sess-1", Options{PreviewMaxDimension: 100, PreviewMaxPixels: 400})
	ctx := context.Background()

	staged, err := s.StageStyle(ctx, "wide.png", bytes.NewReader(pngBytes(t, 40, 20)))
	require.NoError(t, err)
	assert.True(t, staged.Ready)

	snap := s.Snapshot()
	assert.True(t, snap.StyleReady)
	assert.Nil(t, snap.Preview)
	assert.Equal(t, 1, objects.liveCount(), "only the style file is stored")
}

func TestResetReleasesEverything(t *testing.T) {
	objects := newTrackingStore(t)
	s := New(objects, "sess-1", Options{})
	ctx := context.Background()

	_, err := s.StageData(ctx, "sales.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	_, err = s.StageStyle(ctx, "ref.png", bytes.NewReader(pngBytes(t, 20, 20)))
	require.NoError(t, err)
	require.Equal(t, 3, objects.liveCount())

	require.NoError(t, s.Reset(ctx))
	assert.Zero(t, objects.liveCount())
	assert.Equal(t, Snapshot{}, s.Snapshot())

	_, _, err = s.Open(ctx, SlotData)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRepeatedStyleStagingNeverLeaks(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one style file and one preview stay live", prop.ForAll(
		func(sizes []int) bool {
			objects := &trackingStore{ObjectStore: local.New(t.TempDir()), live: map[string]struct{}{}}
			s := New(objects, "sess", Options{PreviewMaxDimension: 32})
			for _, n := range sizes {
				if _, err := s.StageStyle(context.Background(), "s.png", bytes.NewReader(pngBytes(t, n, n))); err != nil {
					return false
				}
			}
			want := 0
			if len(sizes) > 0 {
				want = 2
			}
			return objects.liveCount() == want
		},
		gen.SliceOf(gen.IntRange(1, 64)),
	))

	properties.TestingRun(t)
}
