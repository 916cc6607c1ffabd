package preview

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestMakeScalesDownLandscape(t *testing.T) {
	thumb, err := Make(bytes.NewReader(encodePNG(t, 1200, 600)), 300, 0)
	require.NoError(t, err)
	assert.Equal(t, 300, thumb.Width)
	assert.Equal(t, 150, thumb.Height)
	assert.Equal(t, "png", thumb.SourceFormat)

	cfg, err := png.DecodeConfig(bytes.NewReader(thumb.PNG))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
}

func TestMakeKeepsSmallImages(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 90))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	thumb, err := Make(&buf, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 40, thumb.Width)
	assert.Equal(t, 90, thumb.Height)
	assert.Equal(t, "jpeg", thumb.SourceFormat)
}

func TestMakeRejectsNonImages(t *testing.T) {
	_, err := Make(strings.NewReader("region,revenue\nNorth,120\n"), 100, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUndecodable))
}

// inflatedPNG encodes a 1x1 PNG and rewrites its IHDR so the header declares
// w x h pixels.
func inflatedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	data := encodePNG(t, 1, 1)
	// signature(8) + length(4) + "IHDR"(4), then width and height.
	binary.BigEndian.PutUint32(data[16:20], w)
	binary.BigEndian.PutUint32(data[20:24], h)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))
	return data
}

func TestMakeRefusesOversizedHeaderWithoutDecoding(t *testing.T) {
	data := inflatedPNG(t, 12000, 12000)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 12000, cfg.Width)

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	_, err = Make(bytes.NewReader(data), 480, 1_000_000)
	runtime.ReadMemStats(&after)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUndecodable)
	assert.Contains(t, err.Error(), "12000x12000")
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(8<<20), "pixel buffer must not be allocated")
}

func TestMakeAcceptsImageAtPixelBudget(t *testing.T) {
	thumb, err := Make(bytes.NewReader(encodePNG(t, 100, 50)), 480, 5000)
	require.NoError(t, err)
	assert.Equal(t, 100, thumb.Width)

	_, err = Make(bytes.NewReader(encodePNG(t, 100, 51)), 480, 5000)
	assert.ErrorIs(t, err, ErrUndecodable)
}

func TestFitPortrait(t *testing.T) {
	w, h := fit(300, 1200, 480)
	assert.Equal(t, 120, w)
	assert.Equal(t, 480, h)

	w, h = fit(5000, 1, 480)
	assert.Equal(t, 480, w)
	assert.Equal(t, 1, h)
}
