package imaging

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func checker(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x+y)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return img
}

func TestDecode(t *testing.T) {
	payload := encodePNG(t, checker(4, 4))
	img, format, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 4, img.Bounds().Dx())

	_, _, err = Decode(nil)
	assert.ErrorIs(t, err, ErrEmpty)

	_, _, err = Decode([]byte("not an image"))
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	tests := []struct {
		name             string
		w, h, mc, mr     int
		wantCols, wantRs int
	}{
		{"width bound", 100, 50, 40, 100, 40, 10},
		{"height bound", 100, 400, 80, 20, 10, 20},
		{"tiny", 1, 1000, 10, 5, 1, 5},
		{"empty", 0, 10, 10, 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cols, rows := Fit(tt.w, tt.h, tt.mc, tt.mr)
			assert.Equal(t, tt.wantCols, cols)
			assert.Equal(t, tt.wantRs, rows)
		})
	}
}

func TestRenderDimensions(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	out := Render(img, 10, 10)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 5)
	assert.Equal(t, 10, strings.Count(lines[0], "▀"))
}

func TestRenderMono(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(0, 0, color.Gray{Y: 0})
	img.SetGray(1, 0, color.Gray{Y: 255})
	img.SetGray(0, 1, color.Gray{Y: 0})
	img.SetGray(1, 1, color.Gray{Y: 0})

	assert.Equal(t, " ▀", RenderMono(img, 0))
}

func TestCache(t *testing.T) {
	c := NewCache(2)
	a := encodePNG(t, checker(4, 4))
	b := encodePNG(t, checker(6, 6))

	first, err := c.Render(a, KindMono, 10, 0)
	require.NoError(t, err)
	again, err := c.Render(a, KindMono, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, c.Len())

	_, err = c.Render(a, KindColor, 10, 10)
	require.NoError(t, err)
	_, err = c.Render(b, KindColor, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len(), "oldest entry evicted")

	_, err = c.Render([]byte("junk"), KindColor, 10, 10)
	assert.Error(t, err)
	assert.Equal(t, 2, c.Len())
}

// pngHeader returns a PNG holding only the signature and an IHDR chunk for
// a w×h grayscale image. That is all DecodeConfig reads.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; colour type, compression, filter and interlace stay 0

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeRejectsOversizedImage(t *testing.T) {
	_, _, err := Decode(pngHeader(16000, 16000))
	require.ErrorIs(t, err, ErrTooLarge)

	_, _, err = Decode(pngHeader(4097, 4096))
	assert.ErrorIs(t, err, ErrTooLarge)

	// At the budget the header passes; the truncated body then fails to decode.
	_, _, err = Decode(pngHeader(4096, 4096))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTooLarge)
}

func TestCacheRejectsOversizedImage(t *testing.T) {
	c := NewCache(4)
	text, err := c.Render(pngHeader(16000, 16000), KindColor, 80, 24)
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, text)
}

func TestCacheKeepsFailures(t *testing.T) {
	c := NewCache(4)
	junk := []byte("not an image")

	_, first := c.Render(junk, KindColor, 10, 10)
	require.Error(t, first)
	assert.Equal(t, 1, c.Len(), "failure is cached")

	_, again := c.Render(junk, KindColor, 10, 10)
	assert.Same(t, first, again, "cached failure is returned without decoding again")
	assert.Equal(t, 1, c.Len())
}

func TestDigestStable(t *testing.T) {
	assert.Equal(t, Digest([]byte("x")), Digest([]byte("x")))
	assert.NotEqual(t, Digest([]byte("x")), Digest([]byte("y")))
	assert.Len(t, Digest(nil), 64)
}
