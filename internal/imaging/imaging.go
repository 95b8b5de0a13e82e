// Package imaging turns encoded screenshot and QR payloads into terminal
// text. Colour images use upper half blocks so one cell carries two pixel
// rows; QR codes use a monochrome variant with a quiet zone preserved.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// MaxPixels bounds the decoded size of a payload. Headers are checked before
// any pixel data is allocated.
const MaxPixels = 4096 * 4096

var (
	// ErrEmpty is returned for a zero-length payload.
	ErrEmpty = errors.New("imaging: empty payload")
	// ErrTooLarge is returned for images whose dimensions exceed MaxPixels.
	ErrTooLarge = errors.New("imaging: image too large")
)

// Decode decodes a PNG, JPEG or GIF payload of at most MaxPixels pixels.
func Decode(payload []byte) (image.Image, string, error) {
	if len(payload) == 0 {
		return nil, "", ErrEmpty
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}
	img, format, err := image.Decode(bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	return img, format, nil
}

// Fit returns the cell dimensions that fit an image of w×h pixels into a
// box of maxCols×maxRows cells, keeping the aspect ratio. A cell is one
// pixel wide and two pixels tall.
func Fit(w, h, maxCols, maxRows int) (cols, rows int) {
	if w <= 0 || h <= 0 || maxCols <= 0 || maxRows <= 0 {
		return 0, 0
	}
	cols = maxCols
	rows = (h * cols) / (w * 2)
	if rows > maxRows {
		rows = maxRows
		cols = (w * rows * 2) / h
	}
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return cols, rows
}

// Render draws img into at most cols×rows cells using half blocks with a
// truecolor foreground (upper pixel) and background (lower pixel).
func Render(img image.Image, cols, rows int) string {
	b := img.Bounds()
	cols, rows = Fit(b.Dx(), b.Dy(), cols, rows)
	if cols == 0 {
		return ""
	}

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			top := sample(img, c, 2*r, cols, rows*2)
			bottom := sample(img, c, 2*r+1, cols, rows*2)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(hexColor(top)).
				Background(hexColor(bottom)).
				Render("▀"))
		}
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// RenderMono draws a two-tone image, typically a QR code, at one module per
// cell column and two module rows per cell row. The output is plain text so
// scanners see black on the terminal's own background.
func RenderMono(img image.Image, maxCols int) string {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return ""
	}
	cols := w
	if maxCols > 0 && cols > maxCols {
		cols = maxCols
	}
	rows := (h*cols/w + 1) / 2

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			top := dark(sample(img, c, 2*r, cols, rows*2))
			bottom := dark(sample(img, c, 2*r+1, cols, rows*2))
			switch {
			case top && bottom:
				sb.WriteRune(' ')
			case top:
				sb.WriteRune('▄')
			case bottom:
				sb.WriteRune('▀')
			default:
				sb.WriteRune('█')
			}
		}
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// sample picks the source pixel under cell (x, y) of a w×h target grid.
func sample(img image.Image, x, y, w, h int) color.Color {
	b := img.Bounds()
	sx := b.Min.X + x*b.Dx()/w
	sy := b.Min.Y + y*b.Dy()/h
	if sy >= b.Max.Y {
		sy = b.Max.Y - 1
	}
	return img.At(sx, sy)
}

func hexColor(c color.Color) lipgloss.Color {
	r, g, b, _ := c.RGBA()
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8))
}

func dark(c color.Color) bool {
	g := color.GrayModel.Convert(c).(color.Gray)
	return g.Y < 128
}
