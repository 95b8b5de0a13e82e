package sim

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/tgoai/tgo-sessionwatch/internal/backend/session"
	"github.com/tgoai/tgo-sessionwatch/internal/client"
)

// Screen geometry of a simulated device, in pixels.
const (
	ScreenWidth  = 96
	ScreenHeight = 64
)

// Load is host utilisation in percent.
type Load struct {
	CPU    float64
	Memory float64
}

type LoadFunc func(ctx context.Context) (Load, error)

// HostLoad samples the machine running the simulator.
func HostLoad(ctx context.Context) (Load, error) {
	var l Load
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return l, err
	}
	if len(percents) > 0 {
		l.CPU = percents[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return l, err
	}
	l.Memory = vm.UsedPercent
	return l, nil
}

var (
	screenBg   = color.RGBA{0x1a, 0x1b, 0x26, 0xff}
	barTrack   = color.RGBA{0x3b, 0x3d, 0x57, 0xff}
	cpuFill    = color.RGBA{0x7a, 0xa2, 0xf7, 0xff}
	memoryFill = color.RGBA{0xbb, 0x9a, 0xf7, 0xff}
	clockFill  = color.RGBA{0xc0, 0xca, 0xf5, 0xff}
)

func bandColor(c client.Connectivity) color.RGBA {
	switch c {
	case client.ConnLoggedIn:
		return color.RGBA{0x9e, 0xce, 0x6a, 0xff}
	case client.ConnQRPending:
		return color.RGBA{0xe0, 0xaf, 0x68, 0xff}
	case client.ConnExpired:
		return color.RGBA{0xf7, 0x76, 0x8e, 0xff}
	default:
		return color.RGBA{0x56, 0x5f, 0x89, 0xff}
	}
}

func (s *Simulator) paint(st *session.State, now time.Time, load Load) {
	data, err := DrawScreen(st.Connectivity, now, load)
	if err != nil {
		st.ScreenError = err.Error()
		return
	}
	st.Screen = data
	st.ScreenAt = now
	st.ScreenError = ""
}

// DrawScreen renders a device frame: a status band coloured by connectivity,
// CPU and memory bars, and a seconds ticker so consecutive frames differ.
func DrawScreen(c client.Connectivity, now time.Time, load Load) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, ScreenWidth, ScreenHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(screenBg), image.Point{}, draw.Src)

	fill(img, image.Rect(0, 0, ScreenWidth, 12), bandColor(c))
	bar(img, 24, load.CPU, cpuFill)
	bar(img, 36, load.Memory, memoryFill)

	// One notch per second along the bottom edge.
	sec := now.Second()
	x := 4 + sec*(ScreenWidth-12)/60
	fill(img, image.Rect(x, 52, x+4, 60), clockFill)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func bar(img *image.RGBA, y int, percent float64, c color.RGBA) {
	percent = min(max(percent, 0), 100)
	track := image.Rect(4, y, ScreenWidth-4, y+8)
	fill(img, track, barTrack)
	w := int(float64(track.Dx()) * percent / 100)
	fill(img, image.Rect(track.Min.X, y, track.Min.X+w, y+8), c)
}

func fill(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Src)
}
