package graphicslib

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/rrthomas/samvm"
)

// ImageDisplay is a concrete Display backed by the standard image/draw
// package: it rasterizes onto an in-memory image.RGBA rather than a real
// window, so the graphics trap boundary is exercisable and testable without
// a windowing toolkit (a real windowing backend is explicitly out of scope).
type ImageDisplay struct {
	img     *image.RGBA
	palette []color.Color
}

// NewImageDisplay allocates a width x height display with a black/white
// two-entry palette (indices 0 and 1, matching Black()/White() below).
func NewImageDisplay(width, height int) *ImageDisplay {
	return &ImageDisplay{
		img:     image.NewRGBA(image.Rect(0, 0, width, height)),
		palette: []color.Color{color.Black, color.White},
	}
}

// Image returns the backing image, e.g. for encoding to PNG in a test.
func (d *ImageDisplay) Image() image.Image { return d.img }

func (d *ImageDisplay) colorOf(c int) color.Color {
	if c >= 0 && c < len(d.palette) {
		return d.palette[c]
	}
	return color.Black
}

// Black is the host color index for black.
func (d *ImageDisplay) Black() int { return 0 }

// White is the host color index for white.
func (d *ImageDisplay) White() int { return 1 }

// DisplayWidth returns the backing image's width in pixels.
func (d *ImageDisplay) DisplayWidth() int { return d.img.Bounds().Dx() }

// DisplayHeight returns the backing image's height in pixels.
func (d *ImageDisplay) DisplayHeight() int { return d.img.Bounds().Dy() }

// ClearScreen fills the display with black.
func (d *ImageDisplay) ClearScreen() {
	draw.Draw(d.img, d.img.Bounds(), image.NewUniform(d.colorOf(d.Black())), image.Point{}, draw.Src)
}

// SetDot sets a single pixel.
func (d *ImageDisplay) SetDot(x, y, c int) {
	d.img.Set(x, y, d.colorOf(c))
}

// DrawLine draws a line using Bresenham's algorithm.
func (d *ImageDisplay) DrawLine(x0, y0, x1, y1, c int) {
	col := d.colorOf(c)
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	for {
		d.img.Set(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// DrawRect draws an unfilled rectangle outline.
func (d *ImageDisplay) DrawRect(x0, y0, x1, y1, c int) {
	d.DrawLine(x0, y0, x1, y0, c)
	d.DrawLine(x1, y0, x1, y1, c)
	d.DrawLine(x1, y1, x0, y1, c)
	d.DrawLine(x0, y1, x0, y0, c)
}

// DrawRoundRect draws a rectangle outline with the corners omitted over
// radius pixels — a simplification of true rounded corners, sufficient for
// exercising the trap boundary.
func (d *ImageDisplay) DrawRoundRect(x0, y0, x1, y1, radius, c int) {
	d.DrawLine(x0+radius, y0, x1-radius, y0, c)
	d.DrawLine(x0+radius, y1, x1-radius, y1, c)
	d.DrawLine(x0, y0+radius, x0, y1-radius, c)
	d.DrawLine(x1, y0+radius, x1, y1-radius, c)
}

// FillRect fills a rectangle solid.
func (d *ImageDisplay) FillRect(x0, y0, x1, y1, c int) {
	draw.Draw(d.img, image.Rect(x0, y0, x1+1, y1+1), image.NewUniform(d.colorOf(c)), image.Point{}, draw.Src)
}

// DrawCircle draws a circle outline using the midpoint algorithm.
func (d *ImageDisplay) DrawCircle(cx, cy, radius, c int) {
	col := d.colorOf(c)
	x, y, decision := radius, 0, 1-radius
	for x >= y {
		d.plot8(cx, cy, x, y, col)
		y++
		if decision <= 0 {
			decision += 2*y + 1
		} else {
			x--
			decision += 2*(y-x) + 1
		}
	}
}

// FillCircle fills a circle solid.
func (d *ImageDisplay) FillCircle(cx, cy, radius, c int) {
	col := d.colorOf(c)
	for y := -radius; y <= radius; y++ {
		dx := isqrt(radius*radius - y*y)
		for x := -dx; x <= dx; x++ {
			d.img.Set(cx+x, cy+y, col)
		}
	}
}

// DrawBitmap draws a w*h 1-bit-per-pixel bitmap packed MSB-first into bits'
// words, one row per Word-sized chunk boundary is not assumed: bits are read
// consecutively across word boundaries.
func (d *ImageDisplay) DrawBitmap(x, y, w, h int, bits *sam.Stack, c int) {
	col := d.colorOf(c)
	bitIndex := 0
	for row := 0; row < h; row++ {
		for col2 := 0; col2 < w; col2++ {
			wordIdx := bitIndex / sam.UWordBits
			bitOff := sam.UWordBits - 1 - bitIndex%sam.UWordBits
			word, err := bits.Peek(wordIdx)
			if err == nil && (uint(word)>>uint(bitOff))&1 != 0 {
				d.img.Set(x+col2, y+row, col)
			}
			bitIndex++
		}
	}
}

func (d *ImageDisplay) plot8(cx, cy, x, y int, col color.Color) {
	pts := [8][2]int{
		{cx + x, cy + y}, {cx - x, cy + y}, {cx + x, cy - y}, {cx - x, cy - y},
		{cx + y, cy + x}, {cx - y, cy + x}, {cx + y, cy - x}, {cx - y, cy - x},
	}
	for _, p := range pts {
		d.img.Set(p[0], p[1], col)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	for {
		y := (x + n/x) / 2
		if y >= x {
			return x
		}
		x = y
	}
}
