// Package rasterizer turns decoded polystream channels into an 8-bit
// alpha mask or a fan-triangulated vertex list. It is stateless and has
// no dependency on the container or cache layers.
package rasterizer

import (
	"github.com/daniel5gh/alphastream-go/internal/polystream"
)

// Mode selects which outputs DecodeFrame produces.
type Mode int

const (
	Bitmap Mode = iota
	TriangleStrip
	Both
)

// RenderMask rasterizes a single channel's decoded points onto a
// width*height mask, drawing every segment with a clipped Bresenham
// outline (so one-pixel-wide features survive) and then an even-odd
// scanline fill. Fewer than 3 points produce an empty mask.
func RenderMask(points []polystream.Point, width, height int) []byte {
	mask := make([]byte, width*height)
	if len(points) < 3 {
		return mask
	}
	for i := 0; i < len(points)-1; i++ {
		drawSegment(mask, width, height, points[i], points[i+1])
	}
	scanlineFill(mask, width, height, points)
	return mask
}

func set(mask []byte, width, height, x, y int) {
	if x < 0 || y < 0 || x >= width || y >= height {
		return
	}
	mask[y*width+x] = 255
}

// drawSegment draws p0->p1 with Bresenham's line algorithm, clipped to
// [0,width) x [0,height).
func drawSegment(mask []byte, width, height int, p0, p1 polystream.Point) {
	x0, y0, x1, y1 := p0.X, p0.Y, p1.X, p1.Y
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 >= x1 {
		sx = -1
	}
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy
	x, y := x0, y0
	for {
		set(mask, width, height, x, y)
		if x == x1 && y == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// edge is a polygon edge used by the scanline fill; it excludes
// horizontal edges, which still draw as outline but never contribute an
// intersection.
type edge struct {
	x0, y0, x1, y1 float64
}

// scanlineFill performs even-odd scanline fill across the closed path
// formed by points (points[0]..points[n-1], implicitly closing back to
// points[0] if the caller didn't already duplicate it — callers here
// always pass the full decoded outline including any trailing duplicate
// of the first point, so edges already form a closed ring).
func scanlineFill(mask []byte, width, height int, points []polystream.Point) {
	edges := make([]edge, 0, len(points))
	for i := 0; i < len(points); i++ {
		a := points[i]
		b := points[(i+1)%len(points)]
		if a.Y == b.Y {
			continue // horizontal edges never contribute a fill intersection
		}
		edges = append(edges, edge{float64(a.X), float64(a.Y), float64(b.X), float64(b.Y)})
	}
	if len(edges) == 0 {
		return
	}
	for y := 0; y < height; y++ {
		fy := float64(y)
		var xs []float64
		for _, e := range edges {
			ymin, ymax := e.y0, e.y1
			if ymin > ymax {
				ymin, ymax = ymax, ymin
			}
			// Half-open [min_y, max_y): an edge contributes to exactly one
			// scanline per integer y it crosses, avoiding double-counting
			// at shared endpoints.
			if fy < ymin || fy >= ymax {
				continue
			}
			t := (fy - e.y0) / (e.y1 - e.y0)
			x := e.x0 + t*(e.x1-e.x0)
			xs = append(xs, roundHalfAwayFromZero(x))
		}
		if len(xs) < 2 {
			continue
		}
		insertionSort(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			x0, x1 := int(xs[i]), int(xs[i+1])
			if x0 > x1 {
				x0, x1 = x1, x0
			}
			if x0 < 0 {
				x0 = 0
			}
			if x1 > width-1 {
				x1 = width - 1
			}
			for x := x0; x <= x1; x++ {
				set(mask, width, height, x, y)
			}
		}
	}
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int(v + 0.5))
	}
	return float64(int(v - 0.5))
}

func insertionSort(xs []float64) {
	for i := 1; i < len(xs); i++ {
		v := xs[i]
		j := i - 1
		for j >= 0 && xs[j] > v {
			xs[j+1] = xs[j]
			j--
		}
		xs[j+1] = v
	}
}

// Strip fan-triangulates a single channel's decoded points, dropping a
// trailing vertex that duplicates the first (closed-polygon convention)
// and emitting interleaved (v0, v_i+1, v_i+2) triangles. Fewer than 3
// vertices left after that drop produce an empty strip; vertices are not
// checked for distinctness.
func Strip(points []polystream.Point) []float32 {
	pts := points
	if len(pts) >= 2 && pts[len(pts)-1] == pts[0] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) < 3 {
		return nil
	}
	out := make([]float32, 0, (len(pts)-2)*6)
	for i := 0; i < len(pts)-2; i++ {
		out = append(out,
			float32(pts[0].X), float32(pts[0].Y),
			float32(pts[i+1].X), float32(pts[i+1].Y),
			float32(pts[i+2].X), float32(pts[i+2].Y),
		)
	}
	return out
}

// Resize performs nearest-neighbor resampling: each output pixel samples
// floor(x*inW/outW), floor(y*inH/outH) of the input, clamped to the last
// row/column.
func Resize(src []byte, inW, inH, outW, outH int) []byte {
	out := make([]byte, outW*outH)
	if inW <= 0 || inH <= 0 || outW <= 0 || outH <= 0 {
		return out
	}
	for y := 0; y < outH; y++ {
		sy := y * inH / outH
		if sy >= inH {
			sy = inH - 1
		}
		for x := 0; x < outW; x++ {
			sx := x * inW / outW
			if sx >= inW {
				sx = inW - 1
			}
			out[y*outW+x] = src[sy*inW+sx]
		}
	}
	return out
}

// Frame holds a decoded frame's outputs, selected per Mode.
type Frame struct {
	Bitmap        []byte
	TriangleStrip []float32
}

// DecodeFrame parses a full polystream payload (possibly multiple
// channels, OR'd together on the mask) and
// produces the outputs mode requires.
func DecodeFrame(payload []byte, width, height int, mode Mode) (Frame, error) {
	channels, err := polystream.ParseChannels(payload)
	if err != nil {
		return Frame{}, err
	}
	var out Frame
	if mode == Bitmap || mode == Both {
		out.Bitmap = make([]byte, width*height)
	}
	for _, ch := range channels {
		points := polystream.DecodePoints(ch)
		if mode == Bitmap || mode == Both {
			chMask := RenderMask(points, width, height)
			for i, v := range chMask {
				if v != 0 {
					out.Bitmap[i] = 255
				}
			}
		}
		if mode == TriangleStrip || mode == Both {
			out.TriangleStrip = append(out.TriangleStrip, Strip(points)...)
		}
	}
	return out, nil
}
