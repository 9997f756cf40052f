package rasterizer

import (
	"testing"

	"github.com/daniel5gh/alphastream-go/internal/polystream"
)

func squarePoints() []polystream.Point {
	return []polystream.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}, {X: 0, Y: 0}}
}

func TestStrip_Square(t *testing.T) {
	got := Strip(squarePoints())
	want := []float32{0, 0, 10, 0, 10, 10, 0, 0, 10, 10, 0, 10}
	if len(got) != len(want) {
		t.Fatalf("expected %d floats, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: expected %v got %v", i, want[i], got[i])
		}
	}
}

func TestStrip_FewerThanThreeVertices(t *testing.T) {
	if got := Strip([]polystream.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}); got != nil {
		t.Fatalf("expected nil strip for a degenerate path, got %v", got)
	}
}

func TestRenderMask_SquareFillsInterior(t *testing.T) {
	mask := RenderMask(squarePoints(), 12, 12)
	if mask[5*12+5] == 0 {
		t.Fatalf("expected interior pixel (5,5) to be filled")
	}
	if mask[0] == 0 {
		t.Fatalf("expected corner pixel (0,0) on the outline to be set")
	}
	if mask[11*12+11] != 0 {
		t.Fatalf("expected pixel (11,11) outside the square to be unset")
	}
}

func TestRenderMask_FewerThanThreePointsIsEmpty(t *testing.T) {
	points := []polystream.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}
	mask := RenderMask(points, 12, 12)
	for i, v := range mask {
		if v != 0 {
			t.Fatalf("expected an empty mask for a 2-point channel, pixel %d was %d", i, v)
		}
	}
}

func TestResize_DownAndUp(t *testing.T) {
	src := []byte{10, 20, 30, 40} // 2x2
	down := Resize(src, 2, 2, 1, 1)
	if len(down) != 1 || down[0] != src[0] {
		t.Fatalf("expected nearest-neighbor downsample to sample (0,0), got %v", down)
	}
	up := Resize(src, 1, 1, 2, 2)
	if len(up) != 4 {
		t.Fatalf("expected 4 output pixels, got %d", len(up))
	}
	for _, v := range up {
		if v != src[0] {
			t.Fatalf("expected every upsampled pixel to equal the sole source pixel, got %v", up)
		}
	}
}

func TestDecodeFrame_BitmapMode(t *testing.T) {
	payload := encodeSingleChannel(squareChannelBytes())
	frame, err := DecodeFrame(payload, 12, 12, Bitmap)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.Bitmap == nil || frame.TriangleStrip != nil {
		t.Fatalf("expected only a bitmap in Bitmap mode, got %+v", frame)
	}
	if frame.Bitmap[5*12+5] == 0 {
		t.Fatalf("expected filled interior pixel")
	}
}

func squareChannelBytes() []byte {
	b := []byte{0, 0, 0, 0}
	deltas := []int8{10, 0, 0, 10, -10, 0, 0, -10}
	for _, d := range deltas {
		b = append(b, byte(d))
	}
	return b
}

func encodeSingleChannel(ch []byte) []byte {
	out := make([]byte, 0, 8+len(ch))
	put32 := func(v uint32) {
		out = append(out, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	}
	put32(1)
	put32(uint32(len(ch)))
	out = append(out, ch...)
	return out
}
