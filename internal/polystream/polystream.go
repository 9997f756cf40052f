// Package polystream decodes the compact polygon encoding used by frame
// bodies: an initial point plus signed 8-bit deltas, optionally split
// across several channels that are later OR'd onto the same mask.
package polystream

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a polystream envelope or channel payload
// ends before its declared length.
var ErrTruncated = errors.New("polystream: truncated")

// ErrSizeMismatch is returned when the sum of declared channel sizes does
// not equal the length of the channel-payload region that follows.
var ErrSizeMismatch = errors.New("polystream: channel size sum mismatch")

// Channel is one sub-polygon's raw payload: a little-endian (x0, y0) u16
// pair followed by signed 8-bit (dx, dy) delta pairs.
type Channel []byte

// ParseChannels splits a polystream payload into its per-channel byte
// slices, validating the channel-count/size-table envelope (the declared
// channel sizes must sum to the payload length). It does not decode points.
func ParseChannels(data []byte) ([]Channel, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: missing channel count", ErrTruncated)
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	need := 4 + 4*int(count)
	if len(data) < need {
		return nil, fmt.Errorf("%w: missing channel size table", ErrTruncated)
	}
	sizes := make([]uint32, count)
	var sum uint64
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint32(data[4+4*i : 8+4*i])
		sum += uint64(sizes[i])
	}
	payload := data[need:]
	if uint64(len(payload)) != sum {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrSizeMismatch, sum, len(payload))
	}
	channels := make([]Channel, count)
	off := 0
	for i, sz := range sizes {
		channels[i] = Channel(payload[off : off+int(sz)])
		off += int(sz)
	}
	return channels, nil
}

// Point is an integer vertex of a decoded channel outline.
type Point struct {
	X, Y int
}

// DecodePoints walks a single channel's (x0, y0) + delta-pair encoding
// into an ordered sequence of integer points. Payloads shorter than 4
// bytes decode to an empty point list without error, matching the
// rasterizer's permissive handling of truncated/empty channels.
func DecodePoints(data []byte) []Point {
	if len(data) < 4 {
		return nil
	}
	x := int(binary.LittleEndian.Uint16(data[0:2]))
	y := int(binary.LittleEndian.Uint16(data[2:4]))
	rest := data[4:]
	n := len(rest) / 2
	points := make([]Point, 0, n+1)
	points = append(points, Point{X: x, Y: y})
	for i := 0; i < n; i++ {
		dx := int(int8(rest[2*i]))
		dy := int(int8(rest[2*i+1]))
		x += dx
		y += dy
		points = append(points, Point{X: x, Y: y})
	}
	return points
}
