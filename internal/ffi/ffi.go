// Package ffi mirrors the flat, handle-based foreign-function surface
// for host applications (create, get_total_frames, get_frame_size,
// request_frame, get_frame, get_triangle_strip_vertices, destroy; Create
// opens the decoder in one step, with no separate init call), shaped as
// Go types and an in-process registry rather than an
// actual cgo export — the real boundary is explicitly a collaborator,
// out of core scope.
package ffi

import (
	"fmt"
	"sync"

	"github.com/daniel5gh/alphastream-go/internal/decoder"
	"github.com/daniel5gh/alphastream-go/internal/rasterizer"
)

// Handle is an opaque reference to an open Decoder, the Go analogue of
// the foreign boundary's integer handle.
type Handle uint64

var (
	registryMu sync.Mutex
	registry   = make(map[Handle]*entry)
	nextHandle Handle = 1
)

type entry struct {
	dec       *decoder.Decoder
	lastMask  []byte    // owned by the handle until the next get_frame call
	lastVerts []float32 // owned by the handle until the next get_triangle_strip_vertices call
}

// Create opens a plaintext container and returns a new handle.
func Create(uri string, width, height int, mode rasterizer.Mode) (Handle, error) {
	dec, err := decoder.OpenPlaintext(uri, width, height, mode)
	if err != nil {
		return 0, err
	}
	return register(dec), nil
}

// CreateEncrypted opens an encrypted container and returns a new handle.
func CreateEncrypted(uri string, sceneID uint32, version, baseURL string, width, height int, mode rasterizer.Mode) (Handle, error) {
	dec, err := decoder.OpenEncrypted(uri, sceneID, version, baseURL, width, height, mode)
	if err != nil {
		return 0, err
	}
	return register(dec), nil
}

func register(dec *decoder.Decoder) Handle {
	registryMu.Lock()
	defer registryMu.Unlock()
	h := nextHandle
	nextHandle++
	registry[h] = &entry{dec: dec}
	return h
}

func lookup(h Handle) (*entry, error) {
	registryMu.Lock()
	defer registryMu.Unlock()
	e, ok := registry[h]
	if !ok {
		return nil, fmt.Errorf("ffi: unknown handle %d", h)
	}
	return e, nil
}

// GetTotalFrames returns the container's frame count for h.
func GetTotalFrames(h Handle) (int, error) {
	e, err := lookup(h)
	if err != nil {
		return 0, err
	}
	return e.dec.Metadata().FrameCount, nil
}

// GetFrameSize returns width*height, the byte length of a mask buffer.
func GetFrameSize(h Handle, width, height int) int { return width * height }

// RequestFrame schedules frame i for decode, updating the play head.
func RequestFrame(h Handle, i int64) error {
	e, err := lookup(h)
	if err != nil {
		return err
	}
	return e.dec.RequestFrame(i)
}

// GetFrame returns a pointer-stable mask buffer for frame i, valid until
// the next GetFrame call on the same handle — mirroring the foreign
// boundary's "owned buffer, valid until next call" lifetime contract.
func GetFrame(h Handle, i int64, width, height int) ([]byte, error) {
	registryMu.Lock()
	e, ok := registry[h]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ffi: unknown handle %d", h)
	}
	mask, ready := e.dec.GetFrame(i, width, height)
	if !ready {
		return nil, nil
	}
	registryMu.Lock()
	e.lastMask = mask
	registryMu.Unlock()
	return mask, nil
}

// GetTriangleStripVertices returns a pointer-stable vertex buffer for
// frame i, valid until the next call on the same handle.
func GetTriangleStripVertices(h Handle, i int64) ([]float32, error) {
	registryMu.Lock()
	e, ok := registry[h]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ffi: unknown handle %d", h)
	}
	verts, ready := e.dec.GetTriangleStripVertices(i)
	if !ready {
		return nil, nil
	}
	registryMu.Lock()
	e.lastVerts = verts
	registryMu.Unlock()
	return verts, nil
}

// Destroy closes the decoder behind h and releases the handle.
func Destroy(h Handle) error {
	registryMu.Lock()
	e, ok := registry[h]
	delete(registry, h)
	registryMu.Unlock()
	if !ok {
		return fmt.Errorf("ffi: unknown handle %d", h)
	}
	return e.dec.Close()
}
