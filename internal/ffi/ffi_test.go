package ffi

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/daniel5gh/alphastream-go/internal/rasterizer"
)

func writeSingleFramePlaintextContainer(t *testing.T) string {
	t.Helper()
	ch := []byte{0, 0, 0, 0}
	for _, d := range []int8{10, 0, 0, 10, -10, 0, 0, -10} {
		ch = append(ch, byte(d))
	}
	payload := make([]byte, 0, 8+len(ch))
	put32 := func(buf *[]byte, v uint32) {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		*buf = append(*buf, b[:]...)
	}
	put32(&payload, 1)
	put32(&payload, uint32(len(ch)))
	payload = append(payload, ch...)

	var cbuf bytes.Buffer
	zw := zlib.NewWriter(&cbuf)
	zw.Write(payload)
	zw.Close()

	var frameBody []byte
	put32(&frameBody, uint32(len(payload)))
	frameBody = append(frameBody, cbuf.Bytes()...)

	sizesBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(sizesBytes, uint64(len(frameBody)))
	var sbuf bytes.Buffer
	zw2 := zlib.NewWriter(&sbuf)
	zw2.Write(sizesBytes)
	zw2.Close()

	header := make([]byte, 16)
	copy(header[0:8], "ASVPPLN1")
	binary.LittleEndian.PutUint32(header[12:16], uint32(sbuf.Len()))

	var out []byte
	out = append(out, header...)
	out = append(out, sbuf.Bytes()...)
	out = append(out, frameBody...)

	path := filepath.Join(t.TempDir(), "scene.bin")
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write container: %v", err)
	}
	return path
}

func TestHandleLifecycle(t *testing.T) {
	path := writeSingleFramePlaintextContainer(t)

	h, err := Create(path, 8, 8, rasterizer.Bitmap)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := GetTotalFrames(h)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 frame, got %d err=%v", n, err)
	}

	if err := RequestFrame(h, 0); err != nil {
		t.Fatalf("request frame: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var mask []byte
	for time.Now().Before(deadline) {
		mask, err = GetFrame(h, 0, 8, 8)
		if err != nil {
			t.Fatalf("get frame: %v", err)
		}
		if mask != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if mask == nil {
		t.Fatalf("timed out waiting for frame to become ready")
	}

	if err := Destroy(h); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := GetTotalFrames(h); err == nil {
		t.Fatalf("expected error using a destroyed handle")
	}
}

func TestUnknownHandle(t *testing.T) {
	if _, err := GetTotalFrames(Handle(999999)); err == nil {
		t.Fatalf("expected error for unknown handle")
	}
}
