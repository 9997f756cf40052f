// Package container implements the streaming container deserializer:
// header + frame-size-table parsing, optional ChaCha20 decryption, and
// per-frame zlib inflation, producing the raw polystream payload for a
// requested frame index.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/daniel5gh/alphastream-go/internal/bytesource"
	"github.com/daniel5gh/alphastream-go/internal/cryptobox"
	"github.com/daniel5gh/alphastream-go/internal/logging"
	"github.com/daniel5gh/alphastream-go/internal/polystream"
)

// ErrInvalidFormat covers structural violations: bad sizes-table length,
// declared/actual length mismatches, and channel-size sum mismatches.
var ErrInvalidFormat = errors.New("container: invalid format")

// ErrDecompression wraps a zlib failure decoding a frame body or the
// sizes table.
var ErrDecompression = errors.New("container: decompression failed")

// ErrDecryptionSetup wraps a key-derivation failure at open time.
var ErrDecryptionSetup = errors.New("container: decryption setup failed")

const (
	headerSize        = 16
	plaintextMagic     = "ASVPPLN1"
	encryptedMagicByte = 0x04
)

var encryptedMagic = [8]byte{0x04, 0, 0, 0, 0, 0, 0, 0}

// Variant distinguishes the two container wire formats, which share a
// frame-table layout and differ only in whether bytes are encrypted.
type Variant int

const (
	Plaintext Variant = iota
	Encrypted
)

// Metadata is the immutable summary produced by Open.
type Metadata struct {
	FrameCount          int
	CompressedSizesSize uint32
}

// Deserializer parses a container's frame table at Open time and serves
// decoded frame payloads thereafter. It is exclusively owned by a single
// caller at a time (the decoder's worker loop): access is serialized
// through mu because the underlying byte source may itself be a stateful
// seekable handle.
type Deserializer struct {
	mu sync.Mutex

	source  bytesource.Source
	variant Variant
	key     [32]byte // zero for Plaintext

	offsets    []int64
	sizes      []uint32
	frameCount int
}

// OpenPlaintext parses the unencrypted container variant.
func OpenPlaintext(source bytesource.Source) (*Deserializer, Metadata, error) {
	d := &Deserializer{source: source, variant: Plaintext}
	meta, err := d.open(nil)
	return d, meta, err
}

// OpenEncrypted parses the encrypted container variant. baseURL overrides
// the key-derivation salt component; if empty, it is derived from uri's
// basename, matching the reference implementation's derive_base_url.
func OpenEncrypted(source bytesource.Source, sceneID uint32, version, uri, baseURLOverride string) (*Deserializer, Metadata, error) {
	baseURL := baseURLOrDefault(baseURLOverride, uri)
	key, err := cryptobox.DeriveKey(sceneID, version, baseURL)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("%w: %v", ErrDecryptionSetup, err)
	}
	d := &Deserializer{source: source, variant: Encrypted, key: key}
	meta, err := d.open(&key)
	return d, meta, err
}

// baseURLOrDefault falls back to the source URI's basename when no
// explicit base_url is supplied.
func baseURLOrDefault(override, uri string) string {
	if override != "" {
		return override
	}
	return filepath.Base(uri)
}

// open reads and decodes the header and sizes table, computing frame
// offsets by cumulative sum starting at headerSize+compressedSizesSize.
func (d *Deserializer) open(key *[32]byte) (Metadata, error) {
	raw, err := d.source.ReadRange(0, headerSize)
	if err != nil {
		return Metadata{}, fmt.Errorf("container: read header: %w", err)
	}

	var hdrCipher *cryptobox.LegacyCipher
	header := raw
	if key != nil {
		hdrCipher = cryptobox.NewLegacyCipher(*key, cryptobox.HeaderKeyID)
		header = make([]byte, headerSize)
		hdrCipher.XORKeyStream(header, raw)
		if !bytes.Equal(header[0:8], encryptedMagic[:]) {
			logging.L().Warn("container_magic_mismatch", "want", fmt.Sprintf("%x", encryptedMagic), "got", fmt.Sprintf("%x", header[0:8]))
		}
	} else {
		if string(header[0:8]) != plaintextMagic {
			logging.L().Warn("container_magic_mismatch", "want", plaintextMagic, "got", fmt.Sprintf("%x", header[0:8]))
		}
	}

	compressedSizesSize := binary.LittleEndian.Uint32(header[12:16])

	rawSizes, err := d.source.ReadRange(headerSize, int64(compressedSizesSize))
	if err != nil {
		return Metadata{}, fmt.Errorf("container: read sizes table: %w", err)
	}
	sizesCompressed := rawSizes
	if hdrCipher != nil {
		// Decrypt header+sizes as one contiguous span so the sizes table
		// continues the header's keystream. LegacyCipher starts a fresh
		// block on every XORKeyStream call, so the region is decrypted in
		// a single call with a new cipher rather than continuing hdrCipher.
		region := append(append(make([]byte, 0, headerSize+len(rawSizes)), raw...), rawSizes...)
		plain := make([]byte, len(region))
		cryptobox.NewLegacyCipher(*key, cryptobox.HeaderKeyID).XORKeyStream(plain, region)
		sizesCompressed = plain[headerSize:]
	}

	sizesBytes, err := inflate(sizesCompressed)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: sizes table: %v", ErrDecompression, err)
	}
	if len(sizesBytes)%8 != 0 {
		return Metadata{}, fmt.Errorf("%w: sizes table length %d not a multiple of 8", ErrInvalidFormat, len(sizesBytes))
	}

	n := len(sizesBytes) / 8
	sizes := make([]uint32, n)
	offsets := make([]int64, n)
	cursor := int64(headerSize) + int64(compressedSizesSize)
	for i := 0; i < n; i++ {
		sz := binary.LittleEndian.Uint64(sizesBytes[8*i : 8*i+8])
		sizes[i] = uint32(sz)
		offsets[i] = cursor
		cursor += int64(sz)
	}

	d.sizes = sizes
	d.offsets = offsets
	d.frameCount = n

	return Metadata{FrameCount: n, CompressedSizesSize: compressedSizesSize}, nil
}

// FrameCount reports the number of frames in the container.
func (d *Deserializer) FrameCount() int { return d.frameCount }

// DecodeFrame returns the decompressed polystream payload for frame i.
// Out-of-range indices are clamped to frame_count-1 (permissive tail
// policy): the deserializer never fails on bounds alone.
func (d *Deserializer) DecodeFrame(i int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameCount == 0 {
		return nil, fmt.Errorf("%w: empty container", ErrInvalidFormat)
	}
	if i < 0 {
		i = 0
	}
	if i >= d.frameCount {
		i = d.frameCount - 1
	}

	raw, err := d.source.ReadRange(d.offsets[i], int64(d.sizes[i]))
	if err != nil {
		return nil, fmt.Errorf("container: read frame %d: %w", i, err)
	}
	if d.variant == Encrypted {
		cipher := cryptobox.NewLegacyCipher(d.key, uint32(i))
		dec := make([]byte, len(raw))
		cipher.XORKeyStream(dec, raw)
		raw = dec
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: frame %d body too short", ErrInvalidFormat, i)
	}
	expectedLen := binary.LittleEndian.Uint32(raw[0:4])
	payload, err := inflate(raw[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v", ErrDecompression, i, err)
	}
	if uint32(len(payload)) != expectedLen {
		return nil, fmt.Errorf("%w: frame %d expected %d bytes, got %d", ErrInvalidFormat, i, expectedLen, len(payload))
	}
	if _, err := polystream.ParseChannels(payload); err != nil {
		return nil, fmt.Errorf("%w: frame %d: %v", ErrInvalidFormat, i, err)
	}
	return payload, nil
}

func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, err
	}
	return out, nil
}
