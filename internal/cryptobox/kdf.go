// Package cryptobox implements the container's key derivation and stream
// cipher: scrypt-derived keys feeding a legacy (64-bit nonce) ChaCha20
// cipher, one key per frame (or one for the header+sizes region).
package cryptobox

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// passphrase is the fixed 32-byte secret baked into every container;
// scene/version/base-url salt the derivation per-title.
var passphrase = [32]byte{
	0x90, 0x37, 0x9B, 0x41, 0xBB, 0xFD, 0x51, 0x9D,
	0x7F, 0xA6, 0x8E, 0xEB, 0xAC, 0x34, 0xC9, 0x7A,
	0x12, 0xAF, 0x6E, 0x3B, 0xCD, 0x23, 0x18, 0x8A,
	0x5A, 0x53, 0x64, 0x8F, 0x72, 0xB4, 0x72, 0x71,
}

const (
	scryptN      = 1 << 14
	scryptR      = 8
	scryptP      = 1
	derivedKeyLn = 32
)

// HeaderKeyID is the sentinel key_id used to encrypt the header and sizes
// table of the encrypted container variant as one contiguous region.
const HeaderKeyID uint32 = 0xFFFFFFFF

// DeriveKey derives the per-container key from scene_id, version, and
// base_url: salt = scene_id LE || version || base_url,
// key = scrypt(passphrase, salt, N=2^14, r=8, p=1, dkLen=32).
func DeriveKey(sceneID uint32, version, baseURL string) ([derivedKeyLn]byte, error) {
	var out [derivedKeyLn]byte
	salt := make([]byte, 0, 4+len(version)+len(baseURL))
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], sceneID)
	salt = append(salt, idBuf[:]...)
	salt = append(salt, version...)
	salt = append(salt, baseURL...)

	key, err := scrypt.Key(passphrase[:], salt, scryptN, scryptR, scryptP, derivedKeyLn)
	if err != nil {
		return out, fmt.Errorf("cryptobox: scrypt key derivation: %w", err)
	}
	copy(out[:], key)
	return out, nil
}
