package cryptobox

import "encoding/binary"

// LegacyCipher implements the original (non-IETF) ChaCha20 construction:
// a 64-bit block counter and a 64-bit nonce, rather than the RFC 8439
// 32-bit-counter/96-bit-nonce split. golang.org/x/crypto/chacha20 only
// accepts 12- or 24-byte nonces, so this variant is implemented directly
// against the published ChaCha20 core (same quarter-round construction,
// different state layout for words 12-15) — see DESIGN.md for why no
// ecosystem package covers this nonce size.
//
// Nonce layout: bytes [0:4] are always zero, bytes [4:8]
// carry key_id little-endian. Encryption and decryption are the same
// XOR operation.
type LegacyCipher struct {
	key     [8]uint32
	nonceLo uint32
	nonceHi uint32
	counter uint64
}

var sigma = [4]uint32{0x61707865, 0x3320646e, 0x79622d32, 0x6b206574} // "expand 32-byte k"

// NewLegacyCipher builds a cipher for the given derived key and key_id.
func NewLegacyCipher(key [32]byte, keyID uint32) *LegacyCipher {
	c := &LegacyCipher{
		nonceLo: 0,
		nonceHi: keyID,
	}
	for i := 0; i < 8; i++ {
		c.key[i] = binary.LittleEndian.Uint32(key[4*i : 4*i+4])
	}
	return c
}

func rotl32(x uint32, n uint) uint32 { return x<<n | x>>(32-n) }

func quarterRound(a, b, c, d *uint32) {
	*a += *b
	*d ^= *a
	*d = rotl32(*d, 16)
	*c += *d
	*b ^= *c
	*b = rotl32(*b, 12)
	*a += *b
	*d ^= *a
	*d = rotl32(*d, 8)
	*c += *d
	*b ^= *c
	*b = rotl32(*b, 7)
}

func (c *LegacyCipher) block() [64]byte {
	var s [16]uint32
	s[0], s[1], s[2], s[3] = sigma[0], sigma[1], sigma[2], sigma[3]
	copy(s[4:12], c.key[:])
	s[12] = uint32(c.counter)
	s[13] = uint32(c.counter >> 32)
	s[14] = c.nonceLo
	s[15] = c.nonceHi

	w := s
	for i := 0; i < 10; i++ {
		quarterRound(&w[0], &w[4], &w[8], &w[12])
		quarterRound(&w[1], &w[5], &w[9], &w[13])
		quarterRound(&w[2], &w[6], &w[10], &w[14])
		quarterRound(&w[3], &w[7], &w[11], &w[15])
		quarterRound(&w[0], &w[5], &w[10], &w[15])
		quarterRound(&w[1], &w[6], &w[11], &w[12])
		quarterRound(&w[2], &w[7], &w[8], &w[13])
		quarterRound(&w[3], &w[4], &w[9], &w[14])
	}
	for i := range w {
		w[i] += s[i]
	}

	var out [64]byte
	for i := 0; i < 16; i++ {
		binary.LittleEndian.PutUint32(out[4*i:4*i+4], w[i])
	}
	c.counter++
	return out
}

// XORKeyStream encrypts or decrypts src into dst (may overlap at offset 0).
// Always starts from the cipher's current counter (0 on construction).
func (c *LegacyCipher) XORKeyStream(dst, src []byte) {
	for len(src) > 0 {
		ks := c.block()
		n := len(src)
		if n > 64 {
			n = 64
		}
		for i := 0; i < n; i++ {
			dst[i] = src[i] ^ ks[i]
		}
		dst = dst[n:]
		src = src[n:]
	}
}
