// Package keyhash computes stable content hashes over fixed-layout cache keys.
//
// Keys are hashed field by field in declaration order with a fixed little-endian
// encoding, so two keys with equal fields always produce the same hash
// regardless of padding or platform. Unused key slots must be written too;
// they are the zero value and contribute zero bytes.
package keyhash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Hasher accumulates key fields into an xxhash64 digest (seed 0).
//
// The zero value is not ready for use; call New.
type Hasher struct {
	d   xxhash.Digest
	buf [8]byte
}

// New returns a Hasher with a freshly reset digest.
func New() *Hasher {
	h := &Hasher{}
	h.d.Reset()
	return h
}

// Uint8 writes a single byte.
func (h *Hasher) Uint8(v uint8) {
	h.buf[0] = v
	_, _ = h.d.Write(h.buf[:1]) // xxhash.Digest.Write never returns an error
}

// Uint32 writes v as 4 little-endian bytes.
func (h *Hasher) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.d.Write(h.buf[:4])
}

// Uint64 writes v as 8 little-endian bytes.
func (h *Hasher) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
}

// Bool writes 1 for true and 0 for false.
func (h *Hasher) Bool(v bool) {
	if v {
		h.Uint8(1)
		return
	}
	h.Uint8(0)
}

// Sum64 returns the digest of everything written so far.
func (h *Hasher) Sum64() uint64 {
	return h.d.Sum64()
}

// Sum hashes the fields written by fn.
func Sum(fn func(h *Hasher)) uint64 {
	h := New()
	fn(h)
	return h.Sum64()
}
