// Package hashing provides the deterministic 64-bit hasher used to fingerprint pipeline state.
// The output depends only on the values written and their order; it never depends on pointers,
// map iteration order or a per-process seed.
package hashing

import (
	"encoding/binary"
	"hash"
	"hash/fnv"
	"math"
)

// Hasher accumulates values into an FNV-1a 64 hash. The zero value is not usable; call New.
type Hasher struct {
	h   hash.Hash64
	buf [8]byte
}

func New() *Hasher {
	return &Hasher{h: fnv.New64a()}
}

func (h *Hasher) Uint32(v uint32) *Hasher {
	binary.LittleEndian.PutUint32(h.buf[:4], v)
	_, _ = h.h.Write(h.buf[:4])
	return h
}

func (h *Hasher) Uint64(v uint64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.h.Write(h.buf[:])
	return h
}

func (h *Hasher) Int(v int) *Hasher {
	return h.Uint64(uint64(int64(v)))
}

func (h *Hasher) Int32(v int32) *Hasher {
	return h.Uint32(uint32(v))
}

func (h *Hasher) Bool(v bool) *Hasher {
	if v {
		return h.Uint32(1)
	}
	return h.Uint32(0)
}

// Float32 hashes the bit pattern of v, so 0 and -0 hash differently
func (h *Hasher) Float32(v float32) *Hasher {
	return h.Uint32(math.Float32bits(v))
}

// String hashes the length of s followed by its bytes, so adjacent strings cannot alias
func (h *Hasher) String(s string) *Hasher {
	h.Int(len(s))
	_, _ = h.h.Write([]byte(s))
	return h
}

// Bytes hashes the length of b followed by its contents
func (h *Hasher) Bytes(b []byte) *Hasher {
	h.Int(len(b))
	_, _ = h.h.Write(b)
	return h
}

func (h *Hasher) Sum() uint64 {
	return h.h.Sum64()
}

// String64 is a one-shot hash of a string
func String64(s string) uint64 {
	return New().String(s).Sum()
}

// Bytes64 is a one-shot hash of a byte slice
func Bytes64(b []byte) uint64 {
	return New().Bytes(b).Sum()
}
