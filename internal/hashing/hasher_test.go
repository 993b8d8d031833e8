package hashing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasher_Deterministic(t *testing.T) {
	build := func() uint64 {
		return New().Uint32(7).Int(-3).Bool(true).Float32(1.5).String("main").Bytes([]byte{1, 2, 3}).Sum()
	}

	require.Equal(t, build(), build())
}

func TestHasher_KnownValue(t *testing.T) {
	// FNV-1a 64 offset basis, nothing written
	require.Equal(t, uint64(0xcbf29ce484222325), New().Sum())
}

func TestHasher_StringsDoNotAlias(t *testing.T) {
	a := New().String("ab").String("c").Sum()
	b := New().String("a").String("bc").Sum()

	require.NotEqual(t, a, b)
}

func TestHasher_OrderMatters(t *testing.T) {
	a := New().Uint32(1).Uint32(2).Sum()
	b := New().Uint32(2).Uint32(1).Sum()

	require.NotEqual(t, a, b)
}
