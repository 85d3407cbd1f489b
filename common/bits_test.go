package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskAndSignExtend(t *testing.T) {
	require.Equal(t, uint64(0xFF), Mask(0x1FF, 8))
	require.Equal(t, uint64(1), Mask(3, 1))
	require.Equal(t, ^uint64(0), Mask(^uint64(0), 64))

	require.Equal(t, ^uint64(0), SignExtend(1, 1))
	require.Equal(t, uint64(0xFFFFFFFFFFFFFF80), SignExtend(0x80, 8))
	require.Equal(t, uint64(0x7F), SignExtend(0x7F, 8))
	require.Equal(t, int64(-1), Signed(0xFFFF, 16))
}

func TestByteSizeAndGCD(t *testing.T) {
	require.Equal(t, uint64(1), ByteSize(1))
	require.Equal(t, uint64(4), ByteSize(32))
	require.Equal(t, uint64(5), ByteSize(33))
	require.Equal(t, uint64(4), GCD(12, 8))
	require.Equal(t, uint64(7), GCD(0, 7))
}
