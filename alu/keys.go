package alu

import "golang.org/x/exp/rand"

// Keys fixed for the memory handler.
const (
	KeyLoad  uint64 = 0
	KeyStore uint64 = 1
	KeyAlloc uint64 = 2
)

// KeySet hands out operation keys that are unique within one build. Keys
// never collide with the memory keys and always have a non-zero low half.
type KeySet struct {
	r    *rand.Rand
	used map[uint64]bool
}

func NewKeySet(r *rand.Rand) *KeySet {
	return &KeySet{r: r, used: map[uint64]bool{KeyLoad: true, KeyStore: true, KeyAlloc: true}}
}

func (ks *KeySet) Next() uint64 {
	for {
		k := ks.r.Uint64()
		if k&0xffffffff == 0 || ks.used[k] {
			continue
		}
		ks.used[k] = true
		return k
	}
}

// Take returns n fresh keys.
func (ks *KeySet) Take(n int) []uint64 {
	out := make([]uint64, n)
	for i := range out {
		out[i] = ks.Next()
	}
	return out
}
