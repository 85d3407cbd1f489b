package common

import (
	"encoding/json"
	"fmt"

	ethereumCommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

// Hash is a 32-byte digest, shared with go-ethereum's hash type so hex
// parsing and printing follow the same conventions.
type Hash ethereumCommon.Hash

// Blake2Hash returns the BLAKE2b-256 digest of data.
func Blake2Hash(data []byte) Hash {
	return Hash(blake2b.Sum256(data))
}

// Blake2HashParts digests the concatenation of parts without copying them.
func Blake2HashParts(parts ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		h.Write(p)
	}
	return BytesToHash(h.Sum(nil))
}

func (h Hash) Bytes() []byte {
	return ethereumCommon.Hash(h).Bytes()
}

func (h Hash) Hex() string {
	return ethereumCommon.Hash(h).Hex()
}

func (h Hash) String() string {
	return ethereumCommon.Hash(h).String()
}

// String_short prints the first and last two bytes, e.g. "1a2b..9f0e".
func (h Hash) String_short() string {
	return fmt.Sprintf("%s..%s", h.Hex()[2:6], h.Hex()[62:66])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func BytesToHash(b []byte) Hash {
	return Hash(ethereumCommon.BytesToHash(b))
}

func HexToHash(s string) Hash {
	return Hash(ethereumCommon.HexToHash(s))
}

func FromHex(s string) []byte {
	return ethereumCommon.FromHex(s)
}

func Bytes2Hex(d []byte) string {
	return "0x" + ethereumCommon.Bytes2Hex(d)
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Hex())
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var hexStr string
	if err := json.Unmarshal(data, &hexStr); err != nil {
		return err
	}
	*h = HexToHash(hexStr)
	return nil
}
