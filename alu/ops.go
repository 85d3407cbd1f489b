package alu

import "github.com/colorfulnotion/loki/common"

var arity = map[string]int{
	"NOT": 1, "NEG": 1, "ZEXT": 1, "SEXT": 1,
	"ADD": 2, "SUB": 2, "AND": 2, "OR": 2, "XOR": 2,
	"SHL": 2, "LSHR": 2, "ASHR": 2, "MUL": 2,
	"UDIV": 2, "SDIV": 2, "UREM": 2, "SREM": 2,
	"ICMPEQ": 2, "ULT": 2, "SLT": 2, "ULE": 2, "SLE": 2,
	"ITE": 3,
}

// IsCompare reports whether op yields a zero-extended truth value.
func IsCompare(op string) bool {
	switch op {
	case "ICMPEQ", "ULT", "SLT", "ULE", "SLE":
		return true
	}
	return false
}

type unaryFn func(a uint64, from, size uint) uint64
type binaryFn func(a, b uint64, size uint) uint64

var unary = map[string]unaryFn{
	"NOT":  func(a uint64, _, size uint) uint64 { return common.Mask(^a, size) },
	"NEG":  func(a uint64, _, size uint) uint64 { return common.Mask(-a, size) },
	"ZEXT": func(a uint64, _, size uint) uint64 { return common.Mask(a, size) },
	"SEXT": func(a uint64, from, size uint) uint64 { return common.Mask(common.SignExtend(a, from), size) },
}

// Binary operations read both operands at size. Comparisons read them at the
// operand width and return 0 or 1.
var binary = map[string]binaryFn{
	"ADD": func(a, b uint64, n uint) uint64 { return common.Mask(a+b, n) },
	"SUB": func(a, b uint64, n uint) uint64 { return common.Mask(a-b, n) },
	"AND": func(a, b uint64, n uint) uint64 { return common.Mask(a&b, n) },
	"OR":  func(a, b uint64, n uint) uint64 { return common.Mask(a|b, n) },
	"XOR": func(a, b uint64, n uint) uint64 { return common.Mask(a^b, n) },
	"MUL": func(a, b uint64, n uint) uint64 { return common.Mask(a*b, n) },
	"SHL": func(a, b uint64, n uint) uint64 {
		if b >= uint64(n) {
			return 0
		}
		return common.Mask(a<<b, n)
	},
	"LSHR": func(a, b uint64, n uint) uint64 {
		if b >= uint64(n) {
			return 0
		}
		return common.Mask(a, n) >> b
	},
	"ASHR": func(a, b uint64, n uint) uint64 {
		if b >= uint64(n) {
			b = uint64(n) - 1
		}
		return common.Mask(uint64(common.Signed(a, n)>>b), n)
	},
	"UDIV": func(a, b uint64, n uint) uint64 { return common.Mask(a, n) / common.Mask(b, n) },
	"UREM": func(a, b uint64, n uint) uint64 { return common.Mask(a, n) % common.Mask(b, n) },
	"SDIV": func(a, b uint64, n uint) uint64 {
		return common.Mask(uint64(common.Signed(a, n)/common.Signed(b, n)), n)
	},
	"SREM": func(a, b uint64, n uint) uint64 {
		return common.Mask(uint64(common.Signed(a, n)%common.Signed(b, n)), n)
	},
	"ICMPEQ": func(a, b uint64, n uint) uint64 { return b2u(common.Mask(a, n) == common.Mask(b, n)) },
	"ULT":    func(a, b uint64, n uint) uint64 { return b2u(common.Mask(a, n) < common.Mask(b, n)) },
	"ULE":    func(a, b uint64, n uint) uint64 { return b2u(common.Mask(a, n) <= common.Mask(b, n)) },
	"SLT":    func(a, b uint64, n uint) uint64 { return b2u(common.Signed(a, n) < common.Signed(b, n)) },
	"SLE":    func(a, b uint64, n uint) uint64 { return b2u(common.Signed(a, n) <= common.Signed(b, n)) },
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
