package alu

import "golang.org/x/exp/rand"

const (
	decoyShapes   = 14
	decoyMaxDepth = 3
)

// Decoy returns a random 64-bit semantics over x, y, c and k, nested one to
// three shapes deep. Shapes that divide use the low half of k, which is
// never zero for generated keys.
func Decoy(r *rand.Rand) *Expr {
	return decoy(r, 1+r.Intn(decoyMaxDepth))
}

func decoy(r *rand.Rand, depth int) *Expr {
	if depth == 0 {
		return terminal(r)
	}
	sub := func() *Expr { return decoy(r, depth-1) }
	switch r.Intn(decoyShapes) {
	case 0:
		return Apply("ADD", 64, sub(), sub())
	case 1:
		return Apply("SUB", 64, sub(), sub())
	case 2:
		return Apply("MUL", 64, sub(), sub())
	case 3:
		return Apply("SHL", 64, sub(), sub())
	case 4:
		return Apply("AND", 64, sub(), sub())
	case 5:
		return Apply("OR", 64, sub(), sub())
	case 6:
		return Apply("XOR", 64, sub(), sub())
	case 7:
		return Apply("NOT", 64, Apply("AND", 64, sub(), sub()))
	case 8:
		return Apply("NOT", 64, Apply("OR", 64, sub(), sub()))
	case 9:
		return Apply("NOT", 64, sub())
	case 10:
		return Apply("NEG", 64, sub())
	case 11:
		return Apply("ITE", 64, sub(), sub(), sub())
	case 12:
		low := Apply("AND", 64, Input(InputK, 64), Int(64, 0xffffffff))
		return Apply("ICMPEQ", 64, Apply("UREM", 64, Int(64, r.Uint64()), low), Int(64, 0))
	default:
		return Apply("ICMPEQ", 64, Apply("AND", 64, Input(InputK, 64), Int(64, 0xffff)), Int(64, uint64(r.Uint32()&0xffff)))
	}
}

func terminal(r *rand.Rand) *Expr {
	switch r.Intn(6) {
	case 0:
		return Input(InputX, 64)
	case 1:
		return Input(InputY, 64)
	case 2:
		return Input(InputC, 64)
	case 3:
		return Input(InputK, 64)
	case 4:
		return Int(64, 0)
	}
	return Int(64, 1)
}
