package alu

import (
	"fmt"

	"github.com/colorfulnotion/loki/lokierrors"
)

// MetaALU folds several semantics into one handler program. Semantics i
// runs when k equals keys[i]; the last one is also the default.
func MetaALU(semantics []*Expr, keys []uint64) (*Program, error) {
	if len(semantics) == 0 {
		return nil, lokierrors.ErrEEmptyProgram
	}
	if len(keys) != len(semantics) {
		return nil, fmt.Errorf("%d semantics, %d keys: %w", len(semantics), len(keys), lokierrors.ErrEMalformedLine)
	}
	k := Input(InputK, 64)
	e := semantics[len(semantics)-1]
	for i := len(semantics) - 2; i >= 0; i-- {
		e = Apply("ITE", 64, Apply("ICMPEQ", 64, k, Int(64, keys[i])), semantics[i], e)
	}
	p := e.Program()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
