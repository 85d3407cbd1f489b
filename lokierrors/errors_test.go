package lokierrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	wrapped := fmt.Errorf("alu 7 line 3: %w", ErrEUndefinedRegister)
	require.Equal(t, "E1", Code(wrapped))
	require.Equal(t, "R2", Code(ErrRMemorySize))
	require.Equal(t, "", Code(fmt.Errorf("plain")))
}
