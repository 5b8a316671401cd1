// Package probe implements the memory-limit fixture: it reads two operands,
// probes a fixed-size allocation and reports the operands' sum.
package probe

import (
	"fmt"
	"io"

	appErr "memprobe/pkg/errors"
)

// Operands are the two integers read from the fixture's input.
type Operands struct {
	A int64
	B int64
}

// ReadOperands reads two whitespace or newline separated integers from r.
// Operands that cannot be parsed are left at zero and the parse error is returned.
func ReadOperands(r io.Reader) (Operands, error) {
	var ops Operands
	n, err := fmt.Fscan(r, &ops.A, &ops.B)
	if err != nil {
		return ops, appErr.Wrapf(err, appErr.InputMalformed, "read operand %d", n+1).
			WithDetail("parsed", n)
	}
	return ops, nil
}
