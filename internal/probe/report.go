package probe

import (
	"io"
	"strconv"
)

// Sum adds the operands with int64 two's-complement wraparound.
func Sum(ops Operands) int64 {
	return ops.A + ops.B
}

// FormatSum renders sum exactly as the fixture prints it.
func FormatSum(sum int64) string {
	return strconv.FormatInt(sum, 10) + "\n"
}

// Report writes the decimal sum followed by a newline.
func Report(w io.Writer, sum int64) error {
	_, err := io.WriteString(w, FormatSum(sum))
	return err
}
