package builtins

// Each EC_OP instance consumes 7 cells: two input points (4 coordinates),
// a scalar, and an output point (2 coordinates). Not present in
// original_source; sized per the same convention as the other instance
// defs.
const (
	ecOpCellsPerInstance      = 7
	ecOpInputCellsPerInstance = 5
)

// NewEcOpRunner builds the "ec_op" builtin.
func NewEcOpRunner(included bool, ratio *uint64) *ratioBuiltin {
	return &ratioBuiltin{
		name:                  "ec_op",
		included:              included,
		ratio:                 ratio,
		cellsPerInstance:      ecOpCellsPerInstance,
		inputCellsPerInstance: ecOpInputCellsPerInstance,
	}
}
