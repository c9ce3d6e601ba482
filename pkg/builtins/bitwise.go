package builtins

// Each bitwise instance consumes 5 cells: two inputs (x, y) and three
// outputs (x&y, x^y, x|y). Not present in original_source (oriac predates
// the Starknet bitwise builtin); sized per the same cells-per-instance/
// input-cells convention as the hash and signature instance defs.
const (
	bitwiseCellsPerInstance      = 5
	bitwiseInputCellsPerInstance = 2
)

// NewBitwiseRunner builds the "bitwise" builtin.
func NewBitwiseRunner(included bool, ratio *uint64) *ratioBuiltin {
	return &ratioBuiltin{
		name:                  "bitwise",
		included:              included,
		ratio:                 ratio,
		cellsPerInstance:      bitwiseCellsPerInstance,
		inputCellsPerInstance: bitwiseInputCellsPerInstance,
	}
}
