package builtins

// Each Poseidon instance consumes 6 cells: 3 input state words and 3
// output state words. Not present in original_source; sized per the same
// convention as the other instance defs.
const (
	poseidonCellsPerInstance      = 6
	poseidonInputCellsPerInstance = 3
)

// NewPoseidonRunner builds the "poseidon" builtin.
func NewPoseidonRunner(included bool, ratio *uint64) *ratioBuiltin {
	return &ratioBuiltin{
		name:                  "poseidon",
		included:              included,
		ratio:                 ratio,
		cellsPerInstance:      poseidonCellsPerInstance,
		inputCellsPerInstance: poseidonInputCellsPerInstance,
	}
}
