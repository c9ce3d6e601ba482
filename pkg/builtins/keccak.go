package builtins

// Each Keccak instance consumes 16 cells: 8 input state words and 8 output
// state words. Not present in original_source; sized per the same
// convention as the other instance defs.
const (
	keccakCellsPerInstance      = 16
	keccakInputCellsPerInstance = 8
)

// NewKeccakRunner builds the "keccak" builtin.
func NewKeccakRunner(included bool, ratio *uint64) *ratioBuiltin {
	return &ratioBuiltin{
		name:                  "keccak",
		included:              included,
		ratio:                 ratio,
		cellsPerInstance:      keccakCellsPerInstance,
		inputCellsPerInstance: keccakInputCellsPerInstance,
	}
}
