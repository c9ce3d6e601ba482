package builtins

// Each Pedersen hash instance consumes 3 cells: two inputs and one output.
// Grounded on original_source/src/cairo/lang/builtins/hash/instance_def.rs's
// CELLS_PER_HASH/INPUT_CELLS_PER_HASH constants.
const (
	pedersenCellsPerInstance      = 3
	pedersenInputCellsPerInstance = 2
)

// NewPedersenRunner builds the "pedersen" builtin. ratio is steps-per-
// instance (nil selects dynamic layout sizing).
func NewPedersenRunner(included bool, ratio *uint64) *ratioBuiltin {
	return &ratioBuiltin{
		name:                  "pedersen",
		included:              included,
		ratio:                 ratio,
		cellsPerInstance:      pedersenCellsPerInstance,
		inputCellsPerInstance: pedersenInputCellsPerInstance,
	}
}
