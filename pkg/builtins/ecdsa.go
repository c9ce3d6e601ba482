package builtins

// Each ECDSA signature instance consumes 2 cells: a public key and a
// message. Grounded on
// original_source/src/cairo/lang/builtins/signature/instance_def.rs's
// CELLS_PER_SIGNATURE/INPUT_CELLS_PER_SIGNATURE constants.
const (
	ecdsaCellsPerInstance      = 2
	ecdsaInputCellsPerInstance = 2
)

// NewEcdsaRunner builds the "ecdsa" builtin.
func NewEcdsaRunner(included bool, ratio *uint64) *ratioBuiltin {
	return &ratioBuiltin{
		name:                  "ecdsa",
		included:              included,
		ratio:                 ratio,
		cellsPerInstance:      ecdsaCellsPerInstance,
		inputCellsPerInstance: ecdsaInputCellsPerInstance,
	}
}
