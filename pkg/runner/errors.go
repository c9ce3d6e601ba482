package runner

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrRunnerCalledTwice is returned by EndRun when called on a runner
// whose run has already ended.
var ErrRunnerCalledTwice = errors.New("runner's end_run was already called")

// ErrFinalizeBeforeRunEnded is returned by FinalizeSegments if the run
// has not yet ended.
var ErrFinalizeBeforeRunEnded = errors.New("called finalize segments before the run had ended")

// ErrReadReturnBeforeRunEnded is returned by ReadReturnValues if the run
// has not yet ended.
var ErrReadReturnBeforeRunEnded = errors.New("tried to read return values before the run ended")

// ErrMissingExecutionPublicMemory is returned by FinalizeSegments in
// proof mode when InitializeMainEntrypoint was never called to seed the
// execution segment's public memory list.
var ErrMissingExecutionPublicMemory = errors.New("finalize segments called without an execution public memory")

// ErrSegmentsAlreadyFinalized is returned by ReadReturnValues if
// FinalizeSegments already ran.
var ErrSegmentsAlreadyFinalized = errors.New("segments were already finalized")

// ErrEndOfProgram is returned by RunForSteps when the final pc is
// reached before the requested step count is exhausted.
var ErrEndOfProgram = errors.New("end of program reached before step budget was exhausted")

// ErrEndOfProgramNotReached is returned by RunUntilPC when the resource
// budget runs out before pc reaches the target.
var ErrEndOfProgramNotReached = errors.New("step budget exhausted before reaching the target pc")

// ErrNonZeroMissingBuiltinStopPointer is returned by ReadReturnValues when
// a missing-but-allowed builtin's placeholder cell (pushed as Int(0) by
// InitializeMainEntrypoint) isn't read back as zero.
type ErrNonZeroMissingBuiltinStopPointer struct {
	BuiltinName string
}

func (e *ErrNonZeroMissingBuiltinStopPointer) Error() string {
	return fmt.Sprintf("missing builtin %q: expected placeholder stop pointer to be zero", e.BuiltinName)
}
