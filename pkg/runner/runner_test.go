package runner_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/layouts"
	"github.com/xJonathanLEI/oriac/pkg/program"
	"github.com/xJonathanLEI/oriac/pkg/runner"
	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// retOnlyProgram builds a one-instruction program: `ret`. dst=[fp-2]
// (the saved return fp), op1=[fp-1] (the saved end pointer), res=op1,
// fp_update=DST, pc_update=JUMP. Run from main (offset 0) with no
// builtins, this immediately lands pc on the `end` pointer
// InitializeMainEntrypoint computed, so RunUntilPC(end, ...) takes
// exactly one step.
func retOnlyProgram(t *testing.T) program.Program {
	t.Helper()
	instr := vm.Instruction{
		Off0: -2, Off1: -1, Off2: -1,
		DstRegister: vm.RegisterFP, Op0Register: vm.RegisterFP,
		Op1Src: vm.Op1SrcFP, Res: vm.ResOp1,
		PcUpdate: vm.PcUpdateJump, ApUpdate: vm.ApUpdateRegular,
		FpUpdate: vm.FpUpdateDst, Opcode: vm.OpcodeRet,
	}
	encoded := vm.EncodeInstruction(instr)

	artifact := fmt.Sprintf(`{
		"prime": "0x800000000000011000000000000000000000000000000000000000000000001",
		"data": ["0x%x"],
		"hints": {},
		"builtins": [],
		"main_scope": "__main__",
		"identifiers": {"__main__.main": {"type": "function", "pc": 0}},
		"reference_manager": {"references": []},
		"attributes": [],
		"debug_info": null
	}`, encoded)

	p, err := program.Decode([]byte(artifact))
	require.NoError(t, err)
	return p
}

func TestRunnerExecutesRetOnlyProgramToCompletion(t *testing.T) {
	p := retOnlyProgram(t)
	layout := layouts.Plain()

	r, err := runner.NewRunner(p, layout, false, false)
	require.NoError(t, err)

	end, err := r.Initialize()
	require.NoError(t, err)

	require.NoError(t, r.RunUntilPC(end, nil, nil))
	assert.Equal(t, end, r.VM.RunContext.Pc)
	assert.Equal(t, uint64(1), r.VM.CurrentStep)

	require.NoError(t, r.EndRun(nil))
	require.NoError(t, r.ReadReturnValues())
}

func TestRunnerRejectsUnknownLayoutBuiltin(t *testing.T) {
	p := retOnlyProgram(t)
	p.Builtins = []string{"pedersen"}
	layout := layouts.Plain()

	_, err := runner.NewRunner(p, layout, false, false)
	assert.Error(t, err)
}

func TestRunnerToleratesUnknownLayoutBuiltinWhenAllowed(t *testing.T) {
	p := retOnlyProgram(t)
	p.Builtins = []string{"pedersen"}
	layout := layouts.Plain()

	r, err := runner.NewRunner(p, layout, false, true)
	require.NoError(t, err)
	assert.Empty(t, r.Builtins)

	_, err = r.Initialize()
	require.NoError(t, err)

	// Plain has no builtin segments, so the execution segment is segment 1
	// (after the program segment); pedersen's missing-but-allowed
	// placeholder is the first word pushed onto it.
	placeholder, err := r.VM.Memory.Get(memory.NewRelocatable(1, 0))
	require.NoError(t, err)
	assert.True(t, placeholder.IsZero())
}

// TestReadReturnValuesRejectsNonZeroMissingBuiltinPlaceholder exercises the
// readback half of the missing-but-allowed builtin contract: if the cell
// where InitializeMainEntrypoint pushed pedersen's Int(0) placeholder has
// since been overwritten (here, simulated by a program whose single ret
// instruction leaves ap pointing one past a non-zero cell), ReadReturnValues
// must reject it instead of silently accepting a corrupted stop pointer.
func TestReadReturnValuesRejectsNonZeroMissingBuiltinPlaceholder(t *testing.T) {
	p := retOnlyProgram(t)
	p.Builtins = []string{"pedersen"}
	layout := layouts.Plain()

	r, err := runner.NewRunner(p, layout, false, true)
	require.NoError(t, err)

	end, err := r.Initialize()
	require.NoError(t, err)
	require.NoError(t, r.RunUntilPC(end, nil, nil))
	require.NoError(t, r.EndRun(nil))

	err = r.ReadReturnValues()
	var nonZero *runner.ErrNonZeroMissingBuiltinStopPointer
	assert.ErrorAs(t, err, &nonZero)
}

func TestRunnerRejectsOutOfOrderBuiltins(t *testing.T) {
	p := retOnlyProgram(t)
	p.Builtins = []string{"range_check", "pedersen"} // wrong order vs. canonical
	layout, err := layouts.Named("small")
	require.NoError(t, err)

	_, err = runner.NewRunner(p, layout, false, false)
	assert.Error(t, err)
}

func TestRunUntilPCRespectsStepBudget(t *testing.T) {
	p := retOnlyProgram(t)
	layout := layouts.Plain()

	r, err := runner.NewRunner(p, layout, false, false)
	require.NoError(t, err)

	end, err := r.Initialize()
	require.NoError(t, err)

	budget := runner.WithMaxSteps(0)
	err = r.RunUntilPC(end, nil, &budget)
	assert.ErrorIs(t, err, runner.ErrEndOfProgramNotReached)
	assert.NotEqual(t, end, r.VM.RunContext.Pc)
	assert.Equal(t, uint64(0), r.VM.CurrentStep)
}

func TestEndRunTwiceFails(t *testing.T) {
	p := retOnlyProgram(t)
	layout := layouts.Plain()

	r, err := runner.NewRunner(p, layout, false, false)
	require.NoError(t, err)

	end, err := r.Initialize()
	require.NoError(t, err)
	require.NoError(t, r.RunUntilPC(end, nil, nil))
	require.NoError(t, r.EndRun(nil))

	err = r.EndRun(nil)
	assert.ErrorIs(t, err, runner.ErrRunnerCalledTwice)
}
