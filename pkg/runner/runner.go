// Package runner implements the Cairo runner: the orchestration layer
// that sits above the bare VM and turns a compiled program plus a layout
// into a running machine — allocating segments, loading bytecode and the
// initial stack, driving steps to completion, and finalizing segments
// and public memory for a proof.
package runner

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/internal/safemath"
	"github.com/xJonathanLEI/oriac/pkg/builtins"
	"github.com/xJonathanLEI/oriac/pkg/felt"
	"github.com/xJonathanLEI/oriac/pkg/layouts"
	"github.com/xJonathanLEI/oriac/pkg/program"
	"github.com/xJonathanLEI/oriac/pkg/vm"
	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// CairoRunner drives one execution of a compiled program against a
// chosen layout, from segment initialization through to finalized,
// provable segments.
//
// Grounded on other_examples/aa0f99f3_coburn24-cairo-vm.go__pkg-runners-cairo_runner.go.go's
// CairoRunner, the full upstream counterpart of the teacher's own
// (Cairo-Zero-only) pkg/runners/zero/zero.go.
type CairoRunner struct {
	Program  program.Program
	Layout   layouts.CairoLayout
	Builtins []builtins.Runner
	VM       *vm.VirtualMachine

	ProofMode bool

	programBase   memory.Relocatable
	executionBase memory.Relocatable
	initialPc     memory.Relocatable
	initialAp     memory.Relocatable
	initialFp     memory.Relocatable
	finalPc       *memory.Relocatable
	mainOffset    int64

	// builtinsByName indexes Builtins for the program-declared-order stack
	// building/reading InitializeMainEntrypoint and ReadReturnValues do; a
	// name absent here but present in missingButAllowedBuiltins gets an
	// Int(0) placeholder instead of a real segment base.
	builtinsByName            map[string]builtins.Runner
	missingButAllowedBuiltins []string

	runEnded              bool
	segmentsFinalized     bool
	executionPublicMemory []int64
}

// NewRunner validates p's builtin declaration against the canonical
// builtin order and against layout, then builds a CairoRunner ready for
// InitializeSegments. allowMissingBuiltins, when set, tolerates a program
// builtin the layout has no entry for instead of failing the run — mirrors
// original_source/src/cairo/lang/vm/cairo_runner.rs's allow_missing_builtins.
func NewRunner(p program.Program, layout layouts.CairoLayout, proofMode bool, allowMissingBuiltins bool) (*CairoRunner, error) {
	if !builtins.IsSubsequence(p.Builtins) {
		return nil, errors.Errorf("program builtins %v are not a subsequence of the canonical order %v", p.Builtins, builtins.CanonicalOrder)
	}

	selected, missingButAllowed, err := layout.SelectBuiltins(p.Builtins, proofMode, allowMissingBuiltins)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]builtins.Runner, len(selected))
	for _, b := range selected {
		byName[b.Name()] = b
	}

	raw := memory.NewMemory()
	validated := memory.NewValidatedMemory(raw)
	segments := memory.NewSegmentManager(validated)

	return &CairoRunner{
		Program:                   p,
		Layout:                    layout,
		Builtins:                  selected,
		builtinsByName:            byName,
		missingButAllowedBuiltins: missingButAllowed,
		VM:                        vm.NewVirtualMachine(vm.RunContext{}, validated, segments),
		ProofMode:                 proofMode,
		mainOffset:                p.MainOffset(),
	}, nil
}

// Initialize runs the full initialize_segments -> initialize_main_entrypoint
// -> initialize_vm sequence and returns the end pc the run should stop at.
func (r *CairoRunner) Initialize() (memory.Relocatable, error) {
	r.InitializeSegments()
	end, err := r.InitializeMainEntrypoint()
	if err != nil {
		return memory.Relocatable{}, err
	}
	if err := r.InitializeVM(); err != nil {
		return memory.Relocatable{}, err
	}
	return end, nil
}

// InitializeSegments allocates the program segment, the execution
// segment, and every included builtin's segment(s), in that order.
func (r *CairoRunner) InitializeSegments() {
	r.programBase = r.VM.Segments.Add()
	r.executionBase = r.VM.Segments.Add()
	for _, b := range r.Builtins {
		b.InitializeSegments(r.VM.Segments)
	}
}

// initializeState loads the program's bytecode at programBase and stack at
// executionBase, sets the initial pc to programBase+entrypoint, and marks
// the program segment's cells
// accessed (they're read-only code, never explicitly "used" by a step).
func (r *CairoRunner) initializeState(entrypoint int64, stack []memory.MaybeRelocatable) error {
	r.initialPc = r.programBase.AddOffset(entrypoint)

	if _, err := r.VM.Segments.LoadFelts(r.programBase, r.Program.Bytecode()); err != nil {
		return errors.Wrap(err, "loading program bytecode")
	}
	if _, err := r.VM.Segments.LoadData(r.executionBase, stack); err != nil {
		return errors.Wrap(err, "loading initial stack")
	}

	for i := int64(0); i < int64(len(r.Program.Data)); i++ {
		r.VM.AccessedAddresses[r.programBase.AddOffset(i)] = true
	}
	return nil
}

// InitializeFunctionEntrypoint sets up a run starting at an arbitrary
// entrypoint offset (rather than __main__.main), with an explicit return
// address. Returns the end pc the VM should run to.
func (r *CairoRunner) InitializeFunctionEntrypoint(entrypoint int64, stack []memory.MaybeRelocatable, returnFp memory.Relocatable) (memory.Relocatable, error) {
	end := r.VM.Segments.Add()
	stack = append(stack, memory.NewFromRelocatable(returnFp), memory.NewFromRelocatable(end))

	r.initialFp = r.executionBase.AddOffset(int64(len(stack)))
	r.initialAp = r.initialFp
	r.finalPc = &end

	if err := r.initializeState(entrypoint, stack); err != nil {
		return memory.Relocatable{}, err
	}
	return end, nil
}

// InitializeMainEntrypoint builds the initial stack by concatenating each
// program-declared builtin's InitialStack, in program-declared order; a
// builtin tolerated as missing-but-allowed contributes an Int(0)
// placeholder instead. Starts the run from the program's declared main
// offset (or, in proof mode, from pc 0 with a synthetic return frame,
// since a provable trace must begin at the very first instruction).
func (r *CairoRunner) InitializeMainEntrypoint() (memory.Relocatable, error) {
	stack := make([]memory.MaybeRelocatable, 0, len(r.Program.Builtins)+2)
	for _, name := range r.Program.Builtins {
		if b, ok := r.builtinsByName[name]; ok {
			stack = append(stack, b.InitialStack()...)
		} else {
			stack = append(stack, memory.NewFromFelt(felt.Zero()))
		}
	}

	if r.ProofMode {
		basePlusTwo := r.executionBase.AddOffset(2)
		stackPrefix := make([]memory.MaybeRelocatable, 0, len(stack)+2)
		stackPrefix = append(stackPrefix, memory.NewFromRelocatable(basePlusTwo))
		stackPrefix = append(stackPrefix, memory.NewFromFelt(felt.Zero()))
		stackPrefix = append(stackPrefix, stack...)

		r.executionPublicMemory = make([]int64, len(stackPrefix))
		for i := range stackPrefix {
			r.executionPublicMemory[i] = int64(i)
		}

		if err := r.initializeState(0, stackPrefix); err != nil {
			return memory.Relocatable{}, err
		}

		r.initialFp = basePlusTwo
		r.initialAp = r.initialFp
		return r.programBase.AddOffset(int64(len(r.Program.Data))), nil
	}

	returnFp := r.VM.Segments.Add()
	return r.InitializeFunctionEntrypoint(r.mainOffset, stack, returnFp)
}

// InitializeVM sets the VM's registers to the computed initial state,
// compiles every program hint into the VM's Hints map, attaches every
// builtin's validation rule, and validates the memory written so far.
func (r *CairoRunner) InitializeVM() error {
	r.VM.RunContext.Pc = r.initialPc
	r.VM.RunContext.Ap = r.initialAp
	r.VM.RunContext.Fp = r.initialFp

	r.compileHints()

	for _, b := range r.Builtins {
		b.AddValidationRule(r.VM.Memory)
		b.AddAutoDeductionRule(r.VM)
	}
	for _, b := range r.Builtins {
		if err := r.VM.Memory.ValidateExistingMemory(b.Base().SegmentIndex); err != nil {
			return err
		}
	}
	return nil
}

func (r *CairoRunner) compileHints() {
	for pcOffset, hints := range r.Program.Hints {
		offset, err := parsePCOffset(pcOffset)
		if err != nil {
			continue
		}
		addr := r.programBase.AddOffset(offset)
		compiled := make([]vm.CompiledHint, len(hints))
		for i, h := range hints {
			compiled[i] = vm.CompiledHint{
				Code:               h.Code,
				Scopes:             h.AccessibleScopes,
				FlowTrackingDataAp: int64(h.FlowTrackingData.ApTracking.Offset),
			}
		}
		r.VM.Hints[addr] = compiled
	}
}

// RunUntilPC steps the VM until pc equals end, failing with
// ErrEndOfProgramNotReached if resources run out first.
func (r *CairoRunner) RunUntilPC(end memory.Relocatable, hintRunner vm.HintRunner, resources *RunResources) error {
	if resources == nil {
		unbounded := Unbounded()
		resources = &unbounded
	}
	for r.VM.RunContext.Pc != end {
		if !resources.consumeStep() {
			return ErrEndOfProgramNotReached
		}
		if err := r.VM.Step(hintRunner); err != nil {
			return err
		}
	}
	return nil
}

// RunForSteps executes exactly n further steps, failing with
// ErrEndOfProgram if the run's final pc is reached first.
func (r *CairoRunner) RunForSteps(n uint64, hintRunner vm.HintRunner) error {
	for ; n > 0; n-- {
		if r.finalPc != nil && *r.finalPc == r.VM.RunContext.Pc {
			return errors.Wrapf(ErrEndOfProgram, "%d steps remaining", n)
		}
		if err := r.VM.Step(hintRunner); err != nil {
			return err
		}
	}
	return nil
}

// runUntilNextPowerOfTwo pads the trace forward until CurrentStep is a
// power of two, as proof-mode trace padding requires.
func (r *CairoRunner) runUntilNextPowerOfTwo(hintRunner vm.HintRunner) error {
	target := safemath.NextPowerOfTwo(r.VM.CurrentStep)
	if target <= r.VM.CurrentStep {
		return nil
	}
	return r.RunForSteps(target-r.VM.CurrentStep, hintRunner)
}

// EndRun finalizes the VM's run: relocates every accessed address and the
// memory itself out of temp segments, verifies auto-deductions and scope
// balance, freezes memory against further writes, computes effective
// segment sizes, and — in proof mode — repeatedly pads the trace to the
// next power of two and runs one more step at a time until every
// builtin's cell usage fits its allocation.
func (r *CairoRunner) EndRun(hintRunner vm.HintRunner) error {
	if r.runEnded {
		return ErrRunnerCalledTwice
	}

	raw := r.VM.Memory.Memory()

	relocatedAccessed := make(map[memory.Relocatable]bool, len(r.VM.AccessedAddresses))
	for addr := range r.VM.AccessedAddresses {
		relocated, err := raw.RelocateAddress(addr)
		if err != nil {
			return err
		}
		relocatedAccessed[relocated] = true
	}
	r.VM.AccessedAddresses = relocatedAccessed

	if err := raw.RelocateMemory(); err != nil {
		return err
	}

	if err := r.VM.EndRun(); err != nil {
		return err
	}

	raw.Freeze()

	r.VM.Segments.ComputeEffectiveSizes()

	if r.ProofMode {
		if err := r.runUntilNextPowerOfTwo(hintRunner); err != nil {
			return err
		}
		for {
			err := r.CheckUsedCells()
			var insufficient *builtins.ErrInsufficientAllocation
			if err == nil {
				break
			}
			if !errors.As(err, &insufficient) {
				return err
			}
			if err := r.RunForSteps(1, hintRunner); err != nil {
				return err
			}
			if err := r.runUntilNextPowerOfTwo(hintRunner); err != nil {
				return err
			}
		}
	}

	r.runEnded = true
	return nil
}

// ReadReturnValues pops each program-declared builtin's final stack
// pointer (in reverse declaration order, matching how they were pushed) —
// a missing-but-allowed builtin instead pops its Int(0) placeholder and
// verifies it reads back as zero — and, in proof mode, extends the
// execution segment's public memory to cover the return-value cells.
func (r *CairoRunner) ReadReturnValues() error {
	if !r.runEnded {
		return ErrReadReturnBeforeRunEnded
	}
	if r.segmentsFinalized {
		return ErrSegmentsAlreadyFinalized
	}

	pointer := r.VM.RunContext.Ap
	for i := len(r.Program.Builtins) - 1; i >= 0; i-- {
		name := r.Program.Builtins[i]
		if b, ok := r.builtinsByName[name]; ok {
			next, err := b.FinalStack(r.VM, pointer)
			if err != nil {
				return err
			}
			pointer = next
			continue
		}

		prev := pointer.AddOffset(-1)
		cell, err := r.VM.Memory.Get(prev)
		if err != nil {
			return err
		}
		if !cell.IsZero() {
			return &ErrNonZeroMissingBuiltinStopPointer{BuiltinName: name}
		}
		pointer = prev
	}

	if r.ProofMode {
		begin := pointer.Offset - r.executionBase.Offset
		end := r.VM.RunContext.Ap.Offset - r.executionBase.Offset
		for i := begin; i < end; i++ {
			r.executionPublicMemory = append(r.executionPublicMemory, i)
		}
	}
	return nil
}

// FinalizeSegments fixes the program and execution segments' sizes (and
// every builtin segment's, via GetUsedCellsAndAllocatedSize). It returns
// ErrMissingExecutionPublicMemory unless the execution public memory was
// set up at initialization; it records no public-memory offsets itself.
func (r *CairoRunner) FinalizeSegments() error {
	if r.segmentsFinalized {
		return nil
	}
	if !r.runEnded {
		return ErrFinalizeBeforeRunEnded
	}

	r.VM.Segments.Finalize(r.programBase.SegmentIndex, int64(len(r.Program.Data)))

	if r.executionPublicMemory == nil {
		return ErrMissingExecutionPublicMemory
	}
	r.VM.Segments.Finalize(r.executionBase.SegmentIndex, 0)

	for _, b := range r.Builtins {
		_, allocated, err := b.GetUsedCellsAndAllocatedSize(r.VM.Segments, r.VM.CurrentStep)
		if err != nil {
			return err
		}
		r.VM.Segments.Finalize(b.Base().SegmentIndex, allocated)
	}

	r.segmentsFinalized = true
	return nil
}

// CheckUsedCells verifies that every builtin's used-cell count fits its
// ratio-derived allocation and that the run's memory usage passes
// CheckMemoryUsage. Range-check units and the diluted pool are not checked.
func (r *CairoRunner) CheckUsedCells() error {
	for _, b := range r.Builtins {
		if _, _, err := b.GetUsedCellsAndAllocatedSize(r.VM.Segments, r.VM.CurrentStep); err != nil {
			return err
		}
	}
	return r.CheckMemoryUsage()
}

// CheckMemoryUsage verifies the run hasn't produced more unaccounted
// memory holes than the layout's per-step memory budget allows.
func (r *CairoRunner) CheckMemoryUsage() error {
	totalUnits := r.Layout.MemoryUnitsPerStep * r.VM.CurrentStep
	publicUnits := totalUnits / r.Layout.PublicMemoryFraction
	instructionUnits := 4 * r.VM.CurrentStep

	var builtinUnits int64
	for _, b := range r.Builtins {
		used, _, err := b.GetUsedCellsAndAllocatedSize(r.VM.Segments, r.VM.CurrentStep)
		if err != nil {
			return err
		}
		builtinUnits += used
	}

	unused := int64(totalUnits) - (int64(publicUnits) + int64(instructionUnits) + builtinUnits)
	holes := r.GetMemoryHoles()
	if unused < holes {
		return errors.Errorf("insufficient allocated memory units: needed %d holes, only %d unused units", holes, unused)
	}
	return nil
}

// GetMemoryHoles counts memory cells, across every non-builtin segment,
// that lie within the segment's used range but were never accessed by the
// VM during the run.
func (r *CairoRunner) GetMemoryHoles() int64 {
	skip := make(map[int64]bool, len(r.Builtins))
	for _, b := range r.Builtins {
		skip[b.Base().SegmentIndex] = true
	}
	return r.VM.Segments.GetMemoryHoles(r.VM.AccessedAddresses, skip)
}

// parsePCOffset parses one of the compiled program's hint-map keys: a
// decimal pc offset encoded as a JSON object key (JSON requires string
// keys), e.g. "145".
func parsePCOffset(key string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(key, "%d", &n)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing hint pc offset %q", key)
	}
	return n, nil
}

