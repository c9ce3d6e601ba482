package vm

import "github.com/xJonathanLEI/oriac/pkg/vm/memory"

// CompiledHint is the VM's view of one hint attached to a pc: opaque
// source code plus the scope/flow-tracking metadata the compiler recorded
// for it. The VM never interprets Code; it only hands it to a HintRunner.
type CompiledHint struct {
	Code               string
	Scopes             []string
	FlowTrackingDataAp int64
}

// HintRunner executes one compiled hint against a HintContext. Supplying
// nil to Step disables hint execution entirely (every step behaves as if
// no hints were registered), which is useful for hint-free test fixtures.
type HintRunner interface {
	RunHint(ctx *HintContext, hint CompiledHint) error
}

// HintContext is everything a HintRunner implementation may read or
// mutate while executing one hint: the current registers and step count,
// the validated memory and segment manager, and entry points to the
// per-scope locals stack.
type HintContext struct {
	vm *VirtualMachine

	Pc          memory.Relocatable
	Ap          memory.Relocatable
	Fp          memory.Relocatable
	CurrentStep uint64

	skip bool
}

// Memory returns the validated memory the hint may read and write.
func (c *HintContext) Memory() *memory.ValidatedMemory {
	return c.vm.Memory
}

// Segments returns the segment manager the hint may allocate from.
func (c *HintContext) Segments() *memory.SegmentManager {
	return c.vm.Segments
}

// SkipInstructionExecution tells the VM to not decode/execute the
// instruction at Pc this step; the hints still queued at this pc after the
// current one are not run either.
func (c *HintContext) SkipInstructionExecution() {
	c.skip = true
}

// EnterScope pushes a new frame of scope-local variables.
func (c *HintContext) EnterScope(locals map[string]any) {
	c.vm.scopes.push(locals)
}

// ExitScope pops the innermost scope frame. Returns
// ErrEnterExitScopeMismatch if called without a matching EnterScope.
func (c *HintContext) ExitScope() error {
	return c.vm.scopes.pop()
}

// CurrentScope returns the innermost scope's locals.
func (c *HintContext) CurrentScope() map[string]any {
	return c.vm.scopes.current()
}

// runHints executes every hint registered at the current pc, in order,
// stopping early (and reporting skip=true) if one of them calls
// SkipInstructionExecution.
func (v *VirtualMachine) runHints(hintRunner HintRunner) (skip bool, err error) {
	hints, ok := v.Hints[v.RunContext.Pc]
	if !ok || hintRunner == nil {
		return false, nil
	}

	ctx := &HintContext{
		vm:          v,
		Pc:          v.RunContext.Pc,
		Ap:          v.RunContext.Ap,
		Fp:          v.RunContext.Fp,
		CurrentStep: v.CurrentStep,
	}
	for _, hint := range hints {
		if err := hintRunner.RunHint(ctx, hint); err != nil {
			return false, err
		}
		if ctx.skip {
			return true, nil
		}
	}
	return false, nil
}

// scopeStack tracks hint-local variable scopes. It always has at least one
// (base) frame; EnterScope/ExitScope push/pop additional frames on top of
// it, and checkBalanced requires every pushed frame to have been popped by
// the time the run ends.
type scopeStack struct {
	frames []map[string]any
}

func newScopeStack() *scopeStack {
	return &scopeStack{frames: []map[string]any{{}}}
}

func (s *scopeStack) push(locals map[string]any) {
	if locals == nil {
		locals = make(map[string]any)
	}
	s.frames = append(s.frames, locals)
}

func (s *scopeStack) pop() error {
	if len(s.frames) <= 1 {
		return ErrEnterExitScopeMismatch
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *scopeStack) current() map[string]any {
	return s.frames[len(s.frames)-1]
}

func (s *scopeStack) checkBalanced() error {
	if len(s.frames) != 1 {
		return ErrEnterExitScopeMismatch
	}
	return nil
}
