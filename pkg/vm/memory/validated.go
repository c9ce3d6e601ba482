package memory

// ValidationRule checks a freshly-written cell against the constraints of
// the builtin owning its segment (e.g. range-check's "must fit in 128
// bits", or a structural constraint on a pedersen triple). It returns a
// non-nil error to reject the write.
type ValidationRule func(vm *ValidatedMemory, addr Relocatable, value MaybeRelocatable) error

// ValidatedMemory wraps Memory with a per-segment validation rule registry.
// Builtins register a rule for the segment they own; every write to that
// segment is checked against the rule before it is accepted, mirroring the
// source VM's validated memory dictionary which sits in front of the raw
// memory dict.
type ValidatedMemory struct {
	memory *Memory
	rules  map[int64][]ValidationRule
	// validated caches addresses that have already passed their rule, so
	// re-validating an address already known-good is a no-op.
	validated map[Relocatable]bool
}

// NewValidatedMemory wraps an existing Memory.
func NewValidatedMemory(m *Memory) *ValidatedMemory {
	return &ValidatedMemory{
		memory:    m,
		rules:     make(map[int64][]ValidationRule),
		validated: make(map[Relocatable]bool),
	}
}

// Memory returns the underlying raw memory.
func (v *ValidatedMemory) Memory() *Memory {
	return v.memory
}

// AddValidationRule registers rule for every address in segmentIndex.
func (v *ValidatedMemory) AddValidationRule(segmentIndex int64, rule ValidationRule) {
	v.rules[segmentIndex] = append(v.rules[segmentIndex], rule)
}

// Insert writes through to the underlying memory, then validates the cell
// against any rule registered for its segment.
func (v *ValidatedMemory) Insert(addr Relocatable, value MaybeRelocatable) error {
	if err := v.memory.Insert(addr, value); err != nil {
		return err
	}
	return v.validateAddress(addr, value)
}

// Get reads through to the underlying memory.
func (v *ValidatedMemory) Get(addr Relocatable) (MaybeRelocatable, error) {
	return v.memory.Get(addr)
}

func (v *ValidatedMemory) validateAddress(addr Relocatable, value MaybeRelocatable) error {
	if v.validated[addr] {
		return nil
	}
	for _, rule := range v.rules[addr.SegmentIndex] {
		if err := rule(v, addr, value); err != nil {
			return err
		}
	}
	v.validated[addr] = true
	return nil
}

// ValidateExistingMemory re-runs every registered rule against every
// already-written cell. Used after a builtin registers its validation rule
// on a segment that may already hold values (e.g. program data loaded
// before the builtin attached).
func (v *ValidatedMemory) ValidateExistingMemory(segmentIndex int64) error {
	for addr, value := range v.memory.data {
		if addr.SegmentIndex != segmentIndex {
			continue
		}
		if err := v.validateAddress(addr, value); err != nil {
			return err
		}
	}
	return nil
}
