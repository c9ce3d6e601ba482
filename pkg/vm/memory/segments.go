package memory

import "github.com/xJonathanLEI/oriac/pkg/felt"

// SegmentManager tracks the sizes of the VM's segments and owns the data
// loading and relocation bookkeeping that sits above raw memory writes.
// Segment sizes are only known precisely after the run ends, which is why
// ComputeEffectiveSizes exists separately from the running total kept by
// Memory.AllocateSegment.
type SegmentManager struct {
	memory *ValidatedMemory
	// segmentUsedSizes records, per segment, the used size set by
	// ComputeEffectiveSizes and raised by Finalize.
	segmentUsedSizes map[int64]int64
}

// NewSegmentManager builds a segment manager over the given validated
// memory.
func NewSegmentManager(vm *ValidatedMemory) *SegmentManager {
	return &SegmentManager{
		memory:           vm,
		segmentUsedSizes: make(map[int64]int64),
	}
}

// Memory returns the validated memory this manager writes through.
func (s *SegmentManager) Memory() *ValidatedMemory {
	return s.memory
}

// Add allocates a new permanent segment and returns its base address.
func (s *SegmentManager) Add() Relocatable {
	return s.memory.Memory().AllocateSegment()
}

// AddTempSegment allocates a new temporary segment and returns its base
// address.
func (s *SegmentManager) AddTempSegment() Relocatable {
	return s.memory.Memory().AllocateTempSegment()
}

// LoadData writes a contiguous run of values starting at base, returning
// the address immediately past the last value written.
func (s *SegmentManager) LoadData(base Relocatable, data []MaybeRelocatable) (Relocatable, error) {
	for i, value := range data {
		if err := s.memory.Insert(base.AddOffset(int64(i)), value); err != nil {
			return Relocatable{}, err
		}
	}
	return base.AddOffset(int64(len(data))), nil
}

// LoadFelts is a convenience wrapper over LoadData for a run of plain field
// elements, as used to load compiled program bytecode.
func (s *SegmentManager) LoadFelts(base Relocatable, data []felt.Felt) (Relocatable, error) {
	values := make([]MaybeRelocatable, len(data))
	for i, f := range data {
		values[i] = NewFromFelt(f)
	}
	return s.LoadData(base, values)
}

// ComputeEffectiveSizes scans every written cell and records, per segment,
// one past the highest offset written. Must be called after the run has
// completed and memory has been frozen; the result is cached in
// segmentUsedSizes and used by GetSegmentUsedSize.
func (s *SegmentManager) ComputeEffectiveSizes() {
	sizes := make(map[int64]int64)
	for addr := range s.memory.Memory().Data() {
		if addr.Offset+1 > sizes[addr.SegmentIndex] {
			sizes[addr.SegmentIndex] = addr.Offset + 1
		}
	}
	s.segmentUsedSizes = sizes
}

// GetSegmentUsedSize returns the cached used size for a segment, computed
// by the most recent ComputeEffectiveSizes call. Returns false if the
// segment has never been written to or sizes haven't been computed yet.
func (s *SegmentManager) GetSegmentUsedSize(segmentIndex int64) (int64, bool) {
	size, ok := s.segmentUsedSizes[segmentIndex]
	return size, ok
}

// GetMemoryHoles counts cells within [0, used_size) of every accounted
// segment that the VM never accessed — the "holes" the prover must still pad
// with zero/dummy values. accessed reports, for a given address, whether
// the VM actually touched that cell during execution (as opposed to merely
// being within the segment's used range); builtin-owned segments are
// excluded via skipSegments since their holes are accounted for
// separately by each builtin's own cell count.
func (s *SegmentManager) GetMemoryHoles(accessed map[Relocatable]bool, skipSegments map[int64]bool) int64 {
	var holes int64
	for segmentIndex, usedSize := range s.segmentUsedSizes {
		if skipSegments[segmentIndex] {
			continue
		}
		for offset := int64(0); offset < usedSize; offset++ {
			addr := Relocatable{SegmentIndex: segmentIndex, Offset: offset}
			if !accessed[addr] {
				holes++
			}
		}
	}
	return holes
}

// Finalize raises a segment's used size to size when size is larger than
// what ComputeEffectiveSizes derived from the written cells; a smaller size
// leaves the recorded used size unchanged. Builtins call this
// once they know their segment's true size from the Cairo-level builtin
// pointer, which may exceed the highest written offset.
func (s *SegmentManager) Finalize(segmentIndex int64, size int64) {
	if size > s.segmentUsedSizes[segmentIndex] {
		s.segmentUsedSizes[segmentIndex] = size
	}
}
