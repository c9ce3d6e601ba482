package memory

import (
	"fmt"

	"github.com/pkg/errors"
)

// Relocatable is an address into the VM's segmented memory: a pair of a
// segment index and an offset within that segment. A negative SegmentIndex
// denotes a temporary segment that has not yet been spliced into a
// permanent one (see Memory.AddRelocationRule).
type Relocatable struct {
	SegmentIndex int64
	Offset       int64
}

// NewRelocatable builds a Relocatable from its components.
func NewRelocatable(segmentIndex, offset int64) Relocatable {
	return Relocatable{SegmentIndex: segmentIndex, Offset: offset}
}

// IsTemporary reports whether this address belongs to a temporary segment.
func (r Relocatable) IsTemporary() bool {
	return r.SegmentIndex < 0
}

// AddOffset returns a new Relocatable with rhs added to the offset.
func (r Relocatable) AddOffset(rhs int64) Relocatable {
	return Relocatable{SegmentIndex: r.SegmentIndex, Offset: r.Offset + rhs}
}

// Sub returns the offset difference between two relocatables of the same
// segment. It errors if the segments differ.
func (r Relocatable) Sub(other Relocatable) (int64, error) {
	if r.SegmentIndex != other.SegmentIndex {
		return 0, errors.Errorf("cannot subtract relocatables from different segments: %s - %s", r, other)
	}
	return r.Offset - other.Offset, nil
}

func (r Relocatable) String() string {
	return fmt.Sprintf("%d:%d", r.SegmentIndex, r.Offset)
}
