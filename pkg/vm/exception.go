package vm

import (
	"fmt"
	"strings"

	"github.com/xJonathanLEI/oriac/pkg/vm/memory"
)

// VmException decorates a failure from Step (or anything else raised
// while running) with the pc it occurred at and the source-level
// attribute messages (e.g. a `with_attr error_message` block) covering
// that pc, so a user sees their own error text instead of a bare VM
// assertion.
//
// The original only ever got as far as a placeholder `VmException {}`
// wrapping nothing (see original_source/src/cairo/lang/vm/cairo_runner.rs,
// which twice notes "TODO: implement as_vm_exception on vm and switch
// over"); the pc+attribute decoration this type carries follows
// spec.md's description of as_vm_exception(pc, err) rather than a
// pack source, since the original never got past the stub.
type VmException struct {
	Pc         memory.Relocatable
	Inner      error
	Attributes []string
}

func (e *VmException) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "error at pc=%s: %s", e.Pc, e.Inner)
	for _, a := range e.Attributes {
		fmt.Fprintf(&b, "\n  %s", a)
	}
	return b.String()
}

func (e *VmException) Unwrap() error { return e.Inner }

// AttributeSource supplies the error_message-style attribute values
// covering a given pc, so AsVmException doesn't need to depend on the
// program package directly.
type AttributeSource interface {
	AttributeMessagesCovering(pc int64) []string
}

// AsVmException wraps err with the pc it occurred at, plus any messages
// attrs reports as covering that pc. err is returned unwrapped if it is
// nil.
func AsVmException(pc memory.Relocatable, err error, attrs AttributeSource) error {
	if err == nil {
		return nil
	}
	var messages []string
	if attrs != nil {
		messages = attrs.AttributeMessagesCovering(pc.Offset)
	}
	return &VmException{Pc: pc, Inner: err, Attributes: messages}
}
