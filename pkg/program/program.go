// Package program decodes the compiled-program JSON artifact a Cairo
// compiler emits and that cairo-run consumes. Deserialization is an
// explicit external collaborator (the artifact format belongs to the
// compiler, not this VM), so this package leans on encoding/json rather
// than inventing its own schema.
package program

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"

	"github.com/xJonathanLEI/oriac/pkg/felt"
)

// bigIntHex decodes the compiler's "0x..."-prefixed hex big-int
// convention, used for prime, bytecode words, and constants.
type bigIntHex struct {
	*big.Int
}

func (b *bigIntHex) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return errors.Errorf("invalid hex big integer %q", s)
	}
	b.Int = n
	return nil
}

func (b bigIntHex) Felt() felt.Felt {
	return felt.FromBigInt(b.Int)
}

// ApTracking records how far the VM's ap has drifted, within a single
// basic flow-tracking group, from the value it held when a reference was
// taken. Used by a hint executor to resolve a reference's runtime
// address; this VM only threads it through unevaluated.
type ApTracking struct {
	Group  int `json:"group"`
	Offset int `json:"offset"`
}

// FlowTrackingData accompanies a hint and a reference, pinning down the
// ap-tracking group and the identifier scope it was compiled under.
type FlowTrackingData struct {
	ApTracking   ApTracking     `json:"ap_tracking"`
	ReferenceIDs map[string]int `json:"reference_ids"`
}

// Hint is one `%{ ... %}` block attached to a program counter offset.
type Hint struct {
	Code             string           `json:"code"`
	AccessibleScopes []string         `json:"accessible_scopes"`
	FlowTrackingData FlowTrackingData `json:"flow_tracking_data"`
}

// Reference is one entry of the program's reference manager: a compiled
// expression (e.g. "[cast(fp + (-3), felt*)]") resolved relative to the
// ap-tracking state it was valid under.
type Reference struct {
	ApTrackingData ApTracking `json:"ap_tracking_data"`
	PC             int        `json:"pc"`
	Value          string     `json:"value"`
}

// ReferenceManager is the flat list of every named reference the
// compiler emitted, indexed by a hint's FlowTrackingData.ReferenceIDs.
type ReferenceManager struct {
	References []Reference `json:"references"`
}

// Identifier is one entry of the program's identifier table: a full name
// (e.g. "__main__.main") resolved to a PC offset for functions, or a
// constant value for consts.
type Identifier struct {
	Type  string     `json:"type"`
	PC    int        `json:"pc,omitempty"`
	Value *bigIntHex `json:"value,omitempty"`
}

// Attribute is one compiler-emitted attribute covering a pc range, e.g.
// an "error_message" attribute a `with_attr` block leaves behind so a
// failure inside that block can be reported with the user's own message.
//
// Grounded on original_source/src/cairo/lang/compiler/preprocessor/preprocessor.rs's
// AttributeScope.
type Attribute struct {
	Name             string   `json:"name"`
	Value            string   `json:"value"`
	StartPC          int64    `json:"start_pc"`
	EndPC            int64    `json:"end_pc"`
	AccessibleScopes []string `json:"accessible_scopes"`
}

// Covers reports whether pc falls within this attribute's [StartPC, EndPC) range.
func (a Attribute) Covers(pc int64) bool {
	return pc >= a.StartPC && pc < a.EndPC
}

// Program is the full compiled-program artifact: bytecode, hints,
// builtins, and every piece of debug/reference metadata a hint executor
// needs to resolve variable references at runtime.
//
// Grounded on original_source/src/cairo/lang/compiler/program.rs's
// Program struct and its serde field set; `data`/`prime` use the
// compiler's hex-string convention (BigIntHex in the original), modeled
// here with bigIntHex's custom UnmarshalJSON.
type Program struct {
	Prime            bigIntHex             `json:"prime"`
	Data             []bigIntHex           `json:"data"`
	Hints            map[string][]Hint     `json:"hints"`
	Builtins         []string              `json:"builtins"`
	MainScope        string                `json:"main_scope"`
	Identifiers      map[string]Identifier `json:"identifiers"`
	ReferenceManager ReferenceManager      `json:"reference_manager"`
	Attributes       []Attribute           `json:"attributes"`
	DebugInfo        json.RawMessage       `json:"debug_info"`
}

// AttributesCovering returns every attribute whose pc range contains pc,
// in declaration order, for decorating a failure at that pc with the
// source-level context (e.g. a `with_attr error_message` block) the
// compiler recorded for it.
func (p Program) AttributesCovering(pc int64) []Attribute {
	var covering []Attribute
	for _, a := range p.Attributes {
		if a.Covers(pc) {
			covering = append(covering, a)
		}
	}
	return covering
}

// AttributeMessagesCovering is the string-valued shorthand vm.AsVmException
// consumes: the Value of every attribute covering pc, e.g. the user's
// own message from a `with_attr error_message("...")` block.
func (p Program) AttributeMessagesCovering(pc int64) []string {
	attrs := p.AttributesCovering(pc)
	messages := make([]string, len(attrs))
	for i, a := range attrs {
		messages[i] = a.Value
	}
	return messages
}

// StrippedProgram is a program reduced to what's needed to verify an
// execution trace: no hints, no identifiers, no debug info. The absence
// of hints matters for security — a verifier must not be able to run
// attacker-chosen hint code.
//
// Grounded on original_source/src/program.rs's StrippedProgram.
type StrippedProgram struct {
	Prime    felt.Felt
	Data     []felt.Felt
	Builtins []string
	Main     int64
}

// Decode parses a compiled-program JSON artifact.
func Decode(data []byte) (Program, error) {
	var p Program
	if err := json.Unmarshal(data, &p); err != nil {
		return Program{}, errors.Wrap(err, "decoding program artifact")
	}
	return p, nil
}

// Bytecode returns the program's data segment as field elements, ready
// to be loaded into the program segment.
func (p Program) Bytecode() []felt.Felt {
	words := make([]felt.Felt, len(p.Data))
	for i, d := range p.Data {
		words[i] = d.Felt()
	}
	return words
}

// MainOffset returns the PC offset of "__main__.main", or 0 if the
// program has no main function (e.g. it is meant to be run from an
// explicit entrypoint offset instead).
func (p Program) MainOffset() int64 {
	if id, ok := p.Identifiers["__main__.main"]; ok {
		return int64(id.PC)
	}
	return 0
}

// Strip reduces a Program to a StrippedProgram for trace verification.
func (p Program) Strip() StrippedProgram {
	return StrippedProgram{
		Prime:    p.Prime.Felt(),
		Data:     p.Bytecode(),
		Builtins: p.Builtins,
		Main:     p.MainOffset(),
	}
}

// ExtractConstants collects every identifier of type "const" into a flat
// name -> value map, as a hint executor needs to resolve `const` reads
// embedded in hint code.
func (p Program) ExtractConstants() map[string]felt.Felt {
	constants := make(map[string]felt.Felt)
	for name, id := range p.Identifiers {
		if id.Type == "const" && id.Value != nil {
			constants[name] = id.Value.Felt()
		}
	}
	return constants
}
