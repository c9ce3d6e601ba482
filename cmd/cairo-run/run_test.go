package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xJonathanLEI/oriac/pkg/vm"
)

// writeRetOnlyProgram writes a minimal one-instruction `ret` program
// artifact to dir and returns its path. See pkg/runner's test fixture of
// the same shape for the field-by-field justification.
func writeRetOnlyProgram(t *testing.T, dir string) string {
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

	path := filepath.Join(dir, "program.json")
	require.NoError(t, os.WriteFile(path, []byte(artifact), 0o644))
	return path
}

func TestRunCommandExecutesToCompletion(t *testing.T) {
	dir := t.TempDir()
	programPath := writeRetOnlyProgram(t, dir)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"run", "--program", programPath, "--layout", "plain"})

	require.NoError(t, root.Execute())
}

func TestRunCommandRequiresProgramFlag(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"run"})
	assert.Error(t, root.Execute())
}

func TestRunCommandRejectsUnknownLayout(t *testing.T) {
	dir := t.TempDir()
	programPath := writeRetOnlyProgram(t, dir)

	root := newRootCmd()
	root.SetArgs([]string{"run", "--program", programPath, "--layout", "nonexistent"})
	assert.Error(t, root.Execute())
}

func TestRunCommandRejectsUnknownLogFormat(t *testing.T) {
	dir := t.TempDir()
	programPath := writeRetOnlyProgram(t, dir)

	root := newRootCmd()
	root.SetArgs([]string{"run", "--program", programPath, "--log-format", "xml"})
	assert.Error(t, root.Execute())
}

func TestRunCommandAllowMissingBuiltinsToleratesLayoutGap(t *testing.T) {
	dir := t.TempDir()
	programPath := writeRetOnlyProgram(t, dir)

	// The plain layout carries no builtins at all, so "pedersen" below is
	// always missing from it; declare it by hand rather than by patching
	// writeRetOnlyProgram's fixture. The missing builtin's zero placeholder
	// sits at [fp-3]; `[ap] = [fp-3], ap++` ahead of the ret returns it, so
	// the return-value check finds zero.
	data, err := os.ReadFile(programPath)
	require.NoError(t, err)
	patched := bytes.Replace(data, []byte(`"builtins": []`), []byte(`"builtins": ["pedersen"]`), 1)
	patched = bytes.Replace(patched, []byte(`"data": ["`), []byte(`"data": ["0x480a7ffd7fff8000", "`), 1)
	require.NoError(t, os.WriteFile(programPath, patched, 0o644))

	root := newRootCmd()
	root.SetArgs([]string{
		"run", "--program", programPath, "--layout", "plain",
		"--allow-missing-builtins",
	})
	require.NoError(t, root.Execute())
}

func TestRunCommandRejectsMissingBuiltinWithoutFlag(t *testing.T) {
	dir := t.TempDir()
	programPath := writeRetOnlyProgram(t, dir)

	data, err := os.ReadFile(programPath)
	require.NoError(t, err)
	patched := bytes.Replace(data, []byte(`"builtins": []`), []byte(`"builtins": ["pedersen"]`), 1)
	require.NoError(t, os.WriteFile(programPath, patched, 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"run", "--program", programPath, "--layout", "plain"})
	assert.Error(t, root.Execute())
}
