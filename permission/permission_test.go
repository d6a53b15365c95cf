package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_StableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"path": "a.txt", "mode": "r"}
	b := map[string]any{"mode": "r", "path": "a.txt"}
	assert.Equal(t, Fingerprint("read_file", a), Fingerprint("read_file", b))
}

func TestFingerprint_DiffersOnDifferentArguments(t *testing.T) {
	a := map[string]any{"path": "a.txt"}
	b := map[string]any{"path": "b.txt"}
	assert.NotEqual(t, Fingerprint("read_file", a), Fingerprint("read_file", b))
}

func TestGate_ReadOnlyHintShortCircuits(t *testing.T) {
	g := New(nil)
	v := g.Classify("list_files", nil, true)
	assert.Equal(t, VerdictAllow, v)
}

func TestGate_AlwaysAllowRemembered(t *testing.T) {
	store := NewStore(nil)
	args := map[string]any{"cmd": "ls"}
	fp := Fingerprint("shell", args)
	store.Remember(fp, DecisionAlwaysAllow)

	g := New(store)
	v := g.Classify("shell", args, false)
	assert.Equal(t, VerdictAllow, v)
}

func TestGate_UnknownToolRequiresConfirmation(t *testing.T) {
	g := New(nil)
	v := g.Classify("shell", nil, false)
	assert.Equal(t, VerdictConfirm, v)
}

func TestSynthesizeDenial_ExactInstructionText(t *testing.T) {
	resp := SynthesizeDenial("req-1")
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, DeniedInstruction, resp.Text)
}
