package pureerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessageIncludesAnnotations(t *testing.T) {
	err := New(KindConflict, "free", errors.New("device busy")).
		WithVolume("pve-s-1-disk0").
		WithSnapshot("pve-snap-foo").
		WithHost("pve-cluster-node1").
		WithProtocol("iscsi").
		WithHint("linked clones exist")

	msg := err.Error()
	assert.Contains(t, msg, "free")
	assert.Contains(t, msg, "volume=pve-s-1-disk0")
	assert.Contains(t, msg, "snapshot=pve-snap-foo")
	assert.Contains(t, msg, "host=pve-cluster-node1")
	assert.Contains(t, msg, "protocol=iscsi")
	assert.Contains(t, msg, "conflict")
	assert.Contains(t, msg, "device busy")
	assert.Contains(t, msg, "linked clones exist")
}

func TestErrorMessageWithDiagnostics(t *testing.T) {
	err := New(KindLocalFatal, "wait_for_device", errors.New("timeout")).
		WithDiag(&Diagnostics{
			WWID:           "3624a9370deadbeef",
			ActiveSessions: []string{"sess1"},
			DebugCommands:  []string{"iscsiadm -m session -P 3"},
		})
	msg := err.Error()
	assert.Contains(t, msg, "wwid=3624a9370deadbeef")
	assert.Contains(t, msg, "active_sessions=")
	assert.Contains(t, msg, "try=")
}

func TestUnwrapExposesUnderlyingCause(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindTransient, "op", cause)
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestKindOfThroughWrapping(t *testing.T) {
	inner := New(KindNotFound, "get_volume", nil)
	wrapped := errors.New("context: " + inner.Error())

	k, ok := KindOf(inner)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, k)

	_, ok = KindOf(wrapped)
	assert.False(t, ok, "a plain string-wrapped error carries no Kind")
}

func TestIsNotFoundAndIsConflict(t *testing.T) {
	assert.True(t, IsNotFound(New(KindNotFound, "get", nil)))
	assert.False(t, IsNotFound(New(KindConflict, "get", nil)))
	assert.True(t, IsConflict(New(KindConflict, "create", nil)))
	assert.False(t, IsConflict(New(KindTransient, "create", nil)))
	assert.False(t, IsNotFound(errors.New("plain error")))
}

func TestIsMatchesOnKindNotIdentity(t *testing.T) {
	a := New(KindConflict, "alloc", errors.New("x"))
	b := New(KindConflict, "free", errors.New("y"))
	assert.True(t, errors.Is(a, b))

	c := New(KindNotFound, "free", nil)
	assert.False(t, errors.Is(a, c))
}

func TestSentinelsCarryExpectedKind(t *testing.T) {
	assert.True(t, errors.Is(New(KindNotFound, "x", nil), ErrNotFound))
	assert.True(t, errors.Is(New(KindConflict, "x", nil), ErrConflict))
}
