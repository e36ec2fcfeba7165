package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purearray-pve-plugin/pureconfig"
	"purearray-pve-plugin/pureerr"
)

func TestHostNamePerNodeVsShared(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	assert.Equal(t, "pve-pve-node1", o.hostName())

	cfg := o.Config
	cfg.HostMode = pureconfig.HostModeShared
	o.Config = cfg
	assert.Equal(t, "pve-pve-shared", o.hostName())
}

func TestRegisterHostCreatesHostAndAddsInitiator(t *testing.T) {
	o, array, _, _ := newTestOrchestrator()
	ctx := context.Background()

	require.NoError(t, o.RegisterHost(ctx))

	h, ok, err := array.GetHost(ctx, "pve-pve-node1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, h.IQNs, "iqn.host.initiator")
}

func TestRegisterHostIsIdempotent(t *testing.T) {
	o, _, _, _ := newTestOrchestrator()
	ctx := context.Background()
	require.NoError(t, o.RegisterHost(ctx))
	require.NoError(t, o.RegisterHost(ctx))
}

func TestRegisterHostFailsWhenInitiatorBelongsElsewhere(t *testing.T) {
	o, array, _, _ := newTestOrchestrator()
	ctx := context.Background()

	_, err := array.CreateHost(ctx, "pve-pve-othernode")
	require.NoError(t, err)
	require.NoError(t, array.AddInitiator(ctx, "pve-pve-othernode", "iqn.host.initiator", true))

	err = o.RegisterHost(ctx)
	require.Error(t, err)
	assert.True(t, pureerr.IsConflict(err))
	assert.Contains(t, err.Error(), "different host")
}

// raceOnSameHostArray makes AddInitiator behave like a concurrent writer
// beat this call to the same host: the initiator lands on hostName
// regardless, but the array still reports the attempt as a conflict.
type raceOnSameHostArray struct {
	*fakeArray
}

func (r raceOnSameHostArray) AddInitiator(ctx context.Context, hostName, iqnOrWwn string, isIQN bool) error {
	_ = r.fakeArray.AddInitiator(ctx, hostName, iqnOrWwn, isIQN)
	return pureerr.New(pureerr.KindConflict, "add_initiator", errors.New("initiator already in use"))
}

func TestRegisterHostTreatsSameHostRaceAsBenign(t *testing.T) {
	o, array, _, _ := newTestOrchestrator()
	o.Array = raceOnSameHostArray{array}

	err := o.RegisterHost(context.Background())
	require.NoError(t, err, "a same-host race must not be mistaken for a different-host conflict")
}

func TestRegisterHostPropagatesLocalInitiatorError(t *testing.T) {
	o, _, proto, _ := newTestOrchestrator()
	proto.localInitErr = errLocalInitiator
	err := o.RegisterHost(context.Background())
	require.Error(t, err)
}

func TestContainsFoldIsCaseInsensitive(t *testing.T) {
	assert.True(t, containsFold([]string{"iqn.A"}, "IQN.a"))
	assert.False(t, containsFold([]string{"iqn.a"}, "iqn.b"))
}

var errLocalInitiator = pureerr.New(pureerr.KindTransient, "local_initiator", nil)
