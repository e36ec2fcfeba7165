package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureconfig"
	"purearray-pve-plugin/pureerr"
)

// hostName computes this node's (or the cluster's shared) array Host name
// per the configured host-mode.
func (o *Orchestrator) hostName() string {
	if o.Config.HostMode == pureconfig.HostModeShared {
		return naming.EncodeHost(o.Config.ClusterName, "")
	}
	return naming.EncodeHost(o.Config.ClusterName, o.NodeName)
}

// RegisterHost get-or-creates this host's array Host object and ensures
// every locally discovered initiator is registered on it, tolerating a
// race with another node doing the same and refusing to proceed only when
// an initiator is already registered to a genuinely different host.
func (o *Orchestrator) RegisterHost(ctx context.Context) error {
	name := o.hostName()
	host, err := o.Array.GetOrCreateHost(ctx, name)
	if err != nil {
		return err
	}

	initiators, err := o.Proto.LocalInitiator(ctx)
	if err != nil {
		return err
	}
	isIQN := o.Config.Protocol == pureconfig.ProtocolISCSI

	existing := host.IQNs
	if !isIQN {
		existing = host.WWNs
	}

	for _, init := range initiators {
		if containsFold(existing, init) {
			continue
		}
		if err := o.Array.AddInitiator(ctx, name, init, isIQN); err != nil {
			if !pureerr.IsConflict(err) {
				return err
			}
			if otherHost, found, lookupErr := o.findHostWithInitiator(ctx, init, isIQN, name); lookupErr == nil && found {
				return pureerr.New(pureerr.KindConflict, "register_host", err).
					WithHost(name).
					WithHint(fmt.Sprintf("initiator %s is registered to a different host (%s); an administrator must remove that registration before this node can join", init, otherHost))
			}
			// no other host currently holds this initiator: a concurrent
			// writer raced us onto this same host, which is benign.
		}
	}
	return nil
}

func containsFold(list []string, target string) bool {
	for _, item := range list {
		if strings.EqualFold(item, target) {
			return true
		}
	}
	return false
}

// findHostWithInitiator looks for a host other than excludeHost that
// currently has initiator registered, distinguishing a genuine different-
// host conflict from a same-host race by checking array state directly
// rather than pattern-matching the conflict's error text (which the array
// also uses for the same-host race case).
func (o *Orchestrator) findHostWithInitiator(ctx context.Context, initiator string, isIQN bool, excludeHost string) (string, bool, error) {
	hosts, err := o.Array.ListHosts(ctx, "")
	if err != nil {
		return "", false, err
	}
	for _, h := range hosts {
		if strings.EqualFold(h.Name, excludeHost) {
			continue
		}
		list := h.IQNs
		if !isIQN {
			list = h.WWNs
		}
		if containsFold(list, initiator) {
			return h.Name, true, nil
		}
	}
	return "", false, nil
}
