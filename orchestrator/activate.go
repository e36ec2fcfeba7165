package orchestrator

import (
	"context"
	"errors"
	"os"
	"strings"

	"purearray-pve-plugin/naming"
	"purearray-pve-plugin/pureconfig"
	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/sanfabric"
	"purearray-pve-plugin/sanfabric/fc"
)

const multipathConfD = "/etc/multipath/conf.d/pure-storage.conf"
const multipathConf = "/etc/multipath.conf"

const pureStanza = `devices {
	device {
		vendor "PURE"
		product "FlashArray"
		path_selector "service-time 0"
		path_grouping_policy group_by_prio
		path_checker tur
		fast_io_fail_tmo 10
		dev_loss_tmo 60
		no_path_retry 0
	}
}
`

// ActivateStorage runs the activate_storage precondition and setup sweep:
// reachability, orphan sweep, multipath stanza, fabric login, host
// registration.
func (o *Orchestrator) ActivateStorage(ctx context.Context) error {
	if err := o.Array.Ping(ctx); err != nil {
		return err
	}

	o.sweepOrphanTempClones(ctx)

	if err := ensureMultipathStanza(); err != nil {
		o.log(ctx).Warningf("could not write multipath stanza: %v", err)
	}

	switch o.Config.Protocol {
	case pureconfig.ProtocolFC:
		if err := o.Proto.DiscoverAndLogin(ctx, nil); err != nil {
			if errors.Is(err, fc.ErrNoHBAs) {
				return err
			}
			o.log(ctx).Warningf("no online FC target ports visible: %v", err)
		}
	case pureconfig.ProtocolISCSI:
		ports, err := o.Array.ListISCSIPorts(ctx)
		if err != nil {
			return err
		}
		portals := make([]string, 0, len(ports))
		for _, p := range ports {
			if p.Portal != "" {
				portals = append(portals, p.Portal)
			}
		}
		if err := o.Proto.DiscoverAndLogin(ctx, portals); err != nil {
			o.log(ctx).Warningf("iscsi discovery/login had failures: %v", err)
		}
	}

	if err := sanfabricRescanReloadUdev(ctx, o); err != nil {
		o.log(ctx).Warningf("post-login rescan failed: %v", err)
	}

	return o.RegisterHost(ctx)
}

// DeactivateStorage tears down every volume this host still has attached
// in this storage namespace, then logs out of the fabric if nothing is
// left connected (iSCSI only).
func (o *Orchestrator) DeactivateStorage(ctx context.Context) error {
	prefix := naming.QualifyPod(o.Config.Pod, "pve-"+naming.StorageField(o.StorageID)+"-")
	volumes, err := o.Array.ListVolumes(ctx, prefix, false)
	if err != nil {
		return err
	}

	anyStillConnected := false
	for _, v := range volumes {
		wwid := v.WWID()
		path, ok, err := o.Resolver.Lookup(ctx, wwid)
		if err != nil || !ok {
			continue
		}
		slaves, _ := o.Resolver.Slaves(baseName(path))
		inUse, err := o.Resolver.InUse(ctx, path, slaves)
		if err != nil {
			o.log(ctx).Warningf("in-use check failed for %s: %v", v.Name, err)
			anyStillConnected = true
			continue
		}
		if inUse {
			o.log(ctx).Warningf("volume %s is in use, skipping deactivation", v.Name)
			anyStillConnected = true
			continue
		}
		if err := o.Resolver.Teardown(ctx, path, slaves); err != nil {
			o.log(ctx).Warningf("teardown failed for %s: %v", v.Name, err)
			anyStillConnected = true
			continue
		}
		hostName := o.hostName()
		if err := o.Array.Disconnect(ctx, hostName, v.Name); err != nil && !pureerr.IsNotFound(err) {
			o.log(ctx).Warningf("disconnect failed for %s: %v", v.Name, err)
		}
	}

	if !anyStillConnected && o.Config.Protocol == pureconfig.ProtocolISCSI {
		ports, err := o.Array.ListISCSIPorts(ctx)
		if err == nil {
			portals := make([]string, 0, len(ports))
			for _, p := range ports {
				portals = append(portals, p.Portal)
			}
			_ = o.Proto.CleanupSessions(ctx, portals)
		}
	}
	return nil
}

func sanfabricRescanReloadUdev(ctx context.Context, o *Orchestrator) error {
	if err := o.Proto.RescanFabric(ctx); err != nil {
		return err
	}
	sanfabric.FullRescan(ctx)
	return nil
}

// ensureMultipathStanza writes the PURE/FlashArray device stanza exactly
// once, preferring conf.d when present and splicing into multipath.conf
// otherwise. Presence of the stanza is checked first so repeated calls
// across a cluster stay idempotent.
func ensureMultipathStanza() error {
	if _, err := os.Stat("/etc/multipath/conf.d"); err == nil {
		if _, err := os.Stat(multipathConfD); err == nil {
			return nil // already written
		}
		return os.WriteFile(multipathConfD, []byte(pureStanza), 0644)
	}

	existing, err := os.ReadFile(multipathConf)
	if err != nil {
		if os.IsNotExist(err) {
			return os.WriteFile(multipathConf, []byte(pureStanza), 0644)
		}
		return err
	}
	if strings.Contains(string(existing), `vendor "PURE"`) {
		return nil
	}
	return os.WriteFile(multipathConf, append(existing, []byte("\n"+pureStanza)...), 0644)
}

func baseName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}
