// Package fc implements sanfabric.Protocol for Fibre Channel by scanning
// /sys/class/fc_host directly, reading each HBA's port state and WWPN from
// sysfs instead of shelling out to cat for each attribute.
package fc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"purearray-pve-plugin/sanfabric"
)

var errNoOnlineTarget = errors.New("no online FC target ports visible via fabric")

// ErrNoHBAs is returned by DiscoverAndLogin when the host has no FC adapter
// at all — unlike a missing online target, there is no fabric state that
// could ever fix this, so callers treat it as fatal rather than a warning.
var ErrNoHBAs = errors.New("no FC host adapters present on this node")

// Driver implements sanfabric.Protocol for Fibre Channel.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "fc" }

// HBA describes one local FC host adapter.
type HBA struct {
	Host       string // e.g. "host3"
	PortName   string // colon-separated WWPN, display form
	NodeName   string
	PortState  string
	PortType   string
	Speed      string
	FabricName string
}

// WWPNRaw returns the HBA's port name as lowercase hex with no separators,
// the form the array API expects.
func (h HBA) WWPNRaw() string {
	return strings.ToLower(strings.ReplaceAll(h.PortName, ":", ""))
}

// EnumerateHBAs reads every /sys/class/fc_host/host* adapter's identity and
// link-state attributes.
func EnumerateHBAs() ([]HBA, error) {
	entries, err := filepath.Glob("/sys/class/fc_host/host*")
	if err != nil {
		return nil, err
	}
	out := make([]HBA, 0, len(entries))
	for _, path := range entries {
		host := filepath.Base(path)
		out = append(out, HBA{
			Host:       host,
			PortName:   readAttr(path, "port_name"),
			NodeName:   readAttr(path, "node_name"),
			PortState:  readAttr(path, "port_state"),
			PortType:   readAttr(path, "port_type"),
			Speed:      readAttr(path, "speed"),
			FabricName: readAttr(path, "fabric_name"),
		})
	}
	return out, nil
}

func readAttr(hostPath, attr string) string {
	b, err := os.ReadFile(filepath.Join(hostPath, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

// RemotePort describes one entry under /sys/class/fc_remote_ports.
type RemotePort struct {
	Name  string
	Roles string
}

// IsTarget reports whether roles contains "FC_PORTROLE_FCP_TARGET", the
// kernel's string for a port acting as a SCSI target.
func (r RemotePort) IsTarget() bool {
	return strings.Contains(r.Roles, "FC_PORTROLE_FCP_TARGET") || strings.Contains(r.Roles, "target")
}

// EnumerateRemotePorts lists every visible remote port across all local HBAs.
func EnumerateRemotePorts() ([]RemotePort, error) {
	entries, err := filepath.Glob("/sys/class/fc_remote_ports/rport-*")
	if err != nil {
		return nil, err
	}
	out := make([]RemotePort, 0, len(entries))
	for _, path := range entries {
		out = append(out, RemotePort{
			Name:  filepath.Base(path),
			Roles: readAttr(path, "roles"),
		})
	}
	return out, nil
}

func (d *Driver) LocalInitiator(ctx context.Context) ([]string, error) {
	hbas, err := EnumerateHBAs()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(hbas))
	for _, h := range hbas {
		if h.PortName != "" {
			out = append(out, h.WWPNRaw())
		}
	}
	return out, nil
}

// DiscoverAndLogin has nothing to dial for FC — fabric visibility depends
// on zoning, not a client-initiated login — so it only asserts that the
// node is even capable of seeing a target: first that an HBA exists at all
// (ErrNoHBAs, fatal — no fabric state can fix a missing adapter), then that
// at least one online target port is visible (errNoOnlineTarget, an error
// the caller may choose to downgrade to a warning; ActivateStorage does).
func (d *Driver) DiscoverAndLogin(ctx context.Context, _ []string) error {
	hbas, err := EnumerateHBAs()
	if err != nil {
		return err
	}
	if len(hbas) == 0 {
		return ErrNoHBAs
	}

	ports, err := EnumerateRemotePorts()
	if err != nil {
		return err
	}
	for _, p := range ports {
		if p.IsTarget() {
			return nil
		}
	}
	return errNoOnlineTarget
}

// RescanFabric issues a LIP on every HBA, whatever its port state, then triggers a SCSI host
// scan so newly presented LUNs show up without a reboot.
func (d *Driver) RescanFabric(ctx context.Context) error {
	hbas, err := EnumerateHBAs()
	if err != nil {
		return err
	}
	for _, h := range hbas {
		issueLipPath := "/sys/class/fc_host/" + h.Host + "/issue_lip"
		_ = os.WriteFile(issueLipPath, []byte("1"), 0200)
	}
	return sanfabric.RescanSCSIHosts(ctx)
}

// CleanupSessions is a no-op for FC: there is no client-held session state
// to tear down, only zoning, which this plugin never touches.
func (d *Driver) CleanupSessions(ctx context.Context, _ []string) error { return nil }
