// Package iscsi implements sanfabric.Protocol by shelling out to iscsiadm
// for session discovery, login, rescan, and logout.
package iscsi

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"purearray-pve-plugin/sanfabric"
)

const (
	initiatorNameFile = "/etc/iscsi/initiatorname.iscsi"
	loginTimeout      = 30 * time.Second
	adminTimeout      = 20 * time.Second
)

// Driver implements sanfabric.Protocol for iSCSI.
type Driver struct{}

func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return "iscsi" }

// LocalInitiator reads InitiatorName= out of initiatorname.iscsi directly,
// without shelling out for what is just a static local file read.
func (d *Driver) LocalInitiator(ctx context.Context) ([]string, error) {
	f, err := os.Open(initiatorNameFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "InitiatorName=") {
			return []string{strings.TrimPrefix(line, "InitiatorName=")}, nil
		}
	}
	return nil, fmt.Errorf("no InitiatorName in %s", initiatorNameFile)
}

// loginIgnorable treats exit 15 (iscsiadm: already logged in) as success,
// the one documented benign non-zero exit for this command.
func loginIgnorable(exitCode int) bool { return exitCode == 15 }

// discoveryIgnorable tolerates "no records found" (21) and the generic
// iscsid-not-reachable-yet transient (255) the same way the reference
// driver's getAllISCSISession does, since both recur harmlessly on a host
// that has never logged in before.
func discoveryIgnorable(exitCode int) bool { return exitCode == 21 || exitCode == 255 }

// DiscoverAndLogin runs sendtargets discovery against each portal, then
// logs in per-discovered target IQN. A failing portal is skipped rather
// than aborting the whole sweep; the first error seen is returned at the end.
func (d *Driver) DiscoverAndLogin(ctx context.Context, portals []string) error {
	var firstErr error
	for _, portal := range portals {
		host, port := splitPortal(portal)
		res, err := sanfabric.RunCommand(ctx, adminTimeout, discoveryIgnorable,
			"iscsiadm", "-m", "discovery", "-t", "sendtargets", "-p", host+":"+port)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		for _, targetIQN := range parseDiscoveredTargets(res.Stdout) {
			if _, loginErr := sanfabric.RunCommand(ctx, loginTimeout, loginIgnorable,
				"iscsiadm", "-m", "node", "-T", targetIQN, "-p", portal, "--login"); loginErr != nil {
				if firstErr == nil {
					firstErr = loginErr
				}
			}
		}
	}
	return firstErr
}

func splitPortal(portal string) (host, port string) {
	if idx := strings.LastIndexByte(portal, ':'); idx >= 0 {
		return portal[:idx], portal[idx+1:]
	}
	return portal, "3260"
}

// parseDiscoveredTargets extracts target IQNs from "iscsiadm -m discovery"
// output lines shaped "portal:port,tag iqn.xxxx".
func parseDiscoveredTargets(output string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && strings.HasPrefix(fields[1], "iqn.") {
			out = append(out, fields[1])
		}
	}
	return out
}

// ActiveSessions lists "portal,targetIQN" strings for every logged-in
// iSCSI session, used by the device resolver's timeout diagnostics.
func (d *Driver) ActiveSessions(ctx context.Context) ([]string, error) {
	res, err := sanfabric.RunCommand(ctx, adminTimeout, discoveryIgnorable, "iscsiadm", "-m", "session")
	if err != nil {
		return nil, err
	}
	var sessions []string
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		if line == "" {
			continue
		}
		sessions = append(sessions, line)
	}
	return sessions, nil
}

// RescanFabric rescans every active session.
func (d *Driver) RescanFabric(ctx context.Context) error {
	_, err := sanfabric.RunCommand(ctx, adminTimeout, nil, "iscsiadm", "-m", "session", "--rescan")
	return err
}

// CleanupSessions logs out of and removes node records for the given
// portals: logout followed by deleting the node record, with no CHAP
// bookkeeping since this array never configures it.
func (d *Driver) CleanupSessions(ctx context.Context, portals []string) error {
	var firstErr error
	for _, portal := range portals {
		if _, err := sanfabric.RunCommand(ctx, adminTimeout, loginIgnorable,
			"iscsiadm", "-m", "node", "-p", portal, "--logout"); err != nil && firstErr == nil {
			firstErr = err
		}
		if _, err := sanfabric.RunCommand(ctx, adminTimeout, nil,
			"iscsiadm", "-m", "node", "-p", portal, "--op", "delete"); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
