package sanfabric

import "context"

// Protocol is the capability every orchestrator call site that needs fabric
// access depends on, injected so orchestrator never imports sanfabric/iscsi
// or sanfabric/fc directly and tests can substitute a fake.
type Protocol interface {
	// Name identifies the protocol for logging and Host record selection
	// ("iscsi" or "fc").
	Name() string

	// LocalInitiator returns this host's initiator identifier(s): IQN for
	// iSCSI, WWPNs for FC.
	LocalInitiator(ctx context.Context) ([]string, error)

	// DiscoverAndLogin establishes sessions to the given target portals
	// (iSCSI) or asserts HBA/fabric visibility (FC), tolerating per-target
	// failure so one bad portal doesn't block the rest.
	DiscoverAndLogin(ctx context.Context, targets []string) error

	// RescanFabric asks the protocol layer to re-probe for new LUNs: an
	// iSCSI session rescan, or an FC LIP plus HBA scan trigger.
	RescanFabric(ctx context.Context) error

	// CleanupSessions logs out of (iSCSI) or otherwise quiesces (FC, a
	// no-op) fabric sessions once no volumes remain connected.
	CleanupSessions(ctx context.Context, targets []string) error
}
