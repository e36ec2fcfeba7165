package device

import (
	"context"
	"time"
)

// Resolver is the capability orchestrator depends on instead of importing
// device's package-level functions directly, so tests can substitute a
// fake without touching a real kernel SAN stack.
type Resolver interface {
	Lookup(ctx context.Context, wwid string) (string, bool, error)
	Slaves(mapperName string) ([]string, error)
	InUse(ctx context.Context, mapperPath string, slaves []string) (bool, error)
	Teardown(ctx context.Context, mapperPath string, slaves []string) error
	WaitForDevice(ctx context.Context, wwid string, timeout time.Duration, rescan RescanFunc) (string, error)
}

// DefaultResolver implements Resolver against the real kernel SAN stack
// using this package's functions, parameterized by an iSCSI diagnostic
// hook (nilable — when nil, WaitForDevice's timeout error carries no
// active-session list).
type DefaultResolver struct {
	DiagISCSI diagISCSI
}

// diagISCSI narrows *iscsi.Driver down to exactly the method
// WaitForDevice's diagnostics need, so this package doesn't import
// sanfabric/iscsi just to build an error message.
type diagISCSI interface {
	ActiveSessions(ctx context.Context) ([]string, error)
}

func (r DefaultResolver) Lookup(ctx context.Context, wwid string) (string, bool, error) {
	return Lookup(ctx, wwid)
}

func (r DefaultResolver) Slaves(mapperName string) ([]string, error) {
	return Slaves(mapperName)
}

func (r DefaultResolver) InUse(ctx context.Context, mapperPath string, slaves []string) (bool, error) {
	return InUse(ctx, mapperPath, slaves)
}

func (r DefaultResolver) Teardown(ctx context.Context, mapperPath string, slaves []string) error {
	return Teardown(ctx, mapperPath, slaves)
}

func (r DefaultResolver) WaitForDevice(ctx context.Context, wwid string, timeout time.Duration, rescan RescanFunc) (string, error) {
	return waitForDeviceGeneric(ctx, wwid, timeout, rescan, r.DiagISCSI)
}
