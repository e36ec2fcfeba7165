package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rican7/retry"
	"github.com/Rican7/retry/strategy"

	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/sanfabric"
)

const pollInterval = 1 * time.Second

// RescanFunc is the protocol-specific rescan callback a wait loop invokes
// each iteration before falling back to the generic SCSI/multipath/udev
// sweep — an iSCSI session rescan or an FC LIP.
type RescanFunc func(ctx context.Context) error

// errDeviceNotYetVisible is retry.Retry's signal to keep polling; it never
// escapes waitForDeviceGeneric.
var errDeviceNotYetVisible = errors.New("device not yet visible")

// waitForDeviceGeneric polls for wwid to appear, rescanning the fabric,
// SCSI hosts, multipath, and udev on every iteration until found or
// timeout, honoring ctx cancellation the same way as a Lookup or rescan
// call would. On failure it returns a *pureerr.Error annotated with
// whatever diagnostics diag (nilable) can offer.
func waitForDeviceGeneric(ctx context.Context, wwid string, timeout time.Duration, rescan RescanFunc,
	diag diagISCSI) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var path string
	var lookupErr error

	retryErr := retry.Retry(func(attempt uint) error {
		if rescan != nil {
			_ = rescan(ctx)
		}
		sanfabric.FullRescan(ctx)

		p, ok, err := Lookup(ctx, wwid)
		if err != nil {
			lookupErr = err
			return err
		}
		if ok {
			path = p
			return nil
		}
		return errDeviceNotYetVisible
	}, stopOnContextDone(ctx), strategy.Wait(pollInterval))

	if retryErr == nil && path != "" {
		return path, nil
	}
	if lookupErr != nil {
		return "", lookupErr
	}
	return "", buildTimeoutError(context.Background(), wwid, diag)
}

// stopOnContextDone is a retry.Strategy that keeps retrying only while ctx
// is still live, so a caller-supplied timeout or cancellation stops the
// poll on the next attempt instead of running past it.
func stopOnContextDone(ctx context.Context) strategy.Strategy {
	return func(attempt uint) bool {
		return ctx.Err() == nil
	}
}

func buildTimeoutError(ctx context.Context, wwid string, diag diagISCSI) error {
	d := &pureerr.Diagnostics{WWID: wwid}

	if diag != nil {
		if sessions, err := diag.ActiveSessions(ctx); err == nil {
			d.ActiveSessions = sessions
		}
		d.DebugCommands = append(d.DebugCommands, "iscsiadm -m session -P 3")
	}
	d.DebugCommands = append(d.DebugCommands, "cat /sys/class/fc_host/host*/port_state")
	d.DebugCommands = append(d.DebugCommands, "multipathd show maps raw format \"%n %w\"")

	return pureerr.New(pureerr.KindLocalFatal, "wait_for_device",
		fmt.Errorf("device for wwid %s did not appear", wwid)).WithDiag(d)
}
