// Package sanfabric drives the host kernel's SAN stack: iSCSI session
// management (sanfabric/iscsi), FC HBA enumeration (sanfabric/fc), and the
// protocol-independent SCSI rescan / multipath / udev operations shared by
// both. Every external command goes through RunCommand in this file.
package sanfabric

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"

	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/purelog"
)

// Result is the outcome of one subprocess invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// allowedArgRe bounds every argv element that can carry a device or WWID
// derived from array/kernel state (as opposed to a literal flag baked into
// a call site), closing off shell-metacharacter injection even though
// exec.Command never invokes a shell itself.
var allowedArgRe = regexp.MustCompile(`^[A-Za-z0-9_.:/@=,+-]+$`)

// ValidateArg rejects any argument containing characters outside the
// allow-listed set before it is allowed to reach an argv.
func ValidateArg(arg string) error {
	if arg == "" || !allowedArgRe.MatchString(arg) {
		return pureerr.New(pureerr.KindLocalFatal, "validate_arg", fmt.Errorf("rejected argument %q", arg))
	}
	return nil
}

// IgnorableExit reports whether exitCode for the given command name is a
// known-benign non-zero exit (e.g. iscsiadm login-when-already-logged-in).
type IgnorableExit func(exitCode int) bool

// RunCommand execs name with args, draining stdout and stderr concurrently
// so a chatty stderr stream can't deadlock a stdout-only reader. timeout
// kills the child through exec.CommandContext; processes the child itself
// started are not signalled.
func RunCommand(ctx context.Context, timeout time.Duration, ignorable IgnorableExit, name string, args ...string) (Result, error) {
	for _, a := range args {
		if err := ValidateArg(a); err != nil {
			return Result{}, err
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, err
	}

	purelog.AddContext(ctx).Debugf("running %s %v", name, args)

	if err := cmd.Start(); err != nil {
		return Result{}, pureerr.New(pureerr.KindLocalFatal, "run_command", err)
	}

	var outBuf, errBuf bytes.Buffer
	outDone := make(chan error, 1)
	errDone := make(chan error, 1)
	go func() { _, err := outBuf.ReadFrom(stdoutPipe); outDone <- err }()
	go func() { _, err := errBuf.ReadFrom(stderrPipe); errDone <- err }()
	<-outDone
	<-errDone

	waitErr := cmd.Wait()

	res := Result{Stdout: outBuf.String(), Stderr: errBuf.String()}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
	}

	if runCtx.Err() != nil {
		return res, pureerr.New(pureerr.KindTransient, "run_command",
			fmt.Errorf("%s timed out after %s", name, timeout))
	}

	if waitErr != nil {
		if ignorable != nil && ignorable(res.ExitCode) {
			return res, nil
		}
		return res, pureerr.New(pureerr.KindLocalFatal, "run_command",
			fmt.Errorf("%s %v: exit %d: %s", name, args, res.ExitCode, res.Stderr))
	}

	return res, nil
}
