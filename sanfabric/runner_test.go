package sanfabric

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purearray-pve-plugin/pureerr"
)

func TestValidateArgAcceptsAllowlistedChars(t *testing.T) {
	assert.NoError(t, ValidateArg("/dev/disk/by-id/wwn-0x3624a9370abcdef"))
	assert.NoError(t, ValidateArg("host0"))
}

func TestValidateArgRejectsShellMetacharacters(t *testing.T) {
	for _, bad := range []string{"", "foo;rm -rf /", "foo|bar", "$(whoami)", "foo`bar`"} {
		assert.Error(t, ValidateArg(bad), "expected %q to be rejected", bad)
	}
}

func TestRunCommandCapturesStdoutAndStderr(t *testing.T) {
	// The script text holds characters ValidateArg rejects, so it is passed
	// to sh as a file path rather than as a -c argument.
	script := filepath.Join(t.TempDir(), "out_err.sh")
	require.NoError(t, os.WriteFile(script, []byte("echo out; echo err 1>&2\n"), 0o600))
	res, err := RunCommand(context.Background(), 5*time.Second, nil, "sh", script)
	require.NoError(t, err)
	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
}

func TestRunCommandNonZeroExitIsLocalFatal(t *testing.T) {
	_, err := RunCommand(context.Background(), 5*time.Second, nil, "false")
	require.Error(t, err)
	k, ok := pureerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, pureerr.KindLocalFatal, k)
}

func TestRunCommandIgnorableExitSucceeds(t *testing.T) {
	res, err := RunCommand(context.Background(), 5*time.Second, func(code int) bool { return code == 1 }, "false")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestRunCommandTimeoutIsTransient(t *testing.T) {
	_, err := RunCommand(context.Background(), 50*time.Millisecond, nil, "sleep", "5")
	require.Error(t, err)
	k, ok := pureerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, pureerr.KindTransient, k)
}

func TestRunCommandRejectsUnsafeArgsBeforeExec(t *testing.T) {
	_, err := RunCommand(context.Background(), time.Second, nil, "echo", "safe; rm -rf /tmp/x")
	assert.Error(t, err)
}
