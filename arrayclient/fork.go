package arrayclient

import (
	"context"
	"os"
)

func osGetpid() int { return os.Getpid() }

// EnsureFresh detects a PID change (a worker forked after this Client was
// constructed in the parent) and re-authenticates, since a session token
// bound to one process is not safe to share after fork.
func (c *Client) EnsureFresh(ctx context.Context) error {
	c.mu.Lock()
	stale := c.loginPID != 0 && c.loginPID != currentPID()
	c.mu.Unlock()

	if !stale {
		return nil
	}
	return c.login(ctx)
}
