// Package pureerr implements the error taxonomy of §7: a small set of typed
// kinds, and exactly one adapter boundary per external system that is
// allowed to classify by substring (array HTTP error bodies, subprocess
// stderr, kernel error strings). Every other layer consumes the typed Kind,
// never a string.
package pureerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the error taxonomy every array-facing operation classifies its
// failures into, so callers can branch on semantics instead of string
// matching.
type Kind string

const (
	// KindTransient covers 429/5xx and connection resets — retry with backoff.
	KindTransient Kind = "transient"
	// KindAuthExpired covers a 401 after a session was already established.
	KindAuthExpired Kind = "auth_expired"
	// KindNotFound covers 404 / "does not exist" style responses.
	KindNotFound Kind = "not_found"
	// KindConflict covers 409 / "already exists" / "in use" / "has dependent".
	KindConflict Kind = "conflict"
	// KindLocalFatal covers device-discovery timeouts, mkfs failures, and
	// destructive operations refused because a device is in use.
	KindLocalFatal Kind = "local_fatal"
)

// Diagnostics carries the extra context a device-layer failure should
// surface so an operator can act without log scraping.
type Diagnostics struct {
	WWID           string
	ActiveSessions []string
	OnlineTargets  []string
	DebugCommands  []string
}

// Error is the structured error every layer boundary in this repository
// returns. Lower layers (arrayclient, sanfabric, device) populate Kind and
// Hint; only orchestrator decides whether a Kind is retried or surfaced.
type Error struct {
	Kind      Kind
	Operation string
	Volume    string
	Snapshot  string
	Host      string
	Protocol  string
	Hint      string
	Diag      *Diagnostics
	Err       error // underlying cause, if any
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", e.Operation)
	if e.Volume != "" {
		fmt.Fprintf(&b, " volume=%s", e.Volume)
	}
	if e.Snapshot != "" {
		fmt.Fprintf(&b, " snapshot=%s", e.Snapshot)
	}
	if e.Host != "" {
		fmt.Fprintf(&b, " host=%s", e.Host)
	}
	if e.Protocol != "" {
		fmt.Fprintf(&b, " protocol=%s", e.Protocol)
	}
	fmt.Fprintf(&b, ": %s", string(e.Kind))
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Hint != "" {
		fmt.Fprintf(&b, " (%s)", e.Hint)
	}
	if e.Diag != nil {
		if e.Diag.WWID != "" {
			fmt.Fprintf(&b, " wwid=%s", e.Diag.WWID)
		}
		if len(e.Diag.ActiveSessions) > 0 {
			fmt.Fprintf(&b, " active_sessions=%v", e.Diag.ActiveSessions)
		}
		if len(e.Diag.OnlineTargets) > 0 {
			fmt.Fprintf(&b, " online_targets=%v", e.Diag.OnlineTargets)
		}
		if len(e.Diag.DebugCommands) > 0 {
			fmt.Fprintf(&b, " try=%v", e.Diag.DebugCommands)
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed Error for the given operation.
func New(kind Kind, operation string, err error) *Error {
	return &Error{Kind: kind, Operation: operation, Err: err}
}

// WithVolume, WithSnapshot, WithHost, WithProtocol, WithHint and WithDiag are
// small builders so call sites can annotate an Error fluently without a
// dozen positional constructor arguments.
func (e *Error) WithVolume(name string) *Error     { e.Volume = name; return e }
func (e *Error) WithSnapshot(name string) *Error   { e.Snapshot = name; return e }
func (e *Error) WithHost(name string) *Error       { e.Host = name; return e }
func (e *Error) WithProtocol(name string) *Error   { e.Protocol = name; return e }
func (e *Error) WithHint(hint string) *Error       { e.Hint = hint; return e }
func (e *Error) WithDiag(d *Diagnostics) *Error    { e.Diag = d; return e }

// Is lets errors.Is(err, pureerr.KindNotFound) style checks work by matching
// on Kind rather than identity.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsNotFound is a convenience predicate used pervasively by orchestrator for
// idempotent-delete / existence-check call sites.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}

// IsConflict is the analogous convenience predicate for benign-vs-actionable
// conflict handling.
func IsConflict(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConflict
}

// Sentinel instances usable with errors.Is for simple kind checks, e.g.
// errors.Is(err, pureerr.KindNotFound) after KindOf would be unusual — these
// exist for call sites that only care about the kind and not the details.
var (
	ErrNotFound = &Error{Kind: KindNotFound, Operation: "generic"}
	ErrConflict = &Error{Kind: KindConflict, Operation: "generic"}
)
