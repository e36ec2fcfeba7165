// Package device binds array-side WWIDs to local block devices: lookup
// across three fallback tiers, a protocol-parameterized wait loop, slave
// enumeration, in-use detection, and ordered teardown.
package device

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"purearray-pve-plugin/pureerr"
	"purearray-pve-plugin/sanfabric"
)

// pathAllowRe bounds every path this package returns to callers, so a WWID
// or device name that somehow contained shell metacharacters can never
// taint a later exec.Command argv built from our own output.
var pathAllowRe = regexp.MustCompile(`^/dev/[A-Za-z0-9/_.-]+$`)

func untaint(path string) (string, error) {
	if !pathAllowRe.MatchString(path) {
		return "", pureerr.New(pureerr.KindLocalFatal, "untaint", fmt.Errorf("rejected device path %q", path))
	}
	return path, nil
}

// Lookup resolves wwid to a local device path, trying multipathd's map
// table, then /dev/disk/by-id, then a sysfs vpd_pg80 scan. Every
// comparison is an exact, case-insensitive match — a substring match has
// been observed in the field to return a sibling LUN sharing a WWID prefix.
func Lookup(ctx context.Context, wwid string) (string, bool, error) {
	if path, ok, err := lookupMultipath(ctx, wwid); err != nil {
		return "", false, err
	} else if ok {
		return untaintOrErr(path)
	}

	if path, ok, err := lookupByID(wwid); err != nil {
		return "", false, err
	} else if ok {
		return untaintOrErr(path)
	}

	if path, ok, err := lookupSysfsVPD(wwid); err != nil {
		return "", false, err
	} else if ok {
		return untaintOrErr(path)
	}

	return "", false, nil
}

func untaintOrErr(path string) (string, bool, error) {
	p, err := untaint(path)
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

// lookupMultipath parses "multipathd show maps raw format \"%n %w\"" output
// (one "name wwid" pair per line) for an exact, case-insensitive WWID match.
func lookupMultipath(ctx context.Context, wwid string) (string, bool, error) {
	res, err := sanfabric.RunCommand(ctx, 10*time.Second, nil,
		"multipathd", "show", "maps", "raw", "format", "%n %w")
	if err != nil {
		return "", false, nil // multipathd unreachable: fall through to other tiers, don't fail the whole lookup
	}
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		name, mapWWID := fields[0], fields[1]
		if strings.EqualFold(mapWWID, wwid) {
			return "/dev/mapper/" + name, true, nil
		}
	}
	return "", false, nil
}

// lookupByID exact-matches the WWID against /dev/disk/by-id/{wwn,scsi}-*
// symlink suffixes.
func lookupByID(wwid string) (string, bool, error) {
	entries, err := filepath.Glob("/dev/disk/by-id/wwn-*")
	if err != nil {
		return "", false, err
	}
	scsiEntries, err := filepath.Glob("/dev/disk/by-id/scsi-*")
	if err != nil {
		return "", false, err
	}
	entries = append(entries, scsiEntries...)

	for _, entry := range entries {
		suffix := entry[strings.LastIndexByte(entry, '-')+1:]
		if strings.EqualFold(suffix, wwid) || strings.EqualFold(suffix, "3"+wwid) {
			resolved, err := filepath.EvalSymlinks(entry)
			if err != nil {
				continue
			}
			return resolved, true, nil
		}
	}
	return "", false, nil
}

// lookupSysfsVPD scans /sys/block/*/device/vpd_pg80 (SCSI VPD page 0x80,
// unit serial) for a device whose serial, once embedded in the standard
// Pure NAA WWID grammar, matches wwid exactly.
func lookupSysfsVPD(wwid string) (string, bool, error) {
	matches, err := filepath.Glob("/sys/block/*/device/vpd_pg80")
	if err != nil {
		return "", false, err
	}
	for _, path := range matches {
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		serial := strings.TrimSpace(strings.Map(func(r rune) rune {
			if r == 0 {
				return -1
			}
			return r
		}, string(b)))
		if serial == "" {
			continue
		}
		candidate := "3624a9370" + serial
		if strings.EqualFold(candidate, wwid) {
			blockName := strings.Split(path, "/")[3]
			return "/dev/" + blockName, true, nil
		}
	}
	return "", false, nil
}

// Slaves lists the underlying SCSI block devices backing a multipath
// aggregate at /dev/mapper/name, read from /sys/block/name/slaves.
func Slaves(mapperName string) ([]string, error) {
	entries, err := os.ReadDir("/sys/block/" + mapperName + "/slaves")
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out, nil
}
