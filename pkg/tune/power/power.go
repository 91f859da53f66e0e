// Package power implements the fleet power budget monitor: resolving which
// devices hang off which shared power supply, deriving usable electrical
// metrics from incomplete PSU records, and raising deduplicated warnings at
// load and health thresholds.
//
// Device and PSU records come from independently-evolving backend endpoints
// with no single authoritative foreign key, so assignment resolution has to
// tolerate several naming schemes and let a user's manual correction
// override all of them.
package power

import (
	"strconv"
	"strings"

	"github.com/fleettune/fleettune/pkg/tune/types"
)

// Overrides is the persisted manual assignment map, keyed by device name.
// A present key always wins over provider-declared hints: a non-empty value
// pins the device to that PSU id, an empty value pins it to "standalone"
// (assigned to no PSU at all).
type Overrides map[string]string

// ResolveAssignments returns the devices attached to psu, in input order.
//
// Per device, first match wins:
//  1. Manual override (exact PSU id, or explicit standalone).
//  2. Any of the device's own PSU hints (flat id/name fields, nested
//     reference, status-scoped id) equal to psu.ID numeric-as-string or to
//     psu.Name case-insensitively.
//  3. The PSU's own declared membership list, matched case-insensitively
//     against device names.
//
// A device matching no rule for any PSU is simply unassigned; that is not
// an error.
func ResolveAssignments(psu types.PSU, devices []types.Device, overrides Overrides) []types.Device {
	members := psu.MemberNames()

	var assigned []types.Device
	for _, dev := range devices {
		if dev.Name == "" {
			continue
		}
		if target, ok := overrides[dev.Name]; ok {
			if idsEqual(target, psu.ID) {
				assigned = append(assigned, dev)
			}
			// An override, even "standalone", shadows all other rules.
			continue
		}
		if deviceClaims(dev, psu) || declaredMember(members, dev.Name) {
			assigned = append(assigned, dev)
		}
	}
	return assigned
}

// deviceClaims reports whether any of the device's PSU hints point at psu.
func deviceClaims(dev types.Device, psu types.PSU) bool {
	hints := []string{dev.PSUID, dev.PSUName, dev.StatusPSUID}
	if dev.PSURef != nil {
		hints = append(hints, dev.PSURef.ID, dev.PSURef.Name)
	}
	for _, h := range hints {
		if h == "" {
			continue
		}
		if idsEqual(h, psu.ID) || strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(psu.Name)) {
			return true
		}
	}
	return false
}

// declaredMember reports whether name appears in the PSU's membership list,
// case-insensitively.
func declaredMember(members []string, name string) bool {
	for _, m := range members {
		if strings.EqualFold(strings.TrimSpace(m), strings.TrimSpace(name)) {
			return true
		}
	}
	return false
}

// idsEqual compares two identifiers, treating numeric strings as equal when
// their values are ("07" matches "7"). Backends disagree on whether PSU ids
// are numbers or strings.
func idsEqual(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return a == b
	}
	if a == b {
		return true
	}
	na, errA := strconv.ParseFloat(a, 64)
	nb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && na == nb
}
