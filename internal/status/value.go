// Package status defines the readings exchanged between pollers and the aggregator.
package status

import (
	"fmt"
	"strings"
)

// Value is the reduced state reported by a status source.
type Value int

const (
	ValueUnknown Value = iota
	ValueNominal
	ValueWarning
	ValueCritical
	ValueInactive
	ValueActive
)

var valueNames = map[Value]string{
	ValueUnknown:  "unknown",
	ValueNominal:  "nominal",
	ValueWarning:  "warning",
	ValueCritical: "critical",
	ValueInactive: "inactive",
	ValueActive:   "active",
}

// String returns the lower-case name of the value.
func (v Value) String() string {
	if name, ok := valueNames[v]; ok {
		return name
	}
	return fmt.Sprintf("value(%d)", int(v))
}

// ParseValue converts a value name into a Value.
// Common aliases used by status pages and service managers are accepted.
func ParseValue(s string) (Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unknown":
		return ValueUnknown, nil
	case "nominal", "normal", "ok", "good", "green":
		return ValueNominal, nil
	case "warning", "warn", "degraded", "yellow":
		return ValueWarning, nil
	case "critical", "error", "crit", "fail", "failed", "red":
		return ValueCritical, nil
	case "inactive", "idle", "stopped", "stalled":
		return ValueInactive, nil
	case "active", "running", "recording":
		return ValueActive, nil
	default:
		return ValueUnknown, fmt.Errorf("unknown status value %q", s)
	}
}

// Role names the subsystem a source speaks for.
type Role string

const (
	RoleStation  Role = "station"
	RoleRecorder Role = "recorder"
	RoleCamera   Role = "camera"
)

// Roles returns every known role.
func Roles() []Role {
	return []Role{RoleStation, RoleRecorder, RoleCamera}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStation, RoleRecorder, RoleCamera:
		return true
	}
	return false
}
