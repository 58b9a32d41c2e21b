package config

import (
	"fmt"
	"strings"
)

// DryRunMode decides whether sessions spawn real workers.
type DryRunMode string

const (
	// DryRunAuto runs real workers only when they are installed.
	DryRunAuto DryRunMode = "auto"
	DryRunOn   DryRunMode = "true"
	DryRunOff  DryRunMode = "false"
)

func ParseDryRunMode(value string) (DryRunMode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return DryRunAuto, nil
	case "1", "true", "yes", "on":
		return DryRunOn, nil
	case "0", "false", "no", "off":
		return DryRunOff, nil
	default:
		return DryRunAuto, fmt.Errorf("unknown dry-run mode %q", value)
	}
}

// Resolve reports whether sessions should be dry runs. available is only
// consulted in auto mode.
func (m DryRunMode) Resolve(available func() bool) bool {
	switch m {
	case DryRunOn:
		return true
	case DryRunOff:
		return false
	default:
		return available == nil || !available()
	}
}
