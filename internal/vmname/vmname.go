// Package vmname maps a positive VM number onto its on-disk/runtime name
// <base>-<n>, validating the configured base identifier.
package vmname

import (
	"fmt"
	"regexp"
)

// DefaultBase is used whenever the configured base fails validation.
const DefaultBase = "clawbox"

const maxBaseLen = 32

var baseRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidBase reports whether base is a valid base identifier: alphanumerics,
// '-', '_', length <= 32, non-empty.
func ValidBase(base string) bool {
	if base == "" || len(base) > maxBaseLen {
		return false
	}
	return baseRE.MatchString(base)
}

// ResolveBase returns base if valid, else DefaultBase.
func ResolveBase(base string) string {
	if ValidBase(base) {
		return base
	}
	return DefaultBase
}

// Name returns the VM name for the given base and number. n must be >= 1;
// callers are expected to have already validated n (see ValidNumber).
func Name(base string, n int) string {
	return fmt.Sprintf("%s-%d", ResolveBase(base), n)
}

// ValidNumber reports whether n is an acceptable VM number.
func ValidNumber(n int) bool {
	return n >= 1
}

var numberSuffixRE = regexp.MustCompile(`-([0-9]+)$`)

// ParseNumber extracts the trailing -<n> suffix from a VM name produced by
// Name, returning ok=false if name doesn't match that shape.
func ParseNumber(name string) (n int, ok bool) {
	m := numberSuffixRE.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(m[1], "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}
