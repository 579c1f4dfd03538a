package dnssd

import "strings"

// NormalizeServiceType canonicalizes a user-entered service type.
// Surrounding whitespace is trimmed and the ".local." suffix appended
// when missing (adding the trailing dot first if needed). The result
// is not validated as a well-formed DNS-SD type; malformed input is
// rejected later when a query is issued.
func NormalizeServiceType(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	switch {
	case strings.HasSuffix(s, ".local."):
		return s
	case strings.HasSuffix(s, ".local"):
		return s + "."
	case strings.HasSuffix(s, "."):
		return s + Domain
	default:
		return s + "." + Domain
	}
}

// ShortenTypeName reduces a full meta-query answer to the type itself
// ("<service>.<proto>.local."). Service enumeration responders may
// prepend subtype labels; the trailing three labels identify the type.
func ShortenTypeName(name string) string {
	trailing := strings.HasSuffix(name, ".")
	trimmed := strings.TrimSuffix(name, ".")
	labels := strings.Split(trimmed, ".")
	if len(labels) > 3 {
		labels = labels[len(labels)-3:]
	}
	short := strings.Join(labels, ".")
	if trailing {
		short += "."
	}
	return short
}

// ValidServiceType reports whether a normalized type looks like a
// browsable DNS-SD type: an underscore-prefixed service label followed
// by an underscore-prefixed protocol label under "local.".
func ValidServiceType(s string) bool {
	if !strings.HasSuffix(s, "."+Domain) && s != MetaQueryService {
		return false
	}
	rest := strings.TrimSuffix(s, "."+Domain)
	labels := strings.Split(rest, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
	}
	// The final two labels are <service>.<proto>; both begin with '_'.
	for _, l := range labels[len(labels)-2:] {
		if !strings.HasPrefix(l, "_") || len(l) < 2 {
			return false
		}
	}
	return true
}
