package config

import "regexp"

// ipv4Re matches the shape of a dotted IPv4 literal. The regex itself does
// not bounds-check each octet against 255; validateSchema checks each
// captured octet separately.
var ipv4Re = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)

// validateSchema enforces the two hard rules: harness.interface must be a
// dotted IPv4 literal, harness.port must be >= 1024. Every other section is
// structurally optional.
func validateSchema(obj *Resolved) error {
	if !ipv4Re.MatchString(obj.Harness.Interface) {
		return newConfigError("harness.interface is not a dotted IPv4 literal: "+obj.Harness.Interface, nil)
	}
	for _, octetStr := range ipv4Re.FindStringSubmatch(obj.Harness.Interface)[1:] {
		if n := atoiSmall(octetStr); n > 255 {
			return newConfigError("harness.interface octet out of range: "+octetStr, nil)
		}
	}
	if obj.Harness.Port < 1024 {
		return newConfigError("harness.port must be >= 1024", nil)
	}
	return nil
}

func atoiSmall(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}
