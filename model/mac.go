package model

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

// canonicalMACPattern matches the canonical form: six uppercase hex octets
// separated by colons. This is the only form records are allowed to carry.
var canonicalMACPattern = regexp.MustCompile(`^([0-9A-F]{2}:){5}[0-9A-F]{2}$`)

// IsCanonicalMAC reports whether s is already in canonical form.
func IsCanonicalMAC(s string) bool {
	return canonicalMACPattern.MatchString(s)
}

// NormalizeMAC converts a hardware address into canonical colon-separated
// uppercase hex. Parsing is lenient: ":", "-" and "." separators are stripped
// wherever they appear, and whatever remains must be exactly twelve hex
// digits. Normalization is idempotent: canonical input comes back unchanged.
func NormalizeMAC(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.Wrap(ErrInvalidRequest, "empty MAC address")
	}

	hex := strings.ToUpper(s)
	for _, sep := range []string{":", "-", "."} {
		hex = strings.ReplaceAll(hex, sep, "")
	}

	if len(hex) != 12 {
		return "", errors.Wrapf(ErrInvalidRequest, "malformed MAC address %q", raw)
	}
	for _, c := range hex {
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return "", errors.Wrapf(ErrInvalidRequest, "malformed MAC address %q", raw)
		}
	}

	var b strings.Builder
	b.Grow(17)
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(hex[i : i+2])
	}
	return b.String(), nil
}
