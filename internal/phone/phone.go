// Package phone canonicalises regional mobile numbers into the international
// form the mobile-money gateways expect (country code, no plus sign).
package phone

import (
	"regexp"
	"strings"
)

type Region string

const (
	Kenya   Region = "KE"
	Somalia Region = "SO"
)

type pattern struct {
	callingCode string
	local       *regexp.Regexp
	plus        *regexp.Regexp
	bare        *regexp.Regexp
}

var (
	patterns = map[Region]pattern{
		Kenya: {
			callingCode: "254",
			local:       regexp.MustCompile(`^07\d{8}$`),
			plus:        regexp.MustCompile(`^\+2547\d{8}$`),
			bare:        regexp.MustCompile(`^2547\d{8}$`),
		},
		Somalia: {
			callingCode: "252",
			local:       regexp.MustCompile(`^06\d{8}$`),
			plus:        regexp.MustCompile(`^\+2526\d{8}$`),
			bare:        regexp.MustCompile(`^2526\d{8}$`),
		},
	}

	whitespace = regexp.MustCompile(`\s+`)
)

// Normalize strips whitespace and rewrites a number for the region into its
// canonical international form. Numbers matching none of the region's shapes
// are returned sanitised but otherwise untouched; the gateway rejects them.
func Normalize(raw string, region Region) string {
	sanitized := whitespace.ReplaceAllString(raw, "")

	p, ok := patterns[region]
	if !ok {
		return sanitized
	}

	switch {
	case p.local.MatchString(sanitized):
		return p.callingCode + sanitized[1:]
	case p.plus.MatchString(sanitized):
		return strings.TrimPrefix(sanitized, "+")
	case p.bare.MatchString(sanitized):
		return sanitized
	}
	return sanitized
}
