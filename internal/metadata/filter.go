// Copyright (c) 2023 The Grafana Zabbix Datasource Authors.
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"fmt"
	"regexp"
	"strings"
)

// Filter matches entity names either exactly or by a regular
// expression. The kind is decided once at parse time: a string
// delimited as /pattern/flags is a pattern, anything else is an exact
// match. An empty string or "*" matches everything.
type Filter struct {
	raw string
	re  *regexp.Regexp
}

var filterPattern = regexp.MustCompile(`^/(.*)/([gmsi]*)$`)

// ParseFilter classifies a filter string. A malformed regular
// expression is a configuration error, not a crash.
func ParseFilter(text string) (Filter, error) {
	m := filterPattern.FindStringSubmatch(text)
	if m == nil {
		return Filter{raw: text}, nil
	}

	pattern := m[1]
	// translate the supported JS-style flags; "g" and "m" have no
	// bearing on a full-name match
	if strings.Contains(m[2], "i") {
		pattern = "(?i)" + pattern
	}
	if strings.Contains(m[2], "s") {
		pattern = "(?s)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Filter{}, fmt.Errorf("invalid regex filter %q: %w", text, err)
	}
	return Filter{raw: text, re: re}, nil
}

// MustFilter is a test helper for filters known to be well-formed.
func MustFilter(text string) Filter {
	f, err := ParseFilter(text)
	if err != nil {
		panic(err)
	}
	return f
}

// MatchAll reports whether the filter matches every name.
func (f Filter) MatchAll() bool {
	return f.re == nil && (f.raw == "" || f.raw == "*")
}

// IsPattern reports whether the filter is a regular expression.
func (f Filter) IsPattern() bool {
	return f.re != nil
}

// Empty reports whether no filter text was supplied at all.
func (f Filter) Empty() bool {
	return f.raw == ""
}

// Match tests an entity name against the filter.
func (f Filter) Match(name string) bool {
	if f.MatchAll() {
		return true
	}
	if f.re != nil {
		return f.re.MatchString(name)
	}
	return name == f.raw
}

func (f Filter) String() string {
	return f.raw
}

var legacyGlobChars = regexp.MustCompile(`[*{]`)

// ParseLegacyFilter accepts the older suggest syntax in addition to
// the /regex/ one: "*" wildcards anywhere in the text and {a,b,c}
// literal sets. Both are rewritten into an anchored regular
// expression.
func ParseLegacyFilter(text string) (Filter, error) {
	if filterPattern.MatchString(text) || !legacyGlobChars.MatchString(text) {
		return ParseFilter(text)
	}

	var b strings.Builder
	b.WriteString("^")
	rest := text
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "*"):
			b.WriteString(".*")
			rest = rest[1:]
		case strings.HasPrefix(rest, "{"):
			end := strings.Index(rest, "}")
			if end < 0 {
				return Filter{}, fmt.Errorf("invalid filter %q: unclosed literal set", text)
			}
			alternatives := strings.Split(rest[1:end], ",")
			for i, a := range alternatives {
				alternatives[i] = regexp.QuoteMeta(a)
			}
			b.WriteString("(" + strings.Join(alternatives, "|") + ")")
			rest = rest[end+1:]
		default:
			b.WriteString(regexp.QuoteMeta(rest[:1]))
			rest = rest[1:]
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return Filter{}, fmt.Errorf("invalid filter %q: %w", text, err)
	}
	return Filter{raw: text, re: re}, nil
}
