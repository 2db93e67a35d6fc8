package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dlclark/regexp2"
)

// Flavor selects the regular expression engine a pattern is compiled with.
type Flavor string

const (
	// FlavorRE2 uses the standard library engine (linear time, no lookaround).
	FlavorRE2 Flavor = "re2"

	// FlavorRegexp2 uses a backtracking engine supporting lookaround and
	// backreferences, for patterns carried over from Perl-style catalogs.
	FlavorRegexp2 Flavor = "regexp2"
)

// ParseFlavor validates a flavor name. Empty means FlavorRE2.
func ParseFlavor(s string) (Flavor, error) {
	switch Flavor(s) {
	case "", FlavorRE2:
		return FlavorRE2, nil
	case FlavorRegexp2:
		return FlavorRegexp2, nil
	}
	return "", fmt.Errorf("unknown pattern flavor %q: must be %q or %q", s, FlavorRE2, FlavorRegexp2)
}

// Pattern is a compiled text-matching rule.
//
// The source form /body/flags denotes a regular expression searched anywhere
// in the text. Any other source is a literal substring.
type Pattern struct {
	source  string
	flavor  Flavor
	literal string
	re      *regexp.Regexp
	bt      *regexp2.Regexp
}

// CompilePattern compiles src with the given flavor.
//
// Supported flags: m (dot matches newline), i (ignore case), x (ignore
// pattern whitespace, regexp2 only). The encoding flags e, n, s and u are
// accepted and ignored.
func CompilePattern(src string, flavor Flavor) (*Pattern, error) {
	if flavor == "" {
		flavor = FlavorRE2
	}
	p := &Pattern{source: src, flavor: flavor}

	body, flags, isRegex := splitRegexLiteral(src)
	if !isRegex {
		p.literal = src
		return p, nil
	}

	var dotAll, ignoreCase, extended bool
	for _, f := range flags {
		switch f {
		case 'm':
			dotAll = true
		case 'i':
			ignoreCase = true
		case 'x':
			extended = true
		case 'e', 'n', 's', 'u':
		default:
			return nil, fmt.Errorf("pattern %s: unknown flag %q", src, f)
		}
	}

	switch flavor {
	case FlavorRE2:
		if extended {
			return nil, fmt.Errorf("pattern %s: flag x requires the %s flavor", src, FlavorRegexp2)
		}
		// ^ and $ always match at line boundaries.
		prefix := "m"
		if dotAll {
			prefix += "s"
		}
		if ignoreCase {
			prefix += "i"
		}
		body = "(?" + prefix + ")" + body
		re, err := regexp.Compile(body)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", src, err)
		}
		p.re = re
	case FlavorRegexp2:
		opts := regexp2.RegexOptions(regexp2.Multiline)
		if dotAll {
			opts |= regexp2.Singleline
		}
		if ignoreCase {
			opts |= regexp2.IgnoreCase
		}
		if extended {
			opts |= regexp2.IgnorePatternWhitespace
		}
		re, err := regexp2.Compile(body, opts)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", src, err)
		}
		p.bt = re
	default:
		return nil, fmt.Errorf("pattern %s: unknown flavor %q", src, flavor)
	}
	return p, nil
}

// MustCompilePattern is like CompilePattern but panics on error.
func MustCompilePattern(src string, flavor Flavor) *Pattern {
	p, err := CompilePattern(src, flavor)
	if err != nil {
		panic(err)
	}
	return p
}

// Re returns a re2 pattern for src. Shorthand for literal catalogs.
func Re(src string) *Pattern {
	return MustCompilePattern(src, FlavorRE2)
}

// splitRegexLiteral splits "/body/flags". The body may contain slashes; the
// last slash terminates it.
func splitRegexLiteral(src string) (body, flags string, ok bool) {
	if len(src) < 2 || src[0] != '/' {
		return "", "", false
	}
	end := strings.LastIndexByte(src, '/')
	if end == 0 {
		return "", "", false
	}
	return src[1:end], src[end+1:], true
}

// Match reports whether text satisfies the pattern.
func (p *Pattern) Match(text string) bool {
	switch {
	case p.re != nil:
		return p.re.MatchString(text)
	case p.bt != nil:
		ok, err := p.bt.MatchString(text)
		return err == nil && ok
	default:
		return strings.Contains(text, p.literal)
	}
}

// Flavor returns the engine the pattern was compiled for.
func (p *Pattern) Flavor() Flavor {
	return p.flavor
}

// String returns the source form.
func (p *Pattern) String() string {
	return p.source
}
