package catalog

import (
	"regexp"
	"strings"
)

// Selection describes which catalog entries apply to one subject invocation.
type Selection struct {
	// NamePrefixes restricts ids to those starting with one of the prefixes.
	// Empty selects every id.
	NamePrefixes []string

	// ExcludedTags drops entries carrying any of these tags.
	ExcludedTags []string

	Results ResultFilter
}

// Select returns the subset of c relevant to one invocation.
//
// An entry is kept iff its id starts with one of the name prefixes, none of
// its tags equals an excluded tag, and its expected result passes the filter.
// Prefixes and tags are literal strings.
func Select(c *Catalog, sel Selection) *Catalog {
	nameRE := alternation("^(", sel.NamePrefixes, ")")
	tagRE := alternation("^(", sel.ExcludedTags, ")$")

	subset := &Catalog{entries: make(map[string]*ExpectedOutcome)}
	for _, id := range c.order {
		o := c.entries[id]
		if !nameRE.MatchString(id) {
			continue
		}
		if len(sel.ExcludedTags) > 0 && hasMatchingTag(o.Tags, tagRE) {
			continue
		}
		if !sel.Results.Accepts(o.Result) {
			continue
		}
		subset.entries[id] = o
		subset.order = append(subset.order, id)
	}
	return subset
}

func alternation(open string, parts []string, close string) *regexp.Regexp {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(open + strings.Join(quoted, "|") + close)
}

func hasMatchingTag(tags []string, re *regexp.Regexp) bool {
	for _, t := range tags {
		if re.MatchString(t) {
			return true
		}
	}
	return false
}
