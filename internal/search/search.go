// Package search matches a user query against span attributes and built-in
// span fields, producing highlight ranges for the viewer. Matching is
// substring-based over normalized text; it is not ranked retrieval.
package search

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultLimit caps how many matches are returned for display. The full
// match total is always computed so the viewer can show "N of M".
const DefaultLimit = 50

// Attr is one span attribute as displayed, values already stringified.
type Attr struct {
	Key   string
	Value string
}

// SpanFields is the searchable projection of one span: its built-in fields
// plus its ordered attributes.
type SpanFields struct {
	SpanID  string
	Name    string
	Kind    string
	Service string
	Title   string
	Attrs   []Attr
}

// Match is one query hit against one field of one span. Ranges are
// inclusive [start, end] character (rune) offsets into Value, which is the
// displayed string: bare for built-in fields, "key: value" for attributes.
type Match struct {
	SpanID string   `json:"spanId"`
	Key    string   `json:"key"`
	Value  string   `json:"value"`
	Title  string   `json:"title"`
	Ranges [][2]int `json:"ranges"`
}

// Result holds the capped match list plus the uncapped total.
type Result struct {
	Matches []Match
	Total   int
}

// Truncated reports whether the display cap dropped matches.
func (r Result) Truncated() bool { return r.Total > len(r.Matches) }

// Summary renders the "N of M" indicator, e.g. "50 of 123 matches".
func (r Result) Summary() string {
	if r.Truncated() {
		return fmt.Sprintf("%d of %d matches", len(r.Matches), r.Total)
	}
	return fmt.Sprintf("%d matches", r.Total)
}

// NormalizeKey rewrites an attribute key for matching: '.' and '_' become
// spaces, everything lowercased.
func NormalizeKey(key string) string {
	key = strings.ReplaceAll(key, ".", " ")
	key = strings.ReplaceAll(key, "_", " ")
	return strings.ToLower(key)
}

// NormalizeQuery strips ':' characters, collapses whitespace runs to single
// spaces, trims, and lowercases.
func NormalizeQuery(query string) string {
	query = strings.ReplaceAll(query, ":", "")
	query = strings.Join(strings.Fields(query), " ")
	return strings.ToLower(query)
}

// builtinFields lists the span fields searched alongside attributes, in
// display order. They render as bare values.
func builtinFields(s SpanFields) []Attr {
	return []Attr{
		{Key: "kind", Value: s.Kind},
		{Key: "name", Value: s.Name},
		{Key: "title", Value: s.Title},
		{Key: "service", Value: s.Service},
	}
}

// Find matches query against every span's built-in fields and attributes.
// limit caps Matches (<= 0 means DefaultLimit); Total always counts the full
// match set. An empty query matches nothing.
func Find(spans []SpanFields, query string, limit int) Result {
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := []rune(NormalizeQuery(query))
	if len(q) == 0 {
		return Result{}
	}

	var result Result
	for _, span := range spans {
		for _, f := range builtinFields(span) {
			if f.Value == "" {
				continue
			}
			ranges := normalizeForMatch(f.Value, 0).find(q)
			result.add(span, f.Key, f.Value, ranges, limit)
		}

		for _, a := range span.Attrs {
			display := a.Key + ": " + a.Value
			ranges := normalizeForMatch(display, len([]rune(a.Key))).find(q)
			result.add(span, a.Key, display, ranges, limit)
		}
	}

	return result
}

func (r *Result) add(span SpanFields, key, display string, ranges [][2]int, limit int) {
	if len(ranges) == 0 {
		return
	}
	r.Total++
	if len(r.Matches) >= limit {
		return
	}
	r.Matches = append(r.Matches, Match{
		SpanID: span.SpanID,
		Key:    key,
		Value:  display,
		Title:  span.Title,
		Ranges: ranges,
	})
}

// normText is a displayed string normalized the same way queries are, with a
// map from each normalized rune back to its rune index in the displayed
// string, so highlight ranges land on the original text.
type normText struct {
	runes []rune
	orig  []int
}

// normalizeForMatch applies the matching pipeline to a displayed string: the
// first keyRunes runes get the key treatment ('.' and '_' become spaces),
// everything is lowercased, ':' is stripped, and whitespace runs collapse to
// one space — mirroring NormalizeQuery so "key: value" queries line up.
func normalizeForMatch(display string, keyRunes int) normText {
	src := []rune(display)
	n := normText{}
	for i, r := range src {
		if i < keyRunes && (r == '.' || r == '_') {
			r = ' '
		}
		r = unicode.ToLower(r)

		if r == ':' {
			continue
		}
		if unicode.IsSpace(r) {
			// Collapse runs; drop leading whitespace entirely.
			if len(n.runes) == 0 || n.runes[len(n.runes)-1] == ' ' {
				continue
			}
			n.runes = append(n.runes, ' ')
			n.orig = append(n.orig, i)
			continue
		}
		n.runes = append(n.runes, r)
		n.orig = append(n.orig, i)
	}
	// Trailing collapsed space never matches a trimmed query start/end
	// meaningfully; drop it for symmetry with NormalizeQuery.
	if len(n.runes) > 0 && n.runes[len(n.runes)-1] == ' ' {
		n.runes = n.runes[:len(n.runes)-1]
		n.orig = n.orig[:len(n.orig)-1]
	}
	return n
}

// find locates every non-overlapping occurrence of q and maps each hit back
// to an inclusive rune range in the displayed string.
func (n normText) find(q []rune) [][2]int {
	var ranges [][2]int
	for i := 0; i+len(q) <= len(n.runes); {
		if runesEqual(n.runes[i:i+len(q)], q) {
			ranges = append(ranges, [2]int{n.orig[i], n.orig[i+len(q)-1]})
			i += len(q)
			continue
		}
		i++
	}
	return ranges
}

func runesEqual(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
