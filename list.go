package gnomecache

import (
	"sort"
	"strings"
)

// ListSeparator joins list-valued columns in the entity store.
const ListSeparator = "|"

// JoinList encodes a list column. Every element is followed by the separator,
// so ["a", "b"] becomes "a|b|".
func JoinList(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString(item)
		sb.WriteString(ListSeparator)
	}
	return sb.String()
}

// SplitList decodes a list column. Empty elements are dropped and the result
// is sorted lexicographically, so the original order is not preserved.
func SplitList(s string) []string {
	parts := strings.Split(s, ListSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
