package gnomecache

import (
	"net/url"
	"path"
	"strings"
)

// PhotoName derives a deterministic file name for a photo source URL. The
// last path segment is kept for readability and prefixed with a short hash
// of the full source so that two URLs ending in the same segment do not
// share a cache entry.
func PhotoName(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	base := sanitizeName(path.Base(p))
	prefix := HashString(src).ShortString()
	if base == "" {
		return prefix
	}
	return prefix + "-" + base
}

// PhotoFileKey returns the backend key a cached photo is written under.
func PhotoFileKey(src string) string {
	return "photos/" + HashString(src).Dir() + "/cached-" + PhotoName(src)
}

func sanitizeName(s string) string {
	if s == "." || s == "/" {
		return ""
	}
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return strings.Trim(sb.String(), ".")
}
