// Package filter derives numeric ranges from a loaded population and
// narrows it with search and multi-criteria filters. Nothing here does I/O
// and no function modifies its input slice.
package filter

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// ErrEmpty is returned when a range is derived from an empty population.
var ErrEmpty = errors.New("empty population")

// Range is an inclusive integer interval.
type Range struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Contains reports whether v lies within r, bounds included.
func (r Range) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// ParseRange parses "lo-hi" or a single value "n" (meaning n-n).
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	lo, hi, found := strings.Cut(s, "-")
	if !found {
		hi = lo
	}
	minV, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, fmt.Errorf("parsing range %q: %w", s, err)
	}
	maxV, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return Range{}, fmt.Errorf("parsing range %q: %w", s, err)
	}
	if minV > maxV {
		return Range{}, fmt.Errorf("parsing range %q: min exceeds max", s)
	}
	return Range{Min: minV, Max: maxV}, nil
}

// Selector extracts the numeric attribute a range is derived over.
type Selector func(gnomecache.Gnome) int

// Selectors for the four filterable attributes.
var (
	Age         Selector = func(g gnomecache.Gnome) int { return g.Age }
	Height      Selector = func(g gnomecache.Gnome) int { return g.Height }
	Weight      Selector = func(g gnomecache.Gnome) int { return g.Weight }
	FriendCount Selector = func(g gnomecache.Gnome) int { return g.FriendCount() }
)

// DeriveRange sorts a copy of gs by sel and returns the selector values of
// the first and last element.
func DeriveRange(gs []gnomecache.Gnome, sel Selector) (Range, error) {
	if len(gs) == 0 {
		return Range{}, ErrEmpty
	}
	sorted := slices.Clone(gs)
	slices.SortStableFunc(sorted, func(a, b gnomecache.Gnome) int {
		return cmp.Compare(sel(a), sel(b))
	})
	return Range{Min: sel(sorted[0]), Max: sel(sorted[len(sorted)-1])}, nil
}

// Criteria is a conjunction of predicates. Every range must contain the
// gnome's value. An empty HairColors or Professions set places no
// constraint on that attribute.
type Criteria struct {
	Age         Range    `json:"age"`
	Height      Range    `json:"height"`
	Weight      Range    `json:"weight"`
	Friends     Range    `json:"friends"`
	HairColors  []string `json:"hair_colors"`
	Professions []string `json:"professions"`
}

// Match reports whether g satisfies every predicate in c.
func (c Criteria) Match(g gnomecache.Gnome) bool {
	if !c.Age.Contains(g.Age) ||
		!c.Height.Contains(g.Height) ||
		!c.Weight.Contains(g.Weight) ||
		!c.Friends.Contains(g.FriendCount()) {
		return false
	}
	if len(c.HairColors) > 0 && !slices.Contains(c.HairColors, g.HairColor) {
		return false
	}
	for _, p := range c.Professions {
		if !slices.Contains(g.Professions, p) {
			return false
		}
	}
	return true
}

// Filter returns the gnomes matching c, sorted by name.
func Filter(gs []gnomecache.Gnome, c Criteria) []gnomecache.Gnome {
	out := make([]gnomecache.Gnome, 0, len(gs))
	for _, g := range gs {
		if c.Match(g) {
			out = append(out, g)
		}
	}
	return SortByName(out)
}

// Search returns the gnomes whose name contains q, ignoring case, in input
// order. A blank query returns gs unchanged.
func Search(gs []gnomecache.Gnome, q string) []gnomecache.Gnome {
	if strings.TrimSpace(q) == "" {
		return gs
	}
	needle := strings.ToLower(q)
	out := make([]gnomecache.Gnome, 0)
	for _, g := range gs {
		if strings.Contains(strings.ToLower(g.Name), needle) {
			out = append(out, g)
		}
	}
	return out
}

// SortByName returns a copy of gs ordered by name, comparing bytes. Equal
// names keep their relative order.
func SortByName(gs []gnomecache.Gnome) []gnomecache.Gnome {
	sorted := slices.Clone(gs)
	slices.SortStableFunc(sorted, func(a, b gnomecache.Gnome) int {
		return strings.Compare(a.Name, b.Name)
	})
	return sorted
}
