package filter

import (
	"slices"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// Facets summarises a population: the span of each numeric attribute and
// the distinct hair colours and professions present.
type Facets struct {
	Count       int      `json:"count"`
	Age         Range    `json:"age"`
	Height      Range    `json:"height"`
	Weight      Range    `json:"weight"`
	Friends     Range    `json:"friends"`
	HairColors  []string `json:"hair_colors"`
	Professions []string `json:"professions"`
}

// Derive computes the facets of gs. It returns ErrEmpty for an empty
// population.
func Derive(gs []gnomecache.Gnome) (Facets, error) {
	if len(gs) == 0 {
		return Facets{}, ErrEmpty
	}

	f := Facets{Count: len(gs)}
	// gs is non-empty so the errors below cannot occur.
	f.Age, _ = DeriveRange(gs, Age)
	f.Height, _ = DeriveRange(gs, Height)
	f.Weight, _ = DeriveRange(gs, Weight)
	f.Friends, _ = DeriveRange(gs, FriendCount)

	hair := map[string]struct{}{}
	prof := map[string]struct{}{}
	for _, g := range gs {
		hair[g.HairColor] = struct{}{}
		for _, p := range g.Professions {
			prof[p] = struct{}{}
		}
	}
	f.HairColors = sortedKeys(hair)
	f.Professions = sortedKeys(prof)
	return f, nil
}

// DefaultCriteria returns criteria that match the whole population f was
// derived from.
func DefaultCriteria(f Facets) Criteria {
	return Criteria{
		Age:     f.Age,
		Height:  f.Height,
		Weight:  f.Weight,
		Friends: f.Friends,
	}
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
