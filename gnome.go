// Package gnomecache holds the entity model shared by the gnome population
// cache: the Gnome record, its list column codec, photo naming and the error
// kinds reported by every layer.
package gnomecache

// AbsentID marks the sentinel gnome returned when a lookup has no match.
const AbsentID = -1

// Gender labels derived from hair colour. Display only.
const (
	GenderFemale = "♀ FEMALE"
	GenderMale   = "♂ MALE"
)

// Gnome is a single member of the population.
type Gnome struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	ThumbnailURL string   `json:"thumbnail"`
	Age          int      `json:"age"`
	Weight       int      `json:"weight"`
	Height       int      `json:"height"`
	HairColor    string   `json:"hair_color"`
	Professions  []string `json:"professions"`
	Friends      []string `json:"friends"`
}

// Absent returns the canonical "no such gnome" value. It is never persisted.
func Absent() Gnome {
	return Gnome{ID: AbsentID}
}

// IsAbsent reports whether g is the sentinel returned by Absent.
func (g Gnome) IsAbsent() bool {
	return g.ID == AbsentID
}

// Gender returns a display label derived from the hair colour.
func (g Gnome) Gender() string {
	if g.HairColor == "Pink" {
		return GenderFemale
	}
	return GenderMale
}

// FriendCount returns the number of listed friends.
func (g Gnome) FriendCount() int {
	return len(g.Friends)
}
