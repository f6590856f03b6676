// Package rank maps achievement points onto the shinobi rank ladder and
// the per-rank limits derived from it.
package rank

import (
	"strings"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

type Rank int

const (
	Genin Rank = iota
	Chunin
	Jonin
	Anbu
	Kage
)

// Point bands per rank. Kage is open-ended.
var bands = [...]struct {
	rank Rank
	min  int
	max  int
}{
	{Genin, 0, 49},
	{Chunin, 50, 119},
	{Jonin, 120, 179},
	{Anbu, 180, 204},
	{Kage, 205, int(^uint(0) >> 1)},
}

// MaxPoints is the total achievable achievement points in the system.
const MaxPoints = 288

// FromPoints resolves the rank a point total falls into.
func FromPoints(points int) Rank {
	for _, b := range bands {
		if points >= b.min && points <= b.max {
			return b.rank
		}
	}
	return Genin
}

// FromID resolves a rank from its string id, defaulting to Genin.
func FromID(id string) Rank {
	switch strings.ToLower(id) {
	case "genin":
		return Genin
	case "chunin":
		return Chunin
	case "jonin":
		return Jonin
	case "anbu":
		return Anbu
	case "kage":
		return Kage
	}
	return Genin
}

// ID returns the stable lowercase identifier used in group names.
func (r Rank) ID() string {
	switch r {
	case Chunin:
		return "chunin"
	case Jonin:
		return "jonin"
	case Anbu:
		return "anbu"
	case Kage:
		return "kage"
	}
	return "genin"
}

// DisplayName returns the plain name; Kage resolves to the village title
// when the village is known.
func (r Rank) DisplayName(v village.ID) string {
	if r == Kage && village.Valid(v) {
		return v.KageTitle()
	}
	switch r {
	case Chunin:
		return "Chunin"
	case Jonin:
		return "Jonin"
	case Anbu:
		return "Anbu"
	case Kage:
		return "Kage"
	}
	return "Genin"
}

// MinPoints returns the lower bound of the rank's point band.
func (r Rank) MinPoints() int {
	for _, b := range bands {
		if b.rank == r {
			return b.min
		}
	}
	return 0
}

// Next returns the following rank and false when already at Kage.
func (r Rank) Next() (Rank, bool) {
	if r >= Kage {
		return Kage, false
	}
	return r + 1, true
}

// HigherThan reports strict rank ordering.
func (r Rank) HigherThan(other Rank) bool { return r > other }

// Group returns the combined permission group name for a village rank,
// e.g. "leaf_jonin".
func (r Rank) Group(v village.ID) string {
	return string(v) + "_" + r.ID()
}

// ClaimLimit returns the chunk-claim allowance granted by the rank.
func (r Rank) ClaimLimit() int {
	switch r {
	case Chunin:
		return 4
	case Jonin:
		return 6
	case Anbu:
		return 8
	case Kage:
		return 75
	}
	return 2
}
