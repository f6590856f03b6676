// Package village defines the five shinobi villages players can belong to.
package village

// ID is a stable village identifier used in permission group names and
// persisted player records.
type ID string

const (
	Leaf  ID = "leaf"
	Sand  ID = "sand"
	Mist  ID = "mist"
	Stone ID = "stone"
	Cloud ID = "cloud"
)

// All lists every village in declaration order.
func All() []ID {
	return []ID{Leaf, Sand, Mist, Stone, Cloud}
}

// Valid reports whether id names a known village.
func Valid(id ID) bool {
	switch id {
	case Leaf, Sand, Mist, Stone, Cloud:
		return true
	}
	return false
}

// DisplayName returns the short human name of the village.
func (id ID) DisplayName() string {
	switch id {
	case Leaf:
		return "Leaf"
	case Sand:
		return "Sand"
	case Mist:
		return "Mist"
	case Stone:
		return "Stone"
	case Cloud:
		return "Cloud"
	}
	return string(id)
}

// KageTitle returns the village-specific title of its leader.
func (id ID) KageTitle() string {
	switch id {
	case Leaf:
		return "Hokage"
	case Sand:
		return "Kazekage"
	case Mist:
		return "Mizukage"
	case Stone:
		return "Tsuchikage"
	case Cloud:
		return "Raikage"
	}
	return "Kage"
}

// KageGroup returns the permission group name of the village's Kage.
func (id ID) KageGroup() string {
	return string(id) + "_kage"
}
