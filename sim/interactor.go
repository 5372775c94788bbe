package sim

import "sort"

// Sort keys fixing the relative tick order of interactors. Lower ticks first.
const (
	SortOrderDevice   = 100
	SortOrderRobot    = 200
	SortOrderGameMode = 300
	SortOrderUI       = 400
)

// Interactor is the unit of per-tick logic: robots, game modes, tools.
type Interactor interface {
	// StartUp runs once before the first tick.
	StartUp() error
	// Tick advances the interactor; returning done removes it at the end of the cycle.
	Tick(tick int64) (done bool, err error)
	// AfterPhysics runs after the physics step of every cycle.
	AfterPhysics() error
	// HandleEvent receives render-cadence input events.
	HandleEvent(ev Event) error
	// TearDown runs once when the interactor leaves the active set.
	TearDown() error
	// SortKey orders interactors; see SortOrder* constants.
	SortKey() int
}

// BaseInteractor provides no-op implementations to embed.
type BaseInteractor struct{}

func (BaseInteractor) StartUp() error { return nil }
func (BaseInteractor) Tick(int64) (bool, error) { return false, nil }
func (BaseInteractor) AfterPhysics() error { return nil }
func (BaseInteractor) HandleEvent(Event) error { return nil }
func (BaseInteractor) TearDown() error { return nil }
func (BaseInteractor) SortKey() int { return SortOrderGameMode }

// sortInteractors orders by SortKey; the stable sort keeps registration
// order for equal keys, so the order is total and resolved once.
func sortInteractors(list []Interactor) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].SortKey() < list[j].SortKey()
	})
}
