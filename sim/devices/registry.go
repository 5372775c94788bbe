package devices

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ev3sim/ev3sim/sim"
)

// ErrDeviceKindNotFound is returned by New for unregistered kinds.
var ErrDeviceKindNotFound = errors.New("device kind not found")

// Spec describes one device to attach to a robot.
type Spec struct {
	Kind     string             // registry key, e.g. "LargeMotor"
	Port     string             // "outA".."outD", "in1".."in4"
	Position mgl64.Vec2         // mount offset in body coordinates
	Rotation float64            // mount heading relative to the body, radians
	Options  map[string]float64 // kind-specific tuning
}

func (s Spec) option(name string, def float64) float64 {
	if v, ok := s.Options[name]; ok {
		return v
	}
	return def
}

// Factory builds a device from its spec.
type Factory func(spec Spec, env Env) (sim.Device, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a device kind. Panics on an empty name or a duplicate.
func Register(kind string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if kind == "" || f == nil {
		panic("devices.Register: empty kind or nil factory")
	}
	if _, dup := registry[kind]; dup {
		panic(fmt.Sprintf("devices.Register: kind %q registered twice", kind))
	}
	registry[kind] = f
}

// New builds a device of the registered kind.
func New(spec Spec, env Env) (sim.Device, error) {
	registryMu.RLock()
	f, ok := registry[spec.Kind]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrDeviceKindNotFound, spec.Kind, Kinds())
	}
	d, err := f(spec, env)
	if err != nil {
		return nil, fmt.Errorf("%s at %s: %w", spec.Kind, spec.Port, err)
	}
	return d, nil
}

// Kinds lists registered kinds in sorted order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsKind reports whether kind is registered.
func IsKind(kind string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[kind]
	return ok
}
