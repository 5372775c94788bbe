// Package robot assembles a physics body and its devices into a robot and
// exposes it to the scheduler as an interactor.
package robot

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/sirupsen/logrus"

	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/devices"
	"github.com/ev3sim/ev3sim/sim/physics"
	"github.com/ev3sim/ev3sim/sim/screen"
)

// CollisionType tags robot bodies in the physics world.
const CollisionType = "robot"

// Spec describes one robot to spawn.
type Spec struct {
	Filename string // preset or program the robot comes from
	Position mgl64.Vec2
	Angle    float64
	Radius   float64
	Mass     float64
	Colour   color.RGBA
	Devices  []devices.Spec
}

// Deps are the run-wide collaborators a robot is built against.
type Deps struct {
	World      *physics.World
	Screen     sim.ScreenObjectManager
	Randomiser *sim.Randomiser
	Randomise  bool
	Beacons    func() []mgl64.Vec2
}

// Robot is one spawned robot. Its device set is fixed after Build.
type Robot struct {
	ID         string
	Address    string
	Filename   string
	SpawnIndex int
	Body       *physics.Body

	devices map[string]sim.Device // by port
	ports   []string
	deps    Deps
	chassis *screen.Disc
}

// IDForIndex is the robot id of a spawn index.
func IDForIndex(index int) string {
	return fmt.Sprintf("Robot-%d", index)
}

// AddressForIndex is the Bluetooth-style address of a spawn index.
func AddressForIndex(index int) string {
	return fmt.Sprintf("00:17:E9:B2:%02X:%02X", (index>>8)&0xff, index&0xff)
}

// Build creates the body, registers it and attaches every device with its
// own port RNG. Bias is generated once here.
func Build(spec Spec, index int, deps Deps) (*Robot, error) {
	if spec.Radius <= 0 {
		spec.Radius = 9
	}
	if spec.Mass <= 0 {
		spec.Mass = 5
	}
	body := physics.NewBody(spec.Mass, physics.MomentForCircle(spec.Mass, spec.Radius), physics.Circle(mgl64.Vec2{}, spec.Radius))
	body.Position = spec.Position
	body.Angle = spec.Angle
	body.LinearDamping = 0.9
	body.AngularDamping = 0.9
	body.Friction = 0.5
	body.CollisionType = CollisionType

	r := &Robot{
		ID:         IDForIndex(index),
		Address:    AddressForIndex(index),
		Filename:   spec.Filename,
		SpawnIndex: index,
		Body:       body,
		devices:    make(map[string]sim.Device),
		deps:       deps,
	}
	body.UserData = r

	for _, ds := range spec.Devices {
		if _, dup := r.devices[ds.Port]; dup {
			return nil, fmt.Errorf("%s: port %s used twice", r.ID, ds.Port)
		}
		env := devices.Env{
			RobotID:   r.ID,
			Body:      body,
			World:     deps.World,
			Screen:    deps.Screen,
			Randomise: deps.Randomise,
			Beacons:   deps.Beacons,
		}
		if deps.Randomiser != nil {
			env.RNG = deps.Randomiser.PortRandom(sim.PortKey{Filename: spec.Filename, SpawnIndex: index, Port: ds.Port})
		}
		d, err := devices.New(ds, env)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.ID, err)
		}
		d.GenerateBias()
		r.devices[ds.Port] = d
		r.ports = append(r.ports, ds.Port)
	}
	sort.Strings(r.ports)

	if deps.World != nil {
		if err := deps.World.Register(body); err != nil {
			return nil, fmt.Errorf("%s: %w", r.ID, err)
		}
	}
	if deps.Screen != nil {
		r.chassis = &screen.Disc{Centre: body.Position, Radius: spec.Radius, Colour: spec.Colour, Z: 50, Hidden: true}
		deps.Screen.RegisterVisual(r.ID+"/chassis", r.chassis)
	}
	logrus.WithFields(logrus.Fields{"source": "sim", "robot": r.ID}).
		Debugf("spawned from %q with %d devices", spec.Filename, len(r.devices))
	return r, nil
}

// Device returns the device on a port.
func (r *Robot) Device(port string) (sim.Device, bool) {
	d, ok := r.devices[port]
	return d, ok
}

// Ports lists occupied ports in sorted order.
func (r *Robot) Ports() []string {
	return append([]string(nil), r.ports...)
}

// Resolve finds a device by type tag and either object name or port.
func (r *Robot) Resolve(deviceType, object string) (sim.Device, error) {
	if d, ok := r.devices[object]; ok && d.Type() == deviceType {
		return d, nil
	}
	for _, port := range r.ports {
		d := r.devices[port]
		if d.Type() == deviceType && d.ObjName() == object {
			return d, nil
		}
	}
	return nil, &sim.DeviceNotFoundError{Robot: r.ID, Kind: deviceType, Port: object}
}

// Snapshot collects every device's attributes. Any device error fails the
// whole snapshot.
func (r *Robot) Snapshot() (sim.Snapshot, error) {
	snap := sim.Snapshot{}
	for _, port := range r.ports {
		d := r.devices[port]
		obj, err := d.ToObject()
		if err != nil {
			return nil, err
		}
		snap.Put(d.Type(), d.ObjName(), obj)
	}
	return snap, nil
}

// Remove unregisters the body and releases device resources.
func (r *Robot) Remove() {
	for _, port := range r.ports {
		if d, ok := r.devices[port].(devices.Detacher); ok {
			d.Detach()
		}
	}
	if r.deps.World != nil {
		r.deps.World.Unregister(r.Body)
	}
	if r.deps.Screen != nil && r.chassis != nil {
		r.deps.Screen.UnregisterVisual(r.ID + "/chassis")
	}
}
