package ev3

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/ev3sim/ev3sim/sim"
)

// Port names.
const (
	OutA = "outA"
	OutB = "outB"
	OutC = "outC"
	OutD = "outD"
	In1  = "in1"
	In2  = "in2"
	In3  = "in3"
	In4  = "in4"
)

// Brick is a robot program's view of its robot: the latest tick update and
// the bridge to write through.
type Brick struct {
	bridge Bridge
	last   sim.TickUpdate
}

// Connect waits for the first tick and returns the brick.
func Connect(ctx context.Context, bridge Bridge) (*Brick, error) {
	b := &Brick{bridge: bridge}
	if err := b.WaitForTick(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Brick) RobotID() string { return b.bridge.RobotID() }

func (b *Brick) Address() string { return b.bridge.Address() }

// Tick is the tick of the latest update.
func (b *Brick) Tick() int64 { return b.last.Tick }

// TickRate is the scheduler's ticks per simulated second.
func (b *Brick) TickRate() int { return b.last.TickRate }

// Time is the simulated time of the latest update, in seconds.
func (b *Brick) Time() float64 {
	if b.last.TickRate == 0 {
		return 0
	}
	return float64(b.last.Tick) / float64(b.last.TickRate)
}

// Events are the robot events delivered with the latest update.
func (b *Brick) Events() []sim.RobotEvent { return b.last.Events }

// WaitForTick blocks for the next tick. An update whose payload is an
// error is kept (so Tick advances) and its error returned.
func (b *Brick) WaitForTick(ctx context.Context) error {
	u, err := b.bridge.WaitForTick(ctx)
	if err != nil {
		return err
	}
	if u.Snapshot == nil && u.Error != "" {
		u.Snapshot = b.last.Snapshot
	}
	b.last = u
	return u.Err()
}

// Sleep waits until ceil(seconds*tickRate) ticks of simulated time have
// passed. Ticks the robot missed while busy count toward the wait.
func (b *Brick) Sleep(ctx context.Context, seconds float64) error {
	target := b.Tick() + int64(math.Ceil(seconds*float64(b.TickRate())))
	for b.Tick() < target {
		if err := b.WaitForTick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Logf emits a robot log line through the simulator.
func (b *Brick) Logf(ctx context.Context, format string, args ...any) error {
	return b.bridge.Log(ctx, fmt.Sprintf(format, args...))
}

func (b *Brick) write(ctx context.Context, deviceType, port, attr, value string) error {
	return b.bridge.Write(ctx, deviceType+" "+port+" "+attr, value)
}

// find locates a device of the given driver on port, or on the first port
// that has one when port is empty.
func (b *Brick) find(deviceType, driver, port string) (string, error) {
	if port != "" {
		_, attrs, ok := b.last.Snapshot.ByPort(deviceType, port)
		if ok && attrs["driver_name"] == driver {
			return port, nil
		}
		return "", &sim.DeviceNotFoundError{Robot: b.RobotID(), Kind: driver, Port: port}
	}
	var ports []string
	for _, attrs := range b.last.Snapshot[deviceType] {
		if attrs["driver_name"] != driver {
			continue
		}
		if addr, ok := attrs["address"].(string); ok {
			ports = append(ports, addr[len(sim.AddressForPort("")):])
		}
	}
	if len(ports) == 0 {
		return "", &sim.DeviceNotFoundError{Robot: b.RobotID(), Kind: driver, Port: "any port"}
	}
	sort.Strings(ports)
	return ports[0], nil
}

func (b *Brick) attrs(deviceType, port string) (map[string]any, error) {
	_, attrs, ok := b.last.Snapshot.ByPort(deviceType, port)
	if !ok {
		return nil, &sim.DeviceNotFoundError{Robot: b.RobotID(), Kind: deviceType, Port: port}
	}
	return attrs, nil
}

func (b *Brick) readInt(deviceType, port, attr string) (int, error) {
	attrs, err := b.attrs(deviceType, port)
	if err != nil {
		return 0, err
	}
	return asInt(attrs[attr])
}

func (b *Brick) readString(deviceType, port, attr string) (string, error) {
	attrs, err := b.attrs(deviceType, port)
	if err != nil {
		return "", err
	}
	s, ok := attrs[attr].(string)
	if !ok {
		return "", fmt.Errorf("%s %s %s: not a string: %v", deviceType, port, attr, attrs[attr])
	}
	return s, nil
}

// asInt accepts the shapes a snapshot value takes in process (int) and
// after a JSON round trip (float64).
func asInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(math.Round(n)), nil
	case string:
		return strconv.Atoi(n)
	}
	return 0, fmt.Errorf("not a number: %v", v)
}
