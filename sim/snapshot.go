package sim

import (
	"fmt"
	"strings"
)

// AttributePath addresses one device attribute: "<deviceType> <objName> <attribute>".
type AttributePath struct {
	DeviceType string // e.g. "tacho-motor"
	Object     string // object name ("motor1") or port ("outB")
	Attribute  string // e.g. "speed_sp"
}

// ParseAttributePath splits a wire path into its three fields.
func ParseAttributePath(path string) (AttributePath, error) {
	fields := strings.Fields(path)
	if len(fields) != 3 {
		return AttributePath{}, fmt.Errorf("attribute path %q: want \"<type> <object> <attribute>\"", path)
	}
	return AttributePath{DeviceType: fields[0], Object: fields[1], Attribute: fields[2]}, nil
}

func (p AttributePath) String() string {
	return p.DeviceType + " " + p.Object + " " + p.Attribute
}

// Snapshot is one robot's view of its devices for a tick:
// deviceType -> objName -> attribute -> value.
type Snapshot map[string]map[string]map[string]any

// Put stores a device's attribute map.
func (s Snapshot) Put(deviceType, objName string, attrs map[string]any) {
	byObj, ok := s[deviceType]
	if !ok {
		byObj = make(map[string]map[string]any)
		s[deviceType] = byObj
	}
	byObj[objName] = attrs
}

// Get returns the attribute map of a device by object name.
func (s Snapshot) Get(deviceType, objName string) (map[string]any, bool) {
	attrs, ok := s[deviceType][objName]
	return attrs, ok
}

// ByPort finds a device by its port address ("outB"), returning its object
// name and attributes.
func (s Snapshot) ByPort(deviceType, port string) (string, map[string]any, bool) {
	want := AddressForPort(port)
	for obj, attrs := range s[deviceType] {
		if attrs["address"] == want {
			return obj, attrs, true
		}
	}
	return "", nil, false
}

// AddressForPort renders the "address" attribute value for a port.
func AddressForPort(port string) string {
	return "ev3-ports:" + port
}

// RobotEvent is a named event queued for one robot since its last tick.
type RobotEvent struct {
	Name string         `json:"name"`
	Data map[string]any `json:"data,omitempty"`
}

// TickUpdate is what a robot program receives once per tick.
type TickUpdate struct {
	Tick            int64        `json:"tick"`
	TickRate        int          `json:"tick_rate"`
	WriteGeneration uint64       `json:"write_generation"`
	Snapshot        Snapshot     `json:"data,omitempty"`
	Error           string       `json:"error,omitempty"`
	Events          []RobotEvent `json:"events,omitempty"`
}

// Err returns the payload error, if the snapshot failed for this tick.
func (u *TickUpdate) Err() error {
	if u == nil || u.Error == "" {
		return nil
	}
	return fmt.Errorf("%w at tick %d: %s", ErrSnapshotFailed, u.Tick, u.Error)
}
