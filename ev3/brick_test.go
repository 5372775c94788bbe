package ev3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ev3sim/ev3sim/sim"
)

var errNoMoreTicks = errors.New("no more ticks")

// scriptBridge serves a fixed tick script. Every update carries the
// current devices, which writes can change through onWrite.
type scriptBridge struct {
	tickRate int
	stride   int64
	tick     int64
	limit    int64
	devices  sim.Snapshot
	writes   []string
	logs     []string
	onWrite  func(s *scriptBridge, path, value string)
	payload  map[int64]string
	calls    []string
}

func newScriptBridge(devices sim.Snapshot) *scriptBridge {
	return &scriptBridge{tickRate: 10, stride: 1, tick: -1, limit: 1000, devices: devices}
}

func (s *scriptBridge) RobotID() string { return "Robot-0" }
func (s *scriptBridge) Address() string { return "00:17:E9:B2:00:00" }

func (s *scriptBridge) WaitForTick(ctx context.Context) (sim.TickUpdate, error) {
	if err := ctx.Err(); err != nil {
		return sim.TickUpdate{}, err
	}
	next := s.tick + s.stride
	if s.tick < 0 {
		next = 0
	}
	if next >= s.limit {
		return sim.TickUpdate{}, errNoMoreTicks
	}
	s.tick = next
	if msg, ok := s.payload[s.tick]; ok {
		return sim.TickUpdate{Tick: s.tick, TickRate: s.tickRate, Error: msg}, nil
	}
	return sim.TickUpdate{Tick: s.tick, TickRate: s.tickRate, Snapshot: s.devices}, nil
}

func (s *scriptBridge) Write(_ context.Context, path, value string) error {
	s.writes = append(s.writes, path+"="+value)
	if s.onWrite != nil {
		s.onWrite(s, path, value)
	}
	return nil
}

func (s *scriptBridge) ServerStart(_ context.Context, port int) (string, error) {
	s.calls = append(s.calls, fmt.Sprintf("server_start %d", port))
	return "srv", nil
}

func (s *scriptBridge) ServerAccept(_ context.Context, server string) (string, error) {
	s.calls = append(s.calls, "server_accept "+server)
	return "conn-s", nil
}

func (s *scriptBridge) ServerClose(_ context.Context, server string) error {
	s.calls = append(s.calls, "server_close "+server)
	return nil
}

func (s *scriptBridge) ClientConnect(_ context.Context, address string, port int) (string, error) {
	s.calls = append(s.calls, fmt.Sprintf("client_connect %s %d", address, port))
	return "conn-c", nil
}

func (s *scriptBridge) ClientClose(_ context.Context, conn string) error {
	s.calls = append(s.calls, "client_close "+conn)
	return nil
}

func (s *scriptBridge) Send(_ context.Context, conn string, data []byte) error {
	s.calls = append(s.calls, "send "+conn+" "+string(data))
	return nil
}

func (s *scriptBridge) Recv(_ context.Context, conn string) ([]byte, error) {
	s.calls = append(s.calls, "recv "+conn)
	return []byte("reply"), nil
}

func (s *scriptBridge) Log(_ context.Context, msg string) error {
	s.logs = append(s.logs, msg)
	return nil
}

func motorAttrs(port, driver string) map[string]any {
	return map[string]any{
		"address":     sim.AddressForPort(port),
		"driver_name": driver,
		"max_speed":   1050,
		"position":    0,
		"speed":       0,
		"state":       "",
	}
}

func sensorAttrs(port, driver, mode string, values ...int) map[string]any {
	attrs := map[string]any{
		"address":     sim.AddressForPort(port),
		"driver_name": driver,
		"mode":        mode,
		"num_values":  len(values),
	}
	for i, v := range values {
		attrs[fmt.Sprintf("value%d", i)] = v
	}
	return attrs
}

func testDevices() sim.Snapshot {
	snap := sim.Snapshot{}
	snap.Put(sim.DeviceTypeMotor, "motor1", motorAttrs(OutB, "lego-ev3-l-motor"))
	snap.Put(sim.DeviceTypeMotor, "motor2", motorAttrs(OutC, "lego-ev3-l-motor"))
	snap.Put(sim.DeviceTypeMotor, "motor3", motorAttrs(OutD, "lego-ev3-m-motor"))
	snap.Put(sim.DeviceTypeSensor, "sensor0", sensorAttrs(In1, "lego-ev3-color", "COL-REFLECT", 40))
	snap.Put(sim.DeviceTypeSensor, "sensor1", sensorAttrs(In2, "lego-ev3-us", "US-DIST-CM", 1234))
	snap.Put(sim.DeviceTypeSensor, "sensor2", sensorAttrs(In3, "ht-nxt-ir-seek-v2", "AC", 5))
	snap.Put(sim.DeviceTypeSensor, "sensor3", sensorAttrs(In4, "lego-ev3-touch", "TOUCH", 1))
	return snap
}

func connect(t *testing.T, bridge *scriptBridge) *Brick {
	t.Helper()
	b, err := Connect(context.Background(), bridge)
	require.NoError(t, err)
	return b
}

func TestConnect_TakesFirstTick(t *testing.T) {
	b := connect(t, newScriptBridge(testDevices()))
	assert.Equal(t, int64(0), b.Tick())
	assert.Equal(t, 10, b.TickRate())
	assert.Equal(t, "Robot-0", b.RobotID())
}

func TestBrick_Sleep_WaitsCeilTicks(t *testing.T) {
	tests := []struct {
		seconds float64
		want    int64
	}{
		{0, 0},
		{0.01, 1},
		{0.1, 1},
		{0.5, 5},
		{0.55, 6},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.seconds), func(t *testing.T) {
			b := connect(t, newScriptBridge(testDevices()))
			require.NoError(t, b.Sleep(context.Background(), tt.seconds))
			assert.Equal(t, tt.want, b.Tick())
			assert.InDelta(t, float64(tt.want)/10, b.Time(), 1e-9)
		})
	}
}

func TestBrick_Sleep_CountsSimulatedTicksNotUpdates(t *testing.T) {
	// GIVEN a robot that only sees every third tick
	bridge := newScriptBridge(testDevices())
	bridge.stride = 3
	b := connect(t, bridge)
	start := b.Tick()

	// WHEN it sleeps for one simulated second at 10 Hz
	require.NoError(t, b.Sleep(context.Background(), 1.0))

	// THEN it wakes on the first update at or past ten ticks later
	assert.Equal(t, start+12, b.Tick())
	assert.InDelta(t, 1.2, b.Time()-float64(start)/10, 1e-9)
}

func TestBrick_WaitForTick_PayloadErrorKeepsDevices(t *testing.T) {
	// GIVEN tick 1 carries an error instead of a snapshot
	bridge := newScriptBridge(testDevices())
	bridge.payload = map[int64]string{1: "motor1: speed_sp=\"9999\": out of range"}
	b := connect(t, bridge)

	// WHEN the program waits
	err := b.WaitForTick(context.Background())

	// THEN the error surfaces, the tick advances and devices stay readable
	assert.ErrorIs(t, err, sim.ErrSnapshotFailed)
	assert.Equal(t, int64(1), b.Tick())
	m, err := b.LargeMotor(OutB)
	require.NoError(t, err)
	_, err = m.State()
	assert.NoError(t, err)
}

func TestBrick_DeviceLookup(t *testing.T) {
	b := connect(t, newScriptBridge(testDevices()))

	tests := []struct {
		name     string
		find     func() (string, error)
		wantPort string
	}{
		{"large motor on port", func() (string, error) {
			m, err := b.LargeMotor(OutC)
			if err != nil {
				return "", err
			}
			return m.Port(), nil
		}, OutC},
		{"first large motor", func() (string, error) {
			m, err := b.LargeMotor("")
			if err != nil {
				return "", err
			}
			return m.Port(), nil
		}, OutB},
		{"medium motor", func() (string, error) {
			m, err := b.MediumMotor("")
			if err != nil {
				return "", err
			}
			return m.Port(), nil
		}, OutD},
		{"colour sensor", func() (string, error) {
			s, err := b.ColorSensor(In1)
			if err != nil {
				return "", err
			}
			return s.Port(), nil
		}, In1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port, err := tt.find()
			require.NoError(t, err)
			assert.Equal(t, tt.wantPort, port)
		})
	}
}

func TestBrick_DeviceLookup_NotFound(t *testing.T) {
	b := connect(t, newScriptBridge(testDevices()))

	tests := []struct {
		name string
		find func() error
	}{
		{"empty port", func() error { return errOf(b.LargeMotor(OutA)) }},
		{"wrong kind on port", func() error { return errOf(b.MediumMotor(OutB)) }},
		{"no compass anywhere", func() error { return errOf(b.CompassSensor("")) }},
		{"sensor on motor port", func() error { return errOf(b.TouchSensor(OutB)) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var nf *sim.DeviceNotFoundError
			require.True(t, errors.As(tt.find(), &nf))
			assert.Equal(t, "Robot-0", nf.Robot)
		})
	}
}

func errOf[T any](_ T, err error) error { return err }
