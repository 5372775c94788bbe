package ev3

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ev3sim/ev3sim/sim"
)

func TestMotor_On_WritesSpeedThenCommand(t *testing.T) {
	bridge := newScriptBridge(testDevices())
	b := connect(t, bridge)
	m, err := b.LargeMotor(OutB)
	require.NoError(t, err)

	require.NoError(t, m.On(context.Background(), 50))

	assert.Equal(t, []string{
		"tacho-motor outB speed_sp=525",
		"tacho-motor outB command=run-forever",
	}, bridge.writes)
}

func TestMotor_OnForSeconds_SleepsSimulatedTime(t *testing.T) {
	bridge := newScriptBridge(testDevices())
	b := connect(t, bridge)
	m, err := b.LargeMotor(OutB)
	require.NoError(t, err)

	require.NoError(t, m.OnForSeconds(context.Background(), -100, 1.5))

	assert.Equal(t, []string{
		"tacho-motor outB speed_sp=-1050",
		"tacho-motor outB time_sp=1500",
		"tacho-motor outB command=run-timed",
	}, bridge.writes)
	assert.Equal(t, int64(15), b.Tick())
}

func TestMotor_Setters(t *testing.T) {
	bridge := newScriptBridge(testDevices())
	b := connect(t, bridge)
	m, err := b.LargeMotor(OutC)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.SetPositionSP(ctx, 90))
	require.NoError(t, m.RunToRelPos(ctx))
	require.NoError(t, m.SetStopAction(ctx, "hold"))
	require.NoError(t, m.SetInversed(ctx, true))
	require.NoError(t, m.Stop(ctx))
	require.NoError(t, m.Reset(ctx))

	assert.Equal(t, []string{
		"tacho-motor outC position_sp=90",
		"tacho-motor outC command=run-to-rel-pos",
		"tacho-motor outC stop_action=hold",
		"tacho-motor outC polarity=inversed",
		"tacho-motor outC command=stop",
		"tacho-motor outC command=reset",
	}, bridge.writes)
}

func TestMotor_Reads_AcceptJSONNumbers(t *testing.T) {
	// GIVEN attributes decoded from JSON
	devices := testDevices()
	attrs, _ := devices.Get(sim.DeviceTypeMotor, "motor1")
	attrs["position"] = float64(361)
	attrs["speed"] = float64(525)
	attrs["state"] = MotorRunning
	b := connect(t, newScriptBridge(devices))
	m, err := b.LargeMotor(OutB)
	require.NoError(t, err)

	pos, err := m.Position()
	require.NoError(t, err)
	assert.Equal(t, 361, pos)
	speed, err := m.Speed()
	require.NoError(t, err)
	assert.Equal(t, 525, speed)
	assert.True(t, m.IsRunning())
}

func TestSensor_ReadInCurrentModeDoesNotWrite(t *testing.T) {
	bridge := newScriptBridge(testDevices())
	b := connect(t, bridge)

	c, err := b.ColorSensor(In1)
	require.NoError(t, err)
	v, err := c.Reflected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 40, v)

	u, err := b.UltrasonicSensor("")
	require.NoError(t, err)
	d, err := u.DistanceCM(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 123.4, d, 1e-9)

	touch, err := b.TouchSensor(In4)
	require.NoError(t, err)
	pressed, err := touch.Pressed(context.Background())
	require.NoError(t, err)
	assert.True(t, pressed)

	assert.Empty(t, bridge.writes)
}

func TestSensor_ModeSwitchReadsFollowingTick(t *testing.T) {
	// GIVEN a bridge that applies mode writes to the next update
	bridge := newScriptBridge(testDevices())
	bridge.onWrite = func(s *scriptBridge, path, value string) {
		if !strings.HasSuffix(path, " mode") || value != "AC-ALL" {
			return
		}
		s.devices = testDevices()
		s.devices.Put(sim.DeviceTypeSensor, "sensor2", sensorAttrs(In3, "ht-nxt-ir-seek-v2", "AC-ALL", 5, 0, 2, 7, 2, 0))
	}
	b := connect(t, bridge)
	ir, err := b.InfraredSensor(In3)
	require.NoError(t, err)

	// WHEN reading all strengths
	st, err := ir.Strengths(context.Background())

	// THEN the mode was switched and the new tick read
	require.NoError(t, err)
	assert.Equal(t, [5]int{0, 2, 7, 2, 0}, st)
	assert.Equal(t, []string{"lego-sensor in3 mode=AC-ALL"}, bridge.writes)
	assert.Equal(t, int64(1), b.Tick())
}

func TestColorSensor_RGBScalesRawValues(t *testing.T) {
	devices := testDevices()
	devices.Put(sim.DeviceTypeSensor, "sensor0", sensorAttrs(In1, "lego-ev3-color", "RGB-RAW", 1020, 0, 510))
	b := connect(t, newScriptBridge(devices))
	c, err := b.ColorSensor("")
	require.NoError(t, err)

	rgb, err := c.RGB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [3]int{255, 0, 128}, rgb)
}

func TestCompass_Calibration(t *testing.T) {
	devices := testDevices()
	devices.Put(sim.DeviceTypeSensor, "sensor1", sensorAttrs(In2, "ht-nxt-compass", "COMPASS", 271))
	bridge := newScriptBridge(devices)
	b := connect(t, bridge)
	c, err := b.CompassSensor(In2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.BeginCalibration(ctx))
	require.NoError(t, c.EndCalibration(ctx))
	bearing, err := c.Bearing(ctx)
	require.NoError(t, err)

	assert.Equal(t, 271, bearing)
	assert.Equal(t, []string{"lego-sensor in2 command=BEGIN-CAL", "lego-sensor in2 command=END-CAL"}, bridge.writes)
}

func TestComm_RoundTrip(t *testing.T) {
	bridge := newScriptBridge(testDevices())
	b := connect(t, bridge)
	ctx := context.Background()

	srv, err := b.Listen(ctx, 4)
	require.NoError(t, err)
	conn, err := srv.Accept(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Send(ctx, []byte("hi")))
	got, err := conn.Recv(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.Close(ctx))
	require.NoError(t, srv.Close(ctx))

	peer, err := b.Dial(ctx, "00:17:E9:B2:00:01", 4)
	require.NoError(t, err)
	require.NoError(t, peer.Close(ctx))

	assert.Equal(t, []byte("reply"), got)
	assert.Equal(t, []string{
		"server_start 4",
		"server_accept srv",
		"send conn-s hi",
		"recv conn-s",
		"client_close conn-s",
		"server_close srv",
		"client_connect 00:17:E9:B2:00:01 4",
		"client_close conn-c",
	}, bridge.calls)
}

func TestBrick_Logf(t *testing.T) {
	bridge := newScriptBridge(testDevices())
	b := connect(t, bridge)
	require.NoError(t, b.Logf(context.Background(), "ball at %d", 3))
	assert.Equal(t, []string{"ball at 3"}, bridge.logs)
}
