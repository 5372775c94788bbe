package preset

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ev3sim/ev3sim/sim"
)

const minimal = `
name: test
seed: 3
robots:
  - program: idle
    position: [10, -5]
    angle: 90
    devices:
      - {kind: LargeMotor, port: outB, position: [0, 6]}
      - {kind: ColorSensor, port: in1, rotation: 180, options: {offset: 2}}
`

func TestBuiltin_AllPresetsParse(t *testing.T) {
	names := BuiltinNames()
	assert.Equal(t, []string{"comm", "soccer", "square"}, names)
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			p, err := Builtin(name)
			require.NoError(t, err)
			assert.Equal(t, name, p.Name)
		})
	}
}

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("nope")
	assert.ErrorContains(t, err, `unknown preset "nope"; valid: comm, soccer, square`)
}

func TestParse_Minimal(t *testing.T) {
	p, err := Parse([]byte(minimal))
	require.NoError(t, err)

	assert.True(t, p.RandomiseDevices())
	assert.Nil(t, p.Arena)

	spec := p.RobotSpec(0)
	assert.Equal(t, "test", spec.Filename)
	assert.Equal(t, mgl64.Vec2{10, -5}, spec.Position)
	assert.InDelta(t, math.Pi/2, spec.Angle, 1e-12)
	require.Len(t, spec.Devices, 2)
	assert.Equal(t, "LargeMotor", spec.Devices[0].Kind)
	assert.Equal(t, mgl64.Vec2{0, 6}, spec.Devices[0].Position)
	assert.InDelta(t, math.Pi, spec.Devices[1].Rotation, 1e-12)
	assert.Equal(t, 2.0, spec.Devices[1].Options["offset"])
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(minimal + "speed: 3\n"))
	assert.ErrorContains(t, err, "parsing preset")
}

func TestValidate_Errors(t *testing.T) {
	base := func() *Preset {
		p, err := Parse([]byte(minimal))
		require.NoError(t, err)
		return p
	}
	tests := []struct {
		name   string
		mutate func(p *Preset)
		want   string
	}{
		{"no robots", func(p *Preset) { p.Robots = nil }, "at least one robot"},
		{"unknown program", func(p *Preset) { p.Robots[0].Program = "fly" }, `unknown program "fly"`},
		{"bad position", func(p *Preset) { p.Robots[0].Position = []float64{1} }, "position must be [x, y]"},
		{"unknown kind", func(p *Preset) { p.Robots[0].Devices[0].Kind = "Laser" }, `unknown kind "Laser"`},
		{"unknown port", func(p *Preset) { p.Robots[0].Devices[0].Port = "outE" }, `unknown port "outE"`},
		{"duplicate port", func(p *Preset) { p.Robots[0].Devices[1].Port = "outB" }, "port outB used twice"},
		{"bad colour", func(p *Preset) { p.Robots[0].Colour = "blue" }, `invalid colour "blue"`},
		{"negative time limit", func(p *Preset) { p.TimeLimit = -1 }, "time_limit"},
		{"negative tick rate", func(p *Preset) { p.Scheduler.TickRate = -1 }, "tick_rate"},
		{"seed for empty port", func(p *Preset) { p.Robots[0].PortSeeds = map[string]uint64{"in4": 1} }, "port_seeds names in4"},
		{"bad ball start", func(p *Preset) { p.Arena = &ArenaSpec{BallStart: []float64{1, 2, 3}} }, "ball_start"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := base()
			tc.mutate(p)
			assert.ErrorContains(t, p.Validate(), tc.want)
		})
	}
}

func TestSchedulerConfig_MergesOverDefaults(t *testing.T) {
	p := &Preset{Scheduler: SchedulerSpec{TickRate: 30, HeartbeatTimeout: 0.5, EndOnRobotDeath: true}}

	cfg := p.SchedulerConfig()

	def := sim.DefaultSchedulerConfig()
	assert.Equal(t, 30, cfg.TickRate)
	assert.Equal(t, def.TimeScale, cfg.TimeScale)
	assert.Equal(t, def.RenderRate, cfg.RenderRate)
	assert.Equal(t, 500*time.Millisecond, cfg.HeartbeatTimeout)
	assert.True(t, cfg.EndOnRobotDeath)
}

func TestArenaConfig_MergesOverDefaults(t *testing.T) {
	a := &ArenaSpec{Width: 100, BallStart: []float64{5, 6}, Field: "#000000"}

	cfg := a.ArenaConfig()

	assert.Equal(t, 100.0, cfg.Width)
	assert.Equal(t, 243.0, cfg.Height)
	assert.Equal(t, mgl64.Vec2{5, 6}, cfg.BallStart)
	assert.Equal(t, uint8(0), cfg.Field.G)
}

func TestApplyPortSeeds_OverridesPortStream(t *testing.T) {
	// GIVEN a preset pinning in1's seed
	p, err := Parse([]byte(minimal))
	require.NoError(t, err)
	p.Robots[0].PortSeeds = map[string]uint64{"in1": 99}
	r := sim.NewRandomiser(1)

	// WHEN the seeds are applied for spawn index 2
	p.ApplyPortSeeds(r, 0, 2)

	// THEN only that key is overridden
	assert.Equal(t, uint64(99), r.PortSeed(sim.PortKey{Filename: "test", SpawnIndex: 2, Port: "in1"}))
	assert.NotEqual(t, uint64(99), r.PortSeed(sim.PortKey{Filename: "test", SpawnIndex: 0, Port: "in1"}))
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Seed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading preset")
}
