// Package preset loads run descriptions: which robots to spawn with which
// devices and programs, the game mode, and scheduler settings.
package preset

import (
	"bytes"
	"embed"
	"fmt"
	"image/color"
	"math"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"gopkg.in/yaml.v3"

	"github.com/ev3sim/ev3sim/ev3/programs"
	"github.com/ev3sim/ev3sim/sim"
	"github.com/ev3sim/ev3sim/sim/devices"
	"github.com/ev3sim/ev3sim/sim/modes"
	"github.com/ev3sim/ev3sim/sim/robot"
	"github.com/ev3sim/ev3sim/sim/screen"
)

//go:embed presets/*.yaml
var builtin embed.FS

// DefaultName is the preset used when none is given.
const DefaultName = "soccer"

// Preset is the top-level run description.
// Loaded from YAML via Load(path) or Builtin(name).
type Preset struct {
	Name      string        `yaml:"name"`
	Seed      int64         `yaml:"seed"`
	Randomise *bool         `yaml:"randomise,omitempty"`  // default true
	TimeLimit float64       `yaml:"time_limit,omitempty"` // simulated seconds, 0 = none
	Scheduler SchedulerSpec `yaml:"scheduler"`
	Arena     *ArenaSpec    `yaml:"arena,omitempty"`
	Robots    []RobotSpec   `yaml:"robots"`
}

// SchedulerSpec tunes the tick loop. Zero fields take the scheduler defaults.
type SchedulerSpec struct {
	TickRate         int     `yaml:"tick_rate,omitempty"`
	TimeScale        float64 `yaml:"time_scale,omitempty"`
	RenderRate       int     `yaml:"render_rate,omitempty"`
	HeartbeatTimeout float64 `yaml:"heartbeat_timeout,omitempty"` // seconds
	EndOnRobotDeath  bool    `yaml:"end_on_robot_death,omitempty"`
}

// ArenaSpec enables the soccer arena. Zero fields take the arena defaults.
type ArenaSpec struct {
	Width      float64   `yaml:"width,omitempty"`
	Height     float64   `yaml:"height,omitempty"`
	WallGap    float64   `yaml:"wall_gap,omitempty"`
	GoalWidth  float64   `yaml:"goal_width,omitempty"`
	BallRadius float64   `yaml:"ball_radius,omitempty"`
	BallMass   float64   `yaml:"ball_mass,omitempty"`
	BallStart  []float64 `yaml:"ball_start,omitempty"`
	Field      string    `yaml:"field,omitempty"` // "#rrggbb"
}

// RobotSpec is one robot to spawn.
type RobotSpec struct {
	Name      string            `yaml:"name"` // keys the port RNGs, defaults to the preset name
	Program   string            `yaml:"program"`
	Args      map[string]string `yaml:"args,omitempty"`
	Position  []float64         `yaml:"position"`
	Angle     float64           `yaml:"angle,omitempty"` // degrees
	Radius    float64           `yaml:"radius,omitempty"`
	Mass      float64           `yaml:"mass,omitempty"`
	Colour    string            `yaml:"colour,omitempty"`
	Devices   []DeviceSpec      `yaml:"devices"`
	PortSeeds map[string]uint64 `yaml:"port_seeds,omitempty"`
}

// DeviceSpec is one device on a robot.
type DeviceSpec struct {
	Kind     string             `yaml:"kind"`
	Port     string             `yaml:"port"`
	Position []float64          `yaml:"position,omitempty"`
	Rotation float64            `yaml:"rotation,omitempty"` // degrees
	Options  map[string]float64 `yaml:"options,omitempty"`
}

var validPorts = map[string]bool{
	"outA": true, "outB": true, "outC": true, "outD": true,
	"in1": true, "in2": true, "in3": true, "in4": true,
}

// Load reads and validates a preset file.
func Load(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading preset: %w", err)
	}
	return Parse(data)
}

// Builtin returns one of the embedded presets by name.
func Builtin(name string) (*Preset, error) {
	data, err := builtin.ReadFile(path.Join("presets", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q; valid: %s", name, strings.Join(BuiltinNames(), ", "))
	}
	return Parse(data)
}

// BuiltinNames lists the embedded presets.
func BuiltinNames() []string {
	entries, _ := builtin.ReadDir("presets")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Parse decodes a preset strictly: unknown fields are errors.
func Parse(data []byte) (*Preset, error) {
	var p Preset
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing preset: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preset: %w", err)
	}
	return &p, nil
}

// Validate checks that all fields in the preset are valid.
func (p *Preset) Validate() error {
	if p.TimeLimit < 0 || math.IsNaN(p.TimeLimit) || math.IsInf(p.TimeLimit, 0) {
		return fmt.Errorf("time_limit must be a finite non-negative number, got %v", p.TimeLimit)
	}
	if err := p.Scheduler.validate(); err != nil {
		return err
	}
	if p.Arena != nil {
		if err := p.Arena.validate(); err != nil {
			return err
		}
	}
	if len(p.Robots) == 0 {
		return fmt.Errorf("at least one robot required")
	}
	for i := range p.Robots {
		if err := validateRobot(&p.Robots[i], i); err != nil {
			return err
		}
	}
	return nil
}

func (s *SchedulerSpec) validate() error {
	if s.TickRate < 0 {
		return fmt.Errorf("scheduler.tick_rate must be non-negative, got %d", s.TickRate)
	}
	if s.RenderRate < 0 {
		return fmt.Errorf("scheduler.render_rate must be non-negative, got %d", s.RenderRate)
	}
	if s.TimeScale < 0 {
		return fmt.Errorf("scheduler.time_scale must be non-negative, got %v", s.TimeScale)
	}
	if s.HeartbeatTimeout < 0 {
		return fmt.Errorf("scheduler.heartbeat_timeout must be non-negative, got %v", s.HeartbeatTimeout)
	}
	return nil
}

func (a *ArenaSpec) validate() error {
	for name, v := range map[string]float64{
		"width": a.Width, "height": a.Height, "wall_gap": a.WallGap,
		"goal_width": a.GoalWidth, "ball_radius": a.BallRadius, "ball_mass": a.BallMass,
	} {
		if v < 0 {
			return fmt.Errorf("arena.%s must be non-negative, got %v", name, v)
		}
	}
	if a.BallStart != nil && len(a.BallStart) != 2 {
		return fmt.Errorf("arena.ball_start must be [x, y], got %d values", len(a.BallStart))
	}
	if a.Field != "" {
		if _, ok := screen.ParseHex(a.Field); !ok {
			return fmt.Errorf("arena.field: invalid colour %q; want #rrggbb", a.Field)
		}
	}
	return nil
}

func validateRobot(r *RobotSpec, idx int) error {
	prefix := fmt.Sprintf("robot[%d]", idx)
	if !programs.IsValid(r.Program) {
		return fmt.Errorf("%s: unknown program %q; valid: %s, %s", prefix, r.Program, strings.Join(programs.Names(), ", "), programs.Remote)
	}
	if len(r.Position) != 2 {
		return fmt.Errorf("%s: position must be [x, y], got %d values", prefix, len(r.Position))
	}
	if r.Radius < 0 || r.Mass < 0 {
		return fmt.Errorf("%s: radius and mass must be non-negative", prefix)
	}
	if r.Colour != "" {
		if _, ok := screen.ParseHex(r.Colour); !ok {
			return fmt.Errorf("%s: invalid colour %q; want #rrggbb", prefix, r.Colour)
		}
	}
	used := make(map[string]bool)
	for j, d := range r.Devices {
		dp := fmt.Sprintf("%s.devices[%d]", prefix, j)
		if !devices.IsKind(d.Kind) {
			return fmt.Errorf("%s: unknown kind %q; valid: %s", dp, d.Kind, strings.Join(devices.Kinds(), ", "))
		}
		if !validPorts[d.Port] {
			return fmt.Errorf("%s: unknown port %q; valid: outA-outD, in1-in4", dp, d.Port)
		}
		if used[d.Port] {
			return fmt.Errorf("%s: port %s used twice", dp, d.Port)
		}
		used[d.Port] = true
		if d.Position != nil && len(d.Position) != 2 {
			return fmt.Errorf("%s: position must be [x, y], got %d values", dp, len(d.Position))
		}
	}
	for port := range r.PortSeeds {
		if !used[port] {
			return fmt.Errorf("%s: port_seeds names %s, which has no device", prefix, port)
		}
	}
	return nil
}

// RandomiseDevices reports whether device bias and noise are on.
func (p *Preset) RandomiseDevices() bool {
	return p.Randomise == nil || *p.Randomise
}

// SchedulerConfig merges the preset's scheduler settings over the defaults.
func (p *Preset) SchedulerConfig() sim.SchedulerConfig {
	cfg := sim.DefaultSchedulerConfig()
	if p.Scheduler.TickRate > 0 {
		cfg.TickRate = p.Scheduler.TickRate
	}
	if p.Scheduler.TimeScale > 0 {
		cfg.TimeScale = p.Scheduler.TimeScale
	}
	if p.Scheduler.RenderRate > 0 {
		cfg.RenderRate = p.Scheduler.RenderRate
	}
	if p.Scheduler.HeartbeatTimeout > 0 {
		cfg.HeartbeatTimeout = time.Duration(p.Scheduler.HeartbeatTimeout * float64(time.Second))
	}
	cfg.EndOnRobotDeath = p.Scheduler.EndOnRobotDeath
	return cfg
}

// ArenaConfig merges the arena settings over the defaults.
func (a *ArenaSpec) ArenaConfig() modes.ArenaConfig {
	cfg := modes.DefaultArenaConfig()
	set := func(dst *float64, v float64) {
		if v > 0 {
			*dst = v
		}
	}
	set(&cfg.Width, a.Width)
	set(&cfg.Height, a.Height)
	set(&cfg.WallGap, a.WallGap)
	set(&cfg.GoalWidth, a.GoalWidth)
	set(&cfg.BallRadius, a.BallRadius)
	set(&cfg.BallMass, a.BallMass)
	if len(a.BallStart) == 2 {
		cfg.BallStart = mgl64.Vec2{a.BallStart[0], a.BallStart[1]}
	}
	if c, ok := screen.ParseHex(a.Field); ok {
		cfg.Field = c
	}
	return cfg
}

// RobotName is the name keying robot idx's port RNGs.
func (p *Preset) RobotName(idx int) string {
	if n := p.Robots[idx].Name; n != "" {
		return n
	}
	return p.Name
}

// RobotSpec converts robot idx into the spawn description.
func (p *Preset) RobotSpec(idx int) robot.Spec {
	r := p.Robots[idx]
	spec := robot.Spec{
		Filename: p.RobotName(idx),
		Position: vec(r.Position),
		Angle:    mgl64.DegToRad(r.Angle),
		Radius:   r.Radius,
		Mass:     r.Mass,
		Colour:   defaultColour,
	}
	if c, ok := screen.ParseHex(r.Colour); ok {
		spec.Colour = c
	}
	for _, d := range r.Devices {
		spec.Devices = append(spec.Devices, devices.Spec{
			Kind:     d.Kind,
			Port:     d.Port,
			Position: vec(d.Position),
			Rotation: mgl64.DegToRad(d.Rotation),
			Options:  d.Options,
		})
	}
	return spec
}

// ApplyPortSeeds installs robot idx's seed overrides for spawn index.
func (p *Preset) ApplyPortSeeds(r *sim.Randomiser, idx, spawnIndex int) {
	for port, seed := range p.Robots[idx].PortSeeds {
		r.SetPortSeed(sim.PortKey{Filename: p.RobotName(idx), SpawnIndex: spawnIndex, Port: port}, seed)
	}
}

var defaultColour = color.RGBA{R: 0x33, G: 0x66, B: 0xcc, A: 0xff}

func vec(v []float64) mgl64.Vec2 {
	if len(v) != 2 {
		return mgl64.Vec2{}
	}
	return mgl64.Vec2{v[0], v[1]}
}
