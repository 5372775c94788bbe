// Package programs holds the built-in robot programs a preset can name.
// Every program drives an ev3.Brick, so it runs the same in-process or
// over the websocket relay.
package programs

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/ev3sim/ev3sim/ev3"
)

// Remote names a robot whose program connects over the relay instead of
// running in-process.
const Remote = "remote"

// Args are per-robot program arguments from the preset.
type Args map[string]string

// String returns the argument or def when unset.
func (a Args) String(key, def string) string {
	if v, ok := a[key]; ok && v != "" {
		return v
	}
	return def
}

// Int returns the argument as an int or def when unset.
func (a Args) Int(key string, def int) (int, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return n, nil
}

// Float returns the argument as a float64 or def when unset.
func (a Args) Float(key string, def float64) (float64, error) {
	v, ok := a[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return f, nil
}

// Program is a robot program. It returns nil when it finishes on its own
// and the context error when it is cancelled.
type Program func(ctx context.Context, b *ev3.Brick, args Args) error

var registry = map[string]Program{
	"idle":      Idle,
	"square":    Square,
	"wander":    Wander,
	"seek-ball": SeekBall,
	"ping":      Ping,
	"pong":      Pong,
}

// Lookup returns the built-in program registered under name.
func Lookup(name string) (Program, bool) {
	p, ok := registry[name]
	return p, ok
}

// Names lists the built-in programs in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsValid reports whether name is a built-in program or Remote.
func IsValid(name string) bool {
	_, ok := registry[name]
	return ok || name == Remote
}
