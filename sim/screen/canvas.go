// Package screen is the headless compositor: it keeps the drawable floor
// and indicator visuals and answers colour lookups for colour sensors.
package screen

import (
	"image/color"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ev3sim/ev3sim/sim"
)

// Canvas implements sim.ScreenObjectManager.
type Canvas struct {
	mu         sync.RWMutex
	background color.RGBA
	visuals    map[string]entry
	seq        int
}

type entry struct {
	visual sim.Visual
	seq    int
}

// NewCanvas creates a canvas with the given floor colour.
func NewCanvas(background color.RGBA) *Canvas {
	return &Canvas{background: background, visuals: make(map[string]entry)}
}

// RegisterVisual adds or replaces the visual under key.
func (c *Canvas) RegisterVisual(key string, v sim.Visual) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.visuals[key] = entry{visual: v, seq: c.seq}
}

// UnregisterVisual removes the visual under key, if any.
func (c *Canvas) UnregisterVisual(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.visuals, key)
}

// Visual returns the visual registered under key.
func (c *Canvas) Visual(key string) (sim.Visual, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.visuals[key]
	return e.visual, ok
}

// Len is the number of registered visuals.
func (c *Canvas) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.visuals)
}

// ColourAt returns the fill of the topmost sensed visual containing pos, or
// the background. Equal z resolves to the most recently registered.
func (c *Canvas) ColourAt(pos mgl64.Vec2) color.RGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var top *entry
	for _, e := range c.visuals {
		if !e.visual.Sensed() || !e.visual.Contains(pos) {
			continue
		}
		if top == nil || above(e, *top) {
			top = &e
		}
	}
	if top == nil {
		return c.background
	}
	return top.visual.Fill()
}

// Keys lists registered keys bottom to top.
func (c *Canvas) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.visuals))
	for k := range c.visuals {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return above(c.visuals[keys[j]], c.visuals[keys[i]])
	})
	return keys
}

func above(a, b entry) bool {
	if a.visual.ZPos() != b.visual.ZPos() {
		return a.visual.ZPos() > b.visual.ZPos()
	}
	return a.seq > b.seq
}
