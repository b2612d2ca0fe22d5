package engine

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/grass"
)

// inputState tracks the movement keys currently held. The window thread writes it and the
// engine tick reads it.
type inputState struct {
	mu   sync.Mutex
	held map[uint32]bool
}

func (s *inputState) set(keyCode uint32, down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held == nil {
		s.held = make(map[uint32]bool)
	}
	s.held[keyCode] = down
}

func (s *inputState) down(keyCode uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.held[keyCode]
}

// axis returns +1, -1 or 0 for a pair of opposing keys.
func (s *inputState) axis(positive, negative uint32) float32 {
	var v float32
	if s.down(positive) {
		v++
	}
	if s.down(negative) {
		v--
	}
	return v
}

// applyHeldKeys moves the camera for the keys held this tick: W/S and A/D pan over the
// ground, Q/E orbit around the target.
func (e *engine) applyHeldKeys() {
	cc := e.camera.Controller()
	if cc == nil {
		return
	}
	forward := e.input.axis(common.KeyW, common.KeyS)
	right := e.input.axis(common.KeyD, common.KeyA)
	if forward != 0 || right != 0 {
		cc.Pan(forward, right)
	}
	if orbit := e.input.axis(common.KeyE, common.KeyQ); orbit != 0 {
		cc.Orbit(orbit*cc.OrbitSpeed(), 0)
	}
}

// handleKey records movement keys and runs the one-shot bindings on key press.
func (e *engine) handleKey(keyCode uint32, down bool) {
	wasDown := e.input.down(keyCode)
	e.input.set(keyCode, down)
	if !down || wasDown {
		return
	}

	switch keyCode {
	case common.KeyToggleGrass:
		e.toggleObjects()
	case common.KeyToggleHierarchy:
		if err := e.toggleHierarchy(); err != nil {
			common.Logger().Error("toggle hierarchy", "error", err)
		}
	case common.KeyLogCounts:
		e.logCounts()
	case common.KeyPause:
		e.SetPaused(!e.Paused())
	}
}

func (e *engine) handleScroll(delta float32) {
	if cc := e.camera.Controller(); cc != nil {
		cc.Zoom(delta)
	}
}

func (e *engine) handleDrag(dx, dy float32) {
	if cc := e.camera.Controller(); cc != nil {
		cc.Drag(dx, dy)
	}
}

// toggleObjects disables every object when any is drawing and enables them all otherwise.
func (e *engine) toggleObjects() {
	e.mu.Lock()
	defer e.mu.Unlock()

	anyEnabled := false
	for _, g := range e.objects {
		if g.State() != grass.StateDisposed {
			anyEnabled = true
			break
		}
	}
	for _, k := range e.sortedKeys() {
		g := e.objects[k]
		if anyEnabled {
			g.Disable()
			continue
		}
		if err := g.Enable(); err != nil {
			common.Logger().Error("enable grass", "label", g.Label(), "error", err)
		}
	}
	common.Logger().Info("grass toggled", "enabled", !anyEnabled)
}

// toggleHierarchy rebuilds every object with the other visibility hierarchy. The
// replacement keeps the label and flags and always reads its counts back.
func (e *engine) toggleHierarchy() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, k := range e.sortedKeys() {
		old := e.objects[k]
		s := old.Settings()
		if s.Hierarchy == grass.HierarchyChunks {
			s.Hierarchy = grass.HierarchySubChunks
		} else {
			s.Hierarchy = grass.HierarchyChunks
		}
		g, err := grass.New(e.renderer, e.queue, s,
			grass.WithLabel(old.Label()),
			grass.WithFlags(old.Flags()),
			grass.WithDebugCounts(true))
		if err != nil {
			return err
		}
		old.DestroyBuffers()
		e.objects[k] = g
		common.Logger().Info("grass hierarchy", "label", g.Label(), "hierarchy", s.Hierarchy)
	}
	return nil
}

func (e *engine) logCounts() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, k := range e.sortedKeys() {
		g := e.objects[k]
		c, ok := g.DebugCounts()
		if !ok {
			common.Logger().Info("grass counts unavailable", "label", g.Label())
			continue
		}
		common.Logger().Info("grass counts", "label", g.Label(), "high", c.High, "low", c.Low, "frame", c.Frame)
	}
}
