package engine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-grass/common"
	"github.com/Carmen-Shannon/oxy-grass/engine/camera"
	"github.com/Carmen-Shannon/oxy-grass/engine/grass"
	"github.com/Carmen-Shannon/oxy-grass/engine/profiler"
	"github.com/Carmen-Shannon/oxy-grass/engine/renderer"
	"github.com/Carmen-Shannon/oxy-grass/engine/window"
)

// engine implements the Engine interface.
// Coordinates engine, render, and window threads.
type engine struct {
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	window   window.Window
	renderer renderer.Renderer
	queue    *renderer.StageQueue
	camera   camera.Camera

	// builder config used when the engine creates the renderer itself
	presentMode     renderer.PresentMode
	fallbackAdapter bool
	softwareWorkers int

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped

	// mu guards everything a frame touches: objects, time and pause state
	mu      sync.Mutex
	objects map[int]grass.Grass
	elapsed float32
	paused  bool

	input inputState
}

// Engine is the main entry point for the engine.
// It owns the renderer, the stage queue the render objects submit to, and the camera, and
// runs the engine loop, render loop and window.
type Engine interface {
	// Window returns the underlying window, nil when running headless.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer frames are executed on.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// CommandSink returns the sink render objects submit their command lists to.
	//
	// Returns:
	//   - renderer.CommandSink: the engine's stage queue
	CommandSink() renderer.CommandSink

	// Camera returns the camera every frame is rendered from.
	//
	// Returns:
	//   - camera.Camera: the camera
	Camera() camera.Camera

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for game logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, after held keys
	// have been applied to the camera.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each render frame.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// AddRenderObject registers a grass object at the given key.
	// Objects record their commands in ascending key order each frame.
	//
	// Parameters:
	//   - key: the order key (lower records first)
	//   - g: the grass object, built on this engine's Renderer and CommandSink
	AddRenderObject(key int, g grass.Grass)

	// RemoveRenderObject unregisters the object at key and returns it. The caller owns
	// its buffers afterwards.
	//
	// Parameters:
	//   - key: the order key
	//
	// Returns:
	//   - grass.Grass: the removed object, or nil
	RemoveRenderObject(key int) grass.Grass

	// RenderObject retrieves the object registered at key, or nil.
	//
	// Parameters:
	//   - key: the order key
	//
	// Returns:
	//   - grass.Grass: the object
	RenderObject(key int) grass.Grass

	// RenderObjects returns a copy of all registered objects keyed by order.
	//
	// Returns:
	//   - map[int]grass.Grass: a copy of the objects map
	RenderObjects() map[int]grass.Grass

	// SetPaused freezes or resumes the animation time passed to the render objects.
	//
	// Parameters:
	//   - paused: true to freeze time
	SetPaused(paused bool)

	// Paused reports whether animation time is frozen.
	Paused() bool

	// RenderFrame renders one frame: it updates the camera, lets every object record its
	// command list, executes the stage queue, presents and delivers finished readbacks.
	//
	// Parameters:
	//   - dt: seconds since the previous frame
	//
	// Returns:
	//   - error: an error if the frame cannot be started or a command list fails
	RenderFrame(dt float32) error

	// Run starts the engine and render loops. With a window it blocks until the window
	// closes; headless it blocks until Quit. Buffers, renderer and window are released
	// before it returns.
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// Without WithRenderer the engine creates one: a WebGPU renderer on the window surface when
// a window is set, the software renderer otherwise. Without WithCamera it creates an orbit
// camera.
//
// Parameters:
//   - options: functional options for engine configuration (window, renderer, profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error if the renderer cannot be created
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		objects:         make(map[int]grass.Grass),
		queue:           renderer.NewStageQueue(),
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
		presentMode:     renderer.PresentModeVSync,
	}

	for _, opt := range options {
		opt(e)
	}

	if e.renderer == nil {
		r, err := e.createRenderer()
		if err != nil {
			return nil, err
		}
		e.renderer = r
	}
	if e.camera == nil {
		e.camera = camera.NewCamera(camera.WithController(camera.NewCameraController()))
	}

	if e.window != nil {
		if w, h := e.window.Size(); w > 0 && h > 0 {
			e.camera.SetAspect(float32(w) / float32(h))
		}
		e.window.SetResizeCallback(e.resize)
		e.window.SetKeyCallback(e.handleKey)
		e.window.SetScrollCallback(e.handleScroll)
		e.window.SetDragCallback(e.handleDrag)
	}

	return e, nil
}

func (e *engine) createRenderer() (renderer.Renderer, error) {
	if e.window == nil {
		r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(e.softwareWorkers))
		if err != nil {
			return nil, fmt.Errorf("create software renderer: %w", err)
		}
		return r, nil
	}
	r, err := renderer.NewRenderer(renderer.BackendTypeWGPU,
		renderer.WithSurface(e.window.SurfaceDescriptor()),
		renderer.WithPresentMode(e.presentMode),
		renderer.WithForceSoftwareRenderer(e.fallbackAdapter))
	if err != nil {
		return nil, fmt.Errorf("create wgpu renderer: %w", err)
	}
	return r, nil
}

func (e *engine) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderer.Resize(width, height)
	e.camera.SetAspect(float32(width) / float32(height))
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) CommandSink() renderer.CommandSink {
	return e.queue
}

func (e *engine) Camera() camera.Camera {
	return e.camera
}

func (e *engine) Run() {
	e.running = true
	e.handle()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
	e.shutdown()
}

// shutdown releases every object's buffers, the renderer and the window.
func (e *engine) shutdown() {
	e.mu.Lock()
	for _, g := range e.objects {
		g.DestroyBuffers()
	}
	e.mu.Unlock()

	e.queue.Clear()
	e.renderer.Release()
	if e.window != nil {
		if err := e.window.Close(); err != nil {
			common.Logger().Warn("close window", "error", err)
		}
	}
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the engine, render, and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(3)
	go e.handleEngine()
	go e.handleRender()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Applies held keys to the camera and fires the tick callback at the configured tick rate,
// listening for dynamic rate changes via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			e.applyHeldKeys()
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery or on a
// frame error.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if err := e.RenderFrame(dt); err != nil {
				common.Logger().Error("render frame failed", "error", err)
				e.signalQuit()
				return
			}

			if e.renderCallback != nil {
				e.renderCallback(dt)
			}

			// Frame rate limiting
			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

func (e *engine) RenderFrame(dt float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.paused {
		e.elapsed += dt
	}

	if err := e.renderer.BeginFrame(); err != nil {
		e.queue.Clear()
		return fmt.Errorf("begin frame: %w", err)
	}

	e.camera.Update()
	frame := grass.NewFrameContext(e.camera.ViewProjectionMatrix(), e.camera.Position(), e.elapsed)
	keys := e.sortedKeys()
	for _, k := range keys {
		e.objects[k].RenderSceneObject(frame)
	}

	if err := e.queue.Flush(e.renderer); err != nil {
		e.renderer.EndFrame()
		return err
	}
	e.renderer.EndFrame()
	e.renderer.Present()
	e.renderer.Poll()

	if e.profilingEnabled && e.profiler != nil {
		for _, k := range keys {
			g := e.objects[k]
			if c, ok := g.DebugCounts(); ok {
				e.profiler.RecordCounts(g.Label(), c.High, c.Low)
			}
		}
		e.profiler.Tick(e.renderer.Stats())
	}
	return nil
}

// sortedKeys returns the object keys in ascending order. Caller must hold the mutex.
func (e *engine) sortedKeys() []int {
	keys := make([]int, 0, len(e.objects))
	for k := range e.objects {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) AddRenderObject(key int, g grass.Grass) {
	if g == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.objects[key] = g
}

func (e *engine) RemoveRenderObject(key int) grass.Grass {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.objects[key]
	delete(e.objects, key)
	return g
}

func (e *engine) RenderObject(key int) grass.Grass {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.objects[key]
}

func (e *engine) RenderObjects() map[int]grass.Grass {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make(map[int]grass.Grass, len(e.objects))
	for k, v := range e.objects {
		cp[k] = v
	}
	return cp
}

func (e *engine) SetPaused(paused bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paused = paused
}

func (e *engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}
