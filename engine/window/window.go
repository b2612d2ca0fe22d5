package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// Window is a native window that owns a WebGPU surface and forwards input to callbacks.
// All callbacks run on the thread that calls ProcessMessages.
type Window interface {
	// SetUpdateCallback sets the function called once per loop iteration after events
	// have been processed. The host renders a frame from it.
	//
	// Parameters:
	//   - callback: the per-frame function
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer size changes.
	//
	// Parameters:
	//   - callback: receives the new framebuffer width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the function called on vertical scroll.
	//
	// Parameters:
	//   - callback: receives the scroll offset, positive away from the user
	SetScrollCallback(callback func(delta float32))

	// SetKeyCallback sets the function called when a key is pressed, repeated or
	// released. Escape always closes the window and is not forwarded.
	//
	// Parameters:
	//   - callback: receives the key code (see common key codes) and whether it is down
	SetKeyCallback(callback func(keyCode uint32, down bool))

	// SetDragCallback sets the function called when the cursor moves with the middle or
	// right mouse button held.
	//
	// Parameters:
	//   - callback: receives the cursor movement in pixels
	SetDragCallback(callback func(dx, dy float32))

	// SurfaceDescriptor returns the descriptor the renderer creates its surface from.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, nil once closed
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// Close destroys the window.
	//
	// Returns:
	//   - error: an error if the window was never opened
	Close() error

	// ProcessMessages runs the event loop until the window closes, calling the update
	// callback once per iteration.
	ProcessMessages()

	// Size returns the framebuffer size in pixels.
	//
	// Returns:
	//   - int: width
	//   - int: height
	Size() (int, int)

	// Time returns the seconds elapsed since the window was opened.
	Time() float64
}

type engineWindow struct {
	title string

	width, height       int
	minWidth, minHeight int

	// internalWindow holds the platform window
	internalWindow *glfwWindow

	onUpdate func()
	onResize func(width, height int)
	onScroll func(delta float32)
	onKey    func(keyCode uint32, down bool)
	onDrag   func(dx, dy float32)
}

var _ Window = &engineWindow{}

// NewWindow opens a window with the given options. It locks the calling goroutine to its
// OS thread, so it must be called from the goroutine that will run ProcessMessages.
//
// Parameters:
//   - options: a variadic list of WindowBuilderOption functions
//
// Returns:
//   - Window: the open window
//   - error: an error if the platform window cannot be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		title:     "oxy-grass",
		width:     1280,
		height:    720,
		minWidth:  320,
		minHeight: 200,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("create platform window: %w", err)
	}
	return w, nil
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetScrollCallback(callback func(delta float32)) {
	w.onScroll = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, down bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetDragCallback(callback func(dx, dy float32)) {
	w.onDrag = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Size() (int, int) {
	return w.width, w.height
}

func (w *engineWindow) Time() float64 {
	return platformTime()
}
