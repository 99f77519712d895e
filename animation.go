package pngine

import (
	"fmt"
	"sync"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/backend/native"
	"github.com/gogpu/pngine/pmod"
	"github.com/gogpu/pngine/vm"
)

// ErrorCallback receives non-fatal and fatal error notifications from
// Render. Callbacks run on the rendering goroutine and must be quick.
type ErrorCallback func(code ErrorCode, msg string)

// rt is the process-wide runtime state: an explicit struct with
// init/teardown rules rather than scattered globals.
var rt struct {
	mu          sync.Mutex
	initialized bool
	onError     ErrorCallback
}

// Init performs process-wide setup. It is required before Create and
// idempotent only in the sense that a second call reports
// ErrAlreadyInitialized without disturbing state.
func Init() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.initialized {
		return ErrAlreadyInitialized
	}
	rt.initialized = true
	return nil
}

// Shutdown tears down process-wide state. Animations must be destroyed
// first; Shutdown does not chase them.
func Shutdown() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.initialized = false
	rt.onError = nil
}

// SetErrorCallback installs a thread-safe error sink. Pass nil to
// remove it.
func SetErrorCallback(cb ErrorCallback) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.onError = cb
}

func notifyError(code ErrorCode, msg string) {
	rt.mu.Lock()
	cb := rt.onError
	rt.mu.Unlock()
	if cb != nil {
		cb(code, msg)
	}
}

// Animation is one loaded module bound to one backend. It is confined
// to a single goroutine; distinct animations may run on distinct
// goroutines.
type Animation struct {
	mod    *pmod.Module
	be     backend.Backend
	driver *vm.Driver[backend.Backend]

	// nat is set when the backend is the native one, for Resize.
	nat *native.Backend

	destroyed bool
}

// Create parses a module and binds it to a backend. On failure no
// animation handle is returned and no resources leak.
func Create(data []byte, opts ...Option) (*Animation, error) {
	rt.mu.Lock()
	initialized := rt.initialized
	rt.mu.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	mod, err := pmod.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	be := o.backendInst
	if be == nil {
		if o.backendName != "" {
			be = backend.Get(o.backendName)
		} else {
			be = backend.Default()
		}
	}
	if be == nil {
		return nil, ErrNoBackend
	}

	a := &Animation{mod: mod, be: be}
	if nat, ok := be.(*native.Backend); ok {
		a.nat = nat
		if err := nat.Configure(o.width, o.height); err != nil {
			_ = be.Close()
			return nil, fmt.Errorf("create: %w", err)
		}
	}
	a.driver = vm.NewDriver(mod, be)
	Logger().Info("animation created",
		"backend", be.Name(),
		"bytecode", len(mod.Bytecode()),
		"passes", len(a.driver.Dispatcher().PassRanges()))
	return a, nil
}

// Render drives exactly one frame at the given wall-clock time in
// seconds. A failed frame reports its code (and the error callback)
// but leaves the animation retryable on the next frame.
func (a *Animation) Render(timeSeconds float64) ErrorCode {
	if a.destroyed {
		return CodeContextFailed
	}
	if err := a.driver.RenderFrame(timeSeconds); err != nil {
		code := codeFor(err)
		notifyError(code, err.Error())
		Logger().Warn("render failed", "code", code.String(), "error", err)
		return code
	}
	return CodeOK
}

// Resize reconfigures the surface extent. Backends without a surface
// ignore it.
func (a *Animation) Resize(width, height uint32) ErrorCode {
	if a.destroyed {
		return CodeContextFailed
	}
	if a.nat == nil {
		return CodeOK
	}
	if err := a.nat.Resize(width, height); err != nil {
		code := codeFor(err)
		notifyError(code, err.Error())
		return code
	}
	return CodeOK
}

// Destroy releases all backend resources. The animation must not be
// used afterwards.
func (a *Animation) Destroy() {
	if a.destroyed {
		return
	}
	a.destroyed = true
	if err := a.be.Close(); err != nil {
		Logger().Warn("backend close failed", "error", err)
	}
}

// FrameCount returns the number of completed frames.
func (a *Animation) FrameCount() uint32 {
	return a.driver.Dispatcher().FrameCounter()
}

// ComputeCounters returns the packed compute diagnostics:
// dispatches in the high 32 bits, frames in the low 32.
func (a *Animation) ComputeCounters() uint64 {
	c := a.driver.Dispatcher().Counters()
	return uint64(c.Dispatches)<<32 | uint64(c.Frames)
}

// RenderCounters returns the packed render diagnostics:
// draws in the high 32 bits, frames in the low 32.
func (a *Animation) RenderCounters() uint64 {
	c := a.driver.Dispatcher().Counters()
	return uint64(c.Draws)<<32 | uint64(c.Frames)
}

// ResetCounters zeroes the per-animation diagnostic counters.
func (a *Animation) ResetCounters() {
	a.driver.Dispatcher().ResetCounters()
}
