package vm

import (
	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/pmod"
)

// Driver is the thin execution loop over a dispatcher: the pass scan
// runs once at construction, then one RunFrame per frame with the wall
// clock fed in.
type Driver[B backend.Backend] struct {
	d *Dispatcher[B]
}

// NewDriver creates a driver for mod running against be.
func NewDriver[B backend.Backend](mod *pmod.Module, be B) *Driver[B] {
	return &Driver[B]{d: New(mod, be)}
}

// Dispatcher returns the underlying dispatcher.
func (dr *Driver[B]) Dispatcher() *Dispatcher[B] { return dr.d }

// RenderFrame drives exactly one frame at the given wall-clock time in
// seconds. A failed frame leaves the driver retryable: the next call
// starts from a fresh pc.
func (dr *Driver[B]) RenderFrame(t float64) error {
	dr.d.SetTime(t)
	return dr.d.RunFrame()
}
