package pngine

import (
	"github.com/gogpu/pngine/backend"
)

// options collects Create configuration.
type options struct {
	backendName string
	backendInst backend.Backend
	width       uint32
	height      uint32
}

func defaultOptions() options {
	return options{
		width:  640,
		height: 480,
	}
}

// Option configures Create.
type Option func(*options)

// WithBackendName selects a registered backend by name ("native",
// "cmdbuf"). The default is the registry's priority order.
func WithBackendName(name string) Option {
	return func(o *options) { o.backendName = name }
}

// WithBackend supplies a pre-built backend instance, bypassing the
// registry. The animation takes ownership and closes it on Destroy.
func WithBackend(b backend.Backend) Option {
	return func(o *options) { o.backendInst = b }
}

// WithSize sets the surface extent the backend is configured to.
// Defaults to 640x480.
func WithSize(width, height uint32) Option {
	return func(o *options) { o.width, o.height = width, height }
}
