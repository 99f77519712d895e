// Package native implements the backend contract directly on a
// WebGPU-class API via the gogpu/wgpu HAL.
//
// The backend owns static resource tables indexed by the ids used in
// bytecode, a pass state machine over a per-frame command encoder, and
// the descriptor decoders that turn module data blobs into HAL
// descriptors. All resources are created up front by create opcodes;
// the frame loop performs no GPU allocation.
package native

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/internal/logging"
	"github.com/gogpu/pngine/internal/wasmrt"
)

// Resource table capacities. Ids at or past the capacity are rejected
// with ErrResourceRange.
const (
	MaxBuffers          = 256
	MaxTextures         = 256
	MaxTextureViews     = 256
	MaxSamplers         = 64
	MaxShaderModules    = 64
	MaxRenderPipelines  = 64
	MaxComputePipelines = 64
	MaxBindGroups       = 128
	MaxBindGroupLayouts = 64
	MaxPipelineLayouts  = 64
	MaxRenderBundles    = 64
	MaxQuerySets        = 16
	MaxImageBitmaps     = 64
)

// submitTimeout bounds the per-frame fence wait.
const submitTimeout = 5 * time.Second

// passState tracks the encoder/pass lifecycle.
type passState int

const (
	stateIdle passState = iota
	stateEncoderOpen
	stateRenderActive
	stateComputeActive
)

func (s passState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateEncoderOpen:
		return "encoder_open"
	case stateRenderActive:
		return "render_active"
	case stateComputeActive:
		return "compute_active"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// texSlot pairs a texture handle with its format, needed when views and
// attachments are derived from it.
type texSlot struct {
	tex    hal.Texture
	format gputypes.TextureFormat
	width  uint32
	height uint32
}

// Backend drives the GPU through hal.Device and hal.Queue. It is not
// safe for concurrent use; one instance serves one dispatcher.
type Backend struct {
	device hal.Device
	queue  hal.Queue

	// Static resource tables, indexed by bytecode ids.
	buffers      [MaxBuffers]hal.Buffer
	bufferSizes  [MaxBuffers]uint64
	textures     [MaxTextures]texSlot
	views        [MaxTextureViews]hal.TextureView
	samplers     [MaxSamplers]hal.Sampler
	shaders      [MaxShaderModules]hal.ShaderModule
	renderPipes  [MaxRenderPipelines]hal.RenderPipeline
	computePipes [MaxComputePipelines]hal.ComputePipeline
	bindGroups   [MaxBindGroups]hal.BindGroup
	bgLayouts    [MaxBindGroupLayouts]hal.BindGroupLayout
	pipeLayouts  [MaxPipelineLayouts]hal.PipelineLayout
	bundles      [MaxRenderBundles][]byte
	querySets    [MaxQuerySets]querySetDesc
	querySetSet  [MaxQuerySets]bool
	images       [MaxImageBitmaps]*imageBitmap

	// Transient frame state.
	state       passState
	encoder     hal.CommandEncoder
	renderPass  hal.RenderPassEncoder
	computePass hal.ComputePassEncoder

	// Surface stand-in: the frame's color target when a render pass
	// names no live texture view. Recreated on Configure.
	surfaceTex  hal.Texture
	surfaceView hal.TextureView
	depthTex    hal.Texture
	depthView   hal.TextureView
	width       uint32
	height      uint32

	plugins bytecode.PluginSet
	wasm    *wasmrt.Runtime

	frame    uint32
	time     float64
	lastTime float64

	compileSPIRV bool

	// ownedDevice is set when the registry factory opened the device;
	// Close releases it too.
	ownedDevice *Device

	log *slog.Logger
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithPlugins restricts the enabled plugin set. Defaults to all plugins.
func WithPlugins(p bytecode.PluginSet) Option {
	return func(b *Backend) { b.plugins = p }
}

// WithSPIRV makes shader creation compile WGSL to SPIR-V through naga
// before handing it to the device, for HAL backends that prefer SPIR-V
// input.
func WithSPIRV() Option {
	return func(b *Backend) { b.compileSPIRV = true }
}

// New creates a native backend over an opened HAL device and queue. The
// caller retains ownership of the device; Close releases only the
// resources the backend created.
func New(device hal.Device, queue hal.Queue, opts ...Option) *Backend {
	b := &Backend{
		device:  device,
		queue:   queue,
		plugins: bytecode.AllPlugins,
		log:     logging.Logger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns "native".
func (b *Backend) Name() string { return "native" }

// Configure sizes the backend's render target. Must be called before
// the first render pass that targets the surface; Resize reconfigures.
func (b *Backend) Configure(width, height uint32) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: zero surface extent", backend.ErrNoSurface)
	}
	b.releaseSurface()
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "pngine_surface_color",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("configure surface: %w", err)
	}
	view, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "pngine_surface_color_view",
	})
	if err != nil {
		b.device.DestroyTexture(tex)
		return fmt.Errorf("configure surface view: %w", err)
	}
	b.surfaceTex, b.surfaceView = tex, view
	b.width, b.height = width, height
	b.log.Info("surface configured", "width", width, "height", height)
	return nil
}

// Resize reconfigures the render target to a new extent.
func (b *Backend) Resize(width, height uint32) error {
	return b.Configure(width, height)
}

// Size returns the configured surface extent.
func (b *Backend) Size() (width, height uint32) {
	return b.width, b.height
}

// ensureDepth lazily creates the shared depth attachment at surface
// size.
func (b *Backend) ensureDepth() error {
	if b.depthView != nil {
		return nil
	}
	if b.width == 0 || b.height == 0 {
		return backend.ErrNoSurface
	}
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "pngine_depth",
		Size:          hal.Extent3D{Width: b.width, Height: b.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatDepth24Plus,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create depth texture: %w", err)
	}
	view, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: "pngine_depth_view",
	})
	if err != nil {
		b.device.DestroyTexture(tex)
		return fmt.Errorf("create depth view: %w", err)
	}
	b.depthTex, b.depthView = tex, view
	return nil
}

func (b *Backend) releaseSurface() {
	if b.surfaceView != nil {
		b.device.DestroyTextureView(b.surfaceView)
		b.surfaceView = nil
	}
	if b.surfaceTex != nil {
		b.device.DestroyTexture(b.surfaceTex)
		b.surfaceTex = nil
	}
	if b.depthView != nil {
		b.device.DestroyTextureView(b.depthView)
		b.depthView = nil
	}
	if b.depthTex != nil {
		b.device.DestroyTexture(b.depthTex)
		b.depthTex = nil
	}
}

// SetTime feeds wall-clock seconds into subsequent WriteTimeUniform
// calls.
func (b *Backend) SetTime(t float64) {
	b.lastTime = b.time
	b.time = t
}

// Close releases every resource the backend owns, in reverse dependency
// order. The device itself belongs to the caller.
func (b *Backend) Close() error {
	// Abandon any in-flight frame first.
	b.abortFrame()

	for i, bg := range b.bindGroups {
		if bg != nil {
			b.device.DestroyBindGroup(bg)
			b.bindGroups[i] = nil
		}
	}
	for i, p := range b.renderPipes {
		if p != nil {
			b.device.DestroyRenderPipeline(p)
			b.renderPipes[i] = nil
		}
	}
	for i, p := range b.computePipes {
		if p != nil {
			b.device.DestroyComputePipeline(p)
			b.computePipes[i] = nil
		}
	}
	for i, l := range b.pipeLayouts {
		if l != nil {
			b.device.DestroyPipelineLayout(l)
			b.pipeLayouts[i] = nil
		}
	}
	for i, l := range b.bgLayouts {
		if l != nil {
			b.device.DestroyBindGroupLayout(l)
			b.bgLayouts[i] = nil
		}
	}
	for i, s := range b.shaders {
		if s != nil {
			b.device.DestroyShaderModule(s)
			b.shaders[i] = nil
		}
	}
	for i, s := range b.samplers {
		if s != nil {
			b.device.DestroySampler(s)
			b.samplers[i] = nil
		}
	}
	for i, v := range b.views {
		if v != nil {
			b.device.DestroyTextureView(v)
			b.views[i] = nil
		}
	}
	for i, t := range b.textures {
		if t.tex != nil {
			b.device.DestroyTexture(t.tex)
			b.textures[i] = texSlot{}
		}
	}
	for i, buf := range b.buffers {
		if buf != nil {
			b.device.DestroyBuffer(buf)
			b.buffers[i] = nil
		}
	}
	b.releaseSurface()
	if b.wasm != nil {
		b.wasm.Close()
		b.wasm = nil
	}
	if b.ownedDevice != nil {
		b.ownedDevice.Release()
		b.ownedDevice = nil
	}
	return nil
}
