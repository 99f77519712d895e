// Package backend defines the capability set through which the
// dispatcher effects GPU work, and a registry for selecting concrete
// implementations.
//
// Backends are polymorphic over the capability set: the dispatcher knows
// the operations, never the implementation. Three implementations ship
// with pngine:
//   - backend/native drives a WebGPU-class API via gogpu/wgpu.
//   - backend/cmdbuf serializes every call into a compact command stream
//     for a host-side executor.
//   - backend/mock records calls for tests.
package backend

import (
	"errors"

	"github.com/gogpu/pngine/bytecode"
)

// Common backend errors. Implementations return these so callers can
// distinguish failure kinds with errors.Is regardless of the backend in
// use.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrPassActive is returned when a pass begins while another is active.
	ErrPassActive = errors.New("backend: a pass is already active")

	// ErrNoActivePass is returned when a pass-scoped operation runs with no
	// pass open.
	ErrNoActivePass = errors.New("backend: no active pass")

	// ErrNoSurface is returned when a render target is needed and no
	// surface or fallback texture is configured.
	ErrNoSurface = errors.New("backend: no surface configured")

	// ErrResourceNotFound is returned when an id does not name a live
	// resource.
	ErrResourceNotFound = errors.New("backend: resource not found")

	// ErrResourceRange is returned when an id exceeds a resource table's
	// capacity.
	ErrResourceRange = errors.New("backend: resource id out of range")

	// ErrPluginDisabled is returned when an opcode's owning plugin is not
	// enabled for the module.
	ErrPluginDisabled = errors.New("backend: plugin disabled")

	// ErrMalformedDescriptor is returned when a descriptor blob cannot be
	// decoded.
	ErrMalformedDescriptor = errors.New("backend: malformed descriptor")

	// ErrBufferOverflow is returned when the command-buffer backend's
	// output buffer cannot hold another command.
	ErrBufferOverflow = errors.New("backend: command buffer overflow")
)

// Backend is the capability set a dispatcher drives. One backend
// instance serves one module execution; implementations need not be safe
// for concurrent use.
//
// Blob parameters ([]byte descriptors, data-section slices) alias the
// module's memory image and are only valid for the duration of the call;
// implementations that need them longer must copy.
type Backend interface {
	// Name returns the backend identifier (e.g. "native", "cmdbuf").
	Name() string

	// Resource creation. Creates are idempotent: a second create with an
	// id already filled is a no-op.

	CreateBuffer(id uint32, size uint64, usage uint8) error
	CreateTexture(id uint32, desc []byte) error
	CreateSampler(id uint32, desc []byte) error
	// CreateShaderModule receives the fully resolved WGSL source; the
	// label is the module's debug name.
	CreateShaderModule(id uint32, label, source string) error
	CreateRenderPipeline(id uint32, desc []byte) error
	CreateComputePipeline(id uint32, desc []byte) error
	CreateBindGroup(id, layoutID uint32, entries []byte) error
	CreateBindGroupLayout(id uint32, desc []byte) error
	CreatePipelineLayout(id uint32, desc []byte) error
	CreateTextureView(id uint32, desc []byte) error
	CreateQuerySet(id uint32, desc []byte) error
	// CreateImageBitmap receives a [mime_len:u8][mime][bytes] blob.
	CreateImageBitmap(id uint32, blob []byte) error
	CreateRenderBundle(id uint32, desc []byte) error

	// Pass control. At most one pass is active at a time; passes run on a
	// frame encoder acquired on the first begin and released by Submit.

	BeginRenderPass(colorID uint32, loadOp, storeOp uint8, depthID uint32) error
	BeginComputePass() error
	EndPass() error

	// Bindings and recorded work, valid only inside a pass.

	SetPipeline(id uint32) error
	SetBindGroup(slot uint8, id uint32) error
	SetVertexBuffer(slot uint8, id uint32) error
	SetIndexBuffer(id uint32, indexFormat uint8) error
	Draw(vtx, inst, firstVtx, firstInst uint32) error
	DrawIndexed(idx, inst, firstIdx, baseVtx, firstInst uint32) error
	Dispatch(x, y, z uint32) error
	// ExecuteBundles runs pre-recorded bundles; ids aliases dispatcher
	// memory and must not be retained.
	ExecuteBundles(ids []uint32) error

	// Queue operations.

	WriteBuffer(id uint32, offset uint32, data []byte) error
	// WriteTimeUniform writes the packed frame-time uniform (time f32,
	// frame u32, dt f32, aspect f32), truncated to size bytes.
	WriteTimeUniform(id uint32, offset, size uint32) error
	CopyExternalImageToTexture(imageID, textureID uint32) error
	// Submit flushes recorded work, presents the surface if one is
	// configured, and releases the frame encoder.
	Submit() error

	// Embedded VM operations. Backends without wasm support return
	// ErrPluginDisabled.

	InitWasmModule(id uint32, code []byte) error
	CallWasmFunc(moduleID uint32, name string, args []bytecode.WasmArg) error
	WriteBufferFromWasm(bufferID, offset, moduleID, srcPtr, size uint32) error

	// SetTime feeds wall-clock seconds into subsequent WriteTimeUniform
	// calls. Called once per frame by the driver; never fails.
	SetTime(t float64)

	// Close releases every resource the backend owns. The backend must
	// not be used afterwards.
	Close() error
}
