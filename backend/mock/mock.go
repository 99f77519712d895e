// Package mock provides a recording backend for tests. Every capability
// call appends a typed record; golden-sequence and property tests assert
// on the recorded stream. It is not a runtime backend and is
// intentionally not registered with the backend registry.
package mock

import (
	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
)

// Call is one recorded backend invocation. Args holds the numeric
// operands in declaration order; Str holds a label, shader source, or
// function name when the call carries one; Blob is a copy of any
// descriptor or data slice.
type Call struct {
	Name string
	Args []uint64
	Str  string
	Blob []byte
}

// Backend records every capability call. The zero value is ready to use.
type Backend struct {
	calls []Call
	time  float64

	// FailOn, when non-empty, makes the named call return FailErr.
	FailOn  string
	FailErr error
}

var _ backend.Backend = (*Backend)(nil)

// New creates an empty recording backend.
func New() *Backend { return &Backend{} }

// Name returns "mock".
func (b *Backend) Name() string { return "mock" }

// Calls returns the recorded calls in order.
func (b *Backend) Calls() []Call { return b.calls }

// Names returns just the call names, in order.
func (b *Backend) Names() []string {
	names := make([]string, len(b.calls))
	for i, c := range b.calls {
		names[i] = c.Name
	}
	return names
}

// Named returns the recorded calls with the given name, in order.
func (b *Backend) Named(name string) []Call {
	var out []Call
	for _, c := range b.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Reset discards the recorded calls.
func (b *Backend) Reset() { b.calls = b.calls[:0] }

// Time returns the last value passed to SetTime.
func (b *Backend) Time() float64 { return b.time }

func (b *Backend) record(name string, args ...uint64) error {
	b.calls = append(b.calls, Call{Name: name, Args: args})
	if b.FailOn == name {
		return b.FailErr
	}
	return nil
}

func (b *Backend) recordBlob(name string, blob []byte, args ...uint64) error {
	c := Call{Name: name, Args: args}
	if blob != nil {
		c.Blob = append([]byte{}, blob...)
	}
	b.calls = append(b.calls, c)
	if b.FailOn == name {
		return b.FailErr
	}
	return nil
}

func (b *Backend) recordStr(name, s string, args ...uint64) error {
	b.calls = append(b.calls, Call{Name: name, Args: args, Str: s})
	if b.FailOn == name {
		return b.FailErr
	}
	return nil
}

func (b *Backend) CreateBuffer(id uint32, size uint64, usage uint8) error {
	return b.record("create_buffer", uint64(id), size, uint64(usage))
}

func (b *Backend) CreateTexture(id uint32, desc []byte) error {
	return b.recordBlob("create_texture", desc, uint64(id))
}

func (b *Backend) CreateSampler(id uint32, desc []byte) error {
	return b.recordBlob("create_sampler", desc, uint64(id))
}

func (b *Backend) CreateShaderModule(id uint32, label, source string) error {
	return b.recordStr("create_shader_module", source, uint64(id))
}

func (b *Backend) CreateRenderPipeline(id uint32, desc []byte) error {
	return b.recordBlob("create_render_pipeline", desc, uint64(id))
}

func (b *Backend) CreateComputePipeline(id uint32, desc []byte) error {
	return b.recordBlob("create_compute_pipeline", desc, uint64(id))
}

func (b *Backend) CreateBindGroup(id, layoutID uint32, entries []byte) error {
	return b.recordBlob("create_bind_group", entries, uint64(id), uint64(layoutID))
}

func (b *Backend) CreateBindGroupLayout(id uint32, desc []byte) error {
	return b.recordBlob("create_bind_group_layout", desc, uint64(id))
}

func (b *Backend) CreatePipelineLayout(id uint32, desc []byte) error {
	return b.recordBlob("create_pipeline_layout", desc, uint64(id))
}

func (b *Backend) CreateTextureView(id uint32, desc []byte) error {
	return b.recordBlob("create_texture_view", desc, uint64(id))
}

func (b *Backend) CreateQuerySet(id uint32, desc []byte) error {
	return b.recordBlob("create_query_set", desc, uint64(id))
}

func (b *Backend) CreateImageBitmap(id uint32, blob []byte) error {
	return b.recordBlob("create_image_bitmap", blob, uint64(id))
}

func (b *Backend) CreateRenderBundle(id uint32, desc []byte) error {
	return b.recordBlob("create_render_bundle", desc, uint64(id))
}

func (b *Backend) BeginRenderPass(colorID uint32, loadOp, storeOp uint8, depthID uint32) error {
	return b.record("begin_render_pass", uint64(colorID), uint64(loadOp), uint64(storeOp), uint64(depthID))
}

func (b *Backend) BeginComputePass() error {
	return b.record("begin_compute_pass")
}

func (b *Backend) EndPass() error {
	return b.record("end_pass")
}

func (b *Backend) SetPipeline(id uint32) error {
	return b.record("set_pipeline", uint64(id))
}

func (b *Backend) SetBindGroup(slot uint8, id uint32) error {
	return b.record("set_bind_group", uint64(slot), uint64(id))
}

func (b *Backend) SetVertexBuffer(slot uint8, id uint32) error {
	return b.record("set_vertex_buffer", uint64(slot), uint64(id))
}

func (b *Backend) SetIndexBuffer(id uint32, indexFormat uint8) error {
	return b.record("set_index_buffer", uint64(id), uint64(indexFormat))
}

func (b *Backend) Draw(vtx, inst, firstVtx, firstInst uint32) error {
	return b.record("draw", uint64(vtx), uint64(inst), uint64(firstVtx), uint64(firstInst))
}

func (b *Backend) DrawIndexed(idx, inst, firstIdx, baseVtx, firstInst uint32) error {
	return b.record("draw_indexed", uint64(idx), uint64(inst), uint64(firstIdx), uint64(baseVtx), uint64(firstInst))
}

func (b *Backend) Dispatch(x, y, z uint32) error {
	return b.record("dispatch", uint64(x), uint64(y), uint64(z))
}

func (b *Backend) ExecuteBundles(ids []uint32) error {
	args := make([]uint64, len(ids))
	for i, id := range ids {
		args[i] = uint64(id)
	}
	return b.record("execute_bundles", args...)
}

func (b *Backend) WriteBuffer(id uint32, offset uint32, data []byte) error {
	return b.recordBlob("write_buffer", data, uint64(id), uint64(offset))
}

func (b *Backend) WriteTimeUniform(id uint32, offset, size uint32) error {
	return b.record("write_time_uniform", uint64(id), uint64(offset), uint64(size))
}

func (b *Backend) CopyExternalImageToTexture(imageID, textureID uint32) error {
	return b.record("copy_external_image_to_texture", uint64(imageID), uint64(textureID))
}

func (b *Backend) Submit() error {
	return b.record("submit")
}

func (b *Backend) InitWasmModule(id uint32, code []byte) error {
	return b.recordBlob("init_wasm_module", code, uint64(id))
}

func (b *Backend) CallWasmFunc(moduleID uint32, name string, args []bytecode.WasmArg) error {
	nums := make([]uint64, 0, len(args)+1)
	nums = append(nums, uint64(moduleID))
	for _, a := range args {
		switch a.Type {
		case bytecode.WasmArgI32:
			nums = append(nums, uint64(a.I32))
		case bytecode.WasmArgI64:
			nums = append(nums, a.I64)
		case bytecode.WasmArgF32:
			nums = append(nums, uint64(a.F32))
		default:
			nums = append(nums, uint64(a.F64))
		}
	}
	return b.recordStr("call_wasm_func", name, nums...)
}

func (b *Backend) WriteBufferFromWasm(bufferID, offset, moduleID, srcPtr, size uint32) error {
	return b.record("write_buffer_from_wasm", uint64(bufferID), uint64(offset), uint64(moduleID), uint64(srcPtr), uint64(size))
}

func (b *Backend) SetTime(t float64) { b.time = t }

func (b *Backend) Close() error {
	return b.record("close")
}
