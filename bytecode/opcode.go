// Package bytecode defines the opcode stream format of a pngine module:
// one-byte opcodes followed by fixed operand patterns, with integers
// encoded as length-prefixed varints.
//
// The package holds both halves of the stream contract:
//   - Writer emits opcodes and operands (the compiler/emitter side).
//   - Scanner skips operands byte-exactly and discovers pass definitions
//     (the interpreter side).
//
// The two sides must agree on every operand layout; adding an opcode means
// extending Writer, Scanner.Skip, and the operand tests together.
package bytecode

// Op is a single-byte opcode identifier.
// Opcodes are organized into groups by their high nibble:
//
//	0x0X: no-op
//	0x1X: resource creation
//	0x2X: pass operations
//	0x3X: queue operations
//	0x4X: frame / pass control
//	0x5X: pool selection
//	0x6X: embedded VM
//	0x7X: data generation
type Op byte

const (
	// OpNop does nothing.
	// Operands: none.
	OpNop Op = 0x00

	// OpCreateBuffer creates a GPU buffer.
	// Operands: id:varint, size:varint, usage:u8.
	OpCreateBuffer Op = 0x10

	// OpCreateTexture creates a texture from a descriptor blob.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateTexture Op = 0x11

	// OpCreateSampler creates a sampler from a descriptor blob.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateSampler Op = 0x12

	// OpCreateShader creates a shader module from a WGSL table entry.
	// Operands: id:varint, wgsl_id:varint.
	OpCreateShader Op = 0x13

	// OpCreateRenderPipeline creates a render pipeline.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateRenderPipeline Op = 0x14

	// OpCreateComputePipeline creates a compute pipeline.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateComputePipeline Op = 0x15

	// OpCreateBindGroup creates a bind group.
	// Operands: id:varint, layout_id:varint, entries_data_id:varint.
	OpCreateBindGroup Op = 0x16

	// OpCreateBindGroupLayout creates a bind group layout.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateBindGroupLayout Op = 0x17

	// OpCreatePipelineLayout creates a pipeline layout.
	// Operands: id:varint, desc_data_id:varint.
	OpCreatePipelineLayout Op = 0x18

	// OpCreateTextureView creates a view over an existing texture.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateTextureView Op = 0x19

	// OpCreateQuerySet creates a query set.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateQuerySet Op = 0x1A

	// OpCreateImageBitmap decodes an image blob from the data section.
	// The blob layout is [mime_len:u8][mime][bytes].
	// Operands: id:varint, data_id:varint.
	OpCreateImageBitmap Op = 0x1B

	// OpCreateRenderBundle creates a render bundle.
	// Operands: id:varint, desc_data_id:varint.
	OpCreateRenderBundle Op = 0x1C

	// OpBeginRenderPass opens a render pass on the frame encoder.
	// Operands: color_id:varint, load:u8, store:u8, depth_id:varint.
	// depth_id 0xFFFF means no depth attachment.
	OpBeginRenderPass Op = 0x20

	// OpBeginComputePass opens a compute pass on the frame encoder.
	// Operands: none.
	OpBeginComputePass Op = 0x21

	// OpEndPass closes the active pass.
	// Operands: none.
	OpEndPass Op = 0x22

	// OpSetPipeline binds a pipeline to the active pass.
	// Operands: id:varint.
	OpSetPipeline Op = 0x23

	// OpSetBindGroup binds a bind group slot.
	// Operands: slot:u8, id:varint.
	OpSetBindGroup Op = 0x24

	// OpSetVertexBuffer binds a vertex buffer slot.
	// Operands: slot:u8, id:varint.
	OpSetVertexBuffer Op = 0x25

	// OpSetIndexBuffer binds the index buffer.
	// Operands: id:varint, index_format:u8 (0=u16, 1=u32).
	OpSetIndexBuffer Op = 0x26

	// OpDraw records a draw.
	// Operands: vtx:varint, inst:varint, first_vtx:varint, first_inst:varint.
	OpDraw Op = 0x27

	// OpDrawIndexed records an indexed draw.
	// Operands: idx:varint, inst:varint, first_idx:varint,
	// base_vtx:varint, first_inst:varint.
	OpDrawIndexed Op = 0x28

	// OpDispatch records a compute dispatch.
	// Operands: x:varint, y:varint, z:varint.
	OpDispatch Op = 0x29

	// OpExecuteBundles executes pre-recorded render bundles.
	// Operands: n:varint, then n x id:varint. At most the first
	// MaxExecuteBundles ids are executed; the rest are skipped.
	OpExecuteBundles Op = 0x2A

	// OpWriteBuffer writes a data-section blob into a buffer.
	// Operands: id:varint, offset:varint, data_id:varint.
	OpWriteBuffer Op = 0x30

	// OpWriteTimeUniform writes the packed time uniform into a buffer.
	// Operands: id:varint, offset:varint, size:varint.
	OpWriteTimeUniform Op = 0x31

	// OpSubmit finalizes the encoder and submits the frame.
	// Operands: none.
	OpSubmit Op = 0x32

	// OpCopyExternalImageToTexture uploads a decoded image bitmap.
	// Operands: image_id:varint, texture_id:varint.
	OpCopyExternalImageToTexture Op = 0x33

	// OpDefineFrame names a frame for diagnostics. Generates no backend
	// calls.
	// Operands: frame_id:varint, name_string_id:varint.
	OpDefineFrame Op = 0x40

	// OpEndFrame increments the frame counter. Generates no backend calls.
	// Operands: none.
	OpEndFrame Op = 0x41

	// OpDefinePass brackets a pass body up to the matching OpEndPassDef.
	// The body is not executed at definition time.
	// Operands: pass_id:varint, kind:u8 (0=render, 1=compute),
	// desc_id:varint.
	OpDefinePass Op = 0x42

	// OpEndPassDef terminates a pass definition.
	// Operands: none.
	OpEndPassDef Op = 0x43

	// OpExecPass executes a previously defined pass body.
	// Unknown pass ids are a silent no-op.
	// Operands: pass_id:varint.
	OpExecPass Op = 0x44

	// OpExecPassOnce executes a pass body at most once per dispatcher
	// lifetime. Unknown pass ids are a silent no-op.
	// Operands: pass_id:varint.
	OpExecPassOnce Op = 0x45

	// OpSetVertexBufferPool binds a vertex buffer selected from a
	// ping-pong pool: actual = base + (frame+offset) mod pool.
	// Operands: slot:u8, base:varint, pool:u8, offset:u8.
	OpSetVertexBufferPool Op = 0x50

	// OpSetBindGroupPool binds a bind group selected from a ping-pong
	// pool: actual = base + (frame+offset) mod pool.
	// Operands: slot:u8, base:varint, pool:u8, offset:u8.
	OpSetBindGroupPool Op = 0x51

	// OpInitWasmModule instantiates a wasm module from the data section.
	// Operands: module_id:varint, data_id:varint.
	OpInitWasmModule Op = 0x60

	// OpCallWasmFunc calls an exported wasm function.
	// Operands: module_id:varint, name_string_id:varint, argc:u8, then
	// argc x [arg_type:u8][payload]. Payload width depends on arg_type:
	// 0=i32 (varint), 1=i64 (8 bytes LE), 2=f32 (4 bytes), 3=f64 (8 bytes).
	OpCallWasmFunc Op = 0x61

	// OpWriteBufferFromWasm copies bytes out of a wasm module's memory
	// into a GPU buffer.
	// Operands: buffer_id:varint, offset:varint, module_id:varint,
	// src_ptr:varint, size:varint.
	OpWriteBufferFromWasm Op = 0x62

	// OpCreateTypedArray allocates a host-side typed array.
	// Operands: array_id:varint, elem_type:u8, count:varint.
	OpCreateTypedArray Op = 0x70

	// OpFillConstant fills a typed array with a constant.
	// Operands: array_id:varint, value:f64 (8 bytes LE).
	OpFillConstant Op = 0x71

	// OpFillRandom fills a typed array with deterministic pseudo-random
	// values in [0, 1).
	// Operands: array_id:varint, seed:varint.
	OpFillRandom Op = 0x72

	// OpFillExpression fills a typed array by evaluating an expression
	// from the string table per element.
	// Operands: array_id:varint, expr_string_id:varint.
	OpFillExpression Op = 0x73

	// OpWriteBufferFromArray writes a typed array into a GPU buffer.
	// Operands: buffer_id:varint, offset:varint, array_id:varint.
	OpWriteBufferFromArray Op = 0x74
)

// MaxExecuteBundles caps how many bundle ids a single OpExecuteBundles
// executes. Longer lists still have every varint consumed so the scanner
// and dispatcher stay in sync.
const MaxExecuteBundles = 16

// opNames maps opcodes to their assembly names.
var opNames = map[Op]string{
	OpNop:                        "nop",
	OpCreateBuffer:               "create_buffer",
	OpCreateTexture:              "create_texture",
	OpCreateSampler:              "create_sampler",
	OpCreateShader:               "create_shader",
	OpCreateRenderPipeline:       "create_render_pipeline",
	OpCreateComputePipeline:      "create_compute_pipeline",
	OpCreateBindGroup:            "create_bind_group",
	OpCreateBindGroupLayout:      "create_bind_group_layout",
	OpCreatePipelineLayout:       "create_pipeline_layout",
	OpCreateTextureView:          "create_texture_view",
	OpCreateQuerySet:             "create_query_set",
	OpCreateImageBitmap:          "create_image_bitmap",
	OpCreateRenderBundle:         "create_render_bundle",
	OpBeginRenderPass:            "begin_render_pass",
	OpBeginComputePass:           "begin_compute_pass",
	OpEndPass:                    "end_pass",
	OpSetPipeline:                "set_pipeline",
	OpSetBindGroup:               "set_bind_group",
	OpSetVertexBuffer:            "set_vertex_buffer",
	OpSetIndexBuffer:             "set_index_buffer",
	OpDraw:                       "draw",
	OpDrawIndexed:                "draw_indexed",
	OpDispatch:                   "dispatch",
	OpExecuteBundles:             "execute_bundles",
	OpWriteBuffer:                "write_buffer",
	OpWriteTimeUniform:           "write_time_uniform",
	OpSubmit:                     "submit",
	OpCopyExternalImageToTexture: "copy_external_image_to_texture",
	OpDefineFrame:                "define_frame",
	OpEndFrame:                   "end_frame",
	OpDefinePass:                 "define_pass",
	OpEndPassDef:                 "end_pass_def",
	OpExecPass:                   "exec_pass",
	OpExecPassOnce:               "exec_pass_once",
	OpSetVertexBufferPool:        "set_vertex_buffer_pool",
	OpSetBindGroupPool:           "set_bind_group_pool",
	OpInitWasmModule:             "init_wasm_module",
	OpCallWasmFunc:               "call_wasm_func",
	OpWriteBufferFromWasm:        "write_buffer_from_wasm",
	OpCreateTypedArray:           "create_typed_array",
	OpFillConstant:               "fill_constant",
	OpFillRandom:                 "fill_random",
	OpFillExpression:             "fill_expression",
	OpWriteBufferFromArray:       "write_buffer_from_array",
}

// String returns the assembly name of the opcode, or "unknown(0xNN)" for
// bytes that are not valid opcodes.
func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "unknown(0x" + hexByte(byte(op)) + ")"
}

// Valid reports whether op is a known opcode.
func (op Op) Valid() bool {
	_, ok := opNames[op]
	return ok
}

const hexDigits = "0123456789ABCDEF"

func hexByte(b byte) string {
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}

// Index format codes for OpSetIndexBuffer.
const (
	IndexFormatUint16 = 0
	IndexFormatUint32 = 1
)

// Load-op codes for OpBeginRenderPass.
const (
	LoadOpLoad  = 0
	LoadOpClear = 1
)

// Store-op codes for OpBeginRenderPass.
const (
	StoreOpStore   = 0
	StoreOpDiscard = 1
)

// Pass kind codes for OpDefinePass.
const (
	PassKindRender  = 0
	PassKindCompute = 1
)

// NoDepthAttachment is the depth_id operand value meaning "no depth
// attachment" in OpBeginRenderPass.
const NoDepthAttachment = 0xFFFF

// Buffer usage bits for OpCreateBuffer. The order matches the host
// decoder and must not change.
const (
	BufferUsageMapRead  = 0x01
	BufferUsageMapWrite = 0x02
	BufferUsageCopySrc  = 0x04
	BufferUsageCopyDst  = 0x08
	BufferUsageIndex    = 0x10
	BufferUsageVertex   = 0x20
	BufferUsageUniform  = 0x40
	BufferUsageStorage  = 0x80
)

// Wasm argument type codes for OpCallWasmFunc.
const (
	WasmArgI32 = 0
	WasmArgI64 = 1
	WasmArgF32 = 2
	WasmArgF64 = 3
)

// Typed-array element kinds for OpCreateTypedArray.
const (
	ElemF32 = 0
	ElemU32 = 1
	ElemI32 = 2
	ElemU8  = 3
)
