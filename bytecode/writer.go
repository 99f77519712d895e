package bytecode

import (
	"encoding/binary"
	"math"
)

// Writer builds an opcode stream. It is the emitter side of the stream
// contract: every method lays operands down exactly as Scanner.Skip reads
// them back.
//
// The zero value is ready to use. Bytes returns the accumulated stream.
type Writer struct {
	buf []byte
}

// NewWriter creates a Writer with capacity preallocated for n bytes.
func NewWriter(n int) *Writer {
	return &Writer{buf: make([]byte, 0, n)}
}

// Bytes returns the emitted stream. The slice aliases the writer's
// internal buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes emitted so far.
func (w *Writer) Len() int { return len(w.buf) }

// Reset discards the emitted stream, keeping the allocation.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) op(op Op) *Writer {
	w.buf = append(w.buf, byte(op))
	return w
}

func (w *Writer) varint(v uint32) *Writer {
	w.buf = AppendVarint(w.buf, v)
	return w
}

func (w *Writer) u8(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

func (w *Writer) f32(v float32) *Writer {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(v))
	return w
}

func (w *Writer) u64(v uint64) *Writer {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
	return w
}

// Nop emits OpNop.
func (w *Writer) Nop() { w.op(OpNop) }

// CreateBuffer emits OpCreateBuffer.
func (w *Writer) CreateBuffer(id, size uint32, usage byte) {
	w.op(OpCreateBuffer).varint(id).varint(size).u8(usage)
}

// CreateTexture emits OpCreateTexture.
func (w *Writer) CreateTexture(id, descDataID uint32) {
	w.op(OpCreateTexture).varint(id).varint(descDataID)
}

// CreateSampler emits OpCreateSampler.
func (w *Writer) CreateSampler(id, descDataID uint32) {
	w.op(OpCreateSampler).varint(id).varint(descDataID)
}

// CreateShader emits OpCreateShader.
func (w *Writer) CreateShader(id, wgslID uint32) {
	w.op(OpCreateShader).varint(id).varint(wgslID)
}

// CreateRenderPipeline emits OpCreateRenderPipeline.
func (w *Writer) CreateRenderPipeline(id, descDataID uint32) {
	w.op(OpCreateRenderPipeline).varint(id).varint(descDataID)
}

// CreateComputePipeline emits OpCreateComputePipeline.
func (w *Writer) CreateComputePipeline(id, descDataID uint32) {
	w.op(OpCreateComputePipeline).varint(id).varint(descDataID)
}

// CreateBindGroup emits OpCreateBindGroup.
func (w *Writer) CreateBindGroup(id, layoutID, entriesDataID uint32) {
	w.op(OpCreateBindGroup).varint(id).varint(layoutID).varint(entriesDataID)
}

// CreateBindGroupLayout emits OpCreateBindGroupLayout.
func (w *Writer) CreateBindGroupLayout(id, descDataID uint32) {
	w.op(OpCreateBindGroupLayout).varint(id).varint(descDataID)
}

// CreatePipelineLayout emits OpCreatePipelineLayout.
func (w *Writer) CreatePipelineLayout(id, descDataID uint32) {
	w.op(OpCreatePipelineLayout).varint(id).varint(descDataID)
}

// CreateTextureView emits OpCreateTextureView.
func (w *Writer) CreateTextureView(id, descDataID uint32) {
	w.op(OpCreateTextureView).varint(id).varint(descDataID)
}

// CreateQuerySet emits OpCreateQuerySet.
func (w *Writer) CreateQuerySet(id, descDataID uint32) {
	w.op(OpCreateQuerySet).varint(id).varint(descDataID)
}

// CreateImageBitmap emits OpCreateImageBitmap.
func (w *Writer) CreateImageBitmap(id, dataID uint32) {
	w.op(OpCreateImageBitmap).varint(id).varint(dataID)
}

// CreateRenderBundle emits OpCreateRenderBundle.
func (w *Writer) CreateRenderBundle(id, descDataID uint32) {
	w.op(OpCreateRenderBundle).varint(id).varint(descDataID)
}

// BeginRenderPass emits OpBeginRenderPass.
func (w *Writer) BeginRenderPass(colorID uint32, loadOp, storeOp byte, depthID uint32) {
	w.op(OpBeginRenderPass).varint(colorID).u8(loadOp).u8(storeOp).varint(depthID)
}

// BeginComputePass emits OpBeginComputePass.
func (w *Writer) BeginComputePass() { w.op(OpBeginComputePass) }

// EndPass emits OpEndPass.
func (w *Writer) EndPass() { w.op(OpEndPass) }

// SetPipeline emits OpSetPipeline.
func (w *Writer) SetPipeline(id uint32) { w.op(OpSetPipeline).varint(id) }

// SetBindGroup emits OpSetBindGroup.
func (w *Writer) SetBindGroup(slot byte, id uint32) {
	w.op(OpSetBindGroup).u8(slot).varint(id)
}

// SetVertexBuffer emits OpSetVertexBuffer.
func (w *Writer) SetVertexBuffer(slot byte, id uint32) {
	w.op(OpSetVertexBuffer).u8(slot).varint(id)
}

// SetIndexBuffer emits OpSetIndexBuffer.
func (w *Writer) SetIndexBuffer(id uint32, indexFormat byte) {
	w.op(OpSetIndexBuffer).varint(id).u8(indexFormat)
}

// Draw emits OpDraw.
func (w *Writer) Draw(vtx, inst, firstVtx, firstInst uint32) {
	w.op(OpDraw).varint(vtx).varint(inst).varint(firstVtx).varint(firstInst)
}

// DrawIndexed emits OpDrawIndexed.
func (w *Writer) DrawIndexed(idx, inst, firstIdx, baseVtx, firstInst uint32) {
	w.op(OpDrawIndexed).varint(idx).varint(inst).varint(firstIdx).varint(baseVtx).varint(firstInst)
}

// Dispatch emits OpDispatch.
func (w *Writer) Dispatch(x, y, z uint32) {
	w.op(OpDispatch).varint(x).varint(y).varint(z)
}

// ExecuteBundles emits OpExecuteBundles. Every id is emitted even past
// MaxExecuteBundles; execution caps, the encoding does not.
func (w *Writer) ExecuteBundles(ids []uint32) {
	w.op(OpExecuteBundles).varint(uint32(len(ids)))
	for _, id := range ids {
		w.varint(id)
	}
}

// WriteBuffer emits OpWriteBuffer.
func (w *Writer) WriteBuffer(id, offset, dataID uint32) {
	w.op(OpWriteBuffer).varint(id).varint(offset).varint(dataID)
}

// WriteTimeUniform emits OpWriteTimeUniform.
func (w *Writer) WriteTimeUniform(id, offset, size uint32) {
	w.op(OpWriteTimeUniform).varint(id).varint(offset).varint(size)
}

// Submit emits OpSubmit.
func (w *Writer) Submit() { w.op(OpSubmit) }

// CopyExternalImageToTexture emits OpCopyExternalImageToTexture.
func (w *Writer) CopyExternalImageToTexture(imageID, textureID uint32) {
	w.op(OpCopyExternalImageToTexture).varint(imageID).varint(textureID)
}

// DefineFrame emits OpDefineFrame.
func (w *Writer) DefineFrame(frameID, nameStringID uint32) {
	w.op(OpDefineFrame).varint(frameID).varint(nameStringID)
}

// EndFrame emits OpEndFrame.
func (w *Writer) EndFrame() { w.op(OpEndFrame) }

// DefinePass emits OpDefinePass.
func (w *Writer) DefinePass(passID uint32, kind byte, descID uint32) {
	w.op(OpDefinePass).varint(passID).u8(kind).varint(descID)
}

// EndPassDef emits OpEndPassDef.
func (w *Writer) EndPassDef() { w.op(OpEndPassDef) }

// ExecPass emits OpExecPass.
func (w *Writer) ExecPass(passID uint32) { w.op(OpExecPass).varint(passID) }

// ExecPassOnce emits OpExecPassOnce.
func (w *Writer) ExecPassOnce(passID uint32) { w.op(OpExecPassOnce).varint(passID) }

// SetVertexBufferPool emits OpSetVertexBufferPool.
func (w *Writer) SetVertexBufferPool(slot byte, base uint32, pool, offset byte) {
	w.op(OpSetVertexBufferPool).u8(slot).varint(base).u8(pool).u8(offset)
}

// SetBindGroupPool emits OpSetBindGroupPool.
func (w *Writer) SetBindGroupPool(slot byte, base uint32, pool, offset byte) {
	w.op(OpSetBindGroupPool).u8(slot).varint(base).u8(pool).u8(offset)
}

// InitWasmModule emits OpInitWasmModule.
func (w *Writer) InitWasmModule(moduleID, dataID uint32) {
	w.op(OpInitWasmModule).varint(moduleID).varint(dataID)
}

// WasmArg is a single argument for CallWasmFunc.
type WasmArg struct {
	Type byte // WasmArgI32, WasmArgI64, WasmArgF32, WasmArgF64

	I32 uint32
	I64 uint64
	F32 float32
	F64 float64
}

// CallWasmFunc emits OpCallWasmFunc. The argument count is capped at 255.
func (w *Writer) CallWasmFunc(moduleID, nameStringID uint32, args []WasmArg) {
	if len(args) > 255 {
		args = args[:255]
	}
	w.op(OpCallWasmFunc).varint(moduleID).varint(nameStringID).u8(byte(len(args)))
	for _, a := range args {
		w.u8(a.Type)
		switch a.Type {
		case WasmArgI32:
			w.varint(a.I32)
		case WasmArgI64:
			w.u64(a.I64)
		case WasmArgF32:
			w.f32(a.F32)
		default:
			w.u64(math.Float64bits(a.F64))
		}
	}
}

// WriteBufferFromWasm emits OpWriteBufferFromWasm.
func (w *Writer) WriteBufferFromWasm(bufferID, offset, moduleID, srcPtr, size uint32) {
	w.op(OpWriteBufferFromWasm).varint(bufferID).varint(offset).varint(moduleID).varint(srcPtr).varint(size)
}

// CreateTypedArray emits OpCreateTypedArray.
func (w *Writer) CreateTypedArray(arrayID uint32, elemType byte, count uint32) {
	w.op(OpCreateTypedArray).varint(arrayID).u8(elemType).varint(count)
}

// FillConstant emits OpFillConstant.
func (w *Writer) FillConstant(arrayID uint32, value float64) {
	w.op(OpFillConstant).varint(arrayID).u64(math.Float64bits(value))
}

// FillRandom emits OpFillRandom.
func (w *Writer) FillRandom(arrayID, seed uint32) {
	w.op(OpFillRandom).varint(arrayID).varint(seed)
}

// FillExpression emits OpFillExpression.
func (w *Writer) FillExpression(arrayID, exprStringID uint32) {
	w.op(OpFillExpression).varint(arrayID).varint(exprStringID)
}

// WriteBufferFromArray emits OpWriteBufferFromArray.
func (w *Writer) WriteBufferFromArray(bufferID, offset, arrayID uint32) {
	w.op(OpWriteBufferFromArray).varint(bufferID).varint(offset).varint(arrayID)
}
