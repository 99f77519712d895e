// Package cmdbuf implements the command-buffer backend: every
// capability call is serialized into a compact binary stream that a
// host-side executor replays against its own GPU driver.
//
// Stream layout:
//
//	header (8 bytes): total_len:u32, cmd_count:u16, flags:u16
//	body:             N x [opcode:u8][operands...]
//	terminator:       0xFF
//
// Operand shapes mirror the bytecode layouts, with data-blob references
// replaced by (ptr:u32, len:u32) pairs. A pair with the high pointer bit
// clear refers into the module's memory image; with the bit set it
// refers into the drain-scoped keep-alive arena, which holds bytes that
// have no stable home in the image (resolved WGSL sources, generated
// arrays).
//
// The backend is stateless beyond the pre-sized output buffer and the
// arena. Writes are bounds-checked: a command that does not fit is
// dropped silently, counted, and logged at Warn level.
package cmdbuf

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/internal/logging"
)

// Default buffer capacities.
const (
	DefaultBufferSize = 256 << 10
	DefaultArenaSize  = 64 << 10
)

// headerSize is the fixed stream header length.
const headerSize = 8

// Terminator marks the end of the command stream.
const Terminator = 0xFF

// arenaBit flags a (ptr, len) pair as referring into the arena rather
// than the module image.
const arenaBit = 0x8000_0000

// flagArenaUsed is set in the header when any command references the
// arena.
const flagArenaUsed = 0x0001

// Backend serializes capability calls. It is created per module
// execution with the module's memory image, so blob operands that alias
// the image serialize as plain offsets.
type Backend struct {
	image []byte

	buf      []byte
	arena    []byte
	cmdCount uint16
	flags    uint16
	dropped  uint32

	time float64
}

var _ backend.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithBufferSize sets the output buffer capacity in bytes.
func WithBufferSize(n int) Option {
	return func(b *Backend) { b.buf = make([]byte, headerSize, n) }
}

// WithArenaSize sets the keep-alive arena capacity in bytes.
func WithArenaSize(n int) Option {
	return func(b *Backend) { b.arena = make([]byte, 0, n) }
}

// New creates a command-buffer backend over the given module memory
// image.
func New(image []byte, opts ...Option) *Backend {
	b := &Backend{
		image: image,
		buf:   make([]byte, headerSize, DefaultBufferSize),
		arena: make([]byte, 0, DefaultArenaSize),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func init() {
	// The registry factory builds a backend with no module image; blob
	// operands all route through the arena in that configuration.
	backend.Register("cmdbuf", func() backend.Backend { return New(nil) })
}

// Name returns "cmdbuf".
func (b *Backend) Name() string { return "cmdbuf" }

// Dropped returns how many commands were discarded because the buffer
// or arena was full.
func (b *Backend) Dropped() uint32 { return b.dropped }

// Drain finalizes and returns the stream and its keep-alive arena, then
// resets both for the next batch. The returned slices are invalidated by
// the next backend call.
func (b *Backend) Drain() (stream, arena []byte) {
	b.buf = append(b.buf, Terminator)
	binary.LittleEndian.PutUint32(b.buf[0:4], uint32(len(b.buf)))
	binary.LittleEndian.PutUint16(b.buf[4:6], b.cmdCount)
	binary.LittleEndian.PutUint16(b.buf[6:8], b.flags)
	stream, arena = b.buf, b.arena

	b.buf = b.buf[:headerSize]
	b.arena = b.arena[:0]
	b.cmdCount = 0
	b.flags = 0
	return stream, arena
}

// --- command writing -----------------------------------------------------

// cmd is an in-progress command write. Operand appends fail as a unit:
// if the buffer cannot hold the whole command, the write rolls back and
// the command is dropped.
type cmd struct {
	b     *Backend
	start int
	arena int
	ok    bool
}

func (b *Backend) begin(op bytecode.Op) *cmd {
	c := &cmd{b: b, start: len(b.buf), arena: len(b.arena), ok: true}
	c.u8(byte(op))
	return c
}

func (c *cmd) room(n int) bool {
	if !c.ok {
		return false
	}
	// Reserve one byte for the terminator.
	if len(c.b.buf)+n+1 > cap(c.b.buf) {
		c.ok = false
	}
	return c.ok
}

func (c *cmd) u8(v byte) *cmd {
	if c.room(1) {
		c.b.buf = append(c.b.buf, v)
	}
	return c
}

func (c *cmd) u32(v uint32) *cmd {
	if c.room(4) {
		c.b.buf = binary.LittleEndian.AppendUint32(c.b.buf, v)
	}
	return c
}

func (c *cmd) u64(v uint64) *cmd {
	if c.room(8) {
		c.b.buf = binary.LittleEndian.AppendUint64(c.b.buf, v)
	}
	return c
}

func (c *cmd) f32(v float32) *cmd {
	return c.u32(math.Float32bits(v))
}

// blob writes a (ptr, len) pair for data. Slices inside the module image
// serialize as image offsets; anything else is copied into the arena.
func (c *cmd) blob(data []byte) *cmd {
	if !c.ok {
		return c
	}
	if off, inside := sliceOffset(c.b.image, data); inside {
		return c.u32(off).u32(uint32(len(data)))
	}
	if len(c.b.arena)+len(data) > cap(c.b.arena) {
		c.ok = false
		return c
	}
	off := uint32(len(c.b.arena)) | arenaBit
	c.b.arena = append(c.b.arena, data...)
	c.b.flags |= flagArenaUsed
	return c.u32(off).u32(uint32(len(data)))
}

// str writes a (ptr, len) pair for a string via the arena.
func (c *cmd) str(s string) *cmd {
	if !c.ok {
		return c
	}
	if len(c.b.arena)+len(s) > cap(c.b.arena) {
		c.ok = false
		return c
	}
	off := uint32(len(c.b.arena)) | arenaBit
	c.b.arena = append(c.b.arena, s...)
	c.b.flags |= flagArenaUsed
	return c.u32(off).u32(uint32(len(s)))
}

// finish commits or rolls back the command. Dropping is silent by
// design: the host executor tolerates partial batches, and the drop
// counter plus a Warn record the loss.
func (c *cmd) finish() error {
	if !c.ok {
		c.b.buf = c.b.buf[:c.start]
		c.b.arena = c.b.arena[:c.arena]
		c.b.dropped++
		logging.Logger().Warn("cmdbuf: command dropped, buffer full",
			"dropped", c.b.dropped)
		return nil
	}
	c.b.cmdCount++
	return nil
}

// sliceOffset reports whether sub lies within outer, and its offset.
func sliceOffset(outer, sub []byte) (uint32, bool) {
	if len(outer) == 0 || len(sub) == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(unsafe.SliceData(outer)))
	p := uintptr(unsafe.Pointer(unsafe.SliceData(sub)))
	if p < base || p+uintptr(len(sub)) > base+uintptr(len(outer)) {
		return 0, false
	}
	return uint32(p - base), true
}

// --- capability set ------------------------------------------------------

func (b *Backend) CreateBuffer(id uint32, size uint64, usage uint8) error {
	return b.begin(bytecode.OpCreateBuffer).u32(id).u64(size).u8(usage).finish()
}

func (b *Backend) CreateTexture(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateTexture).u32(id).blob(desc).finish()
}

func (b *Backend) CreateSampler(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateSampler).u32(id).blob(desc).finish()
}

func (b *Backend) CreateShaderModule(id uint32, label, source string) error {
	return b.begin(bytecode.OpCreateShader).u32(id).str(source).finish()
}

func (b *Backend) CreateRenderPipeline(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateRenderPipeline).u32(id).blob(desc).finish()
}

func (b *Backend) CreateComputePipeline(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateComputePipeline).u32(id).blob(desc).finish()
}

func (b *Backend) CreateBindGroup(id, layoutID uint32, entries []byte) error {
	return b.begin(bytecode.OpCreateBindGroup).u32(id).u32(layoutID).blob(entries).finish()
}

func (b *Backend) CreateBindGroupLayout(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateBindGroupLayout).u32(id).blob(desc).finish()
}

func (b *Backend) CreatePipelineLayout(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreatePipelineLayout).u32(id).blob(desc).finish()
}

func (b *Backend) CreateTextureView(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateTextureView).u32(id).blob(desc).finish()
}

func (b *Backend) CreateQuerySet(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateQuerySet).u32(id).blob(desc).finish()
}

func (b *Backend) CreateImageBitmap(id uint32, blob []byte) error {
	return b.begin(bytecode.OpCreateImageBitmap).u32(id).blob(blob).finish()
}

func (b *Backend) CreateRenderBundle(id uint32, desc []byte) error {
	return b.begin(bytecode.OpCreateRenderBundle).u32(id).blob(desc).finish()
}

func (b *Backend) BeginRenderPass(colorID uint32, loadOp, storeOp uint8, depthID uint32) error {
	return b.begin(bytecode.OpBeginRenderPass).u32(colorID).u8(loadOp).u8(storeOp).u32(depthID).finish()
}

func (b *Backend) BeginComputePass() error {
	return b.begin(bytecode.OpBeginComputePass).finish()
}

func (b *Backend) EndPass() error {
	return b.begin(bytecode.OpEndPass).finish()
}

func (b *Backend) SetPipeline(id uint32) error {
	return b.begin(bytecode.OpSetPipeline).u32(id).finish()
}

func (b *Backend) SetBindGroup(slot uint8, id uint32) error {
	return b.begin(bytecode.OpSetBindGroup).u8(slot).u32(id).finish()
}

func (b *Backend) SetVertexBuffer(slot uint8, id uint32) error {
	return b.begin(bytecode.OpSetVertexBuffer).u8(slot).u32(id).finish()
}

func (b *Backend) SetIndexBuffer(id uint32, indexFormat uint8) error {
	return b.begin(bytecode.OpSetIndexBuffer).u32(id).u8(indexFormat).finish()
}

func (b *Backend) Draw(vtx, inst, firstVtx, firstInst uint32) error {
	return b.begin(bytecode.OpDraw).u32(vtx).u32(inst).u32(firstVtx).u32(firstInst).finish()
}

func (b *Backend) DrawIndexed(idx, inst, firstIdx, baseVtx, firstInst uint32) error {
	return b.begin(bytecode.OpDrawIndexed).u32(idx).u32(inst).u32(firstIdx).u32(baseVtx).u32(firstInst).finish()
}

func (b *Backend) Dispatch(x, y, z uint32) error {
	return b.begin(bytecode.OpDispatch).u32(x).u32(y).u32(z).finish()
}

func (b *Backend) ExecuteBundles(ids []uint32) error {
	c := b.begin(bytecode.OpExecuteBundles).u32(uint32(len(ids)))
	for _, id := range ids {
		c.u32(id)
	}
	return c.finish()
}

func (b *Backend) WriteBuffer(id uint32, offset uint32, data []byte) error {
	return b.begin(bytecode.OpWriteBuffer).u32(id).u32(offset).blob(data).finish()
}

// WriteTimeUniform serializes the request only; the host executor packs
// its own clock when replaying the stream.
func (b *Backend) WriteTimeUniform(id uint32, offset, size uint32) error {
	return b.begin(bytecode.OpWriteTimeUniform).u32(id).u32(offset).u32(size).finish()
}

func (b *Backend) CopyExternalImageToTexture(imageID, textureID uint32) error {
	return b.begin(bytecode.OpCopyExternalImageToTexture).u32(imageID).u32(textureID).finish()
}

func (b *Backend) Submit() error {
	return b.begin(bytecode.OpSubmit).finish()
}

func (b *Backend) InitWasmModule(id uint32, code []byte) error {
	return b.begin(bytecode.OpInitWasmModule).u32(id).blob(code).finish()
}

func (b *Backend) CallWasmFunc(moduleID uint32, name string, args []bytecode.WasmArg) error {
	c := b.begin(bytecode.OpCallWasmFunc).u32(moduleID).str(name).u8(byte(len(args)))
	for _, a := range args {
		c.u8(a.Type)
		switch a.Type {
		case bytecode.WasmArgI32:
			c.u32(a.I32)
		case bytecode.WasmArgI64:
			c.u64(a.I64)
		case bytecode.WasmArgF32:
			c.f32(a.F32)
		default:
			c.u64(math.Float64bits(a.F64))
		}
	}
	return c.finish()
}

func (b *Backend) WriteBufferFromWasm(bufferID, offset, moduleID, srcPtr, size uint32) error {
	return b.begin(bytecode.OpWriteBufferFromWasm).u32(bufferID).u32(offset).u32(moduleID).u32(srcPtr).u32(size).finish()
}

func (b *Backend) SetTime(t float64) { b.time = t }

func (b *Backend) Close() error {
	b.buf = b.buf[:headerSize]
	b.arena = b.arena[:0]
	b.cmdCount = 0
	b.flags = 0
	return nil
}
