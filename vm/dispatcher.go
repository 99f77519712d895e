package vm

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/bytecode"
	"github.com/gogpu/pngine/internal/logging"
	"github.com/gogpu/pngine/pmod"
)

// Counters are per-dispatcher diagnostic tallies. They are owned by the
// dispatcher's goroutine; hosts snapshot them between frames.
type Counters struct {
	Frames       uint32
	Draws        uint32
	Dispatches   uint32
	MissedPasses uint32
}

// Dispatcher decodes opcodes and drives a backend. It is parameterized
// on the concrete backend type so per-opcode calls can devirtualize when
// the instantiation is statically known; dynamic selection happens once,
// at construction, in the caller.
//
// A dispatcher is confined to one goroutine. The module is read-only and
// freely shared; everything else here is private state.
type Dispatcher[B backend.Backend] struct {
	mod *pmod.Module
	be  B

	r       *bytecode.Reader
	scanner *bytecode.Scanner

	passRanges map[uint32]bytecode.PassRange
	once       onceSet
	frame      uint32
	inPassDef  bool
	inFrameDef bool

	counters Counters
	time     float64

	arrays    map[uint32]*typedArray
	exprProgs map[uint32]compiledExpr

	// bundleScratch backs ExecuteBundles id slices so pass execution
	// allocates nothing.
	bundleScratch [bytecode.MaxExecuteBundles]uint32

	log *slog.Logger
}

// New creates a dispatcher for mod driving be. The whole bytecode is
// scanned once up front so forward exec_pass references resolve.
func New[B backend.Backend](mod *pmod.Module, be B) *Dispatcher[B] {
	code := mod.Bytecode()
	s := bytecode.NewScanner(code)
	return &Dispatcher[B]{
		mod:        mod,
		be:         be,
		r:          bytecode.NewReader(code),
		scanner:    s,
		passRanges: s.ScanPassDefinitions(),
		arrays:     make(map[uint32]*typedArray),
		log:        logging.Logger(),
	}
}

// Backend returns the backend the dispatcher drives.
func (d *Dispatcher[B]) Backend() B { return d.be }

// FrameCounter returns the number of completed frames.
func (d *Dispatcher[B]) FrameCounter() uint32 { return d.frame }

// Counters returns a snapshot of the diagnostic counters.
func (d *Dispatcher[B]) Counters() Counters { return d.counters }

// ResetCounters zeroes the diagnostic counters.
func (d *Dispatcher[B]) ResetCounters() { d.counters = Counters{} }

// PassRanges returns the discovered pass ranges. The map is owned by
// the dispatcher; callers must not modify it.
func (d *Dispatcher[B]) PassRanges() map[uint32]bytecode.PassRange { return d.passRanges }

// SetTime feeds wall-clock seconds to the backend and to expression
// fills. Called once per frame, before RunFrame.
func (d *Dispatcher[B]) SetTime(t float64) {
	d.time = t
	d.be.SetTime(t)
}

// RunFrame executes one frame: pc is reset to zero and opcodes are
// stepped until the end of the stream or the per-frame budget. A decode
// or backend error aborts the frame and is returned; the dispatcher may
// be retried on the next frame.
func (d *Dispatcher[B]) RunFrame() error {
	d.r.SetPC(0)
	for steps := 0; !d.r.AtEnd(); steps++ {
		if steps >= MaxFrameOpcodes {
			return fmt.Errorf("%w: frame exceeded %d opcodes", ErrOpcodeBudget, MaxFrameOpcodes)
		}
		if err := d.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step decodes and executes the single opcode at pc.
func (d *Dispatcher[B]) Step() error {
	op, err := d.r.Op()
	if err != nil {
		return err
	}
	if !op.Valid() {
		return fmt.Errorf("%w: %#02x at pc %d", ErrUnknownOpcode, byte(op), d.r.PC()-1)
	}
	if !d.mod.Plugins().Has(bytecode.OwningPlugin(op)) {
		return fmt.Errorf("%w: %s needs %s", ErrPluginDisabled, op, bytecode.OwningPlugin(op))
	}
	return d.exec(op)
}

// exec runs one validated opcode. Operand decoding and backend routing
// live together so the operand order is visible next to the call.
func (d *Dispatcher[B]) exec(op bytecode.Op) error {
	switch op {
	case bytecode.OpNop:
		return nil

	// --- Resource creation -------------------------------------------

	case bytecode.OpCreateBuffer:
		id, size, err := d.varint2()
		if err != nil {
			return err
		}
		usage, err := d.r.U8()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateBuffer(id, uint64(size), usage))

	case bytecode.OpCreateTexture:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateTexture(id, desc))
	case bytecode.OpCreateSampler:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateSampler(id, desc))
	case bytecode.OpCreateRenderPipeline:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateRenderPipeline(id, desc))
	case bytecode.OpCreateComputePipeline:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateComputePipeline(id, desc))
	case bytecode.OpCreateBindGroupLayout:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateBindGroupLayout(id, desc))
	case bytecode.OpCreatePipelineLayout:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreatePipelineLayout(id, desc))
	case bytecode.OpCreateTextureView:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateTextureView(id, desc))
	case bytecode.OpCreateQuerySet:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateQuerySet(id, desc))
	case bytecode.OpCreateRenderBundle:
		id, desc, err := d.idAndData()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CreateRenderBundle(id, desc))

	case bytecode.OpCreateShader:
		id, wgslID, err := d.varint2()
		if err != nil {
			return err
		}
		if _, ok := d.mod.WGSL(wgslID); !ok {
			return fmt.Errorf("%w: %d", ErrMissingWGSL, wgslID)
		}
		// The resolved source is a transient allocation; the backend
		// consumes or copies it before returning.
		source, err := d.mod.ResolveWGSL(wgslID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		label := fmt.Sprintf("shader_%d", wgslID)
		return d.call(op, d.be.CreateShaderModule(id, label, source))

	case bytecode.OpCreateBindGroup:
		id, layoutID, err := d.varint2()
		if err != nil {
			return err
		}
		entriesID, err := d.r.Varint()
		if err != nil {
			return err
		}
		entries, ok := d.mod.Data(entriesID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingData, entriesID)
		}
		return d.call(op, d.be.CreateBindGroup(id, layoutID, entries))

	case bytecode.OpCreateImageBitmap:
		id, dataID, err := d.varint2()
		if err != nil {
			return err
		}
		blob, ok := d.mod.Data(dataID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingData, dataID)
		}
		return d.call(op, d.be.CreateImageBitmap(id, blob))

	// --- Pass operations ---------------------------------------------

	case bytecode.OpBeginRenderPass:
		colorID, err := d.r.Varint()
		if err != nil {
			return err
		}
		loadOp, err := d.r.U8()
		if err != nil {
			return err
		}
		storeOp, err := d.r.U8()
		if err != nil {
			return err
		}
		depthID, err := d.r.Varint()
		if err != nil {
			return err
		}
		return d.call(op, d.be.BeginRenderPass(colorID, loadOp, storeOp, depthID))

	case bytecode.OpBeginComputePass:
		return d.call(op, d.be.BeginComputePass())

	case bytecode.OpEndPass:
		return d.call(op, d.be.EndPass())

	case bytecode.OpSetPipeline:
		id, err := d.r.Varint()
		if err != nil {
			return err
		}
		return d.call(op, d.be.SetPipeline(id))

	case bytecode.OpSetBindGroup:
		slot, id, err := d.slotID()
		if err != nil {
			return err
		}
		return d.call(op, d.be.SetBindGroup(slot, id))

	case bytecode.OpSetVertexBuffer:
		slot, id, err := d.slotID()
		if err != nil {
			return err
		}
		return d.call(op, d.be.SetVertexBuffer(slot, id))

	case bytecode.OpSetIndexBuffer:
		id, err := d.r.Varint()
		if err != nil {
			return err
		}
		format, err := d.r.U8()
		if err != nil {
			return err
		}
		return d.call(op, d.be.SetIndexBuffer(id, format))

	case bytecode.OpDraw:
		vtx, inst, err := d.varint2()
		if err != nil {
			return err
		}
		firstVtx, firstInst, err := d.varint2()
		if err != nil {
			return err
		}
		d.counters.Draws++
		return d.call(op, d.be.Draw(vtx, inst, firstVtx, firstInst))

	case bytecode.OpDrawIndexed:
		idx, inst, err := d.varint2()
		if err != nil {
			return err
		}
		firstIdx, baseVtx, err := d.varint2()
		if err != nil {
			return err
		}
		firstInst, err := d.r.Varint()
		if err != nil {
			return err
		}
		d.counters.Draws++
		return d.call(op, d.be.DrawIndexed(idx, inst, firstIdx, baseVtx, firstInst))

	case bytecode.OpDispatch:
		x, y, err := d.varint2()
		if err != nil {
			return err
		}
		z, err := d.r.Varint()
		if err != nil {
			return err
		}
		d.counters.Dispatches++
		return d.call(op, d.be.Dispatch(x, y, z))

	case bytecode.OpExecuteBundles:
		n, err := d.r.Varint()
		if err != nil {
			return err
		}
		// Execute at most MaxExecuteBundles ids but consume every varint
		// so the stream stays aligned with the scanner.
		count := 0
		for i := uint32(0); i < n; i++ {
			id, err := d.r.Varint()
			if err != nil {
				return err
			}
			if count < bytecode.MaxExecuteBundles {
				d.bundleScratch[count] = id
				count++
			}
		}
		return d.call(op, d.be.ExecuteBundles(d.bundleScratch[:count]))

	// --- Queue operations --------------------------------------------

	case bytecode.OpWriteBuffer:
		id, offset, err := d.varint2()
		if err != nil {
			return err
		}
		dataID, err := d.r.Varint()
		if err != nil {
			return err
		}
		data, ok := d.mod.Data(dataID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingData, dataID)
		}
		return d.call(op, d.be.WriteBuffer(id, offset, data))

	case bytecode.OpWriteTimeUniform:
		id, offset, err := d.varint2()
		if err != nil {
			return err
		}
		size, err := d.r.Varint()
		if err != nil {
			return err
		}
		return d.call(op, d.be.WriteTimeUniform(id, offset, size))

	case bytecode.OpSubmit:
		return d.call(op, d.be.Submit())

	case bytecode.OpCopyExternalImageToTexture:
		imageID, textureID, err := d.varint2()
		if err != nil {
			return err
		}
		return d.call(op, d.be.CopyExternalImageToTexture(imageID, textureID))

	// --- Frame / pass control ----------------------------------------

	case bytecode.OpDefineFrame:
		_, nameID, err := d.varint2()
		if err != nil {
			return err
		}
		if _, ok := d.mod.String(nameID); !ok {
			return fmt.Errorf("%w: %d", ErrMissingString, nameID)
		}
		d.inFrameDef = true
		return nil

	case bytecode.OpEndFrame:
		d.inFrameDef = false
		d.frame++
		d.counters.Frames++
		return nil

	case bytecode.OpDefinePass:
		return d.definePass()

	case bytecode.OpEndPassDef:
		// Only reachable when a pass body is executed directly; treated
		// as the end of the region by execRange. At top level it is
		// stray but harmless.
		d.inPassDef = false
		return nil

	case bytecode.OpExecPass:
		id, err := d.r.Varint()
		if err != nil {
			return err
		}
		return d.execPass(id, false)

	case bytecode.OpExecPassOnce:
		id, err := d.r.Varint()
		if err != nil {
			return err
		}
		return d.execPass(id, true)

	// --- Pool selection ----------------------------------------------

	case bytecode.OpSetVertexBufferPool:
		slot, id, err := d.poolSelect()
		if err != nil {
			return err
		}
		return d.call(op, d.be.SetVertexBuffer(slot, id))

	case bytecode.OpSetBindGroupPool:
		slot, id, err := d.poolSelect()
		if err != nil {
			return err
		}
		return d.call(op, d.be.SetBindGroup(slot, id))

	// --- Embedded VM -------------------------------------------------

	case bytecode.OpInitWasmModule:
		moduleID, dataID, err := d.varint2()
		if err != nil {
			return err
		}
		code, ok := d.mod.Data(dataID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingData, dataID)
		}
		return d.call(op, d.be.InitWasmModule(moduleID, code))

	case bytecode.OpCallWasmFunc:
		return d.callWasmFunc()

	case bytecode.OpWriteBufferFromWasm:
		bufferID, offset, err := d.varint2()
		if err != nil {
			return err
		}
		moduleID, srcPtr, err := d.varint2()
		if err != nil {
			return err
		}
		size, err := d.r.Varint()
		if err != nil {
			return err
		}
		return d.call(op, d.be.WriteBufferFromWasm(bufferID, offset, moduleID, srcPtr, size))

	// --- Data generation ---------------------------------------------

	case bytecode.OpCreateTypedArray, bytecode.OpFillConstant,
		bytecode.OpFillRandom, bytecode.OpFillExpression,
		bytecode.OpWriteBufferFromArray:
		return d.execDataGen(op)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
}

// call wraps a backend error with the opcode that triggered it.
func (d *Dispatcher[B]) call(op bytecode.Op, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// idAndData decodes the id + descriptor-data-id operand shape shared by
// most create opcodes and resolves the data blob.
func (d *Dispatcher[B]) idAndData() (id uint32, desc []byte, err error) {
	id, descID, err := d.varint2()
	if err != nil {
		return 0, nil, err
	}
	desc, ok := d.mod.Data(descID)
	if !ok {
		return 0, nil, fmt.Errorf("%w: %d", ErrMissingData, descID)
	}
	return id, desc, nil
}

func (d *Dispatcher[B]) varint2() (a, b uint32, err error) {
	if a, err = d.r.Varint(); err != nil {
		return 0, 0, err
	}
	if b, err = d.r.Varint(); err != nil {
		return 0, 0, err
	}
	return a, b, nil
}

func (d *Dispatcher[B]) slotID() (slot uint8, id uint32, err error) {
	if slot, err = d.r.U8(); err != nil {
		return 0, 0, err
	}
	if id, err = d.r.Varint(); err != nil {
		return 0, 0, err
	}
	return slot, id, nil
}

// poolSelect decodes a pool opcode and resolves the ping-pong index:
// actual = base + (frame + offset) mod pool.
func (d *Dispatcher[B]) poolSelect() (slot uint8, id uint32, err error) {
	slot, err = d.r.U8()
	if err != nil {
		return 0, 0, err
	}
	base, err := d.r.Varint()
	if err != nil {
		return 0, 0, err
	}
	pool, err := d.r.U8()
	if err != nil {
		return 0, 0, err
	}
	offset, err := d.r.U8()
	if err != nil {
		return 0, 0, err
	}
	if pool == 0 {
		return 0, 0, fmt.Errorf("%w: pool size zero", ErrInvalidResource)
	}
	id = base + (d.frame+uint32(offset))%uint32(pool)
	return slot, id, nil
}

// definePass records the body range of a pass definition without
// executing it, then jumps past the terminator. The pre-scan usually has
// the range already; re-recording keeps definitions encountered only at
// runtime working too.
func (d *Dispatcher[B]) definePass() error {
	passID, err := d.r.Varint()
	if err != nil {
		return err
	}
	kind, err := d.r.U8()
	if err != nil {
		return err
	}
	descID, err := d.r.Varint()
	if err != nil {
		return err
	}

	d.inPassDef = true
	defer func() { d.inPassDef = false }()

	if r, ok := d.passRanges[passID]; ok && r.Start == d.r.PC() {
		d.r.SetPC(skipEndPassDef(d.mod.Bytecode(), r.End))
		return nil
	}

	start := d.r.PC()
	end, next, found := findPassEnd(d.scanner, d.mod.Bytecode(), start)
	if !found {
		end, next = d.r.Len(), d.r.Len()
	}
	d.passRanges[passID] = bytecode.PassRange{Start: start, End: end, Kind: kind, DescID: descID}
	d.r.SetPC(next)
	return nil
}

// skipEndPassDef returns the offset just past the end_pass_def byte at
// end, if present.
func skipEndPassDef(code []byte, end int) int {
	if end < len(code) && bytecode.Op(code[end]) == bytecode.OpEndPassDef {
		return end + 1
	}
	return end
}

// findPassEnd searches for the terminator of a pass body starting at pc.
func findPassEnd(s *bytecode.Scanner, code []byte, pc int) (end, next int, found bool) {
	for iter := 0; iter < bytecode.MaxPassBodyScan && pc < len(code); iter++ {
		op := bytecode.Op(code[pc])
		if op == bytecode.OpEndPassDef {
			return pc, pc + 1, true
		}
		n, err := s.Skip(op, pc+1)
		if err != nil {
			pc++
			continue
		}
		pc = n
	}
	return 0, 0, false
}

// execPass runs a recorded pass body. Unknown ids are a silent no-op for
// both variants; once-execution is tracked by id for the dispatcher's
// lifetime.
func (d *Dispatcher[B]) execPass(id uint32, onceOnly bool) error {
	r, ok := d.passRanges[id]
	if !ok {
		d.counters.MissedPasses++
		d.log.Warn("exec_pass target not defined", "pass", id)
		return nil
	}
	if onceOnly {
		if d.once.contains(id) {
			return nil
		}
		d.once.add(id)
	}
	return d.execRange(r.Start, r.End)
}

// execRange executes opcodes in [start, end), saving and restoring pc.
// The budget bounds runaway bodies; nested exec_pass recurses through
// the Go stack, each entry with its own budget.
func (d *Dispatcher[B]) execRange(start, end int) error {
	saved := d.r.PC()
	defer d.r.SetPC(saved)

	d.r.SetPC(start)
	for steps := 0; d.r.PC() < end; steps++ {
		if steps >= bytecode.MaxPassOpcodes {
			return fmt.Errorf("%w: pass exceeded %d opcodes", ErrOpcodeBudget, bytecode.MaxPassOpcodes)
		}
		if err := d.Step(); err != nil {
			return err
		}
	}
	return nil
}

// callWasmFunc decodes the variable argument list and routes the call.
func (d *Dispatcher[B]) callWasmFunc() error {
	moduleID, nameID, err := d.varint2()
	if err != nil {
		return err
	}
	name, ok := d.mod.String(nameID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrMissingString, nameID)
	}
	argc, err := d.r.U8()
	if err != nil {
		return err
	}
	var args [255]bytecode.WasmArg
	for i := range int(argc) {
		argType, err := d.r.U8()
		if err != nil {
			return err
		}
		a := bytecode.WasmArg{Type: argType}
		switch argType {
		case bytecode.WasmArgI32:
			if a.I32, err = d.r.Varint(); err != nil {
				return err
			}
		case bytecode.WasmArgI64:
			if a.I64, err = d.r.U64(); err != nil {
				return err
			}
		case bytecode.WasmArgF32:
			if a.F32, err = d.r.F32(); err != nil {
				return err
			}
		case bytecode.WasmArgF64:
			if a.F64, err = d.r.F64(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: wasm arg type %d", ErrUnknownOpcode, argType)
		}
		args[i] = a
	}
	return d.call(bytecode.OpCallWasmFunc, d.be.CallWasmFunc(moduleID, name, args[:argc]))
}
