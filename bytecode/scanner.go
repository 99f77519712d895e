package bytecode

import "errors"

// Scan bounds. A malformed stream must never produce an unbounded run;
// on cap overflow the scanner stops and returns what it accumulated.
const (
	// MaxScanIterations bounds the outer pass-discovery scan.
	MaxScanIterations = 50000

	// MaxPassBodyScan bounds the search for a pass body's terminator.
	MaxPassBodyScan = 10000

	// MaxPassOpcodes bounds the number of opcodes executed per pass entry.
	MaxPassOpcodes = 1000
)

// ErrUnknownOpcode is returned when Skip meets a byte that is not a
// known opcode.
var ErrUnknownOpcode = errors.New("bytecode: unknown opcode")

// PassRange is the [Start, End) byte range of a pass body, together with
// the pass header recorded at definition time.
type PassRange struct {
	Start  int
	End    int
	Kind   byte // PassKindRender or PassKindCompute
	DescID uint32
}

// Scanner is a single-pass forward-only reader over an opcode stream.
// It skips operands byte-exactly as the Writer laid them down and
// discovers define_pass ranges without executing them.
type Scanner struct {
	code []byte
}

// NewScanner creates a scanner over code.
func NewScanner(code []byte) *Scanner {
	return &Scanner{code: code}
}

// Skip advances past the operands of op, which was read at pc-1, and
// returns the offset of the next opcode. The skip rules mirror Writer's
// operand layouts exactly; any divergence would make the reader
// misinterpret operand bytes as opcodes.
func (s *Scanner) Skip(op Op, pc int) (int, error) {
	r := Reader{code: s.code, pc: pc}
	if err := skipOperands(&r, op); err != nil {
		return pc, err
	}
	return r.pc, nil
}

// skipOperands consumes the operands of op from r.
func skipOperands(r *Reader, op Op) error {
	switch op {
	case OpNop, OpBeginComputePass, OpEndPass, OpSubmit,
		OpEndFrame, OpEndPassDef:
		return nil

	case OpDefineFrame:
		return skipVarints(r, 2)

	case OpCreateBuffer:
		if err := skipVarints(r, 2); err != nil {
			return err
		}
		_, err := r.U8()
		return err

	case OpCreateTexture, OpCreateSampler, OpCreateShader,
		OpCreateRenderPipeline, OpCreateComputePipeline,
		OpCreateBindGroupLayout, OpCreatePipelineLayout,
		OpCreateTextureView, OpCreateQuerySet, OpCreateImageBitmap,
		OpCreateRenderBundle, OpCopyExternalImageToTexture,
		OpInitWasmModule, OpFillRandom, OpFillExpression:
		return skipVarints(r, 2)

	case OpCreateBindGroup, OpWriteBuffer, OpWriteTimeUniform,
		OpDispatch, OpWriteBufferFromArray:
		return skipVarints(r, 3)

	case OpBeginRenderPass:
		if err := skipVarints(r, 1); err != nil {
			return err
		}
		if _, err := r.U8(); err != nil {
			return err
		}
		if _, err := r.U8(); err != nil {
			return err
		}
		return skipVarints(r, 1)

	case OpSetPipeline, OpExecPass, OpExecPassOnce:
		return skipVarints(r, 1)

	case OpSetBindGroup, OpSetVertexBuffer:
		if _, err := r.U8(); err != nil {
			return err
		}
		return skipVarints(r, 1)

	case OpSetIndexBuffer:
		if err := skipVarints(r, 1); err != nil {
			return err
		}
		_, err := r.U8()
		return err

	case OpDraw:
		return skipVarints(r, 4)

	case OpDrawIndexed, OpWriteBufferFromWasm:
		return skipVarints(r, 5)

	case OpExecuteBundles:
		n, err := r.Varint()
		if err != nil {
			return err
		}
		return skipVarints(r, int(n))

	case OpDefinePass:
		if err := skipVarints(r, 1); err != nil {
			return err
		}
		if _, err := r.U8(); err != nil {
			return err
		}
		return skipVarints(r, 1)

	case OpSetVertexBufferPool, OpSetBindGroupPool:
		if _, err := r.U8(); err != nil {
			return err
		}
		if err := skipVarints(r, 1); err != nil {
			return err
		}
		if _, err := r.U8(); err != nil {
			return err
		}
		_, err := r.U8()
		return err

	case OpCallWasmFunc:
		if err := skipVarints(r, 2); err != nil {
			return err
		}
		argc, err := r.U8()
		if err != nil {
			return err
		}
		for range argc {
			argType, err := r.U8()
			if err != nil {
				return err
			}
			switch argType {
			case WasmArgI32:
				if err := skipVarints(r, 1); err != nil {
					return err
				}
			case WasmArgI64, WasmArgF64:
				if _, err := r.U64(); err != nil {
					return err
				}
			case WasmArgF32:
				if _, err := r.F32(); err != nil {
					return err
				}
			default:
				return ErrUnknownOpcode
			}
		}
		return nil

	case OpCreateTypedArray:
		if err := skipVarints(r, 1); err != nil {
			return err
		}
		if _, err := r.U8(); err != nil {
			return err
		}
		return skipVarints(r, 1)

	case OpFillConstant:
		if err := skipVarints(r, 1); err != nil {
			return err
		}
		_, err := r.U64()
		return err

	default:
		return ErrUnknownOpcode
	}
}

func skipVarints(r *Reader, n int) error {
	for range n {
		m, err := SkipVarint(r.code[r.pc:])
		if err != nil {
			return err
		}
		r.pc += m
	}
	return nil
}

// ScanPassDefinitions walks the whole stream once and records the body
// range of every define_pass ... end_pass_def block.
//
// The scan is catch-and-skip: a malformed opcode advances one byte and
// scanning continues, so a single bad region does not hide later pass
// definitions. Both the outer walk and each body search are capped; on
// cap overflow the ranges accumulated so far are returned.
func (s *Scanner) ScanPassDefinitions() map[uint32]PassRange {
	ranges := make(map[uint32]PassRange)
	r := Reader{code: s.code}

	for iter := 0; iter < MaxScanIterations && !r.AtEnd(); iter++ {
		at := r.pc
		op, err := r.Op()
		if err != nil {
			break
		}
		if op != OpDefinePass {
			if err := skipOperands(&r, op); err != nil {
				// Malformed or unknown: resynchronize one byte ahead.
				r.pc = at + 1
				continue
			}
			continue
		}

		passID, err := r.Varint()
		if err != nil {
			r.pc = at + 1
			continue
		}
		kind, err := r.U8()
		if err != nil {
			r.pc = at + 1
			continue
		}
		descID, err := r.Varint()
		if err != nil {
			r.pc = at + 1
			continue
		}

		start := r.pc
		end, next, found := s.findPassEnd(r.pc)
		if !found {
			// Unterminated body: the rest of the stream is the body.
			ranges[passID] = PassRange{Start: start, End: len(s.code), Kind: kind, DescID: descID}
			break
		}
		ranges[passID] = PassRange{Start: start, End: end, Kind: kind, DescID: descID}
		r.pc = next
	}
	return ranges
}

// findPassEnd locates the OpEndPassDef terminating a pass body that
// starts at pc. It returns the terminator's offset and the offset just
// past it.
func (s *Scanner) findPassEnd(pc int) (end, next int, found bool) {
	r := Reader{code: s.code, pc: pc}
	for iter := 0; iter < MaxPassBodyScan && !r.AtEnd(); iter++ {
		at := r.pc
		op, err := r.Op()
		if err != nil {
			return 0, 0, false
		}
		if op == OpEndPassDef {
			return at, r.pc, true
		}
		if err := skipOperands(&r, op); err != nil {
			// Resynchronize one byte past the bad opcode byte.
			r.pc = at + 1
		}
	}
	return 0, 0, false
}
