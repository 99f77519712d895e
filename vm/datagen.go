package vm

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/gogpu/pngine/bytecode"
)

// typedArray is a host-side staging array filled by data-generation
// opcodes and uploaded with write_buffer_from_array.
type typedArray struct {
	elem  byte
	count int
	data  []byte
}

func elemSize(elem byte) int {
	if elem == bytecode.ElemU8 {
		return 1
	}
	return 4
}

// compiledExpr caches a fill_expression program keyed by string id so
// repeated fills re-run the compiled form.
type compiledExpr struct {
	prog *exprvm.Program
}

// execDataGen handles the data-generation opcode family. Arrays are
// created by create_typed_array (an up-front allocation, like any other
// resource create) and mutated in place by the fill opcodes.
func (d *Dispatcher[B]) execDataGen(op bytecode.Op) error {
	switch op {
	case bytecode.OpCreateTypedArray:
		id, err := d.r.Varint()
		if err != nil {
			return err
		}
		elem, err := d.r.U8()
		if err != nil {
			return err
		}
		count, err := d.r.Varint()
		if err != nil {
			return err
		}
		if elem > bytecode.ElemU8 {
			return fmt.Errorf("%w: element kind %d", ErrInvalidResource, elem)
		}
		if _, ok := d.arrays[id]; ok {
			return nil // idempotent, like backend creates
		}
		d.arrays[id] = &typedArray{
			elem:  elem,
			count: int(count),
			data:  make([]byte, int(count)*elemSize(elem)),
		}
		return nil

	case bytecode.OpFillConstant:
		id, err := d.r.Varint()
		if err != nil {
			return err
		}
		value, err := d.r.F64()
		if err != nil {
			return err
		}
		arr, ok := d.arrays[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingArray, id)
		}
		for i := range arr.count {
			arr.store(i, value)
		}
		return nil

	case bytecode.OpFillRandom:
		id, seed, err := d.varint2()
		if err != nil {
			return err
		}
		arr, ok := d.arrays[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingArray, id)
		}
		// Deterministic xorshift so replays produce identical frames.
		state := seed | 1
		for i := range arr.count {
			state ^= state << 13
			state ^= state >> 17
			state ^= state << 5
			arr.store(i, float64(state)/float64(math.MaxUint32))
		}
		return nil

	case bytecode.OpFillExpression:
		id, exprID, err := d.varint2()
		if err != nil {
			return err
		}
		arr, ok := d.arrays[id]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingArray, id)
		}
		prog, err := d.exprProgram(exprID)
		if err != nil {
			return err
		}
		env := map[string]any{
			"i":     0,
			"n":     arr.count,
			"t":     d.time,
			"frame": int(d.frame),
		}
		for i := range arr.count {
			env["i"] = i
			out, err := expr.Run(prog, env)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrBadExpression, err)
			}
			v, ok := out.(float64)
			if !ok {
				return fmt.Errorf("%w: non-numeric result %T", ErrBadExpression, out)
			}
			arr.store(i, v)
		}
		return nil

	case bytecode.OpWriteBufferFromArray:
		bufferID, offset, err := d.varint2()
		if err != nil {
			return err
		}
		arrayID, err := d.r.Varint()
		if err != nil {
			return err
		}
		arr, ok := d.arrays[arrayID]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingArray, arrayID)
		}
		return d.call(op, d.be.WriteBuffer(bufferID, offset, arr.data))
	}
	return fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
}

// exprProgram compiles and caches the expression stored under the given
// string id.
func (d *Dispatcher[B]) exprProgram(id uint32) (*exprvm.Program, error) {
	if c, ok := d.exprProgs[id]; ok {
		return c.prog, nil
	}
	src, ok := d.mod.String(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrMissingString, id)
	}
	prog, err := expr.Compile(src,
		expr.Env(map[string]any{"i": 0, "n": 0, "t": 0.0, "frame": 0}),
		expr.AsFloat64(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadExpression, err)
	}
	if d.exprProgs == nil {
		d.exprProgs = make(map[uint32]compiledExpr)
	}
	d.exprProgs[id] = compiledExpr{prog: prog}
	return prog, nil
}

// store writes v into element i using the array's element kind.
func (a *typedArray) store(i int, v float64) {
	switch a.elem {
	case bytecode.ElemF32:
		binary.LittleEndian.PutUint32(a.data[i*4:], math.Float32bits(float32(v)))
	case bytecode.ElemU32:
		binary.LittleEndian.PutUint32(a.data[i*4:], uint32(v))
	case bytecode.ElemI32:
		binary.LittleEndian.PutUint32(a.data[i*4:], uint32(int32(v)))
	case bytecode.ElemU8:
		a.data[i] = byte(v)
	}
}
