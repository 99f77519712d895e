// Package vm executes pngine bytecode: it decodes opcodes, manages
// frame and pass state, and routes every GPU operation to a backend.
//
// The dispatcher is single-threaded and synchronous. One dispatcher
// drives one module against one backend instance; every backend call
// returns before the next opcode is decoded. Multiple modules run on
// separate dispatchers, one per goroutine.
package vm

import "errors"

// Dispatcher errors.
var (
	// ErrUnknownOpcode is returned when the stream contains a byte that is
	// not a known opcode.
	ErrUnknownOpcode = errors.New("vm: unknown opcode")

	// ErrPluginDisabled is returned when an opcode's owning plugin is not
	// enabled in the module.
	ErrPluginDisabled = errors.New("vm: opcode plugin disabled")

	// ErrMissingString is returned when a string id is out of range.
	ErrMissingString = errors.New("vm: string id out of range")

	// ErrMissingData is returned when a data id is out of range.
	ErrMissingData = errors.New("vm: data id out of range")

	// ErrMissingWGSL is returned when a shader create names a WGSL id that
	// does not exist.
	ErrMissingWGSL = errors.New("vm: wgsl id out of range")

	// ErrInvalidResource is returned for structurally invalid operands,
	// e.g. a pool opcode with pool_size zero.
	ErrInvalidResource = errors.New("vm: invalid resource operand")

	// ErrMissingArray is returned when a data-generation opcode names a
	// typed array that was never created.
	ErrMissingArray = errors.New("vm: typed array not found")

	// ErrOpcodeBudget is returned when a frame or pass exceeds its opcode
	// budget.
	ErrOpcodeBudget = errors.New("vm: opcode budget exceeded")

	// ErrBadExpression is returned when a fill_expression source does not
	// compile or evaluate.
	ErrBadExpression = errors.New("vm: bad fill expression")
)

// MaxFrameOpcodes bounds the number of opcodes executed per frame.
const MaxFrameOpcodes = 10000
