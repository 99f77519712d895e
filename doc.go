// Package pngine is a register-based bytecode interpreter that drives a
// WebGPU-class API from a compact, pre-compiled module file.
//
// A front-end compiler produces module files from a source DSL; a host
// application loads one with [Create] and replays it every frame with
// [Animation.Render]. The execution core splits into:
//
//   - pmod: the module container loader (strings, data, WGSL graph,
//     bytecode).
//   - bytecode: the opcode stream format, varint codec, emitter, and
//     the bounded scanner that discovers pass definitions.
//   - vm: the dispatcher that decodes opcodes, manages frame and pass
//     state, and routes calls to a backend.
//   - backend: the capability contract, with a native gogpu/wgpu
//     implementation, a command-buffer serializer, and a recording mock
//     for tests.
//
// The dispatcher is single-threaded and synchronous; distinct modules
// run on distinct dispatchers. After resource creation the frame loop
// performs no GPU allocation.
package pngine
