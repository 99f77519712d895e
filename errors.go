package pngine

import (
	"errors"
	"fmt"

	"github.com/gogpu/pngine/backend"
	"github.com/gogpu/pngine/pmod"
	"github.com/gogpu/pngine/vm"
)

// ErrorCode is the host-facing result of a lifecycle call. Zero means
// success; every failure kind is distinguishable for callers that only
// see codes (FFI shells, callbacks).
type ErrorCode int32

const (
	// CodeOK means success.
	CodeOK ErrorCode = iota

	// CodeNotInitialized: a lifecycle call before Init.
	CodeNotInitialized

	// CodeAlreadyInitialized: Init called twice without Shutdown.
	CodeAlreadyInitialized

	// CodeContextFailed: device or surface acquisition failed.
	CodeContextFailed

	// CodeInvalidModule: the module container failed to parse.
	CodeInvalidModule

	// CodeShaderCompile: shader module creation failed.
	CodeShaderCompile

	// CodePipelineCreate: pipeline creation failed.
	CodePipelineCreate

	// CodeResourceNotFound: a bytecode id named no live resource.
	CodeResourceNotFound

	// CodeOutOfMemory: an allocation or capacity limit failed.
	CodeOutOfMemory

	// CodeInvalidArgument: a malformed operand or descriptor.
	CodeInvalidArgument

	// CodeRenderFailed: a render-path backend call failed.
	CodeRenderFailed

	// CodeComputeFailed: a compute-path backend call failed.
	CodeComputeFailed

	// CodeSurfaceUnavailable: no surface or surface texture available.
	CodeSurfaceUnavailable
)

// String returns the code's identifier.
func (c ErrorCode) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeNotInitialized:
		return "not_initialized"
	case CodeAlreadyInitialized:
		return "already_initialized"
	case CodeContextFailed:
		return "context_failed"
	case CodeInvalidModule:
		return "invalid_module"
	case CodeShaderCompile:
		return "shader_compile"
	case CodePipelineCreate:
		return "pipeline_create"
	case CodeResourceNotFound:
		return "resource_not_found"
	case CodeOutOfMemory:
		return "out_of_memory"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeRenderFailed:
		return "render_failed"
	case CodeComputeFailed:
		return "compute_failed"
	case CodeSurfaceUnavailable:
		return "surface_unavailable"
	default:
		return fmt.Sprintf("error_%d", int32(c))
	}
}

// Package-level lifecycle errors.
var (
	// ErrNotInitialized is returned when the runtime has not been set up.
	ErrNotInitialized = errors.New("pngine: not initialized")

	// ErrAlreadyInitialized is returned when Init runs twice.
	ErrAlreadyInitialized = errors.New("pngine: already initialized")

	// ErrDestroyed maps to CodeContextFailed, the code Render and Resize
	// return for an animation used after Destroy. No function in this
	// package returns it.
	ErrDestroyed = errors.New("pngine: animation destroyed")

	// ErrNoBackend is returned when no backend could be constructed.
	ErrNoBackend = errors.New("pngine: no backend available")
)

// codeFor maps an error to its host-facing code.
func codeFor(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrNotInitialized):
		return CodeNotInitialized
	case errors.Is(err, ErrAlreadyInitialized):
		return CodeAlreadyInitialized
	case errors.Is(err, ErrNoBackend), errors.Is(err, ErrDestroyed):
		return CodeContextFailed
	case errors.Is(err, pmod.ErrBadMagic),
		errors.Is(err, pmod.ErrBadVersion),
		errors.Is(err, pmod.ErrTruncated),
		errors.Is(err, pmod.ErrOffsetRange),
		errors.Is(err, pmod.ErrTableTooLarge),
		errors.Is(err, pmod.ErrBadPluginSet),
		errors.Is(err, pmod.ErrBadWGSLRef):
		return CodeInvalidModule
	case errors.Is(err, pmod.ErrDependencyDepthExceeded),
		errors.Is(err, pmod.ErrMissingWGSL),
		errors.Is(err, vm.ErrMissingWGSL):
		return CodeShaderCompile
	case errors.Is(err, backend.ErrResourceNotFound),
		errors.Is(err, vm.ErrMissingData),
		errors.Is(err, vm.ErrMissingString),
		errors.Is(err, vm.ErrMissingArray):
		return CodeResourceNotFound
	case errors.Is(err, backend.ErrResourceRange),
		errors.Is(err, backend.ErrBufferOverflow),
		errors.Is(err, vm.ErrOpcodeBudget):
		return CodeOutOfMemory
	case errors.Is(err, backend.ErrNoSurface):
		return CodeSurfaceUnavailable
	case errors.Is(err, backend.ErrMalformedDescriptor),
		errors.Is(err, vm.ErrInvalidResource),
		errors.Is(err, vm.ErrUnknownOpcode),
		errors.Is(err, vm.ErrBadExpression),
		errors.Is(err, vm.ErrPluginDisabled):
		return CodeInvalidArgument
	case errors.Is(err, backend.ErrPassActive),
		errors.Is(err, backend.ErrNoActivePass):
		return CodeRenderFailed
	default:
		return CodeRenderFailed
	}
}
