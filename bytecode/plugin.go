package bytecode

// Plugin is a compile-time feature flag enabling a subset of opcodes.
// Plugins form a 6-bit set recorded in the module container; core is
// always present.
type Plugin uint8

const (
	// PluginCore covers frame/pass control, buffers, queue ops, and nop.
	PluginCore Plugin = 1 << iota

	// PluginRender covers render passes, pipelines, draws, and bundles.
	PluginRender

	// PluginCompute covers compute passes, pipelines, and dispatch.
	PluginCompute

	// PluginWasm covers the embedded-VM opcodes.
	PluginWasm

	// PluginAnimation covers time uniforms and ping-pong pool selection.
	PluginAnimation

	// PluginTexture covers textures, samplers, views, and image bitmaps.
	PluginTexture
)

// pluginNames maps single plugin bits to their names.
var pluginNames = map[Plugin]string{
	PluginCore:      "core",
	PluginRender:    "render",
	PluginCompute:   "compute",
	PluginWasm:      "wasm",
	PluginAnimation: "animation",
	PluginTexture:   "texture",
}

// String returns the name of a single plugin bit.
func (p Plugin) String() string {
	if name, ok := pluginNames[p]; ok {
		return name
	}
	return "invalid"
}

// PluginSet is a bitset of enabled plugins.
type PluginSet uint8

// AllPlugins has every defined plugin enabled.
const AllPlugins PluginSet = PluginSet(PluginCore | PluginRender | PluginCompute |
	PluginWasm | PluginAnimation | PluginTexture)

// Contains reports whether every plugin in sub is enabled in s.
func (s PluginSet) Contains(sub PluginSet) bool {
	return s&sub == sub
}

// Has reports whether the single plugin p is enabled.
func (s PluginSet) Has(p Plugin) bool {
	return s&PluginSet(p) != 0
}

// Union returns the set with every plugin from both sets enabled.
func (s PluginSet) Union(other PluginSet) PluginSet {
	return s | other
}

// Valid reports whether the set names only defined plugins and includes
// core.
func (s PluginSet) Valid() bool {
	return s.Has(PluginCore) && s&^AllPlugins == 0
}

// SelectVariant returns the smallest valid plugin set that satisfies the
// requested set: the request plus core. The result always contains the
// request, and growing the request never shrinks the result.
func SelectVariant(request PluginSet) PluginSet {
	return (request | PluginSet(PluginCore)) & AllPlugins
}

// opPlugins maps each opcode to its owning plugin.
var opPlugins = map[Op]Plugin{
	OpNop:                        PluginCore,
	OpCreateBuffer:               PluginCore,
	OpCreateTexture:              PluginTexture,
	OpCreateSampler:              PluginTexture,
	OpCreateShader:               PluginCore,
	OpCreateRenderPipeline:       PluginRender,
	OpCreateComputePipeline:      PluginCompute,
	OpCreateBindGroup:            PluginCore,
	OpCreateBindGroupLayout:      PluginCore,
	OpCreatePipelineLayout:       PluginCore,
	OpCreateTextureView:          PluginTexture,
	OpCreateQuerySet:             PluginCore,
	OpCreateImageBitmap:          PluginTexture,
	OpCreateRenderBundle:         PluginRender,
	OpBeginRenderPass:            PluginRender,
	OpBeginComputePass:           PluginCompute,
	OpEndPass:                    PluginCore,
	OpSetPipeline:                PluginCore,
	OpSetBindGroup:               PluginCore,
	OpSetVertexBuffer:            PluginRender,
	OpSetIndexBuffer:             PluginRender,
	OpDraw:                       PluginRender,
	OpDrawIndexed:                PluginRender,
	OpDispatch:                   PluginCompute,
	OpExecuteBundles:             PluginRender,
	OpWriteBuffer:                PluginCore,
	OpWriteTimeUniform:           PluginAnimation,
	OpSubmit:                     PluginCore,
	OpCopyExternalImageToTexture: PluginTexture,
	OpDefineFrame:                PluginCore,
	OpEndFrame:                   PluginCore,
	OpDefinePass:                 PluginCore,
	OpEndPassDef:                 PluginCore,
	OpExecPass:                   PluginCore,
	OpExecPassOnce:               PluginCore,
	OpSetVertexBufferPool:        PluginAnimation,
	OpSetBindGroupPool:           PluginAnimation,
	OpInitWasmModule:             PluginWasm,
	OpCallWasmFunc:               PluginWasm,
	OpWriteBufferFromWasm:        PluginWasm,
	OpCreateTypedArray:           PluginCore,
	OpFillConstant:               PluginCore,
	OpFillRandom:                 PluginCore,
	OpFillExpression:             PluginAnimation,
	OpWriteBufferFromArray:       PluginCore,
}

// OwningPlugin returns the plugin that owns op. Unknown opcodes report
// PluginCore so the dispatcher surfaces them as decode errors rather than
// plugin rejections.
func OwningPlugin(op Op) Plugin {
	if p, ok := opPlugins[op]; ok {
		return p
	}
	return PluginCore
}
