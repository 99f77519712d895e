package native

import "github.com/gogpu/gputypes"

// Descriptor code tables. Binary descriptors carry the numeric codes;
// JSON descriptors carry the string names. Both columns must stay in
// sync with the compiler's emitter.

// textureFormatCodes maps format codes to gputypes formats.
var textureFormatCodes = map[uint16]gputypes.TextureFormat{
	0: gputypes.TextureFormatRGBA8Unorm,
	1: gputypes.TextureFormatBGRA8Unorm,
	2: gputypes.TextureFormatRGBA16Float,
	3: gputypes.TextureFormatRGBA32Float,
	4: gputypes.TextureFormatR32Float,
	5: gputypes.TextureFormatRG32Float,
	6: gputypes.TextureFormatDepth24Plus,
	7: gputypes.TextureFormatDepth32Float,
	8: gputypes.TextureFormatDepth24PlusStencil8,
	9: gputypes.TextureFormatR8Unorm,
}

// textureFormatNames maps JSON format names to gputypes formats.
var textureFormatNames = map[string]gputypes.TextureFormat{
	"rgba8unorm":           gputypes.TextureFormatRGBA8Unorm,
	"bgra8unorm":           gputypes.TextureFormatBGRA8Unorm,
	"rgba16float":          gputypes.TextureFormatRGBA16Float,
	"rgba32float":          gputypes.TextureFormatRGBA32Float,
	"r32float":             gputypes.TextureFormatR32Float,
	"rg32float":            gputypes.TextureFormatRG32Float,
	"depth24plus":          gputypes.TextureFormatDepth24Plus,
	"depth32float":         gputypes.TextureFormatDepth32Float,
	"depth24plus-stencil8": gputypes.TextureFormatDepth24PlusStencil8,
	"r8unorm":              gputypes.TextureFormatR8Unorm,
}

// Texture usage bits in descriptor blobs. The order matches the module
// format, not gputypes; decodeTextureUsage translates.
const (
	texUsageCopySrc          = 0x01
	texUsageCopyDst          = 0x02
	texUsageTextureBinding   = 0x04
	texUsageStorageBinding   = 0x08
	texUsageRenderAttachment = 0x10
)

func decodeTextureUsage(code uint32) gputypes.TextureUsage {
	var usage gputypes.TextureUsage
	if code&texUsageCopySrc != 0 {
		usage |= gputypes.TextureUsageCopySrc
	}
	if code&texUsageCopyDst != 0 {
		usage |= gputypes.TextureUsageCopyDst
	}
	if code&texUsageTextureBinding != 0 {
		usage |= gputypes.TextureUsageTextureBinding
	}
	if code&texUsageStorageBinding != 0 {
		usage |= gputypes.TextureUsageStorageBinding
	}
	if code&texUsageRenderAttachment != 0 {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	return usage
}

// decodeBufferUsage translates module buffer usage bits (the wire order
// shared with the host decoder) into gputypes usage flags.
func decodeBufferUsage(code uint8) gputypes.BufferUsage {
	var usage gputypes.BufferUsage
	if code&0x01 != 0 {
		usage |= gputypes.BufferUsageMapRead
	}
	if code&0x02 != 0 {
		usage |= gputypes.BufferUsageMapWrite
	}
	if code&0x04 != 0 {
		usage |= gputypes.BufferUsageCopySrc
	}
	if code&0x08 != 0 {
		usage |= gputypes.BufferUsageCopyDst
	}
	if code&0x10 != 0 {
		usage |= gputypes.BufferUsageIndex
	}
	if code&0x20 != 0 {
		usage |= gputypes.BufferUsageVertex
	}
	if code&0x40 != 0 {
		usage |= gputypes.BufferUsageUniform
	}
	if code&0x80 != 0 {
		usage |= gputypes.BufferUsageStorage
	}
	return usage
}

// topologyCodes maps primitive topology codes.
var topologyCodes = map[uint16]gputypes.PrimitiveTopology{
	0: gputypes.PrimitiveTopologyPointList,
	1: gputypes.PrimitiveTopologyLineList,
	2: gputypes.PrimitiveTopologyLineStrip,
	3: gputypes.PrimitiveTopologyTriangleList,
	4: gputypes.PrimitiveTopologyTriangleStrip,
}

var topologyNames = map[string]gputypes.PrimitiveTopology{
	"point-list":     gputypes.PrimitiveTopologyPointList,
	"line-list":      gputypes.PrimitiveTopologyLineList,
	"line-strip":     gputypes.PrimitiveTopologyLineStrip,
	"triangle-list":  gputypes.PrimitiveTopologyTriangleList,
	"triangle-strip": gputypes.PrimitiveTopologyTriangleStrip,
}

// cullModeCodes maps cull mode codes.
var cullModeCodes = map[uint16]gputypes.CullMode{
	0: gputypes.CullModeNone,
	1: gputypes.CullModeFront,
	2: gputypes.CullModeBack,
}

var cullModeNames = map[string]gputypes.CullMode{
	"none":  gputypes.CullModeNone,
	"front": gputypes.CullModeFront,
	"back":  gputypes.CullModeBack,
}

// compareFunctionCodes maps compare function codes.
var compareFunctionCodes = map[uint16]gputypes.CompareFunction{
	0: gputypes.CompareFunctionNever,
	1: gputypes.CompareFunctionLess,
	2: gputypes.CompareFunctionEqual,
	3: gputypes.CompareFunctionLessEqual,
	4: gputypes.CompareFunctionGreater,
	5: gputypes.CompareFunctionNotEqual,
	6: gputypes.CompareFunctionGreaterEqual,
	7: gputypes.CompareFunctionAlways,
}

var compareFunctionNames = map[string]gputypes.CompareFunction{
	"never":         gputypes.CompareFunctionNever,
	"less":          gputypes.CompareFunctionLess,
	"equal":         gputypes.CompareFunctionEqual,
	"less-equal":    gputypes.CompareFunctionLessEqual,
	"greater":       gputypes.CompareFunctionGreater,
	"not-equal":     gputypes.CompareFunctionNotEqual,
	"greater-equal": gputypes.CompareFunctionGreaterEqual,
	"always":        gputypes.CompareFunctionAlways,
}

// bufferBindingTypeCodes maps buffer binding type codes.
var bufferBindingTypeCodes = map[uint16]gputypes.BufferBindingType{
	0: gputypes.BufferBindingTypeUniform,
	1: gputypes.BufferBindingTypeStorage,
	2: gputypes.BufferBindingTypeReadOnlyStorage,
}

var bufferBindingTypeNames = map[string]gputypes.BufferBindingType{
	"uniform":           gputypes.BufferBindingTypeUniform,
	"storage":           gputypes.BufferBindingTypeStorage,
	"read-only-storage": gputypes.BufferBindingTypeReadOnlyStorage,
}

// addressModeCodes maps sampler address mode codes.
var addressModeCodes = map[uint16]gputypes.AddressMode{
	0: gputypes.AddressModeClampToEdge,
	1: gputypes.AddressModeRepeat,
	2: gputypes.AddressModeMirrorRepeat,
}

var addressModeNames = map[string]gputypes.AddressMode{
	"clamp-to-edge": gputypes.AddressModeClampToEdge,
	"repeat":        gputypes.AddressModeRepeat,
	"mirror-repeat": gputypes.AddressModeMirrorRepeat,
}

// filterModeCodes maps sampler filter codes.
var filterModeCodes = map[uint16]gputypes.FilterMode{
	0: gputypes.FilterModeNearest,
	1: gputypes.FilterModeLinear,
}

var filterModeNames = map[string]gputypes.FilterMode{
	"nearest": gputypes.FilterModeNearest,
	"linear":  gputypes.FilterModeLinear,
}

// viewDimensionCodes maps texture view dimension codes.
var viewDimensionCodes = map[uint16]gputypes.TextureViewDimension{
	0: gputypes.TextureViewDimension1D,
	1: gputypes.TextureViewDimension2D,
	2: gputypes.TextureViewDimension2DArray,
	3: gputypes.TextureViewDimension3D,
	4: gputypes.TextureViewDimensionCube,
}

var viewDimensionNames = map[string]gputypes.TextureViewDimension{
	"1d":       gputypes.TextureViewDimension1D,
	"2d":       gputypes.TextureViewDimension2D,
	"2d-array": gputypes.TextureViewDimension2DArray,
	"3d":       gputypes.TextureViewDimension3D,
	"cube":     gputypes.TextureViewDimensionCube,
}

// vertexFormatCodes maps vertex attribute format codes.
var vertexFormatCodes = map[uint16]gputypes.VertexFormat{
	0: gputypes.VertexFormatFloat32,
	1: gputypes.VertexFormatFloat32x2,
	2: gputypes.VertexFormatFloat32x3,
	3: gputypes.VertexFormatFloat32x4,
	4: gputypes.VertexFormatUint32,
	5: gputypes.VertexFormatSint32,
}

var vertexFormatNames = map[string]gputypes.VertexFormat{
	"float32":   gputypes.VertexFormatFloat32,
	"float32x2": gputypes.VertexFormatFloat32x2,
	"float32x3": gputypes.VertexFormatFloat32x3,
	"float32x4": gputypes.VertexFormatFloat32x4,
	"uint32":    gputypes.VertexFormatUint32,
	"sint32":    gputypes.VertexFormatSint32,
}

// vertexFormatSizes gives the byte width of each vertex format, used to
// derive attribute offsets when the descriptor lists formats only.
var vertexFormatSizes = map[gputypes.VertexFormat]uint64{
	gputypes.VertexFormatFloat32:   4,
	gputypes.VertexFormatFloat32x2: 8,
	gputypes.VertexFormatFloat32x3: 12,
	gputypes.VertexFormatFloat32x4: 16,
	gputypes.VertexFormatUint32:    4,
	gputypes.VertexFormatSint32:    4,
}

// Binding kinds used in bind-group-layout entry blobs.
const (
	bindingKindUniform        = 0
	bindingKindStorage        = 1
	bindingKindReadOnlyStore  = 2
	bindingKindSampler        = 3
	bindingKindTexture        = 4
	bindingKindStorageTexture = 5
)

// Shader stage visibility bits in layout entry blobs.
const (
	visVertex   = 0x1
	visFragment = 0x2
	visCompute  = 0x4
)

func decodeVisibility(code uint8) gputypes.ShaderStages {
	var s gputypes.ShaderStages
	if code&visVertex != 0 {
		s |= gputypes.ShaderStageVertex
	}
	if code&visFragment != 0 {
		s |= gputypes.ShaderStageFragment
	}
	if code&visCompute != 0 {
		s |= gputypes.ShaderStageCompute
	}
	return s
}
