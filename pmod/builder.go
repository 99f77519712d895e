package pmod

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/pngine/bytecode"
)

// Builder assembles a module container. It is the encoder half of the
// container codec: the compiler front-end uses it to produce the bytes
// Parse consumes, and the round-trip tests lean on it.
type Builder struct {
	plugins bytecode.PluginSet
	strings [][]byte
	data    [][]byte
	wgsl    []WGSLEntry
	code    []byte
}

// NewBuilder creates a builder for a module with the given plugin set.
// Core is always enabled.
func NewBuilder(plugins bytecode.PluginSet) *Builder {
	return &Builder{plugins: bytecode.SelectVariant(plugins)}
}

// AddString appends s to the string table and returns its id.
func (b *Builder) AddString(s string) uint32 {
	b.strings = append(b.strings, []byte(s))
	return uint32(len(b.strings) - 1)
}

// AddData appends blob to the data section and returns its id.
func (b *Builder) AddData(blob []byte) uint32 {
	b.data = append(b.data, blob)
	return uint32(len(b.data) - 1)
}

// AddWGSL appends a WGSL graph node and returns its id.
func (b *Builder) AddWGSL(dataID uint16, deps ...uint16) uint32 {
	b.wgsl = append(b.wgsl, WGSLEntry{DataID: dataID, Deps: deps})
	return uint32(len(b.wgsl) - 1)
}

// SetBytecode installs the opcode stream.
func (b *Builder) SetBytecode(code []byte) { b.code = code }

// Encode produces the container bytes. It fails if any table exceeds the
// container maxima.
func (b *Builder) Encode() ([]byte, error) {
	if len(b.strings) > MaxStrings {
		return nil, fmt.Errorf("%w: %d strings", ErrTableTooLarge, len(b.strings))
	}
	if len(b.data) > MaxData {
		return nil, fmt.Errorf("%w: %d data blobs", ErrTableTooLarge, len(b.data))
	}
	if len(b.wgsl) > MaxWGSLModules {
		return nil, fmt.Errorf("%w: %d wgsl modules", ErrTableTooLarge, len(b.wgsl))
	}
	if len(b.code) > MaxBytecode {
		return nil, fmt.Errorf("%w: %d bytecode bytes", ErrTableTooLarge, len(b.code))
	}
	for _, e := range b.wgsl {
		if len(e.Deps) > MaxWGSLDeps {
			return nil, fmt.Errorf("%w: %d wgsl deps", ErrTableTooLarge, len(e.Deps))
		}
	}

	out := make([]byte, headerSize, headerSize+b.sizeHint())
	copy(out[0:4], magic[:])
	binary.LittleEndian.PutUint16(out[4:6], Version)
	out[6] = byte(b.plugins)

	stringsOff := uint32(len(out))
	out = appendBlobTable(out, b.strings)
	dataOff := uint32(len(out))
	out = appendBlobTable(out, b.data)
	wgslOff := uint32(len(out))
	out = appendWGSLTable(out, b.wgsl)
	codeOff := uint32(len(out))
	out = append(out, b.code...)
	endOff := uint32(len(out))

	binary.LittleEndian.PutUint32(out[8:12], stringsOff)
	binary.LittleEndian.PutUint32(out[12:16], dataOff)
	binary.LittleEndian.PutUint32(out[16:20], wgslOff)
	binary.LittleEndian.PutUint32(out[20:24], codeOff)
	binary.LittleEndian.PutUint32(out[24:28], endOff)
	return out, nil
}

func (b *Builder) sizeHint() int {
	n := len(b.code) + 12
	for _, s := range b.strings {
		n += 4 + len(s)
	}
	for _, d := range b.data {
		n += 4 + len(d)
	}
	for _, e := range b.wgsl {
		n += 3 + 2*len(e.Deps)
	}
	return n
}

func appendBlobTable(out []byte, blobs [][]byte) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(len(blobs)))
	for _, blob := range blobs {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(blob)))
		out = append(out, blob...)
	}
	return out
}

func appendWGSLTable(out []byte, entries []WGSLEntry) []byte {
	out = binary.LittleEndian.AppendUint32(out, uint32(len(entries)))
	for _, e := range entries {
		out = binary.LittleEndian.AppendUint16(out, e.DataID)
		out = append(out, byte(len(e.Deps)))
		for _, d := range e.Deps {
			out = binary.LittleEndian.AppendUint16(out, d)
		}
	}
	return out
}
