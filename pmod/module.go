// Package pmod loads the pngine module container: the compact binary
// file that carries a compiled animation's string table, data section,
// WGSL dependency graph, and bytecode.
//
// A Module is an immutable projection over the input byte slice. All
// table views alias the original blob; nothing is copied and nothing
// mutates after Parse returns. If Parse fails, no partially constructed
// module is observable.
package pmod

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/pngine/bytecode"
)

// Container hard maxima. Tables exceeding these fail to load.
const (
	MaxStrings     = 1 << 16
	MaxData        = 1 << 16
	MaxWGSLModules = 64
	MaxWGSLDeps    = 16
	MaxBytecode    = 1 << 20
)

// headerSize is the fixed container header length in bytes.
const headerSize = 28

// Version is the container version this loader understands.
const Version = 1

// magic identifies a pngine module container.
var magic = [4]byte{'P', 'N', 'G', 'B'}

// Container errors. Each failure mode is distinguishable with errors.Is.
var (
	// ErrBadMagic is returned when the blob does not start with "PNGB".
	ErrBadMagic = errors.New("pmod: bad magic")

	// ErrBadVersion is returned for an unknown container version.
	ErrBadVersion = errors.New("pmod: unsupported container version")

	// ErrTruncated is returned when the blob ends inside a header or table.
	ErrTruncated = errors.New("pmod: truncated container")

	// ErrOffsetRange is returned when a section offset lies outside the blob
	// or sections are not in ascending order.
	ErrOffsetRange = errors.New("pmod: section offset out of range")

	// ErrTableTooLarge is returned when a table count exceeds its maximum.
	ErrTableTooLarge = errors.New("pmod: table exceeds maximum size")

	// ErrBadPluginSet is returned when the plugin byte names undefined
	// plugins or omits core.
	ErrBadPluginSet = errors.New("pmod: invalid plugin set")

	// ErrBadWGSLRef is returned when a WGSL entry references a data blob or
	// dependency that does not exist.
	ErrBadWGSLRef = errors.New("pmod: wgsl entry references missing id")
)

// WGSLEntry is one node of the WGSL dependency graph: the data blob
// holding the source fragment and the entries that must textually
// precede it.
type WGSLEntry struct {
	DataID uint16
	Deps   []uint16
}

// Module is the loaded, immutable projection of a container.
type Module struct {
	version uint16
	plugins bytecode.PluginSet

	strings [][]byte
	data    [][]byte
	wgsl    []WGSLEntry
	code    []byte
}

// Version returns the container version.
func (m *Module) Version() uint16 { return m.version }

// Plugins returns the plugin set recorded at compile time.
func (m *Module) Plugins() bytecode.PluginSet { return m.plugins }

// NumStrings returns the string table size.
func (m *Module) NumStrings() int { return len(m.strings) }

// String returns the string table entry with the given id.
func (m *Module) String(id uint32) (string, bool) {
	if int(id) >= len(m.strings) {
		return "", false
	}
	return string(m.strings[id]), true
}

// NumData returns the data section size.
func (m *Module) NumData() int { return len(m.data) }

// Data returns the data blob with the given id. The slice aliases the
// container; callers must not modify it.
func (m *Module) Data(id uint32) ([]byte, bool) {
	if int(id) >= len(m.data) {
		return nil, false
	}
	return m.data[id], true
}

// NumWGSL returns the WGSL table size.
func (m *Module) NumWGSL() int { return len(m.wgsl) }

// WGSL returns the WGSL table entry with the given id.
func (m *Module) WGSL(id uint32) (WGSLEntry, bool) {
	if int(id) >= len(m.wgsl) {
		return WGSLEntry{}, false
	}
	return m.wgsl[id], true
}

// Bytecode returns the opcode stream. The slice aliases the container.
func (m *Module) Bytecode() []byte { return m.code }

// Parse loads a module container from blob. The returned module aliases
// blob; the caller must keep blob alive and unmodified for the module's
// lifetime.
func Parse(blob []byte) (*Module, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: %d header bytes", ErrTruncated, len(blob))
	}
	if [4]byte(blob[0:4]) != magic {
		return nil, ErrBadMagic
	}
	version := binary.LittleEndian.Uint16(blob[4:6])
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}
	plugins := bytecode.PluginSet(blob[6])
	if !plugins.Valid() {
		return nil, fmt.Errorf("%w: %#x", ErrBadPluginSet, byte(plugins))
	}

	stringsOff := binary.LittleEndian.Uint32(blob[8:12])
	dataOff := binary.LittleEndian.Uint32(blob[12:16])
	wgslOff := binary.LittleEndian.Uint32(blob[16:20])
	codeOff := binary.LittleEndian.Uint32(blob[20:24])
	endOff := binary.LittleEndian.Uint32(blob[24:28])

	if endOff != uint32(len(blob)) {
		return nil, fmt.Errorf("%w: end offset %d, blob %d", ErrOffsetRange, endOff, len(blob))
	}
	offsets := []uint32{stringsOff, dataOff, wgslOff, codeOff, endOff}
	prev := uint32(headerSize)
	for _, off := range offsets {
		if off < prev || off > uint32(len(blob)) {
			return nil, fmt.Errorf("%w: offset %d", ErrOffsetRange, off)
		}
		prev = off
	}
	if codeOff > endOff || endOff-codeOff > MaxBytecode {
		return nil, fmt.Errorf("%w: bytecode %d bytes", ErrTableTooLarge, endOff-codeOff)
	}

	m := &Module{
		version: version,
		plugins: plugins,
		code:    blob[codeOff:endOff],
	}

	var err error
	if m.strings, err = parseBlobTable(blob[stringsOff:dataOff], MaxStrings, "strings"); err != nil {
		return nil, err
	}
	if m.data, err = parseBlobTable(blob[dataOff:wgslOff], MaxData, "data"); err != nil {
		return nil, err
	}
	if m.wgsl, err = parseWGSLTable(blob[wgslOff:codeOff], len(m.data)); err != nil {
		return nil, err
	}
	return m, nil
}

// parseBlobTable reads [count:u32] then count x [len:u32][bytes].
func parseBlobTable(sec []byte, maxCount int, name string) ([][]byte, error) {
	if len(sec) < 4 {
		return nil, fmt.Errorf("%w: %s table header", ErrTruncated, name)
	}
	count := binary.LittleEndian.Uint32(sec[0:4])
	if count > uint32(maxCount) {
		return nil, fmt.Errorf("%w: %s count %d", ErrTableTooLarge, name, count)
	}
	blobs := make([][]byte, 0, count)
	pos := 4
	for range count {
		if pos+4 > len(sec) {
			return nil, fmt.Errorf("%w: %s entry header", ErrTruncated, name)
		}
		n := int(binary.LittleEndian.Uint32(sec[pos : pos+4]))
		pos += 4
		if n < 0 || pos+n > len(sec) {
			return nil, fmt.Errorf("%w: %s entry body", ErrTruncated, name)
		}
		blobs = append(blobs, sec[pos:pos+n:pos+n])
		pos += n
	}
	return blobs, nil
}

// parseWGSLTable reads [count:u32] then count x
// [data_id:u16][dep_count:u8][dep_ids:u16 x N].
func parseWGSLTable(sec []byte, numData int) ([]WGSLEntry, error) {
	if len(sec) < 4 {
		return nil, fmt.Errorf("%w: wgsl table header", ErrTruncated)
	}
	count := binary.LittleEndian.Uint32(sec[0:4])
	if count > MaxWGSLModules {
		return nil, fmt.Errorf("%w: wgsl count %d", ErrTableTooLarge, count)
	}
	entries := make([]WGSLEntry, 0, count)
	pos := 4
	for range count {
		if pos+3 > len(sec) {
			return nil, fmt.Errorf("%w: wgsl entry header", ErrTruncated)
		}
		dataID := binary.LittleEndian.Uint16(sec[pos : pos+2])
		depCount := int(sec[pos+2])
		pos += 3
		if depCount > MaxWGSLDeps {
			return nil, fmt.Errorf("%w: wgsl deps %d", ErrTableTooLarge, depCount)
		}
		if int(dataID) >= numData {
			return nil, fmt.Errorf("%w: data %d", ErrBadWGSLRef, dataID)
		}
		if pos+2*depCount > len(sec) {
			return nil, fmt.Errorf("%w: wgsl deps", ErrTruncated)
		}
		var deps []uint16
		if depCount > 0 {
			deps = make([]uint16, depCount)
			for i := range depCount {
				deps[i] = binary.LittleEndian.Uint16(sec[pos+2*i : pos+2*i+2])
			}
		}
		pos += 2 * depCount
		entries = append(entries, WGSLEntry{DataID: dataID, Deps: deps})
	}
	// Dependency ids must refer to existing entries.
	for _, e := range entries {
		for _, d := range e.Deps {
			if int(d) >= len(entries) {
				return nil, fmt.Errorf("%w: dep %d", ErrBadWGSLRef, d)
			}
		}
	}
	return entries, nil
}
