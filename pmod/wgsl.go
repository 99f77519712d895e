package pmod

import (
	"errors"
	"strings"
)

// ErrDependencyDepthExceeded is returned when WGSL resolution does not
// terminate within the iteration cap, or when it meets a dependency
// cycle; a cycle ends here rather than spinning.
var ErrDependencyDepthExceeded = errors.New("pmod: wgsl dependency depth exceeded")

// ErrMissingWGSL is returned when the root WGSL id does not exist.
var ErrMissingWGSL = errors.New("pmod: wgsl module not found")

// maxResolveIterations bounds the dependency traversal.
const maxResolveIterations = MaxWGSLModules * MaxWGSLDeps

// ResolveWGSL concatenates the shader source for the WGSL module with
// the given id. Dependencies are emitted before their dependents, each
// fragment separated by a single newline.
//
// The traversal is an iterative depth-first walk with an explicit visit
// stack and a deduplicating visited set. Missing dependency ids are
// skipped so lenient compilers still resolve; a missing root is an
// error.
func (m *Module) ResolveWGSL(id uint32) (string, error) {
	if int(id) >= len(m.wgsl) {
		return "", ErrMissingWGSL
	}

	type frame struct {
		id       uint16
		expanded bool
	}

	var (
		order   []uint16
		visited [MaxWGSLModules]bool
		emitted [MaxWGSLModules]bool
		stack   []frame
	)
	stack = append(stack, frame{id: uint16(id)})

	for iter := 0; len(stack) > 0; iter++ {
		if iter >= maxResolveIterations {
			return "", ErrDependencyDepthExceeded
		}
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if int(top.id) >= len(m.wgsl) {
			continue
		}
		if top.expanded {
			if !emitted[top.id] {
				emitted[top.id] = true
				order = append(order, top.id)
			}
			continue
		}
		if visited[top.id] {
			if !emitted[top.id] {
				// Still being expanded: this dependency leads back
				// into the current path.
				return "", ErrDependencyDepthExceeded
			}
			continue
		}
		visited[top.id] = true

		// Re-push expanded, then the dependencies on top so they emit
		// first. Reverse order keeps the emitted sequence in declared
		// dependency order.
		stack = append(stack, frame{id: top.id, expanded: true})
		deps := m.wgsl[top.id].Deps
		for i := len(deps) - 1; i >= 0; i-- {
			stack = append(stack, frame{id: deps[i]})
		}
	}

	var sb strings.Builder
	for i, wid := range order {
		if i > 0 {
			sb.WriteByte('\n')
		}
		blob, ok := m.Data(uint32(m.wgsl[wid].DataID))
		if !ok {
			continue
		}
		sb.Write(blob)
	}
	return sb.String(), nil
}
