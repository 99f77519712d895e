package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble renders an opcode stream as one line per opcode:
// the byte offset, the opcode name, and the raw operand bytes in hex.
// Malformed regions are rendered as ".byte 0xNN" lines so the output
// always covers the whole stream.
func Disassemble(code []byte) string {
	var sb strings.Builder
	s := NewScanner(code)
	pc := 0
	for pc < len(code) {
		op := Op(code[pc])
		next, err := s.Skip(op, pc+1)
		if !op.Valid() || err != nil {
			fmt.Fprintf(&sb, "%06x  .byte 0x%02x\n", pc, code[pc])
			pc++
			continue
		}
		if next > pc+1 {
			fmt.Fprintf(&sb, "%06x  %-30s % x\n", pc, op.String(), code[pc+1:next])
		} else {
			fmt.Fprintf(&sb, "%06x  %s\n", pc, op.String())
		}
		pc = next
	}
	return sb.String()
}
