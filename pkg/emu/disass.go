package emu

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/blacktop/fwtrace/internal/colors"
	"github.com/blacktop/fwtrace/pkg/trace"
)

var (
	colorMnemonic  = colors.Mnemonic().SprintfFunc()
	colorReg       = colors.Register().SprintFunc()
	colorImm       = colors.Immediate().SprintFunc()
	colorAddr      = colors.Address().SprintfFunc()
	colorBytes     = colors.Bytes().SprintfFunc()
	colorHook      = colors.Hook().SprintFunc()
	colorDetails   = colors.Details().SprintfFunc()
	colorInterrupt = colors.Interrupt().SprintfFunc()
	colorChanged   = colors.Changed().SprintfFunc()
)

var (
	immMatch = regexp.MustCompile(`#-?(0x[0-9a-f]+|[0-9]+)`)
	regMatch = regexp.MustCompile(`(^|\W)(r[0-9]{1,2}|sb|sl|fp|ip|sp|lr|pc|[sd][0-9]{1,2}|apsr(_[a-z]+)?|[ex]?psr|primask|basepri(_max)?|faultmask|control|msp|psp|fpscr)\b`)
)

func colorOperands(operands string) string {
	if len(operands) == 0 {
		return operands
	}
	operands = immMatch.ReplaceAllStringFunc(operands, func(s string) string {
		return colorImm(s)
	})
	return regMatch.ReplaceAllStringFunc(operands, func(s string) string {
		m := regMatch.FindStringSubmatch(s)
		return m[1] + colorReg(m[2])
	})
}

// disassemble formats one decoded instruction with its raw bytes, insn may be
// nil when the bytes did not decode
func disassemble(addr uint32, code []byte, insn *trace.Instruction) string {
	if insn == nil {
		n := min(len(code), 2)
		return fmt.Sprintf("%s:  %s\t%s",
			colorAddr("%#08x", addr),
			colorBytes("%-11s", hex.EncodeToString(code[:n])),
			colorMnemonic("%-7s", "(bad)"),
		)
	}
	return fmt.Sprintf("%s:  %s\t%s %s",
		colorAddr("%#08x", addr),
		colorBytes("%-11s", hex.EncodeToString(code[:min(len(code), insn.Size)])),
		colorMnemonic("%-7s", insn.Mnemonic),
		colorOperands(insn.OpStr),
	)
}
