package emu

//go:generate go tool stringer -type=interrupt -output interrupt_string.go

import "github.com/blacktop/fwtrace/pkg/trace"

type interrupt uint32

const (
	EXCP_UNDEFINED_INSTRUCTION interrupt = 1 /* undefined instruction */
	EXCP_SOFTWARE_INTRPT       interrupt = 2 /* software interrupt */
	EXCP_PREFETCH_ABORT        interrupt = 3
	EXCP_DATA_ABORT            interrupt = 4
	EXCP_IRQ                   interrupt = 5
	EXCP_FIQ                   interrupt = 6
	EXCP_BKPT                  interrupt = 7
	EXCP_EXCEPTION_EXIT        interrupt = 8 /* Return from v7M exception.  */
	EXCP_KERNEL_TRAP           interrupt = 9
	EXCP_HVC                   interrupt = 11
	EXCP_HYP_TRAP              interrupt = 12
	EXCP_SMC                   interrupt = 13
	EXCP_VIRQ                  interrupt = 14
	EXCP_VFIQ                  interrupt = 15
	EXCP_SEMIHOST              interrupt = 16 /* semihosting call */
	EXCP_NOCP                  interrupt = 17 /* v7M NOCP UsageFault */
	EXCP_INVSTATE              interrupt = 18 /* v7M INVSTATE UsageFault */
	EXCP_STKOF                 interrupt = 19 /* v8M STKOF UsageFault */
	EXCP_LAZYFP                interrupt = 20 /* v7M fault during lazy FP stacking */
	EXCP_LSERR                 interrupt = 21 /* v8M LSERR SecureFault */
	EXCP_UNALIGNED             interrupt = 22 /* v7M UNALIGNED UsageFault */
)

// stopReason maps an exception raised by the core to the reason the run
// stops with. Exceptions the firmware handles itself keep the run going.
func (i interrupt) stopReason() (trace.StopReason, bool) {
	switch i {
	case EXCP_SOFTWARE_INTRPT, EXCP_IRQ, EXCP_FIQ, EXCP_VIRQ, EXCP_VFIQ, EXCP_EXCEPTION_EXIT:
		return trace.StopOther, false
	case EXCP_BKPT:
		return trace.StopExplicitCrash, true
	case EXCP_PREFETCH_ABORT:
		return trace.StopInvalidFetch, true
	}
	return trace.StopUnhandledException, true
}
