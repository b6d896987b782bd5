package emu

import (
	"testing"

	"github.com/blacktop/fwtrace/pkg/trace"
)

func TestInterruptStopReason(t *testing.T) {
	tests := []struct {
		intr   interrupt
		reason trace.StopReason
		stop   bool
	}{
		{EXCP_SOFTWARE_INTRPT, trace.StopOther, false},
		{EXCP_EXCEPTION_EXIT, trace.StopOther, false},
		{EXCP_IRQ, trace.StopOther, false},
		{EXCP_BKPT, trace.StopExplicitCrash, true},
		{EXCP_PREFETCH_ABORT, trace.StopInvalidFetch, true},
		{EXCP_UNDEFINED_INSTRUCTION, trace.StopUnhandledException, true},
		{EXCP_INVSTATE, trace.StopUnhandledException, true},
		{interrupt(42), trace.StopUnhandledException, true},
	}
	for _, tt := range tests {
		t.Run(tt.intr.String(), func(t *testing.T) {
			reason, stop := tt.intr.stopReason()
			if reason != tt.reason || stop != tt.stop {
				t.Fatalf("got %s, %t; want %s, %t", reason, stop, tt.reason, tt.stop)
			}
		})
	}
}
