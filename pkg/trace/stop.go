package trace

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StopReason is the driver's classification of why a run ended
type StopReason uint8

const (
	StopOther StopReason = iota
	StopEndOfInput
	StopInstructionLimit
	StopExit
	StopTimeout
	StopInvalidRead
	StopInvalidWrite
	StopInvalidFetch
	StopNonExecutableFetch
	StopProtectedWrite
	StopUnhandledException
	StopExplicitCrash
)

var stopReasonNames = [...]string{
	"other",
	"end_of_input",
	"instruction_limit",
	"exit",
	"timeout",
	"invalid_read",
	"invalid_write",
	"invalid_fetch",
	"non_executable_fetch",
	"protected_write",
	"unhandled_exception",
	"explicit_crash",
}

func (r StopReason) String() string {
	if int(r) < len(stopReasonNames) {
		return stopReasonNames[r]
	}
	return fmt.Sprintf("StopReason(%d)", r)
}

// ParseStopReason is the inverse of StopReason.String
func ParseStopReason(s string) (StopReason, error) {
	for i, n := range stopReasonNames {
		if n == s {
			return StopReason(i), nil
		}
	}
	return StopOther, errors.Errorf("unknown stop reason %q", s)
}

// IsCrash reports whether the reason indicates a fault
func (r StopReason) IsCrash() bool {
	switch r {
	case StopInvalidRead,
		StopInvalidWrite,
		StopInvalidFetch,
		StopNonExecutableFetch,
		StopProtectedWrite,
		StopUnhandledException,
		StopExplicitCrash:
		return true
	}
	return false
}

// BugFlags are bugs observed by the driver outside of the stop reason (e.g.
// by a sanitizer hook). Any set bit makes the run crash-classified.
type BugFlags uint8

const (
	BugObserved BugFlags = 1 << iota
	BugStackSmash
	BugHeapCorruption
)

func (b BugFlags) String() string {
	if b == 0 {
		return "none"
	}
	var s []string
	if b&BugObserved != 0 {
		s = append(s, "bug")
	}
	if b&BugStackSmash != 0 {
		s = append(s, "stack_smash")
	}
	if b&BugHeapCorruption != 0 {
		s = append(s, "heap_corruption")
	}
	if rest := b &^ (BugObserved | BugStackSmash | BugHeapCorruption); rest != 0 {
		s = append(s, fmt.Sprintf("%#x", uint8(rest)))
	}
	return strings.Join(s, "|")
}
