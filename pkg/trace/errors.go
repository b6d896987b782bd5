package trace

import "github.com/pkg/errors"

var (
	// ErrRegisterRead is returned when the register accessor fails; the run
	// can not be traced any further
	ErrRegisterRead = errors.New("failed to read registers")
	// ErrNestedITBlock means an IT instruction was seen inside an open IT
	// block, the decoder and the tracker are out of sync
	ErrNestedITBlock = errors.New("IT instruction inside IT block")
	// ErrEdgeKindMismatch is only returned in strict mode
	ErrEdgeKindMismatch = errors.New("edge kind changed between traversals")
	// ErrBadTraceFile is returned by the loaders for unreadable artifacts
	ErrBadTraceFile = errors.New("bad trace file")
)
