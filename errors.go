// errors.go: error kinds for the trace event transport
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import "errors"

// Sentinel error kinds reported by the core transport. Callers use
// errors.Is against these to decide whether a failure should be
// propagated, logged-and-dropped, or turned into a per-trace abort.
var (
	// ErrInvalidArgument is raised for zero-length payloads or nil buffers.
	ErrInvalidArgument = errors.New("rhea: invalid argument")

	// ErrInvalidTag is raised when a record's serialisation tag byte does
	// not match the shape the caller asked to decode.
	ErrInvalidTag = errors.New("rhea: invalid serialization tag")

	// ErrUnknownType is raised when peekType/dispatch sees a tag with no
	// known shape.
	ErrUnknownType = errors.New("rhea: unknown serialization type")

	// ErrOutOfRange is raised when a destination buffer is too small for
	// a pack operation.
	ErrOutOfRange = errors.New("rhea: destination too small")

	// ErrNullInput is raised when a source buffer is nil or empty.
	ErrNullInput = errors.New("rhea: nil source buffer")

	// ErrBufferOverflow is the error surfaced to callers that want it
	// observable; the ring itself never returns it, tryRead simply
	// returns false on an overwritten slot.
	ErrBufferOverflow = errors.New("rhea: ring buffer slot overwritten")

	// ErrIOError wraps a file I/O failure encountered while a trace is
	// Running; it is always converted into an abort for that trace alone.
	ErrIOError = errors.New("rhea: trace file I/O error")

	// ErrTraceTimeout names the Timed-out outcome of a trace that received
	// an externally delivered TRACE_TIMEOUT record. No function in this
	// package returns it; a timed-out trace is reported through
	// Callbacks.OnTraceAbort.
	ErrTraceTimeout = errors.New("rhea: trace timed out")

	// ErrWriterShutdown is returned by Tracer.Write and Tracer.SubmitTrace
	// once the Tracer has been closed.
	ErrWriterShutdown = errors.New("rhea: writer shut down")
)
