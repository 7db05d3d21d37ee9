// lifecycle.go: per-trace state machine and compressed output file
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// traceFormatVersion and traceTimestampPrecision are the first two lines
// of every trace file's header block: the on-disk format version and the
// power-of-ten precision (microseconds) of every timestamp the body
// lines carry.
const (
	traceFormatVersion      = 3
	traceTimestampPrecision = 6
)

// traceState is the lifecycle state of one trace, following the
// Idle -> Starting -> Running -> {Ended, Aborted, TimedOut} progression.
type traceState int

const (
	traceIdle traceState = iota
	traceStarting
	traceRunning
	traceEnded
	traceAborted
	traceTimedOut
)

// AbortReason classifies why a trace was abandoned before a clean
// TRACE_END.
type AbortReason int

const (
	AbortUnknown AbortReason = iota
	AbortTimeout
	AbortControllerRequested
	AbortWriterException
	AbortMissingStart
)

func (r AbortReason) String() string {
	switch r {
	case AbortTimeout:
		return "timeout"
	case AbortControllerRequested:
		return "controller_requested"
	case AbortWriterException:
		return "writer_exception"
	case AbortMissingStart:
		return "missing_start"
	default:
		return "unknown"
	}
}

// TraceLifecycleVisitor owns one trace's output file across its
// lifetime: it opens the file on TRACE_START or TRACE_BACKWARDS, writes
// every subsequent record as a body line, and finalizes (compress +
// atomic rename) the file on TRACE_END, or discards it on TRACE_ABORT /
// TRACE_TIMEOUT / an I/O error mid-write.
//
// Not safe for concurrent use; owned by the writer's single consumer
// goroutine for the lifetime of one trace.
type TraceLifecycleVisitor struct {
	folder      string
	tracePrefix string
	fileMode    os.FileMode
	callbacks   Callbacks
	headers     TraceHeaders
	traceID     TraceID

	state traceState

	tmpPath   string
	finalPath string
	file      *os.File
	gz        *gzip.Writer
	buf       *bufio.Writer

	doneFlag bool
}

// NewTraceLifecycleVisitor creates a visitor for traceID. folder is the
// directory new trace files are written into; tracePrefix names them;
// fileMode is the permission the output file is created with.
func NewTraceLifecycleVisitor(folder, tracePrefix string, fileMode os.FileMode, callbacks Callbacks, headers TraceHeaders, traceID TraceID) *TraceLifecycleVisitor {
	if callbacks == nil {
		callbacks = NopCallbacks{}
	}
	if fileMode == 0 {
		fileMode = GetDefaultFileMode()
	}
	return &TraceLifecycleVisitor{
		folder:      folder,
		tracePrefix: tracePrefix,
		fileMode:    fileMode,
		callbacks:   callbacks,
		headers:     headers,
		traceID:     traceID,
	}
}

// Done reports whether this trace has reached a terminal state (Ended,
// Aborted, or TimedOut) and its output file has been finalized or
// discarded.
func (v *TraceLifecycleVisitor) Done() bool { return v.doneFlag }

// tracePaths derives the temporary and final output paths for this
// trace. The epoch-ms and random suffix guard against a restarted trace
// (same id, a fresh TRACE_START replacing an earlier unfinished or
// uncollected lifecycle) colliding with a file an earlier run of the
// same id left behind.
func (v *TraceLifecycleVisitor) tracePaths() (tmp, final string) {
	epochMs := time.Now().UnixMilli()
	name := fmt.Sprintf("%s-%d-%d-%s.log", v.tracePrefix, v.traceID, epochMs, randomSuffix())
	final = filepath.Join(v.folder, name+".gz")
	tmp = filepath.Join(v.folder, name+".gz.tmp")
	return
}

// randomSuffix returns a short hex token distinguishing two trace files
// that would otherwise share a prefix, id, and millisecond. Falls back
// to a nanosecond timestamp if the system random source is unavailable.
func randomSuffix() string {
	var b [4]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b[:])
}

func (v *TraceLifecycleVisitor) openOutput() error {
	tmp, final := v.tracePaths()
	v.tmpPath, v.finalPath = tmp, final

	if err := ValidatePathLength(tmp); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	var f *os.File
	err := RetryFileOperation(func() error {
		var openErr error
		f, openErr = os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, v.fileMode) // #nosec G304 -- tmp is built from a sanitized prefix and the caller-configured folder
		return openErr
	}, 3, 10*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lifecycle: open %s: %w", tmp, err)
	}
	v.file = f
	v.gz = gzip.NewWriter(f)
	v.buf = bufio.NewWriter(v.gz)

	preamble := fmt.Sprintf("%d\n%d\n%d\n", traceFormatVersion, traceTimestampPrecision, v.traceID)
	if _, err := v.buf.WriteString(preamble); err != nil {
		return fmt.Errorf("lifecycle: write header preamble: %w", err)
	}
	if _, err := v.headers.WriteTo(v.buf); err != nil {
		return fmt.Errorf("lifecycle: write headers: %w", err)
	}
	if _, err := v.buf.WriteString("\n"); err != nil {
		return fmt.Errorf("lifecycle: write header terminator: %w", err)
	}
	return nil
}

// VisitStandard handles a StandardEntry. TRACE_START and TRACE_BACKWARDS
// open the output file and move the trace to Running; TRACE_END,
// TRACE_ABORT, and TRACE_TIMEOUT finalize or discard the file and move
// the trace to a terminal state; every other type is written as a body
// line if the trace is currently running.
func (v *TraceLifecycleVisitor) VisitStandard(e StandardEntry) error {
	switch e.Type {
	case TraceStart, TraceBackwards:
		return v.onTraceStart()
	case TraceEnd:
		return v.onTraceEnd()
	case TraceAbort:
		return v.onAbort(AbortControllerRequested)
	case TraceTimeout:
		return v.onAbort(AbortTimeout)
	default:
		if v.state != traceRunning {
			return nil
		}
		return v.writeLine(standardLine(e))
	}
}

// VisitFrames writes one body line per frame value, matching the
// original record's one-line-per-stack-frame rendering.
func (v *TraceLifecycleVisitor) VisitFrames(e FramesEntry) error {
	if v.state != traceRunning {
		return nil
	}
	for _, frame := range e.Frames {
		line := fmt.Sprintf("%d|%s|%d|%d|0|%d|%d\n", e.ID, e.Type, e.Timestamp, e.Tid, e.MatchID, frame)
		if err := v.writeLine(line); err != nil {
			return err
		}
	}
	return nil
}

// VisitBytes writes the raw byte payload verbatim, with no added
// delimiter: its framing is the caller's concern (interned strings are
// typically self-delimiting records by the time they reach this writer).
func (v *TraceLifecycleVisitor) VisitBytes(e BytesEntry) error {
	if v.state != traceRunning {
		return nil
	}
	return v.writeLine(string(e.Bytes))
}

func standardLine(e StandardEntry) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(e.ID), 10))
	b.WriteByte('|')
	b.WriteString(e.Type.String())
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.Timestamp, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(e.Tid), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(e.CallID), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(e.MatchID), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(e.Extra, 10))
	b.WriteByte('\n')
	return b.String()
}

func (v *TraceLifecycleVisitor) writeLine(s string) error {
	if v.state != traceRunning {
		return nil
	}
	if _, err := v.buf.WriteString(s); err != nil {
		v.callbacks.OnTraceWriteException(v.traceID, fmt.Errorf("lifecycle: write body: %w: %w", ErrIOError, err))
		return v.onAbort(AbortWriterException)
	}
	return nil
}

func (v *TraceLifecycleVisitor) onTraceStart() error {
	if v.state != traceIdle {
		return nil
	}
	v.state = traceStarting
	if err := v.openOutput(); err != nil {
		v.callbacks.OnTraceWriteException(v.traceID, err)
		return v.onAbort(AbortWriterException)
	}
	v.state = traceRunning
	v.callbacks.OnTraceStart(v.traceID)
	return nil
}

func (v *TraceLifecycleVisitor) onTraceEnd() error {
	if v.state != traceRunning {
		return v.cleanupState()
	}
	if err := v.finalize(); err != nil {
		v.callbacks.OnTraceWriteException(v.traceID, err)
		v.state = traceAborted
		v.doneFlag = true
		v.callbacks.OnTraceAbort(v.traceID, "", err)
		return err
	}
	v.state = traceEnded
	v.doneFlag = true
	v.callbacks.OnTraceEnd(v.traceID, v.finalPath)
	return nil
}

func (v *TraceLifecycleVisitor) onAbort(reason AbortReason) error {
	if v.doneFlag {
		return nil
	}
	if v.file != nil {
		_ = v.buf.Flush()
		_ = v.gz.Close()
		_ = v.file.Close()
		_ = os.Remove(v.tmpPath)
	}
	if reason == AbortTimeout {
		v.state = traceTimedOut
	} else {
		v.state = traceAborted
	}
	v.doneFlag = true
	v.callbacks.OnTraceAbort(v.traceID, "", fmt.Errorf("trace aborted: %s", reason))
	return nil
}

func (v *TraceLifecycleVisitor) cleanupState() error {
	v.doneFlag = true
	return nil
}

// finalize flushes, closes, and atomically renames the trace's temporary
// output file into its final compressed location.
func (v *TraceLifecycleVisitor) finalize() error {
	if err := v.buf.Flush(); err != nil {
		_ = v.gz.Close()
		_ = v.file.Close()
		_ = os.Remove(v.tmpPath)
		return fmt.Errorf("flush: %w", err)
	}
	if err := v.gz.Close(); err != nil {
		_ = v.file.Close()
		_ = os.Remove(v.tmpPath)
		return fmt.Errorf("close gzip writer: %w", err)
	}
	if err := v.file.Close(); err != nil {
		_ = os.Remove(v.tmpPath)
		return fmt.Errorf("close file: %w", err)
	}
	err := RetryFileOperation(func() error {
		return os.Rename(v.tmpPath, v.finalPath)
	}, 3, 10*time.Millisecond)
	if err != nil {
		_ = os.Remove(v.tmpPath)
		return fmt.Errorf("rename %s to %s: %w", v.tmpPath, v.finalPath, err)
	}
	return nil
}
