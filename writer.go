// writer.go: single consumer goroutine that drains the ring buffer into trace files
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import (
	"context"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// stopLoopTraceID is the sentinel trace id that tells Loop to return
// without processing anything, mirroring the one reserved value the
// fragment protocol can never legitimately assign to a real trace.
const stopLoopTraceID TraceID = 0

type submitRequest struct {
	cursor  Cursor
	traceID TraceID
}

// TraceWriter is the single consumer of a RingBuffer: it walks packets
// forward from a submitted cursor, reassembles them into records, and
// fans them out to a MultiTraceLifecycleVisitor until every trace it
// knows about has reached a terminal state.
//
// Exactly one goroutine should call Loop for the lifetime of a
// TraceWriter; Submit and SubmitID are safe to call concurrently from
// any number of producer goroutines.
type TraceWriter struct {
	buffer      *RingBuffer
	folder      string
	tracePrefix string
	fileMode    os.FileMode
	callbacks   Callbacks
	headers     TraceHeaders
	logger      *zap.SugaredLogger

	queue chan submitRequest
}

// NewTraceWriter creates a writer draining buffer into folder, naming
// output files with tracePrefix and creating them with fileMode. logger
// may be nil, in which case a no-op logger is used.
func NewTraceWriter(folder, tracePrefix string, fileMode os.FileMode, buffer *RingBuffer, callbacks Callbacks, headers TraceHeaders, logger *zap.SugaredLogger) *TraceWriter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if callbacks == nil {
		callbacks = NopCallbacks{}
	}
	if fileMode == 0 {
		fileMode = GetDefaultFileMode()
	}
	return &TraceWriter{
		buffer:      buffer,
		folder:      folder,
		tracePrefix: tracePrefix,
		fileMode:    fileMode,
		callbacks:   callbacks,
		headers:     headers,
		logger:      logger.Named("writer"),
		queue:       make(chan submitRequest, 16),
	}
}

// Submit enqueues a trace for processing starting at cursor. Loop wakes
// up, walks forward from cursor, and runs until every trace reachable
// from that point reaches a terminal state. Submit with traceID
// stopLoopTraceID to make the next Loop call return instead of
// processing anything; ordinary trace ids are never 0, so this never
// collides with a real submission.
func (w *TraceWriter) Submit(cursor Cursor, traceID TraceID) {
	w.queue <- submitRequest{cursor: cursor, traceID: traceID}
}

// SubmitID is equivalent to Submit(buffer.CurrentTail(), traceID): it
// forces a full forward scan from the writer's current position instead
// of the caller supplying an exact starting cursor.
func (w *TraceWriter) SubmitID(traceID TraceID) {
	w.Submit(w.buffer.CurrentTail(), traceID)
}

// Loop blocks processing submitted traces until ctx is canceled or a
// stopLoopTraceID request arrives. It pins the calling goroutine to its
// OS thread for the duration: consumer scheduling jitter directly
// becomes trace-flush latency, so the writer goroutine gets the same
// predictable placement a dedicated writer thread would have.
func (w *TraceWriter) Loop(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.logger.Infow("loop started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Infow("loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case req := <-w.queue:
			if req.traceID == stopLoopTraceID {
				w.logger.Infow("loop stopped", "reason", "stop sentinel")
				return nil
			}
			if _, err := w.ProcessTrace(req.cursor); err != nil {
				w.logger.Warnw("trace processing failed", "trace_id", req.traceID, "error", err)
			}
		}
	}
}

// ProcessTrace walks the buffer forward from cursor, reassembling
// packets into records and routing them through a fresh
// MultiTraceLifecycleVisitor, until the visitor reports every trace it
// has seen has ended, or a read fails twice at the same cursor (the
// cursor has reached the newest published slot, or a producer has
// overwritten it). Any trace still active at that point is aborted with
// AbortTimeout. A record that fails to parse is logged and dropped; a
// trace whose output cannot be written is aborted on its own while the
// others continue. It returns the set of trace ids observed. Safe to call
// directly, outside Loop, for synchronous
// single-trace processing; mixing direct calls with a running Loop on
// the same writer is not supported.
func (w *TraceWriter) ProcessTrace(cursor Cursor) (map[TraceID]struct{}, error) {
	multi := NewMultiTraceLifecycleVisitor(w.folder, w.tracePrefix, w.fileMode, w.callbacks, w.headers, func(v *TraceLifecycleVisitor) {
		w.replayBackwards(v, cursor)
	})

	reassembler := NewPacketReassembler(func(payload []byte) {
		rec, err := ParseRecord(payload)
		if err != nil {
			w.logger.Warnw("dropping malformed record", "error", err)
			return
		}
		if err := multi.Visit(rec); err != nil {
			w.logger.Warnw("trace write failed", "error", err)
		}
	})

	for {
		p, ok := w.buffer.TryRead(cursor)
		if !ok {
			// A producer may have reserved this position (fetch-add on
			// the tail) without having published the slot yet; retry
			// once at the same cursor before treating the buffer as
			// exhausted.
			p, ok = w.buffer.TryRead(cursor)
			if !ok {
				break
			}
		}
		reassembler.Process(p)
		if multi.Done() {
			break
		}
		cursor.pos++
	}

	if !multi.Done() {
		multi.Abort(AbortTimeout)
	}
	return multi.ConsumedTraces(), nil
}

// replayBackwards walks the buffer backward from just before cursor,
// feeding a single trace's late-joining visitor the history it missed:
// the mechanism that makes TRACE_BACKWARDS produce a trace that includes
// activity recorded before the trigger that started it.
func (w *TraceWriter) replayBackwards(v *TraceLifecycleVisitor, cursor Cursor) {
	back := cursor
	if !back.MoveBackward() {
		return
	}

	var visitErr error
	reassembler := NewPacketReassembler(func(payload []byte) {
		if visitErr != nil {
			return
		}
		rec, err := ParseRecord(payload)
		if err != nil {
			visitErr = err
			return
		}
		switch {
		case rec.Standard != nil:
			visitErr = v.VisitStandard(*rec.Standard)
		case rec.Frames != nil:
			visitErr = v.VisitFrames(*rec.Frames)
		case rec.Bytes != nil:
			visitErr = v.VisitBytes(*rec.Bytes)
		}
	})

	for {
		p, ok := w.buffer.TryRead(back)
		if !ok {
			break
		}
		reassembler.ProcessBackwards(p)
		if visitErr != nil {
			w.logger.Warnw("backwards replay failed", "error", visitErr)
			return
		}
		if !back.MoveBackward() {
			break
		}
	}
}
