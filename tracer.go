// tracer.go: public API wiring the ring buffer, packet logger, and writer together
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"go.uber.org/zap"
)

// TraceConfig configures a Tracer.
//
// Basic usage example:
//
//	tracer, err := rhea.New(rhea.TraceConfig{
//		Folder:      "/data/traces",
//		TracePrefix: "app",
//	})
//	tracer.Write(payload)
//	defer tracer.Close()
type TraceConfig struct {
	// Folder is the directory trace files are written into. Created
	// recursively if it doesn't exist.
	Folder string `json:"folder"`

	// TracePrefix names every trace file this tracer writes.
	TracePrefix string `json:"trace_prefix"`

	// RingSlots is the number of packet slots in the ring buffer.
	// Zero uses DefaultRingSlots.
	RingSlots int `json:"ring_slots"`

	// Callbacks receives trace lifecycle notifications. Nil uses
	// NopCallbacks.
	Callbacks Callbacks `json:"-"`

	// Logger receives structured lifecycle and error logs from the
	// writer goroutine. Nil uses a development logger.
	Logger *zap.Logger `json:"-"`

	// FileMode is the permission bits new trace files are created with.
	FileMode os.FileMode `json:"file_mode"`

	// Checksum, when true, writes a SHA-256 sidecar file next to every
	// finalized trace file.
	Checksum bool `json:"checksum"`

	// MaxTraces bounds how many finalized trace files are kept in
	// Folder; the oldest are removed once a new one is finalized beyond
	// this count. Zero disables count-based retention.
	MaxTraces int `json:"max_traces"`
}

func (c TraceConfig) withDefaults() (TraceConfig, error) {
	if c.Folder == "" {
		return c, fmt.Errorf("tracer: Folder is required: %w", ErrInvalidArgument)
	}
	if err := ValidatePathLength(c.Folder); err != nil {
		return c, fmt.Errorf("tracer: %w: %w", err, ErrInvalidArgument)
	}
	if c.TracePrefix == "" {
		c.TracePrefix = "trace"
	}
	c.TracePrefix = SanitizeFilename(c.TracePrefix)
	if c.RingSlots <= 0 {
		c.RingSlots = DefaultRingSlots
	}
	if c.FileMode == 0 {
		c.FileMode = GetDefaultFileMode()
	}
	return c, nil
}

// Tracer is the public entry point for producing and draining trace
// events: one RingBuffer, one PacketLogger to split payloads into
// packets, and one TraceWriter goroutine consuming them into compressed
// trace files on disk.
type Tracer struct {
	config    TraceConfig
	buffer    *RingBuffer
	logger    *PacketLogger
	writer    *TraceWriter
	retention *RetentionWorkers
	zlog      *zap.Logger
	clock     *timecache.TimeCache

	cancel  context.CancelFunc
	loopErr chan error

	closed atomic.Bool
}

// New creates a Tracer and starts its writer goroutine. Call Close to
// stop the writer and release resources.
func New(config TraceConfig) (*Tracer, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(config.Folder, 0o755); err != nil {
		return nil, fmt.Errorf("tracer: create folder %s: %w", config.Folder, err)
	}

	zlog := config.Logger
	if zlog == nil {
		zlog, err = zap.NewDevelopment()
		if err != nil {
			return nil, fmt.Errorf("tracer: build logger: %w", err)
		}
	}

	buffer := NewRingBuffer(config.RingSlots)
	packetLogger := NewPacketLogger(buffer)

	sugar := zlog.Sugar()
	retention := NewRetentionWorkers(2, config.Folder, config.TracePrefix, config.MaxTraces, func(op string, err error) {
		sugar.Named("retention").Warnw("task failed", "op", op, "error", err)
	})

	callbacks := withRetentionCallbacks(config.Callbacks, retention, config.Checksum)
	writer := NewTraceWriter(config.Folder, config.TracePrefix, config.FileMode, buffer, callbacks, NewTraceHeaders(), sugar)

	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracer{
		config:    config,
		buffer:    buffer,
		logger:    packetLogger,
		writer:    writer,
		retention: retention,
		zlog:      zlog,
		clock:     timecache.NewWithResolution(time.Microsecond),
		cancel:    cancel,
		loopErr:   make(chan error, 1),
	}

	go func() {
		t.loopErr <- writer.Loop(ctx)
	}()

	return t, nil
}

// NewWithDefaults creates a Tracer writing into folder with the prefix
// "trace" and every other setting at its default.
func NewWithDefaults(folder string) (*Tracer, error) {
	return New(TraceConfig{Folder: folder})
}

// Write records one payload as a new trace event. The payload is
// fragmented into packets and published to the ring buffer; it does not
// block on the writer goroutine and never blocks other producers.
func (t *Tracer) Write(payload []byte) (Cursor, error) {
	if t.closed.Load() {
		return Cursor{}, ErrWriterShutdown
	}
	return t.logger.Write(payload)
}

// SubmitTrace tells the writer goroutine to walk the buffer forward from
// cursor, collecting every record belonging to traceID (and any other
// trace active in that range) until each reaches a terminal state.
// Typically called right after writing a TRACE_START/TRACE_BACKWARDS
// record, using the cursor Write returned for it.
func (t *Tracer) SubmitTrace(cursor Cursor, traceID TraceID) error {
	if t.closed.Load() {
		return ErrWriterShutdown
	}
	t.writer.Submit(cursor, traceID)
	return nil
}

// Buffer exposes the underlying RingBuffer, for callers that need direct
// read access (e.g. custom diagnostics).
func (t *Tracer) Buffer() *RingBuffer { return t.buffer }

// Now returns the current time in microseconds since the Unix epoch,
// the unit StandardEntry.Timestamp and TraceHeaders use. Backed by a
// cached clock so producers on the hot path never pay for a syscall per
// event.
func (t *Tracer) Now() int64 {
	return t.clock.CachedTime().UnixMicro()
}

// Close stops the writer goroutine and waits for it to finish any trace
// it is mid-processing. Safe to call more than once.
func (t *Tracer) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.writer.Submit(Cursor{}, stopLoopTraceID)
	t.cancel()
	err := <-t.loopErr
	t.retention.Stop()
	_ = t.zlog.Sync()
	if err != nil && err != context.Canceled {
		return fmt.Errorf("tracer: writer loop: %w", err)
	}
	return nil
}

// retentionCallbacks wraps a host's Callbacks so a successful trace end
// also schedules that file's checksum and retention sweep.
type retentionCallbacks struct {
	Callbacks
	retention *RetentionWorkers
	checksum  bool
}

func withRetentionCallbacks(inner Callbacks, retention *RetentionWorkers, checksum bool) Callbacks {
	if inner == nil {
		inner = NopCallbacks{}
	}
	return retentionCallbacks{Callbacks: inner, retention: retention, checksum: checksum}
}

func (c retentionCallbacks) OnTraceEnd(id TraceID, path string) {
	c.Callbacks.OnTraceEnd(id, path)
	c.retention.SubmitFinalized(path, c.checksum)
}
