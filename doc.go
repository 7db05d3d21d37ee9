// Package rhea provides a fixed-capacity, wait-free trace event
// transport: producers split arbitrary payloads into fixed-size packets
// and publish them to a single-buffer, multi-producer/single-consumer
// ring, and a dedicated writer goroutine reassembles, decodes, and
// routes them into per-trace compressed files on disk.
//
// # Quick Start
//
//	tracer, err := rhea.NewWithDefaults("/data/traces")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer tracer.Close()
//
//	entry := rhea.StandardEntry{Type: rhea.TraceStart, Extra: 1}
//	buf := make([]byte, entry.CalculateSize())
//	entry.Pack(buf)
//	cursor, _ := tracer.Write(buf)
//	tracer.SubmitTrace(cursor, 1)
//
// # Configuration
//
//	tracer, err := rhea.New(rhea.TraceConfig{
//		Folder:      "/data/traces",
//		TracePrefix: "app",
//		RingSlots:   4096,
//		Callbacks:   myCallbacks{},
//	})
//
// # Pipeline
//
// A payload's path through the transport:
//
//  1. PacketLogger.Write splits the payload into 64-byte Packets sharing
//     a stream id and publishes them to the RingBuffer.
//  2. TraceWriter.Loop, on Submit, walks the RingBuffer forward from a
//     cursor and feeds packets to a PacketReassembler.
//  3. Reassembled payloads are decoded by ParseRecord into a
//     StandardEntry, FramesEntry, or BytesEntry.
//  4. MultiTraceLifecycleVisitor routes each record to the
//     TraceLifecycleVisitor of every trace it belongs to, which writes
//     it as a line in that trace's compressed output file.
//
// # Performance
//
//   - Wait-free producer writes: a single atomic fetch-add per packet,
//     never a lock, never a retry loop.
//   - Zero-copy decode: FramesEntry.Frames and BytesEntry.Bytes alias the
//     decode source directly rather than copying.
//   - Crash-safe output: every trace file is written to a .tmp path and
//     atomically renamed into place only once compression succeeds.
//
// # Error Handling
//
// Producer-facing calls (Write, the Pack/Unpack family) return errors
// directly. The writer goroutine never panics on bad input: a malformed
// record is logged and dropped, and a write failure on one trace's file
// is reported through the Callbacks interface and aborts only that trace.
package rhea
