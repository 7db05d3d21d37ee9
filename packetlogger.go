// packetlogger.go: splits a payload into Packets and publishes them
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import (
	"fmt"
	"sync/atomic"
)

// PacketLogger fragments an arbitrary-length payload into fixed-size
// Packets and writes them, in order, to a RingBuffer.
type PacketLogger struct {
	streamID atomic.Uint32
	buffer   *RingBuffer
}

// NewPacketLogger creates a PacketLogger writing into buffer.
func NewPacketLogger(buffer *RingBuffer) *PacketLogger {
	return &PacketLogger{buffer: buffer}
}

// Write splits payload into one or more Packets sharing a freshly
// assigned stream id and publishes them to the ring buffer in order.
//
// Returns the Cursor of the first packet of the stream, which callers
// use to seed a later backwards scan. A non-empty payload is required;
// the stream counter is only advanced once that check passes, so a
// rejected call never burns a stream id.
func (l *PacketLogger) Write(payload []byte) (Cursor, error) {
	if len(payload) == 0 {
		return Cursor{}, fmt.Errorf("packetlogger: empty payload: %w", ErrInvalidArgument)
	}

	streamID := l.streamID.Add(1) - 1

	var cursor Cursor
	cursorSet := false
	offset := 0
	for offset < len(payload) {
		remaining := len(payload) - offset
		writeSize := remaining
		if writeSize > packetDataSize {
			writeSize = packetDataSize
		}

		var p Packet
		p.Stream = streamID
		p.Start = offset == 0
		p.Next = remaining > packetDataSize
		p.Size = uint16(writeSize)
		copy(p.Data[:], payload[offset:offset+writeSize])

		c := l.buffer.Write(p)
		if !cursorSet {
			cursor = c
			cursorSet = true
		}

		offset += writeSize
	}

	return cursor, nil
}
