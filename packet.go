// packet.go: 64-byte framed ring buffer slot
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import "unsafe"

// StreamID identifies every packet produced by a single PacketLogger.write
// call. Monotonically increasing, wraps are acceptable: only streams in
// flight at the same instant need to be distinct.
type StreamID = uint32

const (
	// packetDataSize is the number of usable payload bytes per packet.
	packetDataSize = 52

	// packetSize is the fixed, cache-line-sized on-wire frame size.
	packetSize = 64
)

// Packet is a fixed 64-byte slot carrying a fragment of a Record. Exactly
// one packet in a stream has Start set, exactly one has Next unset (the
// terminator), and all packets of a stream share Stream.
//
// Go has no bitfield syntax, so the packed {stream, start:1, next:1,
// size:14, data} layout from the wire format is realised as ordinary
// fields; Data still lands at a 4-byte-aligned offset so a reassembled
// buffer that starts on a packet boundary can be reinterpreted without a
// copy by the codec.
type Packet struct {
	Stream StreamID
	Start  bool
	Next   bool
	Size   uint16
	Data   [packetDataSize]byte
	_      [4]byte // pads Packet to exactly packetSize bytes
}

// compile-time assertion that Packet is exactly packetSize bytes; a
// negative array length fails the build if the layout ever drifts.
var _ [packetSize - int(unsafe.Sizeof(Packet{}))]byte
var _ [int(unsafe.Sizeof(Packet{})) - packetSize]byte
