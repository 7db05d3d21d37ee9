// reassembler.go: reconstructs payloads from packet streams
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

// streamPoolSize bounds the free list of recycled activeStream buffers,
// keeping steady-state reassembly allocation-free.
const streamPoolSize = 8

// activeStream accumulates fragments of one in-flight payload.
type activeStream struct {
	stream StreamID
	data   []byte
}

// PayloadCallback receives a fully reassembled payload. The backing array
// is owned by the reassembler's recycled buffer pool: a callback that
// needs the bytes to outlive the call must copy them.
type PayloadCallback func(payload []byte)

// PacketReassembler reconstructs payloads out of packet streams. It is
// not safe for concurrent use; a writer thread owns one reassembler per
// direction of scan.
type PacketReassembler struct {
	active   []*activeStream
	pool     []*activeStream
	callback PayloadCallback
}

// NewPacketReassembler creates a reassembler that invokes callback
// exactly once per completed stream.
func NewPacketReassembler(callback PayloadCallback) *PacketReassembler {
	return &PacketReassembler{callback: callback}
}

func (r *PacketReassembler) newStream() *activeStream {
	if n := len(r.pool); n > 0 {
		s := r.pool[n-1]
		r.pool = r.pool[:n-1]
		return s
	}
	return &activeStream{}
}

func (r *PacketReassembler) recycle(s *activeStream) {
	if len(r.pool) < streamPoolSize {
		s.data = s.data[:0]
		s.stream = 0
		r.pool = append(r.pool, s)
	}
}

func (r *PacketReassembler) find(stream StreamID) int {
	for i, s := range r.active {
		if s.stream == stream {
			return i
		}
	}
	return -1
}

func (r *PacketReassembler) removeActive(i int) *activeStream {
	s := r.active[i]
	r.active = append(r.active[:i], r.active[i+1:]...)
	return s
}

// Process feeds one packet to the forward reassembler. A packet belongs
// to an already-active stream if its Stream id matches; appending and,
// on the terminator (Next==false), flushing to the callback and
// recycling the buffer. A self-contained single-packet payload
// (Start&&!Next) with no active stream is delivered in place without
// ever allocating. A mid-stream packet (!Start) with no matching active
// stream is an orphan left over from a consumer that started reading
// mid-stream, and is dropped silently.
func (r *PacketReassembler) Process(p Packet) {
	if i := r.find(p.Stream); i >= 0 {
		s := r.active[i]
		s.data = append(s.data, p.Data[:p.Size]...)
		if !p.Next {
			r.callback(s.data)
			r.removeActive(i)
			r.recycle(s)
		}
		return
	}

	switch {
	case p.Start && !p.Next:
		r.callback(p.Data[:p.Size])
	case p.Start:
		s := r.newStream()
		s.stream = p.Stream
		s.data = append(s.data, p.Data[:p.Size]...)
		r.active = append(r.active, s)
	}
}

// ProcessBackwards feeds one packet to the backward reassembler while the
// caller walks the ring from newer to older slots. Each packet's data is
// appended and then reversed in place so that, once the whole buffer is
// reversed on flush, bytes come out in original transmission order. In
// this direction the terminator is the packet with Start set (the first
// packet of the payload, last seen walking backwards). An orphan with
// Next==true and no active stream is dropped; an orphan with Next==false
// starts a new active stream (it may still need a Start packet from
// further back).
func (r *PacketReassembler) ProcessBackwards(p Packet) {
	if i := r.find(p.Stream); i >= 0 {
		s := r.active[i]
		appendReversed(s, p)
		if p.Start {
			reverseBytes(s.data)
			r.callback(s.data)
			r.removeActive(i)
			r.recycle(s)
		}
		return
	}

	switch {
	case p.Start && !p.Next:
		r.callback(p.Data[:p.Size])
	case !p.Next:
		s := r.newStream()
		s.stream = p.Stream
		appendReversed(s, p)
		r.active = append(r.active, s)
	}
}

func appendReversed(s *activeStream, p Packet) {
	prev := len(s.data)
	s.data = append(s.data, p.Data[:p.Size]...)
	reverseBytes(s.data[prev:])
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
