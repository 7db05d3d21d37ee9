package rhea

import (
	"bytes"
	"errors"
	"testing"
)

func TestPacketLoggerSinglePacket(t *testing.T) {
	rb := NewRingBuffer(8)
	pl := NewPacketLogger(rb)

	payload := []byte("small payload")
	cursor, err := pl.Write(payload)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	p, ok := rb.TryRead(cursor)
	if !ok {
		t.Fatalf("expected to read back the packet just written")
	}
	if !p.Start || p.Next {
		t.Fatalf("single-packet payload should have Start=true Next=false, got %+v", p)
	}
	if int(p.Size) != len(payload) {
		t.Fatalf("got size %d, want %d", p.Size, len(payload))
	}
	if !bytes.Equal(p.Data[:p.Size], payload) {
		t.Fatalf("payload mismatch: got %q", p.Data[:p.Size])
	}
}

func TestPacketLoggerFragmentsLargePayload(t *testing.T) {
	rb := NewRingBuffer(16)
	pl := NewPacketLogger(rb)

	payload := bytes.Repeat([]byte{0xAB}, packetDataSize*2+10)
	cursor, err := pl.Write(payload)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	var reassembled []byte
	c := cursor
	for {
		p, ok := rb.TryRead(c)
		if !ok {
			t.Fatalf("buffer overwritten before reassembly finished")
		}
		reassembled = append(reassembled, p.Data[:p.Size]...)
		if !p.Next {
			break
		}
		c.pos++
	}

	if !bytes.Equal(reassembled, payload) {
		t.Fatalf("reassembled payload does not match original: got %d bytes, want %d", len(reassembled), len(payload))
	}
}

func TestPacketLoggerSharesStreamAcrossFragments(t *testing.T) {
	rb := NewRingBuffer(16)
	pl := NewPacketLogger(rb)

	payload := bytes.Repeat([]byte{0x01}, packetDataSize+5)
	cursor, err := pl.Write(payload)
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	first, _ := rb.TryRead(cursor)
	second, _ := rb.TryRead(Cursor{pos: cursor.pos + 1})
	if first.Stream != second.Stream {
		t.Fatalf("fragments of one payload must share a stream id: got %d and %d", first.Stream, second.Stream)
	}
	if !first.Start || first.Next == false {
		t.Fatalf("first fragment should have Start=true Next=true, got %+v", first)
	}
	if second.Start || second.Next {
		t.Fatalf("second (final) fragment should have Start=false Next=false, got %+v", second)
	}
}

func TestPacketLoggerRejectsEmptyPayload(t *testing.T) {
	pl := NewPacketLogger(NewRingBuffer(4))
	if _, err := pl.Write(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("got err %v, want ErrInvalidArgument", err)
	}
}

func TestPacketLoggerDoesNotBurnStreamIDOnRejectedWrite(t *testing.T) {
	rb := NewRingBuffer(8)
	pl := NewPacketLogger(rb)

	if _, err := pl.Write(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}

	cursor, err := pl.Write([]byte("x"))
	if err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	p, _ := rb.TryRead(cursor)
	if p.Stream != 0 {
		t.Fatalf("expected first successful write to claim stream 0, got %d", p.Stream)
	}
}
