// entry.go: pack/unpack of the three wire record shapes plus EntryType
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// EntryType enumerates the kinds of events the transport carries, numbered
// starting at 0 in declaration order below.
type EntryType uint8

const (
	UnknownType EntryType = iota
	UIInputStart
	UIInputEnd
	UIUpdateStart
	UIUpdateEnd
	NetAdded
	NetCancel
	NetChangepri
	NetError
	NetEnd
	NetResponse
	NetRetry
	NetStart
	NetCounter
	CallStart
	CallEnd
	AsyncCall
	ServConn
	ServDisconn
	ServEnd
	AdapterNotify
	MarkFlag
	MarkPush
	MarkPop
	LifecycleApplicationStart
	LifecycleApplicationEnd
	LifecycleActivityStart
	LifecycleActivityEnd
	LifecycleServiceStart
	LifecycleServiceEnd
	LifecycleBroadcastReceiverStart
	LifecycleBroadcastReceiverEnd
	LifecycleContentProviderStart
	LifecycleContentProviderEnd
	LifecycleFragmentStart
	LifecycleFragmentEnd
	LifecycleViewStart
	LifecycleViewEnd
	TraceAbort
	TraceEnd
	TraceStart
	TraceBackwards
	TraceTimeout
	BlackboxTraceStart
	Counter
	StackFrame
	QplStart
	QplEnd
	QplCancel
	QplNote
	QplPoint
	QplEvent
	TraceAnnotation
	WaitStart
	WaitEnd
	WaitSignal
	StringKey
	StringValue
	QplTag
	QplAnnotation
	TraceThreadName
	TracePreEnd
	TraceThreadPri
	MinorFault
	MajorFault
	PerfeventsLost
	ClassLoad
	JavascriptStackFrame
	MessageStart
	MessageEnd
	ClassValue
	Http2RequestInitiated
	Http2FrameHeader
	Http2WindowUpdate
	Http2Priority
	Http2EgressFrameHeader
	ProcessList
	IOStart
	IOEnd
	CPUCounter
	ClassLoadStart
	ClassLoadEnd
	ClassLoadFailed
	StringName
	JavaFrameName
	BinderStart
	BinderEnd
	MemoryAllocation
	StkerrEmptystack
	StkerrStackoverflow
	StkerrNostackforthread
	StkerrSignalinterrupt
	StkerrNestedunwind
	Mapping
	LoggerPriority
	ConditionalUploadRate
	NativeAlloc
	NativeFree
	NativeAllocFailure
)

var entryTypeNames = [...]string{
	"UNKNOWN_TYPE", "UI_INPUT_START", "UI_INPUT_END", "UI_UPDATE_START", "UI_UPDATE_END",
	"NET_ADDED", "NET_CANCEL", "NET_CHANGEPRI", "NET_ERROR", "NET_END", "NET_RESPONSE",
	"NET_RETRY", "NET_START", "NET_COUNTER", "CALL_START", "CALL_END", "ASYNC_CALL",
	"SERV_CONN", "SERV_DISCONN", "SERV_END", "ADAPTER_NOTIFY", "MARK_FLAG", "MARK_PUSH",
	"MARK_POP", "LIFECYCLE_APPLICATION_START", "LIFECYCLE_APPLICATION_END",
	"LIFECYCLE_ACTIVITY_START", "LIFECYCLE_ACTIVITY_END", "LIFECYCLE_SERVICE_START",
	"LIFECYCLE_SERVICE_END", "LIFECYCLE_BROADCAST_RECEIVER_START",
	"LIFECYCLE_BROADCAST_RECEIVER_END", "LIFECYCLE_CONTENT_PROVIDER_START",
	"LIFECYCLE_CONTENT_PROVIDER_END", "LIFECYCLE_FRAGMENT_START", "LIFECYCLE_FRAGMENT_END",
	"LIFECYCLE_VIEW_START", "LIFECYCLE_VIEW_END", "TRACE_ABORT", "TRACE_END", "TRACE_START",
	"TRACE_BACKWARDS", "TRACE_TIMEOUT", "BLACKBOX_TRACE_START", "COUNTER", "STACK_FRAME",
	"QPL_START", "QPL_END", "QPL_CANCEL", "QPL_NOTE", "QPL_POINT", "QPL_EVENT",
	"TRACE_ANNOTATION", "WAIT_START", "WAIT_END", "WAIT_SIGNAL", "STRING_KEY", "STRING_VALUE",
	"QPL_TAG", "QPL_ANNOTATION", "TRACE_THREAD_NAME", "TRACE_PRE_END", "TRACE_THREAD_PRI",
	"MINOR_FAULT", "MAJOR_FAULT", "PERFEVENTS_LOST", "CLASS_LOAD", "JAVASCRIPT_STACK_FRAME",
	"MESSAGE_START", "MESSAGE_END", "CLASS_VALUE", "HTTP2_REQUEST_INITIATED",
	"HTTP2_FRAME_HEADER", "HTTP2_WINDOW_UPDATE", "HTTP2_PRIORITY",
	"HTTP2_EGRESS_FRAME_HEADER", "PROCESS_LIST", "IO_START", "IO_END", "CPU_COUNTER",
	"CLASS_LOAD_START", "CLASS_LOAD_END", "CLASS_LOAD_FAILED", "STRING_NAME",
	"JAVA_FRAME_NAME", "BINDER_START", "BINDER_END", "MEMORY_ALLOCATION",
	"STKERR_EMPTYSTACK", "STKERR_STACKOVERFLOW", "STKERR_NOSTACKFORTHREAD",
	"STKERR_SIGNALINTERRUPT", "STKERR_NESTEDUNWIND", "MAPPING", "LOGGER_PRIORITY",
	"CONDITIONAL_UPLOAD_RATE", "NATIVE_ALLOC", "NATIVE_FREE", "NATIVE_ALLOC_FAILURE",
}

// String renders the wire name used in trace file body lines.
func (t EntryType) String() string {
	if int(t) < len(entryTypeNames) {
		return entryTypeNames[t]
	}
	return "UNKNOWN_TYPE"
}

// Serialisation tags, one per record shape.
const (
	tagStandard uint8 = 1
	tagFrames   uint8 = 2
	tagBytes    uint8 = 3
)

// StandardEntry is the fixed-size record shape used for discrete events:
// lifecycle markers, counters, call/service boundaries, and so on.
type StandardEntry struct {
	ID        int32
	Type      EntryType
	Timestamp int64
	Tid       int32
	CallID    int32
	MatchID   int32
	Extra     int64
}

// standardSize is the total packed size of a StandardEntry: the tag byte
// plus every fixed-width field, with no padding: fields are packed back to
// back, so most of them sit at unaligned offsets.
const standardSize = 1 + 4 + 1 + 8 + 4 + 4 + 4 + 8 // = 34

// CalculateSize returns the exact number of bytes Pack writes.
func (e StandardEntry) CalculateSize() int { return standardSize }

// Pack writes e into dst in the wire format: tag byte, then fields in
// declared order, little-endian.
func (e StandardEntry) Pack(dst []byte) (int, error) {
	n := e.CalculateSize()
	if len(dst) < n {
		return 0, fmt.Errorf("entry: dst has %d bytes, need %d: %w", len(dst), n, ErrOutOfRange)
	}
	dst[0] = tagStandard
	off := 1
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.ID))
	off += 4
	dst[off] = uint8(e.Type)
	off++
	binary.LittleEndian.PutUint64(dst[off:], uint64(e.Timestamp))
	off += 8
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.Tid))
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.CallID))
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.MatchID))
	off += 4
	binary.LittleEndian.PutUint64(dst[off:], uint64(e.Extra))
	off += 8
	return off, nil
}

// UnpackStandardEntry decodes a StandardEntry from src. src must start
// with the Standard serialisation tag.
func UnpackStandardEntry(src []byte) (StandardEntry, error) {
	var e StandardEntry
	if len(src) == 0 {
		return e, fmt.Errorf("entry: empty source: %w", ErrNullInput)
	}
	if src[0] != tagStandard {
		return e, fmt.Errorf("entry: tag %d is not Standard: %w", src[0], ErrInvalidTag)
	}
	if len(src) < standardSize {
		return e, fmt.Errorf("entry: source too short for Standard: %w", ErrOutOfRange)
	}
	off := 1
	e.ID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.Type = EntryType(src[off])
	off++
	e.Timestamp = int64(binary.LittleEndian.Uint64(src[off:]))
	off += 8
	e.Tid = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.CallID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.MatchID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.Extra = int64(binary.LittleEndian.Uint64(src[off:]))
	return e, nil
}

// align4 rounds n up to the next multiple of 4.
func align4(n int) int { return (n + 3) &^ 3 }

// FramesEntry carries a variable-length list of stack frame values (e.g.
// return addresses). The frames array is length-prefixed by a u16 count
// and its start is realigned to a 4-byte boundary from the beginning of
// the record.
type FramesEntry struct {
	ID        int32
	Type      EntryType
	Timestamp int64
	Tid       int32
	MatchID   int32
	Frames    []int64
}

const framesHeaderSize = 1 + 4 + 1 + 8 + 4 + 4 // tag+id+type+timestamp+tid+matchid = 22

// framesLayout returns the byte offset of the u16 frame count and the
// 4-byte-aligned byte offset of the first frame value, for a record with
// frameCount frames.
func framesLayout(frameCount int) (countOff, valuesOff, total int) {
	countOff = framesHeaderSize
	valuesOff = align4(countOff + 2)
	total = valuesOff + frameCount*8
	return
}

// CalculateSize returns the exact number of bytes Pack writes, including
// alignment padding.
func (e FramesEntry) CalculateSize() int {
	_, _, total := framesLayout(len(e.Frames))
	return total
}

// Pack writes e into dst. dst should be 4-byte aligned so the frame
// values land on a 4-byte boundary as the wire format requires.
func (e FramesEntry) Pack(dst []byte) (int, error) {
	countOff, valuesOff, total := framesLayout(len(e.Frames))
	if len(dst) < total {
		return 0, fmt.Errorf("entry: dst has %d bytes, need %d: %w", len(dst), total, ErrOutOfRange)
	}
	dst[0] = tagFrames
	off := 1
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.ID))
	off += 4
	dst[off] = uint8(e.Type)
	off++
	binary.LittleEndian.PutUint64(dst[off:], uint64(e.Timestamp))
	off += 8
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.Tid))
	off += 4
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.MatchID))
	off += 4
	if off != countOff {
		return 0, fmt.Errorf("entry: internal layout mismatch at frame count offset")
	}
	binary.LittleEndian.PutUint16(dst[countOff:], uint16(len(e.Frames)))
	for i, v := range e.Frames {
		binary.LittleEndian.PutUint64(dst[valuesOff+i*8:], uint64(v))
	}
	return total, nil
}

// UnpackFramesEntry decodes a FramesEntry from src. The returned Frames
// slice aliases src's backing array rather than copying, so the caller
// must either consume the record before src is reused, or clone Frames.
// src is reinterpreted via unsafe under a 4-byte-alignment guarantee on
// frame value offsets (not a full 8-byte alignment, which mobile SoCs
// tolerate for unaligned 64-bit loads at a small performance cost).
func UnpackFramesEntry(src []byte) (FramesEntry, error) {
	var e FramesEntry
	if len(src) == 0 {
		return e, fmt.Errorf("entry: empty source: %w", ErrNullInput)
	}
	if src[0] != tagFrames {
		return e, fmt.Errorf("entry: tag %d is not Frames: %w", src[0], ErrInvalidTag)
	}
	if len(src) < framesHeaderSize+2 {
		return e, fmt.Errorf("entry: source too short for Frames header: %w", ErrOutOfRange)
	}
	off := 1
	e.ID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.Type = EntryType(src[off])
	off++
	e.Timestamp = int64(binary.LittleEndian.Uint64(src[off:]))
	off += 8
	e.Tid = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.MatchID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4

	count := int(binary.LittleEndian.Uint16(src[off:]))
	_, valuesOff, total := framesLayout(count)
	if len(src) < total {
		return e, fmt.Errorf("entry: source too short for %d frames: %w", count, ErrOutOfRange)
	}
	if count > 0 {
		e.Frames = unsafe.Slice((*int64)(unsafe.Pointer(&src[valuesOff])), count)
	}
	return e, nil
}

// BytesEntry carries a raw byte payload, used for interning strings.
// Array length is a u16 count; the array start is 4-byte aligned from
// the beginning of the record, same as FramesEntry.
type BytesEntry struct {
	ID      int32
	Type    EntryType
	MatchID int32
	Bytes   []byte
}

const bytesHeaderSize = 1 + 4 + 1 + 4 // tag+id+type+matchid = 10

func bytesLayout(byteCount int) (countOff, valuesOff, total int) {
	countOff = bytesHeaderSize
	valuesOff = align4(countOff + 2)
	total = valuesOff + byteCount
	return
}

// CalculateSize returns the exact number of bytes Pack writes.
func (e BytesEntry) CalculateSize() int {
	_, _, total := bytesLayout(len(e.Bytes))
	return total
}

// Pack writes e into dst.
func (e BytesEntry) Pack(dst []byte) (int, error) {
	countOff, valuesOff, total := bytesLayout(len(e.Bytes))
	if len(dst) < total {
		return 0, fmt.Errorf("entry: dst has %d bytes, need %d: %w", len(dst), total, ErrOutOfRange)
	}
	dst[0] = tagBytes
	off := 1
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.ID))
	off += 4
	dst[off] = uint8(e.Type)
	off++
	binary.LittleEndian.PutUint32(dst[off:], uint32(e.MatchID))
	off += 4
	if off != countOff {
		return 0, fmt.Errorf("entry: internal layout mismatch at byte count offset")
	}
	binary.LittleEndian.PutUint16(dst[countOff:], uint16(len(e.Bytes)))
	copy(dst[valuesOff:], e.Bytes)
	return total, nil
}

// UnpackBytesEntry decodes a BytesEntry from src. The returned Bytes
// slice aliases src directly (no copy); same lifetime contract as
// FramesEntry.Frames.
func UnpackBytesEntry(src []byte) (BytesEntry, error) {
	var e BytesEntry
	if len(src) == 0 {
		return e, fmt.Errorf("entry: empty source: %w", ErrNullInput)
	}
	if src[0] != tagBytes {
		return e, fmt.Errorf("entry: tag %d is not Bytes: %w", src[0], ErrInvalidTag)
	}
	if len(src) < bytesHeaderSize+2 {
		return e, fmt.Errorf("entry: source too short for Bytes header: %w", ErrOutOfRange)
	}
	off := 1
	e.ID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4
	e.Type = EntryType(src[off])
	off++
	e.MatchID = int32(binary.LittleEndian.Uint32(src[off:]))
	off += 4

	count := int(binary.LittleEndian.Uint16(src[off:]))
	_, valuesOff, total := bytesLayout(count)
	if len(src) < total {
		return e, fmt.Errorf("entry: source too short for %d bytes: %w", count, ErrOutOfRange)
	}
	if count > 0 {
		e.Bytes = src[valuesOff:total]
	}
	return e, nil
}

// PeekType reads the serialisation tag byte without decoding the rest of
// the record, letting a dispatcher route to the right Unpack function.
func PeekType(src []byte) (uint8, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("entry: empty source: %w", ErrNullInput)
	}
	return src[0], nil
}

// Record is a parsed entry of any shape, used by visitors that dispatch
// on kind rather than calling the Unpack* functions directly.
type Record struct {
	Standard *StandardEntry
	Frames   *FramesEntry
	Bytes    *BytesEntry
}

// ParseRecord dispatches on the tag byte and decodes src into a Record.
func ParseRecord(src []byte) (Record, error) {
	tag, err := PeekType(src)
	if err != nil {
		return Record{}, err
	}
	switch tag {
	case tagStandard:
		e, err := UnpackStandardEntry(src)
		if err != nil {
			return Record{}, err
		}
		return Record{Standard: &e}, nil
	case tagFrames:
		e, err := UnpackFramesEntry(src)
		if err != nil {
			return Record{}, err
		}
		return Record{Frames: &e}, nil
	case tagBytes:
		e, err := UnpackBytesEntry(src)
		if err != nil {
			return Record{}, err
		}
		return Record{Bytes: &e}, nil
	default:
		return Record{}, fmt.Errorf("entry: tag %d: %w", tag, ErrUnknownType)
	}
}
