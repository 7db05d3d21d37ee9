package rhea

import (
	"path/filepath"
	"testing"
)

func TestMultiVisitorRoutesStartEndToOneTrace(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, nil)

	if err := m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 1}); err != nil {
		t.Fatalf("TraceStart: %v", err)
	}
	if _, ok := m.visitors[1]; !ok {
		t.Fatalf("expected a visitor to be created for trace 1")
	}
	if m.Done() {
		t.Fatalf("should not be done while a trace is active")
	}

	if err := m.VisitStandard(StandardEntry{Type: TraceEnd, Extra: 1}); err != nil {
		t.Fatalf("TraceEnd: %v", err)
	}
	if _, ok := m.visitors[1]; ok {
		t.Fatalf("expected the trace 1 visitor to be retired after TraceEnd")
	}
	if !m.Done() {
		t.Fatalf("expected Done() once every started trace has ended")
	}
	if len(cb.ends) != 1 {
		t.Fatalf("expected one OnTraceEnd callback, got %d", len(cb.ends))
	}
}

func TestMultiVisitorBroadcastsToAllActiveTraces(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, nil)

	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 1})
	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 2})

	if err := m.VisitStandard(StandardEntry{Type: CallStart, ID: 9}); err != nil {
		t.Fatalf("broadcast entry: %v", err)
	}

	m.VisitStandard(StandardEntry{Type: TraceEnd, Extra: 1})
	m.VisitStandard(StandardEntry{Type: TraceEnd, Extra: 2})

	if !m.Done() {
		t.Fatalf("expected Done() once both traces have ended")
	}
	if len(cb.ends) != 2 {
		t.Fatalf("expected both traces to finalize, got %d OnTraceEnd calls", len(cb.ends))
	}
}

func TestMultiVisitorConsumedTracesTracksEverySeenID(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, nil)

	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 1})
	m.VisitStandard(StandardEntry{Type: TraceEnd, Extra: 1})
	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 2})

	consumed := m.ConsumedTraces()
	if _, ok := consumed[1]; !ok {
		t.Fatalf("expected trace 1 (already ended) to remain in ConsumedTraces")
	}
	if _, ok := consumed[2]; !ok {
		t.Fatalf("expected trace 2 (still active) to be in ConsumedTraces")
	}
}

func TestMultiVisitorBackwardsHookFiresOnce(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	var hookCalls int
	var hookedID TraceID
	hook := func(v *TraceLifecycleVisitor) {
		hookCalls++
		hookedID = v.traceID
	}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, hook)

	m.VisitStandard(StandardEntry{Type: TraceBackwards, Extra: 5})

	if hookCalls != 1 {
		t.Fatalf("expected the backwards hook to fire exactly once, got %d", hookCalls)
	}
	if hookedID != 5 {
		t.Fatalf("expected the hook to receive trace 5, got %d", hookedID)
	}
}

func TestMultiVisitorSameIDStartTwiceCreatesFreshVisitor(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, nil)

	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 1})
	first := m.visitors[1]

	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 1})
	second := m.visitors[1]

	if first == second {
		t.Fatalf("a second TRACE_START for the same id must replace the visitor, not reuse it")
	}
}

func TestMultiVisitorAbortTerminatesAllActive(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, nil)

	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 1})
	m.VisitStandard(StandardEntry{Type: TraceStart, Extra: 2})

	m.Abort(AbortWriterException)

	if len(m.visitors) != 0 {
		t.Fatalf("expected Abort to clear every active visitor")
	}
	if !m.Done() {
		t.Fatalf("expected Done() after Abort")
	}
	if len(cb.aborts) != 2 {
		t.Fatalf("expected both active traces to report an abort, got %d", len(cb.aborts))
	}

	entries, _ := filepath.Glob(filepath.Join(dir, "*.gz"))
	if len(entries) != 0 {
		t.Fatalf("expected no finalized files after an abort, found %v", entries)
	}
}

func TestMultiVisitorDispatchesParsedRecord(t *testing.T) {
	dir := t.TempDir()
	cb := &recordingCallbacks{}
	m := NewMultiTraceLifecycleVisitor(dir, "app", 0, cb, TraceHeaders{}, nil)

	std := StandardEntry{Type: TraceStart, Extra: 3}
	buf := make([]byte, std.CalculateSize())
	std.Pack(buf)
	rec, err := ParseRecord(buf)
	if err != nil {
		t.Fatalf("ParseRecord: %v", err)
	}

	if err := m.Visit(rec); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if _, ok := m.visitors[3]; !ok {
		t.Fatalf("expected Visit to route the parsed record to VisitStandard")
	}
}
