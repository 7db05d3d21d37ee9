// headers.go: per-trace header line emitted at the top of every trace file
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rhea

import (
	"fmt"
	"os"
	"runtime"
)

// TraceBackdatingWindowMicros is the duration, in microseconds, a trace's
// retained history may extend before its nominal start time. It is
// advertised to downstream analysis tools in the header; the writer
// itself does not clip buffered packets to this window.
const TraceBackdatingWindowMicros = 10_000_000

// TraceHeaders carries the process- and trace-level metadata written once
// at the start of each trace file, before any packet-derived body lines.
type TraceHeaders struct {
	Pid                    int
	Arch                   string
	OS                     string
	BackdatingWindowMicros int64
}

// goArchToHeader maps runtime.GOARCH to the header's arch token. Unknown
// architectures pass through unchanged.
var goArchToHeader = map[string]string{
	"amd64": "x86_64",
	"386":   "x86",
	"arm64": "aarch64",
	"arm":   "arm",
}

// NewTraceHeaders computes the headers for a trace starting on this
// process.
func NewTraceHeaders() TraceHeaders {
	arch, ok := goArchToHeader[runtime.GOARCH]
	if !ok {
		arch = runtime.GOARCH
	}
	return TraceHeaders{
		Pid:                    os.Getpid(),
		Arch:                   arch,
		OS:                     runtime.GOOS,
		BackdatingWindowMicros: TraceBackdatingWindowMicros,
	}
}

// WriteTo renders the headers as pipe-delimited `k|v` lines, one per
// header, in the order a trace file's downstream readers expect them.
// It does not write the blank line that terminates the header block;
// that belongs to whatever wrote the preamble ahead of these lines.
func (h TraceHeaders) WriteTo(w interface{ Write([]byte) (int, error) }) (int, error) {
	text := fmt.Sprintf(
		"pid|%d\narch|%s\nos|%s\ntrace_backdating_window|%d\n",
		h.Pid, h.Arch, h.OS, h.BackdatingWindowMicros,
	)
	return w.Write([]byte(text))
}
