// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"sync"
)

// retainBytes is how much of a stream is kept for the execution
// result. The overflow limit counts everything; retention is smaller
// so a chatty template cannot bloat results and journal records.
const retainBytes = 32 * 1024

// cappedBuffer counts every byte written, retains the first
// retainBytes, and invokes onOverflow once when the count passes the
// configured limit. Writes never fail: returning an error from an
// exec stdout writer would stall the pipe instead of stopping the
// process, so overflow aborts the run via the cancel callback instead.
type cappedBuffer struct {
	mu         sync.Mutex
	limit      int64
	written    int64
	buf        []byte
	overflowed bool
	onOverflow func()
}

func newCappedBuffer(limit int64, onOverflow func()) *cappedBuffer {
	return &cappedBuffer{limit: limit, onOverflow: onOverflow}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	b.written += int64(len(p))

	if room := retainBytes - len(b.buf); room > 0 {
		keep := p
		if len(keep) > room {
			keep = keep[:room]
		}
		b.buf = append(b.buf, keep...)
	}

	fire := false
	if b.limit > 0 && b.written > b.limit && !b.overflowed {
		b.overflowed = true
		fire = true
	}
	b.mu.Unlock()

	if fire && b.onOverflow != nil {
		b.onOverflow()
	}
	return len(p), nil
}

// Overflowed reports whether the write count passed the limit.
func (b *cappedBuffer) Overflowed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflowed
}

// String returns the retained prefix of the stream.
func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
