// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

// Package journal is the append-only record of request outcomes. One
// record is written per terminal pipeline state, successful or not,
// giving operators the "accepted before" ordering the system promises
// for observability.
//
// Records are framed as a 4-byte big-endian length prefix followed by
// a deterministically encoded CBOR body (RFC 8949 §4.2: sorted map
// keys, smallest integer encoding), so the same logical record always
// produces identical bytes. The active segment rotates at a size
// threshold; rotated segments are zstd-compressed in place.
//
// Journal writes are best-effort from the pipeline's point of view: a
// failed append is logged and the request still resolves normally.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
)

// Record is one request outcome.
type Record struct {
	RequestID   string    `cbor:"request_id"`
	Format      string    `cbor:"format"`
	Status      string    `cbor:"status"`
	AcceptedAt  time.Time `cbor:"accepted_at"`
	FinishedAt  time.Time `cbor:"finished_at"`
	ContentID   string    `cbor:"content_id,omitempty"`
	ContentHash string    `cbor:"content_hash,omitempty"`
	ErrorKind   string    `cbor:"error_kind,omitempty"`
	ErrorDetail string    `cbor:"error_detail,omitempty"`
}

// activeName is the file records are appended to before rotation.
const activeName = "journal.active"

// defaultMaxSegmentBytes rotates segments at 4 MiB uncompressed.
const defaultMaxSegmentBytes = 4 << 20

// encMode is the deterministic CBOR encoder shared by all journals.
var encMode cbor.EncMode

// decMode accepts standard CBOR, ignoring unknown fields for forward
// compatibility.
var decMode cbor.DecMode

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	var err error
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

// Config configures a Journal.
type Config struct {
	// Dir is where segments live. Created if missing. Required.
	Dir string

	// MaxSegmentBytes triggers rotation. Defaults to 4 MiB.
	MaxSegmentBytes int64
}

// Journal appends outcome records. Safe for concurrent use.
type Journal struct {
	dir             string
	maxSegmentBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
	seq  int
}

// Open creates or resumes the journal in dir. An existing active
// segment is appended to; the next rotation sequence number continues
// from the rotated segments already present.
func Open(config Config) (*Journal, error) {
	if config.Dir == "" {
		return nil, fmt.Errorf("journal directory is required")
	}
	if err := os.MkdirAll(config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}

	maxSegmentBytes := config.MaxSegmentBytes
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = defaultMaxSegmentBytes
	}

	journal := &Journal{dir: config.Dir, maxSegmentBytes: maxSegmentBytes}
	journal.seq = nextSequence(config.Dir)

	if err := journal.openActive(); err != nil {
		return nil, err
	}
	return journal, nil
}

// Append writes one record and rotates afterwards if the active
// segment passed the size threshold.
func (j *Journal) Append(record Record) error {
	body, err := encMode.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding journal record: %w", err)
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.file.Write(frame); err != nil {
		return fmt.Errorf("appending journal record: %w", err)
	}
	j.size += int64(len(frame))

	if j.size >= j.maxSegmentBytes {
		if err := j.rotateLocked(); err != nil {
			return fmt.Errorf("rotating journal: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the active segment.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

func (j *Journal) openActive() error {
	path := filepath.Join(j.dir, activeName)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening active journal segment: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("statting active journal segment: %w", err)
	}
	j.file = file
	j.size = info.Size()
	return nil
}

// rotateLocked closes the active segment, compresses it into a
// numbered .cbor.zst segment, and starts a fresh active file. Caller
// holds j.mu.
func (j *Journal) rotateLocked() error {
	if err := j.file.Close(); err != nil {
		return err
	}
	j.file = nil

	j.seq++
	activePath := filepath.Join(j.dir, activeName)
	segmentPath := filepath.Join(j.dir, segmentName(j.seq))

	if err := compressFile(activePath, segmentPath); err != nil {
		return err
	}
	if err := os.Remove(activePath); err != nil {
		return err
	}
	return j.openActive()
}

func segmentName(seq int) string {
	return fmt.Sprintf("journal-%06d.cbor.zst", seq)
}

// nextSequence finds the highest existing segment number.
func nextSequence(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	highest := 0
	for _, entry := range entries {
		var seq int
		if _, err := fmt.Sscanf(entry.Name(), "journal-%06d.cbor.zst", &seq); err == nil && seq > highest {
			highest = seq
		}
	}
	return highest
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	encoder, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(encoder, in); err != nil {
		encoder.Close()
		out.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Segments lists the journal's segment files, rotated first in
// sequence order, active segment last.
func Segments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var rotated []string
	active := ""
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case name == activeName:
			active = filepath.Join(dir, name)
		case strings.HasPrefix(name, "journal-") && strings.HasSuffix(name, ".cbor.zst"):
			rotated = append(rotated, filepath.Join(dir, name))
		}
	}
	sort.Strings(rotated)
	if active != "" {
		rotated = append(rotated, active)
	}
	return rotated, nil
}

// ReadSegment decodes every record in a segment file, transparently
// decompressing rotated segments.
func ReadSegment(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, ".zst") {
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return nil, err
		}
		defer decoder.Close()
		reader = decoder
	}

	var records []Record
	lengthBuf := make([]byte, 4)
	for {
		if _, err := io.ReadFull(reader, lengthBuf); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return nil, fmt.Errorf("reading record length: %w", err)
		}
		body := make([]byte, binary.BigEndian.Uint32(lengthBuf))
		if _, err := io.ReadFull(reader, body); err != nil {
			return nil, fmt.Errorf("reading record body: %w", err)
		}
		var record Record
		if err := decMode.Unmarshal(body, &record); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		records = append(records, record)
	}
}
