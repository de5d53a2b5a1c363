// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docforge-foundation/docforge/lib/allowlist"
	"github.com/docforge-foundation/docforge/lib/clock"
	"github.com/docforge-foundation/docforge/lib/journal"
	"github.com/docforge-foundation/docforge/lib/schema"
	"github.com/docforge-foundation/docforge/lib/template"
	"github.com/docforge-foundation/docforge/lib/testutil"
	"github.com/docforge-foundation/docforge/lib/upload"
	"github.com/docforge-foundation/docforge/sandbox"
)

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not installed")
	}
}

// fakeUploader records uploads and returns canned receipts.
type fakeUploader struct {
	calls   int
	fail    error
	started chan struct{}
	release chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, path string, meta upload.Metadata) (*schema.UploadReceipt, error) {
	f.calls++
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		<-f.release
	}
	if f.fail != nil {
		return nil, f.fail
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("artifact missing at upload time: %w", err)
	}
	return &schema.UploadReceipt{
		ContentID:   "content-1",
		DownloadURL: upload.DownloadPath("content-1"),
	}, nil
}

// writeManifest writes a single-template manifest overriding the
// markdown template with the given Python body.
func writeManifest(t *testing.T, body string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("templates:\n")
	b.WriteString("  - format: markdown\n")
	b.WriteString("    version: 99\n")
	b.WriteString("    capabilities: [\"os\"]\n")
	b.WriteString("    body: |\n")
	for _, line := range strings.Split(strings.TrimRight(body, "\n"), "\n") {
		b.WriteString("      " + line + "\n")
	}
	path := filepath.Join(t.TempDir(), "templates.yaml")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return path
}

type harness struct {
	pipeline *Pipeline
	tempRoot string
	uploader *fakeUploader
}

func newHarness(t *testing.T, body string, configure func(*Config)) *harness {
	t.Helper()

	registry, err := allowlist.LoadDefaults()
	if err != nil {
		t.Fatalf("LoadDefaults: %v", err)
	}
	store, err := template.NewStore(template.StoreConfig{
		Registry:     registry,
		ManifestPath: writeManifest(t, body),
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	profile, err := sandbox.DefaultProfile()
	if err != nil {
		t.Fatalf("DefaultProfile: %v", err)
	}
	profile.Isolation = sandbox.IsolationNone
	profile.Limits = sandbox.Limits{
		CPUTime:        5 * time.Second,
		WallTime:       10 * time.Second,
		MemoryBytes:    512 << 20,
		MaxOutputBytes: 1 << 20,
	}
	executor, err := sandbox.NewExecutor(sandbox.ExecutorConfig{Profile: profile})
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	uploader := &fakeUploader{}
	tempRoot := filepath.Join(t.TempDir(), "work")
	config := Config{
		Store:    store,
		Registry: registry,
		Executor: executor,
		Uploader: uploader,
		Limits:   profile.Limits,
		TempRoot: tempRoot,
	}
	if configure != nil {
		configure(&config)
	}

	pipeline, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{pipeline: pipeline, tempRoot: tempRoot, uploader: uploader}
}

// requireNoLeftovers asserts that no working directories survive.
func requireNoLeftovers(t *testing.T, tempRoot string) {
	t.Helper()
	entries, err := os.ReadDir(tempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		t.Fatalf("reading temp root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("working directories leaked: %v", entries)
	}
}

const writingBody = `with open(output_path, "w") as handle:
    handle.write("# Report\n\n" + intent + "\n")
`

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()
	requirePython(t)

	h := newHarness(t, writingBody, nil)
	result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "three facts about otters")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Status != schema.StatusOK {
		t.Fatalf("status = %s, detail = %s", result.Status, result.ErrorDetail)
	}
	if result.DownloadURL != "/api/v1/files/content-1/content" {
		t.Errorf("DownloadURL = %q", result.DownloadURL)
	}
	if !strings.HasPrefix(result.Message, "[Download markdown-") || !strings.Contains(result.Message, ".md](") {
		t.Errorf("message is not a markdown download link: %q", result.Message)
	}
	if result.Receipt == nil || result.Receipt.ContentHash == "" {
		t.Error("receipt should carry the verified content hash")
	}
	if h.uploader.calls != 1 {
		t.Errorf("uploads = %d, want exactly 1", h.uploader.calls)
	}
	requireNoLeftovers(t, h.tempRoot)
}

func TestGenerateCapabilityDenialProducesNoArtifacts(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "import socket\nsocket.create_connection((\"example.com\", 80))\n", nil)
	result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Status != schema.StatusCapabilityDenied {
		t.Fatalf("status = %s, want capability_denied", result.Status)
	}
	if !strings.Contains(result.ErrorKind, "socket") {
		t.Errorf("error kind should name the denied capability, got %q", result.ErrorKind)
	}
	if h.uploader.calls != 0 {
		t.Error("denied request must never reach upload")
	}
	// Denial happens before the working directory is created.
	if _, err := os.Stat(h.tempRoot); !os.IsNotExist(err) {
		requireNoLeftovers(t, h.tempRoot)
	}
}

func TestGenerateTimeoutReleasesWorkspace(t *testing.T) {
	t.Parallel()
	requirePython(t)

	h := newHarness(t, "import time\ntime.sleep(60)\n", func(c *Config) {
		c.Limits.WallTime = 500 * time.Millisecond
	})
	result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "slow")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Status != schema.StatusTimeout {
		t.Fatalf("status = %s, want timeout (detail: %s)", result.Status, result.ErrorDetail)
	}
	if result.ErrorKind != schema.ReasonTimeout {
		t.Errorf("error kind = %q, want timeout", result.ErrorKind)
	}
	if h.uploader.calls != 0 {
		t.Error("timed-out request must never reach upload")
	}
	requireNoLeftovers(t, h.tempRoot)
}

func TestGenerateVerificationFailure(t *testing.T) {
	t.Parallel()
	requirePython(t)

	// Exits cleanly without writing the artifact.
	h := newHarness(t, "pass\n", nil)
	result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "nothing")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Status != schema.StatusVerificationFailed {
		t.Fatalf("status = %s, want verification_failed", result.Status)
	}
	if result.ErrorKind != "missing_file" {
		t.Errorf("error kind = %q, want missing_file", result.ErrorKind)
	}
	if h.uploader.calls != 0 {
		t.Error("unverified artifact must never upload")
	}
	requireNoLeftovers(t, h.tempRoot)
}

func TestGenerateUploadRejection(t *testing.T) {
	t.Parallel()
	requirePython(t)

	h := newHarness(t, writingBody, nil)
	h.uploader.fail = &upload.Error{Kind: upload.KindRejected, StatusCode: 401, Detail: "bad token"}

	result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "facts")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if result.Status != schema.StatusUploadFailed {
		t.Fatalf("status = %s, want upload_failed", result.Status)
	}
	if result.ErrorKind != "upload_rejected" {
		t.Errorf("error kind = %q, want upload_rejected", result.ErrorKind)
	}
	requireNoLeftovers(t, h.tempRoot)
}

func TestGenerateCapacityRefusal(t *testing.T) {
	t.Parallel()
	requirePython(t)

	started := make(chan struct{})
	release := make(chan struct{})

	h := newHarness(t, writingBody, func(c *Config) {
		c.MaxConcurrent = 1
		c.QueueWait = time.Minute
		c.Clock = clock.NewFake(time.Unix(1000, 0))
	})
	h.uploader.started = started
	h.uploader.release = release

	done := make(chan *schema.Result)
	go func() {
		result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "holder")
		if err != nil {
			t.Errorf("first Generate: %v", err)
		}
		done <- result
	}()
	testutil.RequireClosed(t, started, 10*time.Second, "first request reaching upload")

	// The fake clock fires the queue-wait timer immediately, so the
	// second request is refused as soon as it finds no free slot.
	_, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "refused")
	if !errors.Is(err, ErrCapacity) {
		t.Errorf("expected ErrCapacity, got %v", err)
	}

	close(release)
	if result := testutil.RequireReceive(t, done, 10*time.Second, "holder request resolving"); result.Status != schema.StatusOK {
		t.Errorf("holder request status = %s", result.Status)
	}
	requireNoLeftovers(t, h.tempRoot)
}

func TestGenerateCancelledWhileQueuedIsNotCapacity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, writingBody, func(c *Config) {
		c.MaxConcurrent = 1
		c.QueueWait = time.Minute
	})
	// Occupy the only slot so the request has to queue.
	h.pipeline.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline.Generate(ctx, schema.FormatMarkdown, "abandoned")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if errors.Is(err, ErrCapacity) {
		t.Error("caller cancellation must not be reported as capacity")
	}
}

func TestGenerateJournalsTerminalStates(t *testing.T) {
	t.Parallel()

	journalDir := t.TempDir()
	log, err := journal.Open(journal.Config{Dir: journalDir})
	if err != nil {
		t.Fatalf("journal.Open: %v", err)
	}
	defer log.Close()

	h := newHarness(t, "import socket\n", func(c *Config) {
		c.Journal = log
	})

	result, err := h.pipeline.Generate(context.Background(), schema.FormatMarkdown, "denied")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	segments, err := journal.Segments(journalDir)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	var records []journal.Record
	for _, segment := range segments {
		fromSegment, err := journal.ReadSegment(segment)
		if err != nil {
			t.Fatalf("ReadSegment: %v", err)
		}
		records = append(records, fromSegment...)
	}
	if len(records) != 1 {
		t.Fatalf("journal records = %d, want 1", len(records))
	}
	if records[0].RequestID != result.RequestID {
		t.Errorf("journal request id = %q, want %q", records[0].RequestID, result.RequestID)
	}
	if records[0].Status != string(schema.StatusCapabilityDenied) {
		t.Errorf("journal status = %q", records[0].Status)
	}
	if records[0].FinishedAt.Before(records[0].AcceptedAt) {
		t.Error("finished_at precedes accepted_at")
	}
}
