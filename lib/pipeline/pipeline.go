// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docforge-foundation/docforge/lib/allowlist"
	"github.com/docforge-foundation/docforge/lib/capability"
	"github.com/docforge-foundation/docforge/lib/clock"
	"github.com/docforge-foundation/docforge/lib/journal"
	"github.com/docforge-foundation/docforge/lib/schema"
	"github.com/docforge-foundation/docforge/lib/template"
	"github.com/docforge-foundation/docforge/lib/upload"
	"github.com/docforge-foundation/docforge/lib/verify"
	"github.com/docforge-foundation/docforge/sandbox"
)

// ErrCapacity is returned when the pipeline is saturated and the
// request could not be admitted within the queue wait.
var ErrCapacity = errors.New("pipeline at capacity")

// Uploader ships a verified artifact to the content store. Satisfied
// by *upload.Client.
type Uploader interface {
	Upload(ctx context.Context, path string, meta upload.Metadata) (*schema.UploadReceipt, error)
}

// Defaults for admission control.
const (
	defaultMaxConcurrent = 4
	defaultQueueWait     = 10 * time.Second
)

// Config configures a Pipeline.
type Config struct {
	// Store resolves templates by format. Required.
	Store *template.Store

	// Registry is the capability allow-list. Required.
	Registry *allowlist.Registry

	// Executor runs rendered templates. Required.
	Executor *sandbox.Executor

	// Uploader ships verified artifacts. Required.
	Uploader Uploader

	// Journal records terminal outcomes. Optional; journal failures are
	// logged and never fail a request.
	Journal *journal.Journal

	// Limits are the per-run resource ceilings, normally taken from the
	// sandbox profile.
	Limits sandbox.Limits

	// TempRoot is where per-request working directories are created.
	// Required.
	TempRoot string

	// MaxConcurrent bounds simultaneously executing requests. Defaults
	// to 4.
	MaxConcurrent int

	// QueueWait bounds how long an arriving request waits for a free
	// slot before being refused with ErrCapacity. Defaults to 10s.
	QueueWait time.Duration

	// Clock supplies timestamps. Defaults to clock.Real().
	Clock clock.Clock

	// Logger for request lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline executes generation requests. Safe for concurrent use.
type Pipeline struct {
	store     *template.Store
	registry  *allowlist.Registry
	executor  *sandbox.Executor
	uploader  Uploader
	journal   *journal.Journal
	limits    sandbox.Limits
	tempRoot  string
	queueWait time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	slots chan struct{}
}

// New validates the configuration and builds a Pipeline.
func New(config Config) (*Pipeline, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("template store is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("allow-list registry is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if config.Uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	if config.TempRoot == "" {
		return nil, fmt.Errorf("temp root is required")
	}

	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	queueWait := config.QueueWait
	if queueWait <= 0 {
		queueWait = defaultQueueWait
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		store:     config.Store,
		registry:  config.Registry,
		executor:  config.Executor,
		uploader:  config.Uploader,
		journal:   config.Journal,
		limits:    config.Limits,
		tempRoot:  config.TempRoot,
		queueWait: queueWait,
		clock:     clk,
		logger:    logger,
		slots:     make(chan struct{}, maxConcurrent),
	}, nil
}

// Generate runs one request to its terminal result. The format must
// already be validated by the caller (ParseFormat at intake). The
// returned Result always has a terminal Status; the only errors are
// ErrCapacity when no slot frees up within the queue wait, and the
// caller's context error when the caller cancels while queued.
func (p *Pipeline) Generate(ctx context.Context, format schema.Format, intent string) (*schema.Result, error) {
	if err := p.admit(ctx); err != nil {
		return nil, err
	}
	defer func() { <-p.slots }()

	request := schema.GenerationRequest{
		Format:     format,
		Intent:     intent,
		RequestID:  uuid.NewString(),
		AcceptedAt: p.clock.Now(),
	}
	logger := p.logger.With("request_id", request.RequestID, "format", format)
	logger.Info("request accepted")

	result := p.run(ctx, logger, request)

	p.record(logger, request, result)
	if result.Status == schema.StatusOK {
		logger.Info("request resolved", "status", result.Status, "content_id", result.Receipt.ContentID)
	} else {
		logger.Warn("request resolved", "status", result.Status, "error_kind", result.ErrorKind, "detail", result.ErrorDetail)
	}
	return result, nil
}

// admit takes a concurrency slot, waiting up to the queue wait. A
// caller that goes away while queued gets its context error, not
// ErrCapacity: the pipeline was not saturated, the caller left.
func (p *Pipeline) admit(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-p.clock.After(p.queueWait):
		return fmt.Errorf("%w: no slot within %s", ErrCapacity, p.queueWait)
	case <-ctx.Done():
		return fmt.Errorf("waiting for admission: %w", ctx.Err())
	}
}

// run moves the request through the stages. Capability enforcement
// happens before the working directory exists, so a denied request
// provably produces no artifacts.
func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, request schema.GenerationRequest) *schema.Result {
	definition, err := p.store.Resolve(request.Format)
	if err != nil {
		return fail(request, schema.StatusExecutionFailed, "template_unavailable", err.Error())
	}
	logger.Debug("template resolved", "version", definition.Version)

	if err := capability.Check(definition, p.registry); err != nil {
		var violation *capability.Violation
		kind := "capability_denied"
		if errors.As(err, &violation) {
			kind = "capability_denied:" + violation.Capability
		}
		return fail(request, schema.StatusCapabilityDenied, kind, err.Error())
	}

	ec, err := sandbox.NewContext(p.tempRoot, request.RequestID, request.Format, p.limits)
	if err != nil {
		return fail(request, schema.StatusExecutionFailed, "workspace_error", err.Error())
	}
	defer ec.Release(logger)

	// Check already validated the format against the registry.
	if permitted, err := p.registry.CapabilitiesFor(request.Format); err == nil {
		ec.AllowNetwork = permitted.Contains("network")
	}

	script := template.Render(definition, ec.OutputPath, request.Intent)
	execution := p.executor.Run(ctx, script, ec)
	if execution.Status != schema.StatusOK {
		kind, detail := splitReason(execution.ErrorDetail)
		return fail(request, execution.Status, kind, detail)
	}

	artifact, err := verify.Verify(ec.OutputPath, request.Format)
	if err != nil {
		kind := "verification_failed"
		var verifyErr *verify.Error
		if errors.As(err, &verifyErr) {
			kind = string(verifyErr.Reason)
		}
		return fail(request, schema.StatusVerificationFailed, kind, err.Error())
	}
	logger.Debug("artifact verified", "size", artifact.Size, "hash", artifact.ContentHash)

	receipt, err := p.uploader.Upload(ctx, artifact.Path, upload.Metadata{
		FileName:  ec.FileName,
		Format:    request.Format,
		RequestID: request.RequestID,
	})
	if err != nil {
		kind := "upload_failed"
		var uploadErr *upload.Error
		if errors.As(err, &uploadErr) {
			kind = "upload_" + uploadErr.Kind
		}
		return fail(request, schema.StatusUploadFailed, kind, err.Error())
	}
	receipt.ContentHash = artifact.ContentHash

	return &schema.Result{
		RequestID:   request.RequestID,
		Status:      schema.StatusOK,
		DownloadURL: receipt.DownloadURL,
		Message:     schema.DownloadLink(ec.FileName, request.Format, receipt.DownloadURL),
		Receipt:     receipt,
	}
}

// record appends the terminal outcome to the journal. Best effort.
func (p *Pipeline) record(logger *slog.Logger, request schema.GenerationRequest, result *schema.Result) {
	if p.journal == nil {
		return
	}
	record := journal.Record{
		RequestID:   request.RequestID,
		Format:      string(request.Format),
		Status:      string(result.Status),
		AcceptedAt:  request.AcceptedAt,
		FinishedAt:  p.clock.Now(),
		ErrorKind:   result.ErrorKind,
		ErrorDetail: result.ErrorDetail,
	}
	if result.Receipt != nil {
		record.ContentID = result.Receipt.ContentID
		record.ContentHash = result.Receipt.ContentHash
	}
	if err := p.journal.Append(record); err != nil {
		logger.Error("journal append failed", "error", err)
	}
}

func fail(request schema.GenerationRequest, status schema.Status, kind, detail string) *schema.Result {
	return &schema.Result{
		RequestID:   request.RequestID,
		Status:      status,
		ErrorKind:   kind,
		ErrorDetail: detail,
	}
}

// splitReason separates the executor's "reason: detail" error format
// into its machine-readable kind and human-readable remainder.
func splitReason(errorDetail string) (kind, detail string) {
	if reason, rest, ok := strings.Cut(errorDetail, ": "); ok {
		switch reason {
		case schema.ReasonRuntimeError, schema.ReasonTimeout, schema.ReasonOutputTooLarge:
			return reason, rest
		}
	}
	return schema.ReasonRuntimeError, errorDetail
}
