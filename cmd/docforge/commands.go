// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/docforge-foundation/docforge/lib/allowlist"
	"github.com/docforge-foundation/docforge/lib/capability"
	"github.com/docforge-foundation/docforge/lib/config"
	"github.com/docforge-foundation/docforge/lib/httpapi"
	"github.com/docforge-foundation/docforge/lib/journal"
	"github.com/docforge-foundation/docforge/lib/pipeline"
	"github.com/docforge-foundation/docforge/lib/schema"
	"github.com/docforge-foundation/docforge/lib/template"
	"github.com/docforge-foundation/docforge/lib/upload"
	"github.com/docforge-foundation/docforge/lib/verify"
	"github.com/docforge-foundation/docforge/sandbox"
)

// shutdownGrace bounds how long serve waits for in-flight requests
// after a termination signal.
const shutdownGrace = 30 * time.Second

// loadRegistry builds the allow-list registry, from a policy file when
// one is configured.
func loadRegistry(path string) (*allowlist.Registry, error) {
	if path != "" {
		return allowlist.LoadFile(path)
	}
	return allowlist.LoadDefaults()
}

// loadProfile builds the sandbox profile, from a profile file when one
// is configured.
func loadProfile(path string) (*sandbox.Profile, error) {
	if path != "" {
		return sandbox.LoadProfile(path)
	}
	return sandbox.DefaultProfile()
}

func serveCmd(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	registry, err := loadRegistry(cfg.AllowlistPath)
	if err != nil {
		return err
	}
	store, err := template.NewStore(template.StoreConfig{
		Registry:     registry,
		ManifestPath: cfg.TemplateManifestPath,
		HotReload:    !cfg.Production(),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	profile, err := loadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}
	if cfg.Production() && profile.Isolation == sandbox.IsolationAuto {
		// Production never runs templates outside the sandbox.
		profile.Fallback = sandbox.FallbackError
	}
	executor, err := sandbox.NewExecutor(sandbox.ExecutorConfig{
		Profile: profile,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("initializing executor: %w", err)
	}

	uploader, err := upload.NewClient(upload.Config{
		BaseURL: cfg.StoreURL,
		Token:   cfg.StoreToken,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("initializing upload client: %w", err)
	}

	var outcomes *journal.Journal
	if cfg.JournalDir != "" {
		outcomes, err = journal.Open(journal.Config{Dir: cfg.JournalDir})
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer outcomes.Close()
	}

	pipe, err := pipeline.New(pipeline.Config{
		Store:         store,
		Registry:      registry,
		Executor:      executor,
		Uploader:      uploader,
		Journal:       outcomes,
		Limits:        profile.Limits,
		TempRoot:      cfg.TempRoot,
		MaxConcurrent: cfg.MaxConcurrent,
		QueueWait:     cfg.QueueWait,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("initializing pipeline: %w", err)
	}

	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:     fmt.Sprintf(":%d", cfg.Port),
		Pipeline: pipe,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	logger.Info("docforge starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"isolated", executor.Isolated(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down", "grace", shutdownGrace)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("draining requests: %w", err)
		}
		return <-errCh
	}
}

func generateCmd(args []string, logger *slog.Logger) error {
	flags := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	formatFlag := flags.String("format", "", "output format: spreadsheet, document, presentation, markdown")
	outputFlag := flags.String("output", "", "artifact destination path (default: artifact name in the current directory)")
	manifestFlag := flags.String("manifest", "", "template manifest file")
	allowlistFlag := flags.String("allowlist", "", "capability policy file (JSONC)")
	profileFlag := flags.String("profile", "", "sandbox profile file (YAML)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	format, err := schema.ParseFormat(*formatFlag)
	if err != nil {
		return err
	}
	intent := strings.TrimSpace(strings.Join(flags.Args(), " "))
	if intent == "" {
		return fmt.Errorf("intent is required: docforge generate --format=%s \"describe the document\"", format)
	}

	registry, err := loadRegistry(*allowlistFlag)
	if err != nil {
		return err
	}
	store, err := template.NewStore(template.StoreConfig{
		Registry:     registry,
		ManifestPath: *manifestFlag,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	profile, err := loadProfile(*profileFlag)
	if err != nil {
		return err
	}
	executor, err := sandbox.NewExecutor(sandbox.ExecutorConfig{
		Profile: profile,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("initializing executor: %w", err)
	}

	definition, err := store.Resolve(format)
	if err != nil {
		return err
	}
	if err := capability.Check(definition, registry); err != nil {
		return err
	}

	ec, err := sandbox.NewContext(filepath.Join(os.TempDir(), "docforge"), fmt.Sprintf("local-%d", os.Getpid()), format, profile.Limits)
	if err != nil {
		return err
	}
	defer ec.Release(logger)
	if permitted, err := registry.CapabilitiesFor(format); err == nil {
		ec.AllowNetwork = permitted.Contains("network")
	}

	script := template.Render(definition, ec.OutputPath, intent)
	result := executor.Run(context.Background(), script, ec)
	if result.Status != schema.StatusOK {
		if result.Stderr != "" {
			fmt.Fprintln(os.Stderr, result.Stderr)
		}
		return fmt.Errorf("generation failed (%s): %s", result.Status, result.ErrorDetail)
	}

	artifact, err := verify.Verify(ec.OutputPath, format)
	if err != nil {
		return err
	}

	destination := *outputFlag
	if destination == "" {
		destination = ec.FileName + "." + format.Extension()
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if err := os.WriteFile(destination, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", destination, err)
	}

	fmt.Printf("%s (%d bytes, blake3 %s)\n", destination, artifact.Size, artifact.ContentHash)
	return nil
}

func listTemplatesCmd(args []string) error {
	flags := pflag.NewFlagSet("list-templates", pflag.ContinueOnError)
	manifestFlag := flags.String("manifest", "", "template manifest file")
	allowlistFlag := flags.String("allowlist", "", "capability policy file (JSONC)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	store, err := localStore(*manifestFlag, *allowlistFlag)
	if err != nil {
		return err
	}
	for _, definition := range store.Definitions() {
		fmt.Printf("%-13s v%-3d capabilities: %s\n",
			definition.Format, definition.Version,
			strings.Join(definition.DeclaredCapabilities, ", "))
	}
	return nil
}

func showTemplateCmd(args []string) error {
	flags := pflag.NewFlagSet("show-template", pflag.ContinueOnError)
	manifestFlag := flags.String("manifest", "", "template manifest file")
	allowlistFlag := flags.String("allowlist", "", "capability policy file (JSONC)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: docforge show-template <format>")
	}
	format, err := schema.ParseFormat(flags.Arg(0))
	if err != nil {
		return err
	}

	store, err := localStore(*manifestFlag, *allowlistFlag)
	if err != nil {
		return err
	}
	definition, err := store.Resolve(format)
	if err != nil {
		return err
	}
	fmt.Printf("# format: %s, version %d\n", definition.Format, definition.Version)
	fmt.Print(definition.Body)
	if !strings.HasSuffix(definition.Body, "\n") {
		fmt.Println()
	}
	return nil
}

// localStore builds a template store for the read-only CLI commands.
func localStore(manifestPath, allowlistPath string) (*template.Store, error) {
	registry, err := loadRegistry(allowlistPath)
	if err != nil {
		return nil, err
	}
	return template.NewStore(template.StoreConfig{
		Registry:     registry,
		ManifestPath: manifestPath,
	})
}
