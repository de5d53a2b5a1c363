// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package template

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/docforge-foundation/docforge/lib/allowlist"
	"github.com/docforge-foundation/docforge/lib/schema"
)

// ErrTemplateNotFound is returned by Resolve when no template is
// registered for the requested format.
var ErrTemplateNotFound = errors.New("template not found")

// Definition is one generation template. Read-only during request
// handling; versioned by format.
type Definition struct {
	// Format is the output format this template produces.
	Format schema.Format `yaml:"format"`

	// Version increments when the body changes. Recorded in logs so
	// fleet-wide behavior shifts can be traced to a template change.
	Version int `yaml:"version"`

	// DeclaredCapabilities is the capability set the template claims
	// to need. Checked against the allow-list at load time; the
	// enforcer separately checks the capabilities the body actually
	// references before every execution.
	DeclaredCapabilities []string `yaml:"capabilities"`

	// Body is the parameterized Python source. It references the
	// injected output_path and intent variables.
	Body string `yaml:"body"`
}

// Manifest is the on-disk template file shape.
type Manifest struct {
	Templates []Definition `yaml:"templates"`
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// Registry is the capability allow-list used for the load-time
	// cross-check. Required.
	Registry *allowlist.Registry

	// ManifestPath is an optional operator manifest file. Definitions
	// in it replace the built-in default for the same format.
	ManifestPath string

	// HotReload re-reads ManifestPath on every Resolve. Development
	// only; production freezes templates at startup so a late
	// injection cannot alter behavior mid-fleet.
	HotReload bool

	// Logger for load events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store resolves templates by format. Safe for concurrent use.
type Store struct {
	registry     *allowlist.Registry
	manifestPath string
	hotReload    bool
	logger       *slog.Logger

	mu       sync.RWMutex
	byFormat map[schema.Format]*Definition
}

// NewStore loads the built-in templates, applies the operator manifest
// if configured, and cross-checks every definition against the
// allow-list registry. Any violation fails construction.
func NewStore(config StoreConfig) (*Store, error) {
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store := &Store{
		registry:     config.Registry,
		manifestPath: config.ManifestPath,
		hotReload:    config.HotReload,
		logger:       logger,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// Resolve returns the template for the format. In hot-reload mode the
// manifest file is re-read first; a broken edit keeps the previous
// definitions and surfaces the parse error.
func (s *Store) Resolve(format schema.Format) (*Definition, error) {
	if s.hotReload && s.manifestPath != "" {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("reloading templates: %w", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	definition, ok := s.byFormat[format]
	if !ok {
		return nil, fmt.Errorf("%w: no template for format %q", ErrTemplateNotFound, format)
	}
	return definition, nil
}

// Definitions returns all loaded templates in schema.Formats order.
// Used by the CLI's list-templates command.
func (s *Store) Definitions() []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Definition
	for _, format := range schema.Formats() {
		if definition, ok := s.byFormat[format]; ok {
			out = append(out, definition)
		}
	}
	return out
}

// load parses defaults plus the optional manifest file and swaps the
// resolved table in one step.
func (s *Store) load() error {
	byFormat, err := parseManifest([]byte(defaultManifestYAML))
	if err != nil {
		return fmt.Errorf("parsing built-in templates: %w", err)
	}

	if s.manifestPath != "" {
		data, err := os.ReadFile(s.manifestPath)
		if err != nil {
			return fmt.Errorf("reading template manifest: %w", err)
		}
		fromFile, err := parseManifest(data)
		if err != nil {
			return fmt.Errorf("parsing template manifest %s: %w", s.manifestPath, err)
		}
		for format, definition := range fromFile {
			byFormat[format] = definition
			s.logger.Debug("template overridden by manifest",
				"format", format,
				"version", definition.Version,
			)
		}
	}

	if err := s.checkDeclaredCapabilities(byFormat); err != nil {
		return err
	}

	s.mu.Lock()
	s.byFormat = byFormat
	s.mu.Unlock()
	return nil
}

// checkDeclaredCapabilities is the fail-fast half of capability
// enforcement: every declared capability must be in the format's
// allow-list before the store accepts the definition.
func (s *Store) checkDeclaredCapabilities(byFormat map[schema.Format]*Definition) error {
	var errs []error
	for format, definition := range byFormat {
		permitted, err := s.registry.CapabilitiesFor(format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, capability := range definition.DeclaredCapabilities {
			if !permitted.Contains(capability) {
				errs = append(errs, fmt.Errorf(
					"template %s v%d declares capability %q not in the %s allow-list",
					format, definition.Version, capability, format))
			}
		}
	}
	return errors.Join(errs...)
}

func parseManifest(data []byte) (map[schema.Format]*Definition, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}

	byFormat := make(map[schema.Format]*Definition, len(manifest.Templates))
	for i := range manifest.Templates {
		definition := &manifest.Templates[i]
		if _, err := schema.ParseFormat(string(definition.Format)); err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		if definition.Body == "" {
			return nil, fmt.Errorf("template for %s has an empty body", definition.Format)
		}
		if _, dup := byFormat[definition.Format]; dup {
			return nil, fmt.Errorf("duplicate template for format %s", definition.Format)
		}
		byFormat[definition.Format] = definition
	}
	return byFormat, nil
}
