// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package template

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docforge-foundation/docforge/lib/allowlist"
	"github.com/docforge-foundation/docforge/lib/schema"
)

func defaultRegistry(t *testing.T) *allowlist.Registry {
	t.Helper()
	registry, err := allowlist.LoadDefaults()
	if err != nil {
		t.Fatalf("allowlist.LoadDefaults: %v", err)
	}
	return registry
}

func TestStoreResolvesAllFormats(t *testing.T) {
	t.Parallel()

	store, err := NewStore(StoreConfig{Registry: defaultRegistry(t)})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	for _, format := range schema.Formats() {
		definition, err := store.Resolve(format)
		if err != nil {
			t.Errorf("Resolve(%s): %v", format, err)
			continue
		}
		if definition.Format != format {
			t.Errorf("Resolve(%s) returned definition for %s", format, definition.Format)
		}
		if !strings.Contains(definition.Body, "output_path") {
			t.Errorf("%s template body does not reference output_path", format)
		}
		if !strings.Contains(definition.Body, "intent") {
			t.Errorf("%s template body does not reference intent", format)
		}
	}
}

func TestStoreUnregisteredFormat(t *testing.T) {
	t.Parallel()

	store, err := NewStore(StoreConfig{Registry: defaultRegistry(t)})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if _, err := store.Resolve(schema.Format("pdf")); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestStoreRejectsUndeclaredCapabilityAtLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	manifest := `templates:
  - format: markdown
    version: 2
    capabilities: [requests]
    body: |
      import requests
      requests.get("https://example.com")
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	_, err := NewStore(StoreConfig{
		Registry:     defaultRegistry(t),
		ManifestPath: path,
	})
	if err == nil {
		t.Fatal("expected load-time failure for capability not in allow-list")
	}
	if !strings.Contains(err.Error(), "requests") {
		t.Errorf("error should name the offending capability: %v", err)
	}
}

func TestStoreHotReloadPicksUpManifestEdit(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	writeManifest := func(version int) {
		t.Helper()
		manifest := `templates:
  - format: markdown
    version: ` + string(rune('0'+version)) + `
    capabilities: [os]
    body: |
      import os
      with open(output_path, "w") as handle:
          handle.write(intent)
`
		if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
			t.Fatalf("writing manifest: %v", err)
		}
	}

	writeManifest(1)
	store, err := NewStore(StoreConfig{
		Registry:     defaultRegistry(t),
		ManifestPath: path,
		HotReload:    true,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	writeManifest(2)
	definition, err := store.Resolve(schema.FormatMarkdown)
	if err != nil {
		t.Fatalf("Resolve after edit: %v", err)
	}
	if definition.Version != 2 {
		t.Errorf("hot reload should see version 2, got %d", definition.Version)
	}
}

func TestStoreFrozenWithoutHotReload(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "templates.yaml")
	manifest := `templates:
  - format: markdown
    version: 5
    capabilities: [os]
    body: |
      import os
      with open(output_path, "w") as handle:
          handle.write(intent)
`
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	store, err := NewStore(StoreConfig{
		Registry:     defaultRegistry(t),
		ManifestPath: path,
	})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	// Removing the file after startup must not affect a frozen store.
	if err := os.Remove(path); err != nil {
		t.Fatalf("removing manifest: %v", err)
	}
	definition, err := store.Resolve(schema.FormatMarkdown)
	if err != nil {
		t.Fatalf("Resolve on frozen store: %v", err)
	}
	if definition.Version != 5 {
		t.Errorf("frozen store should keep version 5, got %d", definition.Version)
	}
}
